package auth

import (
	"context"
	"time"
)

// CredentialStore is the lookup/update surface over persisted user records.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	UpdateLastLogin(ctx context.Context, id, ip string, at time.Time) error
}

// SessionStore tracks the single live refresh session per user. Absence is
// not an error: Get returns (nil, nil) for a missing or expired session and
// Delete of an absent session succeeds.
type SessionStore interface {
	Put(ctx context.Context, userID string, sess Session, ttl time.Duration) error
	Get(ctx context.Context, userID string) (*Session, error)
	Delete(ctx context.Context, userID string) error
}

// RateLimitStore counts attempts within a sliding window. Increment returns
// the count after the increment; Clear removes the counter entirely.
type RateLimitStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
	Clear(ctx context.Context, key string) error
}

// RequestMeta carries transport-level metadata into audit events.
type RequestMeta struct {
	IP        string
	UserAgent string
	RequestID string
}

// AuditSink consumes authentication events. Implementations must be
// best-effort: a sink failure never fails the operation that emitted it.
type AuditSink interface {
	Record(ctx context.Context, event string, fields map[string]any, meta RequestMeta)
}
