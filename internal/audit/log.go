// Package audit emits append-only JSON audit lines for authentication
// events. Recording is best-effort by contract: a failed write never fails
// the operation that produced the event.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"vetcare.app/internal/auth"
	"vetcare.app/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit
// logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with request and actor context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		entry["user_id"] = userID
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}

// Sink adapts LogEvent to the auth.AuditSink interface.
type Sink struct{}

var _ auth.AuditSink = Sink{}

// Record writes the event with transport metadata folded into the fields.
// Errors are swallowed: audit failures must not block authentication.
func (Sink) Record(ctx context.Context, event string, fields map[string]any, meta auth.RequestMeta) {
	merged := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		merged[k] = v
	}
	if meta.IP != "" {
		merged["ip_address"] = meta.IP
	}
	if meta.UserAgent != "" {
		merged["user_agent"] = meta.UserAgent
	}
	if meta.RequestID != "" {
		ctx = WithRequestID(ctx, meta.RequestID)
	}
	_ = LogEvent(ctx, event, merged)
}
