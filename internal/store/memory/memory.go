// Package memory provides in-process session and rate-limit stores with TTL
// semantics. Lazy expiry on read is authoritative; a background janitor only
// bounds memory and is never relied on for correctness.
package memory

import (
	"context"
	"sync"
	"time"

	"vetcare.app/internal/auth"
)

const defaultSweepInterval = time.Minute

var (
	_ auth.SessionStore   = (*Store)(nil)
	_ auth.RateLimitStore = (*Store)(nil)
)

type sessionEntry struct {
	sess     auth.Session
	deadline time.Time
}

type counterEntry struct {
	count    int64
	deadline time.Time
}

// Store holds sessions and attempt counters behind a single mutex. Writes
// are atomic per key, which is what the single-session-per-user policy
// relies on.
type Store struct {
	mu       sync.Mutex
	sessions map[string]sessionEntry
	counters map[string]counterEntry

	now       func() time.Time
	sweepTick time.Duration
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithSweepInterval changes how often the janitor purges expired entries.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.sweepTick = d
		}
	}
}

// New constructs the store and starts its janitor. Call Close to stop it.
func New(opts ...Option) *Store {
	s := &Store{
		sessions:  make(map[string]sessionEntry),
		counters:  make(map[string]counterEntry),
		now:       time.Now,
		sweepTick: defaultSweepInterval,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.janitor()
	return s
}

// Close stops the janitor goroutine.
func (s *Store) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// Put upserts the user's session, superseding any prior one.
func (s *Store) Put(_ context.Context, userID string, sess auth.Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = sessionEntry{sess: sess, deadline: s.now().Add(ttl)}
	return nil
}

// Get returns the live session or nil. An entry whose TTL elapsed is
// removed and treated as absent regardless of the janitor's schedule.
func (s *Store) Get(_ context.Context, userID string) (*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[userID]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(entry.deadline) {
		delete(s.sessions, userID)
		return nil, nil
	}
	sess := entry.sess
	return &sess, nil
}

// Delete removes the user's session. Absent sessions are not an error.
func (s *Store) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

// Increment bumps the counter for key, starting a fresh window when the
// previous one elapsed, and returns the new count.
func (s *Store) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	entry, ok := s.counters[key]
	if !ok || !now.Before(entry.deadline) {
		entry = counterEntry{deadline: now.Add(window)}
	}
	entry.count++
	s.counters[key] = entry
	return entry.count, nil
}

// Clear removes the counter for key.
func (s *Store) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, key)
	return nil
}

func (s *Store) janitor() {
	ticker := time.NewTicker(s.sweepTick)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, e := range s.sessions {
		if !now.Before(e.deadline) {
			delete(s.sessions, k)
		}
	}
	for k, e := range s.counters {
		if !now.Before(e.deadline) {
			delete(s.counters, k)
		}
	}
}
