package payment

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/topup/core/logger"
)

// Registry tracks the live sessions of one presentation surface. A session
// leaves the registry when it is closed or navigates away.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	defaults []Option
	now      func() time.Time
}

// NewRegistry returns a registry whose sessions are built with defaults.
func NewRegistry(defaults ...Option) *Registry {
	o := options{now: time.Now}
	for _, opt := range defaults {
		opt(&o)
	}
	return &Registry{
		sessions: make(map[string]*Session),
		defaults: defaults,
		now:      o.now,
	}
}

// Open starts a session under key. An existing session under the same key is
// closed first, since a screen instance owns at most one session.
func (r *Registry) Open(key, operatorName, color string, extra ...Option) *Session {
	opts := make([]Option, 0, len(r.defaults)+len(extra)+1)
	opts = append(opts, r.defaults...)
	opts = append(opts, WithID(key))
	opts = append(opts, extra...)
	s := NewSession(operatorName, color, opts...)

	r.mu.Lock()
	prev := r.sessions[key]
	r.sessions[key] = s
	r.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	s.OnClose(func() { r.remove(key, s) })
	return s
}

// Get returns the live session under key.
func (r *Registry) Get(key string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close discards the session under key and reports whether one existed.
func (r *Registry) Close(key string) bool {
	r.mu.Lock()
	s, ok := r.sessions[key]
	if ok {
		delete(r.sessions, key)
	}
	r.mu.Unlock()
	if ok {
		s.Close()
	}
	return ok
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than maxIdle and returns how many
// were closed. Sessions with a call in flight or a redirect still pending
// are kept.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	var stale []*Session
	for key, s := range r.sessions {
		switch s.Status().Kind {
		case StatusSubmitting, StatusSucceeded:
			continue
		}
		if s.LastActivity().Before(cutoff) {
			stale = append(stale, s)
			delete(r.sessions, key)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
	if len(stale) > 0 {
		logger.Info(context.Background(), logger.CompPayment, "sessions.swept",
			slog.Int("count", len(stale)),
			slog.Duration("max_idle", maxIdle),
		)
	}
	return len(stale)
}

// CloseAll discards every session, used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for key, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, key)
	}
	r.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}

func (r *Registry) remove(key string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[key]; ok && cur == s {
		delete(r.sessions, key)
	}
}
