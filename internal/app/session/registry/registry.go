// Package registry keeps one session per listener.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonora/internal/app/session"
	"github.com/osa030/sonora/internal/domain/listener"
)

var (
	ErrUnknownListener = errors.New("unknown listener")
	ErrRegistryClosed  = errors.New("registry is closed")
)

// Factory creates the session for a user.
type Factory func(userID string) *session.Manager

type entry struct {
	listener *listener.Session
	session  *session.Manager
}

// Option configures a Registry.
type Option func(*Registry)

// WithActivity sets a check for activity the registry does not count itself,
// such as an attached player page. Sweep keeps sessions of active users.
func WithActivity(active func(userID string) bool) Option {
	return func(r *Registry) { r.active = active }
}

// WithRelease sets a hook run for a user whose session is kicked or swept.
// It runs under the registry lock, so it never races a Join for that user.
func WithRelease(release func(userID string)) Option {
	return func(r *Registry) { r.release = release }
}

// Registry manages listener sessions with thread-safe access.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	factory Factory
	closed  bool

	active  func(userID string) bool
	release func(userID string)
}

// New creates a new registry.
func New(factory Factory, opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		factory: factory,
		active:  func(string) bool { return false },
		release: func(string) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Join returns the session for userID, creating and starting it on first use.
func (r *Registry) Join(ctx context.Context, userID, displayName string) (*session.Manager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	if e, ok := r.entries[userID]; ok {
		e.listener.Touch()
		if displayName != "" {
			e.listener.DisplayName = displayName
		}
		return e.session, nil
	}

	s := r.factory(userID)
	if err := s.Start(ctx); err != nil {
		s.Close()
		return nil, errors.Wrap(err, "failed to start session")
	}
	r.entries[userID] = &entry{
		listener: listener.NewSession(userID, displayName),
		session:  s,
	}
	zlog.Info().Msgf("registry: listener joined: user=%s sessions=%d", userID, len(r.entries))
	return s, nil
}

// Get retrieves a running session.
func (r *Registry) Get(userID string) (*session.Manager, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[userID]
	if !ok {
		return nil, ErrUnknownListener
	}
	return e.session, nil
}

// Connect records an open websocket connection for userID.
func (r *Registry) Connect(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[userID]
	if !ok {
		return ErrUnknownListener
	}
	e.listener.Connect()
	return nil
}

// Disconnect records a closed websocket connection for userID.
func (r *Registry) Disconnect(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[userID]; ok {
		e.listener.Disconnect()
	}
}

// Kick closes the session for userID and forgets the listener.
func (r *Registry) Kick(userID string) error {
	r.mu.Lock()
	e, ok := r.entries[userID]
	if ok {
		delete(r.entries, userID)
		r.release(userID)
	}
	r.mu.Unlock()

	if !ok {
		return ErrUnknownListener
	}
	zlog.Info().Msgf("registry: listener kicked: user=%s", userID)
	e.session.Close()
	return nil
}

// Sweep closes sessions idle for longer than ttl and returns how many were
// closed.
func (r *Registry) Sweep(ttl time.Duration) int {
	now := time.Now()

	r.mu.Lock()
	var idle []*entry
	for id, e := range r.entries {
		if !e.listener.Idle(now, ttl) {
			continue
		}
		if r.active(id) {
			e.listener.Touch()
			continue
		}
		idle = append(idle, e)
		delete(r.entries, id)
		r.release(id)
	}
	r.mu.Unlock()

	for _, e := range idle {
		zlog.Info().Msgf("registry: closing idle session: user=%s", e.listener.UserID)
		e.session.Close()
	}
	return len(idle)
}

// RunSweeper sweeps every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(ttl); n > 0 {
				zlog.Debug().Msgf("registry: swept %d idle sessions", n)
			}
		}
	}
}

// All returns a copy of every listener.
func (r *Registry) All() []listener.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]listener.Session, 0, len(r.entries))
	for _, e := range r.entries {
		result = append(result, *e.listener)
	}
	return result
}

// Count returns the number of listeners.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Close closes every session. Later joins fail.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.session.Close()
	}
}
