// Package sessions keeps the live analysis sessions of the HTTP API in memory.
package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johnrirwin/skinlens/internal/analysis"
	"github.com/johnrirwin/skinlens/internal/logging"
)

// Factory builds a new session for id.
type Factory func(id string) *analysis.Session

// Registry maps session ids to sessions and drops the ones left idle for longer than ttl.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	ttl      time.Duration
	factory  Factory
	logger   *logging.Logger
	now      func() time.Time
}

type entry struct {
	session  *analysis.Session
	lastSeen time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(ttl time.Duration, factory Factory, logger *logging.Logger) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Registry{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		factory:  factory,
		logger:   logger,
		now:      time.Now,
	}
}

// Create starts a new session under a fresh id.
func (r *Registry) Create() *analysis.Session {
	id := uuid.NewString()
	session := r.factory(id)

	r.mu.Lock()
	r.sessions[id] = &entry{session: session, lastSeen: r.now()}
	count := len(r.sessions)
	r.mu.Unlock()

	r.logger.Info("Session created", logging.WithFields(map[string]interface{}{
		"session": id,
		"active":  count,
	}))
	return session
}

// Get returns a live session and marks it as used.
func (r *Registry) Get(id string) (*analysis.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	now := r.now()
	if now.Sub(e.lastSeen) > r.ttl && !e.session.State().IsAnalyzing {
		delete(r.sessions, id)
		return nil, false
	}
	e.lastSeen = now
	return e.session, true
}

// Delete drops a session. It reports whether the session existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

// Len returns the number of sessions held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep removes idle sessions and returns how many were dropped. Sessions with an
// analysis in flight are kept.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, e := range r.sessions {
		if now.Sub(e.lastSeen) <= r.ttl || e.session.State().IsAnalyzing {
			continue
		}
		delete(r.sessions, id)
		removed++
	}
	return removed
}

// Run sweeps periodically until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := r.Sweep(); removed > 0 {
				r.logger.Debug("Expired sessions removed", logging.WithField("count", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}
