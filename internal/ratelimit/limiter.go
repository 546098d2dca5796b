// Package ratelimit enforces a minimum interval between actions per key, such as a client IP.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter tracks the last permitted action per key.
type Limiter struct {
	mu          sync.Mutex
	hosts       map[string]time.Time
	minInterval time.Duration
}

// New creates a limiter allowing one action per key every minInterval.
func New(minInterval time.Duration) *Limiter {
	return &Limiter{
		hosts:       make(map[string]time.Time),
		minInterval: minInterval,
	}
}

// Allow reports whether key may act now. A refused call does not move the window.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if last, ok := l.hosts[key]; ok && now.Sub(last) < l.minInterval {
		return false
	}
	l.hosts[key] = now
	return true
}

// Wait blocks until key may act, reserving its slot before sleeping.
func (l *Limiter) Wait(key string) {
	l.mu.Lock()
	now := time.Now()
	next := now
	if last, ok := l.hosts[key]; ok {
		if earliest := last.Add(l.minInterval); earliest.After(now) {
			next = earliest
		}
	}
	l.hosts[key] = next
	l.mu.Unlock()

	if d := next.Sub(now); d > 0 {
		time.Sleep(d)
	}
}

// Reset forgets key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hosts, key)
}

// ResetAll forgets every key.
func (l *Limiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hosts = make(map[string]time.Time)
}

// Prune drops keys idle for longer than idle and returns how many were removed.
func (l *Limiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	removed := 0
	for key, last := range l.hosts {
		if last.Before(cutoff) {
			delete(l.hosts, key)
			removed++
		}
	}
	return removed
}
