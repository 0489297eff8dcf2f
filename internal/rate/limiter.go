// Package rate throttles actuator toggles so a misbehaving operator script
// cannot chatter a pump or light relay.
package rate

import (
	"sync"
	"time"
)

// Config defines the token bucket applied to each key.
type Config struct {
	Every time.Duration // one token is added per interval
	Burst int
}

// Limiter is a token bucket.
type Limiter struct {
	mu     sync.Mutex
	tokens float64
	last   time.Time
	every  time.Duration
	burst  float64
	now    func() time.Time
}

// New creates a limiter with a full bucket.
func New(cfg Config) *Limiter {
	return newWithClock(cfg, time.Now)
}

func newWithClock(cfg Config, now func() time.Time) *Limiter {
	return &Limiter{
		tokens: float64(cfg.Burst),
		last:   now(),
		every:  cfg.Every,
		burst:  float64(cfg.Burst),
		now:    now,
	}
}

// Allow takes a token if one is available.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.every > 0 {
		l.tokens += float64(now.Sub(l.last)) / float64(l.every)
		if l.tokens > l.burst {
			l.tokens = l.burst
		}
	}
	l.last = now

	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// Manager holds one limiter per key, e.g. per device id.
type Manager struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
	defaults Config
	now      func() time.Time
}

func NewManager(defaults Config) *Manager {
	return &Manager{
		limiters: make(map[string]*Limiter),
		defaults: defaults,
		now:      time.Now,
	}
}

// Allow reports whether key may act now. A zero Burst disables limiting.
func (m *Manager) Allow(key string) bool {
	if m == nil || m.defaults.Burst <= 0 {
		return true
	}
	m.mu.Lock()
	lim, ok := m.limiters[key]
	if !ok {
		lim = newWithClock(m.defaults, m.now)
		m.limiters[key] = lim
	}
	m.mu.Unlock()
	return lim.Allow()
}
