// Package ratelimit caps how many questions one client can ask per minute.
package ratelimit

import (
	"sync"
	"time"
)

const (
	window      = time.Minute
	idleTimeout = 5 * time.Minute
)

// clientWindow holds the timestamps of one client's admitted requests, oldest first
type clientWindow struct {
	mu       sync.Mutex
	admitted []time.Time
	lastSeen time.Time
}

// expire drops timestamps that left the window
func (w *clientWindow) expire(now time.Time) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(w.admitted) && !w.admitted[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.admitted = append(w.admitted[:0], w.admitted[i:]...)
	}
}

// RateLimiter is an in-memory sliding window limiter keyed by client
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientWindow
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter starts a limiter and its idle client sweeper. Stop ends the sweeper.
func NewRateLimiter() *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*clientWindow),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go rl.sweep(idleTimeout)
	return rl
}

// Stop ends the sweeper; it is safe to call more than once
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Allow admits a request when the client asked fewer than limit times in the last minute
func (rl *RateLimiter) Allow(clientID string, limit int) bool {
	ok, _ := rl.Reserve(clientID, limit)
	return ok
}

// Reserve is Allow that also reports, on rejection, how long until a slot frees up.
// A limit <= 0 admits everything.
func (rl *RateLimiter) Reserve(clientID string, limit int) (bool, time.Duration) {
	if limit <= 0 {
		return true, 0
	}

	now := rl.now()
	rl.mu.Lock()
	w, ok := rl.clients[clientID]
	if !ok {
		w = &clientWindow{}
		rl.clients[clientID] = w
	}
	rl.mu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastSeen = now
	w.expire(now)
	if len(w.admitted) >= limit {
		return false, w.admitted[0].Add(window).Sub(now)
	}
	w.admitted = append(w.admitted, now)
	return true, 0
}

// cleanup forgets clients idle for longer than idleTimeout
func (rl *RateLimiter) cleanup() {
	cutoff := rl.now().Add(-idleTimeout)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for id, w := range rl.clients {
		w.mu.Lock()
		idle := w.lastSeen.Before(cutoff)
		w.mu.Unlock()
		if idle {
			delete(rl.clients, id)
		}
	}
}

func (rl *RateLimiter) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// ClientStats describes one tracked client
type ClientStats struct {
	ClientID string    `json:"client_id"`
	InWindow int       `json:"in_window"`
	LastSeen time.Time `json:"last_seen"`
}

// Stats lists the tracked clients
func (rl *RateLimiter) Stats() []ClientStats {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	stats := make([]ClientStats, 0, len(rl.clients))
	for id, w := range rl.clients {
		w.mu.Lock()
		stats = append(stats, ClientStats{ClientID: id, InWindow: len(w.admitted), LastSeen: w.lastSeen})
		w.mu.Unlock()
	}
	return stats
}
