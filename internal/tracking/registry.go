package tracking

import (
	"context"
	"log"
	"sync"
	"time"
)

// Registry hands out one Cache per session. Sessions never share entries,
// and a session's cache can be used without blocking other sessions.
type Registry struct {
	mu           sync.RWMutex
	caches       map[int64]*Cache
	closed       map[int64]time.Time // sessions whose cache was closed, with close time
	ttl          time.Duration
	iouThreshold float64
	idleTimeout  time.Duration
}

// NewRegistry creates a registry whose caches use ttl and iouThreshold.
// Caches unused for idleTimeout are dropped by Sweep.
func NewRegistry(ttl time.Duration, iouThreshold float64, idleTimeout time.Duration) *Registry {
	return &Registry{
		caches:       make(map[int64]*Cache),
		closed:       make(map[int64]time.Time),
		ttl:          ttl,
		iouThreshold: iouThreshold,
		idleTimeout:  idleTimeout,
	}
}

// Get returns the cache of a session, creating it on first use. A session
// that was closed gets ErrClosed.
func (r *Registry) Get(sessionID int64) (*Cache, error) {
	r.mu.RLock()
	c, ok := r.caches[sessionID]
	_, closed := r.closed[sessionID]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}
	if closed {
		return nil, ErrClosed
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, closed := r.closed[sessionID]; closed {
		return nil, ErrClosed
	}
	if c, ok := r.caches[sessionID]; ok {
		return c, nil
	}
	c = NewCache(r.ttl, r.iouThreshold)
	r.caches[sessionID] = c
	return c, nil
}

// Close ends a session's cache. Later Get calls for it fail with ErrClosed.
func (r *Registry) Close(sessionID int64, now time.Time) {
	r.mu.Lock()
	c, ok := r.caches[sessionID]
	delete(r.caches, sessionID)
	r.closed[sessionID] = now
	r.mu.Unlock()

	if ok {
		c.Close()
	}
}

// Len returns the number of open caches.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.caches)
}

// Sweep drops caches idle for longer than the idle timeout and forgets old
// close markers. It returns the number of caches dropped.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for id, c := range r.caches {
		if now.Sub(c.idleSince()) > r.idleTimeout {
			delete(r.caches, id)
			dropped++
		}
	}
	for id, at := range r.closed {
		if now.Sub(at) > r.idleTimeout {
			delete(r.closed, id)
		}
	}
	return dropped
}

// Run sweeps idle caches every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.Sweep(now); n > 0 {
				log.Printf("Dropped %d idle tracking caches", n)
			}
		}
	}
}
