package session

import (
	"sync"
	"time"
)

// Deduplicator remembers interaction ids for a fixed window so a redelivered
// callback is recognised and not executed twice.
//
// Two deliveries of the same id further apart than the window are both
// accepted. That gap is accepted; the window is not extended.
type Deduplicator struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration
}

// NewDeduplicator creates a deduplicator with the given window.
func NewDeduplicator(window time.Duration) *Deduplicator {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &Deduplicator{
		seen:   make(map[string]time.Time),
		window: window,
	}
}

// TryClaim returns true for the first claim of id within the window and
// false for every later claim inside it. An entry whose window has elapsed
// is claimed afresh.
func (d *Deduplicator) TryClaim(id string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if at, ok := d.seen[id]; ok && now.Sub(at) < d.window {
		return false
	}
	d.seen[id] = now
	return true
}

// Evict removes entries whose window has fully elapsed at now.
func (d *Deduplicator) Evict(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for id, at := range d.seen {
		if now.Sub(at) >= d.window {
			delete(d.seen, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of remembered ids.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
