package session

import (
	"sync"
	"time"

	"tgrelay/pkg/gateway"
)

// RoutedMessage links a message delivered to the administrator back to the
// user it was relayed from.
type RoutedMessage struct {
	OutboundMessageID int64
	Origin            gateway.UserIdentity
	CreatedAt         time.Time
}

// IdentityMap maps outbound message ids to their originating users.
type IdentityMap struct {
	mu        sync.RWMutex
	entries   map[int64]RoutedMessage
	retention time.Duration
	now       Clock
}

// NewIdentityMap creates a map whose entries stop resolving after retention.
func NewIdentityMap(retention time.Duration, now Clock) *IdentityMap {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if now == nil {
		now = time.Now
	}
	return &IdentityMap{
		entries:   make(map[int64]RoutedMessage),
		retention: retention,
		now:       now,
	}
}

// Record stores a fresh entry for outboundID, replacing any stale one.
func (m *IdentityMap) Record(outboundID int64, user gateway.UserIdentity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[outboundID] = RoutedMessage{
		OutboundMessageID: outboundID,
		Origin:            user,
		CreatedAt:         m.now(),
	}
}

// Resolve returns the user a message was relayed from. Entries past the
// retention window are reported as ErrNotFound even before eviction.
func (m *IdentityMap) Resolve(outboundID int64) (gateway.UserIdentity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[outboundID]
	if !ok || m.now().Sub(e.CreatedAt) > m.retention {
		return gateway.UserIdentity{}, ErrNotFound
	}
	return e.Origin, nil
}

// EvictOlderThan removes entries created more than d ago and returns how
// many were removed.
func (m *IdentityMap) EvictOlderThan(d time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, e := range m.entries {
		if now.Sub(e.CreatedAt) > d {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}

// Retention returns the configured retention window.
func (m *IdentityMap) Retention() time.Duration {
	return m.retention
}

// Len returns the number of stored entries, expired or not.
func (m *IdentityMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
