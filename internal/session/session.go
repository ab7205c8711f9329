// Package session holds the in-memory routing state of the relay: which user
// each relayed message came from, per-user rate limits and the set of
// interaction callbacks that were already handled. Every structure has its
// own lock; none of them share one.
package session

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no live routed message exists for an id.
var ErrNotFound = errors.New("session: routed message not found")

// Default windows.
const (
	DefaultRetention   = 24 * time.Hour
	DefaultDedupWindow = time.Hour
	DefaultMinInterval = time.Second
)

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time
