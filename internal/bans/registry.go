// Package bans keeps the set of banned user ids and mirrors it to a store.
package bans

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"tgrelay/pkg/logger"
)

// Store persists the banned id list. Save always receives the full list.
type Store interface {
	Load() ([]int64, error)
	Save(ids []int64) error
}

// Registry is the in-memory ban set. Reads take only the set's read lock;
// mutations are serialized by writeMu and persist after the set is updated,
// so IsBanned never waits for store I/O.
type Registry struct {
	mu  sync.RWMutex
	set map[int64]struct{}

	writeMu sync.Mutex
	store   Store
	log     zerolog.Logger
}

// NewRegistry creates an empty registry backed by store. Call Load to read
// the persisted list.
func NewRegistry(store Store, log zerolog.Logger) *Registry {
	return &Registry{
		set:   make(map[int64]struct{}),
		store: store,
		log:   logger.Component(log, "bans"),
	}
}

// Load replaces the in-memory set with the stored list.
func (r *Registry) Load() error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	ids, err := r.store.Load()
	if err != nil {
		return fmt.Errorf("load bans: %w", err)
	}
	r.replace(ids)
	r.log.Info().Int("count", len(ids)).Msg("ban list loaded")
	return nil
}

// IsBanned reports whether id is banned.
func (r *Registry) IsBanned(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.set[id]
	return ok
}

// Ban adds id and rewrites the store. On a store error the in-memory set
// keeps the change and the error is returned.
func (r *Registry) Ban(id int64) error {
	return r.mutate(id, true)
}

// Unban removes id and rewrites the store.
func (r *Registry) Unban(id int64) error {
	return r.mutate(id, false)
}

func (r *Registry) mutate(id int64, banned bool) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	if banned {
		r.set[id] = struct{}{}
	} else {
		delete(r.set, id)
	}
	snapshot := r.sortedLocked()
	r.mu.Unlock()

	if err := r.store.Save(snapshot); err != nil {
		r.log.Error().Err(err).Int64("user_id", id).Bool("banned", banned).Msg("persist ban list failed")
		return fmt.Errorf("persist bans: %w", err)
	}
	r.log.Info().Int64("user_id", id).Bool("banned", banned).Int("count", len(snapshot)).Msg("ban list updated")
	return nil
}

func (r *Registry) replace(ids []int64) {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	r.mu.Lock()
	r.set = set
	r.mu.Unlock()
}

// List returns the banned ids in ascending order.
func (r *Registry) List() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked()
}

// Len returns the number of banned ids.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.set)
}

func (r *Registry) sortedLocked() []int64 {
	ids := make([]int64, 0, len(r.set))
	for id := range r.set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
