// Package memory provides an in-process snapshot store for tests and
// ephemeral runs.
package memory

import (
	"context"
	"sync"

	"entitycache/pkg/domain"
)

var _ domain.SnapshotStore = (*Store)(nil)

// Store keeps the last saved snapshot in memory.
type Store struct {
	mu    sync.RWMutex
	snap  domain.Snapshot
	saves int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{snap: domain.Snapshot{}}
}

// SaveSnapshot replaces the held snapshot with a copy of snap.
func (s *Store) SaveSnapshot(ctx context.Context, snap domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := snap.Clone()
	if cp == nil {
		cp = domain.Snapshot{}
	}
	s.mu.Lock()
	s.snap = cp
	s.saves++
	s.mu.Unlock()
	return nil
}

// LoadSnapshot returns a copy of the held snapshot.
func (s *Store) LoadSnapshot(ctx context.Context) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone(), nil
}

// Saves reports how many snapshots have been saved.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Close implements domain.SnapshotStore.
func (s *Store) Close() error { return nil }
