package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"entitycache/pkg/domain"
)

// RestoreMode selects how a stored snapshot is applied to the state.
type RestoreMode string

const (
	// RestoreReplace replaces the whole cache with the snapshot.
	RestoreReplace RestoreMode = "replace"
	// RestoreMerge merges each bucket into its collection and keeps every
	// other collection.
	RestoreMerge RestoreMode = "merge"
)

// Change describes one successful state transition.
type Change struct {
	Action   domain.Action
	Previous domain.EntityCache
	Current  domain.EntityCache
}

// Listener is notified after each dispatch that changed the state. Listeners
// run synchronously in dispatch order and must not call Dispatch. A listener
// may cancel any subscription; the removal applies from the next dispatch.
type Listener func(ctx context.Context, change Change)

// Store holds the EntityCache of record and serialises dispatches so every
// reduction sees the output of the previous one.
type Store struct {
	reducer *CacheReducer
	codec   *SnapshotCodec
	logger  *slog.Logger
	metrics MetricsRecorder
	tracer  Tracer

	mu    sync.Mutex
	state domain.EntityCache

	notifyMu sync.Mutex

	listenersMu sync.Mutex
	listeners   map[uint64]Listener
	nextID      uint64
}

// StoreOption customises a Store.
type StoreOption func(*Store)

// WithLogger sets the structured logger. Dispatch outcomes are logged at
// debug level and failures at warn level.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the dispatch metrics sink.
func WithMetricsRecorder(m MetricsRecorder) StoreOption {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer sets the dispatch tracer.
func WithTracer(t Tracer) StoreOption {
	return func(s *Store) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithInitialState seeds the store. The map is copied.
func WithInitialState(cache domain.EntityCache) StoreOption {
	return func(s *Store) { s.state = setEntityCache(cache) }
}

// NewStore returns a store with an empty cache.
func NewStore(reducer *CacheReducer, opts ...StoreOption) *Store {
	s := &Store{
		reducer:   reducer,
		codec:     NewSnapshotCodec(reducer.Definitions()),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:   noopMetrics{},
		tracer:    noopTracer{},
		state:     domain.EntityCache{},
		listeners: make(map[uint64]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reducer returns the cache reducer.
func (s *Store) Reducer() *CacheReducer { return s.reducer }

// Codec returns the snapshot codec.
func (s *Store) Codec() *SnapshotCodec { return s.codec }

// State returns the current cache. Callers must treat it as read-only.
func (s *Store) State() domain.EntityCache {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch reduces action against the current state and stores the result.
// On error the state is left unchanged and the previous state is returned.
func (s *Store) Dispatch(ctx context.Context, action domain.Action) (domain.EntityCache, error) {
	if action == nil {
		return s.State(), errors.New("dispatch: nil action")
	}
	op := action.Type()
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()

	s.mu.Lock()
	prev := s.state
	next, err := s.reducer.Reduce(prev, action)
	if err == nil {
		s.state = next
	}
	// Hand over to the notify lock before releasing the state lock so
	// listeners observe changes in dispatch order.
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	elapsed := time.Since(start)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	span.End(err)
	if err != nil {
		s.logger.WarnContext(ctx, "dispatch failed", "action", op, "error", err)
		return prev, err
	}
	changed := !sameCache(prev, next)
	s.logger.DebugContext(ctx, "dispatched", "action", op, "changed", changed, "duration", elapsed)
	if changed {
		change := Change{Action: action, Previous: prev, Current: next}
		for _, l := range s.snapshotListeners() {
			l(ctx, change)
		}
	}
	return next, nil
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (cancel func()) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = l
	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.listeners, id)
	}
}

// snapshotListeners returns the registered listeners in subscription order.
func (s *Store) snapshotListeners() []Listener {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	ids := sortedListenerIDs(s.listeners)
	out := make([]Listener, len(ids))
	for i, id := range ids {
		out[i] = s.listeners[id]
	}
	return out
}

// SaveSnapshot encodes the current state and writes it to store.
func (s *Store) SaveSnapshot(ctx context.Context, store domain.SnapshotStore) error {
	snap, err := s.codec.Encode(s.State())
	if err != nil {
		return err
	}
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	s.logger.InfoContext(ctx, "snapshot saved", "collections", len(snap))
	return nil
}

// Restore loads the snapshot held by store and applies it according to mode.
func (s *Store) Restore(ctx context.Context, store domain.SnapshotStore, mode RestoreMode) error {
	snap, err := store.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	var action domain.Action
	switch mode {
	case RestoreReplace, "":
		cache, err := s.codec.DecodeCache(snap)
		if err != nil {
			return err
		}
		action = domain.SetEntityCache{Cache: cache}
	case RestoreMerge:
		qs, err := s.codec.DecodeQuerySet(snap)
		if err != nil {
			return err
		}
		action = domain.MergeQuerySet{QuerySet: qs}
	default:
		return fmt.Errorf("unknown restore mode %q", mode)
	}
	if _, err := s.Dispatch(ctx, action); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "snapshot restored", "mode", string(mode), "collections", len(snap))
	return nil
}

func sameCache(a, b domain.EntityCache) bool {
	if len(a) != len(b) {
		return false
	}
	for name, c := range a {
		other, ok := b[name]
		if !ok || other != c {
			return false
		}
	}
	return true
}

func sortedListenerIDs(listeners map[uint64]Listener) []uint64 {
	ids := make([]uint64, 0, len(listeners))
	for id := range listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
