package dataservice

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"entitycache/internal/core"
	"entitycache/pkg/domain"
)

var _ domain.DataService[domain.Record] = (*Memory[domain.Record])(nil)

// Memory is an in-process data service. Entities keep insertion order.
type Memory[T any] struct {
	def    *core.Definition[T]
	assign IDAssigner[T]

	mu       sync.RWMutex
	ids      []domain.ID
	entities map[domain.ID]T
}

// MemoryOption customises a Memory data service.
type MemoryOption[T any] func(*Memory[T])

// WithMemoryIDs assigns generated integer ids to entities added without one.
func WithMemoryIDs[T any](assign IDAssigner[T]) MemoryOption[T] {
	return func(m *Memory[T]) { m.assign = assign }
}

// WithSeed preloads entities.
func WithSeed[T any](entities ...T) MemoryOption[T] {
	return func(m *Memory[T]) {
		for _, e := range entities {
			id := m.def.ID(e)
			if _, ok := m.entities[id]; !ok {
				m.ids = append(m.ids, id)
			}
			m.entities[id] = e
		}
	}
}

// NewMemory returns an empty data service for def's entity type.
func NewMemory[T any](def *core.Definition[T], opts ...MemoryOption[T]) *Memory[T] {
	m := &Memory[T]{def: def, entities: make(map[domain.ID]T)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name implements domain.DataService.
func (m *Memory[T]) Name() string { return "memory:" + m.def.EntityName() }

// GetAll implements domain.DataService.
func (m *Memory[T]) GetAll(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]T, 0, len(m.ids))
	for _, id := range m.ids {
		out = append(out, m.entities[id])
	}
	return out, nil
}

// GetByID implements domain.DataService.
func (m *Memory[T]) GetByID(ctx context.Context, id domain.ID) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[id]
	if !ok {
		return zero, m.notFound(id)
	}
	return e, nil
}

// GetWithQuery implements domain.DataService.
func (m *Memory[T]) GetWithQuery(ctx context.Context, params domain.QueryParams) ([]T, error) {
	all, err := m.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return filter(all, params)
}

// Add implements domain.DataService.
func (m *Memory[T]) Add(ctx context.Context, entity T) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.def.ID(entity)
	if unassigned(id) {
		if m.assign == nil {
			return zero, fmt.Errorf("%s: entity has no id", m.def.EntityName())
		}
		id = nextID(m.ids)
		entity = m.assign(entity, id)
	}
	if _, ok := m.entities[id]; ok {
		return zero, fmt.Errorf("%s %s: %w", m.def.EntityName(), id, ErrDuplicateID)
	}
	m.ids = append(m.ids, id)
	m.entities[id] = entity
	return entity, nil
}

// Update implements domain.DataService. The stored entity is merged with
// entity using the definition's merge function.
func (m *Memory[T]) Update(ctx context.Context, entity T) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.def.ID(entity)
	prev, ok := m.entities[id]
	if !ok {
		return zero, m.notFound(id)
	}
	merged := m.def.Merge(prev, entity)
	m.entities[id] = merged
	return merged, nil
}

// Upsert implements domain.DataService.
func (m *Memory[T]) Upsert(ctx context.Context, entity T) (T, error) {
	m.mu.RLock()
	_, exists := m.entities[m.def.ID(entity)]
	m.mu.RUnlock()
	if exists {
		return m.Update(ctx, entity)
	}
	return m.Add(ctx, entity)
}

// Delete implements domain.DataService.
func (m *Memory[T]) Delete(ctx context.Context, id domain.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[id]; !ok {
		return m.notFound(id)
	}
	delete(m.entities, id)
	m.ids = slices.DeleteFunc(m.ids, func(existing domain.ID) bool { return existing == id })
	return nil
}

func (m *Memory[T]) notFound(id domain.ID) error {
	return domain.NotFoundError{EntityName: m.def.EntityName(), ID: id}
}
