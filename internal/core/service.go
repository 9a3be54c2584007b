package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"entitycache/pkg/domain"
)

// EntityCollectionService is the typed facade for one entity type. Its
// persistence commands dispatch a request op, call the data service and then
// dispatch the matching success or error op; cache-only commands dispatch a
// single op. Selectors read the store's current state.
type EntityCollectionService[T any] struct {
	def    *Definition[T]
	store  *Store
	data   domain.DataService[T]
	logger *slog.Logger
	newID  func() string
}

// ServiceOption customises an EntityCollectionService.
type ServiceOption[T any] func(*EntityCollectionService[T])

// WithDataService attaches the data service used by persistence commands.
func WithDataService[T any](data domain.DataService[T]) ServiceOption[T] {
	return func(s *EntityCollectionService[T]) { s.data = data }
}

// WithServiceLogger sets the logger; it defaults to the store's.
func WithServiceLogger[T any](logger *slog.Logger) ServiceOption[T] {
	return func(s *EntityCollectionService[T]) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCorrelationIDs replaces the uuid-based correlation id generator.
func WithCorrelationIDs[T any](fn func() string) ServiceOption[T] {
	return func(s *EntityCollectionService[T]) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewEntityCollectionService binds def to store.
func NewEntityCollectionService[T any](store *Store, def *Definition[T], opts ...ServiceOption[T]) *EntityCollectionService[T] {
	s := &EntityCollectionService[T]{
		def:    def,
		store:  store,
		logger: store.logger,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EntityName returns the entity type this service manages.
func (s *EntityCollectionService[T]) EntityName() string { return s.def.name }

func (s *EntityCollectionService[T]) dispatch(ctx context.Context, op domain.Operation, correlationID string) error {
	_, err := s.store.Dispatch(ctx, domain.EntityAction{
		EntityName:    s.def.name,
		Payload:       op,
		CorrelationID: correlationID,
	})
	return err
}

// persist runs call between the request op and its outcome. The outcome op is
// built from call's result by success.
func persist[T, R any](ctx context.Context, s *EntityCollectionService[T], request domain.Operation, call func(context.Context) (R, error), success func(R) domain.Operation) (R, error) {
	var zero R
	if s.data == nil {
		return zero, fmt.Errorf("%s %s: %w", s.def.name, request.Op(), domain.ErrNoDataService)
	}
	cid := s.newID()
	if err := s.dispatch(ctx, request, cid); err != nil {
		return zero, err
	}
	result, err := call(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "data service call failed",
			"entity", s.def.name, "op", string(request.Op()), "correlation_id", cid, "error", err)
		if derr := s.dispatch(ctx, domain.OpError{Failed: request.Op(), Err: err}, cid); derr != nil {
			return zero, derr
		}
		return zero, err
	}
	if err := s.dispatch(ctx, success(result), cid); err != nil {
		return zero, err
	}
	return result, nil
}

// GetAll replaces the collection with every entity the data service holds.
func (s *EntityCollectionService[T]) GetAll(ctx context.Context) ([]T, error) {
	return persist(ctx, s, domain.QueryAll{}, s.dataGetAll, func(es []T) domain.Operation {
		return domain.QueryAllSuccess[T]{Entities: es}
	})
}

// GetByKey fetches one entity and upserts it.
func (s *EntityCollectionService[T]) GetByKey(ctx context.Context, id domain.ID) (T, error) {
	return persist(ctx, s, domain.QueryByKey{ID: id}, func(ctx context.Context) (T, error) {
		return s.data.GetByID(ctx, id)
	}, func(e T) domain.Operation { return domain.QueryByKeySuccess[T]{Entity: e} })
}

// GetWithQuery fetches a subset and merges it into the collection.
func (s *EntityCollectionService[T]) GetWithQuery(ctx context.Context, params domain.QueryParams) ([]T, error) {
	return persist(ctx, s, domain.QueryMany{Params: params}, func(ctx context.Context) ([]T, error) {
		return s.data.GetWithQuery(ctx, params)
	}, func(es []T) domain.Operation { return domain.QueryManySuccess[T]{Entities: es} })
}

// Add persists a new entity and adds the saved form to the collection.
func (s *EntityCollectionService[T]) Add(ctx context.Context, entity T) (T, error) {
	return persist(ctx, s, domain.SaveAddOne[T]{Entity: entity}, func(ctx context.Context) (T, error) {
		return s.data.Add(ctx, entity)
	}, func(e T) domain.Operation { return domain.SaveAddOneSuccess[T]{Entity: e} })
}

// Update persists an update and applies the saved form.
func (s *EntityCollectionService[T]) Update(ctx context.Context, entity T) (T, error) {
	return persist(ctx, s, domain.SaveUpdateOne[T]{Entity: entity}, func(ctx context.Context) (T, error) {
		return s.data.Update(ctx, entity)
	}, func(e T) domain.Operation { return domain.SaveUpdateOneSuccess[T]{Entity: e} })
}

// Upsert persists an upsert and applies the saved form.
func (s *EntityCollectionService[T]) Upsert(ctx context.Context, entity T) (T, error) {
	return persist(ctx, s, domain.SaveUpsertOne[T]{Entity: entity}, func(ctx context.Context) (T, error) {
		return s.data.Upsert(ctx, entity)
	}, func(e T) domain.Operation { return domain.SaveUpsertOneSuccess[T]{Entity: e} })
}

// Delete removes an entity from the data service and then from the collection.
func (s *EntityCollectionService[T]) Delete(ctx context.Context, id domain.ID) error {
	_, err := persist(ctx, s, domain.SaveDeleteOne{ID: id}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.data.Delete(ctx, id)
	}, func(struct{}) domain.Operation { return domain.SaveDeleteOneSuccess{ID: id} })
	return err
}

func (s *EntityCollectionService[T]) dataGetAll(ctx context.Context) ([]T, error) {
	return s.data.GetAll(ctx)
}

// AddOneToCache adds an entity without persisting it.
func (s *EntityCollectionService[T]) AddOneToCache(ctx context.Context, entity T) error {
	return s.dispatch(ctx, domain.AddOne[T]{Entity: entity}, "")
}

// AddManyToCache adds entities without persisting them.
func (s *EntityCollectionService[T]) AddManyToCache(ctx context.Context, entities []T) error {
	return s.dispatch(ctx, domain.AddMany[T]{Entities: entities}, "")
}

// UpdateOneInCache updates an entity in the cache only.
func (s *EntityCollectionService[T]) UpdateOneInCache(ctx context.Context, entity T) error {
	return s.dispatch(ctx, domain.UpdateOne[T]{Entity: entity}, "")
}

// UpsertOneInCache upserts an entity in the cache only.
func (s *EntityCollectionService[T]) UpsertOneInCache(ctx context.Context, entity T) error {
	return s.dispatch(ctx, domain.UpsertOne[T]{Entity: entity}, "")
}

// RemoveOneFromCache removes an entity from the cache only.
func (s *EntityCollectionService[T]) RemoveOneFromCache(ctx context.Context, id domain.ID) error {
	return s.dispatch(ctx, domain.DeleteOne{ID: id}, "")
}

// RemoveManyFromCache removes entities from the cache only.
func (s *EntityCollectionService[T]) RemoveManyFromCache(ctx context.Context, ids []domain.ID) error {
	return s.dispatch(ctx, domain.DeleteMany{IDs: ids}, "")
}

// ClearCache empties the collection.
func (s *EntityCollectionService[T]) ClearCache(ctx context.Context) error {
	return s.dispatch(ctx, domain.RemoveAll{}, "")
}

// SetFilter stores the pattern used by FilteredEntities.
func (s *EntityCollectionService[T]) SetFilter(ctx context.Context, pattern string) error {
	return s.dispatch(ctx, domain.SetFilter{Pattern: pattern}, "")
}

// SetLoaded sets the loaded flag.
func (s *EntityCollectionService[T]) SetLoaded(ctx context.Context, loaded bool) error {
	return s.dispatch(ctx, domain.SetLoaded{Loaded: loaded}, "")
}

// SetLoading sets the loading flag.
func (s *EntityCollectionService[T]) SetLoading(ctx context.Context, loading bool) error {
	return s.dispatch(ctx, domain.SetLoading{Loading: loading}, "")
}

// Collection returns the current collection, or an empty one when the entity
// type has not been touched yet.
func (s *EntityCollectionService[T]) Collection() *domain.EntityCollection[T] {
	if c, ok := domain.CollectionOf[T](s.store.State(), s.def.name); ok {
		return c
	}
	return domain.NewEntityCollection[T](s.def.name)
}

// Entities returns the entities in id order.
func (s *EntityCollectionService[T]) Entities() []T { return s.Collection().Values() }

// Get returns the cached entity with id.
func (s *EntityCollectionService[T]) Get(id domain.ID) (T, bool) { return s.Collection().Get(id) }

// FilteredEntities applies the definition's filter with the stored pattern.
func (s *EntityCollectionService[T]) FilteredEntities() []T {
	c := s.Collection()
	return s.def.Filter(c.Values(), c.Filter)
}

// Count returns the number of cached entities.
func (s *EntityCollectionService[T]) Count() int { return s.Collection().Len() }

// Loaded reports whether a full query has completed.
func (s *EntityCollectionService[T]) Loaded() bool { return s.Collection().Loaded }

// Loading reports whether a request is in flight.
func (s *EntityCollectionService[T]) Loading() bool { return s.Collection().Loading }
