package core

import (
	"fmt"
	"maps"
	"sort"

	"entitycache/pkg/domain"
)

// ReducerFunc is the plain function form of the cache reducer.
type ReducerFunc func(cache domain.EntityCache, action domain.Action) (domain.EntityCache, error)

// CacheReducer applies actions to a whole EntityCache. It routes entity
// actions to the collection reducer of their entity type and handles the
// cache-wide actions itself. It holds no state besides its registries and is
// safe for concurrent use.
type CacheReducer struct {
	definitions *DefinitionService
	registry    *ReducerRegistry
	creator     *CollectionCreator
}

// NewCacheReducer builds a cache reducer over definitions.
func NewCacheReducer(definitions *DefinitionService) *CacheReducer {
	return &CacheReducer{
		definitions: definitions,
		registry:    NewReducerRegistry(definitions),
		creator:     NewCollectionCreator(definitions),
	}
}

// Definitions returns the metadata registry.
func (r *CacheReducer) Definitions() *DefinitionService { return r.definitions }

// Registry returns the collection reducer registry, for installing custom
// reducers.
func (r *CacheReducer) Registry() *ReducerRegistry { return r.registry }

// Reducer returns Reduce as a ReducerFunc.
func (r *CacheReducer) Reducer() ReducerFunc { return r.Reduce }

// Reduce returns the cache that results from applying action to cache. cache
// is never modified. Entity actions replace a single key of a copied map;
// every other collection keeps its reference. Actions of unrecognized types
// leave the cache as is.
func (r *CacheReducer) Reduce(cache domain.EntityCache, action domain.Action) (domain.EntityCache, error) {
	switch a := action.(type) {
	case domain.EntityAction:
		return r.reduceEntityAction(cache, a)
	case *domain.EntityAction:
		if a == nil {
			return cache, nil
		}
		return r.reduceEntityAction(cache, *a)
	case domain.SetEntityCache:
		return setEntityCache(a.Cache), nil
	case domain.MergeQuerySet:
		return r.applyQuerySet(cache, a.QuerySet, domain.OpQueryManySuccess)
	case domain.LoadCollections:
		return r.applyQuerySet(cache, a.QuerySet, domain.OpQueryAllSuccess)
	case domain.ClearCollections:
		return r.clearCollections(cache, a.EntityNames)
	default:
		return cache, nil
	}
}

func (r *CacheReducer) reduceEntityAction(cache domain.EntityCache, a domain.EntityAction) (domain.EntityCache, error) {
	reducer, err := r.registry.Reducer(a.EntityName)
	if err != nil {
		return nil, err
	}
	current, existed := cache[a.EntityName]
	if !existed {
		if current, err = r.creator.Create(a.EntityName); err != nil {
			return nil, err
		}
	}
	next, err := reducer.Reduce(current, a.Payload)
	if err != nil {
		return nil, err
	}
	if existed && next == current {
		return cache, nil
	}
	out := make(domain.EntityCache, len(cache)+1)
	maps.Copy(out, cache)
	out[a.EntityName] = next
	return out, nil
}

// setEntityCache copies the payload map so later writes to the caller's map do
// not leak into the state. Collections are shared.
func setEntityCache(payload domain.EntityCache) domain.EntityCache {
	out := make(domain.EntityCache, len(payload))
	for name, c := range payload {
		if c != nil {
			out[name] = c
		}
	}
	return out
}

// applyQuerySet feeds each query result through the named collection's
// reducer as a query success op. Entity types missing from the query set keep
// their collection untouched.
func (r *CacheReducer) applyQuerySet(cache domain.EntityCache, qs domain.EntityCacheQuerySet, op domain.EntityOp) (domain.EntityCache, error) {
	if len(qs) == 0 {
		if cache == nil {
			return domain.EntityCache{}, nil
		}
		return cache, nil
	}
	names := make([]string, 0, len(qs))
	for name := range qs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(domain.EntityCache, len(cache)+len(qs))
	maps.Copy(out, cache)
	for _, name := range names {
		def, err := r.definitions.Definition(name)
		if err != nil {
			return nil, err
		}
		reducer, err := r.registry.Reducer(name)
		if err != nil {
			return nil, err
		}
		payload, err := def.QueryResult(op, qs[name])
		if err != nil {
			return nil, err
		}
		current, ok := out[name]
		if !ok {
			if current, err = r.creator.Create(name); err != nil {
				return nil, err
			}
		}
		next, err := reducer.Reduce(current, payload)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", name, op, err)
		}
		out[name] = next
	}
	return out, nil
}

func (r *CacheReducer) clearCollections(cache domain.EntityCache, names []string) (domain.EntityCache, error) {
	if len(names) == 0 {
		names = cache.Names()
	}
	out := make(domain.EntityCache, len(cache)+len(names))
	maps.Copy(out, cache)
	for _, name := range names {
		c, err := r.creator.Create(name)
		if err != nil {
			return nil, err
		}
		out[name] = c
	}
	return out, nil
}
