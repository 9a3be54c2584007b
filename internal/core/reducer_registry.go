package core

import "sync"

// ReducerRegistry hands out collection reducers by entity type name. Reducers
// are built on first use from the definition service and reused afterwards.
type ReducerRegistry struct {
	definitions *DefinitionService

	mu       sync.RWMutex
	reducers map[string]EntityCollectionReducer
}

// NewReducerRegistry returns a registry backed by definitions.
func NewReducerRegistry(definitions *DefinitionService) *ReducerRegistry {
	return &ReducerRegistry{
		definitions: definitions,
		reducers:    make(map[string]EntityCollectionReducer),
	}
}

// Reducer returns the reducer for name, building and caching it when needed.
// Unknown names fail with *domain.UnknownEntityTypeError.
func (r *ReducerRegistry) Reducer(name string) (EntityCollectionReducer, error) {
	r.mu.RLock()
	reducer, ok := r.reducers[name]
	r.mu.RUnlock()
	if ok {
		return reducer, nil
	}

	def, err := r.definitions.Definition(name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if reducer, ok := r.reducers[name]; ok {
		return reducer, nil
	}
	reducer = def.NewReducer()
	r.reducers[name] = reducer
	return reducer, nil
}

// RegisterReducer installs a custom reducer for name, replacing any cached one.
func (r *ReducerRegistry) RegisterReducer(name string, reducer EntityCollectionReducer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reducers[name] = reducer
}

// RegisterReducers installs several custom reducers.
func (r *ReducerRegistry) RegisterReducers(reducers map[string]EntityCollectionReducer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, reducer := range reducers {
		r.reducers[name] = reducer
	}
}
