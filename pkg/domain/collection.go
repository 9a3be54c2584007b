package domain

import (
	"encoding/json"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sort"
)

// Collection is the type-erased view of an entity collection. Every
// *EntityCollection[T] satisfies it so collections of different entity types
// can share one EntityCache.
type Collection interface {
	EntityName() string
	Len() int
	Keys() []ID
	Has(id ID) bool
	Lookup(id ID) (any, bool)
	IsLoaded() bool
	IsLoading() bool
	FilterPattern() string
}

var _ Collection = (*EntityCollection[Record])(nil)

// EntityCollection is the normalized store for one entity type: ordered ids
// plus an id-to-entity map. IDs and the keys of Entities correspond 1:1.
//
// Collections are immutable by convention. Reducers copy on write and never
// modify a collection they received, so callers must not modify one either.
type EntityCollection[T any] struct {
	Name     string
	IDs      []ID
	Entities map[ID]T
	Filter   string
	Loaded   bool
	Loading  bool
}

// NewEntityCollection returns an empty collection for the named entity type.
func NewEntityCollection[T any](name string) *EntityCollection[T] {
	return &EntityCollection[T]{
		Name:     name,
		IDs:      []ID{},
		Entities: map[ID]T{},
	}
}

// EntityName returns the entity type name.
func (c *EntityCollection[T]) EntityName() string {
	if c == nil {
		return ""
	}
	return c.Name
}

// Len returns the number of entities.
func (c *EntityCollection[T]) Len() int {
	if c == nil {
		return 0
	}
	return len(c.IDs)
}

// Keys returns a copy of the ordered ids.
func (c *EntityCollection[T]) Keys() []ID {
	if c == nil {
		return nil
	}
	return slices.Clone(c.IDs)
}

// Has reports whether id is present.
func (c *EntityCollection[T]) Has(id ID) bool {
	if c == nil {
		return false
	}
	_, ok := c.Entities[id]
	return ok
}

// Get returns the entity stored at id.
func (c *EntityCollection[T]) Get(id ID) (T, bool) {
	if c == nil {
		var zero T
		return zero, false
	}
	e, ok := c.Entities[id]
	return e, ok
}

// Lookup implements Collection.
func (c *EntityCollection[T]) Lookup(id ID) (any, bool) {
	e, ok := c.Get(id)
	if !ok {
		return nil, false
	}
	return e, true
}

// IsLoaded implements Collection.
func (c *EntityCollection[T]) IsLoaded() bool { return c != nil && c.Loaded }

// IsLoading implements Collection.
func (c *EntityCollection[T]) IsLoading() bool { return c != nil && c.Loading }

// FilterPattern implements Collection.
func (c *EntityCollection[T]) FilterPattern() string {
	if c == nil {
		return ""
	}
	return c.Filter
}

// All iterates entities in id order.
func (c *EntityCollection[T]) All() iter.Seq2[ID, T] {
	return func(yield func(ID, T) bool) {
		if c == nil {
			return
		}
		for _, id := range c.IDs {
			if !yield(id, c.Entities[id]) {
				return
			}
		}
	}
}

// Values returns the entities in id order.
func (c *EntityCollection[T]) Values() []T {
	if c == nil {
		return nil
	}
	out := make([]T, 0, len(c.IDs))
	for _, id := range c.IDs {
		out = append(out, c.Entities[id])
	}
	return out
}

// Clone returns a shallow copy whose ids slice and entity map may be modified
// without affecting c. Entities themselves are shared.
func (c *EntityCollection[T]) Clone() *EntityCollection[T] {
	cp := *c
	cp.IDs = slices.Clone(c.IDs)
	if cp.IDs == nil {
		cp.IDs = []ID{}
	}
	cp.Entities = maps.Clone(c.Entities)
	if cp.Entities == nil {
		cp.Entities = map[ID]T{}
	}
	return &cp
}

type collectionJSON[E any] struct {
	EntityName string       `json:"entityName"`
	IDs        []ID         `json:"ids"`
	Entities   map[string]E `json:"entities"`
	Filter     string       `json:"filter,omitempty"`
	Loaded     bool         `json:"loaded"`
	Loading    bool         `json:"loading"`
}

// MarshalJSON encodes the collection with entities keyed by the string form
// of their id. A collection mixing a string id and an int id with the same
// string form cannot be encoded.
func (c *EntityCollection[T]) MarshalJSON() ([]byte, error) {
	out := collectionJSON[T]{
		EntityName: c.Name,
		IDs:        c.IDs,
		Entities:   make(map[string]T, len(c.Entities)),
		Filter:     c.Filter,
		Loaded:     c.Loaded,
		Loading:    c.Loading,
	}
	if out.IDs == nil {
		out.IDs = []ID{}
	}
	keys := make(map[string]struct{}, len(c.Entities))
	for id, e := range c.Entities {
		key := id.String()
		if _, ok := keys[key]; ok {
			return nil, fmt.Errorf("collection %q: string and int ids %s share a JSON key", c.Name, key)
		}
		keys[key] = struct{}{}
		out.Entities[key] = e
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a collection and verifies the id/entity correspondence.
func (c *EntityCollection[T]) UnmarshalJSON(data []byte) error {
	var raw collectionJSON[json.RawMessage]
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Entities) != len(raw.IDs) {
		return fmt.Errorf("collection %q: %d ids but %d entities", raw.EntityName, len(raw.IDs), len(raw.Entities))
	}
	decoded := &EntityCollection[T]{
		Name:     raw.EntityName,
		IDs:      make([]ID, 0, len(raw.IDs)),
		Entities: make(map[ID]T, len(raw.IDs)),
		Filter:   raw.Filter,
		Loaded:   raw.Loaded,
		Loading:  raw.Loading,
	}
	for _, id := range raw.IDs {
		if _, dup := decoded.Entities[id]; dup {
			return fmt.Errorf("collection %q: duplicate id %s", raw.EntityName, id)
		}
		payload, ok := raw.Entities[id.String()]
		if !ok {
			return fmt.Errorf("collection %q: no entity for id %s", raw.EntityName, id)
		}
		var e T
		if err := json.Unmarshal(payload, &e); err != nil {
			return fmt.Errorf("collection %q: decode entity %s: %w", raw.EntityName, id, err)
		}
		decoded.IDs = append(decoded.IDs, id)
		decoded.Entities[id] = e
	}
	*c = *decoded
	return nil
}

// EntityCache maps entity type names to their collections. A missing key
// means the collection has not been created yet, which is distinct from an
// empty collection.
type EntityCache map[string]Collection

// Names returns the entity type names present in the cache, sorted.
func (c EntityCache) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// As narrows a type-erased collection to its concrete entity type.
func As[T any](c Collection) (*EntityCollection[T], bool) {
	typed, ok := c.(*EntityCollection[T])
	return typed, ok && typed != nil
}

// CollectionOf returns the typed collection stored under name.
func CollectionOf[T any](cache EntityCache, name string) (*EntityCollection[T], bool) {
	c, ok := cache[name]
	if !ok {
		return nil, false
	}
	return As[T](c)
}
