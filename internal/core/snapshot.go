package core

import (
	"encoding/json"
	"fmt"

	"entitycache/pkg/domain"
)

// SnapshotCodec converts between an EntityCache and its serialisable
// Snapshot using the registered definitions.
type SnapshotCodec struct {
	definitions *DefinitionService
}

// NewSnapshotCodec returns a codec backed by definitions.
func NewSnapshotCodec(definitions *DefinitionService) *SnapshotCodec {
	return &SnapshotCodec{definitions: definitions}
}

// Encode serialises every collection of cache into its own bucket.
func (c *SnapshotCodec) Encode(cache domain.EntityCache) (domain.Snapshot, error) {
	snap := make(domain.Snapshot, len(cache))
	for name, coll := range cache {
		if coll == nil {
			continue
		}
		data, err := json.Marshal(coll)
		if err != nil {
			return nil, fmt.Errorf("encode bucket %q: %w", name, err)
		}
		snap[name] = data
	}
	return snap, nil
}

// DecodeCache rebuilds an EntityCache from snap. Every bucket must belong to
// a registered entity type.
func (c *SnapshotCodec) DecodeCache(snap domain.Snapshot) (domain.EntityCache, error) {
	cache := make(domain.EntityCache, len(snap))
	for name, data := range snap {
		def, err := c.definitions.Definition(name)
		if err != nil {
			return nil, fmt.Errorf("decode bucket %q: %w", name, err)
		}
		coll, err := def.DecodeCollection(data)
		if err != nil {
			return nil, fmt.Errorf("decode bucket %q: %w", name, err)
		}
		cache[name] = coll
	}
	return cache, nil
}

// DecodeQuerySet reads snap as a query set. A bucket may hold an encoded
// collection or a plain JSON array of entities.
func (c *SnapshotCodec) DecodeQuerySet(snap domain.Snapshot) (domain.EntityCacheQuerySet, error) {
	qs := make(domain.EntityCacheQuerySet, len(snap))
	for name, data := range snap {
		def, err := c.definitions.Definition(name)
		if err != nil {
			return nil, fmt.Errorf("decode bucket %q: %w", name, err)
		}
		entities, err := def.DecodeEntities(data)
		if err != nil {
			return nil, fmt.Errorf("decode bucket %q: %w", name, err)
		}
		qs[name] = entities
	}
	return qs, nil
}
