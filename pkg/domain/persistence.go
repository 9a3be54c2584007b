package domain

import (
	"context"
	"encoding/json"
)

// QueryParams filters a data service query. Keys name top-level entity
// fields; values are compared against the field's string form.
type QueryParams map[string]string

// DataService fetches and persists entities of one type on behalf of the
// cache. Implementations own transport, storage format and retries.
type DataService[T any] interface {
	Name() string
	GetAll(ctx context.Context) ([]T, error)
	GetByID(ctx context.Context, id ID) (T, error)
	GetWithQuery(ctx context.Context, params QueryParams) ([]T, error)
	Add(ctx context.Context, entity T) (T, error)
	Update(ctx context.Context, entity T) (T, error)
	Upsert(ctx context.Context, entity T) (T, error)
	Delete(ctx context.Context, id ID) error
}

// Snapshot is the serialisable form of an EntityCache: one JSON bucket per
// entity type, keyed by entity type name.
type Snapshot map[string]json.RawMessage

// Clone deep-copies the snapshot buckets.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// SnapshotStore persists cache snapshots. SaveSnapshot replaces the stored
// snapshot exactly: buckets missing from s are removed.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, s Snapshot) error
	LoadSnapshot(ctx context.Context) (Snapshot, error)
	Close() error
}
