package domain

import "strings"

// EntityOp names an operation applied to a single entity collection.
type EntityOp string

// Closed set of collection operations. Request ops (query-*, save-*) only
// flip loading state; their /success and /error counterparts carry results.
const (
	OpAddOne     EntityOp = "add-one"
	OpAddMany    EntityOp = "add-many"
	OpUpdateOne  EntityOp = "update-one"
	OpUpdateMany EntityOp = "update-many"
	OpUpsertOne  EntityOp = "upsert-one"
	OpUpsertMany EntityOp = "upsert-many"
	OpDeleteOne  EntityOp = "delete-one"
	OpDeleteMany EntityOp = "delete-many"
	OpRemoveAll  EntityOp = "remove-all"

	OpQueryAll          EntityOp = "query-all"
	OpQueryAllSuccess   EntityOp = "query-all/success"
	OpQueryByKey        EntityOp = "query-by-key"
	OpQueryByKeySuccess EntityOp = "query-by-key/success"
	OpQueryMany         EntityOp = "query-many"
	OpQueryManySuccess  EntityOp = "query-many/success"

	OpSaveAddOne           EntityOp = "save-add-one"
	OpSaveAddOneSuccess    EntityOp = "save-add-one/success"
	OpSaveUpdateOne        EntityOp = "save-update-one"
	OpSaveUpdateOneSuccess EntityOp = "save-update-one/success"
	OpSaveUpsertOne        EntityOp = "save-upsert-one"
	OpSaveUpsertOneSuccess EntityOp = "save-upsert-one/success"
	OpSaveDeleteOne        EntityOp = "save-delete-one"
	OpSaveDeleteOneSuccess EntityOp = "save-delete-one/success"

	OpSetFilter  EntityOp = "set-filter"
	OpSetLoaded  EntityOp = "set-loaded"
	OpSetLoading EntityOp = "set-loading"
)

const (
	successSuffix = "/success"
	errorSuffix   = "/error"
)

// Success returns the success counterpart of a request op.
func (op EntityOp) Success() EntityOp { return EntityOp(string(op.Base()) + successSuffix) }

// Error returns the error counterpart of a request op.
func (op EntityOp) Error() EntityOp { return EntityOp(string(op.Base()) + errorSuffix) }

// Base strips a /success or /error suffix.
func (op EntityOp) Base() EntityOp {
	s := string(op)
	s = strings.TrimSuffix(s, successSuffix)
	s = strings.TrimSuffix(s, errorSuffix)
	return EntityOp(s)
}

// IsError reports whether op is an /error outcome.
func (op EntityOp) IsError() bool { return strings.HasSuffix(string(op), errorSuffix) }

// Operation is a single well-typed mutation request for one collection. The
// set of implementations is closed; each variant carries exactly the payload
// its op needs.
type Operation interface {
	Op() EntityOp
	operation()
}

type (
	// AddOne inserts one entity. An existing id is overwritten in place.
	AddOne[T any] struct{ Entity T }
	// AddMany applies AddOne for each entity in order.
	AddMany[T any] struct{ Entities []T }
	// UpdateOne merges or replaces an existing entity; absent ids are ignored.
	UpdateOne[T any] struct{ Entity T }
	// UpdateMany applies UpdateOne for each entity in order.
	UpdateMany[T any] struct{ Entities []T }
	// UpsertOne updates the entity if present, otherwise adds it.
	UpsertOne[T any] struct{ Entity T }
	// UpsertMany applies UpsertOne for each entity in order.
	UpsertMany[T any] struct{ Entities []T }
	// DeleteOne removes one entity; absent ids are ignored.
	DeleteOne struct{ ID ID }
	// DeleteMany removes each listed id.
	DeleteMany struct{ IDs []ID }
	// RemoveAll empties the collection.
	RemoveAll struct{}

	// QueryAll marks the collection as loading while all entities are fetched.
	QueryAll struct{}
	// QueryAllSuccess replaces the collection contents with the fetched entities.
	QueryAllSuccess[T any] struct{ Entities []T }
	// QueryByKey marks the collection as loading while one entity is fetched.
	QueryByKey struct{ ID ID }
	// QueryByKeySuccess upserts the fetched entity.
	QueryByKeySuccess[T any] struct{ Entity T }
	// QueryMany marks the collection as loading while a subset is fetched.
	QueryMany struct{ Params QueryParams }
	// QueryManySuccess merges the fetched subset into the collection.
	QueryManySuccess[T any] struct{ Entities []T }

	// SaveAddOne marks the collection as loading while an add is persisted.
	SaveAddOne[T any] struct{ Entity T }
	// SaveAddOneSuccess adds the entity returned by the data service.
	SaveAddOneSuccess[T any] struct{ Entity T }
	// SaveUpdateOne marks the collection as loading while an update is persisted.
	SaveUpdateOne[T any] struct{ Entity T }
	// SaveUpdateOneSuccess applies the persisted update.
	SaveUpdateOneSuccess[T any] struct{ Entity T }
	// SaveUpsertOne marks the collection as loading while an upsert is persisted.
	SaveUpsertOne[T any] struct{ Entity T }
	// SaveUpsertOneSuccess applies the persisted upsert.
	SaveUpsertOneSuccess[T any] struct{ Entity T }
	// SaveDeleteOne marks the collection as loading while a delete is persisted.
	SaveDeleteOne struct{ ID ID }
	// SaveDeleteOneSuccess removes the deleted entity.
	SaveDeleteOneSuccess struct{ ID ID }

	// OpError reports that the request op Failed did not complete. It only
	// clears the loading flag.
	OpError struct {
		Failed EntityOp
		Err    error
	}

	// SetFilter stores a filter pattern used by filtered selectors.
	SetFilter struct{ Pattern string }
	// SetLoaded sets the loaded flag.
	SetLoaded struct{ Loaded bool }
	// SetLoading sets the loading flag.
	SetLoading struct{ Loading bool }
)

func (AddOne[T]) Op() EntityOp               { return OpAddOne }
func (AddMany[T]) Op() EntityOp              { return OpAddMany }
func (UpdateOne[T]) Op() EntityOp            { return OpUpdateOne }
func (UpdateMany[T]) Op() EntityOp           { return OpUpdateMany }
func (UpsertOne[T]) Op() EntityOp            { return OpUpsertOne }
func (UpsertMany[T]) Op() EntityOp           { return OpUpsertMany }
func (DeleteOne) Op() EntityOp               { return OpDeleteOne }
func (DeleteMany) Op() EntityOp              { return OpDeleteMany }
func (RemoveAll) Op() EntityOp               { return OpRemoveAll }
func (QueryAll) Op() EntityOp                { return OpQueryAll }
func (QueryAllSuccess[T]) Op() EntityOp      { return OpQueryAllSuccess }
func (QueryByKey) Op() EntityOp              { return OpQueryByKey }
func (QueryByKeySuccess[T]) Op() EntityOp    { return OpQueryByKeySuccess }
func (QueryMany) Op() EntityOp               { return OpQueryMany }
func (QueryManySuccess[T]) Op() EntityOp     { return OpQueryManySuccess }
func (SaveAddOne[T]) Op() EntityOp           { return OpSaveAddOne }
func (SaveAddOneSuccess[T]) Op() EntityOp    { return OpSaveAddOneSuccess }
func (SaveUpdateOne[T]) Op() EntityOp        { return OpSaveUpdateOne }
func (SaveUpdateOneSuccess[T]) Op() EntityOp { return OpSaveUpdateOneSuccess }
func (SaveUpsertOne[T]) Op() EntityOp        { return OpSaveUpsertOne }
func (SaveUpsertOneSuccess[T]) Op() EntityOp { return OpSaveUpsertOneSuccess }
func (SaveDeleteOne) Op() EntityOp           { return OpSaveDeleteOne }
func (SaveDeleteOneSuccess) Op() EntityOp    { return OpSaveDeleteOneSuccess }
func (e OpError) Op() EntityOp               { return e.Failed.Error() }
func (SetFilter) Op() EntityOp               { return OpSetFilter }
func (SetLoaded) Op() EntityOp               { return OpSetLoaded }
func (SetLoading) Op() EntityOp              { return OpSetLoading }

func (AddOne[T]) operation()               {}
func (AddMany[T]) operation()              {}
func (UpdateOne[T]) operation()            {}
func (UpdateMany[T]) operation()           {}
func (UpsertOne[T]) operation()            {}
func (UpsertMany[T]) operation()           {}
func (DeleteOne) operation()               {}
func (DeleteMany) operation()              {}
func (RemoveAll) operation()               {}
func (QueryAll) operation()                {}
func (QueryAllSuccess[T]) operation()      {}
func (QueryByKey) operation()              {}
func (QueryByKeySuccess[T]) operation()    {}
func (QueryMany) operation()               {}
func (QueryManySuccess[T]) operation()     {}
func (SaveAddOne[T]) operation()           {}
func (SaveAddOneSuccess[T]) operation()    {}
func (SaveUpdateOne[T]) operation()        {}
func (SaveUpdateOneSuccess[T]) operation() {}
func (SaveUpsertOne[T]) operation()        {}
func (SaveUpsertOneSuccess[T]) operation() {}
func (SaveDeleteOne) operation()           {}
func (SaveDeleteOneSuccess) operation()    {}
func (OpError) operation()                 {}
func (SetFilter) operation()               {}
func (SetLoaded) operation()               {}
func (SetLoading) operation()              {}
