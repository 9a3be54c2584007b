package domain

import "fmt"

// Action is any input accepted by the cache reducer.
type Action interface {
	Type() string
}

// Action type names for the cache-wide actions.
const (
	ActionSetEntityCache    = "entity-cache/set"
	ActionMergeQuerySet     = "entity-cache/merge-query-set"
	ActionLoadCollections   = "entity-cache/load-collections"
	ActionClearCollections  = "entity-cache/clear-collections"
	entityActionTypePattern = "[%s] %s"
)

// EntityAction targets a single collection.
type EntityAction struct {
	EntityName    string
	Payload       Operation
	CorrelationID string
	Tag           string
}

// NewEntityAction builds an entity-scoped action.
func NewEntityAction(entityName string, op Operation) EntityAction {
	return EntityAction{EntityName: entityName, Payload: op}
}

// Op returns the operation kind, or "" when the payload is missing.
func (a EntityAction) Op() EntityOp {
	if a.Payload == nil {
		return ""
	}
	return a.Payload.Op()
}

// Type renders the action as "[Hero] add-one".
func (a EntityAction) Type() string {
	name := a.Tag
	if name == "" {
		name = a.EntityName
	}
	return fmt.Sprintf(entityActionTypePattern, name, a.Op())
}

// EntityCacheQuerySet maps entity type names to query results. Each value is
// a []T for the named entity type (a []any holding T values is accepted too).
type EntityCacheQuerySet map[string]any

// SetEntityCache replaces the whole cache with the supplied collections.
type SetEntityCache struct {
	Cache EntityCache
}

// Type implements Action.
func (SetEntityCache) Type() string { return ActionSetEntityCache }

// MergeQuerySet merges each query result into its collection, leaving entity
// types absent from the query set untouched.
type MergeQuerySet struct {
	QuerySet EntityCacheQuerySet
}

// Type implements Action.
func (MergeQuerySet) Type() string { return ActionMergeQuerySet }

// LoadCollections replaces each named collection with its query result.
type LoadCollections struct {
	QuerySet EntityCacheQuerySet
}

// Type implements Action.
func (LoadCollections) Type() string { return ActionLoadCollections }

// ClearCollections resets the named collections to empty ones. An empty list
// clears every collection currently in the cache.
type ClearCollections struct {
	EntityNames []string
}

// Type implements Action.
func (ClearCollections) Type() string { return ActionClearCollections }
