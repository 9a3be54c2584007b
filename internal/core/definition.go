package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"entitycache/pkg/domain"
)

// IDSelector extracts the primary key of an entity.
type IDSelector[T any] func(T) domain.ID

// MergeFunc combines the stored entity with an update. A nil MergeFunc means
// the update replaces the stored entity.
type MergeFunc[T any] func(prev, next T) T

// FilterFunc narrows entities using the collection's filter pattern.
type FilterFunc[T any] func(entities []T, pattern string) []T

// EntityDefinition is the type-erased metadata for one entity type. It is
// implemented by *Definition[T] and is what registries and codecs work with.
type EntityDefinition interface {
	EntityName() string
	NewCollection() domain.Collection
	NewReducer() EntityCollectionReducer
	SelectID(entity any) (domain.ID, error)
	QueryResult(op domain.EntityOp, entities any) (domain.Operation, error)
	DecodeCollection(data []byte) (domain.Collection, error)
	DecodeEntities(data []byte) (any, error)
	DecodeOperation(op domain.EntityOp, data []byte) (domain.Operation, error)
}

// Definition describes one entity type: its name, how ids are selected and
// how updates and filters are applied.
type Definition[T any] struct {
	name     string
	selectID IDSelector[T]
	merge    MergeFunc[T]
	filter   FilterFunc[T]
}

var _ EntityDefinition = (*Definition[domain.Record])(nil)

// DefinitionOption customises a Definition.
type DefinitionOption[T any] func(*Definition[T])

// WithSelectID overrides the default id selector.
func WithSelectID[T any](fn IDSelector[T]) DefinitionOption[T] {
	return func(d *Definition[T]) { d.selectID = fn }
}

// WithMerge sets how update ops combine the stored entity with the payload.
func WithMerge[T any](fn MergeFunc[T]) DefinitionOption[T] {
	return func(d *Definition[T]) { d.merge = fn }
}

// WithFilter sets the function used by filtered selectors.
func WithFilter[T any](fn FilterFunc[T]) DefinitionOption[T] {
	return func(d *Definition[T]) { d.filter = fn }
}

// Define builds the metadata for entity type T registered under name. Without
// WithSelectID the id is discovered from T (see DefaultSelectID); Define
// panics when T offers no id.
func Define[T any](name string, opts ...DefinitionOption[T]) *Definition[T] {
	d := &Definition[T]{name: name}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if d.selectID == nil {
		d.selectID = DefaultSelectID[T]()
	}
	return d
}

// DefineRecord defines a schemaless entity type stored as domain.Record.
// Updates merge fields shallowly and the filter matches the "name" field.
func DefineRecord(name, idField string, opts ...DefinitionOption[domain.Record]) *Definition[domain.Record] {
	base := []DefinitionOption[domain.Record]{
		WithSelectID(RecordSelector(idField)),
		WithMerge(MergeRecords),
		WithFilter(RecordPropsFilter("name")),
	}
	return Define(name, append(base, opts...)...)
}

// EntityName returns the registered entity type name.
func (d *Definition[T]) EntityName() string { return d.name }

// ID selects the id of entity.
func (d *Definition[T]) ID(entity T) domain.ID { return d.selectID(entity) }

// Merge applies the configured merge function.
func (d *Definition[T]) Merge(prev, next T) T {
	if d.merge == nil {
		return next
	}
	return d.merge(prev, next)
}

// Filter applies the configured filter. Without a filter function or with an
// empty pattern entities are returned as is.
func (d *Definition[T]) Filter(entities []T, pattern string) []T {
	if d.filter == nil || pattern == "" {
		return entities
	}
	return d.filter(entities, pattern)
}

// NewCollection implements EntityDefinition.
func (d *Definition[T]) NewCollection() domain.Collection {
	return domain.NewEntityCollection[T](d.name)
}

// NewReducer implements EntityDefinition.
func (d *Definition[T]) NewReducer() EntityCollectionReducer {
	return NewCollectionReducer(d)
}

// Collection builds a collection holding entities in order with default
// bookkeeping. Later duplicates overwrite earlier ones in place.
func (d *Definition[T]) Collection(entities ...T) *domain.EntityCollection[T] {
	c := domain.NewEntityCollection[T](d.name)
	for _, e := range entities {
		id := d.selectID(e)
		if _, ok := c.Entities[id]; !ok {
			c.IDs = append(c.IDs, id)
		}
		c.Entities[id] = e
	}
	return c
}

// SelectID implements EntityDefinition.
func (d *Definition[T]) SelectID(entity any) (domain.ID, error) {
	e, ok := entity.(T)
	if !ok {
		return domain.ID{}, d.payloadError("", fmt.Sprintf("entity is %T, want %s", entity, typeName[T]()))
	}
	return d.selectID(e), nil
}

// QueryResult wraps entities (a []T or a []any of T) in the success variant
// of a query op.
func (d *Definition[T]) QueryResult(op domain.EntityOp, entities any) (domain.Operation, error) {
	typed, err := d.entitiesOf(op, entities)
	if err != nil {
		return nil, err
	}
	switch op {
	case domain.OpQueryAllSuccess:
		return domain.QueryAllSuccess[T]{Entities: typed}, nil
	case domain.OpQueryManySuccess:
		return domain.QueryManySuccess[T]{Entities: typed}, nil
	default:
		return nil, d.payloadError(op, "not a query result op")
	}
}

func (d *Definition[T]) entitiesOf(op domain.EntityOp, v any) ([]T, error) {
	switch list := v.(type) {
	case nil:
		return nil, nil
	case []T:
		return list, nil
	case *domain.EntityCollection[T]:
		return list.Values(), nil
	case []any:
		out := make([]T, 0, len(list))
		for i, item := range list {
			e, ok := item.(T)
			if !ok {
				return nil, d.payloadError(op, fmt.Sprintf("element %d is %T, want %s", i, item, typeName[T]()))
			}
			out = append(out, e)
		}
		return out, nil
	default:
		return nil, d.payloadError(op, fmt.Sprintf("query result is %T, want []%s", v, typeName[T]()))
	}
}

// DecodeCollection implements EntityDefinition. data may hold an encoded
// collection or a JSON array of entities, which is collected in payload order.
// The decoded collection is renamed to the definition's entity name.
func (d *Definition[T]) DecodeCollection(data []byte) (domain.Collection, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var entities []T
		if err := json.Unmarshal(trimmed, &entities); err != nil {
			return nil, fmt.Errorf("decode %s collection: %w", d.name, err)
		}
		for i, e := range entities {
			if d.selectID(e).IsZero() {
				return nil, fmt.Errorf("decode %s collection: entity %d has no id", d.name, i)
			}
		}
		return d.Collection(entities...), nil
	}
	var c domain.EntityCollection[T]
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode %s collection: %w", d.name, err)
	}
	c.Name = d.name
	for _, id := range c.IDs {
		if got := d.selectID(c.Entities[id]); got != id {
			return nil, fmt.Errorf("decode %s collection: entity stored at %s has id %s", d.name, id, got)
		}
	}
	return &c, nil
}

// DecodeEntities implements EntityDefinition. data may hold a JSON array of
// entities or an encoded collection; the result is a []T.
func (d *Definition[T]) DecodeEntities(data []byte) (any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		c, err := d.DecodeCollection(trimmed)
		if err != nil {
			return nil, err
		}
		return c.(*domain.EntityCollection[T]).Values(), nil
	}
	var out []T
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, fmt.Errorf("decode %s entities: %w", d.name, err)
	}
	return out, nil
}

func (d *Definition[T]) payloadError(op domain.EntityOp, reason string) *domain.PayloadError {
	return &domain.PayloadError{EntityName: d.name, Op: op, Reason: reason}
}

func typeName[T any]() string {
	return reflect.TypeFor[T]().String()
}

var identifiableType = reflect.TypeFor[domain.Identifiable]()

// DefaultSelectID resolves how ids are read from T, in order: T or *T
// implements domain.Identifiable; T is a map keyed by string ("id" entry); T
// is a struct (or pointer to one) with a field tagged json:"id" or named ID or
// Id. Interface types are resolved per value. It panics when T has no id.
func DefaultSelectID[T any]() IDSelector[T] {
	t := reflect.TypeFor[T]()
	switch {
	case t.Implements(identifiableType):
		return func(e T) domain.ID {
			if v, ok := any(e).(domain.Identifiable); ok {
				return v.EntityID()
			}
			return domain.ID{}
		}
	case t.Kind() != reflect.Pointer && reflect.PointerTo(t).Implements(identifiableType):
		return func(e T) domain.ID { return any(&e).(domain.Identifiable).EntityID() }
	case t.Kind() == reflect.Interface:
		return func(e T) domain.ID { return dynamicID(any(e)) }
	case t.Kind() == reflect.Map && t.Key().Kind() == reflect.String:
		return func(e T) domain.ID { return mapID(reflect.ValueOf(e), "id") }
	}
	st := t
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() == reflect.Struct {
		if index, ok := idFieldIndex(st); ok {
			return func(e T) domain.ID { return structID(reflect.ValueOf(e), index) }
		}
	}
	panic(fmt.Sprintf("entitycache: %s has no id; supply WithSelectID", t))
}

// RecordSelector reads the id of a domain.Record from field.
func RecordSelector(field string) IDSelector[domain.Record] {
	if field == "" {
		field = "id"
	}
	return func(r domain.Record) domain.ID {
		id, err := domain.IDOf(r[field])
		if err != nil {
			return domain.ID{}
		}
		return id
	}
}

// MergeRecords overlays the fields of next on a copy of prev.
func MergeRecords(prev, next domain.Record) domain.Record {
	out := make(domain.Record, len(prev)+len(next))
	for k, v := range prev {
		out[k] = v
	}
	for k, v := range next {
		out[k] = v
	}
	return out
}

// RecordPropsFilter matches records whose listed fields contain the pattern,
// ignoring case.
func RecordPropsFilter(props ...string) FilterFunc[domain.Record] {
	return func(entities []domain.Record, pattern string) []domain.Record {
		needle := strings.ToLower(pattern)
		out := make([]domain.Record, 0, len(entities))
		for _, r := range entities {
			for _, p := range props {
				s, ok := r[p].(string)
				if ok && strings.Contains(strings.ToLower(s), needle) {
					out = append(out, r)
					break
				}
			}
		}
		return out
	}
}

func dynamicID(v any) domain.ID {
	switch e := v.(type) {
	case nil:
		return domain.ID{}
	case domain.Identifiable:
		return e.EntityID()
	case map[string]any:
		id, _ := domain.IDOf(e["id"])
		return id
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		return mapID(rv, "id")
	}
	st := rv.Type()
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return domain.ID{}
	}
	index, ok := idFieldIndex(st)
	if !ok {
		return domain.ID{}
	}
	return structID(rv, index)
}

func mapID(m reflect.Value, key string) domain.ID {
	if !m.IsValid() || m.IsNil() {
		return domain.ID{}
	}
	v := m.MapIndex(reflect.ValueOf(key).Convert(m.Type().Key()))
	if !v.IsValid() {
		return domain.ID{}
	}
	id, _ := domain.IDOf(v.Interface())
	return id
}

func structID(v reflect.Value, index []int) domain.ID {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return domain.ID{}
		}
		v = v.Elem()
	}
	f, err := v.FieldByIndexErr(index)
	if err != nil {
		return domain.ID{}
	}
	id, _ := domain.IDOf(f.Interface())
	return id
}

func idFieldIndex(t reflect.Type) ([]int, bool) {
	var byName []int
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if tag == "id" {
			return f.Index, true
		}
		if byName == nil && tag == "" && (f.Name == "ID" || f.Name == "Id") {
			byName = f.Index
		}
	}
	return byName, byName != nil
}
