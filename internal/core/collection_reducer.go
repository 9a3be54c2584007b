package core

import (
	"fmt"
	"slices"

	"entitycache/pkg/domain"
)

// EntityCollectionReducer applies one operation to one type-erased collection.
// Implementations must not modify c and return c itself when nothing changed.
type EntityCollectionReducer interface {
	EntityName() string
	Reduce(c domain.Collection, op domain.Operation) (domain.Collection, error)
}

// CollectionReducer is the reducer for collections of T.
type CollectionReducer[T any] struct {
	def *Definition[T]
}

var _ EntityCollectionReducer = (*CollectionReducer[domain.Record])(nil)

// NewCollectionReducer returns the reducer for def's entity type.
func NewCollectionReducer[T any](def *Definition[T]) *CollectionReducer[T] {
	return &CollectionReducer[T]{def: def}
}

// EntityName implements EntityCollectionReducer.
func (r *CollectionReducer[T]) EntityName() string { return r.def.name }

// Reduce implements EntityCollectionReducer. A nil collection is treated as a
// fresh empty one.
func (r *CollectionReducer[T]) Reduce(c domain.Collection, op domain.Operation) (domain.Collection, error) {
	var typed *domain.EntityCollection[T]
	if c == nil {
		typed = domain.NewEntityCollection[T](r.def.name)
	} else {
		var ok bool
		typed, ok = domain.As[T](c)
		if !ok {
			return nil, r.def.payloadError(opOf(op), fmt.Sprintf("collection is %T, want *EntityCollection[%s]", c, typeName[T]()))
		}
	}
	next, err := r.ReduceCollection(typed, op)
	if err != nil {
		return nil, err
	}
	return next, nil
}

// ReduceCollection applies op to c. The result is c when op changes nothing;
// otherwise it is a new collection and c is left untouched.
func (r *CollectionReducer[T]) ReduceCollection(c *domain.EntityCollection[T], op domain.Operation) (*domain.EntityCollection[T], error) {
	if op == nil {
		return nil, r.def.payloadError("", "missing operation")
	}
	if c == nil {
		c = domain.NewEntityCollection[T](r.def.name)
	}
	m := &mutation[T]{def: r.def, op: op.Op(), src: c}
	var err error
	switch o := op.(type) {
	case domain.AddOne[T]:
		err = m.add(o.Entity)
	case domain.AddMany[T]:
		err = m.each(o.Entities, m.add)
	case domain.UpdateOne[T]:
		err = m.update(o.Entity)
	case domain.UpdateMany[T]:
		err = m.each(o.Entities, m.update)
	case domain.UpsertOne[T]:
		err = m.upsert(o.Entity)
	case domain.UpsertMany[T]:
		err = m.each(o.Entities, m.upsert)
	case domain.DeleteOne:
		m.delete(o.ID)
	case domain.DeleteMany:
		for _, id := range o.IDs {
			m.delete(id)
		}
	case domain.RemoveAll:
		m.removeAll()

	case domain.QueryAll, domain.QueryByKey, domain.QueryMany,
		domain.SaveAddOne[T], domain.SaveUpdateOne[T], domain.SaveUpsertOne[T], domain.SaveDeleteOne:
		m.setLoading(true)

	case domain.QueryAllSuccess[T]:
		err = m.replace(o.Entities)
		m.setLoaded(true)
		m.setLoading(false)
	case domain.QueryByKeySuccess[T]:
		err = m.upsert(o.Entity)
		m.setLoading(false)
	case domain.QueryManySuccess[T]:
		err = m.each(o.Entities, m.upsert)
		m.setLoaded(true)
		m.setLoading(false)
	case domain.SaveAddOneSuccess[T]:
		err = m.add(o.Entity)
		m.setLoading(false)
	case domain.SaveUpdateOneSuccess[T]:
		err = m.update(o.Entity)
		m.setLoading(false)
	case domain.SaveUpsertOneSuccess[T]:
		err = m.upsert(o.Entity)
		m.setLoading(false)
	case domain.SaveDeleteOneSuccess:
		m.delete(o.ID)
		m.setLoading(false)
	case domain.OpError:
		m.setLoading(false)

	case domain.SetFilter:
		if m.current().Filter != o.Pattern {
			m.write().Filter = o.Pattern
		}
	case domain.SetLoaded:
		m.setLoaded(o.Loaded)
	case domain.SetLoading:
		m.setLoading(o.Loading)
	default:
		err = r.def.payloadError(op.Op(), fmt.Sprintf("payload %T does not apply to %s", op, typeName[T]()))
	}
	if err != nil {
		return nil, err
	}
	return m.result(), nil
}

func opOf(op domain.Operation) domain.EntityOp {
	if op == nil {
		return ""
	}
	return op.Op()
}

// mutation copies the source collection on the first write and applies all
// further writes to that copy.
type mutation[T any] struct {
	def *Definition[T]
	op  domain.EntityOp
	src *domain.EntityCollection[T]
	dst *domain.EntityCollection[T]
}

func (m *mutation[T]) current() *domain.EntityCollection[T] {
	if m.dst != nil {
		return m.dst
	}
	return m.src
}

func (m *mutation[T]) write() *domain.EntityCollection[T] {
	if m.dst == nil {
		m.dst = m.src.Clone()
	}
	return m.dst
}

func (m *mutation[T]) result() *domain.EntityCollection[T] { return m.current() }

func (m *mutation[T]) each(entities []T, apply func(T) error) error {
	for _, e := range entities {
		if err := apply(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *mutation[T]) selectID(e T) (domain.ID, error) {
	id := m.def.selectID(e)
	if id.IsZero() {
		return id, m.def.payloadError(m.op, "entity has no id")
	}
	return id, nil
}

// add appends a new id or overwrites an existing entity in place.
func (m *mutation[T]) add(e T) error {
	id, err := m.selectID(e)
	if err != nil {
		return err
	}
	w := m.write()
	if _, ok := w.Entities[id]; !ok {
		w.IDs = append(w.IDs, id)
	}
	w.Entities[id] = e
	return nil
}

func (m *mutation[T]) update(e T) error {
	id, err := m.selectID(e)
	if err != nil {
		return err
	}
	prev, ok := m.current().Entities[id]
	if !ok {
		return nil
	}
	m.write().Entities[id] = m.def.Merge(prev, e)
	return nil
}

func (m *mutation[T]) upsert(e T) error {
	id, err := m.selectID(e)
	if err != nil {
		return err
	}
	if m.current().Has(id) {
		return m.update(e)
	}
	return m.add(e)
}

func (m *mutation[T]) delete(id domain.ID) {
	if !m.current().Has(id) {
		return
	}
	w := m.write()
	delete(w.Entities, id)
	w.IDs = slices.DeleteFunc(w.IDs, func(existing domain.ID) bool { return existing == id })
}

func (m *mutation[T]) removeAll() {
	if m.current().Len() == 0 {
		return
	}
	w := m.write()
	w.IDs = []domain.ID{}
	w.Entities = map[domain.ID]T{}
}

// replace re-derives ids and entities from entities. Duplicate ids keep their
// first position and the last entity.
func (m *mutation[T]) replace(entities []T) error {
	ids := make([]domain.ID, 0, len(entities))
	byID := make(map[domain.ID]T, len(entities))
	for _, e := range entities {
		id, err := m.selectID(e)
		if err != nil {
			return err
		}
		if _, ok := byID[id]; !ok {
			ids = append(ids, id)
		}
		byID[id] = e
	}
	w := m.write()
	w.IDs = ids
	w.Entities = byID
	return nil
}

func (m *mutation[T]) setLoaded(v bool) {
	if m.current().Loaded != v {
		m.write().Loaded = v
	}
}

func (m *mutation[T]) setLoading(v bool) {
	if m.current().Loading != v {
		m.write().Loading = v
	}
}
