// Package dataservice provides domain.DataService implementations: an
// in-process store, a database/sql backed store and a rate limiting decorator.
package dataservice

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"entitycache/pkg/domain"
)

// ErrDuplicateID is returned by Add when the id is already taken.
var ErrDuplicateID = errors.New("entity id already exists")

// IDAssigner stores a generated id on an entity added without one.
type IDAssigner[T any] func(entity T, id domain.ID) T

// matches reports whether every query param equals the string form of the
// entity's top-level field of the same name.
func matches[T any](entity T, params domain.QueryParams) (bool, error) {
	if len(params) == 0 {
		return true, nil
	}
	fields, err := fieldsOf(entity)
	if err != nil {
		return false, err
	}
	for name, want := range params {
		v, ok := fields[name]
		if !ok || fieldString(v) != want {
			return false, nil
		}
	}
	return true, nil
}

func fieldsOf[T any](entity T) (map[string]any, error) {
	raw, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("encode entity: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("entity is not a JSON object: %w", err)
	}
	return fields, nil
}

func fieldString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func filter[T any](entities []T, params domain.QueryParams) ([]T, error) {
	out := make([]T, 0, len(entities))
	for _, e := range entities {
		ok, err := matches(e, params)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// nextID returns one more than the largest numeric id in ids.
func nextID(ids []domain.ID) domain.ID {
	var top int64
	for _, id := range ids {
		if n, ok := id.Int(); ok && n > top {
			top = n
		}
	}
	return domain.IntID(top + 1)
}

// unassigned reports whether id still needs generating. Integer ids of zero
// count as unassigned, matching the zero value of struct id fields.
func unassigned(id domain.ID) bool {
	n, ok := id.Int()
	return id.IsZero() || (ok && n == 0)
}
