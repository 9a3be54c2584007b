// Package domain defines the normalized entity cache model shared by the
// reducers, the host store and every persistence backend used by entitycache.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Record is a schemaless entity decoded from JSON. It is the entity type used
// for entity types declared through configuration rather than Go code.
type Record = map[string]any

// Identifiable is implemented by entities that know their own identifier.
// The default identifier selector prefers it over field discovery.
type Identifiable interface {
	EntityID() ID
}

// ID identifies an entity within its collection. It holds either a string or
// an integer; the zero value means "no identifier".
type ID struct {
	str   string
	num   int64
	isNum bool
}

// StringID returns a string identifier.
func StringID(s string) ID { return ID{str: s} }

// IntID returns an integer identifier.
func IntID(n int64) ID { return ID{num: n, isNum: true} }

// IsZero reports whether the identifier is unset.
func (id ID) IsZero() bool { return !id.isNum && id.str == "" }

// IsNumeric reports whether the identifier holds an integer.
func (id ID) IsNumeric() bool { return id.isNum }

// Int returns the integer value and whether the identifier is numeric.
func (id ID) Int() (int64, bool) { return id.num, id.isNum }

// String renders the identifier. Integers use base 10.
func (id ID) String() string {
	if id.isNum {
		return strconv.FormatInt(id.num, 10)
	}
	return id.str
}

// MarshalJSON encodes integers as JSON numbers and strings as JSON strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.isNum {
		return []byte(strconv.FormatInt(id.num, 10)), nil
	}
	return json.Marshal(id.str)
}

// UnmarshalJSON accepts a JSON string or an integral JSON number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ID{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	parsed, err := IDOf(json.Number(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// MarshalText renders the identifier as text so it can key JSON objects.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// IDOf converts a loosely typed identifier value into an ID.
func IDOf(v any) (ID, error) {
	switch t := v.(type) {
	case ID:
		return t, nil
	case string:
		return StringID(t), nil
	case int:
		return IntID(int64(t)), nil
	case int8:
		return IntID(int64(t)), nil
	case int16:
		return IntID(int64(t)), nil
	case int32:
		return IntID(int64(t)), nil
	case int64:
		return IntID(t), nil
	case uint:
		return uintID(uint64(t))
	case uint8:
		return IntID(int64(t)), nil
	case uint16:
		return IntID(int64(t)), nil
	case uint32:
		return IntID(int64(t)), nil
	case uint64:
		return uintID(t)
	case float64:
		return floatID(t)
	case float32:
		return floatID(float64(t))
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return IntID(n), nil
		}
		f, err := t.Float64()
		if err != nil {
			return ID{}, fmt.Errorf("invalid numeric id %q: %w", t.String(), err)
		}
		return floatID(f)
	case nil:
		return ID{}, fmt.Errorf("nil id")
	default:
		return ID{}, fmt.Errorf("unsupported id type %T", v)
	}
}

func uintID(n uint64) (ID, error) {
	if n > math.MaxInt64 {
		return ID{}, fmt.Errorf("id %d overflows int64", n)
	}
	return IntID(int64(n)), nil
}

func floatID(f float64) (ID, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return ID{}, fmt.Errorf("non-integral numeric id %v", f)
	}
	return IntID(int64(f)), nil
}
