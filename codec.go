package cowmap

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrDuplicateKey reports a bulk construction that requires unique
	// keys encountering the same key twice.
	ErrDuplicateKey = errors.New("cowmap: duplicate key")
	// ErrCountMismatch reports key and value lists of different
	// lengths handed to FromKeysValues.
	ErrCountMismatch = errors.New("cowmap: keys and values count mismatch")
)

// AppendKeysValues appends one snapshot of the map to keys and values,
// index-aligned (values[i] is stored under keys[i]), and returns the
// extended slices. The order is the map's iteration order at this
// moment; feeding both lists back through FromKeysValues reconstructs
// the map.
func (m *Map[K, V]) AppendKeysValues(keys []K, values []V) ([]K, []V) {
	m.Range(func(k K, v V) bool {
		keys = append(keys, k)
		values = append(values, v)
		return true
	})
	return keys, values
}

// FromKeysValues reconstructs a map from index-aligned key and value
// lists, the inverse of AppendKeysValues. Lists of different lengths
// fail with ErrCountMismatch. A nil combine requires the keys to be
// unique and fails with ErrDuplicateKey otherwise; a non-nil combine
// resolves collisions the way SetWith does.
func FromKeysValues[K comparable, V any](
	keys []K,
	values []V,
	combine func(existing, incoming V) (V, error),
	options ...func(*Config),
) (*Map[K, V], error) {
	if len(keys) != len(values) {
		return nil, fmt.Errorf("%w: %d keys, %d values",
			ErrCountMismatch, len(keys), len(values))
	}
	entries := make([]Entry[K, V], len(keys))
	for i, k := range keys {
		entries[i] = Entry[K, V]{Key: k, Value: values[i]}
	}
	return FromEntries(entries, combine, options...)
}

// FromEntries builds a map from a list of entries. A nil combine
// requires the keys to be unique and fails with ErrDuplicateKey on a
// collision; a non-nil combine resolves collisions the way SetWith
// does.
func FromEntries[K comparable, V any](
	entries []Entry[K, V],
	combine func(existing, incoming V) (V, error),
	options ...func(*Config),
) (*Map[K, V], error) {
	if combine == nil {
		combine = func(existing, _ V) (V, error) {
			return existing, ErrDuplicateKey
		}
	}
	m := New[K, V](options...)
	if err := m.SetAll(entries, combine); err != nil {
		return nil, err
	}
	return m, nil
}

var (
	jsonMarshal   func(v any) ([]byte, error)
	jsonUnmarshal func(data []byte, v any) error
)

// SetDefaultJSONMarshal sets the default JSON serialization and
// deserialization functions. If not set, the standard library is used.
func SetDefaultJSONMarshal(
	marshal func(v any) ([]byte, error),
	unmarshal func(data []byte, v any) error,
) {
	jsonMarshal, jsonUnmarshal = marshal, unmarshal
}

// MarshalJSON JSON serialization
func (m *Map[K, V]) MarshalJSON() ([]byte, error) {
	if jsonMarshal != nil {
		return jsonMarshal(m.ToMap())
	}
	return json.Marshal(m.ToMap())
}

// UnmarshalJSON JSON deserialization
func (m *Map[K, V]) UnmarshalJSON(data []byte) error {
	var a map[K]V
	if jsonUnmarshal != nil {
		if err := jsonUnmarshal(data, &a); err != nil {
			return err
		}
	} else {
		if err := json.Unmarshal(data, &a); err != nil {
			return err
		}
	}
	m.FromMap(a)
	return nil
}
