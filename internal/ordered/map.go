// Package ordered implements an insertion-ordered map that round-trips
// through YAML and JSON without losing key order.
package ordered

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

var _ interface {
	json.Marshaler
	json.Unmarshaler
	yaml.IsZeroer
	yaml.Unmarshaler
} = (*Map[string, any])(nil)

// Map is an order-preserving map. Keys keep the position of their first
// insertion; setting an existing key replaces its value in place.
type Map[K comparable, V any] struct {
	items []Tuple[K, V]
	index map[K]int
}

// MapSA is a convenience alias to reduce keyboard wear.
type MapSA = Map[string, any]

// NewMap returns a new empty map with a given initial capacity.
func NewMap[K comparable, V any](cap int) *Map[K, V] {
	return &Map[K, V]{
		items: make([]Tuple[K, V], 0, cap),
		index: make(map[K]int, cap),
	}
}

// MapFromItems creates a Map with some items.
func MapFromItems[K comparable, V any](ps ...Tuple[K, V]) *Map[K, V] {
	m := NewMap[K, V](len(ps))
	for _, p := range ps {
		m.Set(p.Key, p.Value)
	}
	return m
}

// Len returns the number of items in the map.
func (m *Map[K, V]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.items)
}

// IsZero reports if m is nil or empty. It is used by yaml.v3 to check
// emptiness.
func (m *Map[K, V]) IsZero() bool {
	return m.Len() == 0
}

// Get retrieves the value associated with a key, and reports if it was found.
func (m *Map[K, V]) Get(k K) (V, bool) {
	var zv V
	if m == nil {
		return zv, false
	}
	idx, ok := m.index[k]
	if !ok {
		return zv, false
	}
	return m.items[idx].Value, true
}

// Contains reports if the map contains the key.
func (m *Map[K, V]) Contains(k K) bool {
	if m == nil {
		return false
	}
	_, has := m.index[k]
	return has
}

// Set sets the value for the given key. If the key exists, it remains in its
// existing spot, otherwise it is added to the end of the map.
func (m *Map[K, V]) Set(k K, v V) {
	// A Map made with new(Map) has a nil index.
	if m.index == nil {
		m.index = make(map[K]int, 1)
	}

	if idx, exists := m.index[k]; exists {
		m.items[idx].Value = v
		return
	}

	m.index[k] = len(m.items)
	m.items = append(m.items, Tuple[K, V]{
		Key:   k,
		Value: v,
	})
}

// Keys returns the keys in order.
func (m *Map[K, V]) Keys() []K {
	if m == nil {
		return nil
	}
	keys := make([]K, 0, len(m.items))
	for _, p := range m.items {
		keys = append(keys, p.Key)
	}
	return keys
}

// Range ranges over the map (in order). If f returns an error, it stops ranging
// and returns that error.
func (m *Map[K, V]) Range(f func(k K, v V) error) error {
	if m == nil {
		return nil
	}
	for _, p := range m.items {
		if err := f(p.Key, p.Value); err != nil {
			return err
		}
	}
	return nil
}

// Equal reports if the two maps contain the same items in the same order.
// Values are compared using go-cmp.
func Equal[K comparable, V any](a, b *Map[K, V]) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Len() != b.Len() {
		return false
	}
	for i := range a.items {
		if a.items[i].Key != b.items[i].Key {
			return false
		}
		if !cmp.Equal(a.items[i].Value, b.items[i].Value, cmp.Comparer(Equal[string, any])) {
			return false
		}
	}
	return true
}

// EqualSA is a convenience alias to reduce keyboard wear.
var EqualSA = Equal[string, any]

// MarshalJSON marshals the ordered map to JSON. It preserves the map order in
// the output.
func (m *Map[K, V]) MarshalJSON() ([]byte, error) {
	// NB: writes to b don't error, but JSON encoding could error.
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	b.WriteRune('{')
	first := true
	err := m.Range(func(k K, v V) error {
		if !first {
			b.WriteRune(',')
		}
		first = false
		if err := enc.Encode(k); err != nil {
			return err
		}
		b.WriteRune(':')
		return enc.Encode(v)
	})
	if err != nil {
		return nil, err
	}
	b.WriteRune('}')
	// json.Encoder terminates every value with a newline.
	return bytes.ReplaceAll(b.Bytes(), []byte("\n"), nil), nil
}

// UnmarshalJSON unmarshals JSON into the map. It only supports K = string.
// This is yaml.Unmarshal in a trenchcoat (YAML is a superset of JSON).
func (m *Map[K, V]) UnmarshalJSON(b []byte) error {
	return yaml.Unmarshal(b, m)
}

// UnmarshalYAML unmarshals a YAML mapping node into this map. It only supports
// K = string. For V = any, nested mappings become *Map[string, any]. For
// V = *yaml.Node the values are kept undecoded. Any other V is decoded by
// yaml.v3, so V may implement yaml.Unmarshaler itself.
func (m *Map[K, V]) UnmarshalYAML(n *yaml.Node) error {
	om, ok := any(m).(*Map[string, V])
	if !ok {
		var zk K
		return fmt.Errorf("cannot unmarshal into ordered.Map with key type %T (want string)", zk)
	}

	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d, col %d: wrong kind (got %x, want %x)", n.Line, n.Column, n.Kind, yaml.MappingNode)
	}

	switch tm := any(m).(type) {
	case *Map[string, any]:
		sm, err := DecodeYAML(n)
		if err != nil {
			return err
		}
		*tm = *sm.(*Map[string, any])
		return nil

	case *Map[string, *yaml.Node]:
		return rangeYAMLMap(n, func(key string, val *yaml.Node) error {
			tm.Set(key, val)
			return nil
		})

	default:
		return rangeYAMLMap(n, func(key string, val *yaml.Node) error {
			var v V
			if err := val.Decode(&v); err != nil {
				return err
			}
			om.Set(key, v)
			return nil
		})
	}
}
