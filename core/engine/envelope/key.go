package envelope

import (
	"encoding/json"
	"fmt"
)

// Key names a Data entry whose value has a known Go type.
type Key[T any] struct {
	name string
}

// NewKey declares a typed key.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Name returns the wire name of the key.
func (k Key[T]) Name() string { return k.name }

// Get decodes the value stored under k. The boolean is false when the key is absent.
func Get[T any](d Data, k Key[T]) (T, bool, error) {
	var zero T
	raw, ok := d.vals[k.name]
	if !ok {
		return zero, false, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, true, fmt.Errorf("envelope: decode %q: %w", k.name, err)
	}
	return v, true, nil
}

// Lookup is Get without the decode error; malformed values read as absent.
func Lookup[T any](d Data, k Key[T]) (T, bool) {
	v, ok, err := Get(d, k)
	if err != nil {
		var zero T
		return zero, false
	}
	return v, ok
}

// Op is one step of a Patch.
type Op struct {
	name  string
	raw   json.RawMessage
	unset bool
	err   error
}

// Set overwrites or creates k with v. A value encoding to JSON null, such as a nil pointer
// or slice, deletes k as SetRaw does.
func Set[T any](k Key[T], v T) Op {
	raw, err := json.Marshal(v)
	if err != nil {
		return Op{name: k.name, err: fmt.Errorf("envelope: encode %q: %w", k.name, err)}
	}
	if isNull(raw) {
		return Op{name: k.name, unset: true}
	}
	return Op{name: k.name, raw: raw}
}

// Unset deletes k from the result. It is distinct from an absent entry in the patch.
func Unset[T any](k Key[T]) Op {
	return Op{name: k.name, unset: true}
}

// SetRaw stores an already encoded value under name. A JSON null deletes the key.
func SetRaw(name string, raw json.RawMessage) Op {
	if isNull(raw) {
		return Op{name: name, unset: true}
	}
	return Op{name: name, raw: compact(raw)}
}

// UnsetName deletes name regardless of its declared type.
func UnsetName(name string) Op {
	return Op{name: name, unset: true}
}
