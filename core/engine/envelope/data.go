package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Data is an ordered string-keyed bag of JSON values carried by an Envelope.
// The zero value is an empty bag ready to use.
type Data struct {
	keys []string
	vals map[string]json.RawMessage
}

// Len returns the number of keys.
func (d Data) Len() int { return len(d.keys) }

// Keys returns the keys in insertion order.
func (d Data) Keys() []string {
	return append([]string(nil), d.keys...)
}

// Has reports whether name is present.
func (d Data) Has(name string) bool {
	_, ok := d.vals[name]
	return ok
}

// Raw returns a copy of the encoded value stored under name.
func (d Data) Raw(name string) (json.RawMessage, bool) {
	v, ok := d.vals[name]
	if !ok {
		return nil, false
	}
	return append(json.RawMessage(nil), v...), true
}

// Equal reports whether both bags hold the same keys in the same order with byte-identical values.
func (d Data) Equal(other Data) bool {
	if len(d.keys) != len(other.keys) {
		return false
	}
	for i, k := range d.keys {
		if other.keys[i] != k {
			return false
		}
		if !bytes.Equal(d.vals[k], other.vals[k]) {
			return false
		}
	}
	return true
}

func (d Data) clone() Data {
	out := Data{
		keys: append([]string(nil), d.keys...),
		vals: make(map[string]json.RawMessage, len(d.vals)),
	}
	for k, v := range d.vals {
		out.vals[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

func (d *Data) put(name string, raw json.RawMessage) {
	if d.vals == nil {
		d.vals = make(map[string]json.RawMessage)
	}
	if _, exists := d.vals[name]; !exists {
		d.keys = append(d.keys, name)
	}
	d.vals[name] = raw
}

func (d *Data) remove(name string) {
	if _, ok := d.vals[name]; !ok {
		return
	}
	delete(d.vals, name)
	for i, k := range d.keys {
		if k == name {
			d.keys = append(d.keys[:i:i], d.keys[i+1:]...)
			break
		}
	}
}

// MarshalJSON encodes the bag as a JSON object preserving key order.
func (d Data) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(d.vals[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping the order keys appear in the input.
// A null value is stored as-is; use PatchFromJSON to treat nulls as deletions.
func (d *Data) UnmarshalJSON(b []byte) error {
	pairs, err := decodeObject(b)
	if err != nil {
		return err
	}
	*d = Data{}
	for _, p := range pairs {
		d.put(p.name, p.raw)
	}
	return nil
}

type rawPair struct {
	name string
	raw  json.RawMessage
}

func decodeObject(b []byte) ([]rawPair, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("envelope: decode data: %w", err)
	}
	if tok == nil {
		return nil, nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("envelope: data must be a JSON object")
	}
	var pairs []rawPair
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("envelope: decode key: %w", err)
		}
		name, ok := keyTok.(string)
		if !ok {
			return nil, errors.New("envelope: non-string key")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("envelope: decode %q: %w", name, err)
		}
		pairs = append(pairs, rawPair{name: name, raw: compact(raw)})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("envelope: decode data: %w", err)
	}
	return pairs, nil
}

func compact(raw json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return append(json.RawMessage(nil), raw...)
	}
	return buf.Bytes()
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
