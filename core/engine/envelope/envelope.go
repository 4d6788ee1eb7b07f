// Package envelope models the unit carried by an inline button: an action name plus
// an ordered bag of extra data. Envelopes are values; every transition yields a new one.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope is an immutable action plus extra data.
type Envelope struct {
	action string
	data   Data
}

// New builds an envelope. The data is copied.
func New(action string, data Data) Envelope {
	return Envelope{action: action, data: data.clone()}
}

// Action returns the action name.
func (e Envelope) Action() string { return e.action }

// Data returns a copy of the extra data.
func (e Envelope) Data() Data { return e.data.clone() }

// IsZero reports whether the envelope carries no action.
func (e Envelope) IsZero() bool { return e.action == "" }

// Next derives an envelope for action. A nil patch keeps the extra data unchanged;
// otherwise the data is deep-copied and the patch applied key by key.
func (e Envelope) Next(action string, patch *Patch) (Envelope, error) {
	if patch == nil {
		return Envelope{action: action, data: e.data.clone()}, nil
	}
	data, err := patch.apply(e.data.clone())
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{action: action, data: data}, nil
}

// NextReplace derives an envelope for action whose extra data is exactly data.
func (e Envelope) NextReplace(action string, data Data) Envelope {
	return Envelope{action: action, data: data.clone()}
}

// Equal compares action and data.
func (e Envelope) Equal(other Envelope) bool {
	return e.action == other.action && e.data.Equal(other.data)
}

type wireEnvelope struct {
	Action string `json:"a"`
	Data   Data   `json:"d"`
}

// MarshalJSON encodes the envelope as {"a":action,"d":{...}}.
func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEnvelope{Action: e.action, Data: e.data})
}

// UnmarshalJSON decodes the form produced by MarshalJSON.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("envelope: decode: %w", err)
	}
	if w.Action == "" {
		return errors.New("envelope: missing action")
	}
	e.action = w.Action
	e.data = w.Data
	return nil
}

// Patch is an ordered list of set/unset operations applied by Next.
type Patch struct {
	ops []Op
}

// Merge creates a patch from ops.
func Merge(ops ...Op) *Patch {
	return &Patch{ops: append([]Op(nil), ops...)}
}

// With appends ops and returns the patch.
func (p *Patch) With(ops ...Op) *Patch {
	p.ops = append(p.ops, ops...)
	return p
}

// Len returns the number of operations.
func (p *Patch) Len() int {
	if p == nil {
		return 0
	}
	return len(p.ops)
}

func (p *Patch) apply(d Data) (Data, error) {
	for _, op := range p.ops {
		if op.err != nil {
			return Data{}, op.err
		}
		if op.unset {
			d.remove(op.name)
			continue
		}
		d.put(op.name, append(json.RawMessage(nil), op.raw...))
	}
	return d, nil
}

// PatchFromJSON builds a patch from a JSON object where null values delete keys.
func PatchFromJSON(b []byte) (*Patch, error) {
	pairs, err := decodeObject(b)
	if err != nil {
		return nil, err
	}
	p := &Patch{}
	for _, pair := range pairs {
		p.ops = append(p.ops, SetRaw(pair.name, pair.raw))
	}
	return p, nil
}

// Build materialises ops on an empty bag, for NextReplace and New.
func Build(ops ...Op) (Data, error) {
	return Merge(ops...).apply(Data{})
}

// MustBuild is Build for ops known to encode.
func MustBuild(ops ...Op) Data {
	d, err := Build(ops...)
	if err != nil {
		panic(err)
	}
	return d
}
