package session

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrSchemaMismatch is returned when a stored blob carries another schema or version.
var ErrSchemaMismatch = errors.New("session: schema mismatch")

// frame is the on-disk layout: a schema tag and version written alongside the payload.
type frame struct {
	Schema  string          `cbor:"1,keyasint"`
	Version uint16          `cbor:"2,keyasint"`
	Payload cbor.RawMessage `cbor:"3,keyasint"`
}

// UpgradeFunc migrates a payload written with an older version to the current one.
type UpgradeFunc func(from uint16, payload []byte) ([]byte, error)

// Codec serialises values of T as versioned CBOR frames.
type Codec[T any] struct {
	Schema  string
	Version uint16
	// Upgrade is optional. Without it any version other than Version is rejected.
	Upgrade UpgradeFunc

	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCodec builds a codec with canonical encoding.
func NewCodec[T any](schema string, version uint16) (*Codec[T], error) {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("session: cbor enc mode: %w", err)
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("session: cbor dec mode: %w", err)
	}
	return &Codec[T]{Schema: schema, Version: version, enc: enc, dec: dec}, nil
}

// Marshal encodes v inside a frame.
func (c *Codec[T]) Marshal(v *T) ([]byte, error) {
	payload, err := c.enc.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("session: encode %s: %w", c.Schema, err)
	}
	blob, err := c.enc.Marshal(frame{Schema: c.Schema, Version: c.Version, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("session: encode frame: %w", err)
	}
	return blob, nil
}

// Unmarshal decodes a frame produced by Marshal, upgrading older versions when possible.
func (c *Codec[T]) Unmarshal(blob []byte) (T, error) {
	var zero T
	var f frame
	if err := c.dec.Unmarshal(blob, &f); err != nil {
		return zero, fmt.Errorf("session: decode frame: %w", err)
	}
	if f.Schema != c.Schema {
		return zero, fmt.Errorf("%w: schema %q, want %q", ErrSchemaMismatch, f.Schema, c.Schema)
	}
	payload := []byte(f.Payload)
	if f.Version != c.Version {
		if c.Upgrade == nil || f.Version > c.Version {
			return zero, fmt.Errorf("%w: %s version %d, want %d", ErrSchemaMismatch, c.Schema, f.Version, c.Version)
		}
		upgraded, err := c.Upgrade(f.Version, payload)
		if err != nil {
			return zero, fmt.Errorf("%w: upgrade %s from %d: %v", ErrSchemaMismatch, c.Schema, f.Version, err)
		}
		payload = upgraded
	}
	var v T
	if err := c.dec.Unmarshal(payload, &v); err != nil {
		return zero, fmt.Errorf("session: decode %s: %w", c.Schema, err)
	}
	return v, nil
}
