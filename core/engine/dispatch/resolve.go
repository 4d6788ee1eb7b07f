package dispatch

import (
	"github.com/m3rciful/ocipanel/core/engine/envelope"
)

// Lookup dereferences a reference code; refcache.Cache satisfies it.
type Lookup interface {
	Get(code string) (envelope.Envelope, error)
}

// Decoder extracts the reference code from a raw button payload.
type Decoder func(data string) (string, error)

// Resolver fills Code and Envelope on callback events.
type Resolver struct {
	Cache  Lookup
	Decode Decoder
}

// Resolve decodes and dereferences ev.Data. A decode failure or cache miss is returned
// to the caller and leaves the event unresolved.
func (r Resolver) Resolve(ev *Event) error {
	if ev.Kind != KindCallback {
		return nil
	}
	code, err := r.Decode(ev.Data)
	if err != nil {
		return err
	}
	ev.Code = code
	env, err := r.Cache.Get(code)
	if err != nil {
		return err
	}
	ev.Envelope = env
	ev.Resolved = true
	return nil
}
