// Package callbacks encodes the payload carried by inline buttons. Only a reference code travels
// over the wire; the envelope it names lives in the server-side cache.
package callbacks

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MaxDataLen is Telegram's limit for callback_data.
const MaxDataLen = 64

// ErrMalformed is returned for payloads that are not {"rcode":"..."}.
var ErrMalformed = errors.New("callbacks: malformed button data")

type wire struct {
	RCode string `json:"rcode"`
}

// Encode renders the button payload for code.
func Encode(code string) (string, error) {
	b, err := json.Marshal(wire{RCode: code})
	if err != nil {
		return "", fmt.Errorf("callbacks: encode: %w", err)
	}
	if len(b) > MaxDataLen {
		return "", fmt.Errorf("callbacks: payload of %d bytes exceeds %d", len(b), MaxDataLen)
	}
	return string(b), nil
}

// Decode extracts the reference code. Telebot's "\f<unique>|" prefix is tolerated so buttons
// built with a unique id still resolve.
func Decode(data string) (string, error) {
	raw := strings.TrimSpace(data)
	if strings.HasPrefix(raw, "\f") {
		if i := strings.Index(raw, "|"); i >= 0 {
			raw = raw[i+1:]
		}
	}
	var w wire
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.RCode == "" {
		return "", ErrMalformed
	}
	return w.RCode, nil
}
