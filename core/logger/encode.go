package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

func encodeJSON(f fields, order []string) ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, key := range orderedKeys(f, order) {
		data, err := json.Marshal(f[key])
		if err != nil {
			return nil, fmt.Errorf("logger: field %s: %w", key, err)
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(key))
		b.WriteByte(':')
		b.Write(data)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func encodeKV(f fields, order []string) []byte {
	var b bytes.Buffer
	for i, key := range orderedKeys(f, order) {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(kvValue(f[key]))
	}
	return b.Bytes()
}

// orderedKeys lists the configured keys first, then the rest alphabetically.
func orderedKeys(f fields, order []string) []string {
	keys := make([]string, 0, len(f))
	placed := make(map[string]bool, len(order))
	for _, key := range order {
		if _, ok := f[key]; ok && !placed[key] {
			keys = append(keys, key)
			placed[key] = true
		}
	}
	head := len(keys)
	for key := range f {
		if !placed[key] {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys[head:])
	return keys
}

func kvValue(v any) string {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		s = fmt.Sprint(x)
	}
	if strings.IndexFunc(s, needsQuote) >= 0 {
		return strconv.Quote(s)
	}
	return s
}

func needsQuote(r rune) bool {
	return r <= ' ' || r == '=' || r == '"'
}
