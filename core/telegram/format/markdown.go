// Package format renders text for Telegram's legacy Markdown parse mode.
package format

import "strings"

var escaper = strings.NewReplacer(`_`, `\_`, `*`, `\*`, "`", "\\`", `[`, `\[`)

// Escape makes s safe to embed in Markdown text.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Code wraps s in an inline code span. Backticks inside s cannot be escaped in a span, so
// they are dropped.
func Code(s string) string {
	if s == "" {
		return "-"
	}
	return "`" + strings.ReplaceAll(s, "`", "") + "`"
}

// Field renders "label: `value`".
func Field(label, value string) string {
	return Escape(label) + ": " + Code(value)
}
