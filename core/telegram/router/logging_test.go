package router

import (
	"errors"
	"fmt"
	"testing"

	"github.com/m3rciful/ocipanel/core/engine/refcache"
	"github.com/m3rciful/ocipanel/core/engine/session"
)

type codedErr string

func (e codedErr) Error() string { return string(e) }
func (e codedErr) Code() string  { return "not authorized" }

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("resolve: %w", refcache.ErrExpired), "CALLBACK_EXPIRED"},
		{fmt.Errorf("load: %w", session.ErrSchemaMismatch), "SESSION_SCHEMA"},
		{fmt.Errorf("list: %w", codedErr("denied")), "NOT_AUTHORIZED"},
		{errors.New("boom"), "INTERNAL"},
	}
	for i, tc := range cases {
		if got := errorCode(tc.err); got != tc.want {
			t.Fatalf("case %d: errorCode = %q, want %q", i, got, tc.want)
		}
	}
}

func TestNormalizeHandlerName(t *testing.T) {
	cases := map[string]string{
		"/Start":        "start",
		"  ":            "unknown",
		"server manage": "server_manage",
	}
	for in, want := range cases {
		if got := normalizeHandlerName(in); got != want {
			t.Fatalf("normalizeHandlerName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCommandName(t *testing.T) {
	cases := []struct {
		text string
		name string
		ok   bool
	}{
		{"/servers@ocipanel_bot extra", "/servers", true},
		{"/help", "/help", true},
		{"/", "", false},
		{"hello", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		name, ok := commandName(tc.text)
		if ok != tc.ok || (ok && name != tc.name) {
			t.Fatalf("commandName(%q) = %q, %v", tc.text, name, ok)
		}
	}
}
