// Package session stores per (chat, user) state records that survive restarts.
package session

import (
	"fmt"
	"strings"
)

// Key addresses one record: a flow namespace plus the chat and user it belongs to.
type Key struct {
	Namespace string
	ChatID    int64
	UserID    int64
}

// String renders the composite storage key, "<namespace>::chat_<chat>::user_<user>".
func (k Key) String() string {
	return fmt.Sprintf("%s::chat_%d::user_%d", k.Namespace, k.ChatID, k.UserID)
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, "::")
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("session: malformed key %q", s)
	}
	var k Key
	k.Namespace = parts[0]
	if _, err := fmt.Sscanf(parts[1], "chat_%d", &k.ChatID); err != nil {
		return Key{}, fmt.Errorf("session: malformed chat in %q: %w", s, err)
	}
	if _, err := fmt.Sscanf(parts[2], "user_%d", &k.UserID); err != nil {
		return Key{}, fmt.Errorf("session: malformed user in %q: %w", s, err)
	}
	return k, nil
}
