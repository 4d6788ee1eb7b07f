package helpers

import tele "gopkg.in/telebot.v4"

const (
	messagesKey = "messages"
	keyboardKey = "kb"
)

// ResetCounters starts per-update response accounting.
func ResetCounters(c tele.Context) {
	c.Set(messagesKey, 0)
	c.Set(keyboardKey, false)
}

// CountMessage records one outbound message or edit for the current update.
func CountMessage(c tele.Context, hasKeyboard bool) {
	n, _ := c.Get(messagesKey).(int)
	c.Set(messagesKey, n+1)
	if hasKeyboard {
		c.Set(keyboardKey, true)
	}
}

// Counters reads the message count and keyboard flag recorded for the update.
func Counters(c tele.Context) (int, bool) {
	n, _ := c.Get(messagesKey).(int)
	kb, _ := c.Get(keyboardKey).(bool)
	return n, kb
}
