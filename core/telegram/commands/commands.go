// Package commands describes the slash commands registered with the bot.
package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command is one slash command. Hidden and AdminOnly commands are left out of the menu that
// Telegram shows to users; AdminOnly ones are also rejected for everybody but the admin.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	AdminOnly   bool
	Hidden      bool
	// Aliases are extra names resolved when the command is typed with a bot suffix.
	Aliases []string
}
