package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/m3rciful/ocipanel/core/logger"
	"github.com/m3rciful/ocipanel/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// Registry holds the bot's slash commands. Button presses are routed by the dispatch table instead.
type Registry struct {
	adminID      int64
	commands     map[string]commands.Command
	aliases      map[string]string
	textFallback tele.HandlerFunc
}

// NewRegistry creates an empty Registry. adminID gates admin-only commands; 0 disables the gate.
func NewRegistry(adminID int64) *Registry {
	return &Registry{
		adminID:  adminID,
		commands: make(map[string]commands.Command),
		aliases:  make(map[string]string),
	}
}

// AdminID returns the configured administrator.
func (r *Registry) AdminID() int64 { return r.adminID }

func slash(name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	return "/" + name
}

// RegisterCommand adds a command under name, which must start with a slash. Names and aliases
// share one namespace; a clash is an error and leaves the registry unchanged.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	switch {
	case !strings.HasPrefix(name, "/") || len(name) < 2:
		return fmt.Errorf("telegram: command %q: name must start with /", name)
	case cmd.Handler == nil || cmd.Description == "":
		return fmt.Errorf("telegram: command %s: handler and description are required", name)
	}
	if r.taken(name) {
		return fmt.Errorf("telegram: command %s: already registered", name)
	}
	for _, alias := range cmd.Aliases {
		if r.taken(slash(alias)) || slash(alias) == name {
			return fmt.Errorf("telegram: command %s: alias %q already registered", name, alias)
		}
	}
	r.commands[name] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[slash(alias)] = name
	}
	logger.TWire.LogAttrs(context.Background(), slog.LevelDebug, "register.command",
		slog.String("name", name),
		slog.Bool("admin_only", cmd.AdminOnly),
	)
	return nil
}

func (r *Registry) taken(name string) bool {
	_, cmd := r.commands[name]
	_, alias := r.aliases[name]
	return cmd || alias
}

// ListCommands returns the menu entries sorted by name. With visibleOnly, hidden and admin-only
// commands are left out.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	list := make([]tele.Command, 0, len(r.commands))
	for name, meta := range r.commands {
		if meta.Hidden || (visibleOnly && meta.AdminOnly) {
			continue
		}
		list = append(list, tele.Command{Text: strings.TrimPrefix(name, "/"), Description: meta.Description})
	}
	slices.SortFunc(list, func(a, b tele.Command) int { return strings.Compare(a.Text, b.Text) })
	return list
}

// LookupCommand resolves a name or alias, with or without the slash, to the registered command.
func (r *Registry) LookupCommand(name string) (string, commands.Command, bool) {
	name = slash(name)
	if key, ok := r.aliases[name]; ok {
		name = key
	}
	cmd, ok := r.commands[name]
	if !ok {
		return "", commands.Command{}, false
	}
	return name, cmd, true
}

// Commands returns all registered commands keyed by name.
func (r *Registry) Commands() map[string]commands.Command {
	return r.commands
}

// SetTextFallback sets the handler for text no reply flow or command claimed.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.textFallback = h
}

// TextFallback returns the current text fallback handler.
func (r *Registry) TextFallback() tele.HandlerFunc {
	return r.textFallback
}

// InitBotCommands publishes the command menu. The admin's private chat gets its own menu with
// the admin-only commands included.
func InitBotCommands(bot *tele.Bot, reg *Registry) {
	if err := bot.SetCommands(reg.ListCommands(true)); err != nil {
		logger.TWire.LogAttrs(context.Background(), slog.LevelError, "register.commands.set_failed",
			slog.String("err", err.Error()),
		)
	}
	if reg.adminID == 0 {
		return
	}
	scope := tele.CommandScope{Type: tele.CommandScopeChat, ChatID: reg.adminID}
	if err := bot.SetCommands(reg.ListCommands(false), scope); err != nil {
		logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register.commands.admin_failed",
			slog.String("err", err.Error()),
		)
	}
}
