// Package panel implements the chat menus of the control panel: account binding, the
// instance-creation wizard, servers and networks. Every menu is a set of dispatch actions
// and reply flows registered on the engine.
package panel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/m3rciful/ocipanel/core/engine/dispatch"
	"github.com/m3rciful/ocipanel/core/engine/envelope"
	"github.com/m3rciful/ocipanel/core/engine/replyflow"
	"github.com/m3rciful/ocipanel/core/engine/session"
	"github.com/m3rciful/ocipanel/core/telegram/keyboard"
	"github.com/m3rciful/ocipanel/internal/accounts"
	"github.com/m3rciful/ocipanel/internal/provider"
	"github.com/m3rciful/ocipanel/internal/wizard"
)

const component = "panel"

// Accounts is the account directory as used by the menus. *accounts.Directory satisfies it.
type Accounts interface {
	Add(ctx context.Context, p accounts.Profile) error
	Get(ctx context.Context, userID string) (accounts.Profile, error)
	ListByOwner(ctx context.Context, telegramUserID int64) ([]accounts.Profile, error)
	Rename(ctx context.Context, userID string, telegramUserID int64, name string) error
	Remove(ctx context.Context, userID string, telegramUserID int64) (bool, error)
	PutKey(ctx context.Context, fingerprint, privateKeyPEM string) error
	HasKey(ctx context.Context, fingerprint string) (bool, error)
	CleanUnusedKeys(ctx context.Context) (int, error)
	Credentials(ctx context.Context, p accounts.Profile) (provider.Credentials, error)
	Allow(ctx context.Context, telegramUserID int64, identity string) error
	Deny(ctx context.Context, telegramUserID int64) (bool, error)
	ListAllowed(ctx context.Context) ([]accounts.Allowed, error)
}

// Deps are the services the panel needs. All fields are required.
type Deps struct {
	Cache    keyboard.Putter
	Flows    *replyflow.Engine
	Accounts Accounts
	Cloud    provider.Factory
	Options  *session.Store[wizard.Options]
}

// Panel owns the handlers. Construct it once at startup and register it on a table.
type Panel struct {
	kb      *keyboard.Builder
	flows   *replyflow.Engine
	dir     Accounts
	cloud   provider.Factory
	options *session.Store[wizard.Options]

	// launching holds the (chat, user) pairs whose launch runs in this process.
	launching sync.Map
}

// New checks deps and builds the panel.
func New(d Deps) (*Panel, error) {
	switch {
	case d.Cache == nil:
		return nil, errors.New("panel: nil callback cache")
	case d.Flows == nil:
		return nil, errors.New("panel: nil reply-flow engine")
	case d.Accounts == nil:
		return nil, errors.New("panel: nil account directory")
	case d.Cloud == nil:
		return nil, errors.New("panel: nil provider factory")
	case d.Options == nil:
		return nil, errors.New("panel: nil wizard store")
	}
	return &Panel{
		kb:      keyboard.NewBuilder(d.Cache),
		flows:   d.Flows,
		dir:     d.Accounts,
		cloud:   d.Cloud,
		options: d.Options,
	}, nil
}

// Command is a slash command served by the panel.
type Command struct {
	Name        string
	Description string
	AdminOnly   bool
	Handler     dispatch.Handler
}

// Commands lists the slash commands in menu order.
func (p *Panel) Commands() []Command {
	return []Command{
		{Name: "/start", Description: "Show what the panel can do", Handler: p.start},
		{Name: "/help", Description: "Show what the panel can do", Handler: p.start},
		{Name: "/oc_account_add", Description: "Bind an OCI account", Handler: p.accountAdd},
		{Name: "/oc_account_list", Description: "List bound OCI accounts", Handler: p.accountList},
		{Name: "/oc_clear_key", Description: "Remove unused access keys", AdminOnly: true, Handler: p.clearKeys},
		{Name: "/allow", Description: "Allow a user: /allow <id> [name]", AdminOnly: true, Handler: p.allow},
		{Name: "/deny", Description: "Revoke a user: /deny <id>", AdminOnly: true, Handler: p.deny},
		{Name: "/allow_list", Description: "Show allowed users", AdminOnly: true, Handler: p.allowList},
	}
}

// Register binds every button action to t and every reply flow to the engine.
func (p *Panel) Register(t *dispatch.Table) error {
	groups := [][]action{
		p.accountActions(),
		p.wizardActions(),
		p.serverActions(),
		p.networkActions(),
	}
	for _, group := range groups {
		for _, a := range group {
			preds := a.predicates
			if preds == nil {
				preds = dispatch.Callback()
			}
			if err := t.Register(a.name, a.handler, preds...); err != nil {
				return err
			}
		}
	}
	for _, f := range p.flowDefs() {
		if err := p.flows.Register(f); err != nil {
			return fmt.Errorf("panel: %w", err)
		}
	}
	return nil
}

type action struct {
	name       string
	handler    dispatch.Handler
	predicates []dispatch.Predicate
}

func (p *Panel) flowDefs() []replyflow.Flow {
	return []replyflow.Flow{
		p.accountAddFlow(),
		p.accountRenameFlow(),
		p.serverRenameFlow(),
		p.shapeFlexibleFlow(),
		p.vnicNameFlow(),
		p.privateIPFlow(),
		p.sshKeysFlow(),
		p.userDataFlow(),
		p.instanceNameFlow(),
		p.vcnCreateFlow(),
	}
}

// profile returns the account bound to the pressed button.
func profile(req *dispatch.Request) (accounts.Profile, error) {
	return profileOf(req.Event.Envelope)
}

func profileOf(env envelope.Envelope) (accounts.Profile, error) {
	prof, ok := envelope.Lookup(env.Data(), profileKey)
	if !ok || prof.UserID == "" {
		return accounts.Profile{}, errors.New("panel: envelope without account profile")
	}
	return prof, nil
}

// client opens the provider for prof with its stored key.
func (p *Panel) client(ctx context.Context, prof accounts.Profile) (provider.Client, error) {
	creds, err := p.dir.Credentials(ctx, prof)
	if err != nil {
		return nil, fmt.Errorf("panel: credentials for %s: %w", prof.UserID, err)
	}
	return p.cloud.Open(ctx, creds)
}

func (p *Panel) start(ctx context.Context, req *dispatch.Request) error {
	text := "OCI control panel\n\n" +
		"/oc_account_add - bind an OCI account\n" +
		"/oc_account_list - manage servers, networks and new instances"
	_, err := req.Reply(ctx, dispatch.Message{Text: text})
	return err
}
