package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/ocipanel/core/engine/dispatch"
	"github.com/m3rciful/ocipanel/core/engine/envelope"
	"github.com/m3rciful/ocipanel/core/engine/replyflow"
	"github.com/m3rciful/ocipanel/core/logger"
	"github.com/m3rciful/ocipanel/internal/accounts"
)

const (
	actAccountList          = "account.list"
	actAccountManage        = "account.manage"
	actAccountEdit          = "account.edit"
	actAccountRename        = "account.rename"
	actAccountRemove        = "account.remove"
	actAccountRemoveConfirm = "account.remove.confirm"

	flowAccountAdd    = "oc_account_add"
	flowAccountRename = "account_rename"

	// userLookupFanout bounds concurrent GetUser calls while listing accounts.
	userLookupFanout = 4
	maxNameLength    = 64
)

func (p *Panel) accountActions() []action {
	return []action{
		{name: actAccountList, handler: p.accountList, predicates: dispatch.PublicCallback()},
		{name: actAccountManage, handler: p.accountManage},
		{name: actAccountEdit, handler: p.accountEdit},
		{name: actAccountRename, handler: p.accountRename},
		{name: actAccountRemove, handler: p.accountRemove},
		{name: actAccountRemoveConfirm, handler: p.accountRemoveConfirm},
	}
}

func (p *Panel) accountAdd(ctx context.Context, req *dispatch.Request) error {
	return p.flows.Start(ctx, req, flowAccountAdd, envelope.Envelope{}, nil)
}

// accountList shows the caller's accounts. OCI user names are fetched concurrently; an
// account whose lookup fails is still listed under its own name.
func (p *Panel) accountList(ctx context.Context, req *dispatch.Request) error {
	list, err := p.dir.ListByOwner(ctx, req.Event.UserID)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		_, err := req.Reply(ctx, dispatch.Message{Text: "No OCI accounts yet. Use /oc_account_add to bind one."})
		return err
	}

	labels := make([]string, len(list))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(userLookupFanout)
	for i, acc := range list {
		labels[i] = acc.Name
		g.Go(func() error {
			c, err := p.client(gctx, acc)
			if err != nil {
				logger.Debug(gctx, component, "account.lookup", slog.String("account_id", acc.UserID), slog.String("err", err.Error()))
				return nil
			}
			u, err := c.GetUser(gctx, acc.UserID)
			if err != nil {
				logger.Debug(gctx, component, "account.lookup", slog.String("account_id", acc.UserID), slog.String("err", err.Error()))
				return nil
			}
			labels[i] = fmt.Sprintf("%s (%s)", acc.Name, u.Name)
			return nil
		})
	}
	_ = g.Wait()

	k := p.kb.New()
	for i, acc := range list {
		k.Add(labels[i], accountEnv(actAccountManage, acc))
	}
	return p.show(ctx, req, "OCI accounts:", k)
}

func (p *Panel) accountManage(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	env := accountEnv(actAccountManage, prof)
	back := envelope.New(actAccountList, envelope.Data{})

	c, err := p.client(ctx, prof)
	if err != nil {
		return err
	}
	u, err := c.GetUser(ctx, prof.UserID)
	if err != nil {
		return p.failure(ctx, req, err, back)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Account: %s\n", prof.Name)
	fmt.Fprintf(&b, "user: %s\n", u.Name)
	if u.Email != "" {
		fmt.Fprintf(&b, "email: %s\n", u.Email)
	}
	fmt.Fprintf(&b, "region: %s\n", prof.RegionID)
	fmt.Fprintf(&b, "tenancy: %s\n", prof.TenantID)
	fmt.Fprintf(&b, "fingerprint: %s", accounts.ColonFingerprint(prof.KeyFingerprint))

	k := p.kb.New()
	k.Row(k.Button("Servers", next(env, actServerList)), k.Button("Networks", next(env, actNetworkList)))
	k.Add("Create instance", next(env, actWizardStart))
	k.Add("Edit account", next(env, actAccountEdit))
	k.Back(back)
	return p.show(ctx, req, b.String(), k)
}

func (p *Panel) accountEdit(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	env := req.Event.Envelope
	k := p.kb.New()
	k.Row(k.Button("Rename", next(env, actAccountRename)), k.Button("Remove", next(env, actAccountRemove)))
	k.Back(next(env, actAccountManage))
	return p.show(ctx, req, "Edit account "+prof.Name, k)
}

func (p *Panel) accountRename(ctx context.Context, req *dispatch.Request) error {
	return p.flows.Start(ctx, req, flowAccountRename, req.Event.Envelope, nil)
}

func (p *Panel) accountRemove(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	env := req.Event.Envelope
	rows, err := p.kb.Prompt(next(env, actAccountRemoveConfirm), next(env, actAccountEdit))
	if err != nil {
		return err
	}
	_, err = req.Reply(ctx, dispatch.Message{
		Text:     fmt.Sprintf("Remove account %s? Servers in the tenancy are not touched.", prof.Name),
		Keyboard: rows,
	})
	return err
}

func (p *Panel) accountRemoveConfirm(ctx context.Context, req *dispatch.Request) error {
	prof, err := profile(req)
	if err != nil {
		return err
	}
	removed, err := p.dir.Remove(ctx, prof.UserID, req.Event.UserID)
	if err != nil {
		return err
	}
	if _, err := p.dir.CleanUnusedKeys(ctx); err != nil {
		logger.Warn(ctx, component, "keys.clean_failed", slog.String("err", err.Error()))
	}
	text := "Account removed."
	if !removed {
		text = "Account was already removed."
	}
	k := p.kb.New().Back(envelope.New(actAccountList, envelope.Data{}))
	return p.show(ctx, req, text, k)
}

func (p *Panel) clearKeys(ctx context.Context, req *dispatch.Request) error {
	n, err := p.dir.CleanUnusedKeys(ctx)
	if err != nil {
		return err
	}
	_, err = req.Reply(ctx, dispatch.Message{Text: fmt.Sprintf("Removed %d unused access keys.", n)})
	return err
}

func commandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	return fields[1:]
}

func (p *Panel) allow(ctx context.Context, req *dispatch.Request) error {
	args := commandArgs(req.Event.Text)
	if len(args) == 0 {
		_, err := req.Reply(ctx, dispatch.Message{Text: "Usage: /allow <telegram id> [name]"})
		return err
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		_, err := req.Reply(ctx, dispatch.Message{Text: "Telegram id must be a number."})
		return err
	}
	identity := strings.Join(args[1:], " ")
	if err := p.dir.Allow(ctx, id, identity); err != nil {
		return err
	}
	_, err = req.Reply(ctx, dispatch.Message{Text: fmt.Sprintf("User %d allowed.", id)})
	return err
}

func (p *Panel) deny(ctx context.Context, req *dispatch.Request) error {
	args := commandArgs(req.Event.Text)
	if len(args) == 0 {
		_, err := req.Reply(ctx, dispatch.Message{Text: "Usage: /deny <telegram id>"})
		return err
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		_, err := req.Reply(ctx, dispatch.Message{Text: "Telegram id must be a number."})
		return err
	}
	removed, err := p.dir.Deny(ctx, id)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("User %d revoked.", id)
	if !removed {
		text = fmt.Sprintf("User %d was not on the allow list.", id)
	}
	_, err = req.Reply(ctx, dispatch.Message{Text: text})
	return err
}

func (p *Panel) allowList(ctx context.Context, req *dispatch.Request) error {
	entries, err := p.dir.ListAllowed(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		_, err := req.Reply(ctx, dispatch.Message{Text: "The allow list is empty."})
		return err
	}
	var b strings.Builder
	b.WriteString("Allowed users:")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n%d %s", e.TelegramUserID, e.Identity)
	}
	_, err = req.Reply(ctx, dispatch.Message{Text: b.String()})
	return err
}

// Values carried between the two stages of the account-add flow.
const (
	valUser        = "user"
	valTenancy     = "tenancy"
	valRegion      = "region"
	valFingerprint = "fingerprint"
)

func (p *Panel) accountAddFlow() replyflow.Flow {
	return replyflow.Flow{
		Name:    flowAccountAdd,
		Initial: "config",
		Stages: map[string]replyflow.Stage{
			"config": {
				Prompt: func(_ context.Context, _ *replyflow.Turn, hint string) (dispatch.Message, error) {
					return dispatch.Message{
						Text:        withHint(hint, "Send the OCI config file (.ini) or paste its content starting with [DEFAULT]."),
						Placeholder: "[DEFAULT]",
					}, nil
				},
				Handle: p.handleAccountConfig,
				Next:   []string{"key"},
			},
			"key": {
				Prompt: func(_ context.Context, t *replyflow.Turn, hint string) (dispatch.Message, error) {
					fp := accounts.ColonFingerprint(t.Value(valFingerprint))
					return dispatch.Message{Text: withHint(hint, "Send the private key (.pem) for fingerprint "+fp+".")}, nil
				},
				Handle: p.handleAccountKey,
			},
		},
	}
}

func (p *Panel) handleAccountConfig(ctx context.Context, t *replyflow.Turn) (replyflow.Result, error) {
	ev := t.Req.Event
	data, err := payload(ctx, t.Req, ".ini")
	var wrong errWrongDocument
	if errors.As(err, &wrong) {
		return replyflow.Retry(wrong.Error()), nil
	}
	if err != nil {
		return replyflow.Result{}, err
	}
	if ev.Document == nil && !accounts.LooksLikeConfig(string(data)) {
		return replyflow.Retry("The text must start with [DEFAULT]."), nil
	}
	cfg, err := accounts.ParseConfig(data)
	if err != nil {
		return replyflow.Retry(strings.TrimPrefix(err.Error(), "accounts: ")), nil
	}
	prof := cfg.Profile(ev.UserID)

	if _, err := p.dir.Get(ctx, prof.UserID); err == nil {
		return replyflow.Finish(), p.say(ctx, t.Req, "This OCI user is already bound.")
	} else if !errors.Is(err, accounts.ErrNotFound) {
		return replyflow.Result{}, err
	}

	has, err := p.dir.HasKey(ctx, prof.KeyFingerprint)
	if err != nil {
		return replyflow.Result{}, err
	}
	if has {
		return replyflow.Finish(), p.bind(ctx, t.Req, prof)
	}
	t.SetValue(valUser, prof.UserID)
	t.SetValue(valTenancy, prof.TenantID)
	t.SetValue(valRegion, prof.RegionID)
	t.SetValue(valFingerprint, prof.KeyFingerprint)
	return replyflow.Advance("key"), nil
}

func (p *Panel) handleAccountKey(ctx context.Context, t *replyflow.Turn) (replyflow.Result, error) {
	data, err := payload(ctx, t.Req, ".pem")
	var wrong errWrongDocument
	if errors.As(err, &wrong) {
		return replyflow.Retry(wrong.Error()), nil
	}
	if err != nil {
		return replyflow.Result{}, err
	}
	key, err := accounts.ParsePrivateKey(data)
	if err != nil {
		return replyflow.Retry("This is not a PEM RSA private key."), nil
	}
	want := t.Value(valFingerprint)
	if key.Fingerprint != want {
		return replyflow.Retry(fmt.Sprintf("%s: the key is %s.", accounts.ErrFingerprintMismatch.Error(), accounts.ColonFingerprint(key.Fingerprint))), nil
	}
	if err := p.dir.PutKey(ctx, key.Fingerprint, key.PEM); err != nil {
		return replyflow.Result{}, err
	}
	prof := accounts.Profile{
		UserID:         t.Value(valUser),
		TenantID:       t.Value(valTenancy),
		RegionID:       t.Value(valRegion),
		KeyFingerprint: want,
		TelegramUserID: t.Req.Event.UserID,
		Name:           t.Value(valRegion),
	}
	return replyflow.Finish(), p.bind(ctx, t.Req, prof)
}

func (p *Panel) bind(ctx context.Context, req *dispatch.Request, prof accounts.Profile) error {
	err := p.dir.Add(ctx, prof)
	if errors.Is(err, accounts.ErrAlreadyBound) {
		return p.say(ctx, req, "This OCI user is already bound.")
	}
	if err != nil {
		return err
	}
	k := p.kb.New().Add("Open account", accountEnv(actAccountManage, prof))
	return p.show(ctx, req, "Account "+prof.Name+" added.", k)
}

func (p *Panel) say(ctx context.Context, req *dispatch.Request, text string) error {
	_, err := req.Send(ctx, dispatch.Message{Text: text})
	return err
}

func (p *Panel) accountRenameFlow() replyflow.Flow {
	return singleStage(flowAccountRename, func(_ context.Context, t *replyflow.Turn, hint string) (dispatch.Message, error) {
		prof, err := profileOf(t.Envelope)
		if err != nil {
			return dispatch.Message{}, err
		}
		return dispatch.Message{Text: withHint(hint, "Send a new name for account "+prof.Name+"."), Placeholder: prof.Name}, nil
	}, func(ctx context.Context, t *replyflow.Turn) (replyflow.Result, error) {
		prof, err := profileOf(t.Envelope)
		if err != nil {
			return replyflow.Result{}, err
		}
		name, ok := cleanName(t.Req.Event.Text)
		if !ok {
			return replyflow.Retry(fmt.Sprintf("The name must be 1 to %d characters.", maxNameLength)), nil
		}
		if err := p.dir.Rename(ctx, prof.UserID, t.Req.Event.UserID, name); err != nil {
			if errors.Is(err, accounts.ErrNotFound) {
				return replyflow.Finish(), p.say(ctx, t.Req, "The account no longer exists.")
			}
			return replyflow.Result{}, err
		}
		prof.Name = name
		k := p.kb.New().Add("Open account", accountEnv(actAccountManage, prof))
		return replyflow.Finish(), p.show(ctx, t.Req, "Account renamed to "+name+".", k)
	})
}

func cleanName(text string) (string, bool) {
	name := strings.TrimSpace(text)
	if name == "" || len([]rune(name)) > maxNameLength || strings.ContainsAny(name, "\n\r") {
		return "", false
	}
	return name, true
}

func singleStage(name string, prompt replyflow.PromptFunc, handle replyflow.HandleFunc) replyflow.Flow {
	return replyflow.Flow{
		Name:    name,
		Initial: "input",
		Stages:  map[string]replyflow.Stage{"input": {Prompt: prompt, Handle: handle}},
	}
}
