package panel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/ocipanel/core/engine/dispatch"
	"github.com/m3rciful/ocipanel/core/engine/envelope"
	"github.com/m3rciful/ocipanel/core/logger"
	"github.com/m3rciful/ocipanel/core/telegram/keyboard"
	"github.com/m3rciful/ocipanel/internal/accounts"
	"github.com/m3rciful/ocipanel/internal/provider"
	"github.com/m3rciful/ocipanel/internal/wizard"
)

// Extra-data keys carried by panel envelopes.
var (
	profileKey  = envelope.NewKey[accounts.Profile](dispatch.ProfileKey)
	instanceKey = envelope.NewKey[string]("instance_id")
	powerKey    = envelope.NewKey[provider.PowerAction]("power_action")
	volumesKey  = envelope.NewKey[[]string]("boot_volume_ids")
	vcnIDKey    = envelope.NewKey[string]("vcn_id")
	subnetIDKey = envelope.NewKey[string]("subnet_id")

	domainKey = envelope.NewKey[string]("availability_domain_name")
	faultKey  = envelope.NewKey[string]("availability_domain_fault")
	shapeKey  = envelope.NewKey[provider.Shape]("shape")
	sourceKey = envelope.NewKey[wizard.Source]("source")
	vcnKey    = envelope.NewKey[provider.Vcn]("vcn")
	subnetKey = envelope.NewKey[provider.Subnet]("subnet")
)

// next derives the envelope for action, merging ops into the current data. A failed derivation
// yields the zero envelope, which the keyboard reports when the button is rendered.
func next(env envelope.Envelope, action string, ops ...envelope.Op) envelope.Envelope {
	var patch *envelope.Patch
	if len(ops) > 0 {
		patch = envelope.Merge(ops...)
	}
	out, err := env.Next(action, patch)
	if err != nil {
		return envelope.Envelope{}
	}
	return out
}

// accountEnv builds an envelope that carries nothing but the account.
func accountEnv(action string, prof accounts.Profile) envelope.Envelope {
	data, err := envelope.Build(envelope.Set(profileKey, prof))
	if err != nil {
		return envelope.Envelope{}
	}
	return envelope.New(action, data)
}

func (p *Panel) show(ctx context.Context, req *dispatch.Request, text string, k *keyboard.Keyboard) error {
	return p.render(ctx, req, dispatch.Message{Text: text}, k)
}

// showMarkdown is show for text built with the format package.
func (p *Panel) showMarkdown(ctx context.Context, req *dispatch.Request, text string, k *keyboard.Keyboard) error {
	return p.render(ctx, req, dispatch.Message{Text: text, Markdown: true}, k)
}

func (p *Panel) render(ctx context.Context, req *dispatch.Request, msg dispatch.Message, k *keyboard.Keyboard) error {
	rows, err := k.Rows()
	if err != nil {
		return err
	}
	msg.Keyboard = rows
	_, err = req.Reply(ctx, msg)
	return err
}

// failure renders a provider error verbatim with a way back. Other errors are returned.
func (p *Panel) failure(ctx context.Context, req *dispatch.Request, err error, back envelope.Envelope) error {
	pe, ok := provider.AsError(err)
	if !ok {
		return err
	}
	logger.Warn(ctx, component, "provider.failure",
		slog.String("op", pe.Op),
		slog.Int("status_code", pe.Status),
		slog.String("action", req.Event.Action()),
	)
	k := p.kb.New().Back(back)
	return p.show(ctx, req, failureText(pe), k)
}

func failureText(pe *provider.Error) string {
	return fmt.Sprintf("Request failed.\nstatus: %d %s\nmessage: %s", pe.Status, pe.Code, pe.Message)
}

// alert answers the button press with a popup and leaves the menu untouched.
func alert(ctx context.Context, req *dispatch.Request, text string) error {
	if req.Event.Kind != dispatch.KindCallback {
		_, err := req.Send(ctx, dispatch.Message{Text: text})
		return err
	}
	return req.Out.Notify(ctx, text, true)
}

func withHint(hint, text string) string {
	if hint == "" {
		return text
	}
	return hint + "\n\n" + text
}

const clearCommand = ".clear"

func isClear(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), clearCommand)
}

// maxDocumentSize bounds uploaded documents.
const maxDocumentSize = 10 << 20

// errWrongDocument marks an upload with an unexpected name or size.
type errWrongDocument string

func (e errWrongDocument) Error() string { return string(e) }

// payload returns the reply text, or the uploaded document when its name ends with suffix.
func payload(ctx context.Context, req *dispatch.Request, suffix string) ([]byte, error) {
	ev := req.Event
	if ev.Document == nil {
		return []byte(ev.Text), nil
	}
	if !strings.HasSuffix(strings.ToLower(ev.Document.FileName), suffix) {
		return nil, errWrongDocument(fmt.Sprintf("Expected a %s document.", suffix))
	}
	if ev.Document.Size > maxDocumentSize {
		return nil, errWrongDocument("The document is larger than 10 MiB.")
	}
	data, err := req.Out.Download(ctx, ev.Document.FileID)
	if err != nil {
		return nil, fmt.Errorf("panel: download %s: %w", ev.Document.FileName, err)
	}
	if len(data) > maxDocumentSize {
		return nil, errWrongDocument("The document is larger than 10 MiB.")
	}
	return data, nil
}
