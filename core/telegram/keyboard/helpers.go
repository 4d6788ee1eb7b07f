package keyboard

import (
	"errors"

	"github.com/m3rciful/ocipanel/core/engine/dispatch"
	"github.com/m3rciful/ocipanel/core/engine/envelope"
	"github.com/m3rciful/ocipanel/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// Putter stores an envelope and returns its reference code; refcache.Cache satisfies it.
type Putter interface {
	Put(envelope.Envelope) (string, error)
}

const (
	// BackText labels the return button on every submenu.
	BackText = "<<< back"
	// YesText and NoText label confirmation prompts.
	YesText = "Yes"
	NoText  = "No"
)

// Builder turns envelopes into buttons, parking each envelope in the cache.
type Builder struct {
	cache Putter
}

// NewBuilder binds a builder to the cache.
func NewBuilder(cache Putter) *Builder {
	return &Builder{cache: cache}
}

// Keyboard accumulates rows. The first failure is kept and returned by Rows.
type Keyboard struct {
	b    *Builder
	rows [][]dispatch.Button
	err  error
}

// New starts an empty keyboard.
func (b *Builder) New() *Keyboard {
	return &Keyboard{b: b}
}

// Button renders an envelope button. Errors surface later through Rows.
func (k *Keyboard) Button(text string, env envelope.Envelope) dispatch.Button {
	if k.err != nil {
		return dispatch.Button{Text: text}
	}
	if env.IsZero() {
		k.err = errors.New("keyboard: button without action")
		return dispatch.Button{Text: text}
	}
	code, err := k.b.cache.Put(env)
	if err != nil {
		k.err = err
		return dispatch.Button{Text: text}
	}
	data, err := callbacks.Encode(code)
	if err != nil {
		k.err = err
		return dispatch.Button{Text: text}
	}
	return dispatch.Button{Text: text, Data: data}
}

// Row appends one row.
func (k *Keyboard) Row(buttons ...dispatch.Button) *Keyboard {
	if len(buttons) > 0 {
		k.rows = append(k.rows, buttons)
	}
	return k
}

// Add appends a single-button row.
func (k *Keyboard) Add(text string, env envelope.Envelope) *Keyboard {
	return k.Row(k.Button(text, env))
}

// Back appends the standard return button.
func (k *Keyboard) Back(env envelope.Envelope) *Keyboard {
	return k.Add(BackText, env)
}

// Chunk appends buttons n per row.
func (k *Keyboard) Chunk(buttons []dispatch.Button, n int) *Keyboard {
	for _, row := range ChunkButtons(buttons, n) {
		k.Row(row...)
	}
	return k
}

// Rows returns the accumulated layout or the first error.
func (k *Keyboard) Rows() ([][]dispatch.Button, error) {
	if k.err != nil {
		return nil, k.err
	}
	return k.rows, nil
}

// Prompt builds a Yes/No keyboard.
func (b *Builder) Prompt(yes, no envelope.Envelope) ([][]dispatch.Button, error) {
	k := b.New()
	return k.Row(k.Button(YesText, yes), k.Button(NoText, no)).Rows()
}

// ChunkButtons splits a flat list into rows with up to n buttons per row.
func ChunkButtons(buttons []dispatch.Button, n int) [][]dispatch.Button {
	if n <= 1 {
		out := make([][]dispatch.Button, 0, len(buttons))
		for _, b := range buttons {
			out = append(out, []dispatch.Button{b})
		}
		return out
	}
	var rows [][]dispatch.Button
	for i := 0; i < len(buttons); i += n {
		end := i + n
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, buttons[i:end])
	}
	return rows
}

// Markup converts a message layout into telebot reply markup.
func Markup(msg dispatch.Message) *tele.ReplyMarkup {
	if msg.ForceReply {
		return &tele.ReplyMarkup{ForceReply: true, Placeholder: msg.Placeholder}
	}
	if len(msg.Keyboard) == 0 {
		return nil
	}
	inline := make([][]tele.InlineButton, 0, len(msg.Keyboard))
	for _, row := range msg.Keyboard {
		r := make([]tele.InlineButton, 0, len(row))
		for _, btn := range row {
			r = append(r, tele.InlineButton{Text: btn.Text, Data: btn.Data})
		}
		inline = append(inline, r)
	}
	return &tele.ReplyMarkup{InlineKeyboard: inline}
}
