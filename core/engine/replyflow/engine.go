package replyflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/m3rciful/ocipanel/core/engine/dispatch"
	"github.com/m3rciful/ocipanel/core/engine/envelope"
	"github.com/m3rciful/ocipanel/core/engine/session"
	"github.com/m3rciful/ocipanel/core/logger"
)

const (
	schemaName    = "replyflow.pending"
	schemaVersion = 1
	namespacePref = "replyflow_"
)

type pending struct {
	Stage    string            `cbor:"1,keyasint"`
	Token    int               `cbor:"2,keyasint"`
	Envelope []byte            `cbor:"3,keyasint,omitempty"`
	Values   map[string]string `cbor:"4,keyasint,omitempty"`
}

type registered struct {
	flow  Flow
	store *session.Store[pending]
}

// Engine owns the registered flows and their pending markers.
type Engine struct {
	backend session.Backend
	codec   *session.Codec[pending]
	locks   *session.KeyedMutex

	mu    sync.RWMutex
	flows map[string]*registered
	order []string
}

// New builds an engine persisting pending stages in backend.
func New(backend session.Backend) (*Engine, error) {
	codec, err := session.NewCodec[pending](schemaName, schemaVersion)
	if err != nil {
		return nil, err
	}
	return &Engine{
		backend: backend,
		codec:   codec,
		locks:   session.NewKeyedMutex(),
		flows:   make(map[string]*registered),
	}, nil
}

// Register adds a flow after checking its transition table.
func (e *Engine) Register(f Flow) error {
	if err := f.validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.flows[f.Name]; exists {
		return fmt.Errorf("replyflow: flow %s already registered", f.Name)
	}
	e.flows[f.Name] = &registered{
		flow:  f,
		store: session.NewStore(namespacePref+f.Name, e.backend, e.codec, session.WithLocks[pending](e.locks)),
	}
	e.order = append(e.order, f.Name)
	return nil
}

// MustRegister panics on invalid flows; used for static wiring.
func (e *Engine) MustRegister(f Flow) {
	if err := e.Register(f); err != nil {
		panic(err)
	}
}

func (e *Engine) lookup(name string) (*registered, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.flows[name]
	return r, ok
}

// Start sends the initial prompt of flow and records it as the pending stage for the event's
// (chat, user), replacing any earlier pending instance of the same flow.
func (e *Engine) Start(ctx context.Context, req *dispatch.Request, flow string, env envelope.Envelope, values map[string]string) error {
	r, ok := e.lookup(flow)
	if !ok {
		return fmt.Errorf("replyflow: unknown flow %s", flow)
	}
	ev := req.Event
	return r.store.Update(ctx, ev.ChatID, ev.UserID, func(_ pending, _ bool) (*pending, error) {
		turn := &Turn{Req: req, Flow: flow, Stage: r.flow.Initial, Envelope: env, Values: maps.Clone(values)}
		next, err := e.prompt(ctx, r.flow, turn, "")
		if err != nil {
			return nil, err
		}
		logger.Debug(ctx, "engine.replyflow", "replyflow.start",
			slog.String("flow", flow),
			slog.String("stage", turn.Stage),
			slog.Int("token", next.Token),
		)
		return next, nil
	})
}

// HandleReply runs the pending stage whose prompt the event replies to. It reports false when the
// event is not a reply to any pending prompt of the (chat, user).
func (e *Engine) HandleReply(ctx context.Context, req *dispatch.Request) (bool, error) {
	ev := req.Event
	if ev == nil || ev.Kind != dispatch.KindMessage || ev.ReplyToID == 0 {
		return false, nil
	}
	e.mu.RLock()
	names := append([]string(nil), e.order...)
	e.mu.RUnlock()

	for _, name := range names {
		r, _ := e.lookup(name)
		peek, err := r.store.Get(ctx, ev.ChatID, ev.UserID)
		if err != nil {
			return false, err
		}
		if peek.Stage == "" || peek.Token != ev.ReplyToID {
			continue
		}
		matched := false
		err = r.store.Update(ctx, ev.ChatID, ev.UserID, func(cur pending, exists bool) (*pending, error) {
			if !exists || cur.Token != ev.ReplyToID {
				return keep(cur, exists), nil
			}
			stage, ok := r.flow.Stages[cur.Stage]
			if !ok {
				logger.Warn(ctx, "engine.replyflow", "replyflow.stale_stage",
					slog.String("flow", name),
					slog.String("stage", cur.Stage),
				)
				return nil, nil
			}
			matched = true
			return e.step(ctx, r.flow, stage, req, cur)
		})
		if matched || err != nil {
			return matched, err
		}
	}
	return false, nil
}

func keep(cur pending, exists bool) *pending {
	if !exists {
		return nil
	}
	return &cur
}

func (e *Engine) step(ctx context.Context, f Flow, stage Stage, req *dispatch.Request, cur pending) (*pending, error) {
	turn := &Turn{Req: req, Flow: f.Name, Stage: cur.Stage, Values: maps.Clone(cur.Values)}
	if len(cur.Envelope) > 0 {
		if err := json.Unmarshal(cur.Envelope, &turn.Envelope); err != nil {
			return nil, fmt.Errorf("replyflow: %s: decode envelope: %w", f.Name, err)
		}
	}

	res, err := stage.Handle(ctx, turn)
	if err != nil {
		return &cur, err
	}

	switch res.kind {
	case resultRetry:
		logger.Debug(ctx, "engine.replyflow", "replyflow.retry",
			slog.String("flow", f.Name),
			slog.String("stage", cur.Stage),
		)
		return e.prompt(ctx, f, turn, res.hint)
	case resultAdvance:
		if !f.allows(cur.Stage, res.stage) {
			return &cur, fmt.Errorf("replyflow: %s: transition %s -> %s not allowed", f.Name, cur.Stage, res.stage)
		}
		logger.Debug(ctx, "engine.replyflow", "replyflow.advance",
			slog.String("flow", f.Name),
			slog.String("stage", cur.Stage),
			slog.String("next", res.stage),
		)
		turn.Stage = res.stage
		return e.prompt(ctx, f, turn, "")
	default:
		logger.Debug(ctx, "engine.replyflow", "replyflow.finish",
			slog.String("flow", f.Name),
			slog.String("stage", cur.Stage),
		)
		return nil, nil
	}
}

// prompt sends the prompt of turn.Stage and returns the pending record pointing at it.
func (e *Engine) prompt(ctx context.Context, f Flow, turn *Turn, hint string) (*pending, error) {
	msg, err := f.Stages[turn.Stage].Prompt(ctx, turn, hint)
	if err != nil {
		return nil, err
	}
	msg.ForceReply = true
	msg.Keyboard = nil
	id, err := turn.Req.Send(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("replyflow: %s/%s: send prompt: %w", f.Name, turn.Stage, err)
	}
	p := &pending{Stage: turn.Stage, Token: id, Values: turn.Values}
	if !turn.Envelope.IsZero() {
		raw, err := json.Marshal(turn.Envelope)
		if err != nil {
			return nil, fmt.Errorf("replyflow: %s: encode envelope: %w", f.Name, err)
		}
		p.Envelope = raw
	}
	return p, nil
}

// Cancel drops the pending stage of flow for (chat, user).
func (e *Engine) Cancel(ctx context.Context, flow string, chatID, userID int64) error {
	r, ok := e.lookup(flow)
	if !ok {
		return fmt.Errorf("replyflow: unknown flow %s", flow)
	}
	return r.store.Set(ctx, chatID, userID, nil)
}

// PendingStage reports the pending stage and token of flow for (chat, user).
func (e *Engine) PendingStage(ctx context.Context, flow string, chatID, userID int64) (string, int, bool, error) {
	r, ok := e.lookup(flow)
	if !ok {
		return "", 0, false, fmt.Errorf("replyflow: unknown flow %s", flow)
	}
	p, err := r.store.Get(ctx, chatID, userID)
	if err != nil {
		return "", 0, false, err
	}
	if p.Stage == "" {
		return "", 0, false, nil
	}
	return p.Stage, p.Token, true, nil
}
