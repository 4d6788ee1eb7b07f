// Package replyflow runs multi-turn conversations driven by force-reply prompts. Each flow is a
// finite state machine; the pending stage and the id of the prompt awaiting an answer are kept per
// (chat, user) in the session backend.
package replyflow

import (
	"context"
	"fmt"

	"github.com/m3rciful/ocipanel/core/engine/dispatch"
	"github.com/m3rciful/ocipanel/core/engine/envelope"
)

// Turn is the context handed to a stage: the reply being handled plus the data carried by the flow.
type Turn struct {
	Req   *dispatch.Request
	Flow  string
	Stage string
	// Envelope is the callback envelope the flow was started from. Handlers may replace it.
	Envelope envelope.Envelope
	Values   map[string]string
}

// Value returns a carried value.
func (t *Turn) Value(key string) string { return t.Values[key] }

// SetValue carries a value into later stages.
func (t *Turn) SetValue(key, value string) {
	if t.Values == nil {
		t.Values = make(map[string]string)
	}
	t.Values[key] = value
}

// PromptFunc renders the request message for a stage. hint is empty on first entry and holds a
// corrective message when the previous answer was rejected.
type PromptFunc func(ctx context.Context, t *Turn, hint string) (dispatch.Message, error)

// HandleFunc consumes the reply to a stage prompt.
type HandleFunc func(ctx context.Context, t *Turn) (Result, error)

// Stage is one state of a flow.
type Stage struct {
	Prompt PromptFunc
	Handle HandleFunc
	// Next lists the stages Handle may advance to.
	Next []string
}

// Flow is a named state machine.
type Flow struct {
	Name    string
	Initial string
	Stages  map[string]Stage
}

func (f Flow) validate() error {
	if f.Name == "" {
		return fmt.Errorf("replyflow: flow without name")
	}
	if _, ok := f.Stages[f.Initial]; !ok {
		return fmt.Errorf("replyflow: %s: initial stage %q not defined", f.Name, f.Initial)
	}
	for name, st := range f.Stages {
		if st.Prompt == nil || st.Handle == nil {
			return fmt.Errorf("replyflow: %s/%s: prompt and handle are required", f.Name, name)
		}
		for _, next := range st.Next {
			if _, ok := f.Stages[next]; !ok {
				return fmt.Errorf("replyflow: %s/%s: transition to undefined stage %q", f.Name, name, next)
			}
		}
	}
	return nil
}

func (f Flow) allows(from, to string) bool {
	for _, next := range f.Stages[from].Next {
		if next == to {
			return true
		}
	}
	return false
}

type resultKind int

const (
	resultFinish resultKind = iota
	resultRetry
	resultAdvance
)

// Result tells the engine what to do after a stage handled a reply.
type Result struct {
	kind  resultKind
	hint  string
	stage string
}

// Finish ends the flow and clears the pending marker.
func Finish() Result { return Result{kind: resultFinish} }

// Retry re-sends the current stage prompt with hint and waits for a new reply.
func Retry(hint string) Result { return Result{kind: resultRetry, hint: hint} }

// Advance moves to stage, which must be listed in the current stage's Next.
func Advance(stage string) Result { return Result{kind: resultAdvance, stage: stage} }
