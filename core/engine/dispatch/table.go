package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/m3rciful/ocipanel/core/logger"
)

// Handler answers one dispatched event.
type Handler func(ctx context.Context, req *Request) error

type route struct {
	action     string
	predicates []Predicate
	handler    Handler
}

// Table indexes registered actions by name. Registration normally happens at startup;
// dispatch only takes the read lock.
type Table struct {
	mu       sync.RWMutex
	byAction map[string][]route
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{byAction: make(map[string][]route)}
}

// Register binds handler to action. Several entries may share an action; the first whose
// predicates all hold wins, in registration order.
func (t *Table) Register(action string, handler Handler, predicates ...Predicate) error {
	if action == "" {
		return errors.New("dispatch: empty action")
	}
	if handler == nil {
		return fmt.Errorf("dispatch: nil handler for %s", action)
	}
	for i, p := range predicates {
		if p == nil {
			return fmt.Errorf("dispatch: nil predicate %d for %s", i, action)
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byAction[action] = append(t.byAction[action], route{
		action:     action,
		predicates: append([]Predicate(nil), predicates...),
		handler:    handler,
	})
	return nil
}

// MustRegister panics on registration errors; used for static wiring.
func (t *Table) MustRegister(action string, handler Handler, predicates ...Predicate) {
	if err := t.Register(action, handler, predicates...); err != nil {
		panic(err)
	}
}

// Dispatch runs the first matching handler. It reports false, without error, when nothing matched.
func (t *Table) Dispatch(ctx context.Context, req *Request) (bool, error) {
	if req == nil || req.Event == nil {
		return false, nil
	}
	action := req.Event.Action()
	h, ok := t.match(action, req.Event)
	if !ok {
		logger.Debug(ctx, "engine.dispatch", "dispatch.drop",
			slog.String("action", action),
			slog.String("kind", req.Event.Kind.String()),
			slog.Bool("resolved", req.Event.Resolved),
		)
		return false, nil
	}
	return true, h(ctx, req)
}

func (t *Table) match(action string, ev *Event) (Handler, bool) {
	if action == "" {
		return nil, false
	}
	t.mu.RLock()
	routes := t.byAction[action]
	t.mu.RUnlock()
	for _, r := range routes {
		if all(r.predicates, ev) {
			return r.handler, true
		}
	}
	return nil, false
}

func all(preds []Predicate, ev *Event) bool {
	for _, p := range preds {
		if !p(ev) {
			return false
		}
	}
	return true
}

// Actions lists registered action names, sorted, for diagnostics.
func (t *Table) Actions() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.byAction))
	for name := range t.byAction {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
