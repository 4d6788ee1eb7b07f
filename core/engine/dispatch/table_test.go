package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/m3rciful/ocipanel/core/engine/envelope"
	"github.com/m3rciful/ocipanel/core/engine/refcache"
)

type owner struct {
	UserID         string `json:"userId"`
	TelegramUserID int64  `json:"telegramUserId"`
}

var profileKey = envelope.NewKey[owner](ProfileKey)

func ownedEnvelope(action string, tgUser int64) envelope.Envelope {
	return envelope.New(action, envelope.MustBuild(envelope.Set(profileKey, owner{UserID: "ocid1.user", TelegramUserID: tgUser})))
}

func callbackEvent(env envelope.Envelope, user int64) *Event {
	return &Event{Kind: KindCallback, ChatID: 1, UserID: user, Envelope: env, Resolved: true}
}

func TestDispatchMatchesActionAndOwner(t *testing.T) {
	table := NewTable()
	hits := 0
	table.MustRegister("server.manage", func(context.Context, *Request) error {
		hits++
		return nil
	}, Callback()...)

	ok, err := table.Dispatch(context.Background(), &Request{Event: callbackEvent(ownedEnvelope("server.manage", 7), 7)})
	if err != nil || !ok || hits != 1 {
		t.Fatalf("owner dispatch: ok=%v err=%v hits=%d", ok, err, hits)
	}

	ok, err = table.Dispatch(context.Background(), &Request{Event: callbackEvent(ownedEnvelope("server.manage", 7), 8)})
	if err != nil || ok || hits != 1 {
		t.Fatalf("foreign user should be dropped silently: ok=%v err=%v hits=%d", ok, err, hits)
	}
}

func TestDispatchUnknownActionDropped(t *testing.T) {
	table := NewTable()
	ok, err := table.Dispatch(context.Background(), &Request{Event: callbackEvent(ownedEnvelope("nope", 1), 1)})
	if ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	ok, _ = table.Dispatch(context.Background(), &Request{Event: &Event{Kind: KindMessage, Text: "hi"}})
	if ok {
		t.Fatalf("plain message must not match")
	}
}

func TestDispatchFirstMatchWins(t *testing.T) {
	table := NewTable()
	var order []string
	table.MustRegister("a", func(context.Context, *Request) error {
		order = append(order, "doc")
		return nil
	}, IsCallback, HasDocument)
	table.MustRegister("a", func(context.Context, *Request) error {
		order = append(order, "first")
		return nil
	}, IsCallback)
	table.MustRegister("a", func(context.Context, *Request) error {
		order = append(order, "second")
		return nil
	}, IsCallback)

	_, _ = table.Dispatch(context.Background(), &Request{Event: callbackEvent(envelope.New("a", envelope.Data{}), 1)})
	if len(order) != 1 || order[0] != "first" {
		t.Fatalf("order = %v", order)
	}
}

func TestDispatchPropagatesHandlerError(t *testing.T) {
	table := NewTable()
	boom := errors.New("boom")
	table.MustRegister("a", func(context.Context, *Request) error { return boom }, PublicCallback()...)
	ok, err := table.Dispatch(context.Background(), &Request{Event: callbackEvent(envelope.New("a", envelope.Data{}), 1)})
	if !ok || !errors.Is(err, boom) {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestRegisterRejectsInvalid(t *testing.T) {
	table := NewTable()
	if err := table.Register("", func(context.Context, *Request) error { return nil }); err == nil {
		t.Fatalf("empty action accepted")
	}
	if err := table.Register("a", nil); err == nil {
		t.Fatalf("nil handler accepted")
	}
	if err := table.Register("a", func(context.Context, *Request) error { return nil }, nil); err == nil {
		t.Fatalf("nil predicate accepted")
	}
}

func TestOwnedByProfileRequiresProfile(t *testing.T) {
	ev := callbackEvent(envelope.New("a", envelope.Data{}), 1)
	if OwnedByProfile(ev) {
		t.Fatalf("envelope without profile must not be owned")
	}
	ev.Resolved = false
	if Resolved(ev) {
		t.Fatalf("unresolved event reported resolved")
	}
}

func TestResolverExpired(t *testing.T) {
	cache := refcache.New(refcache.Options{})
	r := Resolver{Cache: cache, Decode: func(s string) (string, error) { return s, nil }}

	code, err := cache.Put(envelope.New("network.menu", envelope.Data{}))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	ev := &Event{Kind: KindCallback, Data: code}
	if err := r.Resolve(ev); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ev.Action() != "network.menu" || ev.Code != code {
		t.Fatalf("resolved %+v", ev)
	}

	missing := &Event{Kind: KindCallback, Data: "ZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZ"}
	if err := r.Resolve(missing); !errors.Is(err, refcache.ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if Resolved(missing) {
		t.Fatalf("missing entry must stay unresolved")
	}
}

type recordingOut struct {
	edits, sends int
}

func (o *recordingOut) Send(context.Context, int64, Message) (int, error) { o.sends++; return 99, nil }
func (o *recordingOut) Edit(context.Context, int64, int, Message) error   { o.edits++; return nil }
func (o *recordingOut) Delete(context.Context, int64, int) error          { return nil }
func (o *recordingOut) Notify(context.Context, string, bool) error        { return nil }
func (o *recordingOut) Download(context.Context, string) ([]byte, error)  { return nil, nil }

func TestRequestReplyEditsCallbackMessage(t *testing.T) {
	out := &recordingOut{}
	req := &Request{Event: &Event{Kind: KindCallback, ChatID: 1, MessageID: 5}, Out: out}
	id, err := req.Reply(context.Background(), Message{Text: "menu"})
	if err != nil || id != 5 || out.edits != 1 {
		t.Fatalf("id=%d err=%v edits=%d", id, err, out.edits)
	}
	id, _ = req.Reply(context.Background(), Message{Text: "name?", ForceReply: true})
	if id != 99 || out.sends != 1 {
		t.Fatalf("force reply must send a new message: id=%d sends=%d", id, out.sends)
	}
}
