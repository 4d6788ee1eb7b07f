package keyboard

import (
	"errors"
	"testing"

	"github.com/m3rciful/ocipanel/core/engine/dispatch"
	"github.com/m3rciful/ocipanel/core/engine/envelope"
	"github.com/m3rciful/ocipanel/core/engine/refcache"
	"github.com/m3rciful/ocipanel/core/telegram/callbacks"
)

type failingPutter struct{}

func (failingPutter) Put(envelope.Envelope) (string, error) { return "", errors.New("full") }

func TestKeyboardButtonsResolveThroughCache(t *testing.T) {
	cache := refcache.New(refcache.Options{})
	b := NewBuilder(cache)
	menu := envelope.New("instance.create.menu", envelope.Data{})
	k := b.New()
	k.Add("Region", menu.NextReplace("instance.create.region", envelope.Data{})).Back(menu)
	rows, err := k.Rows()
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 2 || rows[1][0].Text != BackText {
		t.Fatalf("layout = %+v", rows)
	}
	code, err := callbacks.Decode(rows[0][0].Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	env, err := cache.Get(code)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if env.Action() != "instance.create.region" {
		t.Fatalf("action = %q", env.Action())
	}
}

func TestKeyboardKeepsFirstError(t *testing.T) {
	k := NewBuilder(failingPutter{}).New()
	k.Add("A", envelope.New("a", envelope.Data{}))
	if _, err := k.Rows(); err == nil {
		t.Fatalf("expected cache error")
	}
}

func TestChunkButtons(t *testing.T) {
	rows := ChunkButtons(make([]dispatch.Button, 5), 2)
	if len(rows) != 3 || len(rows[2]) != 1 {
		t.Fatalf("rows = %+v", rows)
	}
}
