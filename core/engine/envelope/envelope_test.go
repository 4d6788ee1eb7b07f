package envelope

import (
	"encoding/json"
	"testing"
)

type profileRef struct {
	UserID         string `json:"userId"`
	TelegramUserID int64  `json:"telegramUserId"`
}

var (
	keyProfile = NewKey[profileRef]("account_profile")
	keyImage   = NewKey[string]("image_id")
	keyShape   = NewKey[string]("shape")
	keyPage    = NewKey[int]("current_page_number")
)

func baseEnvelope(t *testing.T) Envelope {
	t.Helper()
	data, err := Build(
		Set(keyProfile, profileRef{UserID: "ocid1.user", TelegramUserID: 42}),
		Set(keyImage, "img-1"),
		Set(keyShape, "VM.Standard.A1.Flex"),
	)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return New("instance.create.menu", data)
}

func TestNextWithoutPatchKeepsData(t *testing.T) {
	e := baseEnvelope(t)
	next, err := e.Next("instance.create.shape", nil)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if next.Action() != "instance.create.shape" {
		t.Fatalf("unexpected action %q", next.Action())
	}
	if !next.Data().Equal(e.Data()) {
		t.Fatalf("data changed: %v", next.Data().Keys())
	}
}

func TestNextMergeOverridesAndKeeps(t *testing.T) {
	e := baseEnvelope(t)
	next, err := e.Next("x", Merge(Set(keyShape, "VM.Standard.E2.1.Micro"), Set(keyPage, 2)))
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	d := next.Data()
	want := []string{"account_profile", "image_id", "shape", "current_page_number"}
	got := d.Keys()
	if len(got) != len(want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("keys = %v, want %v", got, want)
		}
	}
	shape, _ := Lookup(d, keyShape)
	if shape != "VM.Standard.E2.1.Micro" {
		t.Fatalf("shape not overridden: %q", shape)
	}
	img, ok := Lookup(d, keyImage)
	if !ok || img != "img-1" {
		t.Fatalf("image lost: %q %v", img, ok)
	}
	page, _ := Lookup(d, keyPage)
	if page != 2 {
		t.Fatalf("page = %d", page)
	}
}

func TestNextUnsetDeletesKey(t *testing.T) {
	e := baseEnvelope(t)
	next, err := e.Next("x", Merge(Unset(keyImage), Unset(keyPage)))
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	d := next.Data()
	if d.Has("image_id") {
		t.Fatalf("image_id should be removed")
	}
	if !d.Has("account_profile") || !d.Has("shape") {
		t.Fatalf("unrelated keys lost: %v", d.Keys())
	}
	if !e.Data().Has("image_id") {
		t.Fatalf("source envelope mutated")
	}
}

func TestNextReplaceDiscardsOldData(t *testing.T) {
	e := baseEnvelope(t)
	repl := MustBuild(Set(keyPage, 3))
	next := e.NextReplace("page", repl)
	if !next.Data().Equal(repl) {
		t.Fatalf("replace mismatch: %v", next.Data().Keys())
	}
}

func TestPatchFromJSONNullDeletes(t *testing.T) {
	e := baseEnvelope(t)
	p, err := PatchFromJSON([]byte(`{"image_id":null,"shape":"A"}`))
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	next, err := e.Next("x", p)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if next.Data().Has("image_id") {
		t.Fatalf("null should delete image_id")
	}
	if v, _ := Lookup(next.Data(), keyShape); v != "A" {
		t.Fatalf("shape = %q", v)
	}
}

func TestSetNullValueDeletes(t *testing.T) {
	e := baseEnvelope(t)
	var volumes []string
	next, err := e.Next("x", Merge(Set(NewKey[*profileRef]("account_profile"), nil), Set(NewKey[[]string]("shape"), volumes)))
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if next.Data().Has("account_profile") || next.Data().Has("shape") {
		t.Fatalf("nil values should delete their keys: %v", next.Data().Keys())
	}
	if !next.Data().Has("image_id") {
		t.Fatalf("unrelated key lost: %v", next.Data().Keys())
	}
}

func TestEnvelopeJSONKeepsOrder(t *testing.T) {
	e := baseEnvelope(t)
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Envelope
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(e) {
		t.Fatalf("decoded envelope differs: %s", b)
	}
	prof, ok := Lookup(back.Data(), keyProfile)
	if !ok || prof.TelegramUserID != 42 {
		t.Fatalf("profile = %+v", prof)
	}
}

func TestGetReportsDecodeError(t *testing.T) {
	d := MustBuild(Set(keyImage, "x"))
	if _, present, err := Get(d, NewKey[int]("image_id")); !present || err == nil {
		t.Fatalf("expected decode error, present=%v err=%v", present, err)
	}
}
