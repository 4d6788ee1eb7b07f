package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

type wizardState struct {
	Region  *regionPick `cbor:"1,keyasint,omitempty"`
	Shape   string      `cbor:"2,keyasint,omitempty"`
	Counter int         `cbor:"3,keyasint"`
	Keys    []string    `cbor:"4,keyasint,omitempty"`
}

type regionPick struct {
	AvailabilityDomain string `cbor:"1,keyasint"`
	FaultDomain        string `cbor:"2,keyasint,omitempty"`
}

func newTestStore(t *testing.T, backend Backend) *Store[wizardState] {
	t.Helper()
	codec, err := NewCodec[wizardState]("wizard", 1)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	return NewStore("oc_instance_create", backend, codec)
}

func TestKeyString(t *testing.T) {
	k := Key{Namespace: "oc_instance_create", ChatID: -100, UserID: 7}
	if got := k.String(); got != "oc_instance_create::chat_-100::user_7" {
		t.Fatalf("key = %q", got)
	}
	back, err := ParseKey(k.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if back != k {
		t.Fatalf("parsed %+v, want %+v", back, k)
	}
}

func TestStoreRoundTripAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, NewMemoryBackend())

	v := wizardState{
		Region:  &regionPick{AvailabilityDomain: "AD-1", FaultDomain: "FAULT-DOMAIN-2"},
		Shape:   "VM.Standard.A1.Flex",
		Counter: 3,
		Keys:    []string{"ssh-ed25519 AAAA a@b"},
	}
	if err := s.Set(ctx, 1, 2, &v); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := s.Get(ctx, 1, 2)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Region == nil || *got.Region != *v.Region || got.Shape != v.Shape || got.Counter != 3 || len(got.Keys) != 1 {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if other, _ := s.Get(ctx, 1, 3); other.Region != nil || other.Counter != 0 {
		t.Fatalf("other user sees state: %+v", other)
	}

	if err := s.Set(ctx, 1, 2, nil); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = s.Get(ctx, 1, 2)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got.Region != nil || got.Shape != "" {
		t.Fatalf("expected default after delete, got %+v", got)
	}
}

func TestStoreDefaultConstructor(t *testing.T) {
	codec, _ := NewCodec[wizardState]("wizard", 1)
	s := NewStore("ns", NewMemoryBackend(), codec, WithDefault(func() wizardState {
		return wizardState{Counter: -1}
	}))
	got, err := s.Get(context.Background(), 5, 5)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Counter != -1 {
		t.Fatalf("default not applied: %+v", got)
	}
}

func TestStoreUpdateIsAtomicPerKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, NewMemoryBackend())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(ctx, 9, 9, func(cur wizardState, _ bool) (*wizardState, error) {
				cur.Counter++
				return &cur, nil
			})
			if err != nil {
				t.Errorf("update: %v", err)
			}
		}()
	}
	wg.Wait()
	got, _ := s.Get(ctx, 9, 9)
	if got.Counter != 50 {
		t.Fatalf("counter = %d, want 50", got.Counter)
	}
	if n := s.locks.held(); n != 0 {
		t.Fatalf("locks leaked: %d", n)
	}
}

func TestStoreRejectsOtherVersion(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	oldCodec, _ := NewCodec[wizardState]("wizard", 1)
	old := NewStore("ns", backend, oldCodec)
	if err := old.Set(ctx, 1, 1, &wizardState{Shape: "x"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	newCodec, _ := NewCodec[wizardState]("wizard", 2)
	current := NewStore("ns", backend, newCodec)
	got, err := current.Get(ctx, 1, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Shape != "" {
		t.Fatalf("stale version should read as default, got %+v", got)
	}
	if _, err := backend.Load(ctx, current.Key(1, 1).String()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stale blob should be dropped, got %v", err)
	}
}

func TestCodecUpgrade(t *testing.T) {
	v1, _ := NewCodec[wizardState]("wizard", 1)
	blob, err := v1.Marshal(&wizardState{Shape: "old"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	v2, _ := NewCodec[wizardState]("wizard", 2)
	v2.Upgrade = func(from uint16, payload []byte) ([]byte, error) {
		if from != 1 {
			t.Fatalf("from = %d", from)
		}
		return payload, nil
	}
	got, err := v2.Unmarshal(blob)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Shape != "old" {
		t.Fatalf("shape = %q", got.Shape)
	}

	other, _ := NewCodec[wizardState]("replyflow", 1)
	if _, err := other.Unmarshal(blob); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestMemoryBackendPurge(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	base := time.Unix(1_700_000_000, 0)
	b.now = func() time.Time { return base }
	_ = b.Save(ctx, "a", []byte{1})
	b.now = func() time.Time { return base.Add(time.Hour) }
	_ = b.Save(ctx, "b", []byte{2})
	n, err := b.Purge(ctx, base.Add(time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("purge = %d, %v", n, err)
	}
	if _, err := b.Load(ctx, "b"); err != nil {
		t.Fatalf("b purged: %v", err)
	}
}

func openSQLite(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE engine_sessions (
		session_key TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		updated_at BIGINT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func TestSQLBackendSurvivesStoreRecreation(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	first := newTestStore(t, NewSQLBackend(db))
	want := wizardState{Region: &regionPick{AvailabilityDomain: "AD-2"}, Counter: 1}
	if err := first.Set(ctx, 10, 20, &want); err != nil {
		t.Fatalf("set: %v", err)
	}
	want.Counter = 2
	if err := first.Set(ctx, 10, 20, &want); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// a new store over the same table behaves like a restarted process
	second := newTestStore(t, NewSQLBackend(db))
	got, err := second.Get(ctx, 10, 20)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Region == nil || got.Region.AvailabilityDomain != "AD-2" || got.Counter != 2 {
		t.Fatalf("restored %+v", got)
	}

	if err := second.Set(ctx, 10, 20, nil); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := NewSQLBackend(db).Load(ctx, second.Key(10, 20).String()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSQLBackendPurge(t *testing.T) {
	ctx := context.Background()
	b := NewSQLBackend(openSQLite(t))
	base := time.Unix(1_700_000_000, 0)
	b.now = func() time.Time { return base }
	_ = b.Save(ctx, "old", []byte{1})
	b.now = func() time.Time { return base.Add(48 * time.Hour) }
	_ = b.Save(ctx, "new", []byte{2})
	n, err := b.Purge(ctx, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged %d, want 1", n)
	}
}

type brokenResult struct{ err error }

func (r brokenResult) LastInsertId() (int64, error) { return 0, r.err }
func (r brokenResult) RowsAffected() (int64, error) { return 0, r.err }

func TestAffectedReportsDriverError(t *testing.T) {
	cause := errors.New("driver cannot count rows")
	if _, err := affected(brokenResult{err: cause}, "purge"); !errors.Is(err, cause) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}
	if n, err := affected(brokenResult{}, "purge"); err != nil || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}
