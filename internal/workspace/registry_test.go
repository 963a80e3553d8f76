package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dshills/notepad/internal/history"
	"github.com/dshills/notepad/internal/store"
)

// manualScheduler never fires on its own; histories stay Editing until
// flushed or committed.
type manualScheduler struct{}

type manualTimer struct{}

func (manualTimer) Stop() bool { return true }

func (manualScheduler) AfterFunc(time.Duration, func()) history.Timer { return manualTimer{} }

// failStore fails every write.
type failStore struct {
	mu   sync.Mutex
	puts int
}

func (s *failStore) Get(context.Context, string) (string, error) { return "", store.ErrNotFound }

func (s *failStore) Put(context.Context, string, string) error {
	s.mu.Lock()
	s.puts++
	s.mu.Unlock()
	return errors.New("disk full")
}

func (s *failStore) Delete(context.Context, string) error { return errors.New("disk full") }
func (s *failStore) Close() error                         { return nil }

func newTestRegistry(t *testing.T, st store.Store) *Registry {
	t.Helper()
	return New(
		WithStore(st),
		WithScheduler(manualScheduler{}),
		WithPersistDelay(time.Hour),
	)
}

func mustGet(t *testing.T, st store.Store, key string) string {
	t.Helper()
	v, err := st.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", key, err)
	}
	return v
}

func TestRestore_EmptyStoreCreatesOneDocument(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	r := newTestRegistry(t, st)

	if err := r.Restore(ctx); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if r.Count() != 1 {
		t.Fatalf("Count = %d, want 1", r.Count())
	}
	active := r.Active()
	if active == nil || active.Text() != "" {
		t.Fatalf("Active = %+v, want empty document", active)
	}
	if active.History.MaxEntries() != history.TabMaxEntries {
		t.Errorf("MaxEntries = %d, want %d", active.History.MaxEntries(), history.TabMaxEntries)
	}

	var ids []string
	if err := json.Unmarshal([]byte(mustGet(t, st, store.KeyTabs)), &ids); err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != active.ID {
		t.Errorf("stored tabs = %v, want [%s]", ids, active.ID)
	}
	if got := mustGet(t, st, store.KeyActiveTab); got != active.ID {
		t.Errorf("stored active = %q, want %q", got, active.ID)
	}
}

func TestRestore_NoStore(t *testing.T) {
	r := New(WithScheduler(manualScheduler{}))
	if err := r.Restore(context.Background()); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if r.Count() != 1 {
		t.Errorf("Count = %d, want 1", r.Count())
	}
}

func TestRestore_ReloadsPersistedDocuments(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	first := newTestRegistry(t, st)
	if err := first.Restore(ctx); err != nil {
		t.Fatal(err)
	}
	a := first.Active()
	a.History.CommitImmediate("alpha")
	b, err := first.Create(ctx, "beta")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := first.SetActive(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if err := first.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	second := newTestRegistry(t, st)
	if err := second.Restore(ctx); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	docs := second.All()
	if len(docs) != 2 {
		t.Fatalf("restored %d documents, want 2", len(docs))
	}
	if docs[0].ID != a.ID || docs[1].ID != b.ID {
		t.Errorf("order = [%s %s], want [%s %s]", docs[0].ID, docs[1].ID, a.ID, b.ID)
	}
	if docs[0].Text() != "alpha" || docs[1].Text() != "beta" {
		t.Errorf("texts = %q, %q", docs[0].Text(), docs[1].Text())
	}
	if second.Active().ID != a.ID {
		t.Errorf("active = %s, want %s", second.Active().ID, a.ID)
	}

	// Restored histories start fresh at the persisted text.
	if docs[0].History.CanUndo() || docs[0].History.Len() != 1 {
		t.Errorf("restored history len = %d", docs[0].History.Len())
	}
}

func TestRestore_UnreadableIndexStartsFresh(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	if err := st.Put(ctx, store.KeyTabs, "{not json"); err != nil {
		t.Fatal(err)
	}

	r := newTestRegistry(t, st)
	if err := r.Restore(ctx); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if r.Count() != 1 {
		t.Errorf("Count = %d, want 1", r.Count())
	}
}

func TestRestore_UnknownActiveFallsBackToFirst(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	_ = st.Put(ctx, store.KeyTabs, `["one","two","one"]`)
	_ = st.Put(ctx, store.KeyActiveTab, "gone")
	_ = st.Put(ctx, store.DocumentKey("two"), "second")

	r := newTestRegistry(t, st)
	if err := r.Restore(ctx); err != nil {
		t.Fatal(err)
	}
	if r.Count() != 2 {
		t.Fatalf("Count = %d, want 2 (duplicates dropped)", r.Count())
	}
	if r.Active().ID != "one" {
		t.Errorf("active = %s, want one", r.Active().ID)
	}
	doc, err := r.Get("two")
	if err != nil || doc.Text() != "second" {
		t.Errorf("Get(two) = %v, %v", doc, err)
	}
}

func TestRestore_Twice(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, store.NewMemoryStore())
	if err := r.Restore(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.Restore(ctx); err == nil {
		t.Error("second Restore should fail")
	}
}

func TestCreate_BecomesActive(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, store.NewMemoryStore())
	_ = r.Restore(ctx)

	doc, err := r.Create(ctx, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if r.Active() != doc {
		t.Error("new document should be active")
	}
	if doc.ID == "" {
		t.Error("document id is empty")
	}
	if r.Count() != 2 {
		t.Errorf("Count = %d, want 2", r.Count())
	}
}

func TestDocuments_HaveIndependentHistories(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, store.NewMemoryStore())
	_ = r.Restore(ctx)
	a := r.Active()
	b, _ := r.Create(ctx, "")

	a.History.CommitImmediate("a1")
	b.History.CommitImmediate("b1")
	b.History.CommitImmediate("b2")

	a.History.Undo()
	if a.Text() != "" || b.Text() != "b2" {
		t.Errorf("texts = %q, %q", a.Text(), b.Text())
	}
	if !b.History.CanUndo() || b.History.CanRedo() {
		t.Error("undo on one document leaked into another")
	}
}

func TestPersistence_CommitWritesThrough(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	r := newTestRegistry(t, st)
	_ = r.Restore(ctx)
	doc := r.Active()

	doc.History.CommitImmediate("saved")
	if got := mustGet(t, st, store.DocumentKey(doc.ID)); got != "saved" {
		t.Errorf("stored = %q, want saved", got)
	}

	doc.History.Undo()
	if got := mustGet(t, st, store.DocumentKey(doc.ID)); got != "" {
		t.Errorf("after undo stored = %q, want empty", got)
	}

	doc.History.Redo()
	if got := mustGet(t, st, store.DocumentKey(doc.ID)); got != "saved" {
		t.Errorf("after redo stored = %q, want saved", got)
	}
}

func TestPersistence_LiveEditsAreBatched(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	r := newTestRegistry(t, st)
	_ = r.Restore(ctx)
	doc := r.Active()

	doc.History.RecordDebounced("typing")
	if _, err := st.Get(ctx, store.DocumentKey(doc.ID)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("live edit written before batch delay: %v", err)
	}

	if err := r.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if got := mustGet(t, st, store.DocumentKey(doc.ID)); got != "typing" {
		t.Errorf("stored = %q, want typing", got)
	}
	// Flushing storage does not commit the pending edit.
	if doc.History.State() != history.Editing {
		t.Errorf("State = %v, want editing", doc.History.State())
	}
}

func TestPersistence_RealDelay(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	r := New(WithStore(st), WithScheduler(manualScheduler{}), WithPersistDelay(10*time.Millisecond))
	_ = r.Restore(ctx)
	doc := r.Active()

	doc.History.RecordDebounced("a")
	doc.History.RecordDebounced("ab")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v, err := st.Get(ctx, store.DocumentKey(doc.ID)); err == nil && v == "ab" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("live value never persisted")
}

func TestPersistence_FailuresDoNotTouchHistory(t *testing.T) {
	ctx := context.Background()
	st := &failStore{}
	r := newTestRegistry(t, st)
	if err := r.Restore(ctx); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	doc := r.Active()

	doc.History.CommitImmediate("one")
	doc.History.CommitImmediate("two")
	doc.History.Undo()

	if doc.Text() != "one" || doc.History.Cursor() != 1 || doc.History.Len() != 3 {
		t.Errorf("history = %v cursor %d", doc.History.Texts(), doc.History.Cursor())
	}
	if st.puts == 0 {
		t.Error("store was never written")
	}
	if err := r.Flush(ctx); err == nil {
		t.Error("Flush should report store failures")
	}
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	r := newTestRegistry(t, st)
	_ = r.Restore(ctx)
	first := r.Active()
	first.History.CommitImmediate("keep")
	second, _ := r.Create(ctx, "drop")
	third, _ := r.Create(ctx, "")

	if _, err := r.SetActive(ctx, second.ID); err != nil {
		t.Fatal(err)
	}
	second.History.RecordDebounced("drop more")

	if err := r.Close(ctx, second.ID); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if r.Count() != 2 {
		t.Errorf("Count = %d, want 2", r.Count())
	}
	if r.Active() != first {
		t.Errorf("active = %s, want first remaining %s", r.Active().ID, first.ID)
	}
	if !second.History.Closed() || !second.Closed() {
		t.Error("closed document's history still open")
	}
	if second.History.Pending() {
		t.Error("pending commit survived close")
	}
	if _, err := st.Get(ctx, store.DocumentKey(second.ID)); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("closed document text still stored: %v", err)
	}
	if _, err := r.Get(second.ID); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("Get closed err = %v, want ErrDocumentNotFound", err)
	}

	var ids []string
	_ = json.Unmarshal([]byte(mustGet(t, st, store.KeyTabs)), &ids)
	if len(ids) != 2 || ids[0] != first.ID || ids[1] != third.ID {
		t.Errorf("stored tabs = %v", ids)
	}
}

func TestClose_InactiveKeepsActive(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, store.NewMemoryStore())
	_ = r.Restore(ctx)
	first := r.Active()
	second, _ := r.Create(ctx, "")

	if err := r.Close(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	if r.Active() != second {
		t.Error("closing an inactive document changed the active one")
	}
}

func TestClose_Errors(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, store.NewMemoryStore())
	_ = r.Restore(ctx)
	only := r.Active()

	err := r.Close(ctx, only.ID)
	if !errors.Is(err, ErrLastDocument) {
		t.Errorf("Close last err = %v, want ErrLastDocument", err)
	}
	var opErr *OperationError
	if !errors.As(err, &opErr) || opErr.Op != "close" || opErr.Target != only.ID {
		t.Errorf("err = %#v, want close OperationError", err)
	}
	if only.History.Closed() {
		t.Error("refused close still closed the history")
	}

	if err := r.Close(ctx, "missing"); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("Close missing err = %v, want ErrDocumentNotFound", err)
	}
}

func TestSetActive_Unknown(t *testing.T) {
	r := newTestRegistry(t, store.NewMemoryStore())
	_ = r.Restore(context.Background())
	if _, err := r.SetActive(context.Background(), "nope"); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("err = %v, want ErrDocumentNotFound", err)
	}
}

func TestNextPrevious_Wrap(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	r := newTestRegistry(t, st)
	_ = r.Restore(ctx)
	a := r.Active()
	b, _ := r.Create(ctx, "")
	c, _ := r.Create(ctx, "")

	tests := []struct {
		name string
		move func() *Document
		want *Document
	}{
		{"next wraps", func() *Document { return r.Next(ctx) }, a},
		{"next", func() *Document { return r.Next(ctx) }, b},
		{"previous", func() *Document { return r.Previous(ctx) }, a},
		{"previous wraps", func() *Document { return r.Previous(ctx) }, c},
	}
	for _, tt := range tests {
		if got := tt.move(); got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, got.ID, tt.want.ID)
		}
	}
	if got := mustGet(t, st, store.KeyActiveTab); got != c.ID {
		t.Errorf("stored active = %q, want %q", got, c.ID)
	}
}

func TestShutdown(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	r := newTestRegistry(t, st)
	_ = r.Restore(ctx)
	doc := r.Active()
	doc.History.RecordDebounced("unsaved")

	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if got := mustGet(t, st, store.DocumentKey(doc.ID)); got != "unsaved" {
		t.Errorf("stored = %q, want unsaved", got)
	}
	if !doc.History.Closed() {
		t.Error("history not closed")
	}

	if err := r.Shutdown(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("second Shutdown err = %v, want ErrClosed", err)
	}
	if _, err := r.Create(ctx, ""); !errors.Is(err, ErrClosed) {
		t.Errorf("Create after shutdown err = %v, want ErrClosed", err)
	}
	if _, err := r.Get(doc.ID); !errors.Is(err, ErrClosed) {
		t.Errorf("Get after shutdown err = %v, want ErrClosed", err)
	}
	if err := r.Close(ctx, doc.ID); !errors.Is(err, ErrClosed) {
		t.Errorf("Close after shutdown err = %v, want ErrClosed", err)
	}
}

func TestTitle(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"", "Untitled"},
		{"   \nsecond", "Untitled"},
		{"Shopping list\nmilk", "Shopping list"},
		{"  padded  ", "padded"},
		{"abcdefghijklmnopqrstuvwxyz", "abcdefghijklmnopqrst"},
		{"日本語のテキストです日本語のテキストです日本語", "日本語のテキストです日本語のテキストです"},
	}
	for _, tt := range tests {
		if got := Title(tt.text); got != tt.want {
			t.Errorf("Title(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestObserve(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, store.NewMemoryStore())
	_ = r.Restore(ctx)

	var mu sync.Mutex
	var got []history.ChangeKind
	var ids []string
	r.Observe(func(doc *Document, c history.Change) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, c.Kind)
		ids = append(ids, doc.ID)
	})

	doc, _ := r.Create(ctx, "")
	doc.History.RecordDebounced("x")
	doc.History.CommitImmediate("xy")
	doc.History.Undo()

	mu.Lock()
	defer mu.Unlock()
	want := []history.ChangeKind{history.ChangeLive, history.ChangeCommit, history.ChangeUndo}
	if len(got) != len(want) {
		t.Fatalf("changes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] || ids[i] != doc.ID {
			t.Errorf("change %d = %v on %s, want %v on %s", i, got[i], ids[i], want[i], doc.ID)
		}
	}
}
