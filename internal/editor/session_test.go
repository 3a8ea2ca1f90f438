package editor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSub struct {
	mu        sync.Mutex
	cancelled bool
}

func (s *fakeSub) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
}

func (s *fakeSub) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

type fakeFeed struct {
	mu  sync.Mutex
	fn  func(DocumentEvent)
	sub *fakeSub
	err error
}

func (f *fakeFeed) SubscribeDocument(_ context.Context, _ string, fn func(DocumentEvent)) (Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fn = fn
	f.sub = &fakeSub{}
	return f.sub, nil
}

// Emit delivers an event the way a live feed would, honoring the
// no-callback-after-cancel contract.
func (f *fakeFeed) Emit(ev DocumentEvent) {
	f.mu.Lock()
	fn, sub := f.fn, f.sub
	f.mu.Unlock()
	if fn == nil || sub.isCancelled() {
		return
	}
	fn(ev)
}

type fakeSaver struct {
	mu       sync.Mutex
	contents []string
	names    []string
	err      error
}

func (s *fakeSaver) SaveContent(_ context.Context, _ string, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.contents = append(s.contents, content)
	return nil
}

func (s *fakeSaver) SaveName(_ context.Context, _ string, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.names = append(s.names, name)
	return nil
}

func (s *fakeSaver) savedContents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.contents))
	copy(out, s.contents)
	return out
}

func (s *fakeSaver) savedNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

func openTestSession(t *testing.T, cb Callbacks) (*Session, *fakeClock, *fakeFeed, *fakeSaver) {
	t.Helper()
	clock := newFakeClock()
	feed := &fakeFeed{}
	saver := &fakeSaver{}
	s, err := Open(context.Background(), "doc_1", Snapshot{Name: "Untitled Document"}, saver, feed, clock, cb)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(s.Close)
	return s, clock, feed, saver
}

func TestSessionDebouncedContentSave(t *testing.T) {
	s, clock, _, saver := openTestSession(t, Callbacks{})

	s.EditContent("<p>h</p>")
	clock.Advance(100 * time.Millisecond)
	s.EditContent("<p>he</p>")
	clock.Advance(100 * time.Millisecond)
	s.EditContent("<p>hello</p>")

	if got := saver.savedContents(); len(got) != 0 {
		t.Fatalf("expected no save before the quiet period, got %v", got)
	}
	clock.Advance(ContentSaveWindow)
	got := saver.savedContents()
	if len(got) != 1 || got[0] != "<p>hello</p>" {
		t.Fatalf("expected one save carrying the last edit, got %v", got)
	}
}

func TestSessionRenameUsesLongerWindow(t *testing.T) {
	s, clock, _, saver := openTestSession(t, Callbacks{})

	s.Rename("Meeting Notes")
	clock.Advance(ContentSaveWindow)
	if got := saver.savedNames(); len(got) != 0 {
		t.Fatalf("expected name save to wait the full window, got %v", got)
	}
	clock.Advance(NameSaveWindow - ContentSaveWindow)
	got := saver.savedNames()
	if len(got) != 1 || got[0] != "Meeting Notes" {
		t.Fatalf("expected one name save, got %v", got)
	}
}

func TestSessionRemoteSnapshotApplied(t *testing.T) {
	var seen []Snapshot
	s, _, feed, _ := openTestSession(t, Callbacks{
		OnSnapshot: func(snap Snapshot) { seen = append(seen, snap) },
	})

	feed.Emit(DocumentEvent{Snapshot: Snapshot{Name: "Plan", Content: "<p>remote</p>"}})
	if s.Content() != "<p>remote</p>" || s.Name() != "Plan" {
		t.Fatalf("remote snapshot not applied: name=%q content=%q", s.Name(), s.Content())
	}
	if len(seen) != 1 {
		t.Fatalf("expected one snapshot callback, got %d", len(seen))
	}
}

func TestSessionTypingGuardDropsRemote(t *testing.T) {
	var seen []Snapshot
	s, clock, feed, saver := openTestSession(t, Callbacks{
		OnSnapshot: func(snap Snapshot) { seen = append(seen, snap) },
	})

	s.EditContent("<p>local</p>")
	feed.Emit(DocumentEvent{Snapshot: Snapshot{Content: "<p>remote</p>"}})
	if s.Content() != "<p>local</p>" {
		t.Fatalf("remote overwrote local buffer while typing: %q", s.Content())
	}
	if len(seen) != 0 {
		t.Fatal("dropped notification must not invoke OnSnapshot")
	}

	// Idle window passes; the pending debounced write fires along the way.
	clock.Advance(TypingIdleWindow)
	if got := saver.savedContents(); len(got) != 1 || got[0] != "<p>local</p>" {
		t.Fatalf("expected the local edit to be saved, got %v", got)
	}

	feed.Emit(DocumentEvent{Snapshot: Snapshot{Content: "<p>merged</p>"}})
	if s.Content() != "<p>merged</p>" {
		t.Fatalf("notification after the guard cleared must apply, got %q", s.Content())
	}
	if len(seen) != 1 {
		t.Fatalf("expected one snapshot callback after the guard cleared, got %d", len(seen))
	}
}

func TestSessionGoneOnDelete(t *testing.T) {
	gone := false
	s, _, feed, _ := openTestSession(t, Callbacks{
		OnGone: func() { gone = true },
	})

	s.EditContent("<p>typing</p>")
	feed.Emit(DocumentEvent{Deleted: true})
	if !gone {
		t.Fatal("expected OnGone on deletion even while typing")
	}
	if s.Content() != "<p>typing</p>" {
		t.Fatal("deletion must not touch the local buffer")
	}
}

func TestSessionCloseFlushesPendingWrites(t *testing.T) {
	clock := newFakeClock()
	feed := &fakeFeed{}
	saver := &fakeSaver{}
	s, err := Open(context.Background(), "doc_1", Snapshot{}, saver, feed, clock, Callbacks{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	s.EditContent("<p>trailing</p>")
	s.Rename("Trailing")
	s.Close()

	if got := saver.savedContents(); len(got) != 1 || got[0] != "<p>trailing</p>" {
		t.Fatalf("expected pending content flushed on close, got %v", got)
	}
	if got := saver.savedNames(); len(got) != 1 || got[0] != "Trailing" {
		t.Fatalf("expected pending name flushed on close, got %v", got)
	}
	if !feed.sub.isCancelled() {
		t.Fatal("expected the feed subscription to be cancelled")
	}

	// Events after Close must not reach the session.
	feed.Emit(DocumentEvent{Snapshot: Snapshot{Content: "<p>late</p>"}})
	if s.Content() != "<p>trailing</p>" {
		t.Fatal("event after Close mutated the session")
	}

	// Close is idempotent.
	s.Close()
	if got := saver.savedContents(); len(got) != 1 {
		t.Fatalf("second Close must not flush again, got %v", got)
	}
}

func TestSessionSaveFailureKeepsBuffer(t *testing.T) {
	s, clock, _, saver := openTestSession(t, Callbacks{})
	saver.err = errors.New("connection refused")

	s.EditContent("<p>kept</p>")
	clock.Advance(ContentSaveWindow)

	if s.Content() != "<p>kept</p>" {
		t.Fatal("failed save must leave the local buffer intact")
	}
	if s.Saving() {
		t.Fatal("saving flag must clear after a failed write")
	}
}

func TestSessionSavingCallback(t *testing.T) {
	var transitions []bool
	s, clock, _, _ := openTestSession(t, Callbacks{
		OnSaving: func(v bool) { transitions = append(transitions, v) },
	})

	s.EditContent("<p>x</p>")
	clock.Advance(ContentSaveWindow)

	if len(transitions) != 2 || !transitions[0] || transitions[1] {
		t.Fatalf("expected saving true then false, got %v", transitions)
	}
}

func TestSessionOpenSubscribeError(t *testing.T) {
	feed := &fakeFeed{err: errors.New("redis down")}
	_, err := Open(context.Background(), "doc_1", Snapshot{}, &fakeSaver{}, feed, newFakeClock(), Callbacks{})
	if err == nil {
		t.Fatal("expected Open to fail when the feed cannot subscribe")
	}
}
