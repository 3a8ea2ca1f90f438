package editor

import (
	"context"
	"log"
	"sync"
	"time"
)

// Debounce and idle windows, measured from the most recent local event.
const (
	ContentSaveWindow = 500 * time.Millisecond
	NameSaveWindow    = 1000 * time.Millisecond
	TypingIdleWindow  = 2000 * time.Millisecond
)

// Snapshot is the persisted view of a document as delivered by the live
// feed.
type Snapshot struct {
	Name    string
	Content string
}

// DocumentEvent is one remote change notification.
type DocumentEvent struct {
	Snapshot Snapshot
	Deleted  bool
}

// Subscription is a cancellation handle for a live feed. Implementations
// must guarantee that no callback fires after Cancel returns.
type Subscription interface {
	Cancel()
}

// Feed delivers remote change notifications for one document.
type Feed interface {
	SubscribeDocument(ctx context.Context, documentID string, fn func(DocumentEvent)) (Subscription, error)
}

// Saver persists debounced local changes. Implementations are expected to
// sanitize content before it is written.
type Saver interface {
	SaveContent(ctx context.Context, documentID, content string) error
	SaveName(ctx context.Context, documentID, name string) error
}

// Callbacks surface session state transitions to the transport layer. Any
// field may be nil.
type Callbacks struct {
	// OnSnapshot fires when a remote snapshot replaces local state.
	OnSnapshot func(Snapshot)
	// OnSaving reports whether a durable write is in flight.
	OnSaving func(bool)
	// OnGone fires when the remote document no longer exists; the
	// consumer should navigate away.
	OnGone func()
}

// Session keeps one user's local editable state consistent with the
// shared remote record while other users may be editing concurrently.
//
// Remote notifications replace local state unless the typing guard is
// asserted, in which case they are discarded outright: the next
// notification after the guard clears brings the session back in sync.
// Local edits are coalesced by the debounced writers. Write failures are
// logged and dropped; the local buffer survives them, so nothing the user
// typed is lost from the editing surface.
type Session struct {
	documentID string
	ctx        context.Context
	saver      Saver
	cb         Callbacks

	guard        *TypingGuard
	contentWrite *Debouncer
	nameWrite    *Debouncer

	mu      sync.Mutex
	name    string
	content string
	saving  int
	closed  bool

	sub Subscription
}

// Open attaches a session to a document. The initial snapshot seeds the
// local buffer; the feed keeps it live until Close.
func Open(ctx context.Context, documentID string, initial Snapshot, saver Saver, feed Feed, clock Clock, cb Callbacks) (*Session, error) {
	if clock == nil {
		clock = RealClock()
	}
	s := &Session{
		documentID: documentID,
		ctx:        ctx,
		saver:      saver,
		cb:         cb,
		name:       initial.Name,
		content:    initial.Content,
		guard:      NewTypingGuard(clock, TypingIdleWindow),
	}
	s.contentWrite = NewDebouncer(clock, ContentSaveWindow, func(content string) {
		s.persist(func() error { return s.saver.SaveContent(s.ctx, s.documentID, content) })
	})
	s.nameWrite = NewDebouncer(clock, NameSaveWindow, func(name string) {
		s.persist(func() error { return s.saver.SaveName(s.ctx, s.documentID, name) })
	})

	sub, err := feed.SubscribeDocument(ctx, documentID, s.handleRemote)
	if err != nil {
		s.guard.Stop()
		return nil, err
	}
	s.sub = sub
	return s, nil
}

// EditContent records a local keystroke burst: the buffer updates
// immediately, the typing guard is touched, and a durable write is
// scheduled for after the quiet period.
func (s *Session) EditContent(content string) {
	s.guard.Touch()
	s.mu.Lock()
	s.content = content
	s.mu.Unlock()
	s.contentWrite.Notify(content)
}

// Rename records a local name edit with its own, longer debounce window.
func (s *Session) Rename(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
	s.nameWrite.Notify(name)
}

// Name returns the current local name buffer.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Content returns the current local content buffer.
func (s *Session) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content
}

// Saving reports whether a durable write is in flight.
func (s *Session) Saving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saving > 0
}

func (s *Session) handleRemote(ev DocumentEvent) {
	if ev.Deleted {
		if s.cb.OnGone != nil {
			s.cb.OnGone()
		}
		return
	}
	if s.guard.Active() {
		// The user is mid-keystroke; drop the notification rather than
		// clobber the buffer. The next one after the guard clears wins.
		return
	}
	s.mu.Lock()
	s.name = ev.Snapshot.Name
	s.content = ev.Snapshot.Content
	s.mu.Unlock()
	if s.cb.OnSnapshot != nil {
		s.cb.OnSnapshot(ev.Snapshot)
	}
}

func (s *Session) persist(write func() error) {
	s.setSaving(+1)
	defer s.setSaving(-1)
	if err := write(); err != nil {
		// The buffer is untouched; the user sees their own edit even
		// though this write was lost. No retry is scheduled.
		log.Printf("editor: save document %s: %v", s.documentID, err)
	}
}

func (s *Session) setSaving(delta int) {
	s.mu.Lock()
	s.saving += delta
	saving := s.saving > 0
	s.mu.Unlock()
	if s.cb.OnSaving != nil {
		s.cb.OnSaving(saving)
	}
}

// Close detaches the session: the feed subscription is cancelled first,
// so no remote notification can race the teardown, then any pending
// debounced writes are flushed so the trailing edit is not lost.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.sub != nil {
		s.sub.Cancel()
	}
	s.guard.Stop()
	s.contentWrite.Flush()
	s.nameWrite.Flush()
}
