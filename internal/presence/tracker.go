// Package presence tracks which collaborators currently have a document
// open and assigns each a stable display color.
package presence

import (
	"context"
	"log"
	"sync"
)

// palette is cycled by a collaborator's position in the member list, so
// a user keeps the same color for as long as the set is stable.
var palette = [...]string{
	"#FF5733",
	"#33FF57",
	"#3357FF",
	"#FF33A1",
	"#FF8C33",
	"#33FFF5",
}

// ColorFor returns the display color for the member at the given index.
func ColorFor(index int) string {
	if index < 0 {
		index = -index
	}
	return palette[index%len(palette)]
}

// Member is one collaborator's presence state as delivered by the feed.
type Member struct {
	UserID  string
	Email   string
	Viewing bool
}

// Collaborator is an actively viewing member with its assigned color.
type Collaborator struct {
	UserID string
	Email  string
	Color  string
}

// Store persists the viewing flag. A write is an upsert: joining a
// document a user was never invited to by id is not the store's concern.
type Store interface {
	SetViewing(ctx context.Context, documentID, userID, email string, viewing bool) error
}

// Subscription is a cancellation handle for a presence feed.
// Implementations must guarantee that no callback fires after Cancel
// returns.
type Subscription interface {
	Cancel()
}

// Feed delivers the full collaborator set of a document whenever any
// member's state changes.
type Feed interface {
	SubscribeCollaborators(ctx context.Context, documentID string, fn func([]Member)) (Subscription, error)
}

// Tracker marks one user as viewing a document and mirrors the set of
// other active viewers until Close.
type Tracker struct {
	documentID string
	userID     string
	email      string
	store      Store
	onChange   func([]Collaborator)

	mu     sync.Mutex
	active []Collaborator
	closed bool

	sub Subscription
}

// Open flags the user as viewing and subscribes to the document's
// collaborator set. onChange may be nil.
func Open(ctx context.Context, documentID, userID, email string, store Store, feed Feed, onChange func([]Collaborator)) (*Tracker, error) {
	if err := store.SetViewing(ctx, documentID, userID, email, true); err != nil {
		return nil, err
	}
	t := &Tracker{
		documentID: documentID,
		userID:     userID,
		email:      email,
		store:      store,
		onChange:   onChange,
	}
	sub, err := feed.SubscribeCollaborators(ctx, documentID, t.handleMembers)
	if err != nil {
		return nil, err
	}
	t.sub = sub
	return t, nil
}

// Active returns the most recently observed set of viewing collaborators.
func (t *Tracker) Active() []Collaborator {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Collaborator, len(t.active))
	copy(out, t.active)
	return out
}

func (t *Tracker) handleMembers(members []Member) {
	// Colors follow positions in the full member list, not the filtered
	// one, so a viewer's color survives others toggling their flag.
	active := make([]Collaborator, 0, len(members))
	for i, m := range members {
		if !m.Viewing {
			continue
		}
		active = append(active, Collaborator{
			UserID: m.UserID,
			Email:  m.Email,
			Color:  ColorFor(i),
		})
	}
	t.mu.Lock()
	t.active = active
	t.mu.Unlock()
	if t.onChange != nil {
		t.onChange(active)
	}
}

// Close cancels the subscription, then clears the viewing flag. A failed
// clear leaves a stale flag behind; it is logged and the close still
// succeeds, since the next open will overwrite it.
func (t *Tracker) Close(ctx context.Context) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	if t.sub != nil {
		t.sub.Cancel()
	}
	if err := t.store.SetViewing(ctx, t.documentID, t.userID, t.email, false); err != nil {
		log.Printf("presence: clear viewing flag for %s on %s: %v", t.userID, t.documentID, err)
	}
}
