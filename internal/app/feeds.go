package app

import (
	"context"
	"encoding/json"
	"log"

	"quillpad/api/internal/editor"
	"quillpad/api/internal/presence"
	"quillpad/api/internal/realtime"
)

// liveFeeds adapts the Redis pub/sub hub to the subscription interfaces
// the editor session and presence tracker consume.
type liveFeeds struct {
	hub *realtime.Hub
}

func (f *liveFeeds) SubscribeDocument(ctx context.Context, documentID string, fn func(editor.DocumentEvent)) (editor.Subscription, error) {
	return f.hub.Subscribe(ctx, realtime.DocumentChannel(documentID), func(payload []byte) {
		var ev realtime.DocumentEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			log.Printf("feeds: bad document event on %s: %v", documentID, err)
			return
		}
		switch ev.Type {
		case realtime.EventDeleted:
			fn(editor.DocumentEvent{Deleted: true})
		case realtime.EventUpdated:
			fn(editor.DocumentEvent{Snapshot: editor.Snapshot{Name: ev.Name, Content: ev.Content}})
		}
	})
}

func (f *liveFeeds) SubscribeCollaborators(ctx context.Context, documentID string, fn func([]presence.Member)) (presence.Subscription, error) {
	return f.hub.Subscribe(ctx, realtime.CollaboratorsChannel(documentID), func(payload []byte) {
		var ev realtime.CollaboratorsEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			log.Printf("feeds: bad collaborators event on %s: %v", documentID, err)
			return
		}
		members := make([]presence.Member, 0, len(ev.Members))
		for _, m := range ev.Members {
			members = append(members, presence.Member{
				UserID:  m.UserID,
				Email:   m.Email,
				Viewing: m.Viewing,
			})
		}
		fn(members)
	})
}

// presenceStore persists viewing flags and rebroadcasts the collaborator
// set so every open session observes the change.
type presenceStore struct {
	service *Service
}

func (p *presenceStore) SetViewing(ctx context.Context, documentID, userID, email string, viewing bool) error {
	if err := p.service.store.SetViewing(ctx, documentID, userID, email, viewing); err != nil {
		return err
	}
	p.service.publishCollaborators(ctx, documentID)
	return nil
}

// docSaver binds debounced editor writes to the service, attributing each
// one to the editing user.
type docSaver struct {
	service *Service
	actor   string
}

func (d *docSaver) SaveContent(ctx context.Context, documentID, content string) error {
	return d.service.SaveDocumentContent(ctx, documentID, d.actor, content)
}

func (d *docSaver) SaveName(ctx context.Context, documentID, name string) error {
	return d.service.SaveDocumentName(ctx, documentID, d.actor, name)
}
