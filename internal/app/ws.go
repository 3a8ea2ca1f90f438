package app

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"quillpad/api/internal/editor"
	"quillpad/api/internal/presence"
	"quillpad/api/internal/rbac"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// CORS is enforced on the REST surface; the socket is gated by the
	// session token instead.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsInbound is a client-to-server editing message.
type wsInbound struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Name    string `json:"name,omitempty"`
}

// wsOutbound is a server-to-client state message.
type wsOutbound struct {
	Type          string                  `json:"type"`
	Name          string                  `json:"name,omitempty"`
	Content       string                  `json:"content,omitempty"`
	Saving        *bool                   `json:"saving,omitempty"`
	Collaborators []presence.Collaborator `json:"collaborators,omitempty"`
}

// wsClient serializes writes to one socket. gorilla allows a single
// concurrent writer, and snapshot, presence and saving callbacks all
// arrive on different goroutines.
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) send(msg wsOutbound) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Printf("ws: write failed: %v", err)
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.Close()
}

// handleWS attaches a live editing session to an upgraded socket. Access
// is checked once on entry; the connection then stays open until the
// client leaves or the document is deleted.
func (s *HTTPServer) handleWS(w http.ResponseWriter, r *http.Request, session Session, documentID string) {
	doc, collab, err := s.service.OpenDocument(r.Context(), session, documentID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed for %s: %v", documentID, err)
		return
	}
	client := &wsClient{conn: conn}
	defer client.close()

	// The request context dies with the handler; flush-on-close writes
	// and the deferred presence clear must outlive the socket.
	ctx := context.Background()
	feeds := &liveFeeds{hub: s.service.hub}

	editorSession, err := editor.Open(ctx, documentID,
		editor.Snapshot{Name: doc.Name, Content: doc.Content},
		&docSaver{service: s.service, actor: session.DisplayName},
		feeds, nil,
		editor.Callbacks{
			OnSnapshot: func(snapshot editor.Snapshot) {
				client.send(wsOutbound{Type: "snapshot", Name: snapshot.Name, Content: snapshot.Content})
			},
			OnSaving: func(saving bool) {
				client.send(wsOutbound{Type: "saving", Saving: &saving})
			},
			OnGone: func() {
				client.send(wsOutbound{Type: "gone"})
				client.close()
			},
		})
	if err != nil {
		log.Printf("ws: open editor session for %s: %v", documentID, err)
		return
	}
	defer editorSession.Close()

	tracker, err := presence.Open(ctx, documentID, session.UserID, session.Email,
		&presenceStore{service: s.service}, feeds,
		func(active []presence.Collaborator) {
			client.send(wsOutbound{Type: "presence", Collaborators: active})
		})
	if err != nil {
		log.Printf("ws: open presence tracker for %s: %v", documentID, err)
		return
	}
	defer func() {
		clearCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tracker.Close(clearCtx)
	}()

	client.send(wsOutbound{Type: "snapshot", Name: doc.Name, Content: doc.Content})
	client.send(wsOutbound{Type: "presence", Collaborators: tracker.Active()})

	for {
		var msg wsInbound
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws: read failed for %s: %v", documentID, err)
			}
			return
		}

		switch msg.Type {
		case "edit":
			if !rbac.Can(collab.Role, rbac.ActionEdit) {
				continue
			}
			editorSession.EditContent(msg.Content)
		case "rename":
			if !rbac.Can(collab.Role, rbac.ActionRename) {
				continue
			}
			editorSession.Rename(msg.Name)
		}
	}
}
