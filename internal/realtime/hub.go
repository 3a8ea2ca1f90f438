// Package realtime delivers live change notifications for open documents
// over Redis pub/sub. Each document has two channels: one for the document
// snapshot itself and one for its collaborator set.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// DocumentEvent is the payload broadcast on a document's channel after
// every durable write. Deleted events carry no snapshot.
type DocumentEvent struct {
	Type    string `json:"type"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content,omitempty"`
}

// CollaboratorState mirrors one row of the collaborators sub-collection.
type CollaboratorState struct {
	UserID  string `json:"userId"`
	Email   string `json:"email"`
	Viewing bool   `json:"viewing"`
}

// CollaboratorsEvent carries the full collaborator set, like a collection
// snapshot, so consumers never depend on event arrival order.
type CollaboratorsEvent struct {
	Members []CollaboratorState `json:"members"`
}

func DocumentChannel(documentID string) string {
	return "doc:" + documentID
}

func CollaboratorsChannel(documentID string) string {
	return "doc:" + documentID + ":collaborators"
}

type Hub struct {
	client *redis.Client
}

func NewHub(redisURL string) (*Hub, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewHubWithClient(client), nil
}

func NewHubWithClient(client *redis.Client) *Hub {
	return &Hub{client: client}
}

func (h *Hub) Close() error {
	return h.client.Close()
}

func (h *Hub) Publish(ctx context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := h.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

// Subscription is a standing listener on one channel. Cancel must be
// called when the consuming session ends; a forgotten subscription keeps
// mutating consumer state long after the session believes it is gone.
type Subscription struct {
	pubsub *redis.PubSub

	mu     sync.Mutex
	closed bool
	once   sync.Once
	done   chan struct{}
}

// Subscribe attaches fn to a channel. fn is invoked once per published
// message, in publish order, until Cancel is called.
func (h *Hub) Subscribe(ctx context.Context, channel string, fn func(payload []byte)) (*Subscription, error) {
	pubsub := h.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", channel, err)
	}

	sub := &Subscription{
		pubsub: pubsub,
		done:   make(chan struct{}),
	}
	go sub.pump(fn)
	return sub, nil
}

func (s *Subscription) pump(fn func(payload []byte)) {
	defer close(s.done)
	for msg := range s.pubsub.Channel() {
		// The callback runs under the subscription lock so Cancel can
		// block until any in-flight delivery finishes.
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		fn([]byte(msg.Payload))
		s.mu.Unlock()
	}
}

// Cancel tears the subscription down. When Cancel returns, no further
// callback will run and none is in flight.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		_ = s.pubsub.Close()
	})
	<-s.done
}
