package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/dukerupert/kidquest/internal/docstore"
	"github.com/dukerupert/kidquest/internal/engine"
	"github.com/dukerupert/kidquest/internal/model"
)

const (
	TypeSnapshot = "snapshot"
	TypeEvent    = "event"
)

// Message is one frame pushed to a family's clients: either the latest
// redacted family document or a transient engine event.
type Message struct {
	Type    string              `json:"type"`
	Version int64               `json:"version,omitempty"`
	Family  *model.FamilyRecord `json:"family,omitempty"`
	Event   *engine.Event       `json:"event,omitempty"`
}

// SnapshotMessage redacts snap for the wire. A nil record means the family
// document does not exist (yet).
func SnapshotMessage(snap docstore.Snapshot) Message {
	msg := Message{Type: TypeSnapshot, Version: snap.Version}
	if snap.Record != nil {
		rec := snap.Record.Redacted()
		msg.Family = &rec
	}
	return msg
}

func EventMessage(ev engine.Event) Message {
	return Message{Type: TypeEvent, Event: &ev}
}

type room struct {
	clients map[*Client]struct{}
	last    []byte
	version int64
	cancel  context.CancelFunc
}

// Hub groups WebSocket clients by family. While a family has at least one
// client, the hub follows its document in the store and fans every snapshot
// out to them.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	store  docstore.Store
	logger *slog.Logger
}

// NewHub creates a new Hub. store may be nil, in which case only events are
// delivered.
func NewHub(store docstore.Store, logger *slog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]*room),
		store:  store,
		logger: logger.With("component", "websocket"),
	}
}

// Register adds a client to its family's room, starting the document feed
// for the first client. Later joiners get the latest snapshot right away.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[c.familyID]
	if !ok {
		r = &room{clients: make(map[*Client]struct{})}
		h.rooms[c.familyID] = r
		if h.store != nil {
			ctx, cancel := context.WithCancel(context.Background())
			r.cancel = cancel
			go h.follow(ctx, c.familyID)
		}
	}
	r.clients[c] = struct{}{}
	if r.last != nil {
		select {
		case c.send <- r.last:
		default:
		}
	}
}

// Unregister removes a client and closes its send channel. The feed stops
// with the family's last client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[c.familyID]
	if !ok {
		return
	}
	if _, ok := r.clients[c]; !ok {
		return
	}
	delete(r.clients, c)
	close(c.send)
	if len(r.clients) == 0 {
		if r.cancel != nil {
			r.cancel()
		}
		delete(h.rooms, c.familyID)
	}
}

func (h *Hub) follow(ctx context.Context, familyID string) {
	snaps, err := h.store.Subscribe(ctx, familyID)
	if err != nil {
		h.logger.Error("subscribe family", "family_id", familyID, "error", err)
		return
	}
	for snap := range snaps {
		h.send(familyID, SnapshotMessage(snap), true)
	}
}

// Publish forwards an engine event to the event's family. It matches the
// engine observer signature.
func (h *Hub) Publish(ev engine.Event) {
	h.send(ev.FamilyID, EventMessage(ev), false)
}

// Broadcast sends a message to every client of a family.
func (h *Hub) Broadcast(familyID string, msg Message) {
	h.send(familyID, msg, msg.Type == TypeSnapshot)
}

func (h *Hub) send(familyID string, msg Message, remember bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "family_id", familyID, "error", err)
		return
	}

	var r *room
	if remember {
		h.mu.Lock()
		defer h.mu.Unlock()
		r = h.rooms[familyID]
		if r != nil {
			if msg.Version < r.version {
				return
			}
			r.last, r.version = data, msg.Version
		}
	} else {
		h.mu.RLock()
		defer h.mu.RUnlock()
		r = h.rooms[familyID]
	}
	if r == nil {
		return
	}

	for c := range r.clients {
		select {
		case c.send <- data:
		default:
			// buffer full, drop
		}
	}
}

// ClientCount returns the number of connected clients across all families.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, r := range h.rooms {
		n += len(r.clients)
	}
	return n
}

// Families returns how many families have live clients.
func (h *Hub) Families() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Close stops every document feed. Clients are left to their own contexts.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.rooms {
		if r.cancel != nil {
			r.cancel()
		}
	}
}
