package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/kidquest/internal/auth"
	"github.com/dukerupert/kidquest/internal/database"
	"github.com/dukerupert/kidquest/internal/docstore"
	"github.com/dukerupert/kidquest/internal/engine"
	"github.com/dukerupert/kidquest/internal/model"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, familyID string) *Client {
	return &Client{
		hub:      hub,
		familyID: familyID,
		send:     make(chan []byte, sendBufferSize),
	}
}

func setupStore(t *testing.T) *docstore.SQLite {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return docstore.NewSQLite(db)
}

func recvMessage(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return got
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
	return Message{}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(nil, slog.Default())

	c1 := mockClient(hub, "fam-1")
	c2 := mockClient(hub, "fam-1")
	c3 := mockClient(hub, "fam-2")
	hub.Register(c1)
	hub.Register(c2)
	hub.Register(c3)

	if got := hub.ClientCount(); got != 3 {
		t.Fatalf("expected 3 clients, got %d", got)
	}
	if got := hub.Families(); got != 2 {
		t.Fatalf("expected 2 families, got %d", got)
	}

	hub.Unregister(c1)
	hub.Unregister(c3)
	if got := hub.Families(); got != 1 {
		t.Fatalf("expected 1 family after unregister, got %d", got)
	}

	hub.Unregister(c2)
	// Should not panic
	hub.Unregister(c2)
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestPublishScopedToFamily(t *testing.T) {
	hub := NewHub(nil, slog.Default())

	mine := mockClient(hub, "fam-1")
	other := mockClient(hub, "fam-2")
	hub.Register(mine)
	hub.Register(other)
	defer hub.Unregister(mine)
	defer hub.Unregister(other)

	hub.Publish(engine.Event{Kind: engine.EventLevelUp, FamilyID: "fam-1", ProfileID: "kid", Data: map[string]any{"level": 2}})

	got := recvMessage(t, mine)
	if got.Type != TypeEvent || got.Event == nil || got.Event.Kind != engine.EventLevelUp {
		t.Fatalf("message = %+v", got)
	}
	if got.Event.Data["level"] != float64(2) {
		t.Errorf("level = %v", got.Event.Data["level"])
	}

	select {
	case <-other.send:
		t.Error("other family received the event")
	default:
	}
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(nil, slog.Default())

	c := mockClient(hub, "fam-1")
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Publish(engine.Event{Kind: engine.EventCelebrate, FamilyID: "fam-1"})
	}
	// This should drop the message, not panic or block
	hub.Publish(engine.Event{Kind: engine.EventCelebrate, FamilyID: "fam-1"})

	count := 0
	for len(c.send) > 0 {
		<-c.send
		count++
	}
	if count != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, count)
	}
	hub.Unregister(c)
}

func TestPublishEmptyHub(t *testing.T) {
	hub := NewHub(nil, slog.Default())
	// Should not panic
	hub.Publish(engine.Event{Kind: engine.EventCelebrate, FamilyID: "nobody"})
}

func TestSnapshotFeed(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	if err := store.Create(ctx, "fam-1", model.FamilyRecord{
		FamilyName: "Smith",
		Pin:        "secret-hash",
		Profiles:   []model.Profile{{ID: "kid", Name: "Ava", Pin: "kid-hash"}},
		History:    model.History{},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	hub := NewHub(store, slog.Default())
	first := mockClient(hub, "fam-1")
	hub.Register(first)

	got := recvMessage(t, first)
	if got.Type != TypeSnapshot || got.Version != 1 || got.Family == nil {
		t.Fatalf("first snapshot = %+v", got)
	}
	if got.Family.Pin != "" || got.Family.Profiles[0].Pin != "" || !got.Family.Profiles[0].HasPIN {
		t.Error("snapshot leaked PIN hashes")
	}

	// A late joiner gets the cached snapshot without waiting for a change.
	late := mockClient(hub, "fam-1")
	hub.Register(late)
	if got := recvMessage(t, late); got.Version != 1 {
		t.Errorf("late joiner version = %d", got.Version)
	}

	if _, err := store.Patch(ctx, "fam-1", docstore.Patch{Updates: []docstore.Update{
		docstore.AppendLogs(model.LogEntry{ID: "l1", Action: model.ActionDeposit}),
	}}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	for _, c := range []*Client{first, late} {
		if got := recvMessage(t, c); got.Version != 2 || len(got.Family.Logs) != 1 {
			t.Errorf("update = %+v", got)
		}
	}

	hub.Unregister(first)
	hub.Unregister(late)

	deadline := time.Now().Add(2 * time.Second)
	for store.Subscribers("fam-1") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("feed still subscribed after last client left")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(nil, slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub, "fam-1")
			hub.Register(c)
			hub.Publish(engine.Event{Kind: engine.EventCelebrate, FamilyID: "fam-1"})
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}

func TestHandleWebSocket(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	store.Create(ctx, "fam-1", model.FamilyRecord{FamilyName: "Smith", History: model.History{}})

	hub := NewHub(store, slog.Default())
	defer hub.Close()

	withFamily := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.URL.Query().Get("family"); id != "" {
			r = r.WithContext(auth.WithAuth(r.Context(), auth.AuthContext{AccountID: id}))
		}
		HandleWebSocket(hub, nil).ServeHTTP(w, r)
	})
	srv := httptest.NewServer(withFamily)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	if _, resp, err := ws.Dial(ctx, url, nil); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated dial: err=%v", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	conn, _, err := ws.Dial(dialCtx, url+"?family=fam-1", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	_, data, err := conn.Read(dialCtx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != TypeSnapshot || got.Family == nil || got.Family.FamilyName != "Smith" {
		t.Errorf("snapshot = %+v", got)
	}
}
