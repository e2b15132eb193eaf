package match_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/esquilo/wager-engine/internal/match"
	"github.com/esquilo/wager-engine/internal/model"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitForClients(hub *match.Hub, want int) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestHub_BroadcastReachesClients(t *testing.T) {
	hub := match.NewHub()
	go hub.Run()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dialHub(t, srv)
	defer conn.Close()
	if !waitForClients(hub, 1) {
		t.Fatal("client never registered")
	}

	hub.Broadcast(match.Event{
		Type:     "match_created",
		MatchID:  7,
		GuildID:  "g1",
		RoomCode: "ABC123",
		Status:   model.StatusWaiting,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var e match.Event
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Type != "match_created" || e.MatchID != 7 || e.RoomCode != "ABC123" {
		t.Errorf("unexpected event: %+v", e)
	}
}

func TestHub_EvictsDeadClientWithoutCrashing(t *testing.T) {
	hub := match.NewHub()
	go hub.Run()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dialHub(t, srv)
	if !waitForClients(hub, 1) {
		t.Fatal("client never registered")
	}
	conn.Close()

	// Keep broadcasting at the dead connection; the hub must prune it
	// and stay alive.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() > 0 && time.Now().Before(deadline) {
		hub.Broadcast(match.Event{Type: "queue_full", MatchID: 1})
		time.Sleep(10 * time.Millisecond)
	}
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("dead client still registered, count=%d", got)
	}

	// A new client connects and receives events as usual.
	conn2 := dialHub(t, srv)
	defer conn2.Close()
	if !waitForClients(hub, 1) {
		t.Fatal("second client never registered")
	}
	hub.Broadcast(match.Event{Type: "match_created", MatchID: 2})
	conn2.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn2.ReadMessage(); err != nil {
		t.Fatalf("second client read: %v", err)
	}
}
