package web

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"dyson-go-home/internal/integration"
)

func TestWSStreamsIntegrationEvents(t *testing.T) {
	env := newTestEnv(t)
	env.backend.SetReachable("XB1-EU-ABC1234A", "h")

	srv := httptest.NewServer(env.server)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, strings.Replace(srv.URL, "http", "ws", 1)+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Give the hub a beat to register the client before events flow.
	time.Sleep(20 * time.Millisecond)

	w := env.do(t, "POST", "/api/entries",
		`{"serial":"XB1-EU-ABC1234A","credential":"secret","device_type":"438","host":"h"}`)
	if w.Code != 201 {
		t.Fatalf("create = %d", w.Code)
	}

	types := make(map[string]bool)
	for len(types) < 2 {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v (got %v)", err, types)
		}
		var event integration.Event
		if err := json.Unmarshal(data, &event); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		types[event.Type] = true
	}
	if !types[integration.EventDeviceConnected] || !types[integration.EventEntryAdded] {
		t.Errorf("event types = %v", types)
	}
}

func TestWSHubBroadcastNeverBlocks(t *testing.T) {
	hub := NewWSHub(testLogger())
	// No Run loop draining: the buffered channel fills and overflow drops.
	for i := 0; i < 1000; i++ {
		hub.Broadcast(integration.Event{Type: integration.EventEntityState})
	}
	hub.Stop()
	hub.Stop() // idempotent
}
