package wsrelay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/workspace/agentcore/eventlog"
)

func testWSPair(t *testing.T) (serverConn *websocket.Conn, clientConn *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}
	var serverOnce sync.Once
	serverReady := make(chan *websocket.Conn, 1)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("test ws upgrade: %v", err)
			return
		}
		serverOnce.Do(func() { serverReady <- c })
	}))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case server := <-serverReady:
		return server, client
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server-side upgrade")
		return nil, nil
	}
}

func TestRelayDeliversBufferedThenClosesOnStoreClose(t *testing.T) {
	server, client := testWSPair(t)

	store := eventlog.New("cursor", 16)
	store.Append(eventlog.NormalizedEvent{Type: eventlog.EntryOutput, Content: "hi", AgentType: "cursor"})
	sub := store.Subscribe()

	done := make(chan struct{})
	go func() {
		Relay(server, sub, nil, nil)
		close(done)
	}()

	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var got eventlog.NormalizedEvent
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Content != "hi" {
		t.Fatalf("content = %q, want %q", got.Content, "hi")
	}

	store.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Relay did not return after store closed")
	}
}

func TestRelayStopsOnStopChannel(t *testing.T) {
	server, _ := testWSPair(t)

	store := eventlog.New("claude", 16)
	sub := store.Subscribe()
	stop := make(chan struct{})

	done := make(chan struct{})
	go func() {
		Relay(server, sub, stop, nil)
		close(done)
	}()

	close(stop)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Relay did not return after stop closed")
	}
}
