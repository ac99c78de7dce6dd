package wsconn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Logf("websocket accept error: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		if handler != nil {
			handler(conn)
		}
	}))
}

// echoHandler echoes messages back to the client.
func echoHandler(conn *websocket.Conn) {
	ctx := context.Background()
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if err := conn.Write(ctx, msgType, data); err != nil {
			return
		}
	}
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestClient_Connect_Success(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	cfg := DefaultConfig(wsURL(server), "test")
	cfg.PingInterval = 0 // Disable ping for this test

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if client.State() != StateConnected {
		t.Errorf("expected state %v, got %v", StateConnected, client.State())
	}

	if !client.IsConnected() {
		t.Error("expected IsConnected() to return true")
	}
}

func TestClient_Connect_Failure(t *testing.T) {
	cfg := DefaultConfig("ws://localhost:59999", "test") // Invalid port
	cfg.PingInterval = 0

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err == nil {
		t.Fatal("expected Connect to fail with invalid URL")
	}

	if client.State() != StateDisconnected {
		t.Errorf("expected state %v, got %v", StateDisconnected, client.State())
	}
}

func TestClient_New_RequiresURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected New to fail without a URL")
	}
}

func TestClient_SendJSON(t *testing.T) {
	var received []byte
	var mu sync.Mutex

	server := mockWSServer(t, func(conn *websocket.Conn) {
		ctx := context.Background()
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		mu.Lock()
		received = data
		mu.Unlock()
	})
	defer server.Close()

	cfg := DefaultConfig(wsURL(server), "test")
	cfg.PingInterval = 0

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Send a JSON-RPC subscription request like the block feed does
	payload := map[string]any{
		"jsonrpc": "2.0",
		"method":  "eth_subscribe",
		"params":  []string{"newHeads"},
		"id":      1,
	}

	if err := client.SendJSON(ctx, payload); err != nil {
		t.Fatalf("SendJSON failed: %v", err)
	}

	// Wait for server to receive
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if len(received) == 0 {
		t.Fatal("server did not receive message")
	}

	var parsed map[string]any
	if err := json.Unmarshal(received, &parsed); err != nil {
		t.Fatalf("received data is not valid JSON: %v\ndata: %s", err, string(received))
	}

	if parsed["method"] != "eth_subscribe" {
		t.Errorf("expected method=eth_subscribe, got %v", parsed["method"])
	}
}

func TestClient_OnMessageHandler(t *testing.T) {
	server := mockWSServer(t, echoHandler)
	defer server.Close()

	cfg := DefaultConfig(wsURL(server), "test")
	cfg.PingInterval = 0

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	var receivedMsg []byte
	var msgMu sync.Mutex
	msgReceived := make(chan struct{})
	var once sync.Once

	client.OnMessage(func(ctx context.Context, msg []byte) {
		msgMu.Lock()
		receivedMsg = msg
		msgMu.Unlock()
		once.Do(func() { close(msgReceived) })
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	want := []byte(`{"ping":"pong"}`)
	if err := client.Send(ctx, want); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case <-msgReceived:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for echoed message")
	}

	msgMu.Lock()
	defer msgMu.Unlock()
	if string(receivedMsg) != string(want) {
		t.Errorf("received %q, want %q", receivedMsg, want)
	}
}

func TestClient_MessagesChannel(t *testing.T) {
	server := mockWSServer(t, echoHandler)
	defer server.Close()

	cfg := DefaultConfig(wsURL(server), "test")
	cfg.PingInterval = 0

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	want := []byte("hello")
	if err := client.Send(ctx, want); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case msg := <-client.Messages():
		if string(msg) != string(want) {
			t.Errorf("received %q, want %q", msg, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for message on channel")
	}
}

func TestClient_Reconnect_AfterServerDrop(t *testing.T) {
	var acceptCount int
	var acceptMu sync.Mutex
	resubscribed := make(chan struct{}, 1)

	server := mockWSServer(t, func(conn *websocket.Conn) {
		acceptMu.Lock()
		acceptCount++
		n := acceptCount
		acceptMu.Unlock()

		if n == 1 {
			// Drop the first connection immediately to force a reconnect.
			conn.Close(websocket.StatusInternalError, "dropping")
			return
		}
		echoHandler(conn)
	})
	defer server.Close()

	cfg := DefaultConfig(wsURL(server), "test")
	cfg.PingInterval = 0
	cfg.InitialBackoff = 10 * time.Millisecond
	cfg.MaxBackoff = 50 * time.Millisecond

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	client.OnReconnect(func(ctx context.Context) error {
		select {
		case resubscribed <- struct{}{}:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	select {
	case <-resubscribed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reconnect")
	}

	if client.Reconnects() == 0 {
		t.Error("expected at least one reconnect attempt")
	}

	// Connection should be usable again.
	deadline := time.Now().Add(3 * time.Second)
	for {
		if client.IsConnected() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("client did not return to connected state")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClient_Close_Idempotent(t *testing.T) {
	server := mockWSServer(t, echoHandler)
	defer server.Close()

	cfg := DefaultConfig(wsURL(server), "test")
	cfg.PingInterval = 0

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	if client.State() != StateDisconnected {
		t.Errorf("expected state %v after close, got %v", StateDisconnected, client.State())
	}

	if err := client.Connect(ctx); err == nil {
		t.Error("expected Connect after Close to fail")
	}
}
