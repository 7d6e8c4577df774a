package wsconn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func newWSServer(t *testing.T, handler func(conn *websocket.Conn)) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Logf("accept: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		if handler != nil {
			handler(conn)
		}
	}))
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func echo(conn *websocket.Conn) {
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

func drain(conn *websocket.Conn) {
	ctx := context.Background()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func TestConnect(t *testing.T) {
	srv, url := newWSServer(t, drain)
	defer srv.Close()

	cfg := DefaultConfig(url, "test")
	cfg.PingInterval = 0

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := client.State(); got != StateConnected {
		t.Errorf("state = %v, want %v", got, StateConnected)
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false after successful connect")
	}
}

func TestConnectRefused(t *testing.T) {
	cfg := DefaultConfig("ws://localhost:59999", "test")
	cfg.PingInterval = 0

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err == nil {
		t.Fatal("Connect succeeded against closed port")
	}
	if got := client.State(); got != StateDisconnected {
		t.Errorf("state = %v, want %v", got, StateDisconnected)
	}
}

func TestNewRequiresURL(t *testing.T) {
	if _, err := New(Config{Name: "no-url"}); err == nil {
		t.Fatal("New accepted empty URL")
	}
}

func TestSendJSON(t *testing.T) {
	var mu sync.Mutex
	var received []byte

	srv, url := newWSServer(t, func(conn *websocket.Conn) {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			return
		}
		mu.Lock()
		received = data
		mu.Unlock()
	})
	defer srv.Close()

	cfg := DefaultConfig(url, "test")
	cfg.PingInterval = 0

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	sub := map[string]any{
		"method": "SUBSCRIBE",
		"params": []string{"ethusdt@bookTicker"},
		"id":     1,
	}
	if err := client.SendJSON(ctx, sub); err != nil {
		t.Fatalf("SendJSON: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(received) == 0 {
		t.Fatal("server received nothing")
	}
	var parsed map[string]any
	if err := json.Unmarshal(received, &parsed); err != nil {
		t.Fatalf("payload is not JSON: %v (%s)", err, received)
	}
	if parsed["method"] != "SUBSCRIBE" {
		t.Errorf("method = %v, want SUBSCRIBE", parsed["method"])
	}
}

func TestSendBeforeConnect(t *testing.T) {
	client, err := New(DefaultConfig("ws://localhost:1", "test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()

	if err := client.Send(context.Background(), []byte("x")); err == nil {
		t.Fatal("Send succeeded without a connection")
	}
}

func TestOnMessage(t *testing.T) {
	srv, url := newWSServer(t, echo)
	defer srv.Close()

	cfg := DefaultConfig(url, "test")
	cfg.PingInterval = 0

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()

	var mu sync.Mutex
	var got []byte
	done := make(chan struct{})
	client.OnMessage(func(ctx context.Context, msg []byte) {
		mu.Lock()
		got = msg
		mu.Unlock()
		close(done)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	want := []byte(`{"u":400900217,"b":"25.35190000"}`)
	if err := client.Send(ctx, want); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for echo")
	}

	mu.Lock()
	defer mu.Unlock()
	if string(got) != string(want) {
		t.Errorf("echoed %s, want %s", got, want)
	}
}

func TestStateTransitions(t *testing.T) {
	srv, url := newWSServer(t, drain)
	defer srv.Close()

	cfg := DefaultConfig(url, "test")
	cfg.PingInterval = 0

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()

	var mu sync.Mutex
	var states []State
	client.OnStateChange(func(state State, err error) {
		mu.Lock()
		states = append(states, state)
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(states) < 2 {
		t.Fatalf("got %d transitions (%v), want at least 2", len(states), states)
	}
	if states[0] != StateConnecting || states[1] != StateConnected {
		t.Errorf("transitions = %v, want [connecting connected ...]", states)
	}
}

func TestCloseIdempotent(t *testing.T) {
	srv, url := newWSServer(t, drain)
	defer srv.Close()

	cfg := DefaultConfig(url, "test")
	cfg.PingInterval = 0

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := client.State(); got != StateClosed {
		t.Errorf("state = %v, want %v", got, StateClosed)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestConcurrentSend(t *testing.T) {
	var count atomic.Int32

	srv, url := newWSServer(t, func(conn *websocket.Conn) {
		ctx := context.Background()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
			count.Add(1)
		}
	})
	defer srv.Close()

	cfg := DefaultConfig(url, "test")
	cfg.PingInterval = 0

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	const goroutines = 10
	const perGoroutine = 5
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				if err := client.SendJSON(ctx, map[string]int{"worker": id, "seq": j}); err != nil {
					t.Errorf("SendJSON: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	time.Sleep(200 * time.Millisecond)
	if got, want := count.Load(), int32(goroutines*perGoroutine); got != want {
		t.Errorf("server received %d messages, want %d", got, want)
	}
}

func TestOversizedMessageDisconnects(t *testing.T) {
	srv, url := newWSServer(t, func(conn *websocket.Conn) {
		big := make([]byte, 4096)
		for i := range big {
			big[i] = 'x'
		}
		_ = conn.Write(context.Background(), websocket.MessageText, big)
		time.Sleep(100 * time.Millisecond)
	})
	defer srv.Close()

	cfg := DefaultConfig(url, "test")
	cfg.PingInterval = 0
	cfg.MaxMessageSize = 128
	cfg.InitialBackoff = time.Second

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	time.Sleep(300 * time.Millisecond)
	if client.State() == StateConnected {
		t.Error("still connected after oversized frame")
	}
}

func TestReconnectAfterServerDrop(t *testing.T) {
	var accepts atomic.Int32
	srv, url := newWSServer(t, func(conn *websocket.Conn) {
		if accepts.Add(1) == 1 {
			// Drop the first connection immediately.
			conn.Close(websocket.StatusGoingAway, "bye")
			return
		}
		drain(conn)
	})
	defer srv.Close()

	cfg := DefaultConfig(url, "test")
	cfg.PingInterval = 0
	cfg.InitialBackoff = 20 * time.Millisecond
	cfg.ReadTimeout = 2 * time.Second

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for client.Reconnects() == 0 || !client.IsConnected() {
		select {
		case <-deadline:
			t.Fatalf("no reconnect: reconnects=%d state=%v", client.Reconnects(), client.State())
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestConnectWithRetryGivesUp(t *testing.T) {
	cfg := DefaultConfig("ws://localhost:59999", "test")
	cfg.PingInterval = 0
	cfg.InitialBackoff = 10 * time.Millisecond
	cfg.MaxReconnects = 3

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.ConnectWithRetry(ctx); err == nil {
		t.Fatal("ConnectWithRetry succeeded against closed port")
	}
	if got := client.State(); got != StateFailed {
		t.Errorf("state = %v, want %v", got, StateFailed)
	}
}
