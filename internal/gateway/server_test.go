package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/autoreply/internal/bus"
	"github.com/nextlevelbuilder/autoreply/internal/config"
	"github.com/nextlevelbuilder/autoreply/internal/engine"
	"github.com/nextlevelbuilder/autoreply/internal/store/sqlite"
	"github.com/nextlevelbuilder/autoreply/pkg/protocol"
)

func startServer(t *testing.T, mutate func(*config.Config)) (string, *bus.MessageBus) {
	t.Helper()
	stores, err := sqlite.Open(filepath.Join(t.TempDir(), "gw.db"))
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	t.Cleanup(func() { stores.Close() })

	msgBus := bus.New()
	eng := engine.New(engine.Config{Stores: stores, Events: msgBus})
	if err := eng.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := NewServer(cfg, msgBus, eng, stores)
	addr, start := StartTestServer(srv, ctx)
	go start()
	return addr, msgBus
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	var conn *websocket.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, _, err = websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	var frame map[string]interface{}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	return frame
}

func TestWebSocketEvents(t *testing.T) {
	addr, msgBus := startServer(t, nil)
	conn := dial(t, "ws://"+addr+"/ws")

	hello := readFrame(t, conn)
	if hello["type"] != protocol.FrameTypeHello || hello["protocol"] != float64(protocol.ProtocolVersion) {
		t.Fatalf("hello = %v", hello)
	}

	msgBus.Broadcast(bus.Event{Name: protocol.EventCacheInvalidate, Payload: bus.CacheInvalidatePayload{Kind: bus.CacheKindRules}})
	msgBus.Broadcast(bus.Event{Name: protocol.EventStatsChanged, Payload: map[string]int{"total_msgs": 3}})

	ev := readFrame(t, conn)
	if ev["event"] != protocol.EventStatsChanged {
		t.Errorf("event = %v, want %s (internal events must not be forwarded)", ev["event"], protocol.EventStatsChanged)
	}
	if ev["seq"] != float64(1) {
		t.Errorf("seq = %v, want 1", ev["seq"])
	}

	if err := conn.WriteJSON(map[string]string{"type": protocol.FrameTypePing}); err != nil {
		t.Fatal(err)
	}
	if pong := readFrame(t, conn); pong["type"] != protocol.FrameTypePong {
		t.Errorf("reply to ping = %v", pong)
	}
}

func TestWebSocketToken(t *testing.T) {
	addr, _ := startServer(t, func(c *config.Config) { c.Gateway.Token = "tok" })
	waitReady(t, addr)

	_, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	if err == nil {
		t.Fatal("dial without token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}

	conn := dial(t, "ws://"+addr+"/ws?token=tok")
	if hello := readFrame(t, conn); hello["type"] != protocol.FrameTypeHello {
		t.Errorf("hello = %v", hello)
	}
}

// waitReady polls /health until the listener answers.
func waitReady(t *testing.T, addr string) map[string]interface{} {
	t.Helper()
	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + addr + "/health")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	var health map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&health)
	return health
}

func TestHealthAndWebhook(t *testing.T) {
	addr, _ := startServer(t, func(c *config.Config) {
		c.Gateway.WebhookRateLimitRPM = 1
	})

	if health := waitReady(t, addr); health["status"] != "ok" || health["automation"] != true {
		t.Errorf("health = %v", health)
	}

	post := func() int {
		body := bytes.NewBufferString(`{"session_id":"s1","sender":"alice","message":"hi"}`)
		resp, err := http.Post("http://"+addr+"/v1/webhook", "application/json", body)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	// Burst of 5, then limited.
	for i := 0; i < 5; i++ {
		if code := post(); code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, code)
		}
	}
	if code := post(); code != http.StatusTooManyRequests {
		t.Errorf("status after burst = %d, want 429", code)
	}
}
