package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/autoreply/internal/bus"
	"github.com/nextlevelbuilder/autoreply/internal/config"
	"github.com/nextlevelbuilder/autoreply/internal/engine"
	httpapi "github.com/nextlevelbuilder/autoreply/internal/http"
	"github.com/nextlevelbuilder/autoreply/internal/store"
	"github.com/nextlevelbuilder/autoreply/pkg/protocol"
)

// Server is the gateway: the inbound webhook, the admin API and the dashboard
// WebSocket feed.
type Server struct {
	cfg      *config.Config
	eventPub bus.EventPublisher
	engine   *engine.Engine
	stores   *store.Stores

	upgrader    websocket.Upgrader
	rateLimiter *RateLimiter
	clients     map[string]*Client
	mu          sync.RWMutex

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a new gateway server.
func NewServer(cfg *config.Config, eventPub bus.EventPublisher, eng *engine.Engine, stores *store.Stores) *Server {
	s := &Server{
		cfg:      cfg,
		eventPub: eventPub,
		engine:   eng,
		stores:   stores,
		clients:  make(map[string]*Client),
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	// webhook_rate_limit_rpm <= 0 disables the limiter.
	s.rateLimiter = NewRateLimiter(cfg.Gateway.WebhookRateLimitRPM, 5)
	return s
}

// RateLimiter returns the webhook rate limiter.
func (s *Server) RateLimiter() *RateLimiter { return s.rateLimiter }

// checkOrigin validates WebSocket connection origin against the allowed origins whitelist.
// If no origins are configured, all origins are allowed.
// Empty Origin header (non-browser clients) is always allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.Gateway.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if origin == a || a == "*" {
			return true
		}
	}
	slog.Warn("security.cors_rejected", "origin", origin)
	return false
}

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	token := s.cfg.Gateway.Token

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	webhook := httpapi.NewWebhookHandler(s.engine, token, s.cfg.Gateway.MaxMessageChars)
	if s.rateLimiter.Enabled() {
		webhook.SetRateLimiter(s.rateLimiter.Allow)
	}
	mux.Handle("/v1/webhook", webhook)

	httpapi.NewRulesHandler(s.stores.Rules, token, s.engine, s.eventPub).RegisterRoutes(mux)
	httpapi.NewVariablesHandler(s.stores.Variables, token, s.engine, s.eventPub).RegisterRoutes(mux)
	httpapi.NewSettingsHandler(s.stores, s.engine, token, s.engine, s.eventPub).RegisterRoutes(mux)
	httpapi.NewStatsHandler(s.stores.Stats, s.engine, token).RegisterRoutes(mux)

	s.mux = mux
	return mux
}

// Start begins listening for WebSocket and HTTP connections. It returns when ctx
// is cancelled and the server has shut down.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()

	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	slog.Info("gateway.starting", "addr", addr)

	go s.shutdownOnDone(ctx, 5*time.Second)

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

func (s *Server) shutdownOnDone(ctx context.Context, grace time.Duration) {
	<-ctx.Done()
	s.BroadcastEvent(protocol.EventShutdown, nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	s.httpServer.Shutdown(shutdownCtx)
}

// handleWebSocket upgrades HTTP to WebSocket and manages the connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if token := s.cfg.Gateway.Token; token != "" {
		if t := r.URL.Query().Get("token"); t != token && bearer(r) != token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn)
	s.registerClient(client)

	defer func() {
		s.unregisterClient(client)
		client.Close()
	}()

	client.Run(r.Context())
}

func bearer(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","protocol":%d,"automation":%t}`,
		protocol.ProtocolVersion, s.engine.AutomationEnabled())
}

// BroadcastEvent sends an event to all connected clients.
func (s *Server) BroadcastEvent(name string, payload interface{}) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, client := range s.clients {
		client.SendEvent(name, payload)
	}
}

// ClientCount returns the number of connected dashboard clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) registerClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.id] = c

	s.eventPub.Subscribe(c.id, func(event bus.Event) {
		if protocol.InternalEvent(event.Name) {
			return
		}
		c.SendEvent(event.Name, event.Payload)
	})

	slog.Info("client connected", "id", c.id)
}

func (s *Server) unregisterClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.id)
	s.eventPub.Unsubscribe(c.id)
	slog.Info("client disconnected", "id", c.id)
}

// StartTestServer creates a listener on a random local port and returns the
// actual address and a start function. Used for integration tests.
func StartTestServer(s *Server, ctx context.Context) (addr string, start func()) {
	mux := s.BuildMux()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic("listen: " + err.Error())
	}

	s.httpServer = &http.Server{
		Handler:     mux,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	addr = ln.Addr().String()

	start = func() {
		go s.shutdownOnDone(ctx, 2*time.Second)
		s.httpServer.Serve(ln)
	}

	return addr, start
}
