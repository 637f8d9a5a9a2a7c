package websocket

import (
	"hobby-relay/auth"
	"hobby-relay/observability"
	"hobby-relay/services"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ChatServer exposes the relay over HTTP: the WebSocket endpoint, history,
// search, health and metrics.
type ChatServer struct {
	log            *slog.Logger
	chatService    services.IChatService
	verifier       *auth.Verifier
	health         *observability.HealthMonitor
	gatherer       prometheus.Gatherer
	metrics        *observability.Metrics
	config         SessionConfig
	upgrader       websocket.Upgrader
	allowedOrigins map[string]struct{}
	allowAll       bool
	mu             sync.Mutex
	sessions       map[string]*Session
}

// NewChatServer builds the server. A nil verifier means the display name is taken
// from the query string as is.
func NewChatServer(log *slog.Logger, chatService services.IChatService, verifier *auth.Verifier,
	health *observability.HealthMonitor, gatherer prometheus.Gatherer, metrics *observability.Metrics,
	allowedOrigins []string, config SessionConfig) *ChatServer {
	s := &ChatServer{
		log:         log,
		chatService: chatService,
		verifier:    verifier,
		health:      health,
		gatherer:    gatherer,
		metrics:     metrics,
		config:      config,
		sessions:    make(map[string]*Session),
	}
	origins, allowAll := normalizeOrigins(log, allowedOrigins)
	s.allowAll = allowAll
	s.allowedOrigins = make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		s.allowedOrigins[origin] = struct{}{}
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *ChatServer) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /api/messages/{room}", s.handleHistory)
	mux.HandleFunc("GET /api/rooms/{room}/search", s.handleSearch)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// CloseSessions disconnects every live session. Hijacked connections are not
// tracked by http.Server.Shutdown.
func (s *ChatServer) CloseSessions() {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
	s.log.Info("Sessions closed", "count", len(sessions))
}

func (s *ChatServer) track(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID()] = session
}

func (s *ChatServer) untrack(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, session.ID())
}

// An empty Origin comes from a non browser client and is accepted.
func (s *ChatServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.allowAll {
		return true
	}
	normalized, ok := normalizeOrigin(origin)
	if ok {
		if _, exists := s.allowedOrigins[normalized]; exists {
			return true
		}
	}
	s.log.Warn("Blocked WebSocket connection from disallowed origin", "origin", origin)
	return false
}

func normalizeOrigins(log *slog.Logger, origins []string) ([]string, bool) {
	normalized := make([]string, 0, len(origins))
	allowAll := false

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			allowAll = true
			continue
		}
		normalizedOrigin, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Warn("Ignoring invalid origin in configuration", "origin", origin)
			continue
		}
		normalized = append(normalized, normalizedOrigin)
	}
	return normalized, allowAll
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
