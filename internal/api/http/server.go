package apihttp

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"sessioncore/internal/controller"
	"sessioncore/internal/domain"
	"sessioncore/internal/domain/ports"
	"sessioncore/internal/rss"
)

// Server is the Observer surface: it posts Commands onto the Session
// Controller's channel and mirrors the Controller's own Events (cached
// locally, since GET handlers must answer synchronously while the
// controller's own state lives on its single goroutine) out to HTTP
// responses and connected WebSocket clients. Mutating endpoints post a
// command and answer 202 Accepted; there is no synchronous result to
// report, the outcome arrives as an event.
type Server struct {
	log   *slog.Logger
	ctrl  *controller.Controller
	rss   *rss.Manager
	store ports.SettingsStore

	wsHub *wsHub

	mu     sync.RWMutex
	stats  domain.SessionStats
	detail domain.DetailData

	unsubscribe func()
	handler     http.Handler

	corsOrigins []string
}

// ServerOption configures optional Server behavior.
type ServerOption func(*Server)

func WithCORSOrigins(origins []string) ServerOption {
	return func(s *Server) { s.corsOrigins = origins }
}

// NewServer wires the full handler chain and starts the background
// goroutine that mirrors controller Events into the server's read cache and
// the websocket hub. Callers must call Close to stop both.
func NewServer(log *slog.Logger, ctrl *controller.Controller, rssMgr *rss.Manager, store ports.SettingsStore, opts ...ServerOption) *Server {
	s := &Server{
		log:   log,
		ctrl:  ctrl,
		rss:   rssMgr,
		store: store,
		wsHub: newWSHub(log),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.wsHub.run()

	events, cancel := ctrl.Subscribe()
	s.unsubscribe = cancel
	go s.mirrorEvents(events)

	mux := http.NewServeMux()
	mux.HandleFunc("/torrents", s.handleTorrents)
	mux.HandleFunc("/torrents/", s.handleTorrentByID)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/detail", s.handleDetail)
	mux.HandleFunc("/settings", s.handleSettings)
	mux.HandleFunc("/settings/categories", s.handleCategories)
	mux.HandleFunc("/settings/tags", s.handleTags)
	mux.HandleFunc("/feeds", s.handleFeeds)
	mux.HandleFunc("/feeds/", s.handleFeedByURL)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.log, mux), "sessioncore",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/healthz"
		}),
	)
	s.handler = recoveryMiddleware(s.log, rateLimitMiddleware(100, 200, metricsMiddleware(corsMiddleware(s.corsOrigins, traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close stops mirroring events and disconnects every websocket client. It
// does not shut the controller down; callers shut the controller down
// separately and then Close the server.
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.wsHub.Close()
}

// mirrorEvents is the Server's own single-goroutine owner of stats/detail:
// the controller already refuses to let anything but its own loop touch
// per-torrent state, so the HTTP layer keeps its own read-only copy fed
// exclusively from the event stream instead of reaching back into the
// controller.
func (s *Server) mirrorEvents(events <-chan domain.Event) {
	for ev := range events {
		switch e := ev.(type) {
		case domain.StatsUpdatedEvent:
			s.mu.Lock()
			s.stats = e.Stats
			s.mu.Unlock()
		case domain.DetailUpdatedEvent:
			s.mu.Lock()
			s.detail = e.Detail
			s.mu.Unlock()
		}
		s.wsHub.BroadcastEvent(ev)
	}
}

func (s *Server) cachedStats() domain.SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func (s *Server) cachedDetail() domain.DetailData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.detail
}

func (s *Server) findSnapshot(hash domain.InfoHash) (domain.TorrentSnapshot, bool) {
	stats := s.cachedStats()
	for _, snap := range stats.Torrents {
		if snap.InfoHash == hash {
			return snap, true
		}
	}
	return domain.TorrentSnapshot{}, false
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := newWSClient(s.wsHub, conn)
	s.wsHub.register <- client
	go client.writePump()
	go client.readPump()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func trimHash(path, prefix string) (domain.InfoHash, string, bool) {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", "", false
	}
	parts := strings.SplitN(rest, "/", 2)
	hash, err := domain.NewInfoHash(parts[0])
	if err != nil {
		return "", "", false
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}
	return hash, action, true
}
