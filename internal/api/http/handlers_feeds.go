package apihttp

import (
	"encoding/json"
	"net/http"
	"strings"

	"sessioncore/internal/domain"
)

// handleFeeds lists or registers RSS feeds. The RSS Ingester owns its own
// feed table and polling timers independently of the controller, so these
// calls go straight to the rss.Manager rather than through a Command.
func (s *Server) handleFeeds(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.rss.Feeds())
	case http.MethodPost:
		var cfg domain.FeedConfig
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
			return
		}
		if strings.TrimSpace(cfg.URL) == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "url is required")
			return
		}
		s.rss.AddFeed(r.Context(), cfg)
		writeJSON(w, http.StatusCreated, cfg.Normalize())
	case http.MethodDelete:
		url := strings.TrimSpace(r.URL.Query().Get("url"))
		if url == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "url is required")
			return
		}
		s.rss.RemoveFeed(url)
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

// handleFeedByURL only services the one "/feeds/check" action; individual
// feeds are addressed by query parameter on /feeds instead of by path
// segment, since feed URLs routinely contain slashes.
func (s *Server) handleFeedByURL(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/feeds/check" {
		writeError(w, http.StatusNotFound, "not_found", "unknown feed action")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	s.rss.CheckAllNow(r.Context())
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
