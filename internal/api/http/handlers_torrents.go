package apihttp

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"sessioncore/internal/domain"
)

func (s *Server) handleTorrents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.cachedStats())
	case http.MethodPost:
		s.handleAddTorrent(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

type addTorrentRequest struct {
	Magnet     string   `json:"magnet"`
	Path       string   `json:"path"`
	SavePath   string   `json:"savePath"`
	Category   string   `json:"category"`
	Tags       []string `json:"tags"`
	Paused     bool     `json:"paused"`
	Sequential bool     `json:"sequential"`
}

func (s *Server) handleAddTorrent(w http.ResponseWriter, r *http.Request) {
	var body addTorrentRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return
	}

	switch {
	case strings.TrimSpace(body.Magnet) != "":
		s.ctrl.Post(domain.AddMagnetCmd{
			Magnet:   strings.TrimSpace(body.Magnet),
			SavePath: body.SavePath,
			Category: body.Category,
			Tags:     body.Tags,
			Paused:   body.Paused,
		})
	case strings.TrimSpace(body.Path) != "":
		s.ctrl.Post(domain.AddTorrentFileCmd{
			Path:       strings.TrimSpace(body.Path),
			SavePath:   body.SavePath,
			Category:   body.Category,
			Tags:       body.Tags,
			Paused:     body.Paused,
			Sequential: body.Sequential,
		})
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "one of magnet or path is required")
		return
	}

	// The add is asynchronous: the caller observes TorrentAdded/AddFailed on
	// the websocket once the controller has processed the command.
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleTorrentByID dispatches every /torrents/{hash}[/action] route.
func (s *Server) handleTorrentByID(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/torrents/pause-all" {
		s.ctrl.Post(domain.PauseAllCmd{})
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		return
	}
	if r.URL.Path == "/torrents/resume-all" {
		s.ctrl.Post(domain.ResumeAllCmd{})
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		return
	}

	hash, action, ok := trimHash(r.URL.Path, "/torrents/")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing or invalid info hash")
		return
	}

	switch action {
	case "":
		s.handleTorrentRoot(w, r, hash)
	case "pause":
		s.requireMethod(w, r, http.MethodPost, func() { s.ctrl.Post(domain.PauseCmd{InfoHash: hash}) })
	case "resume":
		s.requireMethod(w, r, http.MethodPost, func() { s.ctrl.Post(domain.ResumeCmd{InfoHash: hash}) })
	case "force-resume":
		s.requireMethod(w, r, http.MethodPost, func() { s.ctrl.Post(domain.ForceResumeCmd{InfoHash: hash}) })
	case "force-recheck":
		s.requireMethod(w, r, http.MethodPost, func() { s.ctrl.Post(domain.ForceRecheckCmd{InfoHash: hash}) })
	case "force-reannounce":
		s.requireMethod(w, r, http.MethodPost, func() { s.ctrl.Post(domain.ForceReannounceCmd{InfoHash: hash}) })
	case "focus":
		s.requireMethod(w, r, http.MethodPut, func() {
			h := hash
			s.ctrl.Post(domain.SetFocusedTorrentCmd{InfoHash: &h})
		})
	case "magnet-uri":
		s.requireMethod(w, r, http.MethodGet, func() { s.ctrl.Post(domain.RequestMagnetURICmd{InfoHash: hash}) })
	case "speed-limit":
		s.handleSpeedLimit(w, r, hash)
	case "sequential":
		s.handleSequential(w, r, hash)
	case "queue":
		s.handleQueueAction(w, r, hash)
	case "file-priority":
		s.handleFilePriority(w, r, hash)
	case "trackers":
		s.handleTrackers(w, r, hash)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown torrent action")
	}
}

func (s *Server) handleTorrentRoot(w http.ResponseWriter, r *http.Request, hash domain.InfoHash) {
	switch r.Method {
	case http.MethodGet:
		snap, ok := s.findSnapshot(hash)
		if !ok {
			writeError(w, http.StatusNotFound, "not_found", "torrent not found")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	case http.MethodDelete:
		deleteFiles, _ := strconv.ParseBool(r.URL.Query().Get("deleteFiles"))
		s.ctrl.Post(domain.RemoveCmd{InfoHash: hash, DeleteFiles: deleteFiles})
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (s *Server) requireMethod(w http.ResponseWriter, r *http.Request, method string, fn func()) {
	if r.Method != method {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	fn()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type speedLimitRequest struct {
	DL int64 `json:"dl"`
	UL int64 `json:"ul"`
}

func (s *Server) handleSpeedLimit(w http.ResponseWriter, r *http.Request, hash domain.InfoHash) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var body speedLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return
	}
	s.ctrl.Post(domain.SetSpeedLimitCmd{InfoHash: hash, DL: body.DL, UL: body.UL})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type sequentialRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSequential(w http.ResponseWriter, r *http.Request, hash domain.InfoHash) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var body sequentialRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return
	}
	s.ctrl.Post(domain.SetSequentialCmd{InfoHash: hash, Enabled: body.Enabled})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type queueActionRequest struct {
	Action domain.QueueAction `json:"action"`
}

func (s *Server) handleQueueAction(w http.ResponseWriter, r *http.Request, hash domain.InfoHash) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var body queueActionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return
	}
	switch body.Action {
	case domain.QueueTop, domain.QueueUp, domain.QueueDown, domain.QueueBottom:
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown queue action")
		return
	}
	s.ctrl.Post(domain.QueueActionCmd{InfoHash: hash, Action: body.Action})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type filePriorityRequest struct {
	FileIndex int            `json:"fileIndex"`
	Priority  domain.Priority `json:"priority"`
}

func (s *Server) handleFilePriority(w http.ResponseWriter, r *http.Request, hash domain.InfoHash) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var body filePriorityRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return
	}
	if !body.Priority.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid priority")
		return
	}
	s.ctrl.Post(domain.SetFilePriorityCmd{InfoHash: hash, FileIndex: body.FileIndex, Priority: body.Priority})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type trackerRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleTrackers(w http.ResponseWriter, r *http.Request, hash domain.InfoHash) {
	var body trackerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return
	}
	if strings.TrimSpace(body.URL) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "url is required")
		return
	}
	switch r.Method {
	case http.MethodPost:
		s.ctrl.Post(domain.AddTrackerCmd{InfoHash: hash, URL: body.URL})
	case http.MethodDelete:
		s.ctrl.Post(domain.RemoveTrackerCmd{InfoHash: hash, URL: body.URL})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.cachedStats())
}

// handleDetail returns the DetailData for whichever torrent is currently
// focused (see SetFocusedTorrentCmd); there is at most one at a time.
func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.cachedDetail())
}
