package apihttp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sessioncore/internal/domain"
)

// wsMessage is the wire envelope for every event frame pushed to a connected
// UI: {"type":"statsUpdated","data":{...}}.
type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type wsClient struct {
	id   string
	hub  *wsHub
	conn *websocket.Conn
	send chan []byte
}

// wsHub fans event frames out to every connected UI: one goroutine owns
// the client set, with register/unregister/broadcast all crossing through
// channels so subscription needs no mutex.
type wsHub struct {
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
	logger     *slog.Logger
}

func newWSHub(logger *slog.Logger) *wsHub {
	return &wsHub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (h *wsHub) run() {
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				_ = client.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(2*time.Second),
				)
				close(client.send)
				delete(h.clients, client)
			}
			h.logger.Debug("ws hub stopped, all clients disconnected")
			return
		case client := <-h.register:
			h.clients[client] = true
			h.logger.Debug("ws client connected", slog.String("clientId", client.id), slog.Int("total", len(h.clients)))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Debug("ws client disconnected", slog.String("clientId", client.id), slog.Int("total", len(h.clients)))
			}
		case msg := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// Close signals the hub to stop and disconnect all clients.
func (h *wsHub) Close() {
	close(h.done)
}

// BroadcastEvent serializes one domain.Event under its event-name tag and
// queues it for every connected client; it never blocks the caller (the
// controller loop may be the one driving this indirectly via the event
// subscription goroutine).
func (h *wsHub) BroadcastEvent(ev domain.Event) {
	msg := wsMessage{Type: eventName(ev), Data: ev}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("ws marshal failed", slog.String("error", err.Error()))
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn("ws broadcast channel full, dropping event", slog.String("type", msg.Type))
	}
}

func eventName(ev domain.Event) string {
	switch ev.(type) {
	case domain.StartedEvent:
		return "started"
	case domain.StoppedEvent:
		return "stopped"
	case domain.TorrentAddedEvent:
		return "torrentAdded"
	case domain.AddFailedEvent:
		return "addFailed"
	case domain.TorrentRemovedEvent:
		return "torrentRemoved"
	case domain.TorrentFinishedEvent:
		return "torrentFinished"
	case domain.TorrentErrorEvent:
		return "torrentError"
	case domain.MetadataReceivedEvent:
		return "metadataReceived"
	case domain.StatsUpdatedEvent:
		return "statsUpdated"
	case domain.DetailUpdatedEvent:
		return "detailUpdated"
	case domain.PeerBannedEvent:
		return "peerBanned"
	case domain.MagnetURIReadyEvent:
		return "magnetUriReady"
	case domain.FeedCheckedEvent:
		return "feedChecked"
	case domain.FeedErrorEvent:
		return "feedError"
	default:
		return "unknown"
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		// Clients never send commands over the socket; this loop only
		// exists to notice disconnects and service pong frames.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func newWSClient(hub *wsHub, conn *websocket.Conn) *wsClient {
	return &wsClient{
		id:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
}
