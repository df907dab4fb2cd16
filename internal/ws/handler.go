package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// CloseUnknownProject is sent before closing a connection to a project
// slug that does not exist.
const CloseUnknownProject = 4004

// ProjectChecker reports whether a project slug exists.
type ProjectChecker interface {
	ProjectExists(ctx context.Context, slug string) (bool, error)
}

// EventMessage is the fanout payload for one accepted event.
type EventMessage struct {
	Type        string `json:"type"`
	ID          int64  `json:"id"`
	Project     string `json:"project"`
	Level       string `json:"level"`
	Message     string `json:"message"`
	Timestamp   string `json:"timestamp"`
	Environment string `json:"environment"`
	Fingerprint string `json:"fingerprint"`
}

// BroadcastEvent fans an event out to the project's subscribers.
func (h *Hub) BroadcastEvent(msg EventMessage) {
	msg.Type = "event"
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.Broadcast(msg.Project, payload)
}

// Handler upgrades HTTP requests into hub subscriptions.
type Handler struct {
	hub      *Hub
	projects ProjectChecker
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewHandler creates a WebSocket handler backed by the hub.
func NewHandler(hub *Hub, projects ProjectChecker, log *slog.Logger) *Handler {
	return &Handler{
		hub:      hub,
		projects: projects,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// ServeHTTP handles GET /ws/events/{projectSlug}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "projectSlug")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	exists, err := h.projects.ProjectExists(r.Context(), slug)
	if err != nil || !exists {
		// Accept first so the client gets a meaningful close code.
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseUnknownProject, "unknown project"), deadline)
		_ = conn.Close()
		return
	}

	// Confirmation, pongs, and hub fanout all go through the client's
	// write queue; the connection is never written directly here.
	client := NewClient(conn, h.log)
	defer client.Close()
	h.hub.Register(slug, client)
	defer h.hub.Unregister(slug, client)

	confirm, _ := json.Marshal(map[string]string{
		"type":    "connection",
		"status":  "connected",
		"project": slug,
	})
	if !client.Send(confirm) {
		return
	}

	h.readLoop(conn, client)
}

// readLoop answers pings and drops everything else until the peer goes away.
func (h *Handler) readLoop(conn *websocket.Conn, client *Client) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg struct {
			Type      string `json:"type"`
			Timestamp string `json:"timestamp"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			pong, _ := json.Marshal(map[string]string{
				"type":      "pong",
				"timestamp": msg.Timestamp,
			})
			if !client.Send(pong) {
				return
			}
		}
	}
}
