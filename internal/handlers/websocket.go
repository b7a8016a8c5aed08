package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/voicenote/internal/models"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope of every message sent to clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ConnectedMessage is sent once after the upgrade. Clients compare
// server_instance_id across reconnects to detect a server restart.
type ConnectedMessage struct {
	ServerInstanceID string `json:"server_instance_id"`
	Owner            string `json:"owner"`
}

type wsClient struct {
	owner string
	mu    sync.Mutex // Serialises writes; gorilla connections allow one writer
}

// WebSocketHandler keeps the connected clients and fans job events out to
// the clients of the job's owner
type WebSocketHandler struct {
	logger           arbor.ILogger
	clients          map[*websocket.Conn]*wsClient
	mu               sync.RWMutex
	serverInstanceID string // Unique ID generated on startup - clients use to detect server restart
}

func NewWebSocketHandler(logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]*wsClient),
		serverInstanceID: uuid.New().String(),
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized with server instance ID")
	return h
}

// ServerInstanceID returns the id sent to clients on connect
func (h *WebSocketHandler) ServerInstanceID() string {
	return h.serverInstanceID
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// wsOwner reads the owner from the X-Owner header, falling back to the
// owner query parameter since browsers cannot set headers on upgrade
func wsOwner(r *http.Request) string {
	if owner := strings.TrimSpace(r.Header.Get(OwnerHeader)); owner != "" {
		return owner
	}
	if owner := strings.TrimSpace(r.URL.Query().Get("owner")); owner != "" {
		return owner
	}
	return DefaultOwner
}

// HandleWebSocket upgrades the connection and keeps it registered until the client leaves
// GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	owner := wsOwner(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := &wsClient{owner: owner}
	h.mu.Lock()
	h.clients[conn] = client
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Str("owner", owner).Msgf("WebSocket client connected (total: %d)", clientCount)

	h.send(conn, client, WSMessage{
		Type: "connected",
		Payload: ConnectedMessage{
			ServerInstanceID: h.serverInstanceID,
			Owner:            owner,
		},
	})

	// Handle client disconnection
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", clientCount)
	}()

	// Read messages from client (keep connection alive)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

func (h *WebSocketHandler) send(conn *websocket.Conn, client *wsClient, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	client.mu.Lock()
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	err = conn.WriteMessage(websocket.TextMessage, data)
	client.mu.Unlock()

	if err != nil {
		h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send message to client")
	}
}

// BroadcastJobEvent sends a job event to every client connected as the job's owner
func (h *WebSocketHandler) BroadcastJobEvent(msgType string, event models.JobEvent) {
	msg := WSMessage{
		Type:    msgType,
		Payload: event,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", event.JobID).Msg("Failed to marshal job event")
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	clients := make([]*wsClient, 0, len(h.clients))
	for conn, client := range h.clients {
		if client.owner != event.Owner {
			continue
		}
		conns = append(conns, conn)
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for i, conn := range conns {
		client := clients[i]
		client.mu.Lock()
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		err := conn.WriteMessage(websocket.TextMessage, data)
		client.mu.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Str("job_id", event.JobID).Msg("Failed to send job event to client")
		}
	}
}
