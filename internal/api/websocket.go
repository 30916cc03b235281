// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Tsegaye16/BookCompanion/internal/models"
	"github.com/Tsegaye16/BookCompanion/internal/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketClient is one chat connection.
type WebSocketClient struct {
	conn      *websocket.Conn
	userID    string
	sessionID string
	send      chan []byte
	closed    int32
	lastPing  time.Time
	createdAt time.Time
}

// WebSocketManager tracks live chat connections.
type WebSocketManager struct {
	clients     map[*WebSocketClient]struct{}
	mutex       sync.RWMutex
	pingTimeout time.Duration
}

var wsManager = &WebSocketManager{
	clients:     make(map[*WebSocketClient]struct{}),
	pingTimeout: 60 * time.Second,
}

func (client *WebSocketClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

func (client *WebSocketClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// SendJSON queues a message without blocking; a full queue drops it.
func (client *WebSocketClient) SendJSON(message interface{}) {
	if client.IsClosed() {
		return
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		return
	}

	select {
	case client.send <- msgBytes:
	default:
		utils.GetLogger().Warn("WebSocket send queue full, dropping message",
			map[string]interface{}{"user": client.userID})
	}
}

func (client *WebSocketClient) SendError(errorMsg string) {
	client.SendJSON(map[string]interface{}{
		"type":      "error",
		"error":     errorMsg,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (manager *WebSocketManager) register(client *WebSocketClient) {
	manager.mutex.Lock()
	manager.clients[client] = struct{}{}
	manager.mutex.Unlock()
}

func (manager *WebSocketManager) unregister(client *WebSocketClient) {
	manager.mutex.Lock()
	delete(manager.clients, client)
	manager.mutex.Unlock()
	client.Close()
}

// Status reports live connection counts for the debug endpoint.
func (manager *WebSocketManager) Status() map[string]interface{} {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	active := 0
	for client := range manager.clients {
		if !client.IsClosed() {
			active++
		}
	}
	return map[string]interface{}{
		"total_connections":    len(manager.clients),
		"active_connections":   active,
		"ping_timeout_seconds": int(manager.pingTimeout.Seconds()),
	}
}

// wsChatMessage is the inbound chat frame.
type wsChatMessage struct {
	Message   string `json:"message"`
	Character string `json:"character"`
	Source    string `json:"source"`
}

// ChatWebSocket upgrades the connection and serves chat turns over it.
// user_id and session_id ride on the query string for the whole socket.
func (h *Handler) ChatWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.GetLogger().Error("WebSocket upgrade failed", map[string]interface{}{"err": err.Error()})
		return
	}

	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		userID = models.AnonymousUser
	}

	client := &WebSocketClient{
		conn:      conn,
		userID:    userID,
		sessionID: c.Query("session_id"),
		send:      make(chan []byte, 16),
		lastPing:  time.Now(),
		createdAt: time.Now(),
	}
	wsManager.register(client)

	go h.writePump(client)
	h.readPump(c, client)
}

func (h *Handler) readPump(c *gin.Context, client *WebSocketClient) {
	defer wsManager.unregister(client)

	client.conn.SetReadDeadline(time.Now().Add(wsManager.pingTimeout))
	client.conn.SetPongHandler(func(string) error {
		client.lastPing = time.Now()
		client.conn.SetReadDeadline(time.Now().Add(wsManager.pingTimeout))
		return nil
	})

	for {
		var msg wsChatMessage
		if err := client.conn.ReadJSON(&msg); err != nil {
			return
		}
		client.conn.SetReadDeadline(time.Now().Add(wsManager.pingTimeout))

		if strings.TrimSpace(msg.Message) == "" || strings.TrimSpace(msg.Character) == "" {
			client.SendError("message and character are required")
			continue
		}

		ident := models.CharacterIdentity{
			Name:       strings.TrimSpace(msg.Character),
			BookSource: strings.TrimSpace(msg.Source),
			UserID:     client.userID,
		}

		result, err := h.ChatService.ProcessUserInput(c.Request.Context(), msg.Message, ident, client.sessionID)
		if err != nil {
			client.SendError("Failed to process chat turn")
			continue
		}

		client.SendJSON(map[string]interface{}{
			"type":      "chat_response",
			"data":      result,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

func (h *Handler) writePump(client *WebSocketClient) {
	pingTicker := time.NewTicker(wsManager.pingTimeout / 2)
	defer func() {
		pingTicker.Stop()
		client.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			if !ok {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-pingTicker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// GetWebSocketStatus is the connection debug endpoint.
func (h *Handler) GetWebSocketStatus(c *gin.Context) {
	status := wsManager.Status()
	status["timestamp"] = time.Now().Format(time.RFC3339)
	c.JSON(http.StatusOK, status)
}
