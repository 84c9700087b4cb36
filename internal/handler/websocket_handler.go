// internal/handler/websocket_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"packetforge/internal/model"
	"packetforge/internal/service"
	"packetforge/internal/utils"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// WebSocketHandler streams session events to WebSocket clients
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	connections *ConnectionManager
	sessions    *service.SessionService
	eventBus    *EventBus
	logger      *utils.ServiceLogger
}

// NewWebSocketHandler creates a new WebSocket handler. The event bus must be
// started by the caller.
func NewWebSocketHandler(sessions *service.SessionService, eventBus *EventBus, logger *zap.Logger) *WebSocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// CORS middleware already filters browser origins
			return true
		},
	}

	return &WebSocketHandler{
		upgrader:    upgrader,
		connections: NewConnectionManager(),
		sessions:    sessions,
		eventBus:    eventBus,
		logger:      utils.NewServiceLogger(logger, "websocket-handler"),
	}
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/sessions/:id", h.HandleSessionConnection)
	router.GET("/events", h.HandleEventConnection)
}

// HandleSessionConnection streams the events of one session and accepts
// send messages for it
func (h *WebSocketHandler) HandleSessionConnection(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid session id", err)
		return
	}
	if _, err := h.sessions.Get(id); err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Session not found", err)
		return
	}

	sessionID := id.String()
	h.serve(c, ClientTypeSession, &sessionID)
}

// HandleEventConnection streams the events of every session
func (h *WebSocketHandler) HandleEventConnection(c *gin.Context) {
	h.serve(c, ClientTypeEvents, nil)
}

func (h *WebSocketHandler) serve(c *gin.Context, clientType string, sessionID *string) {
	topic := AllSessions
	if sessionID != nil {
		topic = *sessionID
	}
	// subscribe first so that no event published after the handshake is missed
	events, unsubscribe := h.eventBus.Subscribe(topic)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		unsubscribe()
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, 256),
		Type:        clientType,
		SessionID:   sessionID,
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}

	h.connections.Register(client)
	h.logger.Info("WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("type", clientType),
		zap.String("topic", topic),
		zap.String("remote_addr", client.RemoteAddr),
	)

	go h.handleClientRead(client, unsubscribe)
	go h.handleClientWrite(client, events)
}

// handleClientRead reads client messages until the connection fails. It is
// the only writer of client.Send.
func (h *WebSocketHandler) handleClientRead(client *Client, unsubscribe func()) {
	defer func() {
		unsubscribe()
		h.connections.Unregister(client)
		client.Connection.Close()
		h.logger.Info("WebSocket client disconnected", zap.String("client_id", client.ID))
	}()

	client.Connection.SetReadDeadline(time.Now().Add(pongWait))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageBytes, err := client.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
			}
			return
		}

		var message inboundMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.sendError(client, "", "invalid message")
			continue
		}

		h.handleClientMessage(client, &message)
	}
}

// handleClientWrite writes replies and bus events to the client
func (h *WebSocketHandler) handleClientWrite(client *Client, events <-chan model.SessionEvent) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
				return
			}

		case event, ok := <-events:
			if !ok {
				return
			}
			messageBytes, err := json.Marshal(&WebSocketMessage{
				Type:      MessageSessionEvent,
				Data:      event,
				Timestamp: time.Now(),
			})
			if err != nil {
				h.logger.Error("Failed to marshal session event", zap.Error(err))
				continue
			}
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Connection.WriteMessage(websocket.TextMessage, messageBytes); err != nil {
				return
			}

		case <-ticker.C:
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleClientMessage handles incoming client messages
func (h *WebSocketHandler) handleClientMessage(client *Client, message *inboundMessage) {
	switch message.Type {
	case MessageSend:
		h.handleSend(client, message)
	case MessagePing:
		h.sendMessage(client, &WebSocketMessage{
			Type:      MessagePong,
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})
	default:
		h.logger.Warn("Unknown message type",
			zap.String("type", message.Type),
			zap.String("client_id", client.ID),
		)
		h.sendError(client, message.RequestID, "unknown message type: "+message.Type)
	}
}

// handleSend writes a payload through the client's session
func (h *WebSocketHandler) handleSend(client *Client, message *inboundMessage) {
	if client.SessionID == nil {
		h.sendError(client, message.RequestID, "send only available on session connections")
		return
	}

	var req SendRequest
	if err := json.Unmarshal(message.Data, &req); err != nil {
		h.sendError(client, message.RequestID, "invalid send data")
		return
	}
	data, err := DecodePayload(req.Data, req.Encoding)
	if err != nil {
		h.sendError(client, message.RequestID, err.Error())
		return
	}

	id, _ := uuid.Parse(*client.SessionID)
	if err := h.sessions.Send(id, data); err != nil {
		h.sendError(client, message.RequestID, err.Error())
		return
	}

	h.sendMessage(client, &WebSocketMessage{
		Type:      MessageSendResult,
		Data:      gin.H{"bytes": len(data)},
		Timestamp: time.Now(),
		RequestID: message.RequestID,
	})
}

// sendMessage queues a message for the write pump
func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	select {
	case client.Send <- messageBytes:
	default:
		h.logger.Warn("Client send channel full, dropping message",
			zap.String("client_id", client.ID),
		)
	}
}

// sendError sends an error message to a client
func (h *WebSocketHandler) sendError(client *Client, requestID, errorMsg string) {
	h.sendMessage(client, &WebSocketMessage{
		Type:      MessageError,
		Data:      gin.H{"error": errorMsg},
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}

// GetConnectionStats returns connection statistics
func (h *WebSocketHandler) GetConnectionStats() *ConnectionStats {
	return h.connections.GetStats()
}

// CloseAll disconnects every client
func (h *WebSocketHandler) CloseAll() {
	h.connections.CloseAll()
}
