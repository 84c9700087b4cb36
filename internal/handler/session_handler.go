// internal/handler/session_handler.go
package handler

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"packetforge/internal/model"
	"packetforge/internal/protocol"
	"packetforge/internal/service"
	"packetforge/internal/utils"
)

// Payload encodings accepted by the send endpoints
const (
	EncodingText   = "text"
	EncodingHex    = "hex"
	EncodingBase64 = "base64"
)

// SendRequest carries a payload to write through a session
type SendRequest struct {
	Data     string `json:"data" binding:"required"`
	Encoding string `json:"encoding,omitempty"` // text (default), hex, base64
}

// PinRequest sets the serial output lines
type PinRequest struct {
	DTR bool `json:"dtr"`
	RTS bool `json:"rts"`
}

// PacketsResponse lists drained packets, hex encoded
type PacketsResponse struct {
	Count   int      `json:"count"`
	Packets []string `json:"packets"`
}

// SessionHandler handles session-related HTTP requests
type SessionHandler struct {
	sessions *service.SessionService
	logger   *utils.ServiceLogger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *service.SessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   utils.NewServiceLogger(logger, "session-handler"),
	}
}

// RegisterRoutes registers session routes
func (h *SessionHandler) RegisterRoutes(router *gin.RouterGroup) {
	sessions := router.Group("/sessions")
	{
		sessions.POST("", h.OpenSession)
		sessions.GET("", h.ListSessions)

		session := sessions.Group("/:id")
		{
			session.GET("", h.GetSession)
			session.DELETE("", h.CloseSession)
			session.POST("/reconnect", h.ReconnectSession)
			session.POST("/send", h.Send)
			session.GET("/pins", h.GetPins)
			session.PUT("/pins", h.SetPins)
			session.GET("/packets", h.GetPackets)
		}
	}
}

// OpenSession opens a transport session
// @Summary Open a session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param request body model.OpenRequest true "Session request"
// @Success 201 {object} utils.APIResponse{data=model.SessionInfo}
// @Failure 400 {object} utils.APIResponse "Invalid configuration"
// @Router /sessions [post]
func (h *SessionHandler) OpenSession(c *gin.Context) {
	var req model.OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BindErrorResponse(c, err)
		return
	}

	info, err := h.sessions.Open(c.Request.Context(), req)
	if err != nil {
		h.logger.Warn("Failed to open session", zap.Error(err))
		h.respondError(c, "Failed to open session", err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Session opened", info)
}

// ListSessions lists open sessions
func (h *SessionHandler) ListSessions(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Sessions retrieved", h.sessions.List())
}

// GetSession returns one session
func (h *SessionHandler) GetSession(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	info, err := h.sessions.Get(id)
	if err != nil {
		h.respondError(c, "Failed to get session", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Session retrieved", info)
}

// CloseSession closes and forgets a session
// @Summary Close a session
// @Tags Sessions
// @Param id path string true "Session ID"
// @Success 200 {object} utils.APIResponse
// @Failure 404 {object} utils.APIResponse "Session not found"
// @Router /sessions/{id} [delete]
func (h *SessionHandler) CloseSession(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	if err := h.sessions.Close(id); err != nil && !errors.Is(err, protocol.ErrCloseTimeout) {
		h.respondError(c, "Failed to close session", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Session closed", gin.H{"id": id})
}

// ReconnectSession restarts the session's connect attempt
func (h *SessionHandler) ReconnectSession(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	if err := h.sessions.Reconnect(c.Request.Context(), id); err != nil {
		h.respondError(c, "Failed to reconnect session", err)
		return
	}

	info, err := h.sessions.Get(id)
	if err != nil {
		h.respondError(c, "Failed to get session", err)
		return
	}
	utils.SuccessResponse(c, http.StatusAccepted, "Reconnect started", info)
}

// Send writes a payload through the session's send rule
// @Summary Send data
// @Tags Sessions
// @Accept json
// @Param id path string true "Session ID"
// @Param request body SendRequest true "Payload"
// @Success 202 {object} utils.APIResponse
// @Failure 409 {object} utils.APIResponse "Session not connected"
// @Router /sessions/{id}/send [post]
func (h *SessionHandler) Send(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BindErrorResponse(c, err)
		return
	}

	data, err := DecodePayload(req.Data, req.Encoding)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid payload", err)
		return
	}

	if err := h.sessions.Send(id, data); err != nil {
		h.respondError(c, "Failed to send", err)
		return
	}
	utils.SuccessResponse(c, http.StatusAccepted, "Data queued", gin.H{"bytes": len(data)})
}

// GetPins returns the decoded handshake input lines
func (h *SessionHandler) GetPins(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	pins, err := h.sessions.Pins(id)
	if err != nil {
		h.respondError(c, "Failed to read pins", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Pin status retrieved", pins)
}

// SetPins drives DTR and RTS
func (h *SessionHandler) SetPins(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	var req PinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BindErrorResponse(c, err)
		return
	}

	if err := h.sessions.SetPins(id, req.DTR, req.RTS); err != nil {
		h.respondError(c, "Failed to set pins", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Pins updated", req)
}

// GetPackets drains received packets. ?max=N limits the count.
func (h *SessionHandler) GetPackets(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	max := 0
	if raw := c.Query("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			utils.ErrorResponse(c, http.StatusBadRequest, "max must be a non-negative integer", err)
			return
		}
		max = n
	}

	packets, err := h.sessions.Packets(id, max)
	if err != nil {
		h.respondError(c, "Failed to read packets", err)
		return
	}

	resp := PacketsResponse{Count: len(packets), Packets: make([]string, 0, len(packets))}
	for _, p := range packets {
		resp.Packets = append(resp.Packets, hex.EncodeToString(p))
	}
	utils.SuccessResponse(c, http.StatusOK, "Packets retrieved", resp)
}

func (h *SessionHandler) sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid session id", err)
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps service errors to HTTP status codes
func (h *SessionHandler) respondError(c *gin.Context, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, protocol.ErrInvalidConfiguration), errors.Is(err, service.ErrNotSerial):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrSessionNotConnected), errors.Is(err, protocol.ErrNotClosed):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.logger.Error(message, zap.Error(err))
	}
	utils.ErrorResponse(c, status, message, err)
}

// DecodePayload turns a text, hex or base64 string into bytes
func DecodePayload(data, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", EncodingText:
		return []byte(data), nil
	case EncodingHex:
		return hex.DecodeString(strings.ReplaceAll(data, " ", ""))
	case EncodingBase64:
		return base64.StdEncoding.DecodeString(data)
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
