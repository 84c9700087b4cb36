// internal/handler/discovery_handler.go
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"packetforge/internal/model"
	"packetforge/internal/utils"
	"packetforge/pkg/framing"
)

// PortScanner lists the serial ports of the host
type PortScanner interface {
	Scan(ctx context.Context) ([]model.PortInfo, error)
}

// DiscoveryHandler serves port enumeration and the framing rule catalogue
type DiscoveryHandler struct {
	scanner  PortScanner
	registry *framing.Registry
	logger   *utils.ServiceLogger
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(scanner PortScanner, registry *framing.Registry, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		scanner:  scanner,
		registry: registry,
		logger:   utils.NewServiceLogger(logger, "discovery-handler"),
	}
}

// RegisterRoutes registers discovery routes
func (h *DiscoveryHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ports", h.ScanPorts)
	router.GET("/framing", h.ListFraming)
}

// ScanPorts lists serial ports
// @Summary List serial ports
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse{data=object{ports_found=int,ports=[]model.PortInfo}}
// @Failure 500 {object} utils.APIResponse "Scan failed"
// @Router /ports [get]
func (h *DiscoveryHandler) ScanPorts(c *gin.Context) {
	ports, err := h.scanner.Scan(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to scan ports", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to scan ports", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Port scan completed", gin.H{
		"ports_found": len(ports),
		"ports":       ports,
	})
}

// ListFraming returns the registered receive and send rule names
func (h *DiscoveryHandler) ListFraming(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Framing rules retrieved", gin.H{
		"receive": h.registry.ReceiveNames(),
		"send":    h.registry.SendNames(),
	})
}
