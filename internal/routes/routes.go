// internal/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"packetforge/internal/config"
	"packetforge/internal/handler"
	"packetforge/internal/middleware"
	"packetforge/internal/service"
	"packetforge/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config    *config.Config
	logger    *zap.Logger
	sessions  *service.SessionService
	scanner   handler.PortScanner
	eventBus  *handler.EventBus
	websocket *handler.WebSocketHandler
}

// NewRouter creates a new router instance
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	sessions *service.SessionService,
	scanner handler.PortScanner,
	eventBus *handler.EventBus,
) *Router {
	return &Router{
		config:    config,
		logger:    logger,
		sessions:  sessions,
		scanner:   scanner,
		eventBus:  eventBus,
		websocket: handler.NewWebSocketHandler(sessions, eventBus, logger),
	}
}

// WebSocket returns the WebSocket handler so that the server can disconnect
// its clients on shutdown
func (r *Router) WebSocket() *handler.WebSocketHandler {
	return r.websocket
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	switch {
	case r.config.App.Environment == "test":
		gin.SetMode(gin.TestMode)
	case r.config.IsProduction():
		gin.SetMode(gin.ReleaseMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.sessions, r.config, r.logger)
	sessionHandler := handler.NewSessionHandler(r.sessions, r.logger)
	discoveryHandler := handler.NewDiscoveryHandler(r.scanner, r.sessions.Registry(), r.logger)

	// Health check routes (no auth required)
	healthHandler.RegisterRoutes(router)

	apiV1 := router.Group("/api/v1")
	sessionHandler.RegisterRoutes(apiV1)
	discoveryHandler.RegisterRoutes(apiV1)

	r.websocket.RegisterRoutes(router.Group("/ws"))

	r.logger.Info("All routes configured successfully")
}
