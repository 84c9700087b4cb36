// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"syscall"

	"github.com/oklog/run"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"packetforge/internal/config"
	"packetforge/internal/discovery/serial"
	"packetforge/internal/handler"
	"packetforge/internal/routes"
	"packetforge/internal/service"
	"packetforge/internal/utils"
	"packetforge/pkg/framing"
)

// Application represents the main application
type Application struct {
	config        *config.Config
	logger        *zap.Logger
	serviceLogger *utils.ServiceLogger
	server        *http.Server

	eventBus  *handler.EventBus
	sessions  *service.SessionService
	websocket *handler.WebSocketHandler
}

func main() {
	configFile := pflag.StringP("config", "c", "", "path to the configuration file")
	pflag.Parse()

	app, err := NewApplication(*configFile)
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		app.logger.Error("Application stopped with error", zap.Error(err))
		utils.CloseLogger(app.logger)
		os.Exit(1)
	}
}

// NewApplication creates a new application instance
func NewApplication(configFile string) (*Application, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "packetforge")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config:        cfg,
		logger:        logger,
		serviceLogger: serviceLogger,
	}

	app.initializeServices()
	app.initializeServer()

	return app, nil
}

// initializeServices creates the event bus and the session service
func (app *Application) initializeServices() {
	app.eventBus = handler.NewEventBus(app.logger)
	app.sessions = service.NewSessionService(
		app.config.Transport,
		framing.NewRegistry(),
		app.eventBus,
		app.logger,
	)

	app.logger.Info("Services initialized successfully")
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() {
	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.sessions,
		serial.NewScanner(app.logger),
		app.eventBus,
	)
	app.websocket = routerManager.WebSocket()

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      routerManager.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
		zap.Bool("tls_enabled", app.config.Server.TLS.Enabled),
	)
}

// openConfiguredSessions opens the sessions listed in the configuration.
// A session that fails to open is logged and skipped.
func (app *Application) openConfiguredSessions() {
	for i, req := range app.config.Sessions {
		info, err := app.sessions.Open(context.Background(), req)
		if err != nil {
			app.logger.Error("Failed to open configured session",
				zap.Int("index", i),
				zap.String("name", req.Name),
				zap.Error(err),
			)
			continue
		}
		app.logger.Info("Configured session opened",
			zap.String("name", info.Name),
			zap.String("session_id", info.ID.String()),
		)
	}
}

// Run serves HTTP until a signal arrives or the server fails
func (app *Application) Run() error {
	var g run.Group

	g.Add(func() error {
		app.eventBus.Start()
		return nil
	}, func(error) {
		app.eventBus.Stop()
	})

	g.Add(func() error {
		app.logger.Info("Starting HTTP server", zap.String("address", app.server.Addr))
		var err error
		if app.config.Server.TLS.Enabled {
			err = app.server.ListenAndServeTLS(app.config.Server.TLS.CertFile, app.config.Server.TLS.KeyFile)
		} else {
			err = app.server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}, func(error) {
		app.shutdown()
	})

	g.Add(run.SignalHandler(context.Background(), syscall.SIGINT, syscall.SIGTERM))

	app.openConfiguredSessions()

	err := g.Run()
	var sig run.SignalError
	if errors.As(err, &sig) {
		app.serviceLogger.LogServiceStop(sig.Error())
		err = nil
	}

	utils.CloseLogger(app.logger)
	return err
}

// shutdown stops the HTTP server and closes every session
func (app *Application) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
	defer cancel()

	app.websocket.CloseAll()
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	app.sessions.CloseAll()
	app.logger.Info("Sessions closed")
}
