package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClareAI/astra-receptionist-service/internal/config"
	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// Server represents the receptionist HTTP server
type Server struct {
	config     *config.ReceptionistConfig
	router     *mux.Router
	components *components
	http       *http.Server
}

// NewServer wires every component and registers the routes
func NewServer(ctx context.Context, cfg *config.ReceptionistConfig) (*Server, error) {
	comps, err := buildComponents(ctx, cfg)
	if err != nil {
		return nil, err
	}

	router := mux.NewRouter()
	comps.handlers.SetupAllRoutes(router)

	return &Server{
		config:     cfg,
		router:     router,
		components: comps,
		http: &http.Server{
			Addr:        fmt.Sprintf(":%s", cfg.Port),
			Handler:     router,
			ReadTimeout: 15 * time.Second,
			// A turn can wait on the engine and the calendar
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}, nil
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	if err := s.components.startBackground(ctx, s.config); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Base().Info("Starting server", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Base().Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		logger.Base().Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	s.components.shutdown(shutdownCtx)
	return nil
}

func main() {
	// Load .env file for local development if it exists.
	// This will not override environment variables set by Helm/Docker.
	if err := godotenv.Load(); err != nil {
		log.Printf("Info: .env file not found or skipped (expected in production): %v", err)
	}

	if _, err := logger.Init(os.Getenv("LOG_ENV")); err != nil {
		log.Printf("Failed to initialize zap logger, falling back to std log: %v", err)
	}
	defer logger.Sync()

	cfg := config.LoadReceptionistConfig()
	if cfg.InstanceID == "" {
		cfg.InstanceID = getDynamicInstanceID()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := NewServer(ctx, cfg)
	if err != nil {
		logger.Base().Fatal("Failed to create server", zap.Error(err))
	}
	logger.Base().Info("Server initialized successfully",
		zap.String("port", cfg.Port),
		zap.String("instance_id", cfg.InstanceID),
		zap.String("engine_mode", cfg.EngineMode))

	if err := server.Start(ctx); err != nil {
		logger.Base().Fatal("Server failed", zap.Error(err))
	}
}

// getDynamicInstanceID uses the hostname (pod name in Kubernetes) and falls
// back to a timestamp-based ID
func getDynamicInstanceID() string {
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return fmt.Sprintf("receptionist-%d", time.Now().UnixNano())
}
