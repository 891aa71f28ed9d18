package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/porttown/internal/config"
	"github.com/cory-johannsen/porttown/internal/game/town"
)

// SnapshotSource provides read-only town state for the /towns endpoint.
type SnapshotSource interface {
	Snapshots() []town.Snapshot
}

// Server exposes the hub and town snapshots over HTTP.
//
// Routes: /ws (event stream), /towns (JSON snapshots), /healthz.
type Server struct {
	cfg    config.FeedConfig
	hub    *Hub
	source SnapshotSource
	logger *zap.Logger
}

// NewServer returns a Server.
//
// Precondition: hub and source are non-nil.
func NewServer(cfg config.FeedConfig, hub *Hub, source SnapshotSource, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{cfg: cfg, hub: hub, source: source, logger: logger}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.hub.ServeWS)
	mux.HandleFunc("/towns", s.handleTowns)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) handleTowns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.source.Snapshots()); err != nil {
		s.logger.Warn("writing town snapshots", zap.Error(err))
	}
}

// Run starts the hub and listens on the configured address until ctx is done.
//
// Postcondition: returns nil after a clean shutdown, or the listen error.
func (s *Server) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go func() { _ = s.hub.Run(hubCtx) }()

	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("feed listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("feed server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("feed shutdown: %w", err)
		}
		s.logger.Info("feed stopped")
		return nil
	}
}
