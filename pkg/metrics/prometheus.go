package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dbehnke/hblink4/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

// ServerConfig holds the bind configuration for the metrics HTTP server.
type ServerConfig struct {
	Enabled bool
	Bind    string
	Port    int
}

// Server exposes a Collector's registry over HTTP at /metrics for
// Prometheus scraping.
type Server struct {
	config ServerConfig
	reg    *prometheus.Registry
	log    *logger.Logger
	server *http.Server
}

// NewServer creates a metrics HTTP server bound to config.Bind:config.Port.
// reg must be the same registry passed to NewCollector.
func NewServer(config ServerConfig, reg *prometheus.Registry, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{config: config, reg: reg, log: log.WithComponent("metrics")}
}

// Start listens and serves until ctx is cancelled, then shuts down
// gracefully. Returns nil if metrics are disabled.
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.log.Info("metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf("%s:%d", s.config.Bind, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics: failed to listen on %s: %w", addr, err)
	}
	actualPort := listener.Addr().(*net.TCPAddr).Port

	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	s.log.Info("starting metrics server",
		logger.Int("port", actualPort))

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutting down metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errChan:
		return err
	}
}

// Stop shuts the server down immediately, for use outside the Start/ctx flow.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = s.server.Shutdown(ctx)
}
