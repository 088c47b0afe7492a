package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moolen/sre-assistant/internal/logging"
)

// metricsServer serves /metrics and /health as a lifecycle component.
type metricsServer struct {
	addr     string
	server   *http.Server
	listener net.Listener
	logger   *logging.Logger
}

func newMetricsServer(addr string, gatherer prometheus.Gatherer) *metricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &metricsServer{
		addr: addr,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logging.GetLogger("metrics"),
	}
}

func (s *metricsServer) Name() string {
	return "metrics-server"
}

// Start binds the listener before returning so a bad address fails startup.
func (s *metricsServer) Start(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.logger.Info("serving metrics on %s", listener.Addr())

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.ErrorWithErr("metrics server error", err)
		}
	}()
	return nil
}

func (s *metricsServer) Stop(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Addr returns the bound address once started.
func (s *metricsServer) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}
