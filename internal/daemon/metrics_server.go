package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	ferrors "git.home.luguber.info/inful/ghsync/internal/foundation/errors"
	"git.home.luguber.info/inful/ghsync/internal/logfields"
	"git.home.luguber.info/inful/ghsync/internal/metrics"
	"git.home.luguber.info/inful/ghsync/internal/server/middleware"
)

// metricsServer exposes /metrics and /healthz on metrics_addr.
type metricsServer struct {
	srv *http.Server
	ln  net.Listener
	log *slog.Logger
}

// newMetricsServer binds addr up front so a port conflict fails startup
// instead of surfacing later from a background goroutine.
func newMetricsServer(addr string, reg *prom.Registry, healthy func() bool, log *slog.Logger) (*metricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to bind metrics address").
			WithContext("addr", addr).
			Build()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(reg))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !healthy() {
			http.Error(w, "not running", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})

	return &metricsServer{
		srv: &http.Server{
			Handler:           middleware.Chain(log)(mux),
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:  ln,
		log: log,
	}, nil
}

// Addr returns the bound address; useful when addr used port 0.
func (s *metricsServer) Addr() string { return s.ln.Addr().String() }

// Serve blocks until Shutdown.
func (s *metricsServer) Serve() {
	s.log.Info("Metrics server listening", slog.String("addr", s.Addr()))
	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error("Metrics server failed", logfields.Error(err))
	}
}

func (s *metricsServer) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryDaemon, "metrics server shutdown").Build()
	}
	return nil
}
