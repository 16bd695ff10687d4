package metrics

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server exposes the store's Prometheus metrics over HTTP: /metrics for
// scraping and a plain /healthz for liveness probes.
type Server struct {
	mu        sync.RWMutex
	addr      string
	boundAddr string
	server    *http.Server
	registry  prometheus.Gatherer
	logger    *zap.Logger
}

// NewServer returns a server bound to addr on Start, gathering from the
// default Prometheus registry. A nil logger disables logging.
func NewServer(addr string, logger *zap.Logger) *Server {
	return NewServerWithRegistry(addr, nil, logger)
}

// NewServerWithRegistry is NewServer with an explicit gatherer, so tests
// can stay off the default registry. A nil gatherer falls back to the
// default registry.
func NewServerWithRegistry(addr string, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		addr:     addr,
		registry: gatherer,
		logger:   logger,
	}
}

// Start binds the listener and begins serving in the background. Serve
// failures after startup are logged, never fatal: scraping is best-effort.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.boundAddr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server stopped",
				zap.String("addr", s.Addr()),
				zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the bound address once Start has run, the configured
// address before that.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.boundAddr != "" {
		return s.boundAddr
	}
	return s.addr
}

// Close shuts the server down, waiting up to five seconds for in-flight
// scrapes.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
