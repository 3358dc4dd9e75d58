// Package preview serves a rendered site over HTTP for local review.
package preview

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/quire/pkg/httputil"
	"github.com/platinummonkey/quire/pkg/observability"
)

// Server serves the output directory with health and metrics endpoints
type Server struct {
	root    string
	addr    string
	log     logrus.FieldLogger
	metrics *observability.Metrics
	health  *observability.HealthChecker

	mu        sync.RWMutex
	lastBuild time.Time
	buildErr  error

	handler http.Handler
}

// New creates a preview server for the site rendered into root
func New(addr, root, version string, metrics *observability.Metrics, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.New()
	}
	if metrics == nil {
		metrics = observability.NewMetrics(nil)
	}

	s := &Server{
		root:    root,
		addr:    addr,
		log:     log,
		metrics: metrics,
		health:  observability.NewHealthChecker(version),
	}

	s.health.AddCheck("output", s.checkOutput, true)
	s.health.AddCheck("build", s.checkBuild, false)
	s.handler = s.routes()

	return s
}

// Handler returns the instrumented HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// SetBuildResult records the outcome of the latest render for /readyz
func (s *Server) SetBuildResult(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastBuild = time.Now()
	s.buildErr = err
}

func (s *Server) routes() http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = httputil.NotFoundHandler()
	router.MethodNotAllowedHandler = httputil.MethodNotAllowedHandler()
	router.Use(httputil.RequestIDMiddleware)
	router.Use(httputil.LoggingMiddleware(s.log))
	router.Use(observability.RecoveryMiddleware(s.log))
	router.Use(mux.MiddlewareFunc(observability.HTTPMetricsMiddleware(s.metrics)))

	router.HandleFunc("/healthz", s.health.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.health.Readiness).Methods(http.MethodGet)
	router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	router.PathPrefix("/").Handler(httputil.NoCacheMiddleware(http.FileServer(http.Dir(s.root)))).Methods(http.MethodGet, http.MethodHead)

	return otelhttp.NewHandler(router, "quire.preview")
}

// ListenAndServe serves until ctx is done, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, shutdownTimeout time.Duration) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, listener, shutdownTimeout)
}

// Serve serves on listener until ctx is done
func (s *Server) Serve(ctx context.Context, listener net.Listener, shutdownTimeout time.Duration) error {
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("Serving %s on http://%s", s.root, listener.Addr())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	manager := observability.NewShutdownManager(s.log, server, shutdownTimeout)
	if err := manager.WaitForShutdown(ctx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) checkOutput(context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.root)
	}
	return nil
}

func (s *Server) checkBuild(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.buildErr != nil {
		return fmt.Errorf("last build at %s failed: %w", s.lastBuild.Format(time.RFC3339), s.buildErr)
	}
	return nil
}
