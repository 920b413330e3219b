// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

// Package httpapi exposes the fieldaudit service over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/fieldops/fieldaudit/internal/auth"
	"github.com/fieldops/fieldaudit/internal/config"
	"github.com/fieldops/fieldaudit/internal/core"
	"github.com/fieldops/fieldaudit/internal/logging"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server routes HTTP requests to the service.
type Server struct {
	svc       *core.Service
	tokens    *auth.Manager
	router    *httprouter.Router
	handler   http.Handler
	publicURL string
	enforce   bool
	cfg       config.ServerConfig
}

// Options configures New.
type Options struct {
	Server config.ServerConfig
	// EnforceAuth requires a valid access token on non-auth API routes.
	EnforceAuth bool
	// Registry receives the HTTP metrics and backs /metrics. Nil uses a
	// private registry.
	Registry *prometheus.Registry
}

// New builds the router and middleware chain. The returned server is ready
// to serve before any listener exists.
func New(svc *core.Service, tokens *auth.Manager, opts Options) *Server {
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s := &Server{
		svc:       svc,
		tokens:    tokens,
		router:    httprouter.New(),
		publicURL: opts.Server.PublicURL,
		enforce:   opts.EnforceAuth,
		cfg:       opts.Server,
	}
	s.router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, clientError(http.StatusNotFound, "error.not_found"))
	})
	s.router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, clientError(http.StatusMethodNotAllowed, "error.method_not_allowed"))
	})
	s.router.HandleOPTIONS = false
	s.routes(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	reqTimeout := opts.Server.RequestTimeout
	if reqTimeout <= 0 {
		reqTimeout = 120 * time.Second
	}
	var h http.Handler = s.router
	h = timeout(h, reqTimeout)
	h = corsHandler(opts.Server.CORSOrigins).Handler(h)
	h = newMetrics(reg).middleware(h)
	h = accessLog(h)
	s.handler = recoverer(h)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// handle registers h and labels requests with the route pattern.
func (s *Server) handle(method, path string, h httprouter.Handle) {
	public := !strings.HasPrefix(path, "/api/") ||
		strings.HasPrefix(path, "/api/auth/") ||
		strings.HasPrefix(path, "/api/school-audit/image/")
	s.router.Handle(method, path, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		setRoute(r.Context(), path)
		if s.enforce && !public && !s.authorized(r) {
			writeError(w, r, clientError(http.StatusUnauthorized, "error.unauthorized"))
			return
		}
		h(w, r, ps)
	})
}

func (s *Server) authorized(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return false
	}
	claims, err := s.tokens.Parse(strings.TrimSpace(token))
	return err == nil && claims.Type != auth.TypeRefresh
}

// ListenAndServe serves on the configured address until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	idle := make(chan struct{})
	go func() {
		defer close(idle)
		<-ctx.Done()
		grace := s.cfg.ShutdownTimeout
		if grace <= 0 {
			grace = 30 * time.Second
		}
		sctx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		logging.Infof("shutting down http server")
		if err := srv.Shutdown(sctx); err != nil {
			logging.Warnf("http shutdown: %v", err)
		}
	}()

	logging.Infof("listening on %s", ln.Addr())
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-idle
	return nil
}
