package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/matheus3301/roombook/internal/api"
	"github.com/matheus3301/roombook/internal/metrics"
	"github.com/matheus3301/roombook/internal/status"
	"go.uber.org/zap"
)

// HTTPServer serves /healthz, /status and /metrics for local scrapers.
// It is inert when http.listen is empty.
type HTTPServer struct {
	server   *http.Server
	listener net.Listener
	logger   *zap.Logger
}

// NewHTTPServer binds the configured listen address.
func NewHTTPServer(p Params, logger *zap.Logger, machine *status.Machine, syncSvc *api.SyncService, m *metrics.Metrics) (*HTTPServer, error) {
	s := &HTTPServer{logger: logger}
	addr := p.Config.HTTP.Listen
	if addr == "" {
		return s, nil
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen http %s: %w", addr, err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           NewRouter(machine, syncSvc, m),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// NewRouter builds the HTTP routes.
func NewRouter(machine *status.Machine, syncSvc *api.SyncService, m *metrics.Metrics) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if machine.Current() == status.Error {
			http.Error(w, string(status.Error), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
		resp, err := syncSvc.GetStatus(req.Context(), &api.GetStatusRequest{})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}).Methods(http.MethodGet)

	r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	return r
}

// Addr returns the bound address, or "" when disabled.
func (s *HTTPServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start serves in the background.
func (s *HTTPServer) Start() {
	if s.server == nil {
		return
	}
	s.logger.Info("http server starting", zap.String("addr", s.Addr()))
	go func() {
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()
}

// Stop shuts the server down, waiting for in-flight requests until ctx expires.
func (s *HTTPServer) Stop(ctx context.Context) {
	if s.server == nil {
		return
	}
	s.logger.Info("http server stopping")
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}
}
