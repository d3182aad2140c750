// Package api serves the remote consumption and history store.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/payverify/internal/infra/storage"
)

// Server is the HTTP front of a storage.ServerStore.
type Server struct {
	server *http.Server
	log    *slog.Logger
}

// NewServer creates a server on port. tokens maps bearer tokens to account ids.
func NewServer(store storage.ServerStore, tokens map[string]string, port int) *Server {
	handler := NewHandler(store)
	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           SetupRouter(handler, tokens),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: slog.With("component", "api"),
	}
}

// Start blocks serving requests until Stop.
func (s *Server) Start() error {
	s.log.Info("API server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop drains in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
