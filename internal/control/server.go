package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/payverify/internal/api"
	"github.com/vietddude/payverify/internal/core/config"
	redisclient "github.com/vietddude/payverify/internal/infra/redis"
	"github.com/vietddude/payverify/internal/infra/storage"
	"github.com/vietddude/payverify/internal/infra/storage/memory"
	"github.com/vietddude/payverify/internal/infra/storage/postgres"
)

// Server runs the remote consumption/history API over the configured backend.
type Server struct {
	store   storage.ServerStore
	api     *api.Server
	backend string
	errCh   chan error
	log     *slog.Logger
}

// NewServer picks the first configured backend: PostgreSQL, then Redis,
// then in-memory.
func NewServer(ctx context.Context, cfg *config.AppConfig) (*Server, error) {
	if err := cfg.ValidateServer(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log := slog.With("component", "server")

	store, backend, err := openServerStore(ctx, cfg.Server)
	if err != nil {
		return nil, err
	}
	log.Info("Storage initialized", "backend", backend)

	return &Server{
		store:   store,
		api:     api.NewServer(store, cfg.Server.Tokens, cfg.Server.Port),
		backend: backend,
		errCh:   make(chan error, 1),
		log:     log,
	}, nil
}

func openServerStore(ctx context.Context, cfg config.ServerConfig) (storage.ServerStore, string, error) {
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, "", fmt.Errorf("connect postgres: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, "", fmt.Errorf("migrate postgres: %w", err)
		}
		return db, "postgres", nil
	}

	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, "", fmt.Errorf("connect redis: %w", err)
		}
		return client, "redis", nil
	}

	return memory.NewServerStorage(), "memory", nil
}

// Backend names the storage in use.
func (s *Server) Backend() string { return s.backend }

// Start serves in the background. Errors arrive on Err.
func (s *Server) Start() {
	go func() {
		if err := s.api.Start(); err != nil {
			s.errCh <- err
		}
	}()
}

// Err reports a failure of the HTTP listener.
func (s *Server) Err() <-chan error { return s.errCh }

// Stop drains requests and closes the backend.
func (s *Server) Stop(ctx context.Context) error {
	err := s.api.Stop(ctx)
	if cerr := s.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	s.log.Info("Server stopped")
	return err
}
