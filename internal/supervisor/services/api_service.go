// Package services adapts the process components to suture.Service.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// APIServer is the part of *http.Server that APIService drives.
type APIServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
	Close() error
}

// APIService serves the journey API until its context ends. In-flight
// requests then get the drain period to finish before remaining connections
// are closed.
type APIService struct {
	srv    APIServer
	drain  time.Duration
	logger zerolog.Logger
}

func NewAPIService(srv APIServer, drain time.Duration, logger zerolog.Logger) *APIService {
	if drain <= 0 {
		drain = 10 * time.Second
	}
	return &APIService{
		srv:    srv,
		drain:  drain,
		logger: logger.With().Str("service", "api").Logger(),
	}
}

func (s *APIService) Serve(ctx context.Context) error {
	served := make(chan error, 1)
	go func() { served <- s.srv.ListenAndServe() }()

	select {
	case err := <-served:
		return fmt.Errorf("api server stopped: %w", err)
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.drain)
	defer cancel()
	if err := s.srv.Shutdown(drainCtx); err != nil {
		s.logger.Warn().Err(err).Dur("drain", s.drain).Msg("Drain incomplete, closing remaining connections")
		if err := s.srv.Close(); err != nil {
			return fmt.Errorf("failed to close api server: %w", err)
		}
	}
	if err := <-served; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server stopped: %w", err)
	}
	s.logger.Info().Msg("API server drained")
	return ctx.Err()
}

func (s *APIService) String() string {
	return "api-server"
}
