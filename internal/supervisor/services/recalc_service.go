package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cinesense/journey-engine/internal/core"
)

type Recalculator interface {
	Recalculate(ctx context.Context, req core.RecalcRequest) (*core.BatchReport, error)
}

type RecalcServiceConfig struct {
	OnStartup bool
	Interval  time.Duration
	// MinScore limits scheduled runs to rows scored below it; nil rescores
	// everything.
	MinScore *float64
	// RunTimeout bounds a single run.
	RunTimeout time.Duration
}

// RecalcService rescores cached leaf relevance on a fixed interval.
type RecalcService struct {
	recalc Recalculator
	cfg    RecalcServiceConfig
	logger zerolog.Logger
}

func NewRecalcService(recalc Recalculator, cfg RecalcServiceConfig, logger zerolog.Logger) *RecalcService {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 30 * time.Minute
	}
	return &RecalcService{
		recalc: recalc,
		cfg:    cfg,
		logger: logger.With().Str("service", "recalc").Logger(),
	}
}

func (s *RecalcService) Serve(ctx context.Context) error {
	s.logger.Info().
		Bool("on_startup", s.cfg.OnStartup).
		Dur("interval", s.cfg.Interval).
		Msg("Relevance recalculation service starting")

	if s.cfg.OnStartup {
		s.run(ctx)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Relevance recalculation service shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

// run failures are logged and retried on the next tick.
func (s *RecalcService) run(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	report, err := s.recalc.Recalculate(runCtx, core.RecalcRequest{MinScore: s.cfg.MinScore})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Scheduled recalculation failed")
		return
	}
	if report.Failed > 0 {
		s.logger.Warn().Int("failed", report.Failed).Strs("errors", report.Errors).Msg("Scheduled recalculation finished with failures")
	}
}

func (s *RecalcService) String() string {
	return "recalc-service"
}
