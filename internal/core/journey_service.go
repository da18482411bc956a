package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cinesense/journey-engine/internal/logging"
	"github.com/cinesense/journey-engine/internal/metrics"
	"github.com/cinesense/journey-engine/internal/scoring"
	"github.com/cinesense/journey-engine/internal/store"
)

// Journey is the effective step set served for a sentiment.
type Journey struct {
	SentimentID  int64           `json:"sentimentId"`
	IntentionID  *int64          `json:"intentionId,omitempty"`
	Personalized bool            `json:"personalized"`
	Steps        []EffectiveStep `json:"steps"`
	Stats        ResolveStats    `json:"-"`
}

type JourneyService struct {
	store  JourneyStore
	graphs *GraphLoader
	logger zerolog.Logger
}

func NewJourneyService(st JourneyStore, graphs *GraphLoader, logger zerolog.Logger) *JourneyService {
	return &JourneyService{
		store:  st,
		graphs: graphs,
		logger: logger.With().Str("component", "journey_service").Logger(),
	}
}

// GetPersonalizedJourney resolves a sentiment's graph under the step
// overrides of one of its intentions.
func (s *JourneyService) GetPersonalizedJourney(ctx context.Context, sentimentID, intentionID int64) (*Journey, error) {
	j, err := s.personalized(ctx, sentimentID, intentionID)
	recordJourney("personalized", j, err)
	return j, err
}

func (s *JourneyService) personalized(ctx context.Context, sentimentID, intentionID int64) (*Journey, error) {
	intention, err := s.store.GetIntention(ctx, intentionID)
	if err != nil {
		return nil, err
	}
	if intention == nil {
		return nil, fmt.Errorf("intention %d: %w", intentionID, ErrNotFound)
	}
	if intention.SentimentID != sentimentID {
		return nil, fmt.Errorf("intention %d belongs to sentiment %d, not %d: %w",
			intentionID, intention.SentimentID, sentimentID, ErrConflict)
	}

	g, err := s.graphs.LoadGraph(ctx, sentimentID)
	if err != nil {
		return nil, err
	}
	overrides, err := s.store.ListStepOverrides(ctx, intentionID)
	if err != nil {
		return nil, err
	}
	steps, stats, err := ResolveOverlay(g, overrides)
	if err != nil {
		return nil, err
	}
	s.rankLeaves(ctx, g, steps)

	log := logging.Attach(ctx, s.logger)
	log.Debug().
		Int64("sentiment_id", sentimentID).
		Int64("intention_id", intentionID).
		Int("steps", len(steps)).
		Int("injected", stats.Injected).
		Msg("Resolved personalized journey")

	return &Journey{
		SentimentID:  sentimentID,
		IntentionID:  &intentionID,
		Personalized: len(overrides) > 0,
		Steps:        steps,
		Stats:        stats,
	}, nil
}

// GetDefaultJourney returns every step of a sentiment's graph without any
// intention applied.
func (s *JourneyService) GetDefaultJourney(ctx context.Context, sentimentID int64) (*Journey, error) {
	j, err := s.defaultJourney(ctx, sentimentID)
	recordJourney("default", j, err)
	return j, err
}

func (s *JourneyService) defaultJourney(ctx context.Context, sentimentID int64) (*Journey, error) {
	g, err := s.graphs.LoadGraph(ctx, sentimentID)
	if err != nil {
		return nil, err
	}
	steps, stats, err := ResolveOverlay(g, nil)
	if err != nil {
		return nil, err
	}
	s.rankLeaves(ctx, g, steps)
	return &Journey{SentimentID: sentimentID, Steps: steps, Stats: stats}, nil
}

func recordJourney(mode string, j *Journey, err error) {
	var integrity *GraphIntegrityError
	switch {
	case err == nil:
		metrics.RecordJourney(mode, "ok", j.Stats.Injected)
	case errors.Is(err, ErrNotFound):
		metrics.RecordJourney(mode, "not_found", 0)
	case errors.Is(err, ErrConflict):
		metrics.RecordJourney(mode, "conflict", 0)
	case errors.As(err, &integrity):
		metrics.RecordJourney(mode, "integrity_error", 0)
	default:
		metrics.RecordJourney(mode, "error", 0)
	}
}

// rankLeaves orders the suggestions of every leaf option by relevance score,
// scoring uncomputed ones in memory. Options are replaced, never mutated, as
// they are shared with the graph cache.
func (s *JourneyService) rankLeaves(ctx context.Context, g *Graph, steps []EffectiveStep) {
	log := logging.Attach(ctx, s.logger)
	for i := range steps {
		for j, opt := range steps[i].Options {
			if !opt.IsEndState {
				continue
			}
			for _, re := range g.DroppedSuggestions(opt.ID) {
				log.Warn().Err(re.Err).Int64("option_id", opt.ID).Str("movie_id", re.MovieID).Msg("Dropped suggestion: movie row unreadable")
				metrics.RecordScoringDrop("leaf")
			}
			if len(opt.Suggestions) == 0 {
				continue
			}
			steps[i].Options[j].Suggestions = s.rankSuggestions(ctx, opt.ID, opt.Suggestions)
		}
	}
}

func (s *JourneyService) rankSuggestions(ctx context.Context, optionID int64, in []store.MovieSuggestion) []store.MovieSuggestion {
	log := logging.Attach(ctx, s.logger)
	out := make([]store.MovieSuggestion, 0, len(in))

	var expected []string
	var expectedErr error
	loaded := false
	for _, ms := range in {
		if ms.RelevanceScore != nil {
			out = append(out, ms)
			continue
		}
		if !loaded {
			expected, expectedErr = expectedTagNames(ctx, s.store, optionID)
			loaded = true
		}
		if expectedErr != nil {
			log.Warn().Err(expectedErr).Int64("option_id", optionID).Str("movie_id", ms.MovieID).Msg("Dropped suggestion: leaf tags unavailable")
			metrics.RecordScoringDrop("leaf")
			continue
		}
		res, err := scoreLeafSuggestion(ctx, s.store, expected, ms.MovieID)
		if err != nil {
			log.Warn().Err(err).Int64("option_id", optionID).Str("movie_id", ms.MovieID).Msg("Dropped suggestion: scoring failed")
			metrics.RecordScoringDrop("leaf")
			continue
		}
		score := res.Score
		ms.RelevanceScore = &score
		out = append(out, ms)
	}

	scoring.RankStable(out, func(ms store.MovieSuggestion) float64 { return *ms.RelevanceScore })
	return out
}
