package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cinesense/journey-engine/internal/metrics"
	"github.com/cinesense/journey-engine/internal/scoring"
	"github.com/cinesense/journey-engine/internal/store"
)

type Outcome string

const (
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// RecalcRequest selects the suggestions to rescore. Zero fields do not
// filter; MinScore keeps rows whose cached score is nil or below it.
type RecalcRequest struct {
	MovieID  string   `json:"movieId,omitempty"`
	LeafID   int64    `json:"leafId,omitempty"`
	MinScore *float64 `json:"minScore,omitempty"`
	DryRun   bool     `json:"dryRun"`
}

type RecalcItem struct {
	SuggestionID  int64    `json:"suggestionId"`
	LeafID        int64    `json:"leafId"`
	MovieID       string   `json:"movieId"`
	Outcome       Outcome  `json:"outcome"`
	OldScore      *float64 `json:"oldScore"`
	NewScore      float64  `json:"newScore"`
	CoverageRatio float64  `json:"coverageRatio"`
	Intensity     float64  `json:"intensity"`
	MatchCount    int      `json:"matchCount"`
	Expected      int      `json:"expected"`
	Error         string   `json:"error,omitempty"`
}

// BatchReport summarises one recalculation run. Averages cover the rows that
// were scored, i.e. updated and unchanged ones.
type BatchReport struct {
	DryRun       bool          `json:"dryRun"`
	Total        int           `json:"total"`
	Updated      int           `json:"updated"`
	Unchanged    int           `json:"unchanged"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	AvgOldScore  float64       `json:"avgOldScore"`
	AvgNewScore  float64       `json:"avgNewScore"`
	AvgCoverage  float64       `json:"avgCoverage"`
	AvgIntensity float64       `json:"avgIntensity"`
	Errors       []string      `json:"errors"`
	Items        []RecalcItem  `json:"items"`
	StartedAt    time.Time     `json:"startedAt"`
	Duration     time.Duration `json:"duration"`
}

// Recalculator rescores cached leaf suggestion scores in bounded parallel
// batches.
type Recalculator struct {
	store   RecalcStore
	graphs  *GraphLoader
	workers int
	logger  zerolog.Logger
}

// NewRecalculator creates a recalculator. graphs may be nil; when set, its
// cache is purged after a run that wrote scores.
func NewRecalculator(st RecalcStore, graphs *GraphLoader, workers int, logger zerolog.Logger) *Recalculator {
	if workers < 1 {
		workers = 1
	}
	return &Recalculator{
		store:   st,
		graphs:  graphs,
		workers: workers,
		logger:  logger.With().Str("component", "recalculator").Logger(),
	}
}

// Recalculate rescores the selected suggestions. A cancelled context stops
// scheduling further rows; rows already written stay written and the partial
// report is returned with the context error.
func (r *Recalculator) Recalculate(ctx context.Context, req RecalcRequest) (*BatchReport, error) {
	start := time.Now()

	if req.MovieID != "" {
		m, err := r.store.GetMovie(ctx, req.MovieID)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, fmt.Errorf("movie %s: %w", req.MovieID, ErrNotFound)
		}
	}
	if req.LeafID != 0 {
		opt, err := r.store.GetOption(ctx, req.LeafID)
		if err != nil {
			return nil, err
		}
		if opt == nil {
			return nil, fmt.Errorf("option %d: %w", req.LeafID, ErrNotFound)
		}
		if !opt.IsEndState {
			return nil, fmt.Errorf("option %d is not a leaf: %w", req.LeafID, ErrInvalidArgument)
		}
	}

	rows, err := r.store.ListSuggestionsForRecalc(ctx, store.RecalcFilter{
		MovieID:    req.MovieID,
		OptionID:   req.LeafID,
		BelowScore: req.MinScore,
	})
	if err != nil {
		return nil, err
	}

	items := make([]RecalcItem, len(rows))
	done := make([]bool, len(rows))
	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, row := range rows {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			items[i] = r.process(ctx, row, req.DryRun)
			done[i] = true
			return nil
		})
	}
	_ = g.Wait()

	report := &BatchReport{DryRun: req.DryRun, StartedAt: start.UTC(), Errors: []string{}, Items: []RecalcItem{}}
	for i := range items {
		if done[i] {
			report.add(items[i])
		}
	}
	report.finish()
	report.Duration = time.Since(start)

	metrics.RecordRecalc(report.Updated, report.Unchanged, report.Skipped, report.Failed, report.Duration)
	if !req.DryRun && report.Updated > 0 && r.graphs != nil {
		r.graphs.Purge()
	}

	r.logger.Info().
		Bool("dry_run", req.DryRun).
		Str("movie_id", req.MovieID).
		Int64("leaf_id", req.LeafID).
		Int("total", report.Total).
		Int("updated", report.Updated).
		Int("unchanged", report.Unchanged).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Dur("duration", report.Duration).
		Msg("Relevance recalculation finished")

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("recalculation interrupted after %d of %d rows: %w", report.Total, len(rows), err)
	}
	return report, nil
}

func (r *Recalculator) process(ctx context.Context, row store.MovieSuggestion, dryRun bool) RecalcItem {
	item := RecalcItem{
		SuggestionID: row.ID,
		LeafID:       row.OptionID,
		MovieID:      row.MovieID,
		OldScore:     row.RelevanceScore,
	}
	fail := func(err error) RecalcItem {
		item.Outcome = OutcomeFailed
		item.Error = err.Error()
		r.logger.Warn().Err(err).Int64("suggestion_id", row.ID).Msg("Failed to recalculate suggestion")
		return item
	}

	expected, err := expectedTagNames(ctx, r.store, row.OptionID)
	if err != nil {
		return fail(err)
	}
	if len(expected) == 0 {
		item.Outcome = OutcomeSkipped
		return item
	}

	res, err := scoreLeafSuggestion(ctx, r.store, expected, row.MovieID)
	if err != nil {
		return fail(err)
	}
	item.NewScore = res.Score
	item.CoverageRatio = res.CoverageRatio
	item.Intensity = res.Intensity
	item.MatchCount = res.MatchCount
	item.Expected = res.Expected

	if row.RelevanceScore != nil && scoring.Round3(*row.RelevanceScore) == res.Score {
		item.Outcome = OutcomeUnchanged
		return item
	}
	if !dryRun {
		if err := r.store.UpdateSuggestionScore(ctx, row.ID, res.Score); err != nil {
			return fail(err)
		}
	}
	item.Outcome = OutcomeUpdated
	return item
}

func (b *BatchReport) add(item RecalcItem) {
	b.Total++
	b.Items = append(b.Items, item)
	switch item.Outcome {
	case OutcomeUpdated:
		b.Updated++
	case OutcomeUnchanged:
		b.Unchanged++
	case OutcomeSkipped:
		b.Skipped++
	case OutcomeFailed:
		b.Failed++
		b.Errors = append(b.Errors, fmt.Sprintf("suggestion %d: %s", item.SuggestionID, item.Error))
	}
}

func (b *BatchReport) finish() {
	var scored, withOld int
	var oldSum, newSum, covSum, intSum float64
	for _, it := range b.Items {
		if it.Outcome != OutcomeUpdated && it.Outcome != OutcomeUnchanged {
			continue
		}
		scored++
		newSum += it.NewScore
		covSum += it.CoverageRatio
		intSum += it.Intensity
		if it.OldScore != nil {
			withOld++
			oldSum += *it.OldScore
		}
	}
	if scored > 0 {
		n := float64(scored)
		b.AvgNewScore = scoring.Round3(newSum / n)
		b.AvgCoverage = scoring.Round3(covSum / n)
		b.AvgIntensity = scoring.Round3(intSum / n)
	}
	if withOld > 0 {
		b.AvgOldScore = scoring.Round3(oldSum / float64(withOld))
	}
}
