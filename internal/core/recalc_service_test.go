package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cinesense/journey-engine/internal/store"
)

func TestRecalculateWholeCatalog(t *testing.T) {
	st := newFixtureStore(t)
	r := NewRecalculator(st, nil, 4, nop())
	ctx := context.Background()

	report, err := r.Recalculate(ctx, RecalcRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if report.Total != 8 || report.Updated != 6 || report.Unchanged != 1 || report.Skipped != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}

	want := map[int64]float64{1: 9.038, 2: 7.655, 3: 2.571, 5: 6.537, 6: 7.571, 7: 9.038, 8: 10}
	rows, err := st.ListSuggestionsForRecalc(ctx, store.RecalcFilter{})
	if err != nil {
		t.Fatal(err)
	}
	for _, row := range rows {
		w, ok := want[row.ID]
		if !ok {
			if row.ID == 4 && (row.RelevanceScore == nil || *row.RelevanceScore != 4.0) {
				t.Errorf("skipped row 4 was modified: %v", row.RelevanceScore)
			}
			continue
		}
		if row.RelevanceScore == nil || *row.RelevanceScore != w {
			t.Errorf("suggestion %d score = %v, want %v", row.ID, row.RelevanceScore, w)
		}
	}

	for _, it := range report.Items {
		if it.SuggestionID == 5 && (it.MatchCount != 1 || it.Expected != 2 || it.CoverageRatio != 0.5) {
			t.Errorf("unexpected item detail %+v", it)
		}
	}

	// A second pass finds nothing to change.
	again, err := r.Recalculate(ctx, RecalcRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if again.Updated != 0 || again.Unchanged != 7 || again.Skipped != 1 {
		t.Errorf("second run not idempotent: %+v", again)
	}
}

func TestRecalculateFilters(t *testing.T) {
	tests := []struct {
		name                        string
		req                         RecalcRequest
		updated, unchanged, skipped int
	}{
		{"min score", RecalcRequest{MinScore: floatPtr(5)}, 5, 0, 1},
		{"movie", RecalcRequest{MovieID: "m1"}, 1, 1, 0},
		{"leaf", RecalcRequest{LeafID: 1020}, 2, 0, 0},
		{"movie and leaf", RecalcRequest{MovieID: "m2", LeafID: 1031}, 1, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecalculator(newFixtureStore(t), nil, 2, nop())
			report, err := r.Recalculate(context.Background(), tt.req)
			if err != nil {
				t.Fatal(err)
			}
			if report.Updated != tt.updated || report.Unchanged != tt.unchanged || report.Skipped != tt.skipped {
				t.Errorf("report = %d/%d/%d, want %d/%d/%d", report.Updated, report.Unchanged, report.Skipped,
					tt.updated, tt.unchanged, tt.skipped)
			}
		})
	}
}

func TestRecalculateDryRun(t *testing.T) {
	st := newFixtureStore(t)
	r := NewRecalculator(st, nil, 2, nop())
	ctx := context.Background()

	report, err := r.Recalculate(ctx, RecalcRequest{LeafID: 1020, DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if report.Updated != 2 || !report.DryRun {
		t.Errorf("unexpected report %+v", report)
	}
	rows, _ := st.ListSuggestionsForRecalc(ctx, store.RecalcFilter{OptionID: 1020})
	if rows[0].RelevanceScore != nil || *rows[1].RelevanceScore != 8.0 {
		t.Error("dry run wrote scores")
	}
}

func TestRecalculateTargetErrors(t *testing.T) {
	r := NewRecalculator(newFixtureStore(t), nil, 2, nop())
	ctx := context.Background()

	if _, err := r.Recalculate(ctx, RecalcRequest{MovieID: "nope"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown movie: expected ErrNotFound, got %v", err)
	}
	if _, err := r.Recalculate(ctx, RecalcRequest{LeafID: 99999}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown leaf: expected ErrNotFound, got %v", err)
	}
	if _, err := r.Recalculate(ctx, RecalcRequest{LeafID: 1000}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("inner option: expected ErrInvalidArgument, got %v", err)
	}
}

// flakyRecalcStore fails score writes for one suggestion.
type flakyRecalcStore struct {
	*store.SQLiteStore
	failID int64
}

func (f *flakyRecalcStore) UpdateSuggestionScore(ctx context.Context, id int64, score float64) error {
	if id == f.failID {
		return errors.New("disk full")
	}
	return f.SQLiteStore.UpdateSuggestionScore(ctx, id, score)
}

func TestRecalculateContinuesAfterFailure(t *testing.T) {
	st := newFixtureStore(t)
	r := NewRecalculator(&flakyRecalcStore{SQLiteStore: st, failID: 2}, nil, 1, nop())

	report, err := r.Recalculate(context.Background(), RecalcRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if report.Failed != 1 || report.Updated != 5 || len(report.Errors) != 1 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestRecalculatePurgesGraphCache(t *testing.T) {
	st := newFixtureStore(t)
	reader := &countingGraphReader{graphs: map[int64]*store.JourneyGraph{
		1: {ID: 1, SentimentID: 1, Steps: []store.Step{{StepKey: "1", Options: []store.Option{leafOption(1)}}}},
	}}
	graphs := NewGraphLoader(reader, time.Minute, nop())
	defer graphs.Close()
	ctx := context.Background()

	if _, err := graphs.LoadGraph(ctx, 1); err != nil {
		t.Fatal(err)
	}
	r := NewRecalculator(st, graphs, 2, nop())
	if _, err := r.Recalculate(ctx, RecalcRequest{LeafID: 1020}); err != nil {
		t.Fatal(err)
	}
	if _, err := graphs.LoadGraph(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if reader.calls != 2 {
		t.Errorf("expected cache purge after writes, got %d reads", reader.calls)
	}
}

func TestRecalculateCancelled(t *testing.T) {
	r := NewRecalculator(newFixtureStore(t), nil, 2, nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Recalculate(ctx, RecalcRequest{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
