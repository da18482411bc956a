package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cinesense/journey-engine/internal/metrics"
	"github.com/cinesense/journey-engine/internal/store"
)

func newFixtureJourneyService(t *testing.T) (*JourneyService, *GraphLoader) {
	t.Helper()
	st := newFixtureStore(t)
	graphs := NewGraphLoader(st, time.Minute, nop())
	t.Cleanup(graphs.Close)
	return NewJourneyService(st, graphs, nop()), graphs
}

func TestGetPersonalizedJourney(t *testing.T) {
	svc, _ := newFixtureJourneyService(t)

	j, err := svc.GetPersonalizedJourney(context.Background(), 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got := stepKeys(j.Steps); got != "2A,3X,4Y" {
		t.Errorf("steps = %s", got)
	}
	if !j.Personalized || j.Stats.Injected != 2 {
		t.Errorf("unexpected journey %+v", j)
	}
	first := j.Steps[0]
	if first.Question != "O que você quer elaborar?" || !first.IsRequired || first.Priority != 1 {
		t.Errorf("override not applied: %+v", first)
	}
}

func TestGetPersonalizedJourneyWithoutOverrides(t *testing.T) {
	svc, _ := newFixtureJourneyService(t)

	j, err := svc.GetPersonalizedJourney(context.Background(), 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got := stepKeys(j.Steps); got != "1,2A,2B,3X,4Y" {
		t.Errorf("steps = %s", got)
	}
	if j.Personalized {
		t.Error("intention without overrides should yield the default journey")
	}
	for _, s := range j.Steps {
		if s.Priority != DefaultPriority {
			t.Errorf("step %s priority = %d", s.StepKey, s.Priority)
		}
	}
}

func TestGetPersonalizedJourneyErrors(t *testing.T) {
	svc, _ := newFixtureJourneyService(t)
	ctx := context.Background()

	if _, err := svc.GetPersonalizedJourney(ctx, 1, 4); !errors.Is(err, ErrConflict) {
		t.Errorf("intention of another sentiment: expected ErrConflict, got %v", err)
	}
	if _, err := svc.GetPersonalizedJourney(ctx, 1, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown intention: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.GetPersonalizedJourney(ctx, 3, 5); !errors.Is(err, ErrNotFound) {
		t.Errorf("sentiment without graph: expected ErrNotFound, got %v", err)
	}
	var integrity *GraphIntegrityError
	if _, err := svc.GetDefaultJourney(ctx, 4); !errors.As(err, &integrity) {
		t.Errorf("broken graph: expected GraphIntegrityError, got %v", err)
	}
}

func findOption(t *testing.T, steps []EffectiveStep, id int64) store.Option {
	t.Helper()
	for _, s := range steps {
		for _, o := range s.Options {
			if o.ID == id {
				return o
			}
		}
	}
	t.Fatalf("option %d not found", id)
	return store.Option{}
}

func TestDefaultJourneyRanksLeafSuggestions(t *testing.T) {
	svc, graphs := newFixtureJourneyService(t)
	ctx := context.Background()

	j, err := svc.GetDefaultJourney(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}

	// m4 carries a cached 8.0, m2 is scored on the fly at 7.655.
	leaf := findOption(t, j.Steps, 1020)
	if len(leaf.Suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(leaf.Suggestions))
	}
	if leaf.Suggestions[0].MovieID != "m4" || leaf.Suggestions[1].MovieID != "m2" {
		t.Errorf("order = %s, %s", leaf.Suggestions[0].MovieID, leaf.Suggestions[1].MovieID)
	}
	if s := leaf.Suggestions[1].RelevanceScore; s == nil || *s != 7.655 {
		t.Errorf("lazy score = %v", s)
	}

	// 1031: m1 lazily 6.537 ranks above m2's cached 2.0.
	leaf = findOption(t, j.Steps, 1031)
	if leaf.Suggestions[0].MovieID != "m1" || *leaf.Suggestions[0].RelevanceScore != 6.537 {
		t.Errorf("unexpected head %+v", leaf.Suggestions[0])
	}

	// The cached graph must keep its stored values.
	g, err := graphs.LoadGraph(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	st, _ := g.Step("2B")
	if st.Options[0].Suggestions[0].RelevanceScore != nil {
		t.Error("lazy scoring leaked into the graph")
	}
}

// failingLeafStore fails the movie tag lookup for one movie.
type failingLeafStore struct {
	*store.SQLiteStore
	failMovie string
}

func (f *failingLeafStore) ListMovieTags(ctx context.Context, movieID string) ([]store.MovieTag, error) {
	if movieID == f.failMovie {
		return nil, errors.New("tags unavailable")
	}
	return f.SQLiteStore.ListMovieTags(ctx, movieID)
}

func TestLazyScoringFailureDropsOnlyThatSuggestion(t *testing.T) {
	st := newFixtureStore(t)
	svc := NewJourneyService(&failingLeafStore{SQLiteStore: st, failMovie: "m2"}, NewGraphLoader(st, 0, nop()), nop())

	j, err := svc.GetDefaultJourney(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	leaf := findOption(t, j.Steps, 1020)
	if len(leaf.Suggestions) != 1 || leaf.Suggestions[0].MovieID != "m4" {
		t.Errorf("expected only m4 to remain, got %+v", leaf.Suggestions)
	}
	// m2's cached score on 1031 needs no lookup and survives.
	leaf = findOption(t, j.Steps, 1031)
	if len(leaf.Suggestions) != 2 {
		t.Errorf("expected both suggestions on 1031, got %d", len(leaf.Suggestions))
	}
}

func TestJourneySkipsUnreadableMovie(t *testing.T) {
	before := testutil.ToFloat64(metrics.ScoringDrops.WithLabelValues("leaf"))
	st := newFixtureStoreWithUnreadableMovie(t, "m1")
	svc := NewJourneyService(st, NewGraphLoader(st, 0, nop()), nop())

	j, err := svc.GetDefaultJourney(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetDefaultJourney: %v", err)
	}
	leaf := findOption(t, j.Steps, 1031)
	if len(leaf.Suggestions) != 1 || leaf.Suggestions[0].MovieID != "m2" {
		t.Errorf("expected only m2 on 1031, got %+v", leaf.Suggestions)
	}
	if leaf = findOption(t, j.Steps, 1040); len(leaf.Suggestions) != 0 {
		t.Errorf("expected no suggestions on 1040, got %+v", leaf.Suggestions)
	}
	if leaf = findOption(t, j.Steps, 1020); len(leaf.Suggestions) != 2 {
		t.Errorf("expected 1020 untouched, got %d suggestions", len(leaf.Suggestions))
	}
	if got := testutil.ToFloat64(metrics.ScoringDrops.WithLabelValues("leaf")) - before; got != 2 {
		t.Errorf("scoring drops = %v, want 2", got)
	}

	pj, err := svc.GetPersonalizedJourney(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("GetPersonalizedJourney: %v", err)
	}
	if leaf = findOption(t, pj.Steps, 1031); len(leaf.Suggestions) != 1 {
		t.Errorf("expected one suggestion on 1031, got %d", len(leaf.Suggestions))
	}
}
