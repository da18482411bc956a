package core

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cinesense/journey-engine/internal/cache"
	"github.com/cinesense/journey-engine/internal/metrics"
	"github.com/cinesense/journey-engine/internal/store"
)

// Graph is a validated journey graph. It is shared between requests through
// the graph cache and must not be mutated after construction.
type Graph struct {
	ID          int64
	SentimentID int64
	Steps       map[string]*store.Step
	// Keys lists step keys in (order, stepKey) order.
	Keys []string

	byID    map[int64]*store.Step
	dropped map[int64][]store.RowError
}

// Step returns the step with the given key.
func (g *Graph) Step(key string) (*store.Step, bool) {
	st, ok := g.Steps[key]
	return st, ok
}

// StepByID returns the step with the given storage id.
func (g *Graph) StepByID(id int64) (*store.Step, bool) {
	st, ok := g.byID[id]
	return st, ok
}

// DroppedSuggestions returns the suggestions of a leaf that were left out
// because their movie could not be read.
func (g *Graph) DroppedSuggestions(optionID int64) []store.RowError {
	return g.dropped[optionID]
}

// NewGraph validates a stored graph and indexes it.
func NewGraph(jg *store.JourneyGraph) (*Graph, error) {
	if err := ValidateGraph(jg); err != nil {
		return nil, err
	}

	g := &Graph{
		ID:          jg.ID,
		SentimentID: jg.SentimentID,
		Steps:       make(map[string]*store.Step, len(jg.Steps)),
		byID:        make(map[int64]*store.Step, len(jg.Steps)),
		dropped:     make(map[int64][]store.RowError, len(jg.Dropped)),
	}
	for _, re := range jg.Dropped {
		g.dropped[re.OptionID] = append(g.dropped[re.OptionID], re)
	}
	steps := slices.Clone(jg.Steps)
	for i := range steps {
		st := &steps[i]
		g.Steps[st.StepKey] = st
		g.byID[st.ID] = st
		g.Keys = append(g.Keys, st.StepKey)
	}
	slices.SortStableFunc(g.Keys, func(a, b string) int {
		return compareSteps(g.Steps[a], g.Steps[b])
	})
	return g, nil
}

func compareSteps(a, b *store.Step) int {
	if c := cmp.Compare(a.Order, b.Order); c != 0 {
		return c
	}
	return cmp.Compare(a.StepKey, b.StepKey)
}

// ValidateGraph collects every structural problem of a stored graph into one
// *GraphIntegrityError.
func ValidateGraph(jg *store.JourneyGraph) error {
	var problems []string
	if len(jg.Steps) == 0 {
		problems = append(problems, "graph has no steps")
	}

	keys := make(map[string]struct{}, len(jg.Steps))
	for _, st := range jg.Steps {
		if _, dup := keys[st.StepKey]; dup {
			problems = append(problems, fmt.Sprintf("duplicate step %q", st.StepKey))
		}
		keys[st.StepKey] = struct{}{}
	}

	for _, st := range jg.Steps {
		if len(st.Options) == 0 {
			problems = append(problems, fmt.Sprintf("step %q has no options", st.StepKey))
		}
		for _, opt := range st.Options {
			if opt.IsEndState {
				continue
			}
			switch {
			case opt.NextStepKey == nil || *opt.NextStepKey == "":
				problems = append(problems, fmt.Sprintf("option %d of step %q has no next step", opt.ID, st.StepKey))
			default:
				if _, ok := keys[*opt.NextStepKey]; !ok {
					problems = append(problems, fmt.Sprintf("option %d of step %q points to unknown step %q", opt.ID, st.StepKey, *opt.NextStepKey))
				}
			}
			if len(opt.Suggestions) > 0 {
				problems = append(problems, fmt.Sprintf("option %d of step %q has suggestions but is not a leaf", opt.ID, st.StepKey))
			}
		}
	}

	if len(problems) > 0 {
		return &GraphIntegrityError{SentimentID: jg.SentimentID, Problems: problems}
	}
	return nil
}

// ValidateTagNames rejects distinct tags sharing a name within one sentiment.
func ValidateTagNames(sentimentID int64, tags []store.EmotionalTag) error {
	type key struct {
		sentiment int64
		name      string
	}
	first := make(map[key]int64, len(tags))
	var problems []string
	for _, t := range tags {
		k := key{t.SentimentID, t.Name}
		if id, ok := first[k]; ok && id != t.ID {
			problems = append(problems, fmt.Sprintf("tag name %q is used by tags %d and %d of sentiment %d", t.Name, id, t.ID, t.SentimentID))
			continue
		}
		first[k] = t.ID
	}
	if len(problems) > 0 {
		return &GraphIntegrityError{SentimentID: sentimentID, Problems: problems}
	}
	return nil
}

// GraphLoader loads, validates and caches journey graphs by sentiment id.
type GraphLoader struct {
	store  GraphReader
	cache  *cache.Cache[int64, *Graph]
	logger zerolog.Logger

	// generation is bumped by Purge. A load that straddles a purge does not
	// cache its result.
	mu         sync.Mutex
	generation uint64
}

// NewGraphLoader creates a loader. A ttl of zero disables caching.
func NewGraphLoader(st GraphReader, ttl time.Duration, logger zerolog.Logger) *GraphLoader {
	return &GraphLoader{
		store:  st,
		cache:  cache.New[int64, *Graph](ttl),
		logger: logger.With().Str("component", "graph_loader").Logger(),
	}
}

// LoadGraph returns the validated graph of a sentiment. A sentiment without a
// graph yields ErrNotFound.
func (l *GraphLoader) LoadGraph(ctx context.Context, sentimentID int64) (*Graph, error) {
	if l.cache.Enabled() {
		if g, ok := l.cache.Get(sentimentID); ok {
			metrics.RecordGraphCache(true)
			return g, nil
		}
		metrics.RecordGraphCache(false)
	}

	l.mu.Lock()
	gen := l.generation
	l.mu.Unlock()

	jg, err := l.store.GetGraphBySentiment(ctx, sentimentID)
	if err != nil {
		return nil, err
	}
	if jg == nil {
		return nil, fmt.Errorf("journey graph of sentiment %d: %w", sentimentID, ErrNotFound)
	}

	tags, err := l.store.ListTagsBySentiment(ctx, sentimentID)
	if err != nil {
		return nil, err
	}
	if err := ValidateTagNames(sentimentID, tags); err != nil {
		l.logger.Error().Err(err).Int64("sentiment_id", sentimentID).Msg("Rejected emotional tags")
		return nil, err
	}

	g, err := NewGraph(jg)
	if err != nil {
		l.logger.Error().Err(err).Int64("sentiment_id", sentimentID).Msg("Rejected journey graph")
		return nil, err
	}
	l.mu.Lock()
	if l.generation == gen {
		l.cache.Set(sentimentID, g)
	}
	l.mu.Unlock()
	return g, nil
}

// Purge drops every cached graph, including any being loaded concurrently.
func (l *GraphLoader) Purge() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.generation++
	l.cache.Clear()
}

func (l *GraphLoader) Close() {
	l.cache.Close()
}
