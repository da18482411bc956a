package core

import (
	"fmt"
	"slices"

	"github.com/cinesense/journey-engine/internal/store"
)

// DefaultPriority is the priority of steps that no override names.
const DefaultPriority = 999

// EffectiveStep is a graph step as presented for one intention.
type EffectiveStep struct {
	ID             int64          `json:"id"`
	StepKey        string         `json:"stepId"`
	Order          int            `json:"order"`
	Question       string         `json:"question"`
	Priority       int            `json:"priority"`
	ContextualHint *string        `json:"contextualHint"`
	IsRequired     bool           `json:"isRequired"`
	Personalized   bool           `json:"personalized"`
	Options        []store.Option `json:"options"`
}

// ResolveStats describes the completeness closure of one resolution.
type ResolveStats struct {
	Rounds   int
	Injected int
}

// ResolveOverlay computes the effective step set of a graph under a list of
// step overrides. Without overrides every step is returned in default form.
// With overrides, the overridden steps come first ordered by (priority,
// order), then every step reachable from them through a non-end option is
// injected with default settings until the set is closed.
func ResolveOverlay(g *Graph, overrides []store.StepOverride) ([]EffectiveStep, ResolveStats, error) {
	var stats ResolveStats
	if len(overrides) == 0 {
		out := make([]EffectiveStep, 0, len(g.Keys))
		for _, key := range g.Keys {
			out = append(out, defaultStep(g.Steps[key]))
		}
		return out, stats, nil
	}

	type bound struct {
		o  store.StepOverride
		st *store.Step
	}
	var problems []string
	bounds := make([]bound, 0, len(overrides))
	for _, o := range overrides {
		st, ok := g.StepByID(o.StepID)
		if !ok {
			problems = append(problems, fmt.Sprintf("override %d references step %d outside the graph", o.ID, o.StepID))
			continue
		}
		bounds = append(bounds, bound{o, st})
	}
	if len(problems) > 0 {
		return nil, stats, &GraphIntegrityError{SentimentID: g.SentimentID, Problems: problems}
	}
	slices.SortStableFunc(bounds, func(a, b bound) int {
		if a.o.Priority != b.o.Priority {
			return a.o.Priority - b.o.Priority
		}
		return a.st.Order - b.st.Order
	})

	included := make(map[string]struct{}, len(g.Keys))
	out := make([]EffectiveStep, 0, len(bounds))
	for _, b := range bounds {
		if _, dup := included[b.st.StepKey]; dup {
			continue
		}
		included[b.st.StepKey] = struct{}{}
		out = append(out, overriddenStep(b.st, b.o))
	}

	// Each round only needs the steps added by the previous one: targets of
	// older steps were injected when those steps were scanned.
	scanned := 0
	for stats.Rounds < len(g.Keys) {
		var missing []*store.Step
		for _, es := range out[scanned:] {
			for _, opt := range es.Options {
				if opt.IsEndState || opt.NextStepKey == nil {
					continue
				}
				key := *opt.NextStepKey
				if _, ok := included[key]; ok {
					continue
				}
				st, ok := g.Step(key)
				if !ok {
					return nil, stats, &GraphIntegrityError{
						SentimentID: g.SentimentID,
						Problems:    []string{fmt.Sprintf("step %q points to unknown step %q", es.StepKey, key)},
					}
				}
				included[key] = struct{}{}
				missing = append(missing, st)
			}
		}
		scanned = len(out)
		if len(missing) == 0 {
			break
		}
		slices.SortStableFunc(missing, compareSteps)
		for _, st := range missing {
			out = append(out, defaultStep(st))
		}
		stats.Rounds++
		stats.Injected += len(missing)
	}
	return out, stats, nil
}

func defaultStep(st *store.Step) EffectiveStep {
	return EffectiveStep{
		ID:       st.ID,
		StepKey:  st.StepKey,
		Order:    st.Order,
		Question: st.Question,
		Priority: DefaultPriority,
		Options:  slices.Clone(st.Options),
	}
}

func overriddenStep(st *store.Step, o store.StepOverride) EffectiveStep {
	es := defaultStep(st)
	es.Priority = o.Priority
	es.ContextualHint = o.ContextualHint
	es.IsRequired = o.IsRequired
	es.Personalized = true
	if o.CustomQuestion != nil && *o.CustomQuestion != "" {
		es.Question = *o.CustomQuestion
	}
	return es
}
