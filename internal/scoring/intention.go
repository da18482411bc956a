package scoring

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
)

// ErrInvalidWeight is returned for a negative or non-finite tag weight.
var ErrInvalidWeight = errors.New("invalid tag weight")

// Tone bonuses added to intention alignment.
var toneBonus = map[string]float64{
	"similar":     0.3,
	"contrasting": 0.2,
	"progressive": 0.4,
}

const (
	genreWeight = 0.5
	// DefaultQualityThreshold is the rating a movie must exceed to earn QualityBonus.
	DefaultQualityThreshold = 7.0
	QualityBonus            = 0.2

	relevanceWeight = 0.6
	alignmentWeight = 0.4
)

// Profile is the part of an intention used for session scoring.
type Profile struct {
	PreferredGenres  []string
	AvoidGenres      []string
	Tone             string
	TagWeights       map[string]float64
	QualityThreshold float64
}

// TagMatch is a weighted tag the movie carries.
type TagMatch struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// ValidateWeights rejects negative or non-finite tag weights.
func ValidateWeights(weights map[string]float64) error {
	for name, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: %q = %v", ErrInvalidWeight, name, w)
		}
	}
	return nil
}

// TagWeightRelevance returns the share of the profile's total tag weight
// carried by the movie's tags, in [0,1]. Presence counts, the link relevance
// does not. Matches are returned sorted by name.
func TagWeightRelevance(weights map[string]float64, tagNames []string) (float64, []TagMatch, error) {
	if err := ValidateWeights(weights); err != nil {
		return 0, nil, err
	}
	var total float64
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return 0, nil, nil
	}

	seen := make(map[string]struct{}, len(tagNames))
	var matched float64
	var matches []TagMatch
	for _, name := range tagNames {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if w, ok := weights[name]; ok && w > 0 {
			matched += w
			matches = append(matches, TagMatch{Name: name, Weight: w})
		}
	}
	slices.SortFunc(matches, func(a, b TagMatch) int { return cmp.Compare(a.Name, b.Name) })
	return clamp(matched/total, 0, 1), matches, nil
}

// genreMatch reports whether two genre labels match: case-insensitive
// substring containment in either direction, so "Drama" matches "Drama Romântico".
func genreMatch(a, b string) bool {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// HasAvoidedGenre reports whether any movie genre matches the avoid list.
func HasAvoidedGenre(genres, avoid []string) bool {
	for _, g := range genres {
		for _, a := range avoid {
			if genreMatch(g, a) {
				return true
			}
		}
	}
	return false
}

// MatchedGenres returns the movie genres matching any preferred genre, in
// movie order.
func MatchedGenres(genres, preferred []string) []string {
	var out []string
	for _, g := range genres {
		for _, p := range preferred {
			if genreMatch(g, p) {
				out = append(out, g)
				break
			}
		}
	}
	return out
}

// IntentionAlignment blends preferred-genre overlap, the tone bonus and a
// quality bonus into [0,1].
func IntentionAlignment(p Profile, genres []string, voteAverage *float64) float64 {
	var score float64
	if len(p.PreferredGenres) > 0 {
		matches := len(MatchedGenres(genres, p.PreferredGenres))
		score += genreWeight * float64(matches) / float64(len(p.PreferredGenres))
	}
	score += toneBonus[p.Tone]

	threshold := p.QualityThreshold
	if threshold == 0 {
		threshold = DefaultQualityThreshold
	}
	if voteAverage != nil && *voteAverage > threshold {
		score += QualityBonus
	}
	return clamp(score, 0, 1)
}

// CombinedScore is the session ranking key.
func CombinedScore(relevance, alignment float64) float64 {
	return relevanceWeight*relevance + alignmentWeight*alignment
}
