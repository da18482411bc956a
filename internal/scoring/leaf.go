// Package scoring ranks movies against emotional tag profiles.
//
// Two independent paths live here. LeafCoverage produces the 0-10 relevance
// score cached on a journey leaf's movie suggestions. TagWeightRelevance and
// IntentionAlignment produce the two [0,1] components used to rank movies in a
// live recommendation session. Every function is pure and safe for
// concurrent use.
package scoring

import "math"

const (
	// MaxScore caps the leaf-coverage score.
	MaxScore = 10.0
	// CoverageBonus is added when at least half of the expected tags match.
	CoverageBonus = 0.5
	// CoverageBonusThreshold is the coverage ratio that earns CoverageBonus.
	CoverageBonusThreshold = 0.5
)

// TagLink is one movie-to-tag association, matched by tag name.
type TagLink struct {
	Name      string
	Relevance float64
}

// LeafScore is the result of LeafCoverage with its intermediate terms.
type LeafScore struct {
	Score         float64
	Average       float64
	MatchCount    int
	Expected      int
	CoverageRatio float64
	Intensity     float64
	Bonus         float64
	// Skipped is set when the leaf has no expected tags or the movie matches
	// none of them. Score is 0 in both cases.
	Skipped bool
}

// LeafCoverage scores a movie's tags against a leaf's expected tag names.
//
// Duplicate tag names on the movie collapse to their maximum relevance.
// With M the matched names and E the distinct expected names:
//
//	intensity = avg(M)^1.5 * 10
//	score     = intensity * sqrt(|M|/E) (+0.5 when |M|/E >= 0.5)
//
// clamped to [0,10] and rounded to 3 decimals.
func LeafCoverage(expected []string, links []TagLink) LeafScore {
	want := make(map[string]struct{}, len(expected))
	for _, name := range expected {
		want[name] = struct{}{}
	}
	res := LeafScore{Expected: len(want)}
	if res.Expected == 0 {
		res.Skipped = true
		return res
	}

	best := make(map[string]float64, len(links))
	for _, l := range links {
		if _, ok := want[l.Name]; !ok {
			continue
		}
		r := sanitize(l.Relevance)
		if cur, seen := best[l.Name]; !seen || r > cur {
			best[l.Name] = r
		}
	}
	if len(best) == 0 {
		res.Skipped = true
		return res
	}

	var sum float64
	for _, r := range best {
		sum += r
	}
	res.MatchCount = len(best)
	res.Average = sum / float64(res.MatchCount)
	res.Intensity = math.Pow(res.Average, 1.5) * 10
	res.CoverageRatio = float64(res.MatchCount) / float64(res.Expected)

	score := res.Intensity * math.Sqrt(res.CoverageRatio)
	if res.CoverageRatio >= CoverageBonusThreshold {
		res.Bonus = CoverageBonus
		score += CoverageBonus
	}
	res.Score = Round3(clamp(score, 0, MaxScore))
	return res
}

// Round3 rounds half up to 3 decimal places.
func Round3(v float64) float64 {
	return math.Floor(v*1000+0.5) / 1000
}

// sanitize maps NaN and negative relevances to 0.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
