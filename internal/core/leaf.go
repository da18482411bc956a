package core

import (
	"context"
	"fmt"

	"github.com/cinesense/journey-engine/internal/scoring"
)

// expectedTagNames returns the names of a leaf's expected tags after checking
// that no two of them share a name within a sentiment.
func expectedTagNames(ctx context.Context, r LeafReader, optionID int64) ([]string, error) {
	tags, err := r.ListExpectedTags(ctx, optionID)
	if err != nil {
		return nil, err
	}
	var sentimentID int64
	if len(tags) > 0 {
		sentimentID = tags[0].SentimentID
	}
	if err := ValidateTagNames(sentimentID, tags); err != nil {
		return nil, fmt.Errorf("expected tags of option %d: %w", optionID, err)
	}
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return names, nil
}

func movieTagLinks(ctx context.Context, r LeafReader, movieID string) ([]scoring.TagLink, error) {
	tags, err := r.ListMovieTags(ctx, movieID)
	if err != nil {
		return nil, err
	}
	links := make([]scoring.TagLink, len(tags))
	for i, t := range tags {
		links[i] = scoring.TagLink{Name: t.TagName, Relevance: t.Relevance}
	}
	return links, nil
}

// scoreLeafSuggestion computes the leaf-coverage score of one movie against
// the expected tag names of its leaf.
func scoreLeafSuggestion(ctx context.Context, r LeafReader, expected []string, movieID string) (scoring.LeafScore, error) {
	links, err := movieTagLinks(ctx, r, movieID)
	if err != nil {
		return scoring.LeafScore{}, err
	}
	return scoring.LeafCoverage(expected, links), nil
}
