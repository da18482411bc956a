package core

import (
	"context"
	"time"

	"github.com/cinesense/journey-engine/internal/store"
)

// GraphReader loads stored journey graphs. A missing graph is (nil, nil).
type GraphReader interface {
	GetGraphBySentiment(ctx context.Context, sentimentID int64) (*store.JourneyGraph, error)
	ListTagsBySentiment(ctx context.Context, sentimentID int64) ([]store.EmotionalTag, error)
}

// LeafReader reads what leaf-coverage scoring needs.
type LeafReader interface {
	ListExpectedTags(ctx context.Context, optionID int64) ([]store.EmotionalTag, error)
	ListMovieTags(ctx context.Context, movieID string) ([]store.MovieTag, error)
}

type JourneyStore interface {
	LeafReader
	GetIntention(ctx context.Context, id int64) (*store.Intention, error)
	ListStepOverrides(ctx context.Context, intentionID int64) ([]store.StepOverride, error)
}

type SessionStore interface {
	ListSentiments(ctx context.Context) ([]store.Sentiment, error)
	GetSentiment(ctx context.Context, id int64) (*store.Sentiment, error)
	FindIntention(ctx context.Context, sentimentID int64, t store.IntentionType) (*store.Intention, error)
	ListIntentions(ctx context.Context, sentimentID int64) ([]store.Intention, error)
	ListCandidateMovies(ctx context.Context, tagNames []string) ([]store.MovieWithTags, []store.RowError, error)
	CreateSession(ctx context.Context, sess *store.Session, records []store.SuggestionRecord) error
	GetSession(ctx context.Context, id string) (*store.Session, error)
	UpdateSuggestionFeedback(ctx context.Context, sessionID, movieID string, fb store.FeedbackUpdate) (int64, error)
	CompleteSession(ctx context.Context, id string, at time.Time) (bool, error)
	ListSessionsByUser(ctx context.Context, userID string) ([]store.SessionDetail, error)
	SessionStats(ctx context.Context) (*store.SessionStats, error)
}

type RecalcStore interface {
	LeafReader
	GetMovie(ctx context.Context, id string) (*store.Movie, error)
	GetOption(ctx context.Context, id int64) (*store.Option, error)
	ListSuggestionsForRecalc(ctx context.Context, f store.RecalcFilter) ([]store.MovieSuggestion, error)
	UpdateSuggestionScore(ctx context.Context, id int64, score float64) error
}

var (
	_ GraphReader  = (*store.SQLiteStore)(nil)
	_ JourneyStore = (*store.SQLiteStore)(nil)
	_ SessionStore = (*store.SQLiteStore)(nil)
	_ RecalcStore  = (*store.SQLiteStore)(nil)
)
