package core

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cinesense/journey-engine/internal/config"
	"github.com/cinesense/journey-engine/internal/logging"
	"github.com/cinesense/journey-engine/internal/metrics"
	"github.com/cinesense/journey-engine/internal/scoring"
	"github.com/cinesense/journey-engine/internal/store"
)

type StartSessionInput struct {
	SentimentID   int64
	IntentionType store.IntentionType
	UserID        *string
	Context       json.RawMessage
}

type Recommendation struct {
	MovieID            string   `json:"movieId"`
	Title              string   `json:"title"`
	Year               *int     `json:"year,omitempty"`
	Genres             []string `json:"genres"`
	Thumbnail          *string  `json:"thumbnail,omitempty"`
	VoteAverage        *float64 `json:"voteAverage,omitempty"`
	PersonalizedReason string   `json:"personalizedReason"`
	RelevanceScore     float64  `json:"relevanceScore"`
	IntentionAlignment float64  `json:"intentionAlignment"`
	CombinedScore      float64  `json:"combinedScore"`
}

type IntentionSummary struct {
	ID              int64               `json:"id"`
	Type            store.IntentionType `json:"type"`
	Description     string              `json:"description"`
	PreferredGenres []string            `json:"preferredGenres"`
	AvoidGenres     []string            `json:"avoidGenres"`
	EmotionalTone   store.Tone          `json:"emotionalTone"`
}

type SessionResult struct {
	SessionID       string           `json:"sessionId"`
	Recommendations []Recommendation `json:"recommendations"`
	Intention       IntentionSummary `json:"intentionConfig"`
}

// ContextualFactors is stored with each suggestion record.
type ContextualFactors struct {
	TagMatches    []scoring.TagMatch `json:"tagMatches"`
	GenreMatches  []string           `json:"genreMatches"`
	EmotionalTone store.Tone         `json:"emotionalTone"`
}

type Analytics struct {
	store.SessionStats
	AcceptanceRate float64 `json:"acceptanceRate"`
}

type SessionService struct {
	store  SessionStore
	cfg    config.RecommendConfig
	logger zerolog.Logger
	now    func() time.Time
}

func NewSessionService(st SessionStore, cfg config.RecommendConfig, logger zerolog.Logger) *SessionService {
	return &SessionService{
		store:  st,
		cfg:    cfg,
		logger: logger.With().Str("component", "session_service").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type candidate struct {
	movie     store.MovieWithTags
	relevance float64
	alignment float64
	combined  float64
	factors   ContextualFactors
}

// StartSession scores the candidate movies of an intention, persists the
// top-ranked ones as a new session and returns them.
func (s *SessionService) StartSession(ctx context.Context, in StartSessionInput) (*SessionResult, error) {
	if !in.IntentionType.Valid() {
		return nil, fmt.Errorf("intention type %q: %w", in.IntentionType, ErrInvalidArgument)
	}
	if len(in.Context) > 0 && !json.Valid(in.Context) {
		return nil, fmt.Errorf("session context is not valid JSON: %w", ErrInvalidArgument)
	}

	intention, err := s.store.FindIntention(ctx, in.SentimentID, in.IntentionType)
	if err != nil {
		return nil, err
	}
	if intention == nil {
		return nil, fmt.Errorf("intention %s of sentiment %d: %w", in.IntentionType, in.SentimentID, ErrNotFound)
	}
	if err := scoring.ValidateWeights(intention.TagWeights); err != nil {
		return nil, &GraphIntegrityError{
			SentimentID: intention.SentimentID,
			Problems:    []string{fmt.Sprintf("intention %d: %v", intention.ID, err)},
		}
	}

	tagNames := make([]string, 0, len(intention.TagWeights))
	for name := range intention.TagWeights {
		tagNames = append(tagNames, name)
	}
	sort.Strings(tagNames)

	movies, unreadable, err := s.store.ListCandidateMovies(ctx, tagNames)
	if err != nil {
		return nil, err
	}

	log := logging.Attach(ctx, s.logger)
	for _, re := range unreadable {
		log.Warn().Err(re.Err).Str("movie_id", re.MovieID).Int64("intention_id", intention.ID).Msg("Dropped candidate: movie row unreadable")
		metrics.RecordScoringDrop("session")
	}
	ranked := s.rank(log, intention, movies)

	session := &store.Session{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		SentimentID: in.SentimentID,
		IntentionID: intention.ID,
		CreatedAt:   s.now(),
		IsActive:    true,
		Context:     []byte(in.Context),
	}
	records := make([]store.SuggestionRecord, 0, len(ranked))
	recs := make([]Recommendation, 0, len(ranked))
	for _, c := range ranked {
		reason := personalizedReason(intention.Type, &c.movie.Movie, c.factors.GenreMatches)
		factors, err := json.Marshal(c.factors)
		if err != nil {
			return nil, fmt.Errorf("failed to encode contextual factors of movie %s: %w", c.movie.ID, err)
		}
		records = append(records, store.SuggestionRecord{
			MovieID:            c.movie.ID,
			PersonalizedReason: reason,
			RelevanceScore:     c.relevance,
			IntentionAlignment: c.alignment,
			ContextualFactors:  factors,
		})
		recs = append(recs, Recommendation{
			MovieID:            c.movie.ID,
			Title:              c.movie.Title,
			Year:               c.movie.Year,
			Genres:             c.movie.Genres,
			Thumbnail:          c.movie.Thumbnail,
			VoteAverage:        c.movie.VoteAverage,
			PersonalizedReason: reason,
			RelevanceScore:     c.relevance,
			IntentionAlignment: c.alignment,
			CombinedScore:      c.combined,
		})
	}

	if err := s.store.CreateSession(ctx, session, records); err != nil {
		return nil, err
	}
	metrics.RecordSessionStarted(string(intention.Type), len(recs))
	log.Info().
		Str("session_id", session.ID).
		Int64("sentiment_id", in.SentimentID).
		Str("intention", string(intention.Type)).
		Int("candidates", len(movies)).
		Int("recommendations", len(recs)).
		Msg("Started recommendation session")

	return &SessionResult{
		SessionID:       session.ID,
		Recommendations: recs,
		Intention: IntentionSummary{
			ID:              intention.ID,
			Type:            intention.Type,
			Description:     intention.Description,
			PreferredGenres: intention.PreferredGenres,
			AvoidGenres:     intention.AvoidGenres,
			EmotionalTone:   intention.EmotionalTone,
		},
	}, nil
}

// rank filters, scores and orders candidate movies. Movies whose scoring
// fails are dropped.
func (s *SessionService) rank(log zerolog.Logger, intention *store.Intention, movies []store.MovieWithTags) []candidate {
	profile := scoring.Profile{
		PreferredGenres:  intention.PreferredGenres,
		AvoidGenres:      intention.AvoidGenres,
		Tone:             string(intention.EmotionalTone),
		TagWeights:       intention.TagWeights,
		QualityThreshold: s.cfg.QualityThreshold,
	}

	var out []candidate
	for _, m := range movies {
		if scoring.HasAvoidedGenre(m.Genres, profile.AvoidGenres) {
			log.Debug().Str("movie_id", m.ID).Msg("Excluded movie with avoided genre")
			continue
		}
		genres := scoring.MatchedGenres(m.Genres, profile.PreferredGenres)
		if s.cfg.RequirePreferredGenre && len(profile.PreferredGenres) > 0 && len(genres) == 0 {
			continue
		}

		relevance, matches, err := scoring.TagWeightRelevance(profile.TagWeights, m.TagNames())
		if err != nil {
			log.Warn().Err(err).Str("movie_id", m.ID).Int64("intention_id", intention.ID).Msg("Dropped candidate: scoring failed")
			metrics.RecordScoringDrop("session")
			continue
		}
		if relevance <= s.cfg.MinRelevance {
			continue
		}
		alignment := scoring.IntentionAlignment(profile, m.Genres, m.VoteAverage)
		out = append(out, candidate{
			movie:     m,
			relevance: relevance,
			alignment: alignment,
			combined:  scoring.CombinedScore(relevance, alignment),
			factors: ContextualFactors{
				TagMatches:    nonNilMatches(matches),
				GenreMatches:  nonNilStrings(genres),
				EmotionalTone: intention.EmotionalTone,
			},
		})
	}

	scoring.RankStable(out, func(c candidate) float64 { return c.combined })
	if s.cfg.MaxResults > 0 && len(out) > s.cfg.MaxResults {
		out = out[:s.cfg.MaxResults]
	}
	return out
}

// RecordFeedback overwrites the feedback of a session's suggestion. It is
// accepted for completed sessions too.
func (s *SessionService) RecordFeedback(ctx context.Context, sessionID, movieID string, fb store.FeedbackUpdate) error {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	n, err := s.store.UpdateSuggestionFeedback(ctx, sessionID, movieID, fb)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("movie %s was not suggested in session %s: %w", movieID, sessionID, ErrNotFound)
	}
	metrics.RecordFeedback(fb.Accepted)
	return nil
}

// CompleteSession closes an active session. Completing a closed session is a
// no-op.
func (s *SessionService) CompleteSession(ctx context.Context, sessionID string) error {
	changed, err := s.store.CompleteSession(ctx, sessionID, s.now())
	if err != nil {
		return err
	}
	if changed {
		metrics.SessionsCompleted.Inc()
		return nil
	}
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

func (s *SessionService) History(ctx context.Context, userID string) ([]store.SessionDetail, error) {
	sessions, err := s.store.ListSessionsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []store.SessionDetail{}
	}
	return sessions, nil
}

// Analytics aggregates session counts. The acceptance rate is a percentage
// rounded to two decimals.
func (s *SessionService) Analytics(ctx context.Context) (*Analytics, error) {
	stats, err := s.store.SessionStats(ctx)
	if err != nil {
		return nil, err
	}
	a := &Analytics{SessionStats: *stats}
	if a.ByIntention == nil {
		a.ByIntention = []store.IntentionCount{}
	}
	if stats.TotalSuggestions > 0 {
		rate := float64(stats.AcceptedSuggestions) / float64(stats.TotalSuggestions) * 100
		a.AcceptanceRate = math.Round(rate*100) / 100
	}
	return a, nil
}

func (s *SessionService) ListSentiments(ctx context.Context) ([]store.Sentiment, error) {
	sentiments, err := s.store.ListSentiments(ctx)
	if err != nil {
		return nil, err
	}
	if sentiments == nil {
		sentiments = []store.Sentiment{}
	}
	return sentiments, nil
}

func (s *SessionService) ListIntentions(ctx context.Context, sentimentID int64) ([]store.Intention, error) {
	sentiment, err := s.store.GetSentiment(ctx, sentimentID)
	if err != nil {
		return nil, err
	}
	if sentiment == nil {
		return nil, fmt.Errorf("sentiment %d: %w", sentimentID, ErrNotFound)
	}
	intentions, err := s.store.ListIntentions(ctx, sentimentID)
	if err != nil {
		return nil, err
	}
	if intentions == nil {
		intentions = []store.Intention{}
	}
	return intentions, nil
}

var reasonTemplates = map[store.IntentionType][]string{
	store.IntentionProcess: {
		"%s gives you room to feel what you are going through.",
		"%s stays with the feeling instead of rushing past it.",
		"%s can help you put words to what you feel.",
	},
	store.IntentionTransform: {
		"%s can help move your mood toward something lighter.",
		"%s offers a gentle push toward a different state of mind.",
		"%s brings energy that can change the tone of your day.",
	},
	store.IntentionMaintain: {
		"%s keeps you company in the mood you are in.",
		"%s matches the way you want to feel right now.",
		"%s sustains the feeling without breaking it.",
	},
	store.IntentionExplore: {
		"%s opens a new angle on this feeling.",
		"%s invites you to look at the emotion from somewhere else.",
		"%s explores sides of this feeling you may not expect.",
	},
}

// personalizedReason picks a template by a hash of the movie id so the same
// movie always gets the same text.
func personalizedReason(t store.IntentionType, m *store.Movie, genres []string) string {
	templates := reasonTemplates[t]
	if len(templates) == 0 {
		return fmt.Sprintf("%s fits what you are looking for.", m.Title)
	}
	h := fnv.New32a()
	h.Write([]byte(m.ID))
	reason := fmt.Sprintf(templates[h.Sum32()%uint32(len(templates))], m.Title)
	if len(genres) > 0 {
		reason += fmt.Sprintf(" A %s pick in line with your preferences.", strings.ToLower(strings.Join(genres, " and ")))
	}
	return reason
}

func nonNilMatches(m []scoring.TagMatch) []scoring.TagMatch {
	if m == nil {
		return []scoring.TagMatch{}
	}
	return m
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
