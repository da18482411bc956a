package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Sentiment methods
func (s *SQLiteStore) ListSentiments(ctx context.Context) ([]Sentiment, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, description, short_description, keywords FROM sentiments ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query sentiments: %w", err)
	}
	defer rows.Close()

	var out []Sentiment
	for rows.Next() {
		snt, err := scanSentiment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *snt)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetSentiment(ctx context.Context, id int64) (*Sentiment, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, name, description, short_description, keywords FROM sentiments WHERE id = ?", id)
	snt, err := scanSentiment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return snt, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSentiment(sc scanner) (*Sentiment, error) {
	var snt Sentiment
	var keywords string
	if err := sc.Scan(&snt.ID, &snt.Name, &snt.Description, &snt.ShortDescription, &keywords); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan sentiment: %w", err)
	}
	kw, err := decodeStrings(keywords)
	if err != nil {
		return nil, fmt.Errorf("failed to decode keywords of sentiment %d: %w", snt.ID, err)
	}
	snt.Keywords = kw
	return &snt, nil
}

// GetGraphBySentiment loads the sentiment's graph with its steps ordered by
// (order, stepKey), options ordered by id and suggestions with their movies.
func (s *SQLiteStore) GetGraphBySentiment(ctx context.Context, sentimentID int64) (*JourneyGraph, error) {
	var g JourneyGraph
	err := s.db.QueryRowContext(ctx, "SELECT id, sentiment_id FROM journey_graphs WHERE sentiment_id = ?", sentimentID).Scan(&g.ID, &g.SentimentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query journey graph: %w", err)
	}

	steps, err := s.listSteps(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	options, err := s.listOptions(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	suggestions, dropped, err := s.listGraphSuggestions(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	g.Dropped = dropped

	byOption := make(map[int64][]MovieSuggestion)
	for _, ms := range suggestions {
		byOption[ms.OptionID] = append(byOption[ms.OptionID], ms)
	}
	byStep := make(map[int64][]Option)
	for _, opt := range options {
		opt.Suggestions = byOption[opt.ID]
		byStep[opt.StepID] = append(byStep[opt.StepID], opt)
	}
	for i := range steps {
		steps[i].Options = byStep[steps[i].ID]
	}
	g.Steps = steps
	return &g, nil
}

func (s *SQLiteStore) listSteps(ctx context.Context, graphID int64) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, graph_id, step_key, step_order, question
		FROM journey_steps WHERE graph_id = ?
		ORDER BY step_order, step_key, id`, graphID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var st Step
		if err := rows.Scan(&st.ID, &st.GraphID, &st.StepKey, &st.Order, &st.Question); err != nil {
			return nil, fmt.Errorf("failed to scan step row: %w", err)
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

func (s *SQLiteStore) listOptions(ctx context.Context, graphID int64) ([]Option, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.step_id, o.option_text, o.next_step_key, o.is_end_state
		FROM journey_options o
		JOIN journey_steps st ON st.id = o.step_id
		WHERE st.graph_id = ?
		ORDER BY o.id`, graphID)
	if err != nil {
		return nil, fmt.Errorf("failed to query options: %w", err)
	}
	defer rows.Close()

	var options []Option
	for rows.Next() {
		opt, err := scanOption(rows)
		if err != nil {
			return nil, err
		}
		options = append(options, *opt)
	}
	return options, rows.Err()
}

func scanOption(sc scanner) (*Option, error) {
	var opt Option
	var next sql.NullString
	if err := sc.Scan(&opt.ID, &opt.StepID, &opt.Text, &next, &opt.IsEndState); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan option row: %w", err)
	}
	opt.NextStepKey = nullString(next)
	return &opt, nil
}

// GetOption returns a single option without its suggestions.
func (s *SQLiteStore) GetOption(ctx context.Context, id int64) (*Option, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, step_id, option_text, next_step_key, is_end_state FROM journey_options WHERE id = ?", id)
	opt, err := scanOption(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return opt, err
}

// listGraphSuggestions returns the graph's suggestions with their movies.
// Suggestions whose movie fails to decode are returned separately.
func (s *SQLiteStore) listGraphSuggestions(ctx context.Context, graphID int64) ([]MovieSuggestion, []RowError, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ms.id, ms.option_id, ms.movie_id, ms.reason, ms.relevance, ms.relevance_score,
		       m.id, m.title, m.year, m.genres, m.vote_average, m.thumbnail, m.runtime
		FROM movie_suggestions ms
		JOIN journey_options o ON o.id = ms.option_id
		JOIN journey_steps st ON st.id = o.step_id
		JOIN movies m ON m.id = ms.movie_id
		WHERE st.graph_id = ?
		ORDER BY ms.id`, graphID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query movie suggestions: %w", err)
	}
	defer rows.Close()

	var out []MovieSuggestion
	var dropped []RowError
	for rows.Next() {
		var ms MovieSuggestion
		var relevance sql.NullInt64
		var score sql.NullFloat64
		var m movieRow
		if err := rows.Scan(&ms.ID, &ms.OptionID, &ms.MovieID, &ms.Reason, &relevance, &score,
			&m.id, &m.title, &m.year, &m.genres, &m.voteAverage, &m.thumbnail, &m.runtime); err != nil {
			return nil, nil, fmt.Errorf("failed to scan movie suggestion row: %w", err)
		}
		ms.Relevance = nullInt(relevance)
		ms.RelevanceScore = nullFloat(score)
		movie, err := m.toMovie()
		if err != nil {
			dropped = append(dropped, RowError{MovieID: ms.MovieID, SuggestionID: ms.ID, OptionID: ms.OptionID, Err: err})
			continue
		}
		ms.Movie = movie
		out = append(out, ms)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate movie suggestions: %w", err)
	}
	return out, dropped, nil
}

// ListTagsBySentiment returns the sentiment's emotional tags ordered by id.
func (s *SQLiteStore) ListTagsBySentiment(ctx context.Context, sentimentID int64) ([]EmotionalTag, error) {
	return s.queryTags(ctx, "SELECT id, sentiment_id, name FROM emotional_tags WHERE sentiment_id = ? ORDER BY id", sentimentID)
}

// ListExpectedTags returns the tags a leaf option considers relevant.
func (s *SQLiteStore) ListExpectedTags(ctx context.Context, optionID int64) ([]EmotionalTag, error) {
	return s.queryTags(ctx, `
		SELECT t.id, t.sentiment_id, t.name
		FROM option_expected_tags oet
		JOIN emotional_tags t ON t.id = oet.tag_id
		WHERE oet.option_id = ?
		ORDER BY t.id`, optionID)
}

func (s *SQLiteStore) queryTags(ctx context.Context, query string, args ...interface{}) ([]EmotionalTag, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query emotional tags: %w", err)
	}
	defer rows.Close()

	var tags []EmotionalTag
	for rows.Next() {
		var t EmotionalTag
		if err := rows.Scan(&t.ID, &t.SentimentID, &t.Name); err != nil {
			return nil, fmt.Errorf("failed to scan emotional tag row: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// Intention methods
const intentionColumns = "id, sentiment_id, intention_type, description, preferred_genres, avoid_genres, emotional_tone, tag_weights"

func (s *SQLiteStore) GetIntention(ctx context.Context, id int64) (*Intention, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+intentionColumns+" FROM intentions WHERE id = ?", id)
	in, err := scanIntention(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return in, err
}

// FindIntention looks an intention up by its sentiment and type.
func (s *SQLiteStore) FindIntention(ctx context.Context, sentimentID int64, t IntentionType) (*Intention, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+intentionColumns+" FROM intentions WHERE sentiment_id = ? AND intention_type = ?", sentimentID, string(t))
	in, err := scanIntention(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return in, err
}

func (s *SQLiteStore) ListIntentions(ctx context.Context, sentimentID int64) ([]Intention, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+intentionColumns+" FROM intentions WHERE sentiment_id = ? ORDER BY id", sentimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query intentions: %w", err)
	}
	defer rows.Close()

	var out []Intention
	for rows.Next() {
		in, err := scanIntention(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *in)
	}
	return out, rows.Err()
}

func scanIntention(sc scanner) (*Intention, error) {
	var in Intention
	var typ, tone, preferred, avoid, weights string
	if err := sc.Scan(&in.ID, &in.SentimentID, &typ, &in.Description, &preferred, &avoid, &tone, &weights); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan intention: %w", err)
	}
	in.Type = IntentionType(typ)
	in.EmotionalTone = Tone(tone)

	var err error
	if in.PreferredGenres, err = decodeStrings(preferred); err != nil {
		return nil, fmt.Errorf("failed to decode preferred genres of intention %d: %w", in.ID, err)
	}
	if in.AvoidGenres, err = decodeStrings(avoid); err != nil {
		return nil, fmt.Errorf("failed to decode avoid genres of intention %d: %w", in.ID, err)
	}
	in.TagWeights = map[string]float64{}
	if weights != "" {
		if err := json.Unmarshal([]byte(weights), &in.TagWeights); err != nil {
			return nil, fmt.Errorf("failed to decode tag weights of intention %d: %w", in.ID, err)
		}
	}
	return &in, nil
}

// ListStepOverrides returns an intention's overrides in id order. Ordering by
// priority is the resolver's job.
func (s *SQLiteStore) ListStepOverrides(ctx context.Context, intentionID int64) ([]StepOverride, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, intention_id, step_id, priority, custom_question, contextual_hint, is_required
		FROM step_overrides WHERE intention_id = ?
		ORDER BY id`, intentionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query step overrides: %w", err)
	}
	defer rows.Close()

	var out []StepOverride
	for rows.Next() {
		var o StepOverride
		var question, hint sql.NullString
		if err := rows.Scan(&o.ID, &o.IntentionID, &o.StepID, &o.Priority, &question, &hint, &o.IsRequired); err != nil {
			return nil, fmt.Errorf("failed to scan step override row: %w", err)
		}
		o.CustomQuestion = nullString(question)
		o.ContextualHint = nullString(hint)
		out = append(out, o)
	}
	return out, rows.Err()
}
