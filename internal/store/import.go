package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
)

// Catalog is the JSON document accepted by ImportCatalog.
type Catalog struct {
	Sentiments []CatalogSentiment `json:"sentiments"`
	Movies     []CatalogMovie     `json:"movies"`
}

type CatalogSentiment struct {
	Sentiment
	Tags       []EmotionalTag     `json:"tags"`
	Graph      *CatalogGraph      `json:"graph,omitempty"`
	Intentions []CatalogIntention `json:"intentions"`
}

type CatalogGraph struct {
	ID    int64         `json:"id"`
	Steps []CatalogStep `json:"steps"`
}

type CatalogStep struct {
	ID       int64           `json:"id"`
	StepKey  string          `json:"stepId"`
	Order    int             `json:"order"`
	Question string          `json:"question"`
	Options  []CatalogOption `json:"options"`
}

type CatalogOption struct {
	ID           int64             `json:"id"`
	Text         string            `json:"text"`
	NextStepKey  *string           `json:"nextStepId"`
	IsEndState   bool              `json:"isEndState"`
	ExpectedTags []int64           `json:"expectedTags"`
	Suggestions  []MovieSuggestion `json:"movieSuggestions"`
}

type CatalogIntention struct {
	Intention
	StepOverrides []StepOverride `json:"stepOverrides"`
}

type CatalogMovie struct {
	Movie
	Tags []CatalogMovieTag `json:"tags"`
}

type CatalogMovieTag struct {
	TagID     int64   `json:"tagId"`
	Relevance float64 `json:"relevance"`
}

// ImportStats counts imported rows.
type ImportStats struct {
	Sentiments  int
	Tags        int
	Steps       int
	Options     int
	Suggestions int
	Movies      int
	Intentions  int
	Overrides   int
}

// ImportCatalogFromFile imports the catalog stored at path.
func (s *SQLiteStore) ImportCatalogFromFile(ctx context.Context, path string) (*ImportStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog file %s: %w", path, err)
	}
	defer f.Close()
	return s.ImportCatalog(ctx, f)
}

// ImportCatalog decodes a catalog and inserts it in one transaction. Ids in
// the document are kept so that references between entities survive.
func (s *SQLiteStore) ImportCatalog(ctx context.Context, r io.Reader) (*ImportStats, error) {
	var cat Catalog
	if err := json.NewDecoder(r).Decode(&cat); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stats := &ImportStats{}
	for _, snt := range cat.Sentiments {
		if err := importSentiment(ctx, tx, &snt, stats); err != nil {
			return nil, err
		}
	}
	for _, m := range cat.Movies {
		if err := importMovie(ctx, tx, &m); err != nil {
			return nil, err
		}
		stats.Movies++
	}
	for _, snt := range cat.Sentiments {
		if snt.Graph != nil {
			if err := importGraph(ctx, tx, snt.ID, snt.Graph, stats); err != nil {
				return nil, err
			}
		}
		for _, in := range snt.Intentions {
			if err := importIntention(ctx, tx, snt.ID, &in, stats); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit catalog: %w", err)
	}
	return stats, nil
}

func importSentiment(ctx context.Context, tx *sql.Tx, snt *CatalogSentiment, stats *ImportStats) error {
	keywords, err := encodeJSON(nonNil(snt.Keywords))
	if err != nil {
		return fmt.Errorf("failed to encode keywords of sentiment %d: %w", snt.ID, err)
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO sentiments (id, name, description, short_description, keywords) VALUES (?, ?, ?, ?, ?)",
		snt.ID, snt.Name, snt.Description, snt.ShortDescription, keywords)
	if err != nil {
		return fmt.Errorf("failed to insert sentiment %d: %w", snt.ID, err)
	}
	stats.Sentiments++

	for _, t := range snt.Tags {
		if _, err := tx.ExecContext(ctx, "INSERT INTO emotional_tags (id, sentiment_id, name) VALUES (?, ?, ?)", t.ID, snt.ID, t.Name); err != nil {
			return fmt.Errorf("failed to insert emotional tag %d: %w", t.ID, err)
		}
		stats.Tags++
	}
	return nil
}

func importMovie(ctx context.Context, tx *sql.Tx, m *CatalogMovie) error {
	genres, err := encodeJSON(nonNil(m.Genres))
	if err != nil {
		return fmt.Errorf("failed to encode genres of movie %s: %w", m.ID, err)
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO movies (id, title, year, genres, vote_average, thumbnail, runtime) VALUES (?, ?, ?, ?, ?, ?, ?)",
		m.ID, m.Title, m.Year, genres, m.VoteAverage, m.Thumbnail, m.Runtime)
	if err != nil {
		return fmt.Errorf("failed to insert movie %s: %w", m.ID, err)
	}
	for _, t := range m.Tags {
		if _, err := tx.ExecContext(ctx, "INSERT INTO movie_tags (movie_id, tag_id, relevance) VALUES (?, ?, ?)", m.ID, t.TagID, t.Relevance); err != nil {
			return fmt.Errorf("failed to link movie %s to tag %d: %w", m.ID, t.TagID, err)
		}
	}
	return nil
}

func importGraph(ctx context.Context, tx *sql.Tx, sentimentID int64, g *CatalogGraph, stats *ImportStats) error {
	if _, err := tx.ExecContext(ctx, "INSERT INTO journey_graphs (id, sentiment_id) VALUES (?, ?)", g.ID, sentimentID); err != nil {
		return fmt.Errorf("failed to insert journey graph %d: %w", g.ID, err)
	}
	for _, st := range g.Steps {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO journey_steps (id, graph_id, step_key, step_order, question) VALUES (?, ?, ?, ?, ?)",
			st.ID, g.ID, st.StepKey, st.Order, st.Question)
		if err != nil {
			return fmt.Errorf("failed to insert step %q: %w", st.StepKey, err)
		}
		stats.Steps++

		for _, opt := range st.Options {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO journey_options (id, step_id, option_text, next_step_key, is_end_state) VALUES (?, ?, ?, ?, ?)",
				opt.ID, st.ID, opt.Text, opt.NextStepKey, opt.IsEndState)
			if err != nil {
				return fmt.Errorf("failed to insert option %d: %w", opt.ID, err)
			}
			stats.Options++

			for _, tagID := range opt.ExpectedTags {
				if _, err := tx.ExecContext(ctx, "INSERT INTO option_expected_tags (option_id, tag_id) VALUES (?, ?)", opt.ID, tagID); err != nil {
					return fmt.Errorf("failed to link option %d to tag %d: %w", opt.ID, tagID, err)
				}
			}
			for _, ms := range opt.Suggestions {
				_, err := tx.ExecContext(ctx,
					"INSERT INTO movie_suggestions (id, option_id, movie_id, reason, relevance, relevance_score) VALUES (?, ?, ?, ?, ?, ?)",
					nullID(ms.ID), opt.ID, ms.MovieID, ms.Reason, ms.Relevance, ms.RelevanceScore)
				if err != nil {
					return fmt.Errorf("failed to insert suggestion of movie %s on option %d: %w", ms.MovieID, opt.ID, err)
				}
				stats.Suggestions++
			}
		}
	}
	return nil
}

func importIntention(ctx context.Context, tx *sql.Tx, sentimentID int64, in *CatalogIntention, stats *ImportStats) error {
	if !in.Type.Valid() {
		return fmt.Errorf("intention %d has unknown type %q", in.ID, in.Type)
	}
	if !in.EmotionalTone.Valid() {
		return fmt.Errorf("intention %d has unknown emotional tone %q", in.ID, in.EmotionalTone)
	}
	preferred, err := encodeJSON(nonNil(in.PreferredGenres))
	if err != nil {
		return fmt.Errorf("failed to encode preferred genres of intention %d: %w", in.ID, err)
	}
	avoid, err := encodeJSON(nonNil(in.AvoidGenres))
	if err != nil {
		return fmt.Errorf("failed to encode avoid genres of intention %d: %w", in.ID, err)
	}
	weights := in.TagWeights
	if weights == nil {
		weights = map[string]float64{}
	}
	weightsJSON, err := encodeJSON(weights)
	if err != nil {
		return fmt.Errorf("failed to encode tag weights of intention %d: %w", in.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO intentions (id, sentiment_id, intention_type, description, preferred_genres, avoid_genres, emotional_tone, tag_weights)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, sentimentID, string(in.Type), in.Description, preferred, avoid, string(in.EmotionalTone), weightsJSON)
	if err != nil {
		return fmt.Errorf("failed to insert intention %d: %w", in.ID, err)
	}
	stats.Intentions++

	for _, o := range in.StepOverrides {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO step_overrides (id, intention_id, step_id, priority, custom_question, contextual_hint, is_required)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			nullID(o.ID), in.ID, o.StepID, o.Priority, o.CustomQuestion, o.ContextualHint, o.IsRequired)
		if err != nil {
			return fmt.Errorf("failed to insert step override of intention %d: %w", in.ID, err)
		}
		stats.Overrides++
	}
	return nil
}

// nullID lets SQLite assign a rowid when the document leaves the id out.
func nullID(id int64) interface{} {
	if id == 0 {
		return nil
	}
	return id
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
