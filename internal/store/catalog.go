package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type movieRow struct {
	id          string
	title       string
	year        sql.NullInt64
	genres      string
	voteAverage sql.NullFloat64
	thumbnail   sql.NullString
	runtime     sql.NullInt64
}

func (m *movieRow) toMovie() (*Movie, error) {
	genres, err := decodeStrings(m.genres)
	if err != nil {
		return nil, fmt.Errorf("failed to decode genres of movie %s: %w", m.id, err)
	}
	return &Movie{
		ID:          m.id,
		Title:       m.title,
		Year:        nullInt(m.year),
		Genres:      genres,
		VoteAverage: nullFloat(m.voteAverage),
		Thumbnail:   nullString(m.thumbnail),
		Runtime:     nullInt(m.runtime),
	}, nil
}

const movieColumns = "m.id, m.title, m.year, m.genres, m.vote_average, m.thumbnail, m.runtime"

func (s *SQLiteStore) GetMovie(ctx context.Context, id string) (*Movie, error) {
	var m movieRow
	err := s.db.QueryRowContext(ctx, "SELECT "+movieColumns+" FROM movies m WHERE m.id = ?", id).
		Scan(&m.id, &m.title, &m.year, &m.genres, &m.voteAverage, &m.thumbnail, &m.runtime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query movie: %w", err)
	}
	return m.toMovie()
}

// ListMovieTags returns every tag link of a movie, duplicates by name included.
func (s *SQLiteStore) ListMovieTags(ctx context.Context, movieID string) ([]MovieTag, error) {
	return s.queryMovieTags(ctx, `
		SELECT mt.movie_id, t.id, t.sentiment_id, t.name, mt.relevance
		FROM movie_tags mt
		JOIN emotional_tags t ON t.id = mt.tag_id
		WHERE mt.movie_id = ?
		ORDER BY t.id`, movieID)
}

func (s *SQLiteStore) queryMovieTags(ctx context.Context, query string, args ...interface{}) ([]MovieTag, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movie tags: %w", err)
	}
	defer rows.Close()

	var out []MovieTag
	for rows.Next() {
		var mt MovieTag
		if err := rows.Scan(&mt.MovieID, &mt.TagID, &mt.SentimentID, &mt.TagName, &mt.Relevance); err != nil {
			return nil, fmt.Errorf("failed to scan movie tag row: %w", err)
		}
		out = append(out, mt)
	}
	return out, rows.Err()
}

// ListCandidateMovies returns movies linked to at least one tag named in
// tagNames, each with all of its tags, ordered by (title, id). Movies that
// fail to decode are left out and returned as row errors.
func (s *SQLiteStore) ListCandidateMovies(ctx context.Context, tagNames []string) ([]MovieWithTags, []RowError, error) {
	if len(tagNames) == 0 {
		return nil, nil, nil
	}
	args := make([]interface{}, len(tagNames))
	for i, n := range tagNames {
		args[i] = n
	}
	matching := `
		SELECT DISTINCT mt.movie_id
		FROM movie_tags mt
		JOIN emotional_tags t ON t.id = mt.tag_id
		WHERE t.name IN (` + placeholders(len(tagNames)) + `)`

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+movieColumns+" FROM movies m WHERE m.id IN ("+matching+") ORDER BY m.title, m.id", args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query candidate movies: %w", err)
	}
	var movies []MovieWithTags
	var dropped []RowError
	index := make(map[string]int)
	for rows.Next() {
		var m movieRow
		if err := rows.Scan(&m.id, &m.title, &m.year, &m.genres, &m.voteAverage, &m.thumbnail, &m.runtime); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("failed to scan candidate movie row: %w", err)
		}
		movie, err := m.toMovie()
		if err != nil {
			dropped = append(dropped, RowError{MovieID: m.id, Err: err})
			continue
		}
		index[movie.ID] = len(movies)
		movies = append(movies, MovieWithTags{Movie: *movie})
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to iterate candidate movies: %w", err)
	}

	tags, err := s.queryMovieTags(ctx, `
		SELECT mt.movie_id, t.id, t.sentiment_id, t.name, mt.relevance
		FROM movie_tags mt
		JOIN emotional_tags t ON t.id = mt.tag_id
		WHERE mt.movie_id IN (`+matching+`)
		ORDER BY mt.movie_id, t.id`, args...)
	if err != nil {
		return nil, nil, err
	}
	for _, mt := range tags {
		if i, ok := index[mt.MovieID]; ok {
			movies[i].Tags = append(movies[i].Tags, mt)
		}
	}
	return movies, dropped, nil
}

// ListSuggestionsForRecalc returns the movie suggestions matching f in id order.
func (s *SQLiteStore) ListSuggestionsForRecalc(ctx context.Context, f RecalcFilter) ([]MovieSuggestion, error) {
	var where []string
	var args []interface{}
	if f.MovieID != "" {
		where = append(where, "movie_id = ?")
		args = append(args, f.MovieID)
	}
	if f.OptionID != 0 {
		where = append(where, "option_id = ?")
		args = append(args, f.OptionID)
	}
	if f.BelowScore != nil {
		where = append(where, "(relevance_score IS NULL OR relevance_score < ?)")
		args = append(args, *f.BelowScore)
	}

	query := "SELECT id, option_id, movie_id, reason, relevance, relevance_score FROM movie_suggestions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestions for recalculation: %w", err)
	}
	defer rows.Close()

	var out []MovieSuggestion
	for rows.Next() {
		var ms MovieSuggestion
		var relevance sql.NullInt64
		var score sql.NullFloat64
		if err := rows.Scan(&ms.ID, &ms.OptionID, &ms.MovieID, &ms.Reason, &relevance, &score); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion row: %w", err)
		}
		ms.Relevance = nullInt(relevance)
		ms.RelevanceScore = nullFloat(score)
		out = append(out, ms)
	}
	return out, rows.Err()
}

// UpdateSuggestionScore writes one cached relevance score.
func (s *SQLiteStore) UpdateSuggestionScore(ctx context.Context, id int64, score float64) error {
	res, err := s.db.ExecContext(ctx, "UPDATE movie_suggestions SET relevance_score = ? WHERE id = ?", score, id)
	if err != nil {
		return fmt.Errorf("failed to update relevance score: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("movie suggestion %d: %w", id, sql.ErrNoRows)
	}
	return nil
}
