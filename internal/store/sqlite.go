package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore is the relational store behind the journey engine. Single-row
// lookups return (nil, nil) when the row does not exist.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" databases alive
	// across calls. Every method drains its rows before issuing the next query.
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    PRAGMA foreign_keys = ON;

    CREATE TABLE IF NOT EXISTS sentiments (
        id INTEGER PRIMARY KEY,
        name TEXT UNIQUE NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        short_description TEXT NOT NULL DEFAULT '',
        keywords TEXT NOT NULL DEFAULT '[]' -- JSON array
    );

    CREATE TABLE IF NOT EXISTS journey_graphs (
        id INTEGER PRIMARY KEY,
        sentiment_id INTEGER UNIQUE NOT NULL,
        FOREIGN KEY (sentiment_id) REFERENCES sentiments (id)
    );

    -- step_key uniqueness is checked when a graph is loaded
    CREATE TABLE IF NOT EXISTS journey_steps (
        id INTEGER PRIMARY KEY,
        graph_id INTEGER NOT NULL,
        step_key TEXT NOT NULL,
        step_order INTEGER NOT NULL DEFAULT 0,
        question TEXT NOT NULL,
        FOREIGN KEY (graph_id) REFERENCES journey_graphs (id)
    );
    CREATE INDEX IF NOT EXISTS idx_steps_graph ON journey_steps (graph_id);

    CREATE TABLE IF NOT EXISTS journey_options (
        id INTEGER PRIMARY KEY,
        step_id INTEGER NOT NULL,
        option_text TEXT NOT NULL,
        next_step_key TEXT,
        is_end_state BOOLEAN NOT NULL DEFAULT FALSE,
        FOREIGN KEY (step_id) REFERENCES journey_steps (id)
    );
    CREATE INDEX IF NOT EXISTS idx_options_step ON journey_options (step_id);

    CREATE TABLE IF NOT EXISTS emotional_tags (
        id INTEGER PRIMARY KEY,
        sentiment_id INTEGER NOT NULL,
        name TEXT NOT NULL,
        FOREIGN KEY (sentiment_id) REFERENCES sentiments (id)
    );
    CREATE INDEX IF NOT EXISTS idx_tags_name ON emotional_tags (name);

    CREATE TABLE IF NOT EXISTS option_expected_tags (
        option_id INTEGER NOT NULL,
        tag_id INTEGER NOT NULL,
        PRIMARY KEY (option_id, tag_id),
        FOREIGN KEY (option_id) REFERENCES journey_options (id),
        FOREIGN KEY (tag_id) REFERENCES emotional_tags (id)
    );

    CREATE TABLE IF NOT EXISTS movies (
        id TEXT PRIMARY KEY,
        title TEXT NOT NULL,
        year INTEGER,
        genres TEXT NOT NULL DEFAULT '[]', -- JSON array
        vote_average REAL,
        thumbnail TEXT,
        runtime INTEGER
    );

    CREATE TABLE IF NOT EXISTS movie_tags (
        movie_id TEXT NOT NULL,
        tag_id INTEGER NOT NULL,
        relevance REAL NOT NULL,
        PRIMARY KEY (movie_id, tag_id),
        FOREIGN KEY (movie_id) REFERENCES movies (id),
        FOREIGN KEY (tag_id) REFERENCES emotional_tags (id)
    );

    CREATE TABLE IF NOT EXISTS movie_suggestions (
        id INTEGER PRIMARY KEY,
        option_id INTEGER NOT NULL,
        movie_id TEXT NOT NULL,
        reason TEXT NOT NULL DEFAULT '',
        relevance INTEGER,
        relevance_score REAL,
        FOREIGN KEY (option_id) REFERENCES journey_options (id),
        FOREIGN KEY (movie_id) REFERENCES movies (id)
    );
    CREATE INDEX IF NOT EXISTS idx_suggestions_movie ON movie_suggestions (movie_id);
    CREATE INDEX IF NOT EXISTS idx_suggestions_option ON movie_suggestions (option_id);

    CREATE TABLE IF NOT EXISTS intentions (
        id INTEGER PRIMARY KEY,
        sentiment_id INTEGER NOT NULL,
        intention_type TEXT NOT NULL CHECK (intention_type IN ('PROCESS', 'TRANSFORM', 'MAINTAIN', 'EXPLORE')),
        description TEXT NOT NULL DEFAULT '',
        preferred_genres TEXT NOT NULL DEFAULT '[]',
        avoid_genres TEXT NOT NULL DEFAULT '[]',
        emotional_tone TEXT NOT NULL CHECK (emotional_tone IN ('similar', 'contrasting', 'progressive')),
        tag_weights TEXT NOT NULL DEFAULT '{}', -- JSON object name -> weight
        UNIQUE (sentiment_id, intention_type),
        FOREIGN KEY (sentiment_id) REFERENCES sentiments (id)
    );

    CREATE TABLE IF NOT EXISTS step_overrides (
        id INTEGER PRIMARY KEY,
        intention_id INTEGER NOT NULL,
        step_id INTEGER NOT NULL,
        priority INTEGER NOT NULL,
        custom_question TEXT,
        contextual_hint TEXT,
        is_required BOOLEAN NOT NULL DEFAULT FALSE,
        FOREIGN KEY (intention_id) REFERENCES intentions (id)
    );

    CREATE TABLE IF NOT EXISTS recommendation_sessions (
        id TEXT PRIMARY KEY, -- UUID
        user_id TEXT,
        sentiment_id INTEGER NOT NULL,
        intention_id INTEGER NOT NULL,
        created_at DATETIME NOT NULL,
        completed_at DATETIME,
        is_active BOOLEAN NOT NULL DEFAULT TRUE,
        context TEXT
    );
    CREATE INDEX IF NOT EXISTS idx_sessions_user ON recommendation_sessions (user_id);

    CREATE TABLE IF NOT EXISTS suggestion_records (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT NOT NULL,
        movie_id TEXT NOT NULL,
        personalized_reason TEXT NOT NULL,
        relevance_score REAL NOT NULL,
        intention_alignment REAL NOT NULL,
        was_viewed BOOLEAN NOT NULL DEFAULT FALSE,
        was_accepted BOOLEAN NOT NULL DEFAULT FALSE,
        user_feedback TEXT,
        contextual_factors TEXT,
        FOREIGN KEY (session_id) REFERENCES recommendation_sessions (id)
    );
    CREATE INDEX IF NOT EXISTS idx_records_session ON suggestion_records (session_id, movie_id);
    `
	_, err := s.db.Exec(schema)
	return err
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func encodeJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeStrings(raw string) ([]string, error) {
	out := []string{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

func nullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func rawJSON(ns sql.NullString) []byte {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return []byte(ns.String)
}

func rawOrNil(m []byte) interface{} {
	if len(m) == 0 {
		return nil
	}
	return string(m)
}
