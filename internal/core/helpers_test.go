package core

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/cinesense/journey-engine/internal/config"
	"github.com/cinesense/journey-engine/internal/store"
)

func newFixtureStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	return openFixtureStore(t, ":memory:")
}

func openFixtureStore(t *testing.T, dsn string) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(dsn)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if _, err := s.ImportCatalogFromFile(context.Background(), "../store/testdata/catalog.json"); err != nil {
		t.Fatalf("import fixture: %v", err)
	}
	return s
}

// newFixtureStoreWithUnreadableMovie returns a file-backed fixture in which
// the genres column of movieID no longer holds JSON.
func newFixtureStoreWithUnreadableMovie(t *testing.T, movieID string) *store.SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journey.db")
	s := openFixtureStore(t, path)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.Exec("UPDATE movies SET genres = 'not-json' WHERE id = ?", movieID); err != nil {
		t.Fatal(err)
	}
	return s
}

func testRecommendConfig() config.RecommendConfig {
	return config.RecommendConfig{
		MaxResults:            10,
		MinRelevance:          0.3,
		RequirePreferredGenre: true,
		QualityThreshold:      7.0,
	}
}

func nop() zerolog.Logger { return zerolog.Nop() }

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }
