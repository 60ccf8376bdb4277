package bookstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/bookarr/bookarr/internal/database"
	"github.com/bookarr/bookarr/internal/models"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	dbName := "file:" + t.Name() + "?mode=memory&cache=shared"
	sqlDB, err := sql.Open("sqlite", dbName)
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	_, err = sqlDB.Exec(`
		CREATE TABLE books (
			asin TEXT PRIMARY KEY, title TEXT, subtitle TEXT, authors TEXT, narrators TEXT,
			cover_url TEXT, release_date TIMESTAMP, runtime_min INTEGER, series TEXT,
			series_index TEXT, genres TEXT, publisher TEXT, description TEXT, language TEXT,
			downloaded BOOLEAN, updated_at TIMESTAMP
		);
		CREATE TABLE requests (id INTEGER PRIMARY KEY, book_asin TEXT);
	`)
	require.NoError(t, err)
	return database.NewForTest(sqlDB)
}

func sampleBook(asin string) models.Book {
	return models.Book{
		ASIN:    asin,
		Title:   "Quiet",
		Authors: []string{"Susan Cain"},
		Series:  []string{"Nonfiction Essentials"},
	}
}

func TestUpsertManyInsertsNewBook(t *testing.T) {
	ctx := context.Background()
	s := New(setupTestDB(t))

	merged, err := s.UpsertMany(ctx, []models.Book{sampleBook("B0AAA00001")})
	require.NoError(t, err)
	require.Len(t, merged, 1)
	require.False(t, merged[0].Downloaded)
}

func TestUpsertManyPreservesDownloadedFlag(t *testing.T) {
	ctx := context.Background()
	s := New(setupTestDB(t))

	_, err := s.UpsertMany(ctx, []models.Book{sampleBook("B0AAA00001")})
	require.NoError(t, err)
	require.NoError(t, s.MarkDownloaded(ctx, "B0AAA00001"))

	updated := sampleBook("B0AAA00001")
	updated.Title = "Quiet (Revised)"
	merged, err := s.UpsertMany(ctx, []models.Book{updated})
	require.NoError(t, err)
	require.True(t, merged[0].Downloaded)
	require.Equal(t, "Quiet (Revised)", merged[0].Title)
}

func TestGetExistingExcludesStaleAndIncomplete(t *testing.T) {
	ctx := context.Background()
	s := New(setupTestDB(t))

	fresh := sampleBook("B0AAA00001")
	incomplete := sampleBook("B0AAA00002")
	incomplete.Series = nil

	_, err := s.UpsertMany(ctx, []models.Book{fresh, incomplete})
	require.NoError(t, err)

	existing, err := s.GetExisting(ctx, []string{"B0AAA00001", "B0AAA00002", "B0AAA00003"}, time.Hour)
	require.NoError(t, err)
	require.Len(t, existing, 1)
	require.Contains(t, existing, "B0AAA00001")
}

func TestClearOldCachesSkipsDownloadedAndReferenced(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	s := New(db)

	_, err := s.UpsertMany(ctx, []models.Book{sampleBook("B0AAA00001"), sampleBook("B0AAA00002"), sampleBook("B0AAA00003")})
	require.NoError(t, err)
	require.NoError(t, s.MarkDownloaded(ctx, "B0AAA00001"))

	_, err = db.ExecContext(ctx, "INSERT INTO requests (id, book_asin) VALUES (1, ?)", "B0AAA00002")
	require.NoError(t, err)

	// Backdate updated_at on all three so they're eligible by age.
	_, err = db.ExecContext(ctx, "UPDATE books SET updated_at = ?", time.Now().Add(-48*time.Hour))
	require.NoError(t, err)

	deleted, err := s.ClearOldCaches(ctx, time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	remaining, err := s.GetExisting(ctx, []string{"B0AAA00001", "B0AAA00002", "B0AAA00003"}, 100*time.Hour)
	require.NoError(t, err)
	require.Contains(t, remaining, "B0AAA00001")
	require.Contains(t, remaining, "B0AAA00002")
	require.NotContains(t, remaining, "B0AAA00003")
}
