package importer

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/bookarr/bookarr/internal/database"
	"github.com/bookarr/bookarr/internal/importsession"
	"github.com/bookarr/bookarr/internal/models"
)

type fakeMetadataClient struct {
	searchResults map[string][]string
	books         map[string]*models.Book
}

func (f *fakeMetadataClient) Search(_ context.Context, query string) ([]string, error) {
	return f.searchResults[query], nil
}

func (f *fakeMetadataClient) FetchByID(_ context.Context, id, _ string) (*models.Book, error) {
	return f.books[id], nil
}

func setupScanDB(t *testing.T) *database.DB {
	t.Helper()
	dbName := "file:" + t.Name() + "?mode=memory&cache=shared"
	sqlDB, err := sql.Open("sqlite", dbName)
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	_, err = sqlDB.Exec(`
		CREATE TABLE import_sessions (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			root_path  TEXT NOT NULL,
			status     TEXT NOT NULL DEFAULT 'scanning',
			created_at TIMESTAMP NOT NULL,
			owner_user TEXT NOT NULL
		);
		CREATE TABLE import_items (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id      INTEGER NOT NULL REFERENCES import_sessions(id) ON DELETE CASCADE,
			source_path     TEXT NOT NULL,
			detected_title  TEXT NOT NULL DEFAULT '',
			detected_author TEXT NOT NULL DEFAULT '',
			match_asin      TEXT,
			match_score     REAL NOT NULL DEFAULT 0,
			status          TEXT NOT NULL DEFAULT 'pending',
			error_msg       TEXT NOT NULL DEFAULT ''
		);
	`)
	require.NoError(t, err)
	return database.NewForTest(sqlDB)
}

func TestRunScanFindsAndMatchesUnits(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Susan Cain", "Quiet"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Susan Cain", "Quiet", "Quiet.m4b"), []byte("x"), 0o644))

	client := &fakeMetadataClient{
		searchResults: map[string][]string{"Quiet": {"B0AAA00001"}},
		books:         map[string]*models.Book{"B0AAA00001": {ASIN: "B0AAA00001", Title: "Quiet", Authors: []string{"Susan Cain"}}},
	}

	db := setupScanDB(t)
	ctx := context.Background()
	sessions := importsession.New(db)
	session, err := sessions.CreateSession(ctx, root, "alice")
	require.NoError(t, err)

	require.NoError(t, RunScan(ctx, sessions, client, session.ID, root))

	matched, err := sessions.ListItemsByStatus(ctx, session.ID, models.ItemMatched)
	require.NoError(t, err)
	require.Len(t, matched, 1)
	require.Equal(t, "B0AAA00001", *matched[0].MatchASIN)

	finalSession, err := sessions.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, models.SessionReviewReady, finalSession.Status)
}

func TestRunScanDoesNotDuplicateExistingItems(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Author", "Book"), 0o755))
	path := filepath.Join(root, "Author", "Book", "Book.m4b")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	client := &fakeMetadataClient{}

	db := setupScanDB(t)
	ctx := context.Background()
	sessions := importsession.New(db)
	session, err := sessions.CreateSession(ctx, root, "alice")
	require.NoError(t, err)
	_, err = sessions.CreateItem(ctx, session.ID, path, "Book", "Author")
	require.NoError(t, err)
	require.NoError(t, sessions.SetItemMatch(ctx, 1, "B0EXISTING", 1.0, models.ItemMatched))

	require.NoError(t, RunScan(ctx, sessions, client, session.ID, root))

	matched, err := sessions.ListItemsByStatus(ctx, session.ID, models.ItemMatched)
	require.NoError(t, err)
	require.Len(t, matched, 1, "re-scanning must not duplicate or re-match an existing item")
}
