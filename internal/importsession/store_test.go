package importsession

import (
	"context"
	"database/sql"
	"testing"

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

func TestCreateSessionDefaultsToScanning(t *testing.T) {
	store := New(setupTestDB(t))
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "/library/inbox", "alice")
	require.NoError(t, err)
	require.Equal(t, models.SessionScanning, sess.Status)
	require.NotZero(t, sess.ID)

	fetched, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, sess.RootPath, fetched.RootPath)
}

func TestCreateItemIsIdempotentBySourcePath(t *testing.T) {
	store := New(setupTestDB(t))
	ctx := context.Background()
	sess, err := store.CreateSession(ctx, "/library/inbox", "alice")
	require.NoError(t, err)

	first, err := store.CreateItem(ctx, sess.ID, "/library/inbox/Book/file.m4b", "Book", "Author")
	require.NoError(t, err)

	second, err := store.CreateItem(ctx, sess.ID, "/library/inbox/Book/file.m4b", "Book", "Author")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID, "re-scanning must not duplicate an existing item")
}

func TestSetItemMatchAndListByStatus(t *testing.T) {
	store := New(setupTestDB(t))
	ctx := context.Background()
	sess, err := store.CreateSession(ctx, "/library/inbox", "alice")
	require.NoError(t, err)
	item, err := store.CreateItem(ctx, sess.ID, "/library/inbox/Book/file.m4b", "Book", "Author")
	require.NoError(t, err)

	require.NoError(t, store.SetItemMatch(ctx, item.ID, "B0AAA00001", 0.98, models.ItemMatched))

	matched, err := store.ListItemsByStatus(ctx, sess.ID, models.ItemMatched)
	require.NoError(t, err)
	require.Len(t, matched, 1)
	require.NotNil(t, matched[0].MatchASIN)
	require.Equal(t, "B0AAA00001", *matched[0].MatchASIN)
}

func TestSetItemOutcomeRecordsError(t *testing.T) {
	store := New(setupTestDB(t))
	ctx := context.Background()
	sess, err := store.CreateSession(ctx, "/library/inbox", "alice")
	require.NoError(t, err)
	item, err := store.CreateItem(ctx, sess.ID, "/library/inbox/Book/file.m4b", "Book", "Author")
	require.NoError(t, err)

	require.NoError(t, store.SetItemOutcome(ctx, item.ID, models.ItemError, "disk full"))

	failed, err := store.ListItemsByStatus(ctx, sess.ID, models.ItemError)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, "disk full", failed[0].ErrorMsg)
}
