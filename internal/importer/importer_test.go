package importer

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/bookarr/bookarr/internal/bookstore"
	"github.com/bookarr/bookarr/internal/config"
	"github.com/bookarr/bookarr/internal/database"
	"github.com/bookarr/bookarr/internal/importsession"
	"github.com/bookarr/bookarr/internal/metadata"
	"github.com/bookarr/bookarr/internal/models"
	"github.com/bookarr/bookarr/internal/processor"
	"github.com/bookarr/bookarr/internal/request"
)

func setupImporterDB(t *testing.T) *database.DB {
	t.Helper()
	dbName := "file:" + t.Name() + "?mode=memory&cache=shared"
	sqlDB, err := sql.Open("sqlite", dbName)
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	_, err = sqlDB.Exec(`
		CREATE TABLE config (key TEXT PRIMARY KEY, value TEXT NOT NULL);
		CREATE TABLE books (
			asin TEXT PRIMARY KEY, title TEXT, subtitle TEXT, authors TEXT, narrators TEXT,
			cover_url TEXT, release_date TIMESTAMP, runtime_min INTEGER, series TEXT,
			series_index TEXT, genres TEXT, publisher TEXT, description TEXT, language TEXT,
			downloaded BOOLEAN, updated_at TIMESTAMP
		);
		CREATE TABLE requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			book_asin TEXT NOT NULL,
			user TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			torrent_hash TEXT,
			download_progress REAL NOT NULL DEFAULT 0,
			download_state TEXT NOT NULL DEFAULT '',
			processing_status TEXT NOT NULL DEFAULT 'pending',
			UNIQUE(book_asin, user)
		);
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

func TestImporterRunMovesMatchedItemAndCompletesSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"asin": "B0AAA00001", "title": "Quiet", "authors": []map[string]string{{"name": "Susan Cain"}},
		})
	}))
	defer srv.Close()

	db := setupImporterDB(t)
	ctx := context.Background()
	cfg := config.New(db)
	require.NoError(t, cfg.Load(ctx))

	libraryRoot := t.TempDir()
	require.NoError(t, cfg.Set(ctx, config.KeyLibraryPath, libraryRoot))
	require.NoError(t, cfg.Set(ctx, config.KeyQbitCompleteAction, string(models.ActionMove)))

	books := bookstore.New(db)
	reqs := request.NewStore(db)
	sessions := importsession.New(db)
	meta := metadata.New(cfg, metadata.PrimaryProvider{}, metadata.SecondaryProvider{}, srv.URL, srv.URL)
	proc := processor.New(reqs, books, cfg)
	im := New(sessions, reqs, books, meta, proc, cfg)

	download := t.TempDir()
	src := filepath.Join(download, "Quiet.m4b")
	require.NoError(t, os.WriteFile(src, []byte("fake audio"), 0o644))

	session, err := sessions.CreateSession(ctx, libraryRoot, "alice")
	require.NoError(t, err)
	item, err := sessions.CreateItem(ctx, session.ID, src, "Quiet", "Susan Cain")
	require.NoError(t, err)
	require.NoError(t, sessions.SetItemMatch(ctx, item.ID, "B0AAA00001", 0.98, models.ItemMatched))

	require.NoError(t, im.Run(ctx, session))

	imported, err := sessions.ListItemsByStatus(ctx, session.ID, models.ItemImported)
	require.NoError(t, err)
	require.Len(t, imported, 1)

	finalSession, err := sessions.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, models.SessionCompleted, finalSession.Status)

	_, err = os.Stat(src)
	require.True(t, os.IsNotExist(err), "move should remove the source file")
}

func TestImporterRunRecordsErrorWhenBookMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	db := setupImporterDB(t)
	ctx := context.Background()
	cfg := config.New(db)
	require.NoError(t, cfg.Load(ctx))
	require.NoError(t, cfg.Set(ctx, config.KeyLibraryPath, t.TempDir()))

	books := bookstore.New(db)
	reqs := request.NewStore(db)
	sessions := importsession.New(db)
	meta := metadata.New(cfg, metadata.PrimaryProvider{}, metadata.SecondaryProvider{}, srv.URL, srv.URL)
	proc := processor.New(reqs, books, cfg)
	im := New(sessions, reqs, books, meta, proc, cfg)

	session, err := sessions.CreateSession(ctx, t.TempDir(), "alice")
	require.NoError(t, err)
	item, err := sessions.CreateItem(ctx, session.ID, "/nowhere/book.m4b", "Ghost", "Nobody")
	require.NoError(t, err)
	require.NoError(t, sessions.SetItemMatch(ctx, item.ID, "B0MISSING1", 0.7, models.ItemMatched))

	require.NoError(t, im.Run(ctx, session))

	failed, err := sessions.ListItemsByStatus(ctx, session.ID, models.ItemError)
	require.NoError(t, err)
	require.Len(t, failed, 1)
}
