package monitor

import (
	"context"
	"database/sql"
	"testing"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/bookarr/bookarr/internal/bookstore"
	"github.com/bookarr/bookarr/internal/config"
	"github.com/bookarr/bookarr/internal/database"
	"github.com/bookarr/bookarr/internal/models"
	"github.com/bookarr/bookarr/internal/request"
)

// Tests below exercise reconcileOne's state-transition decisions against
// real sqlite-backed stores and hand-built qbt.Torrent data. The
// completion path (invoking a Processor, then tagging/deleting the
// torrent) needs a live torrent client and is exercised instead by
// monitor's own good-faith read of the torrentclient package's API, the
// way client_test.go scopes torrentclient's own tests to non-network
// logic.

func setupTestDB(t *testing.T) *database.DB {
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
	`)
	require.NoError(t, err)
	return database.NewForTest(sqlDB)
}

func newMonitor(t *testing.T) (*Monitor, *request.Store, *bookstore.Store) {
	t.Helper()
	db := setupTestDB(t)
	store := request.NewStore(db)
	books := bookstore.New(db)
	cfg := config.New(db)
	require.NoError(t, cfg.Load(context.Background()))
	return New(store, books, cfg, nil, nil), store, books
}

func newActiveRequest(asin string, hash *string, state models.ProcessingStatus) *models.Request {
	now := time.Now()
	return &models.Request{
		BookASIN:    asin,
		User:        "alice",
		CreatedAt:   now,
		UpdatedAt:   now,
		Status:      state,
		TorrentHash: hash,
	}
}

func TestHasTagMatchesExactSegment(t *testing.T) {
	require.True(t, hasTag("foo,asin:B0AAA00001,bar", "asin:B0AAA00001"))
	require.False(t, hasTag("foo,asin:B0AAA000019,bar", "asin:B0AAA00001"))
}

func TestLocateFindsByHash(t *testing.T) {
	hash := "deadbeef"
	r := &models.Request{BookASIN: "B0AAA00001", TorrentHash: &hash}
	byHash := map[string]qbt.Torrent{"deadbeef": {Hash: "deadbeef"}}

	m := &Monitor{}
	got, ok := m.locate(r, byHash)
	require.True(t, ok)
	require.Equal(t, "deadbeef", got.Hash)
}

func TestLocateFallsBackToTagAndSelfHeals(t *testing.T) {
	r := &models.Request{BookASIN: "B0AAA00001"}
	byHash := map[string]qbt.Torrent{
		"newhash": {Hash: "newhash", Tags: "asin:B0AAA00001,other"},
	}

	m := &Monitor{}
	got, ok := m.locate(r, byHash)
	require.True(t, ok)
	require.Equal(t, "newhash", got.Hash)
	require.NotNil(t, r.TorrentHash)
	require.Equal(t, "newhash", *r.TorrentHash)
}

func TestLocateReturnsNotFoundWhenNoMatch(t *testing.T) {
	r := &models.Request{BookASIN: "B0AAA00001"}
	m := &Monitor{}
	_, ok := m.locate(r, map[string]qbt.Torrent{})
	require.False(t, ok)
}

func TestReconcileOneSkipsBookAlreadyDownloaded(t *testing.T) {
	ctx := context.Background()
	m, _, books := newMonitor(t)
	_, err := books.UpsertMany(ctx, []models.Book{{ASIN: "B0AAA00001", Title: "Mistborn", Downloaded: true}})
	require.NoError(t, err)

	r := newActiveRequest("B0AAA00001", nil, models.ProcessingStatus{State: models.StateDownloadInitiated})
	m.reconcileOne(ctx, r, map[string]qbt.Torrent{})

	require.Equal(t, models.StateDownloadInitiated, r.Status.State)
}

func TestReconcileOneMarksTorrentMissingWhenNotFound(t *testing.T) {
	ctx := context.Background()
	m, store, books := newMonitor(t)
	_, err := books.UpsertMany(ctx, []models.Book{{ASIN: "B0AAA00001", Title: "Mistborn"}})
	require.NoError(t, err)

	hash := "deadbeef"
	r := newActiveRequest("B0AAA00001", &hash, models.ProcessingStatus{State: models.StateDownloadInitiated})
	require.NoError(t, store.Insert(ctx, r))

	m.reconcileOne(ctx, r, map[string]qbt.Torrent{})

	require.Equal(t, models.StateFailed, r.Status.State)
	require.Equal(t, "torrent missing", r.Status.Reason)
	require.Equal(t, "torrent_missing", r.DownloadState)
}

func TestReconcileOneUpdatesProgressWhileDownloading(t *testing.T) {
	ctx := context.Background()
	m, store, books := newMonitor(t)
	_, err := books.UpsertMany(ctx, []models.Book{{ASIN: "B0AAA00001", Title: "Mistborn"}})
	require.NoError(t, err)

	hash := "deadbeef"
	r := newActiveRequest("B0AAA00001", &hash, models.ProcessingStatus{State: models.StateDownloadInitiated})
	require.NoError(t, store.Insert(ctx, r))

	byHash := map[string]qbt.Torrent{"deadbeef": {Hash: "deadbeef", Progress: 0.5, State: qbt.TorrentStateDownloading}}
	m.reconcileOne(ctx, r, byHash)

	require.Equal(t, 0.45, r.DownloadProgress)
	require.Equal(t, models.StateDownloadInitiated, r.Status.State)
}

func TestReconcileOneSkipsWhenAlreadyQueued(t *testing.T) {
	ctx := context.Background()
	m, store, books := newMonitor(t)
	_, err := books.UpsertMany(ctx, []models.Book{{ASIN: "B0AAA00001", Title: "Mistborn"}})
	require.NoError(t, err)

	hash := "deadbeef"
	r := newActiveRequest("B0AAA00001", &hash, models.ProcessingStatus{State: models.StateQueued})
	require.NoError(t, store.Insert(ctx, r))

	byHash := map[string]qbt.Torrent{"deadbeef": {Hash: "deadbeef", Progress: 1.0, State: qbt.TorrentStateUploading}}
	m.reconcileOne(ctx, r, byHash)

	require.Equal(t, models.StateQueued, r.Status.State)
}
