package request

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/bookarr/bookarr/internal/bookstore"
	"github.com/bookarr/bookarr/internal/config"
	"github.com/bookarr/bookarr/internal/database"
	"github.com/bookarr/bookarr/internal/enrich"
	"github.com/bookarr/bookarr/internal/indexer"
	"github.com/bookarr/bookarr/internal/metadata"
	"github.com/bookarr/bookarr/internal/models"
)

type fakeLibrary struct{ has bool }

func (f fakeLibrary) Contains(ctx context.Context, asin string) (bool, error) { return f.has, nil }

func setupEngineDB(t *testing.T) *database.DB {
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

// newTestEngine wires a full Engine against a primary metadata provider
// server and (optionally) an indexer server; pass "" for indexerBaseURL to
// leave the aggregator config unset.
func newTestEngine(t *testing.T, metaBaseURL, indexerBaseURL string, library LibraryChecker) (*Engine, *config.Store) {
	t.Helper()
	db := setupEngineDB(t)

	cfg := config.New(db)
	require.NoError(t, cfg.Load(context.Background()))
	if indexerBaseURL != "" {
		require.NoError(t, cfg.Set(context.Background(), config.KeyProwlarrBaseURL, indexerBaseURL))
		require.NoError(t, cfg.Set(context.Background(), config.KeyProwlarrAPIKey, "test-key"))
	}

	books := bookstore.New(db)
	meta := metadata.New(cfg, metadata.PrimaryProvider{}, metadata.SecondaryProvider{}, metaBaseURL, metaBaseURL)

	idxClient := indexer.NewClient(indexer.ClientConfig{BaseURL: indexerBaseURL, APIKey: "test-key"})
	gateway := indexer.NewGateway(idxClient, time.Hour)

	store := NewStore(db)
	registry := enrich.NewRegistry()

	engine := NewEngine(store, books, meta, gateway, registry, cfg, nil, library)
	return engine, cfg
}

func metaServer(t *testing.T, book map[string]any, found bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !found {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(book)
	}))
}

func TestCreateRequestFailsWhenBookNotFound(t *testing.T) {
	srv := metaServer(t, nil, false)
	defer srv.Close()

	engine, _ := newTestEngine(t, srv.URL, "", nil)
	_, err := engine.CreateRequest(context.Background(), "B0MISSING1", "alice", "us", models.GroupTrusted)
	require.Error(t, err)
}

func TestCreateRequestConflictsWhenAlreadyDownloaded(t *testing.T) {
	srv := metaServer(t, map[string]any{
		"asin": "B0TEST00001", "title": "Mistborn", "downloaded": true,
	}, true)
	defer srv.Close()

	engine, _ := newTestEngine(t, srv.URL, "", nil)
	_, err := engine.CreateRequest(context.Background(), "B0TEST00001", "alice", "us", models.GroupTrusted)
	require.Error(t, err)
}

func TestCreateRequestConflictsWhenLibraryAlreadyHasBook(t *testing.T) {
	srv := metaServer(t, map[string]any{
		"asin": "B0TEST00001", "title": "Mistborn",
	}, true)
	defer srv.Close()

	engine, _ := newTestEngine(t, srv.URL, "", fakeLibrary{has: true})
	_, err := engine.CreateRequest(context.Background(), "B0TEST00001", "alice", "us", models.GroupTrusted)
	require.Error(t, err)
}

func TestCreateRequestInsertsPendingRow(t *testing.T) {
	srv := metaServer(t, map[string]any{
		"asin": "B0TEST00001", "title": "Mistborn",
	}, true)
	defer srv.Close()

	engine, _ := newTestEngine(t, srv.URL, "", fakeLibrary{has: false})
	r, err := engine.CreateRequest(context.Background(), "B0TEST00001", "alice", "us", models.GroupUntrusted)
	require.NoError(t, err)
	require.Equal(t, models.StatePending, r.Status.State)
}

func TestCreateRequestDuplicateReturnsConflict(t *testing.T) {
	srv := metaServer(t, map[string]any{
		"asin": "B0TEST00001", "title": "Mistborn",
	}, true)
	defer srv.Close()

	engine, _ := newTestEngine(t, srv.URL, "", nil)
	_, err := engine.CreateRequest(context.Background(), "B0TEST00001", "alice", "us", models.GroupUntrusted)
	require.NoError(t, err)

	_, err = engine.CreateRequest(context.Background(), "B0TEST00001", "alice", "us", models.GroupUntrusted)
	require.Error(t, err)
}

func TestQueryAndDispatchFailsWithoutProwlarrConfig(t *testing.T) {
	srv := metaServer(t, map[string]any{"asin": "B0TEST00001", "title": "Mistborn"}, true)
	defer srv.Close()

	engine, _ := newTestEngine(t, srv.URL, "", nil)

	_, err := engine.QueryAndDispatch(context.Background(), "B0TEST00001", "alice")
	require.Error(t, err)
}

func TestQueryAndDispatchReturnsUncachedWhenGatewayMiss(t *testing.T) {
	metaSrv := metaServer(t, map[string]any{"asin": "B0TEST00001", "title": "Mistborn"}, true)
	defer metaSrv.Close()
	idxSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("indexer should not be called on an uncached, non-forced query")
	}))
	defer idxSrv.Close()

	engine, _ := newTestEngine(t, metaSrv.URL, idxSrv.URL, nil)

	_, err := engine.CreateRequest(context.Background(), "B0TEST00001", "alice", "us", models.GroupUntrusted)
	require.NoError(t, err)

	state, err := engine.QueryAndDispatch(context.Background(), "B0TEST00001", "alice")
	require.NoError(t, err)
	require.Equal(t, DispatchUncached, state)
}

func TestQueryAndDispatchReturnsNoSourcesWhenAutoDownloadDisabled(t *testing.T) {
	metaSrv := metaServer(t, map[string]any{"asin": "B0TEST00001", "title": "Mistborn"}, true)
	defer metaSrv.Close()
	idxSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer idxSrv.Close()

	engine, cfg := newTestEngine(t, metaSrv.URL, idxSrv.URL, nil)
	require.NoError(t, cfg.SetBool(context.Background(), config.KeyAutoDownload, false))

	_, err := engine.CreateRequest(context.Background(), "B0TEST00001", "alice", "us", models.GroupUntrusted)
	require.NoError(t, err)

	// QueryAndDispatch never populates the cache itself (on an empty cache
	// it reports uncached), so force a cache entry directly via a forced
	// gateway query to exercise the ranking short-circuit.
	_, err = engine.gateway.ForceQuery(context.Background(), &models.Book{ASIN: "B0TEST00001", Title: "Mistborn"}, nil, nil)
	require.NoError(t, err)

	state, err := engine.QueryAndDispatch(context.Background(), "B0TEST00001", "alice")
	require.NoError(t, err)
	require.Equal(t, DispatchNoSources, state)
}

func TestDeleteRequestWithNilTorrentClientRemovesRow(t *testing.T) {
	srv := metaServer(t, map[string]any{"asin": "B0TEST00001", "title": "Mistborn"}, true)
	defer srv.Close()

	engine, _ := newTestEngine(t, srv.URL, "", nil)
	_, err := engine.CreateRequest(context.Background(), "B0TEST00001", "alice", "us", models.GroupUntrusted)
	require.NoError(t, err)

	require.NoError(t, engine.DeleteRequest(context.Background(), "B0TEST00001", "alice", false))

	got, err := engine.store.Get(context.Background(), "B0TEST00001", "alice")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRetryRequestResetsToPending(t *testing.T) {
	srv := metaServer(t, map[string]any{"asin": "B0TEST00001", "title": "Mistborn"}, true)
	defer srv.Close()

	engine, _ := newTestEngine(t, srv.URL, "", nil)
	_, err := engine.CreateRequest(context.Background(), "B0TEST00001", "alice", "us", models.GroupUntrusted)
	require.NoError(t, err)

	hash := "deadbeef"
	r, err := engine.store.Get(context.Background(), "B0TEST00001", "alice")
	require.NoError(t, err)
	r.TorrentHash = &hash
	r.Status = models.ProcessingStatus{State: models.StateFailed, Reason: "boom"}
	require.NoError(t, engine.store.Update(context.Background(), r))

	require.NoError(t, engine.RetryRequest(context.Background(), "B0TEST00001", "alice"))

	got, err := engine.store.Get(context.Background(), "B0TEST00001", "alice")
	require.NoError(t, err)
	require.Equal(t, models.StatePending, got.Status.State)
	require.Nil(t, got.TorrentHash)
}

func TestHashFromMagnetExtractsHex(t *testing.T) {
	hash, err := hashFromMagnet("magnet:?xt=urn:btih:DEADBEEFCAFE1234&dn=Mistborn")
	require.NoError(t, err)
	require.Equal(t, "deadbeefcafe1234", hash)
}

func TestHashFromMagnetRejectsMissingHash(t *testing.T) {
	_, err := hashFromMagnet("magnet:?dn=Mistborn")
	require.Error(t, err)
}
