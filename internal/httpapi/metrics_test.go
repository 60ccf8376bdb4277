package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/bookarr/bookarr/internal/database"
	"github.com/bookarr/bookarr/internal/importsession"
	"github.com/bookarr/bookarr/internal/models"
	"github.com/bookarr/bookarr/internal/request"
)

func setupMetricsDB(t *testing.T) *database.DB {
	t.Helper()
	dbName := "file:" + t.Name() + "?mode=memory&cache=shared"
	sqlDB, err := sql.Open("sqlite", dbName)
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	_, err = sqlDB.Exec(`
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

func TestRequestCollectorExportsCountsByState(t *testing.T) {
	db := setupMetricsDB(t)
	ctx := context.Background()
	reqs := request.NewStore(db)
	sessions := importsession.New(db)

	now := time.Now()
	require.NoError(t, reqs.Insert(ctx, &models.Request{
		BookASIN: "B0AAA00001", User: "alice", CreatedAt: now, UpdatedAt: now,
		Status: models.ProcessingStatus{State: models.StateQueued},
	}))
	_, err := sessions.CreateSession(ctx, "/incoming", "alice")
	require.NoError(t, err)

	r := NewRouter(reqs, sessions, nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `bookarr_requests_by_state{state="queued"} 1`)
	require.Contains(t, rec.Body.String(), "bookarr_active_import_sessions 1")
}
