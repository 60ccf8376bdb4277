package request

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

func newRequest(asin, user string) *models.Request {
	now := time.Now()
	return &models.Request{
		BookASIN:      asin,
		User:          user,
		CreatedAt:     now,
		UpdatedAt:     now,
		DownloadState: "pending",
		Status:        models.ProcessingStatus{State: models.StatePending},
	}
}

func TestStoreInsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewStore(setupTestDB(t))

	r := newRequest("B0TEST00001", "alice")
	require.NoError(t, s.Insert(ctx, r))
	require.NotZero(t, r.ID)

	got, err := s.Get(ctx, "B0TEST00001", "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, models.StatePending, got.Status.State)
}

func TestStoreGetReturnsNilForMissingRow(t *testing.T) {
	ctx := context.Background()
	s := NewStore(setupTestDB(t))

	got, err := s.Get(ctx, "nope", "alice")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStoreInsertDuplicateReturnsConflict(t *testing.T) {
	ctx := context.Background()
	s := NewStore(setupTestDB(t))

	require.NoError(t, s.Insert(ctx, newRequest("B0TEST00001", "alice")))
	err := s.Insert(ctx, newRequest("B0TEST00001", "alice"))
	require.Error(t, err)
}

func TestStoreUpdatePersistsStatusAndHash(t *testing.T) {
	ctx := context.Background()
	s := NewStore(setupTestDB(t))

	r := newRequest("B0TEST00001", "alice")
	require.NoError(t, s.Insert(ctx, r))

	hash := "deadbeefcafe"
	r.TorrentHash = &hash
	r.Status = models.ProcessingStatus{State: models.StateDownloadInitiated}
	r.DownloadProgress = 0.5
	require.NoError(t, s.Update(ctx, r))

	got, err := s.Get(ctx, "B0TEST00001", "alice")
	require.NoError(t, err)
	require.Equal(t, models.StateDownloadInitiated, got.Status.State)
	require.Equal(t, &hash, got.TorrentHash)
	require.Equal(t, 0.5, got.DownloadProgress)
}

func TestStoreDeleteRemovesOnlyMatchingUser(t *testing.T) {
	ctx := context.Background()
	s := NewStore(setupTestDB(t))

	require.NoError(t, s.Insert(ctx, newRequest("B0TEST00001", "alice")))
	require.NoError(t, s.Insert(ctx, newRequest("B0TEST00001", "bob")))

	require.NoError(t, s.Delete(ctx, "B0TEST00001", "alice"))

	gone, err := s.Get(ctx, "B0TEST00001", "alice")
	require.NoError(t, err)
	require.Nil(t, gone)

	still, err := s.Get(ctx, "B0TEST00001", "bob")
	require.NoError(t, err)
	require.NotNil(t, still)
}

func TestStoreDeleteAllForBookRemovesEveryUser(t *testing.T) {
	ctx := context.Background()
	s := NewStore(setupTestDB(t))

	require.NoError(t, s.Insert(ctx, newRequest("B0TEST00001", "alice")))
	require.NoError(t, s.Insert(ctx, newRequest("B0TEST00001", "bob")))

	require.NoError(t, s.DeleteAllForBook(ctx, "B0TEST00001"))

	rows, err := s.ListForBook(ctx, "B0TEST00001")
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestStoreListByProcessingStateMatchesFailedReasonVariants(t *testing.T) {
	ctx := context.Background()
	s := NewStore(setupTestDB(t))

	failed := newRequest("B0TEST00001", "alice")
	failed.Status = models.Failed("disk full")
	require.NoError(t, s.Insert(ctx, failed))

	pending := newRequest("B0TEST00002", "alice")
	require.NoError(t, s.Insert(ctx, pending))

	rows, err := s.ListByProcessingState(ctx, models.StateFailed)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "disk full", rows[0].Status.Reason)
}
