package request

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bookarr/bookarr/internal/apperr"
	"github.com/bookarr/bookarr/internal/database"
	"github.com/bookarr/bookarr/internal/models"
)

// Store is the requests-table repository. It never enforces the
// state-machine's transition rules itself (that's Engine's job) — it only
// persists whatever status it's handed.
type Store struct {
	db *database.DB
}

// NewStore wires a Store to the shared database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Get loads the (book, user) request row, or nil if none exists.
func (s *Store) Get(ctx context.Context, bookASIN, user string) (*models.Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, book_asin, user, created_at, updated_at, torrent_hash,
		       download_progress, download_state, processing_status
		FROM requests WHERE book_asin = ? AND user = ?`, bookASIN, user)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return r, nil
}

// ListForBook returns every request row across all users for a book, used
// by the admin-wide delete path.
func (s *Store) ListForBook(ctx context.Context, bookASIN string) ([]models.Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, book_asin, user, created_at, updated_at, torrent_hash,
		       download_progress, download_state, processing_status
		FROM requests WHERE book_asin = ?`, bookASIN)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []models.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Insert creates a new pending row. A pre-existing (book, user) row
// surfaces as apperr.Conflict per §4.H's "duplicate creation is a no-op
// with a conflict error" rule.
func (s *Store) Insert(ctx context.Context, r *models.Request) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO requests (book_asin, user, created_at, updated_at,
		                       torrent_hash, download_progress, download_state,
		                       processing_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.BookASIN, r.User, r.CreatedAt, r.UpdatedAt, r.TorrentHash,
		r.DownloadProgress, r.DownloadState, r.Status.String())
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict(fmt.Sprintf("request already exists for %s/%s", r.BookASIN, r.User))
		}
		return fmt.Errorf("insert request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert request: last insert id: %w", err)
	}
	r.ID = id
	return nil
}

// Update persists every mutable field of r, keyed by its ID.
func (s *Store) Update(ctx context.Context, r *models.Request) error {
	r.UpdatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE requests
		SET updated_at = ?, torrent_hash = ?, download_progress = ?,
		    download_state = ?, processing_status = ?
		WHERE id = ?`,
		r.UpdatedAt, r.TorrentHash, r.DownloadProgress, r.DownloadState,
		r.Status.String(), r.ID)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	return nil
}

// Delete removes the single (book, user) row.
func (s *Store) Delete(ctx context.Context, bookASIN, user string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM requests WHERE book_asin = ? AND user = ?`, bookASIN, user)
	if err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	return nil
}

// DeleteAllForBook removes every request row for a book, the admin-wide
// delete path.
func (s *Store) DeleteAllForBook(ctx context.Context, bookASIN string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM requests WHERE book_asin = ?`, bookASIN)
	if err != nil {
		return fmt.Errorf("delete requests for book: %w", err)
	}
	return nil
}

// ListByProcessingState finds every request in a given state, used by the
// download monitor's reconcile sweep (§4.J).
func (s *Store) ListByProcessingState(ctx context.Context, state models.ProcessingState) ([]models.Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, book_asin, user, created_at, updated_at, torrent_hash,
		       download_progress, download_state, processing_status
		FROM requests WHERE processing_status LIKE ? || '%'`, string(state))
	if err != nil {
		return nil, fmt.Errorf("list requests by state: %w", err)
	}
	defer rows.Close()

	var out []models.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ListActive returns every request the download monitor's sweep (§4.J)
// must consider: a torrent_hash already assigned, or a processing status
// past pending, excluding rows already in a terminal failed state.
func (s *Store) ListActive(ctx context.Context) ([]models.Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, book_asin, user, created_at, updated_at, torrent_hash,
		       download_progress, download_state, processing_status
		FROM requests
		WHERE (torrent_hash IS NOT NULL OR processing_status != 'pending')
		  AND processing_status NOT LIKE 'failed:%'`)
	if err != nil {
		return nil, fmt.Errorf("list active requests: %w", err)
	}
	defer rows.Close()

	var out []models.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.Request, error) {
	var r models.Request
	var status string
	if err := row.Scan(&r.ID, &r.BookASIN, &r.User, &r.CreatedAt, &r.UpdatedAt,
		&r.TorrentHash, &r.DownloadProgress, &r.DownloadState, &status); err != nil {
		return nil, err
	}
	r.Status = models.ParseProcessingStatus(status)
	return &r, nil
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite wraps the SQLite error code in its own error type
	// whose message is stable enough to match on; there is no portable
	// typed sentinel exposed for constraint violations.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
