// Package importsession persists ImportSessions and their ImportItems
// (§3, §4.L-N): the scanner's findings, the reconcile engine's match
// results, and the import executor's outcomes all land here.
package importsession

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/bookarr/bookarr/internal/database"
	"github.com/bookarr/bookarr/internal/models"
)

type Store struct {
	db *database.DB
}

func New(db *database.DB) *Store {
	return &Store{db: db}
}

// CreateSession inserts a new session in state scanning.
func (s *Store) CreateSession(ctx context.Context, rootPath, ownerUser string) (*models.ImportSession, error) {
	sess := &models.ImportSession{
		RootPath:  rootPath,
		Status:    models.SessionScanning,
		CreatedAt: time.Now(),
		OwnerUser: ownerUser,
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO import_sessions (root_path, status, created_at, owner_user)
		VALUES (?, ?, ?, ?)`, sess.RootPath, sess.Status, sess.CreatedAt, sess.OwnerUser)
	if err != nil {
		return nil, errors.Wrap(err, "importsession: create session")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "importsession: last insert id")
	}
	sess.ID = id
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, id int64) (*models.ImportSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, root_path, status, created_at, owner_user FROM import_sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "importsession: get session %d", id)
	}
	return sess, nil
}

func (s *Store) SetSessionStatus(ctx context.Context, id int64, status models.SessionStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE import_sessions SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return errors.Wrapf(err, "importsession: set session %d status", id)
	}
	return nil
}

// ListActiveSessions returns every session not yet in a terminal state,
// for resuming work left over from a previous process lifetime.
func (s *Store) ListActiveSessions(ctx context.Context) ([]models.ImportSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, root_path, status, created_at, owner_user FROM import_sessions
		WHERE status NOT IN (?, ?) ORDER BY created_at`, models.SessionCompleted, models.SessionFailed)
	if err != nil {
		return nil, errors.Wrap(err, "importsession: list active sessions")
	}
	defer rows.Close()

	var out []models.ImportSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, errors.Wrap(err, "importsession: scan session")
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

// CreateItem inserts a pending item for a scanned unit, unless an item
// with the same source_path already exists in this session (re-running
// a scan must not duplicate items for files it already recorded).
func (s *Store) CreateItem(ctx context.Context, sessionID int64, sourcePath, detectedTitle, detectedAuthor string) (*models.ImportItem, error) {
	existing, err := s.GetItemBySourcePath(ctx, sessionID, sourcePath)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	item := &models.ImportItem{
		SessionID:      sessionID,
		SourcePath:     sourcePath,
		DetectedTitle:  detectedTitle,
		DetectedAuthor: detectedAuthor,
		Status:         models.ItemPending,
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO import_items (session_id, source_path, detected_title, detected_author, status)
		VALUES (?, ?, ?, ?, ?)`, item.SessionID, item.SourcePath, item.DetectedTitle, item.DetectedAuthor, item.Status)
	if err != nil {
		return nil, errors.Wrap(err, "importsession: create item")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "importsession: last insert id")
	}
	item.ID = id
	return item, nil
}

func (s *Store) GetItemBySourcePath(ctx context.Context, sessionID int64, sourcePath string) (*models.ImportItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, source_path, detected_title, detected_author,
		       match_asin, match_score, status, error_msg
		FROM import_items WHERE session_id = ? AND source_path = ?`, sessionID, sourcePath)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "importsession: get item by source path")
	}
	return item, nil
}

// SetItemMatch records a reconcile result.
func (s *Store) SetItemMatch(ctx context.Context, id int64, asin string, score float64, status models.ItemStatus) error {
	var asinVal sql.NullString
	if asin != "" {
		asinVal = sql.NullString{String: asin, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE import_items SET match_asin = ?, match_score = ?, status = ? WHERE id = ?`,
		asinVal, score, status, id)
	if err != nil {
		return errors.Wrapf(err, "importsession: set item %d match", id)
	}
	return nil
}

// SetItemOutcome records the import executor's per-item result.
func (s *Store) SetItemOutcome(ctx context.Context, id int64, status models.ItemStatus, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE import_items SET status = ?, error_msg = ? WHERE id = ?`, status, errMsg, id)
	if err != nil {
		return errors.Wrapf(err, "importsession: set item %d outcome", id)
	}
	return nil
}

// ListItemsByStatus returns every item in a session with the given
// status, in insertion order.
func (s *Store) ListItemsByStatus(ctx context.Context, sessionID int64, status models.ItemStatus) ([]models.ImportItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, source_path, detected_title, detected_author,
		       match_asin, match_score, status, error_msg
		FROM import_items WHERE session_id = ? AND status = ? ORDER BY id`, sessionID, status)
	if err != nil {
		return nil, errors.Wrap(err, "importsession: list items by status")
	}
	defer rows.Close()

	var out []models.ImportItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, errors.Wrap(err, "importsession: scan item")
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.ImportSession, error) {
	var sess models.ImportSession
	if err := row.Scan(&sess.ID, &sess.RootPath, &sess.Status, &sess.CreatedAt, &sess.OwnerUser); err != nil {
		return nil, err
	}
	return &sess, nil
}

func scanItem(row rowScanner) (*models.ImportItem, error) {
	var item models.ImportItem
	var matchASIN sql.NullString
	if err := row.Scan(&item.ID, &item.SessionID, &item.SourcePath, &item.DetectedTitle,
		&item.DetectedAuthor, &matchASIN, &item.MatchScore, &item.Status, &item.ErrorMsg); err != nil {
		return nil, err
	}
	if matchASIN.Valid {
		item.MatchASIN = &matchASIN.String
	}
	return &item, nil
}
