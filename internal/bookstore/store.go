// Package bookstore implements the audiobook store (§4.D): upsert and
// lookup of Book records with freshness-gated reads, merge-on-conflict
// writes, and a background janitor that reclaims stale, unreferenced
// records.
package bookstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/bookarr/bookarr/internal/apperr"
	"github.com/bookarr/bookarr/internal/database"
	"github.com/bookarr/bookarr/internal/models"
)

type Store struct {
	db *database.DB
}

func New(db *database.DB) *Store {
	return &Store{db: db}
}

// GetExisting returns only the books among identifiers whose updated_at
// is within ttl and whose series list is non-empty (the freshness +
// completeness gate). Anything stale or incomplete is simply absent from
// the result so the caller re-fetches it.
func (s *Store) GetExisting(ctx context.Context, identifiers []string, ttl time.Duration) (map[string]*models.Book, error) {
	out := make(map[string]*models.Book, len(identifiers))
	if len(identifiers) == 0 {
		return out, nil
	}

	now := time.Now()
	for _, id := range identifiers {
		book, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if book == nil {
			continue
		}
		if book.IsFresh(now, ttl) {
			out[id] = book
		}
	}
	return out, nil
}

func (s *Store) get(ctx context.Context, asin string) (*models.Book, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT asin, title, subtitle, authors, narrators, cover_url, release_date,
		       runtime_min, series, series_index, genres, publisher, description,
		       language, downloaded, updated_at
		FROM books WHERE asin = ?`, asin)

	book, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "bookstore: get %q", asin)
	}
	return book, nil
}

// Get returns a single book regardless of freshness, or nil if absent.
func (s *Store) Get(ctx context.Context, asin string) (*models.Book, error) {
	return s.get(ctx, asin)
}

// UpsertMany merges incoming books into the store: existing rows keep
// their downloaded flag and have every other field overwritten; new
// records are inserted as-is. Returns the store-attached result set.
func (s *Store) UpsertMany(ctx context.Context, books []models.Book) ([]models.Book, error) {
	out := make([]models.Book, 0, len(books))
	for _, b := range books {
		merged, err := s.upsertOne(ctx, b)
		if err != nil {
			return nil, err
		}
		out = append(out, *merged)
	}
	return out, nil
}

func (s *Store) upsertOne(ctx context.Context, b models.Book) (*models.Book, error) {
	existing, err := s.get(ctx, b.ASIN)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		b.Downloaded = existing.Downloaded
	}
	b.UpdatedAt = time.Now()

	authors, err := json.Marshal(b.Authors)
	if err != nil {
		return nil, errors.Wrap(err, "bookstore: marshal authors")
	}
	narrators, err := json.Marshal(b.Narrators)
	if err != nil {
		return nil, errors.Wrap(err, "bookstore: marshal narrators")
	}
	series, err := json.Marshal(b.Series)
	if err != nil {
		return nil, errors.Wrap(err, "bookstore: marshal series")
	}
	genres, err := json.Marshal(b.Genres)
	if err != nil {
		return nil, errors.Wrap(err, "bookstore: marshal genres")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO books (asin, title, subtitle, authors, narrators, cover_url, release_date,
		                    runtime_min, series, series_index, genres, publisher, description,
		                    language, downloaded, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(asin) DO UPDATE SET
			title = excluded.title, subtitle = excluded.subtitle, authors = excluded.authors,
			narrators = excluded.narrators, cover_url = excluded.cover_url,
			release_date = excluded.release_date, runtime_min = excluded.runtime_min,
			series = excluded.series, series_index = excluded.series_index,
			genres = excluded.genres, publisher = excluded.publisher,
			description = excluded.description, language = excluded.language,
			downloaded = excluded.downloaded, updated_at = excluded.updated_at
	`, b.ASIN, b.Title, b.Subtitle, string(authors), string(narrators), b.CoverURL, b.ReleaseDate,
		b.RuntimeMin, string(series), b.SeriesIndex, string(genres), b.Publisher, b.Description,
		b.Language, b.Downloaded, b.UpdatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "bookstore: upsert %q", b.ASIN)
	}

	return &b, nil
}

// MarkDownloaded sets the downloaded flag. It is never cleared by the
// metadata pipeline (§3 invariant); only K (the processor) and manual
// admin action call this.
func (s *Store) MarkDownloaded(ctx context.Context, asin string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE books SET downloaded = 1, updated_at = ? WHERE asin = ?", time.Now(), asin)
	if err != nil {
		return errors.Wrapf(err, "bookstore: mark downloaded %q", asin)
	}
	return nil
}

// Delete removes asin, failing with an apperr.Conflict if a Request still
// references it (the last-resort guard at the storage boundary).
func (s *Store) Delete(ctx context.Context, asin string) error {
	var refs int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM requests WHERE book_asin = ?", asin).Scan(&refs); err != nil {
		return errors.Wrapf(err, "bookstore: count references to %q", asin)
	}
	if refs > 0 {
		return apperr.Conflict(fmt.Sprintf("book %s is still referenced by a request", asin))
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM books WHERE asin = ?", asin)
	if err != nil {
		return errors.Wrapf(err, "bookstore: delete %q", asin)
	}
	return nil
}

// ClearOldCaches is the background janitor (§4.D): deletes any Book
// older than ttl that is not referenced by a Request and is not flagged
// downloaded. Returns the number of rows removed.
func (s *Store) ClearOldCaches(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().Add(-ttl)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM books
		WHERE updated_at < ?
		  AND downloaded = 0
		  AND asin NOT IN (SELECT DISTINCT book_asin FROM requests)
	`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "bookstore: clear old caches")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "bookstore: rows affected")
	}
	if n > 0 {
		log.Debug().Int64("deleted", n).Msg("bookstore: janitor reclaimed stale books")
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (*models.Book, error) {
	var b models.Book
	var authors, narrators, series, genres string
	var releaseDate sql.NullTime

	err := row.Scan(&b.ASIN, &b.Title, &b.Subtitle, &authors, &narrators, &b.CoverURL,
		&releaseDate, &b.RuntimeMin, &series, &b.SeriesIndex, &genres, &b.Publisher,
		&b.Description, &b.Language, &b.Downloaded, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if releaseDate.Valid {
		b.ReleaseDate = &releaseDate.Time
	}
	if err := json.Unmarshal([]byte(authors), &b.Authors); err != nil {
		return nil, errors.Wrap(err, "bookstore: unmarshal authors")
	}
	if err := json.Unmarshal([]byte(narrators), &b.Narrators); err != nil {
		return nil, errors.Wrap(err, "bookstore: unmarshal narrators")
	}
	if err := json.Unmarshal([]byte(series), &b.Series); err != nil {
		return nil, errors.Wrap(err, "bookstore: unmarshal series")
	}
	if err := json.Unmarshal([]byte(genres), &b.Genres); err != nil {
		return nil, errors.Wrap(err, "bookstore: unmarshal genres")
	}
	return &b, nil
}
