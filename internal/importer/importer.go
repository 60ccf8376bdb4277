// Package importer drives scanned library units through the match engine
// and matched ImportItems through the processor (§4.L-N), grounded on the
// original LibraryScanner's combined scan-and-match loop
// (original_source/app/internal/library/scanner.py) and the request
// package's Engine for the orchestrator shape.
package importer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bookarr/bookarr/internal/bookstore"
	"github.com/bookarr/bookarr/internal/config"
	"github.com/bookarr/bookarr/internal/importsession"
	"github.com/bookarr/bookarr/internal/metadata"
	"github.com/bookarr/bookarr/internal/models"
	"github.com/bookarr/bookarr/internal/processor"
	"github.com/bookarr/bookarr/internal/request"
)

// importFanOut bounds concurrent processor invocations (§4.N: "A
// semaphore bounds concurrency at 5").
const importFanOut = 5

const bookFetchTTL = 24 * time.Hour

// Importer drives a review_ready ImportSession's matched items through
// the processor (§4.N).
type Importer struct {
	sessions  *importsession.Store
	requests  *request.Store
	books     *bookstore.Store
	meta      *metadata.Client
	processor *processor.Processor
	cfg       *config.Store
}

func New(sessions *importsession.Store, requests *request.Store, books *bookstore.Store, meta *metadata.Client, proc *processor.Processor, cfg *config.Store) *Importer {
	return &Importer{sessions: sessions, requests: requests, books: books, meta: meta, processor: proc, cfg: cfg}
}

// Run drives every matched item in session through the processor,
// bounded to importFanOut concurrent in-flight imports, and marks the
// session completed once every item has settled.
func (im *Importer) Run(ctx context.Context, session *models.ImportSession) error {
	items, err := im.sessions.ListItemsByStatus(ctx, session.ID, models.ItemMatched)
	if err != nil {
		return err
	}

	if err := im.sessions.SetSessionStatus(ctx, session.ID, models.SessionImporting); err != nil {
		return err
	}

	sem := make(chan struct{}, importFanOut)
	var wg sync.WaitGroup

	for _, item := range items {
		item := item
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			im.importOne(ctx, session, item)
		}()
	}
	wg.Wait()

	return im.sessions.SetSessionStatus(ctx, session.ID, models.SessionCompleted)
}

func (im *Importer) importOne(ctx context.Context, session *models.ImportSession, item models.ImportItem) {
	if item.MatchASIN == nil || *item.MatchASIN == "" {
		im.fail(ctx, item, fmt.Errorf("matched item has no asin"))
		return
	}
	asin := *item.MatchASIN

	book, err := im.loadBook(ctx, asin)
	if err != nil {
		im.fail(ctx, item, err)
		return
	}
	if book == nil {
		im.fail(ctx, item, fmt.Errorf("book %s not found", asin))
		return
	}

	req, err := im.requests.Get(ctx, asin, session.OwnerUser)
	if err != nil {
		im.fail(ctx, item, err)
		return
	}
	if req == nil {
		now := time.Now()
		req = &models.Request{
			BookASIN:  asin,
			User:      session.OwnerUser,
			CreatedAt: now,
			UpdatedAt: now,
			Status:    models.ProcessingStatus{State: models.StateQueued},
		}
		if err := im.requests.Insert(ctx, req); err != nil {
			im.fail(ctx, item, err)
			return
		}
	}

	deleteSource := session.IsReconciliation()
	if err := im.processor.ProcessImport(ctx, req, book, item.SourcePath, deleteSource); err != nil {
		im.fail(ctx, item, err)
		return
	}

	if err := im.sessions.SetItemOutcome(ctx, item.ID, models.ItemImported, ""); err != nil {
		log.Error().Err(err).Int64("item", item.ID).Msg("importer: failed to record imported status")
	}
}

func (im *Importer) loadBook(ctx context.Context, asin string) (*models.Book, error) {
	existing, err := im.books.GetExisting(ctx, []string{asin}, bookFetchTTL)
	if err != nil {
		return nil, err
	}
	if book := existing[asin]; book != nil {
		return book, nil
	}

	book, err := im.meta.FetchByID(ctx, asin, im.cfg.DefaultRegion())
	if err != nil {
		return nil, fmt.Errorf("refetch book: %w", err)
	}
	if book == nil {
		return nil, nil
	}
	upserted, err := im.books.UpsertMany(ctx, []models.Book{*book})
	if err != nil {
		return nil, fmt.Errorf("persist refetched book: %w", err)
	}
	return &upserted[0], nil
}

func (im *Importer) fail(ctx context.Context, item models.ImportItem, cause error) {
	log.Error().Err(cause).Int64("item", item.ID).Str("path", item.SourcePath).Msg("importer: item failed")
	reason := strings.SplitN(cause.Error(), "\n", 2)[0]
	if err := im.sessions.SetItemOutcome(ctx, item.ID, models.ItemError, reason); err != nil {
		log.Error().Err(err).Int64("item", item.ID).Msg("importer: failed to record error status")
	}
}
