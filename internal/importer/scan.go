package importer

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/bookarr/bookarr/internal/importsession"
	"github.com/bookarr/bookarr/internal/models"
	"github.com/bookarr/bookarr/internal/reconcile"
	"github.com/bookarr/bookarr/internal/scanner"
)

// scanFanOut bounds concurrent metadata lookups during a scan (§5: "L ≤
// 5 or ≤ 10 in-flight for fan-out to metadata lookups").
const scanFanOut = 8

// RunScan walks root (§4.L), and for every unit found creates an
// ImportItem and runs the match/reconcile engine (§4.M) against it,
// bounded by scanFanOut concurrent in-flight lookups. A unit whose
// source path was already recorded in this session is left untouched.
// Per-item failures are logged and leave the item pending rather than
// aborting the scan; a final sweep promotes or fails anything still
// pending once every unit has settled, matching the straggler cleanup
// of the reference scanner.
func RunScan(ctx context.Context, sessions *importsession.Store, client reconcile.MetadataClient, sessionID int64, root string) error {
	units, err := scanner.Walk(root)
	if err != nil {
		return err
	}
	log.Info().Str("root", root).Int("units", len(units)).Msg("scanner: found book units")

	sem := make(chan struct{}, scanFanOut)
	var wg sync.WaitGroup

	for _, u := range units {
		u := u
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
			processUnit(ctx, sessions, client, sessionID, u)
		}()
	}
	wg.Wait()

	if err := sweepPendingItems(ctx, sessions, sessionID); err != nil {
		return err
	}
	return sessions.SetSessionStatus(ctx, sessionID, models.SessionReviewReady)
}

func processUnit(ctx context.Context, sessions *importsession.Store, client reconcile.MetadataClient, sessionID int64, u scanner.Unit) {
	item, err := sessions.CreateItem(ctx, sessionID, u.SourcePath, u.Title, u.Author)
	if err != nil {
		log.Error().Err(err).Str("path", u.SourcePath).Msg("scanner: unit tripped up creating item")
		return
	}
	if item.Status != models.ItemPending {
		return
	}

	result, err := reconcile.Match(ctx, client, reconcile.Item{
		SourcePath:     u.SourcePath,
		DetectedTitle:  u.Title,
		DetectedAuthor: u.Author,
		Language:       u.Language,
	})
	if err != nil {
		log.Error().Err(err).Str("path", u.SourcePath).Msg("scanner: unit tripped up matching")
		return
	}

	if err := sessions.SetItemMatch(ctx, item.ID, result.ASIN, result.Score, result.Status); err != nil {
		log.Error().Err(err).Str("path", u.SourcePath).Msg("scanner: unit tripped up recording match")
	}
}

// sweepPendingItems promotes any item still pending after the main pass
// (e.g. one whose process_unit-equivalent goroutine returned early on an
// error) to matched or missing, so a scan never leaves review_ready
// items stuck in pending.
func sweepPendingItems(ctx context.Context, sessions *importsession.Store, sessionID int64) error {
	pending, err := sessions.ListItemsByStatus(ctx, sessionID, models.ItemPending)
	if err != nil {
		return err
	}
	for _, item := range pending {
		if item.MatchASIN != nil && *item.MatchASIN != "" {
			score := item.MatchScore
			if score == 0 {
				score = 0.95
			}
			if err := sessions.SetItemMatch(ctx, item.ID, *item.MatchASIN, score, models.ItemMatched); err != nil {
				return err
			}
			continue
		}
		if err := sessions.SetItemMatch(ctx, item.ID, "", 0, models.ItemMissing); err != nil {
			return err
		}
	}
	return nil
}
