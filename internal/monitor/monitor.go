// Package monitor implements the download monitor (§4.J): a single
// background loop that reconciles in-flight Requests against the torrent
// client's live state and hands finished downloads off to the processor.
package monitor

import (
	"context"
	"strings"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog/log"

	"github.com/bookarr/bookarr/internal/bookstore"
	"github.com/bookarr/bookarr/internal/config"
	"github.com/bookarr/bookarr/internal/models"
	"github.com/bookarr/bookarr/internal/request"
	"github.com/bookarr/bookarr/internal/torrentclient"
)

// Processor is the subset of §4.K this package depends on: handing a
// queued Request's downloaded content off for organizing, metadata and
// cover generation. Declared here to keep this package independent of
// the processor package's own dependencies.
type Processor interface {
	Process(ctx context.Context, req *models.Request, book *models.Book, downloadPath string) error
}

// defaultInterval is the tick cadence §4.J calls for ("≈ 10s").
const defaultInterval = 10 * time.Second

// processedTag marks a torrent the processor has already consumed, left
// for operator visibility until the next qBittorrent housekeeping pass.
const processedTag = "processed"

// Monitor runs the reconcile loop.
type Monitor struct {
	store    *request.Store
	books    *bookstore.Store
	cfg      *config.Store
	torrent  *torrentclient.Client
	proc     Processor
	interval time.Duration
}

// New wires a Monitor. torrent may be nil (no adapter configured); Run
// then no-ops every tick instead of failing.
func New(store *request.Store, books *bookstore.Store, cfg *config.Store, torrent *torrentclient.Client, proc Processor) *Monitor {
	return &Monitor{
		store:    store,
		books:    books,
		cfg:      cfg,
		torrent:  torrent,
		proc:     proc,
		interval: defaultInterval,
	}
}

// Run blocks until ctx is canceled, ticking the reconcile sweep on a
// fixed cadence. Ticks never overlap: the loop body runs synchronously
// between ticker fires, so a slow tick simply delays the next one.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	if m.torrent == nil || !m.cfg.GetBool(config.KeyQbitEnabled, false) {
		return
	}

	category := m.cfg.Get(config.KeyQbitCategory, "")
	torrents, err := m.torrent.ByCategory(ctx, category)
	if err != nil {
		log.Warn().Err(err).Msg("monitor: list torrents failed, skipping tick")
		return
	}
	byHash := make(map[string]qbt.Torrent, len(torrents))
	for _, t := range torrents {
		byHash[t.Hash] = t
	}

	reqs, err := m.store.ListActive(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("monitor: list active requests failed, skipping tick")
		return
	}

	for i := range reqs {
		m.reconcileOne(ctx, &reqs[i], byHash)
	}
}

func (m *Monitor) reconcileOne(ctx context.Context, r *models.Request, byHash map[string]qbt.Torrent) {
	book, err := m.books.Get(ctx, r.BookASIN)
	if err != nil {
		log.Warn().Err(err).Str("asin", r.BookASIN).Msg("monitor: load book failed")
		return
	}
	if book == nil || book.Downloaded {
		return
	}

	t, found := m.locate(r, byHash)
	if !found {
		if !r.Status.IsTerminal() {
			r.DownloadState = "torrent_missing"
			r.Status = models.Failed("torrent missing")
			if err := m.store.Update(ctx, r); err != nil {
				log.Warn().Err(err).Str("asin", r.BookASIN).Msg("monitor: persist torrent_missing failed")
			}
		}
		return
	}

	r.DownloadProgress = t.Progress * 0.9
	r.DownloadState = string(t.State)
	if err := m.store.Update(ctx, r); err != nil {
		log.Warn().Err(err).Str("asin", r.BookASIN).Msg("monitor: persist progress failed")
		return
	}

	if t.Progress < 1.0 {
		return
	}
	if r.Status.State == models.StateCompleted || r.Status.State == models.StateFailed || r.Status.State == models.StateQueued {
		return
	}

	r.Status = models.ProcessingStatus{State: models.StateQueued}
	if err := m.store.Update(ctx, r); err != nil {
		log.Warn().Err(err).Str("asin", r.BookASIN).Msg("monitor: persist queued failed")
		return
	}

	if err := m.proc.Process(ctx, r, book, t.ContentPath); err != nil {
		r.Status = models.Failed(err.Error())
		if uerr := m.store.Update(ctx, r); uerr != nil {
			log.Warn().Err(uerr).Str("asin", r.BookASIN).Msg("monitor: persist failed status failed")
		}
		log.Warn().Err(err).Str("asin", r.BookASIN).Msg("monitor: processor failed")
		return
	}

	if err := m.torrent.AddTags(ctx, t.Hash, processedTag); err != nil {
		log.Warn().Err(err).Str("hash", t.Hash).Msg("monitor: tag processed failed")
	}
	if err := m.torrent.Delete(ctx, t.Hash, false); err != nil {
		log.Warn().Err(err).Str("hash", t.Hash).Msg("monitor: delete torrent failed")
	}
}

// locate finds the torrent backing a Request, first by its recorded hash,
// then by scanning for the self-healing asin:<identifier> tag (§4.J step
// 4) and writing back the hash it finds there.
func (m *Monitor) locate(r *models.Request, byHash map[string]qbt.Torrent) (qbt.Torrent, bool) {
	if r.TorrentHash != nil {
		if t, ok := byHash[*r.TorrentHash]; ok {
			return t, true
		}
	}

	tag := torrentclient.AsinTag(r.BookASIN)
	for _, t := range byHash {
		if hasTag(t.Tags, tag) {
			hash := t.Hash
			r.TorrentHash = &hash
			return t, true
		}
	}
	return qbt.Torrent{}, false
}

func hasTag(tags, want string) bool {
	for _, t := range strings.Split(tags, ",") {
		if strings.TrimSpace(t) == want {
			return true
		}
	}
	return false
}
