// Package request implements the core request state machine (§4.H): create,
// query & dispatch, delete, retry, one active path per (book, user).
package request

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/rs/zerolog/log"

	"github.com/bookarr/bookarr/internal/apperr"
	"github.com/bookarr/bookarr/internal/bookstore"
	"github.com/bookarr/bookarr/internal/cache"
	"github.com/bookarr/bookarr/internal/config"
	"github.com/bookarr/bookarr/internal/enrich"
	"github.com/bookarr/bookarr/internal/indexer"
	"github.com/bookarr/bookarr/internal/metadata"
	"github.com/bookarr/bookarr/internal/models"
	"github.com/bookarr/bookarr/internal/ranking"
	"github.com/bookarr/bookarr/internal/torrentclient"
)

// LibraryChecker reports whether a book already exists on disk, satisfied
// by the library scanner's map-by-identifier index (§4.L). Declared here,
// not there, so this package doesn't need to depend on the scanner.
type LibraryChecker interface {
	Contains(ctx context.Context, asin string) (bool, error)
}

// DispatchState is the synchronous result of QueryAndDispatch, distinct
// from the Request row's own durable ProcessingStatus.
type DispatchState string

const (
	DispatchQuerying   DispatchState = "querying"
	DispatchUncached   DispatchState = "uncached"
	DispatchDispatched DispatchState = "dispatched"
	DispatchNoSources  DispatchState = "no_sources"
)

// bookFetchTTL is how fresh a cached Book row must be before
// QueryAndDispatch will use it without a refetch.
const bookFetchTTL = 24 * time.Hour

// Engine wires every §4 component together behind the state-machine
// operations a caller (an HTTP handler, out of scope here) drives.
type Engine struct {
	store    *Store
	books    *bookstore.Store
	meta     *metadata.Client
	gateway  *indexer.Gateway
	enricher *enrich.Registry
	cfg      *config.Store
	torrent  *torrentclient.Client
	library  LibraryChecker

	locks *cache.KeyLock
	http  *http.Client
}

// NewEngine builds the orchestrator. torrentClient may be nil when no
// torrent daemon is configured (§4.I is optional infrastructure); every
// operation that needs it fails soft or raises apperr.Misconfigured.
func NewEngine(
	store *Store,
	books *bookstore.Store,
	meta *metadata.Client,
	gateway *indexer.Gateway,
	enricher *enrich.Registry,
	cfg *config.Store,
	torrentClient *torrentclient.Client,
	library LibraryChecker,
) *Engine {
	return &Engine{
		store:    store,
		books:    books,
		meta:     meta,
		gateway:  gateway,
		enricher: enricher,
		cfg:      cfg,
		torrent:  torrentClient,
		library:  library,
		locks:    cache.NewKeyLock(),
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

// CreateRequest implements §4.H's create step.
func (e *Engine) CreateRequest(ctx context.Context, identifier, user, region string, group models.UserGroup) (*models.Request, error) {
	book, err := e.meta.FetchByID(ctx, identifier, region)
	if err != nil {
		return nil, fmt.Errorf("create request: fetch book: %w", err)
	}
	if book == nil {
		return nil, apperr.NotFound(fmt.Sprintf("book %s not found", identifier))
	}

	if book.Downloaded {
		return nil, apperr.Conflict(fmt.Sprintf("book %s already downloaded", identifier))
	}
	if e.library != nil {
		has, err := e.library.Contains(ctx, identifier)
		if err != nil {
			log.Warn().Err(err).Str("asin", identifier).Msg("request: library containment check failed, proceeding")
		} else if has {
			return nil, apperr.Conflict(fmt.Sprintf("book %s already present in library", identifier))
		}
	}

	existing, err := e.store.Get(ctx, identifier, user)
	if err != nil {
		return nil, fmt.Errorf("create request: lookup existing: %w", err)
	}
	if existing != nil {
		return nil, apperr.Conflict(fmt.Sprintf("request already exists for %s/%s", identifier, user))
	}

	if _, err := e.books.UpsertMany(ctx, []models.Book{*book}); err != nil {
		return nil, fmt.Errorf("create request: persist book: %w", err)
	}

	now := time.Now()
	r := &models.Request{
		BookASIN:      identifier,
		User:          user,
		CreatedAt:     now,
		UpdatedAt:     now,
		DownloadState: "pending",
		Status:        models.ProcessingStatus{State: models.StatePending},
	}
	if err := e.store.Insert(ctx, r); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if group.AtLeastTrusted() && e.cfg.GetBool(config.KeyAutoDownload, false) {
		go e.backgroundDispatch(identifier, user)
	}

	return r, nil
}

// backgroundDispatch runs QueryAndDispatch detached from the request that
// triggered it, surviving past the caller's own context the way qui's
// dirscan service backgrounds its scans (context.Background() as parent).
func (e *Engine) backgroundDispatch(identifier, user string) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("asin", identifier).Msg("request: background dispatch panicked")
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if _, err := e.QueryAndDispatch(ctx, identifier, user); err != nil {
		log.Warn().Err(err).Str("asin", identifier).Msg("request: auto-dispatch failed")
	}
}

// QueryAndDispatch implements §4.H's query & dispatch step.
func (e *Engine) QueryAndDispatch(ctx context.Context, identifier, user string) (DispatchState, error) {
	if !e.locks.TryAcquire(identifier) {
		return DispatchQuerying, nil
	}
	defer e.locks.Release(identifier)

	baseURL := e.cfg.Get(config.KeyProwlarrBaseURL, "")
	apiKey := e.cfg.Get(config.KeyProwlarrAPIKey, "")
	if baseURL == "" || apiKey == "" {
		return "", apperr.Misconfigured("indexer gateway: prowlarr base URL or API key not set")
	}

	book, err := e.loadOrRefetchBook(ctx, identifier)
	if err != nil {
		return "", fmt.Errorf("query and dispatch: load book: %w", err)
	}
	if book == nil {
		return "", apperr.NotFound(fmt.Sprintf("book %s not found", identifier))
	}

	categories := e.cfg.ProwlarrCategories()
	indexerIDs := e.cfg.ProwlarrIndexers()

	sources, err := e.gateway.Query(ctx, book, categories, indexerIDs, false)
	if err != nil {
		return "", fmt.Errorf("query and dispatch: gateway query: %w", err)
	}
	if sources == nil {
		return DispatchUncached, nil
	}

	sources = e.enricher.Enrich(ctx, book, sources)

	bands, err := e.cfg.QualityBands()
	if err != nil {
		return "", fmt.Errorf("query and dispatch: quality bands: %w", err)
	}
	flagScores, err := e.cfg.IndexerFlagScores()
	if err != nil {
		return "", fmt.Errorf("query and dispatch: indexer flag scores: %w", err)
	}

	ranked := ranking.Rank(sources, ranking.Params{
		Book:             book,
		Bands:            bands,
		FlagScores:       flagScores,
		MinSeeders:       e.cfg.GetInt(config.KeyMinSeeders, 1),
		NameExistsRatio:  e.cfg.GetInt(config.KeyNameExistsRatio, 60),
		TitleExistsRatio: e.cfg.GetInt(config.KeyTitleExistsRatio, 60),
		Weights:          ranking.Weights{Quality: 0.4, Seeders: 0.3, Flags: 0.2, Title: 0.1},
	})

	if !e.cfg.GetBool(config.KeyAutoDownload, false) || len(ranked) == 0 {
		return DispatchNoSources, nil
	}

	if e.torrent == nil {
		return "", apperr.Misconfigured("torrent client not configured")
	}

	top := ranked[0]
	hash, err := e.dispatch(ctx, identifier, top)
	if err != nil {
		return "", fmt.Errorf("query and dispatch: dispatch: %w", err)
	}

	r, err := e.store.Get(ctx, identifier, user)
	if err != nil {
		return "", fmt.Errorf("query and dispatch: reload request: %w", err)
	}
	if r == nil {
		return "", apperr.NotFound(fmt.Sprintf("request %s/%s vanished mid-dispatch", identifier, user))
	}
	r.TorrentHash = &hash
	r.Status = models.ProcessingStatus{State: models.StateDownloadInitiated}
	r.DownloadState = "queued"
	r.DownloadProgress = 0
	if err := e.store.Update(ctx, r); err != nil {
		return "", fmt.Errorf("query and dispatch: persist dispatch: %w", err)
	}

	return DispatchDispatched, nil
}

// loadOrRefetchBook returns the store's copy of the book if fresh enough,
// otherwise refetches it from the metadata client and persists the result
// so later calls (ranking, the monitor, the processor) see a durable row.
func (e *Engine) loadOrRefetchBook(ctx context.Context, identifier string) (*models.Book, error) {
	existing, err := e.books.GetExisting(ctx, []string{identifier}, bookFetchTTL)
	if err != nil {
		return nil, err
	}
	if book := existing[identifier]; book != nil {
		return book, nil
	}

	book, err := e.meta.FetchByID(ctx, identifier, e.cfg.DefaultRegion())
	if err != nil {
		return nil, fmt.Errorf("refetch book: %w", err)
	}
	if book == nil {
		return nil, nil
	}
	upserted, err := e.books.UpsertMany(ctx, []models.Book{*book})
	if err != nil {
		return nil, fmt.Errorf("persist refetched book: %w", err)
	}
	return &upserted[0], nil
}

// dispatch sends the chosen source to the torrent client and returns its
// info hash, preferring the magnet URL over fetching + parsing raw bytes.
func (e *Engine) dispatch(ctx context.Context, identifier string, src models.Source) (string, error) {
	opts := torrentclient.AddOptions{
		Category: e.cfg.Get(config.KeyQbitCategory, ""),
		SavePath: e.cfg.Get(config.KeyQbitSavePath, ""),
		Tags:     []string{torrentclient.AsinTag(identifier)},
	}

	if src.MagnetURL != "" {
		hash, err := hashFromMagnet(src.MagnetURL)
		if err != nil {
			return "", err
		}
		if err := e.torrent.AddMagnet(ctx, src.MagnetURL, opts); err != nil {
			return "", err
		}
		return hash, nil
	}

	if src.DownloadURL == "" {
		return "", apperr.Validation("source has neither magnet nor download URL")
	}
	data, err := e.fetchTorrentFile(ctx, src.DownloadURL)
	if err != nil {
		return "", err
	}
	hash, err := hashFromTorrentBytes(data)
	if err != nil {
		return "", err
	}
	if err := e.torrent.AddTorrentFile(ctx, data, opts); err != nil {
		return "", err
	}
	return hash, nil
}

func (e *Engine) fetchTorrentFile(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch torrent file: %w", err)
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch torrent file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch torrent file: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

var magnetHashRe = regexp.MustCompile(`(?i)xt=urn:btih:([0-9a-f]+)`)

func hashFromMagnet(magnet string) (string, error) {
	m := magnetHashRe.FindStringSubmatch(magnet)
	if len(m) != 2 {
		return "", apperr.Validation("magnet URL missing xt=urn:btih hash")
	}
	return strings.ToLower(m[1]), nil
}

func hashFromTorrentBytes(data []byte) (string, error) {
	mi, err := metainfo.Load(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse torrent file: %w", err)
	}
	return mi.HashInfoBytes().HexString(), nil
}

// DeleteRequest implements §4.H's delete step.
func (e *Engine) DeleteRequest(ctx context.Context, identifier, user string, adminWide bool) error {
	if e.torrent != nil {
		tag := torrentclient.AsinTag(identifier)
		torrents, err := e.torrent.ByTag(ctx, tag)
		if err != nil {
			log.Warn().Err(err).Str("asin", identifier).Msg("request: delete: torrent lookup by tag failed")
		}
		for _, t := range torrents {
			if err := e.torrent.Delete(ctx, t.Hash, true); err != nil {
				log.Warn().Err(err).Str("hash", t.Hash).Msg("request: delete: torrent delete failed")
			}
		}
	}

	if adminWide {
		return e.store.DeleteAllForBook(ctx, identifier)
	}
	return e.store.Delete(ctx, identifier, user)
}

// RetryRequest implements §4.H's retry step: reset to pending and
// re-enqueue query & dispatch.
func (e *Engine) RetryRequest(ctx context.Context, identifier, user string) error {
	r, err := e.store.Get(ctx, identifier, user)
	if err != nil {
		return fmt.Errorf("retry request: %w", err)
	}
	if r == nil {
		return apperr.NotFound(fmt.Sprintf("no request for %s/%s", identifier, user))
	}

	r.Status = models.ProcessingStatus{State: models.StatePending}
	r.TorrentHash = nil
	r.DownloadProgress = 0
	r.DownloadState = "queued"
	if err := e.store.Update(ctx, r); err != nil {
		return fmt.Errorf("retry request: %w", err)
	}

	go e.backgroundDispatch(identifier, user)
	return nil
}
