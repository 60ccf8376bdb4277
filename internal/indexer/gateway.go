package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bookarr/bookarr/internal/cache"
	"github.com/bookarr/bookarr/internal/models"
)

// Gateway is the §4.E entry point the request state machine calls: given
// a book, builds a keyword query, hits the aggregator (through Client),
// and caches the parsed result set.
type Gateway struct {
	client *Client
	cache  *cache.Cache[[]models.Source]
}

func NewGateway(client *Client, searchTTL time.Duration) *Gateway {
	return &Gateway{
		client: client,
		cache:  cache.New[[]models.Source](searchTTL),
	}
}

// Query returns cached sources for book's title, or nil (ø) when nothing
// is cached and forceRefresh is false — the caller is expected to treat
// that as "not cached, did not request a fresh query" (§4.E) rather than
// an empty result.
//
// On transport error or non-OK aggregator status the gateway itself logs
// and returns an empty, non-nil slice (never an error): only the "no
// cache, no force" case returns ø.
func (g *Gateway) Query(ctx context.Context, book *models.Book, categories, indexerIDs []int, forceRefresh bool) ([]models.Source, error) {
	key := queryKey(book.Title, categories, indexerIDs)

	if !forceRefresh {
		if cached, ok := g.cache.Lookup(key); ok {
			return cached, nil
		}
		return nil, nil
	}

	return g.fetchAndCache(ctx, key, book.Title, categories, indexerIDs)
}

// ForceQuery always issues a live query (bypassing the cache read) and
// writes the result back into the cache, for callers that always want a
// fresh search (e.g. retry).
func (g *Gateway) ForceQuery(ctx context.Context, book *models.Book, categories, indexerIDs []int) ([]models.Source, error) {
	key := queryKey(book.Title, categories, indexerIDs)
	return g.fetchAndCache(ctx, key, book.Title, categories, indexerIDs)
}

func (g *Gateway) fetchAndCache(ctx context.Context, key, query string, categories, indexerIDs []int) ([]models.Source, error) {
	sources, err := g.client.Search(ctx, query, categories, indexerIDs)
	if err != nil {
		log.Warn().Err(err).Str("query", query).Msg("indexer: gateway search failed")
		sources = []models.Source{}
	}
	g.cache.Insert(key, sources)
	return sources, nil
}

func queryKey(title string, categories, indexerIDs []int) string {
	return fmt.Sprintf("%s|%v|%v", title, categories, indexerIDs)
}
