// Package metadata implements the book metadata client (§4.C): fetch by
// identifier or keyword query against a primary provider, falling back
// to a secondary provider on a miss or failure, normalizing both response
// shapes into models.Book. Lookups and searches are memoized through the
// generic coalesced cache.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/rs/zerolog/log"

	"github.com/bookarr/bookarr/internal/cache"
	"github.com/bookarr/bookarr/internal/config"
	"github.com/bookarr/bookarr/internal/models"
)

const (
	fetchTimeout  = 180 * time.Second
	searchTimeout = 60 * time.Second
	searchTTL     = 7 * 24 * time.Hour

	providerRetryAttempts = 3
	providerRetryDelay    = 500 * time.Millisecond
)

// withRetry retries a single provider call against transient network
// failures (DNS hiccups, connection resets). A provider returning a
// well-formed "not found" response is a nil book with a nil error, not
// an error, so it never triggers a retry here.
func withRetry(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(providerRetryAttempts),
		retry.Delay(providerRetryDelay),
		retry.LastErrorOnly(true),
	)
}

// Provider is implemented once per upstream metadata API. Both the
// primary and secondary providers satisfy it; Client only ever sees this
// interface.
type Provider interface {
	Name() string
	FetchByID(ctx context.Context, client *http.Client, baseURL, id, region string) (*models.Book, error)
	Search(ctx context.Context, client *http.Client, baseURL, query string) ([]string, error)
}

// Client is the §4.C entry point.
type Client struct {
	http *http.Client

	primary   Provider
	secondary Provider

	primaryBaseURL   string
	secondaryBaseURL string

	bookCache   *cache.Cache[*models.Book]
	searchCache *cache.Cache[[]string]
}

func New(cfg *config.Store, primary, secondary Provider, primaryBaseURL, secondaryBaseURL string) *Client {
	return &Client{
		http:             &http.Client{},
		primary:          primary,
		secondary:        secondary,
		primaryBaseURL:   primaryBaseURL,
		secondaryBaseURL: secondaryBaseURL,
		bookCache:        cache.New[*models.Book](time.Hour),
		searchCache:      cache.New[[]string](searchTTL),
	}
}

// FetchByID resolves a book, trying the primary provider and falling
// back to the secondary on ø or error (§4.C). Failures to reach either
// provider are logged and yield (nil, nil): they never fail the caller.
func (c *Client) FetchByID(ctx context.Context, id, region string) (*models.Book, error) {
	key := "book:" + id + ":" + region
	return c.bookCache.GetOrLoad(ctx, key, func(ctx context.Context) (*models.Book, error) {
		fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
		defer cancel()

		var book *models.Book
		err := withRetry(fctx, func() error {
			var ferr error
			book, ferr = c.primary.FetchByID(fctx, c.http, c.primaryBaseURL, id, region)
			return ferr
		})
		if err != nil {
			log.Warn().Err(err).Str("provider", c.primary.Name()).Str("asin", id).Msg("metadata: primary fetch failed")
		}
		if book != nil {
			return book, nil
		}

		err = withRetry(fctx, func() error {
			var ferr error
			book, ferr = c.secondary.FetchByID(fctx, c.http, c.secondaryBaseURL, id, region)
			return ferr
		})
		if err != nil {
			log.Warn().Err(err).Str("provider", c.secondary.Name()).Str("asin", id).Msg("metadata: secondary fetch failed")
		}
		return book, nil
	})
}

// Search performs a keyword query against the primary provider, falling
// back to the secondary on an empty result or failure, returning an
// ordered list of identifiers, memoized with a long TTL.
func (c *Client) Search(ctx context.Context, query string) ([]string, error) {
	key := "search:" + query
	return c.searchCache.GetOrLoad(ctx, key, func(ctx context.Context) ([]string, error) {
		sctx, cancel := context.WithTimeout(ctx, searchTimeout)
		defer cancel()

		var ids []string
		err := withRetry(sctx, func() error {
			var serr error
			ids, serr = c.primary.Search(sctx, c.http, c.primaryBaseURL, query)
			return serr
		})
		if err != nil {
			log.Warn().Err(err).Str("provider", c.primary.Name()).Str("query", query).Msg("metadata: primary search failed")
		}
		if len(ids) > 0 {
			return ids, nil
		}

		err = withRetry(sctx, func() error {
			var serr error
			ids, serr = c.secondary.Search(sctx, c.http, c.secondaryBaseURL, query)
			return serr
		})
		if err != nil {
			log.Warn().Err(err).Str("provider", c.secondary.Name()).Str("query", query).Msg("metadata: secondary search failed")
			return nil, nil
		}
		return ids, nil
	})
}

// Suggestions memoizes the primary provider's keyword search run on a
// prefix, for autocomplete-style lookups. It shares the search cache's long TTL under
// a distinct key namespace so its entries never collide with full
// keyword searches.
func (c *Client) Suggestions(ctx context.Context, prefix string) ([]string, error) {
	key := "suggest:" + prefix
	return c.searchCache.GetOrLoad(ctx, key, func(ctx context.Context) ([]string, error) {
		sctx, cancel := context.WithTimeout(ctx, searchTimeout)
		defer cancel()
		var ids []string
		err := withRetry(sctx, func() error {
			var serr error
			ids, serr = c.primary.Search(sctx, c.http, c.primaryBaseURL, prefix)
			return serr
		})
		if err != nil {
			log.Warn().Err(err).Str("query", prefix).Msg("metadata: suggestions failed")
			return nil, nil
		}
		return ids, nil
	})
}

// genreList is the tagged-sum decoder for the providers' inconsistent
// genre shape: either a plain list of strings, or a list of objects
// carrying one of name/label/title.
type genreList []string

func (g *genreList) UnmarshalJSON(data []byte) error {
	var asStrings []string
	if err := json.Unmarshal(data, &asStrings); err == nil {
		*g = asStrings
		return nil
	}

	var asObjects []struct {
		Name  string `json:"name"`
		Label string `json:"label"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal(data, &asObjects); err != nil {
		return fmt.Errorf("metadata: genres: unrecognized shape: %w", err)
	}

	out := make([]string, 0, len(asObjects))
	for _, o := range asObjects {
		switch {
		case o.Name != "":
			out = append(out, o.Name)
		case o.Label != "":
			out = append(out, o.Label)
		case o.Title != "":
			out = append(out, o.Title)
		}
	}
	*g = out
	return nil
}

// parseRuntimeMinutes tolerates both a bare number and a numeric string,
// defaulting to 0 when absent (the secondary provider's contract).
func parseRuntimeMinutes(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(s); err == nil {
			return v
		}
	}
	return 0
}
