// Package indexer implements the aggregator gateway (§4.E): a thin
// Torznab-aggregator HTTP client plus the cached, protocol-discriminating
// query layer the request state machine calls.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bookarr/bookarr/internal/models"
)

// ClientConfig mirrors the constructor shape used for the torrent
// client adapter: explicit host/key/timeout fields rather than a
// functional-options pile.
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	UserAgent  string
}

// Client is a minimal wrapper over the aggregator's unified search
// endpoint (§6 "HTTP client — aggregator").
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	userAgent  string
}

func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = "bookarr"
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: client,
		userAgent:  ua,
	}
}

// rawResult is the wire shape for one aggregator search hit, a superset
// of the torrent and usenet variants discriminated by Protocol.
type rawResult struct {
	GUID        string   `json:"guid"`
	IndexerID   int      `json:"indexerId"`
	Indexer     string   `json:"indexer"`
	Title       string   `json:"title"`
	Size        int64    `json:"size"`
	PublishDate string   `json:"publishDate"`
	InfoURL     string   `json:"infoUrl"`
	DownloadURL string   `json:"downloadUrl"`
	MagnetURL   string   `json:"magnetUrl"`
	Protocol    string   `json:"protocol"`
	Seeders     int      `json:"seeders"`
	Leechers    int      `json:"leechers"`
	Grabs       int      `json:"grabs"`
	Flags       []string `json:"indexerFlags"`
}

// Search calls the aggregator's unified search endpoint and parses each
// hit into the appropriate Source protocol variant, lowercasing indexer
// flags. On transport error or non-OK status it returns a nil slice and
// the error for the caller to log; a successful request with no hits
// yields an empty, non-nil slice (§4.E reserves nil/ø for the cache-miss
// path one layer up, in Gateway).
func (c *Client) Search(ctx context.Context, query string, categories, indexerIDs []int) ([]models.Source, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("type", "search")
	q.Set("limit", "100")
	q.Set("offset", "0")
	if len(categories) > 0 {
		q.Set("categories", joinInts(categories))
	}
	if len(indexerIDs) > 0 {
		q.Set("indexerIds", joinInts(indexerIDs))
	}

	u := fmt.Sprintf("%s/api/v1/search?%s", c.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("indexer: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("indexer: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("indexer: status %d", resp.StatusCode)
	}

	var raws []rawResult
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("indexer: decode: %w", err)
	}

	out := make([]models.Source, 0, len(raws))
	for _, r := range raws {
		out = append(out, toSource(r))
	}
	return out, nil
}

func toSource(r rawResult) models.Source {
	s := models.Source{
		GUID:        r.GUID,
		IndexerID:   strconv.Itoa(r.IndexerID),
		IndexerName: r.Indexer,
		Title:       r.Title,
		SizeBytes:   r.Size,
		InfoURL:     r.InfoURL,
		DownloadURL: r.DownloadURL,
		MagnetURL:   r.MagnetURL,
	}
	if t, err := time.Parse(time.RFC3339, r.PublishDate); err == nil {
		s.PublishDate = t
	}

	switch strings.ToLower(r.Protocol) {
	case "usenet":
		s.Protocol = models.ProtocolUsenet
		s.Grabs = r.Grabs
	default:
		s.Protocol = models.ProtocolTorrent
		s.Seeders = r.Seeders
		s.Leechers = r.Leechers
	}

	for _, f := range r.Flags {
		s.AddFlag(f)
	}
	return s
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
