package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bookarr/bookarr/internal/models"
)

// person is the {name} shape both providers use for authors/narrators.
type person struct {
	Name string `json:"name"`
}

// primaryResponse is the primary provider's contract (§6).
type primaryResponse struct {
	ASIN          string          `json:"asin"`
	Title         string          `json:"title"`
	Subtitle      string          `json:"subtitle"`
	Authors       []person        `json:"authors"`
	Narrators     []person        `json:"narrators"`
	Series        []person        `json:"series"`
	Genres        genreList       `json:"genres"`
	Publisher     string          `json:"publisher"`
	Description   string          `json:"description"`
	Language      string          `json:"language"`
	ImageURL      string          `json:"imageUrl"`
	ReleaseDate   string          `json:"releaseDate"`
	LengthMinutes json.RawMessage `json:"lengthMinutes"`
}

// secondaryResponse mirrors primaryResponse up to the field renames noted
// in §6 (image / runtimeLengthMin).
type secondaryResponse struct {
	ASIN          string          `json:"asin"`
	Title         string          `json:"title"`
	Subtitle      string          `json:"subtitle"`
	Authors       []person        `json:"authors"`
	Narrators     []person        `json:"narrators"`
	Series        []person        `json:"series"`
	Genres        genreList       `json:"genres"`
	Publisher     string          `json:"publisher"`
	Description   string          `json:"description"`
	Language      string          `json:"language"`
	Image         string          `json:"image"`
	ReleaseDate   string          `json:"releaseDate"`
	RuntimeLength json.RawMessage `json:"runtimeLengthMin"`
}

func namesOf(people []person) []string {
	out := make([]string, 0, len(people))
	for _, p := range people {
		if p.Name != "" {
			out = append(out, p.Name)
		}
	}
	return out
}

func parseReleaseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func doGet(ctx context.Context, client *http.Client, u string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// PrimaryProvider implements Provider against the primary metadata API
// (§6 "HTTP client — metadata providers").
type PrimaryProvider struct{}

func (PrimaryProvider) Name() string { return "primary" }

func (PrimaryProvider) FetchByID(ctx context.Context, client *http.Client, baseURL, id, region string) (*models.Book, error) {
	u := fmt.Sprintf("%s/book/%s?region=%s", baseURL, url.PathEscape(id), url.QueryEscape(region))
	body, status, err := doGet(ctx, client, u)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("primary provider: unexpected status %d", status)
	}

	var r primaryResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("primary provider: decode: %w", err)
	}
	if r.ASIN == "" {
		return nil, nil
	}

	return &models.Book{
		ASIN:        r.ASIN,
		Title:       r.Title,
		Subtitle:    r.Subtitle,
		Authors:     namesOf(r.Authors),
		Narrators:   namesOf(r.Narrators),
		CoverURL:    r.ImageURL,
		ReleaseDate: parseReleaseDate(r.ReleaseDate),
		RuntimeMin:  parseRuntimeMinutes(r.LengthMinutes),
		Series:      namesOf(r.Series),
		Genres:      []string(r.Genres),
		Publisher:   r.Publisher,
		Description: r.Description,
		Language:    r.Language,
		UpdatedAt:   time.Now(),
	}, nil
}

func (PrimaryProvider) Search(ctx context.Context, client *http.Client, baseURL, query string) ([]string, error) {
	u := fmt.Sprintf("%s/search?q=%s", baseURL, url.QueryEscape(query))
	body, status, err := doGet(ctx, client, u)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("primary provider: search status %d", status)
	}

	var results []primaryResponse
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("primary provider: decode search: %w", err)
	}

	ids := make([]string, 0, len(results))
	for _, r := range results {
		if r.ASIN != "" {
			ids = append(ids, r.ASIN)
		}
	}
	return ids, nil
}

// SecondaryProvider implements Provider against the fallback metadata API.
type SecondaryProvider struct{}

func (SecondaryProvider) Name() string { return "secondary" }

func (SecondaryProvider) FetchByID(ctx context.Context, client *http.Client, baseURL, id, region string) (*models.Book, error) {
	u := fmt.Sprintf("%s/book/%s?region=%s", baseURL, url.PathEscape(id), url.QueryEscape(region))
	body, status, err := doGet(ctx, client, u)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("secondary provider: unexpected status %d", status)
	}

	var r secondaryResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("secondary provider: decode: %w", err)
	}
	if r.ASIN == "" {
		return nil, nil
	}

	return &models.Book{
		ASIN:        r.ASIN,
		Title:       r.Title,
		Subtitle:    r.Subtitle,
		Authors:     namesOf(r.Authors),
		Narrators:   namesOf(r.Narrators),
		CoverURL:    r.Image,
		ReleaseDate: parseReleaseDate(r.ReleaseDate),
		RuntimeMin:  parseRuntimeMinutes(r.RuntimeLength),
		Series:      namesOf(r.Series),
		Genres:      []string(r.Genres),
		Publisher:   r.Publisher,
		Description: r.Description,
		Language:    r.Language,
		UpdatedAt:   time.Now(),
	}, nil
}

func (SecondaryProvider) Search(ctx context.Context, client *http.Client, baseURL, query string) ([]string, error) {
	u := fmt.Sprintf("%s/search?q=%s", baseURL, url.QueryEscape(query))
	body, status, err := doGet(ctx, client, u)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("secondary provider: search status %d", status)
	}

	var results []secondaryResponse
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("secondary provider: decode search: %w", err)
	}

	ids := make([]string, 0, len(results))
	for _, r := range results {
		if r.ASIN != "" {
			ids = append(ids, r.ASIN)
		}
	}
	return ids, nil
}
