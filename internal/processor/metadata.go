package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/bookarr/bookarr/internal/models"
	"github.com/bookarr/bookarr/pkg/opf"
)

// bookMetadata is the plain JSON sidecar (§6 "metadata.json").
type bookMetadata struct {
	Title         string   `json:"title"`
	Subtitle      string   `json:"subtitle,omitempty"`
	Authors       []string `json:"authors"`
	Narrators     []string `json:"narrators,omitempty"`
	Series        []string `json:"series,omitempty"`
	Genres        []string `json:"genres,omitempty"`
	PublishedYear string   `json:"publishedYear,omitempty"`
	PublishedDate string   `json:"publishedDate,omitempty"`
	Publisher     string   `json:"publisher,omitempty"`
	Description   string   `json:"description,omitempty"`
	ASIN          string   `json:"asin"`
	Language      string   `json:"language,omitempty"`
}

// writeMetadataJSON renders book into metadata.json under dir, pretty
// printed with a 4 space indent (§6).
func writeMetadataJSON(dir string, book *models.Book) error {
	md := bookMetadata{
		Title:       book.Title,
		Subtitle:    book.Subtitle,
		Authors:     book.Authors,
		Narrators:   book.Narrators,
		Series:      book.Series,
		Genres:      book.Genres,
		Publisher:   book.Publisher,
		Description: book.Description,
		ASIN:        book.ASIN,
		Language:    book.Language,
	}
	if book.ReleaseDate != nil {
		md.PublishedYear = book.ReleaseDate.Format("2006")
		md.PublishedDate = book.ReleaseDate.Format("2006-01-02")
	}

	body, err := json.MarshalIndent(md, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal metadata.json: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "metadata.json"), body, 0o644)
}

// writeMetadataOPF renders book into metadata.opf under dir.
func writeMetadataOPF(dir string, book *models.Book) error {
	body, err := opf.Build(book, opf.IdentifierASIN)
	if err != nil {
		return fmt.Errorf("build metadata.opf: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "metadata.opf"), body, 0o644)
}

// saveCover fetches book.CoverURL and writes it to dir/cover<ext>, ext
// inferred from the URL and defaulting to .jpg (§6). The image is decoded
// and re-encoded (as PNG for a .png extension, as JPEG for any other) to reject truncated or corrupt
// downloads before anything touches disk; a local (non-http) cover URL is
// treated as already in place and skipped.
func saveCover(ctx context.Context, dir string, coverURL string) error {
	if coverURL == "" {
		return nil
	}
	if !strings.HasPrefix(coverURL, "http://") && !strings.HasPrefix(coverURL, "https://") {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return fmt.Errorf("build cover request: %w", err)
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch cover: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch cover: unexpected status %s", resp.Status)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read cover body: %w", err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("cover download is empty")
	}

	decoded, format, err := decodeImage(raw)
	if err != nil {
		return fmt.Errorf("decode cover: %w", err)
	}

	ext := coverExt(coverURL, format)
	return encodeImage(filepath.Join(dir, "cover"+ext), decoded, ext)
}

func coverExt(coverURL, decodedFormat string) string {
	if u, err := url.Parse(coverURL); err == nil {
		if ext := filepath.Ext(u.Path); ext != "" {
			return strings.ToLower(ext)
		}
	}
	switch decodedFormat {
	case "png":
		return ".png"
	case "gif":
		return ".gif"
	case "webp":
		return ".webp"
	case "bmp":
		return ".bmp"
	default:
		return ".jpg"
	}
}

// decodeImage decodes raw bytes against the standard decoders plus the
// additional golang.org/x/image formats blank-imported above (webp, bmp),
// rejecting anything that doesn't decode as a corrupt download.
func decodeImage(raw []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", err
	}
	return img, format, nil
}

// encodeImage re-encodes img to path, choosing the codec by ext; anything
// outside the two stdlib encoders falls back to JPEG since qui's own
// asset pipeline does the same for unrecognized formats.
func encodeImage(path string, img image.Image, ext string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create cover file: %w", err)
	}
	defer f.Close()

	switch ext {
	case ".png":
		return png.Encode(f, img)
	default:
		return jpeg.Encode(f, img, &jpeg.Options{Quality: 92})
	}
}
