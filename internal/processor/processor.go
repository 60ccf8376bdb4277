// Package processor implements the organize/metadata/cover pipeline the
// spec calls K (§4.K): moving a finished download into the library,
// writing its sidecar files, and flipping the owning Request and Book
// through their final states.
package processor

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/bookarr/bookarr/internal/bookstore"
	"github.com/bookarr/bookarr/internal/config"
	"github.com/bookarr/bookarr/internal/models"
	"github.com/bookarr/bookarr/internal/request"
	"github.com/bookarr/bookarr/pkg/naturalsort"
	"github.com/bookarr/bookarr/pkg/pathutil"
)

// audioExts is the set of extensions recognized as book audio (§4.K step 5).
var audioExts = map[string]bool{
	".m4b": true, ".mp3": true, ".m4a": true, ".flac": true,
	".wav": true, ".ogg": true, ".opus": true, ".aac": true, ".wma": true,
}

// archiveExts recognizes the single-archive download case: a torrent
// whose payload is one compressed file rather than loose audio files.
var archiveExts = map[string]bool{
	".zip": true, ".rar": true, ".7z": true,
	".tar": true, ".tgz": true, ".tar.gz": true, ".tar.bz2": true, ".tar.xz": true,
}

// singleArchive reports whether downloadPath is one file recognized as an
// archive, returning it unchanged if so and "" otherwise.
func singleArchive(downloadPath string) (string, bool) {
	if strings.Contains(downloadPath, "|") {
		return "", false
	}
	info, err := os.Stat(downloadPath)
	if err != nil || info.IsDir() {
		return "", false
	}
	lower := strings.ToLower(downloadPath)
	for ext := range archiveExts {
		if strings.HasSuffix(lower, ext) {
			return downloadPath, true
		}
	}
	return "", false
}

// Processor organizes finished downloads into the library.
type Processor struct {
	requests *request.Store
	books    *bookstore.Store
	cfg      *config.Store
}

// New wires a Processor.
func New(requests *request.Store, books *bookstore.Store, cfg *config.Store) *Processor {
	return &Processor{requests: requests, books: books, cfg: cfg}
}

// Process drives req through the organize/metadata/cover sequence using
// the configured complete_action. It satisfies monitor.Processor for the
// download-monitor completion path (§4.J step 5), which never forces a
// delete of the source (the torrent client, not the processor, owns that).
func (p *Processor) Process(ctx context.Context, req *models.Request, book *models.Book, downloadPath string) error {
	return p.process(ctx, req, book, downloadPath, false)
}

// ProcessImport is Process with deleteSource honored, for the import
// executor (§4.N step 2), which forces a move for reconciliation imports.
func (p *Processor) ProcessImport(ctx context.Context, req *models.Request, book *models.Book, downloadPath string, deleteSource bool) error {
	return p.process(ctx, req, book, downloadPath, deleteSource)
}

// process drives req through the organizing_files/generating_metadata/
// saving_cover/completed sequence for a finished download located at
// downloadPath (a directory, a single file, or a "|"-joined file list).
// deleteSource forces a move instead of whatever complete_action is
// configured, for the reconciliation-import path (§4.N step 2).
func (p *Processor) process(ctx context.Context, req *models.Request, book *models.Book, downloadPath string, deleteSource bool) error {
	if book == nil {
		return fmt.Errorf("processor: book %s not found", req.BookASIN)
	}

	dest, err := p.destination(book)
	if err != nil {
		return p.fail(ctx, req, err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return p.fail(ctx, req, fmt.Errorf("create destination: %w", err))
	}

	if err := p.setStatus(ctx, req, models.StateOrganizingFiles, req.DownloadProgress); err != nil {
		return p.fail(ctx, req, err)
	}

	if archivePath, ok := singleArchive(downloadPath); ok {
		staging, err := os.MkdirTemp("", "bookarr-extract-*")
		if err != nil {
			return p.fail(ctx, req, fmt.Errorf("create staging dir: %w", err))
		}
		defer os.RemoveAll(staging)
		if err := extractArchive(ctx, archivePath, staging); err != nil {
			return p.fail(ctx, req, fmt.Errorf("extract archive: %w", err))
		}
		downloadPath = staging
	}

	sources, err := enumerateAudio(downloadPath)
	if err != nil {
		return p.fail(ctx, req, err)
	}
	if len(sources) == 0 {
		return p.fail(ctx, req, fmt.Errorf("no audio files found under %q", downloadPath))
	}

	action := p.cfg.CompleteAction()
	if deleteSource {
		action = models.ActionMove
	}

	n := len(sources)
	width := digits(n)
	for i, src := range sources {
		partLabel := ""
		if n > 1 {
			partLabel = "Part " + padLeft(strconv.Itoa(i+1), width)
		}
		name := filenameFor(p.cfg.FilePattern(), book, partLabel, filepath.Ext(src))
		if strings.TrimSpace(partLabel) != "" && !strings.Contains(p.cfg.FilePattern(), "{part}") {
			ext := filepath.Ext(name)
			name = strings.TrimSuffix(name, ext) + " - " + partLabel + ext
		}

		if err := transferFile(action, src, filepath.Join(dest, name)); err != nil {
			return p.fail(ctx, req, fmt.Errorf("transfer %q: %w", src, err))
		}

		progress := 0.90 + (0.02 * float64(i+1) / float64(n))
		if err := p.setStatus(ctx, req, models.StateOrganizingFiles, progress); err != nil {
			return p.fail(ctx, req, err)
		}
	}

	if err := p.books.MarkDownloaded(ctx, book.ASIN); err != nil {
		return p.fail(ctx, req, fmt.Errorf("mark downloaded: %w", err))
	}

	if err := p.setStatus(ctx, req, models.StateGeneratingMetadata, 0.95); err != nil {
		return p.fail(ctx, req, err)
	}
	if err := writeMetadataJSON(dest, book); err != nil {
		return p.fail(ctx, req, fmt.Errorf("write metadata.json: %w", err))
	}
	if err := writeMetadataOPF(dest, book); err != nil {
		return p.fail(ctx, req, fmt.Errorf("write metadata.opf: %w", err))
	}

	if err := p.setStatus(ctx, req, models.StateSavingCover, 0.98); err != nil {
		return p.fail(ctx, req, err)
	}
	if err := saveCover(ctx, dest, book.CoverURL); err != nil {
		return p.fail(ctx, req, fmt.Errorf("save cover: %w", err))
	}

	req.Status = models.ProcessingStatus{State: models.StateCompleted}
	req.DownloadProgress = 1.0
	if err := p.requests.Update(ctx, req); err != nil {
		return fmt.Errorf("persist completed status: %w", err)
	}
	return nil
}

// ReorganizeInPlace re-derives the canonical destination for an
// already-imported book and renames/moves its current files into it,
// without a download step (§4.K "Reorganize-in-place").
func (p *Processor) ReorganizeInPlace(ctx context.Context, book *models.Book, currentDir string) error {
	dest, err := p.destination(book)
	if err != nil {
		return err
	}

	sources, err := enumerateAudio(currentDir)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("no audio files found under %q", currentDir)
	}

	if dest == currentDir {
		return p.renameInPlace(dest, book, sources)
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	n := len(sources)
	width := digits(n)
	for i, src := range sources {
		partLabel := ""
		if n > 1 {
			partLabel = "Part " + padLeft(strconv.Itoa(i+1), width)
		}
		name := filenameFor(p.cfg.FilePattern(), book, partLabel, filepath.Ext(src))
		if partLabel != "" && !strings.Contains(p.cfg.FilePattern(), "{part}") {
			ext := filepath.Ext(name)
			name = strings.TrimSuffix(name, ext) + " - " + partLabel + ext
		}
		if err := transferFile(models.ActionMove, src, filepath.Join(dest, name)); err != nil {
			return fmt.Errorf("move %q: %w", src, err)
		}
	}
	for _, sidecar := range []string{"metadata.json", "metadata.opf"} {
		src := filepath.Join(currentDir, sidecar)
		if _, err := os.Stat(src); err == nil {
			_ = transferFile(models.ActionMove, src, filepath.Join(dest, sidecar))
		}
	}
	return removeIfEmpty(currentDir)
}

func (p *Processor) renameInPlace(dir string, book *models.Book, sources []string) error {
	n := len(sources)
	width := digits(n)
	for i, src := range sources {
		partLabel := ""
		if n > 1 {
			partLabel = "Part " + padLeft(strconv.Itoa(i+1), width)
		}
		name := filenameFor(p.cfg.FilePattern(), book, partLabel, filepath.Ext(src))
		if partLabel != "" && !strings.Contains(p.cfg.FilePattern(), "{part}") {
			ext := filepath.Ext(name)
			name = strings.TrimSuffix(name, ext) + " - " + partLabel + ext
		}
		dst := filepath.Join(dir, name)
		if dst == src {
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("rename %q: %w", src, err)
		}
	}
	return nil
}

func removeIfEmpty(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	if len(entries) > 0 {
		return nil
	}
	return os.Remove(dir)
}

// destination computes the library-relative destination directory for
// book and validates it stays inside library_root (§4.K step 2).
func (p *Processor) destination(book *models.Book) (string, error) {
	root := p.cfg.LibraryRoot()
	if root == "" {
		return "", fmt.Errorf("library_path is not configured")
	}

	pattern := p.cfg.FolderPattern()
	if !strings.Contains(pattern, "{series}") && p.cfg.UseSeriesFolders() && len(book.Series) > 0 {
		pattern = "{author}/{series}/{title}"
	}

	rel := interpolate(pattern, book, "")
	segments := strings.Split(filepath.ToSlash(rel), "/")
	for i, seg := range segments {
		segments[i] = pathutil.SanitizePathSegment(seg)
	}
	rel = filepath.Join(segments...)

	dest := filepath.Join(root, rel)
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve library_path: %w", err)
	}
	absDest, err := filepath.Abs(dest)
	if err != nil {
		return "", fmt.Errorf("resolve destination: %w", err)
	}
	if absDest != absRoot && !strings.HasPrefix(absDest, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("destination %q escapes library_path %q", absDest, absRoot)
	}
	return absDest, nil
}

func filenameFor(pattern string, book *models.Book, partLabel, ext string) string {
	return interpolate(pattern, book, partLabel) + ext
}

// interpolate expands {author} {title} {year} {asin} {series} {series_index}
// {part} placeholders (§4.K step 2/6).
func interpolate(pattern string, book *models.Book, partLabel string) string {
	seriesDisplay := ""
	seriesIndex := book.SeriesIndex
	if len(book.Series) > 0 {
		seriesDisplay = book.Series[0]
		if seriesIndex != "" {
			seriesDisplay = seriesDisplay + " #" + seriesIndex
		}
	}

	replacer := strings.NewReplacer(
		"{author}", book.FirstAuthor(),
		"{title}", book.Title,
		"{year}", book.ReleaseYear(),
		"{asin}", book.ASIN,
		"{series}", seriesDisplay,
		"{series_index}", seriesIndex,
		"{part}", partLabel,
	)
	return replacer.Replace(pattern)
}

// enumerateAudio resolves downloadPath into a natural-sorted list of audio
// file paths (§4.K step 5): a directory is walked recursively, a
// "|"-joined string is split into its member files.
func enumerateAudio(downloadPath string) ([]string, error) {
	info, err := os.Stat(downloadPath)
	if err != nil {
		if strings.Contains(downloadPath, "|") {
			return splitExisting(downloadPath), nil
		}
		return nil, fmt.Errorf("stat download path %q: %w", downloadPath, err)
	}

	if !info.IsDir() {
		ext := strings.ToLower(filepath.Ext(downloadPath))
		if audioExts[ext] {
			return []string{downloadPath}, nil
		}
		return nil, fmt.Errorf("%q is not a recognized audio file", downloadPath)
	}

	var files []string
	err = filepath.Walk(downloadPath, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		if audioExts[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %q: %w", downloadPath, err)
	}
	sort.Slice(files, func(i, j int) bool { return naturalsort.Less(files[i], files[j]) })
	return files, nil
}

func splitExisting(joined string) []string {
	var out []string
	for _, part := range strings.Split(joined, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if fi, err := os.Stat(part); err == nil && !fi.IsDir() {
			out = append(out, part)
		}
	}
	sort.Slice(out, func(i, j int) bool { return naturalsort.Less(out[i], out[j]) })
	return out
}

func digits(n int) int {
	if n <= 1 {
		return 1
	}
	return int(math.Ceil(math.Log10(float64(n + 1))))
}

func padLeft(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}

func (p *Processor) setStatus(ctx context.Context, req *models.Request, state models.ProcessingState, progress float64) error {
	req.Status = models.ProcessingStatus{State: state}
	req.DownloadProgress = progress
	return p.requests.Update(ctx, req)
}

func (p *Processor) fail(ctx context.Context, req *models.Request, cause error) error {
	req.Status = models.Failed(cause.Error())
	if err := p.requests.Update(ctx, req); err != nil {
		log.Warn().Err(err).Str("asin", req.BookASIN).Msg("processor: persist failed status failed")
	}
	return cause
}
