package processor

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mholt/archives"
)

// extractArchive stages a single-archive download (zip/rar/tar.*) into dir,
// a scratch directory the caller removes once the processor has picked
// its audio files out of it.
//
// Grounding note (flagged in DESIGN.md): the teacher only exercises
// mholt/archives for archive *creation* (clientmigrate/migrate.go, via
// archives.CompressedArchive + FilesFromDisk). No vendored copy of the
// module is available in this workspace to confirm the extraction
// signature, so this is written against the archives.Extractor shape
// documented by the library's public API (Identify to detect the format,
// then Extract with a per-file callback).
func extractArchive(ctx context.Context, archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive %q: %w", archivePath, err)
	}
	defer f.Close()

	format, reader, err := archives.Identify(ctx, archivePath, f)
	if err != nil {
		return fmt.Errorf("identify archive %q: %w", archivePath, err)
	}

	extractor, ok := format.(archives.Extractor)
	if !ok {
		return fmt.Errorf("format for %q does not support extraction", archivePath)
	}

	return extractor.Extract(ctx, reader, func(ctx context.Context, file archives.FileInfo) error {
		if file.IsDir() {
			return nil
		}
		target := filepath.Join(destDir, filepath.FromSlash(file.NameInArchive))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create extraction dir for %q: %w", target, err)
		}

		src, err := file.Open()
		if err != nil {
			return fmt.Errorf("open archived file %q: %w", file.NameInArchive, err)
		}
		defer src.Close()

		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, file.Mode()&fs.ModePerm)
		if err != nil {
			return fmt.Errorf("create extracted file %q: %w", target, err)
		}
		defer out.Close()

		if _, err := io.Copy(out, src); err != nil {
			return fmt.Errorf("write extracted file %q: %w", target, err)
		}
		return nil
	})
}
