package processor

import (
	"fmt"
	"io"
	"os"

	"github.com/bookarr/bookarr/internal/models"
)

// transferFile moves src to dst per the configured complete_action (§4.K
// step 6). A same-path transfer is a no-op. hardlink falls back to a copy
// when the link fails (typically a cross-device source).
func transferFile(action models.CompleteAction, src, dst string) error {
	if samePath(src, dst) {
		return nil
	}

	switch action {
	case models.ActionHardlink:
		if err := os.Link(src, dst); err == nil {
			return nil
		}
		return copyFile(src, dst)
	case models.ActionMove:
		if err := copyFile(src, dst); err != nil {
			return err
		}
		return os.Remove(src)
	default:
		return copyFile(src, dst)
	}
}

func samePath(a, b string) bool {
	ai, aerr := os.Stat(a)
	bi, berr := os.Stat(b)
	if aerr != nil || berr != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

// copyFile copies src to dst, preserving the source's permission bits.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source %q: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source %q: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create destination %q: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %q to %q: %w", src, dst, err)
	}
	return out.Close()
}
