package reconcile

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bookarr/bookarr/pkg/textnorm"
)

var (
	byPattern  = regexp.MustCompile(`(?i)\s+by\s+`)
	asinInPath = regexp.MustCompile(`(?i)(?:^|[^A-Z0-9])(B0[A-Z0-9]{8})(?:$|[^A-Z0-9])`)
	splitNames = regexp.MustCompile(`(?i)\s*(?:,|&| and )\s*`)
)

// Item is the scanner's output carried into a match attempt: enough to
// build search candidates without reaching back into the filesystem.
type Item struct {
	SourcePath     string
	DetectedTitle  string
	DetectedAuthor string
	Language       string
}

// extractASIN pulls a bare ASIN out of a path component, the fast path
// for libraries that keep Audible IDs in folder or file names.
func extractASIN(path string) string {
	m := asinInPath.FindStringSubmatch(path)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// buildCandidates derives title and author search candidates from an
// item: the detected title/author, a "Title by Author" split if
// present, and the cleaned parent-folder and leaf-file names as a
// fallback for items the scanner only guessed at.
func buildCandidates(item Item) (titles, authors []string) {
	first := strings.SplitN(item.SourcePath, "|", 2)[0]
	folderClean := cleanSegment(filepath.Base(filepath.Dir(first)))
	fileClean := cleanSegment(strings.TrimSuffix(filepath.Base(first), filepath.Ext(first)))

	var extraTitle, extraAuthor string
	if item.DetectedTitle != "" {
		if parts := byPattern.Split(item.DetectedTitle, 2); len(parts) == 2 {
			extraTitle, extraAuthor = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		}
	}

	titles = dedupeCandidates([]string{item.DetectedTitle, extraTitle, folderClean, fileClean})
	authors = dedupeCandidates([]string{item.DetectedAuthor, extraAuthor})
	return titles, authors
}

// cleanSegment trims surrounding whitespace from a folder or file based
// candidate; filename noise (bitrates, chapter markers) is not stripped.
// textnorm handles case/diacritics/punctuation on top of this.
func cleanSegment(s string) string {
	return strings.TrimSpace(s)
}

// expandAuthorCandidates splits combined author strings ("A, B & C")
// into individual names, for the exact-match check against a book's
// author list.
func expandAuthorCandidates(authors []string) []string {
	var expanded []string
	for _, a := range authors {
		if a == "" {
			continue
		}
		for _, p := range splitNames.Split(a, -1) {
			p = strings.TrimSpace(p)
			if p != "" {
				expanded = append(expanded, p)
			}
		}
	}
	return dedupeCandidates(expanded)
}

// dedupeCandidates drops empty/too-short values and collapses entries
// that normalize to the same key, preserving first-seen order.
func dedupeCandidates(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if len(v) < 2 {
			continue
		}
		key := textnorm.Normalize(v)
		if key == "" {
			key = strings.ToLower(v)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
