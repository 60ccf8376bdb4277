// Package textnorm normalizes book titles and author names for fuzzy
// comparison (§4.M): diacritics stripped, case folded, a handful of
// punctuation marks collapsed to spaces.
package textnorm

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/autobrr/autobrr/pkg/ttlcache"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9 ]+`)

var cache = ttlcache.New(ttlcache.Options[string, string]{}.SetDefaultTTL(10 * time.Minute))

// Normalize lowercases s, strips diacritics, maps a small set of
// punctuation to spaces or words, and collapses whitespace. Results are
// cached since the same candidate strings get normalized repeatedly
// across every query/result pair in a match pass.
func Normalize(s string) string {
	if cached, ok := cache.Get(s); ok {
		return cached
	}
	out := normalize(s)
	cache.Set(s, out, ttlcache.DefaultTTL)
	return out
}

func normalize(s string) string {
	s = foldDiacritics(s)
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "'", "")
	s = strings.ReplaceAll(s, "’", "")
	s = strings.ReplaceAll(s, "‘", "")
	s = strings.ReplaceAll(s, "&", " and ")
	s = strings.ReplaceAll(s, ":", " ")
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, ",", " ")
	s = strings.ReplaceAll(s, ".", " ")
	s = nonAlnum.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// foldDiacritics removes combining marks left after NFKD decomposition
// ("Shōgun" -> "Shogun", "Björk" -> "Bjork").
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Compact removes all whitespace from an already-normalized string, for
// comparisons that should be insensitive to word-boundary placement
// ("the way of kings" -> "thewayofkings").
func Compact(normalized string) string {
	return strings.ReplaceAll(normalized, " ", "")
}

// SplitAuthors expands a free-text author field into individual names,
// splitting on comma, "&", and " and " (§4.M exact-match predicate).
func SplitAuthors(s string) []string {
	s = strings.ReplaceAll(s, "&", ",")
	s = strings.ReplaceAll(s, " and ", ",")
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
