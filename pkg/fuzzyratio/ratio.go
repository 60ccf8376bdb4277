// Package fuzzyratio implements the fuzzywuzzy-style compound similarity
// ratios (§4.M) the match/reconcile engine scores title and author
// candidates with. Go's ecosystem has no package offering these compound
// ratios directly, so they're built here on top of the Levenshtein
// primitive from lithammer/fuzzysearch.
package fuzzyratio

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Ratio is the basic normalized Levenshtein similarity in [0, 100].
func Ratio(a, b string) int {
	if a == "" && b == "" {
		return 100
	}
	dist := fuzzy.LevenshteinDistance(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 100
	}
	score := (1 - float64(dist)/float64(maxLen)) * 100
	if score < 0 {
		score = 0
	}
	return int(score + 0.5)
}

// PartialRatio scores the best-matching substring of the longer string
// against the shorter one, catching cases where one title is a prefix
// or infix of the other (e.g. "Mistborn" vs "Mistborn: The Final Empire").
func PartialRatio(a, b string) int {
	shorter, longer := a, b
	if len(a) > len(b) {
		shorter, longer = b, a
	}
	if shorter == "" {
		return Ratio(a, b)
	}
	if len(longer) <= len(shorter) {
		return Ratio(a, b)
	}

	best := 0
	window := len(shorter)
	for i := 0; i+window <= len(longer); i++ {
		r := Ratio(shorter, longer[i:i+window])
		if r > best {
			best = r
		}
	}
	return best
}

// TokenSetRatio compares the intersection/union of the two strings'
// token sets, which tolerates reordered or repeated words (e.g. "Final
// Empire Mistborn" vs "Mistborn: The Final Empire").
func TokenSetRatio(a, b string) int {
	tokensA := tokenize(a)
	tokensB := tokenize(b)

	setA := toSet(tokensA)
	setB := toSet(tokensB)

	intersection := intersect(setA, setB)
	onlyA := difference(setA, intersection)
	onlyB := difference(setB, intersection)

	sortedIntersection := join(intersection)
	combinedA := strings.TrimSpace(sortedIntersection + " " + join(onlyA))
	combinedB := strings.TrimSpace(sortedIntersection + " " + join(onlyB))

	best := Ratio(sortedIntersection, combinedA)
	if r := Ratio(sortedIntersection, combinedB); r > best {
		best = r
	}
	if r := Ratio(combinedA, combinedB); r > best {
		best = r
	}
	return best
}

// WRatio combines Ratio, PartialRatio, and TokenSetRatio with the
// weighting fuzzywuzzy uses: full-string comparison is trusted most when
// the two strings are similar in length; partial/token comparisons are
// discounted since they can inflate scores for very different lengths.
func WRatio(a, b string) int {
	if a == "" || b == "" {
		return 0
	}

	lenRatio := float64(min(len(a), len(b))) / float64(max(len(a), len(b)))

	base := Ratio(a, b)
	if lenRatio < 0.5 {
		partial := float64(PartialRatio(a, b)) * 0.9
		tokenSet := float64(TokenSetRatio(a, b)) * 0.9
		return int(max3(float64(base), partial, tokenSet) + 0.5)
	}

	tokenSet := float64(TokenSetRatio(a, b)) * 0.95
	return int(max3(float64(base), tokenSet, tokenSet) + 0.5)
}

// Best returns the maximum of Ratio, PartialRatio, TokenSetRatio, and
// WRatio, the compound score the match engine's t_score uses (§4.M).
func Best(a, b string) int {
	r := Ratio(a, b)
	p := PartialRatio(a, b)
	ts := TokenSetRatio(a, b)
	w := WRatio(a, b)
	return maxInt(r, maxInt(p, maxInt(ts, w)))
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return fields
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for k := range a {
		if _, ok := b[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}

func difference(a, sub map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for k := range a {
		if _, ok := sub[k]; !ok {
			out[k] = struct{}{}
		}
	}
	return out
}

func join(set map[string]struct{}) string {
	tokens := make([]string, 0, len(set))
	for k := range set {
		tokens = append(tokens, k)
	}
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
