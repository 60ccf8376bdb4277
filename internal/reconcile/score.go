package reconcile

import (
	"strings"

	"github.com/bookarr/bookarr/internal/models"
	"github.com/bookarr/bookarr/pkg/fuzzyratio"
	"github.com/bookarr/bookarr/pkg/textnorm"
)

// scoreTextPair is the compound similarity used everywhere in the
// scoring cascade below: the best of four fuzzy ratios over the
// normalized strings and of Ratio and PartialRatio over their
// whitespace-compacted form, taking the overall max.
func scoreTextPair(left, right string) float64 {
	if left == "" || right == "" {
		return 0
	}
	leftNorm := textnorm.Normalize(left)
	rightNorm := textnorm.Normalize(right)
	if leftNorm == "" || rightNorm == "" {
		return 0
	}

	best := fuzzyratio.Ratio(leftNorm, rightNorm)
	if r := fuzzyratio.TokenSetRatio(leftNorm, rightNorm); r > best {
		best = r
	}
	if r := fuzzyratio.PartialRatio(leftNorm, rightNorm); r > best {
		best = r
	}
	if r := fuzzyratio.WRatio(leftNorm, rightNorm); r > best {
		best = r
	}

	leftCompact := textnorm.Compact(leftNorm)
	rightCompact := textnorm.Compact(rightNorm)
	if leftCompact != "" && rightCompact != "" {
		if r := fuzzyratio.Ratio(leftCompact, rightCompact); r > best {
			best = r
		}
		if r := fuzzyratio.PartialRatio(leftCompact, rightCompact); r > best {
			best = r
		}
	}

	return float64(best)
}

// isExactMatch reports whether a candidate title normalizes to one of
// the book's title/subtitle forms AND a candidate author (after
// splitting combined author strings) normalizes to one of the book's
// authors. An exact match short-circuits the score to 1.0.
func isExactMatch(titleCandidates, authorCandidates []string, book *models.Book) bool {
	if book == nil || book.Title == "" || len(book.Authors) == 0 {
		return false
	}

	normalizedTitles := map[string]bool{textnorm.Normalize(book.Title): true}
	if book.Subtitle != "" {
		normalizedTitles[textnorm.Normalize(book.Title+" "+book.Subtitle)] = true
	}

	titleMatch := false
	for _, t := range titleCandidates {
		if t == "" {
			continue
		}
		if normalizedTitles[textnorm.Normalize(t)] {
			titleMatch = true
			break
		}
	}
	if !titleMatch {
		return false
	}

	normalizedAuthors := make(map[string]bool, len(book.Authors))
	for _, a := range book.Authors {
		if a != "" {
			normalizedAuthors[textnorm.Normalize(a)] = true
		}
	}
	if len(normalizedAuthors) == 0 {
		return false
	}

	for _, a := range expandAuthorCandidates(authorCandidates) {
		if normalizedAuthors[textnorm.Normalize(a)] {
			return true
		}
	}
	return false
}

var languageNames = map[string]string{
	"de": "German",
	"fr": "French",
	"it": "Italian",
	"es": "Spanish",
}

// scoreCandidate runs the full §4.M blend for one search result against
// the item's title/author candidates, returning a score in [0, 100].
func scoreCandidate(titleCandidates, authorCandidates []string, book *models.Book) float64 {
	titleVariants := []string{book.Title}
	if book.Subtitle != "" {
		titleVariants = append(titleVariants, book.Title+" "+book.Subtitle)
	}
	for _, s := range book.Series {
		titleVariants = append(titleVariants, book.Title+" "+s)
	}

	refs := titleCandidates
	if len(refs) == 0 {
		return 0
	}

	tScore := 0.0
	for _, t := range refs {
		for _, bt := range titleVariants {
			if s := scoreTextPair(t, bt); s > tScore {
				tScore = s
			}
		}
	}

	refTitle := refs[0]
	for _, t := range refs {
		if len(textnorm.Normalize(t)) > len(textnorm.Normalize(refTitle)) {
			refTitle = t
		}
	}
	refLen := float64(len(textnorm.Normalize(refTitle)))
	bookLen := float64(len(textnorm.Normalize(book.Title)))
	if refLen > 0 && bookLen > 0 && bookLen < refLen*0.7 {
		tScore -= abs(refLen-bookLen) * 1.5
	}

	for _, t := range refs {
		tFirst := firstWord(textnorm.Normalize(t))
		if tFirst == "" {
			continue
		}
		boosted := false
		for _, bt := range titleVariants {
			if firstWord(textnorm.Normalize(bt)) == tFirst {
				tScore += 4
				boosted = true
				break
			}
		}
		if boosted {
			break
		}
	}

	seriesScore := 0.0
	if len(book.Series) > 0 {
		for _, t := range refs {
			for _, s := range book.Series {
				if sc := scoreTextPair(t, s); sc > seriesScore {
					seriesScore = sc
				}
			}
		}
	}
	if seriesScore > 90 && tScore > 60 && seriesScore-4 > tScore {
		tScore = seriesScore - 4
	}

	aScore := 0.0
	if len(authorCandidates) > 0 && len(book.Authors) > 0 {
		for _, a := range authorCandidates {
			for _, ba := range book.Authors {
				if sc := scoreTextPair(a, ba); sc > aScore {
					aScore = sc
				}
			}
		}
	}

	swapTScore := 0.0
	if len(authorCandidates) > 0 {
		for _, a := range authorCandidates {
			for _, bt := range titleVariants {
				if sc := scoreTextPair(a, bt); sc > swapTScore {
					swapTScore = sc
				}
			}
		}
	}
	swapAScore := 0.0
	if len(titleCandidates) > 0 && len(book.Authors) > 0 {
		for _, t := range titleCandidates {
			for _, ba := range book.Authors {
				if sc := scoreTextPair(t, ba); sc > swapAScore {
					swapAScore = sc
				}
			}
		}
	}
	isSwapped := swapTScore > 88 && swapAScore > 88
	if isSwapped {
		tScore, aScore = swapTScore, swapAScore
	}

	var final float64
	if len(authorCandidates) > 0 {
		authorInTitle := false
		for _, a := range authorCandidates {
			if scoreTextPair(a, book.Title) > 85 {
				authorInTitle = true
				break
			}
		}
		authorInSeries := false
		if len(book.Series) > 0 {
			for _, a := range authorCandidates {
				for _, s := range book.Series {
					if scoreTextPair(a, s) > 85 {
						authorInSeries = true
						break
					}
				}
				if authorInSeries {
					break
				}
			}
		}

		switch {
		case isSwapped || authorInTitle || authorInSeries || tScore > 95:
			final = tScore*0.9 + aScore*0.1
		case aScore < 50 && tScore < 90:
			final = tScore*0.7 + aScore*0.3 - 25
		default:
			final = tScore*0.82 + aScore*0.18
		}
	} else {
		final = tScore * 0.96
	}

	if final < 0 {
		final = 0
	}
	if final > 100 {
		final = 100
	}
	return final
}

func firstWord(s string) string {
	i := strings.IndexByte(s, ' ')
	if i < 0 {
		return s
	}
	return s[:i]
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
