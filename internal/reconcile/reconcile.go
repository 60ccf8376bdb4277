// Package reconcile matches a scanned book unit (§4.L) against metadata
// provider search results (§4.M), grounded on the original Python
// LibraryScanner's _auto_match cascade
// (original_source/app/internal/library/scanner.py).
package reconcile

import (
	"context"
	"strings"

	"github.com/bookarr/bookarr/internal/models"
)

// MetadataClient is the subset of internal/metadata.Client this package
// needs: identifier search plus full-record lookup.
type MetadataClient interface {
	Search(ctx context.Context, query string) ([]string, error)
	FetchByID(ctx context.Context, id, region string) (*models.Book, error)
}

const (
	maxSearchQueries   = 6
	maxResultsPerQuery = 20
	acceptThreshold    = 60.0
)

// Result is the outcome of one match attempt, ready to persist onto an
// ImportItem.
type Result struct {
	ASIN   string
	Score  float64 // [0,1]
	Status models.ItemStatus
}

// Match runs the full candidate-build, ASIN-fast-path, and search-score
// cascade for one scanned unit and returns the best match, or a
// "missing" result when nothing scores above acceptThreshold.
func Match(ctx context.Context, client MetadataClient, item Item) (Result, error) {
	titleCandidates, authorCandidates := buildCandidates(item)

	if asin := extractASIN(item.SourcePath); asin != "" {
		book, err := client.FetchByID(ctx, asin, item.Language)
		if err == nil && book != nil {
			score := 0.98
			if isExactMatch(titleCandidates, authorCandidates, book) {
				score = 1.0
			}
			return Result{ASIN: book.ASIN, Score: score, Status: models.ItemMatched}, nil
		}
	}

	queries := buildSearchQueries(titleCandidates, authorCandidates, item.Language)

	var bestBook *models.Book
	bestScore := 0.0
	seen := make(map[string]bool)

	for _, q := range queries {
		if len(q) < 3 {
			continue
		}
		ids, err := client.Search(ctx, q)
		if err != nil {
			continue
		}
		if len(ids) > maxResultsPerQuery {
			ids = ids[:maxResultsPerQuery]
		}
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true

			book, err := client.FetchByID(ctx, id, item.Language)
			if err != nil || book == nil {
				continue
			}

			refs := titleCandidates
			if len(refs) == 0 {
				refs = []string{q}
			}
			score := scoreCandidate(refs, authorCandidates, book)
			if score > bestScore {
				bestScore, bestBook = score, book
			}
		}
	}

	if bestBook == nil || bestScore <= acceptThreshold {
		return Result{Status: models.ItemMissing}, nil
	}

	score := bestScore / 100
	if isExactMatch(titleCandidates, authorCandidates, bestBook) {
		score = 1.0
	} else if score > 0.99 {
		score = 0.99
	}
	return Result{ASIN: bestBook.ASIN, Score: score, Status: models.ItemMatched}, nil
}

// buildSearchQueries produces up to maxSearchQueries query strings: the
// title candidates alone, every author+title and title+author
// combination when both are present, or the author candidates alone
// when no title was detected; each gets a language-name suffix when the
// unit's detected language isn't already named in the query text.
func buildSearchQueries(titleCandidates, authorCandidates []string, language string) []string {
	var queries []string
	queries = append(queries, titleCandidates...)

	switch {
	case len(authorCandidates) > 0 && len(titleCandidates) > 0:
		for _, a := range authorCandidates {
			for _, t := range titleCandidates {
				queries = append(queries, a+" "+t, t+" "+a)
			}
		}
	case len(authorCandidates) > 0:
		queries = append(queries, authorCandidates...)
	}

	queries = dedupeCandidates(queries)
	if len(queries) > maxSearchQueries {
		queries = queries[:maxSearchQueries]
	}

	if langName, ok := languageNames[language]; ok {
		for i, q := range queries {
			if !strings.Contains(strings.ToLower(q), strings.ToLower(langName)) {
				queries[i] = q + " " + langName
			}
		}
	}
	return queries
}
