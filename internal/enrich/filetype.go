package enrich

import (
	"context"
	"regexp"
	"strings"

	"github.com/bookarr/bookarr/internal/models"
)

var filetypeHint = regexp.MustCompile(`(?i)\b(m4b|m4a|mp3|flac)\b`)

// FiletypeAdapter is the always-on heuristic adapter (§4.F): it never
// claims exclusivity over a source (Matches always true) and only fills
// in Filetype when no other adapter already set one.
type FiletypeAdapter struct{}

func (FiletypeAdapter) Name() string { return "filetype" }

func (FiletypeAdapter) Setup(ctx context.Context, book *models.Book, container *Container) error {
	return nil
}

func (FiletypeAdapter) Matches(source *models.Source, container *Container) bool { return true }

func (FiletypeAdapter) Edit(source *models.Source, container *Container) {
	if source.BookMetadata.Filetype != "" {
		return
	}
	if m := filetypeHint.FindString(source.Title); m != "" {
		source.BookMetadata.Filetype = strings.ToLower(m)
	}
}

// FreeleechAdapter tags private-tracker freeleech markers as an indexer
// flag the ranking engine's flag-score table can match on.
type FreeleechAdapter struct{}

var freeleechHint = regexp.MustCompile(`(?i)freeleech`)

func (FreeleechAdapter) Name() string { return "freeleech" }

func (FreeleechAdapter) Setup(ctx context.Context, book *models.Book, container *Container) error {
	return nil
}

func (FreeleechAdapter) Matches(source *models.Source, container *Container) bool {
	return freeleechHint.MatchString(source.Title) || source.HasFlag("freeleech")
}

func (FreeleechAdapter) Edit(source *models.Source, container *Container) {
	source.AddFlag("personal_freeleech")
}
