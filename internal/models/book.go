// Package models holds the durable domain types shared across the core
// pipeline: books, requests, and the library-import session/item pair.
package models

import "time"

// Book is the canonical, store-attached representation of an audiobook.
// The external identifier (ASIN-shaped, 10 char alphanumeric) is its primary
// key; everything else is refreshed from the metadata client on a TTL.
type Book struct {
	ASIN string `json:"asin"`

	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle,omitempty"`
	Authors  []string `json:"authors"`
	Narrators []string `json:"narrators,omitempty"`

	CoverURL string `json:"coverUrl,omitempty"`

	ReleaseDate *time.Time `json:"releaseDate,omitempty"`
	RuntimeMin  int        `json:"runtimeMin,omitempty"`

	// Series holds ordered series names; an entry may embed " #<index>"
	// when the provider didn't split it out separately.
	Series      []string `json:"series,omitempty"`
	SeriesIndex string   `json:"seriesIndex,omitempty"`

	Genres      []string `json:"genres,omitempty"`
	Publisher   string   `json:"publisher,omitempty"`
	Description string   `json:"description,omitempty"`
	Language    string   `json:"language,omitempty"`

	// Downloaded is set true the first time the processor successfully
	// writes files for this book. It is never cleared by the metadata
	// refresh pipeline.
	Downloaded bool `json:"downloaded"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// FirstAuthor returns the book's first credited author, or "Unknown" when
// the author list is empty. Used for folder-pattern interpolation.
func (b *Book) FirstAuthor() string {
	if len(b.Authors) == 0 || b.Authors[0] == "" {
		return "Unknown"
	}
	return b.Authors[0]
}

// ReleaseYear returns the four digit release year, or "Unknown" when the
// release date is not known.
func (b *Book) ReleaseYear() string {
	if b.ReleaseDate == nil {
		return "Unknown"
	}
	return b.ReleaseDate.Format("2006")
}

// PrimarySeries returns the display form of the book's lead series entry,
// e.g. "The Stormlight Archive #4", or "" when the book has no series.
func (b *Book) PrimarySeries() string {
	if len(b.Series) == 0 {
		return ""
	}
	name := b.Series[0]
	if b.SeriesIndex != "" {
		return name + " #" + b.SeriesIndex
	}
	return name
}

// IsFresh reports whether the book was refreshed within ttl and carries
// complete-enough metadata (a non-empty series list) per the store's
// freshness gate (§4.D).
func (b *Book) IsFresh(now time.Time, ttl time.Duration) bool {
	if b == nil {
		return false
	}
	return now.Sub(b.UpdatedAt) <= ttl && len(b.Series) > 0
}
