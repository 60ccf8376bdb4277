package models

import "time"

// Protocol discriminates the two shapes an indexer result can take (§3).
type Protocol string

const (
	ProtocolTorrent Protocol = "torrent"
	ProtocolUsenet  Protocol = "usenet"
)

// BookMetadata is the enrichment sub-record a source enricher (§4.F)
// attaches to a Source after deciding it recognizes the indexer.
type BookMetadata struct {
	Title     string
	Subtitle  string
	Authors   []string
	Narrators []string
	Filetype  string // e.g. "m4b", "mp3"; "" when undetected
}

// Source is a single candidate download for a book. It is never persisted
// across process restarts (§3) and lives only in the coalesced cache (§4.B).
type Source struct {
	GUID         string
	IndexerID    string
	IndexerName  string
	Title        string
	SizeBytes    int64
	PublishDate  time.Time
	InfoURL      string
	IndexerFlags map[string]struct{} // lowercased

	DownloadURL string // optional
	MagnetURL   string // optional

	Protocol Protocol

	// Torrent-only.
	Seeders  int
	Leechers int

	// Usenet-only.
	Grabs int

	BookMetadata BookMetadata
}

// Key is the uniqueness tuple used for caching and dispatch (§3):
// (book_title, guid, indexer_id).
type Key struct {
	BookTitle string
	GUID      string
	IndexerID string
}

// SourceKey builds a Source's cache/dispatch key against the book it was
// searched for.
func SourceKey(bookTitle string, s Source) Key {
	return Key{BookTitle: bookTitle, GUID: s.GUID, IndexerID: s.IndexerID}
}

// HasFlag reports whether the lowercased flag is present.
func (s *Source) HasFlag(flag string) bool {
	_, ok := s.IndexerFlags[flag]
	return ok
}

// AddFlag appends a (lowercased) indexer flag, used by enrichers (§4.F).
func (s *Source) AddFlag(flag string) {
	if s.IndexerFlags == nil {
		s.IndexerFlags = make(map[string]struct{})
	}
	s.IndexerFlags[normalizeFlag(flag)] = struct{}{}
}

func normalizeFlag(flag string) string {
	out := make([]byte, 0, len(flag))
	for i := 0; i < len(flag); i++ {
		c := flag[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// HasAnyDownloadHandle reports whether the source carries enough
// information to actually be dispatched to a torrent client (the "missing
// both magnet and download URL" hard gate in §4.G).
func (s *Source) HasAnyDownloadHandle() bool {
	return s.MagnetURL != "" || s.DownloadURL != ""
}
