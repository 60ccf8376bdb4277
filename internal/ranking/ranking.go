// Package ranking implements the source scoring engine (§4.G): quality
// bands, a saturating seeder curve, indexer flag bonuses, and title
// affinity, combined by a configurable weighted-sum expression and
// broken by a total tie order (P6).
package ranking

import (
	"math"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/moistari/rls"

	"github.com/bookarr/bookarr/internal/models"
	"github.com/bookarr/bookarr/pkg/fuzzyratio"
)

// Weights configures the final weighted-sum combine.
type Weights struct {
	Quality float64
	Seeders float64
	Flags   float64
	Title   float64

	// Expr, if non-empty, overrides the built-in weighted-sum formula
	// with a user-supplied expr-lang expression evaluated against
	// quality, seeders, flags, title (each already in [0,1]-ish ranges).
	Expr string
}

// Params bundles everything the engine needs beyond the source list
// itself.
type Params struct {
	Book             *models.Book
	Bands            []models.QualityBand
	FlagScores       []models.IndexerFlagScore
	MinSeeders       int
	NameExistsRatio  int
	TitleExistsRatio int
	Weights          Weights
}

// scored pairs a source with its computed components, kept around for
// the tie-break rule.
type scored struct {
	source models.Source
	total  float64
}

// Rank scores and sorts sources, dropping any that fail a hard gate
// (below MinSeeders, missing both download handles, or zero size) rather
// than ranking them last. Ordering is stable and deterministic (P6).
func Rank(sources []models.Source, p Params) []models.Source {
	prog := compileExpr(p.Weights.Expr)

	candidates := make([]scored, 0, len(sources))
	for _, src := range sources {
		if !passesHardGate(src, p.MinSeeders) {
			continue
		}
		total := combine(src, p, prog)
		candidates = append(candidates, scored{source: src, total: total})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return less(candidates[i], candidates[j])
	})

	out := make([]models.Source, len(candidates))
	for i, c := range candidates {
		out[i] = c.source
	}
	return out
}

func passesHardGate(s models.Source, minSeeders int) bool {
	if s.SizeBytes <= 0 {
		return false
	}
	if !s.HasAnyDownloadHandle() {
		return false
	}
	if s.Protocol == models.ProtocolTorrent && s.Seeders < minSeeders {
		return false
	}
	return true
}

// less implements the total order: higher total score first, tie-broken
// by (protocol preference, higher seeders, newer publish date, smaller
// size).
func less(a, b scored) bool {
	if a.total != b.total {
		return a.total > b.total
	}
	if pa, pb := protocolRank(a.source.Protocol), protocolRank(b.source.Protocol); pa != pb {
		return pa > pb
	}
	if a.source.Seeders != b.source.Seeders {
		return a.source.Seeders > b.source.Seeders
	}
	if !a.source.PublishDate.Equal(b.source.PublishDate) {
		return a.source.PublishDate.After(b.source.PublishDate)
	}
	return a.source.SizeBytes < b.source.SizeBytes
}

func protocolRank(p models.Protocol) int {
	if p == models.ProtocolTorrent {
		return 1
	}
	return 0
}

func combine(s models.Source, p Params, prog *vm.Program) float64 {
	quality := qualityScore(s, p.Book, p.Bands)
	seeders := seederScore(s)
	flags := flagScore(s, p.FlagScores)
	title := titleAffinity(s, p.Book, p.NameExistsRatio, p.TitleExistsRatio)

	if prog != nil {
		env := map[string]any{
			"quality": quality,
			"seeders": seeders,
			"flags":   flags,
			"title":   title,
		}
		if out, err := expr.Run(prog, env); err == nil {
			if f, ok := out.(float64); ok {
				return f
			}
		}
	}

	w := p.Weights
	return w.Quality*quality + w.Seeders*seeders + w.Flags*flags + w.Title*title
}

func compileExpr(src string) *vm.Program {
	if strings.TrimSpace(src) == "" {
		return nil
	}
	prog, err := expr.Compile(src, expr.Env(map[string]any{
		"quality": 0.0, "seeders": 0.0, "flags": 0.0, "title": 0.0,
	}))
	if err != nil {
		return nil
	}
	return prog
}

// qualityScore buckets the source's implied bitrate into a band and
// scores it as a triangular function peaking at the band midpoint,
// falling to zero at the endpoints; out-of-band scores 0.
func qualityScore(s models.Source, book *models.Book, bands []models.QualityBand) float64 {
	runtimeSeconds := float64(book.RuntimeMin) * 60
	if runtimeSeconds < 1 {
		runtimeSeconds = 1
	}
	impliedKbits := float64(s.SizeBytes) * 8 / 1000 / runtimeSeconds

	band := bucketFiletype(s, bands)
	if band == nil || !band.InBand(impliedKbits) {
		return 0
	}

	mid := band.Midpoint()
	halfWidth := mid - float64(band.FromKbits)
	if halfWidth <= 0 {
		return 1
	}
	dist := math.Abs(impliedKbits - mid)
	score := 1 - dist/halfWidth
	return math.Max(0, math.Min(1, score))
}

func bucketFiletype(s models.Source, bands []models.QualityBand) *models.QualityBand {
	name := detectBandName(s)
	for i := range bands {
		if bands[i].Name == name {
			return &bands[i]
		}
	}
	for i := range bands {
		if bands[i].Name == "unknown" {
			return &bands[i]
		}
	}
	return nil
}

func detectBandName(s models.Source) string {
	ft := strings.ToLower(s.BookMetadata.Filetype)
	switch ft {
	case "flac", "m4b", "mp3":
		return ft
	case "":
	default:
		return "unknown_audio"
	}

	title := strings.ToLower(s.Title)
	switch {
	case strings.Contains(title, "flac"):
		return "flac"
	case strings.Contains(title, "m4b"):
		return "m4b"
	case strings.Contains(title, "mp3"):
		return "mp3"
	}
	return "unknown"
}

// seederScore is a monotonic saturating function of seeders; usenet
// sources (no seeder concept) get a flat neutral value.
func seederScore(s models.Source) float64 {
	if s.Protocol != models.ProtocolTorrent {
		return 0.5
	}
	if s.Seeders <= 0 {
		return 0
	}
	return 1 - 1/(1+float64(s.Seeders)/10)
}

func flagScore(s models.Source, flagScores []models.IndexerFlagScore) float64 {
	var total float64
	for _, fs := range flagScores {
		if s.HasFlag(strings.ToLower(fs.Flag)) {
			total += fs.Score
		}
	}
	return total
}

// titleAffinity scores the source's title (and separately its enriched
// book_metadata title, if present) against the book's title, discounting
// anything below the configured existence-ratio thresholds. Both source
// titles are parsed through rls first: raw indexer result names carry
// tags like "[MP3 128kbps] (2019)" that would otherwise drag down the
// fuzzy ratio against a clean book title.
func titleAffinity(s models.Source, book *models.Book, nameExistsRatio, titleExistsRatio int) float64 {
	best := 0

	if r := fuzzyratio.Best(releaseTitle(s.Title), book.Title); r >= nameExistsRatio {
		best = max(best, r)
	}
	if s.BookMetadata.Title != "" {
		if r := fuzzyratio.Best(releaseTitle(s.BookMetadata.Title), book.Title); r >= titleExistsRatio {
			best = max(best, r)
		}
	}
	return float64(best) / 100
}

// releaseTitle strips format/encoding/year tags off a raw release name
// via rls's release-name grammar, falling back to the raw name when
// parsing yields nothing usable (e.g. a name with no recognizable tags).
func releaseTitle(name string) string {
	if title := rls.ParseString(name).Title; title != "" {
		return title
	}
	return name
}
