package scanner

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	partDirMarker = regexp.MustCompile(`(?i)^(cd|part|disc|volume|pt|level|buch)\.?\s*\d+$`)

	// chapterMarker matches embedded chapter/part/disc markers plus a
	// trailing bare number, used both to tell a "master" single file
	// apart from a chapter file and to strip noise when cleaning a name
	// for title/author parsing.
	chapterMarker = regexp.MustCompile(`(?i)\b(part|pt|disc|cd|volume|vol|v|chp|chapter|level|buch)\.?\s*\d+\b|[\s\-.]\d+$`)

	adTag        = regexp.MustCompile(`(?i)\bAD\d+\b`)
	bitrateTag   = regexp.MustCompile(`@\d+`)
	parenGroup   = regexp.MustCompile(`\(([^)]+)\)`)
	bracketGroup = regexp.MustCompile(`\[([^\]]+)\]`)
	braceGroup   = regexp.MustCompile(`\{[^}]+\}`)
	noiseWords   = regexp.MustCompile(`(?i)\b(unabridged|abridged|audiobook|hq|kbps|aac|mp3|m4b|m4a|flac|dramatisation|dramatized|full\s*cast|bbc|read by|narrated by|ger|french|german|buch|level)\b`)
	markerWord   = regexp.MustCompile(`(?i)\b(chp|chapter|part|pt|disc|cd|volume|vol|v|track|level|buch|book)\s*\d+\b`)
	cpMarker     = regexp.MustCompile(`(?i)\bc\d+p\d+\b`)
	cOrPMarker   = regexp.MustCompile(`(?i)\b[cp]\d+\b`)
	leadingDigit = regexp.MustCompile(`^\s*\d+[\s\-]+`)
	trailingNum  = regexp.MustCompile(`[\s\-]+\d+\s*$`)
	multiSpace   = regexp.MustCompile(`\s+`)

	garbageHead = regexp.MustCompile(`(?i)^MI[0-9A-Z~]{5,}`)

	languageSniff = regexp.MustCompile(`(?i)[\[(_\s](ger|german|de|fre|french|fr|ita|italian|it|spa|spanish|es|jpn|japanese|jp)[\])_\s]`)
	buchWord      = regexp.MustCompile(`(?i)\bbuch\b`)
)

var languageCodes = map[string]string{
	"ger": "de", "german": "de", "de": "de",
	"fre": "fr", "french": "fr", "fr": "fr",
	"ita": "it", "italian": "it", "it": "it",
	"spa": "es", "spanish": "es", "es": "es",
	"jpn": "jp", "japanese": "jp", "jp": "jp",
}

// looksLikeGarbage detects 8.3-style DOS filename remnants (MI20D0~1.MP3):
// a short, mostly-uppercase-and-tilde stem that carries no useful title.
func looksLikeGarbage(name string) bool {
	if garbageHead.MatchString(name) {
		return true
	}
	if strings.Contains(name, "~") && len(name) < 13 {
		return true
	}
	return false
}

// cleanString strips the audio extension, technical noise (bitrates,
// narrator credits in braces, "unabridged"/"read by" boilerplate, chapter
// markers), and collapses whitespace, leaving a best-effort human title.
func cleanString(name string) string {
	if name == "" {
		return ""
	}
	name = audioExtPattern.ReplaceAllString(name, "")
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, ".", " ")
	name = adTag.ReplaceAllString(name, "")
	name = bitrateTag.ReplaceAllString(name, "")
	name = parenGroup.ReplaceAllString(name, " $1 ")
	name = bracketGroup.ReplaceAllString(name, " $1 ")
	name = braceGroup.ReplaceAllString(name, "")
	name = noiseWords.ReplaceAllString(name, "")
	name = markerWord.ReplaceAllString(name, "")
	name = cpMarker.ReplaceAllString(name, "")
	name = cOrPMarker.ReplaceAllString(name, "")
	name = leadingDigit.ReplaceAllString(name, "")
	name = trailingNum.ReplaceAllString(name, "")
	name = multiSpace.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

var audioExtPattern = regexp.MustCompile(`(?i)\.(m4b|mp3|m4a|flac|wav|ogg|opus|aac|wma)$`)

// parseName splits a cleaned basename on " - " into (author, title): three
// segments drop a trailing short/numeric/kbps segment first; two segments
// are author/title; one segment is title-only with no author guess.
func parseName(name string) (author, title string) {
	if name == "" {
		return "", ""
	}
	clean := cleanString(name)
	if !strings.Contains(clean, " - ") {
		return "", clean
	}

	var parts []string
	for _, p := range strings.Split(clean, " - ") {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) >= 3 {
		last := strings.ToLower(parts[len(parts)-1])
		if _, err := strconv.Atoi(parts[len(parts)-1]); err == nil || len(parts[len(parts)-1]) < 4 || strings.Contains(last, "kbps") {
			parts = parts[:len(parts)-1]
		}
	}
	switch {
	case len(parts) >= 2:
		return parts[0], parts[1]
	case len(parts) == 1:
		return "", parts[0]
	default:
		return "", clean
	}
}

// detectLanguage sniffs a bracketed/parenthesized language marker such as
// "(GER)", "[French]", or the bare word "buch" (a German audiobook
// convention), returning an ISO-639-1-ish code or "".
func detectLanguage(text string) string {
	if text == "" {
		return ""
	}
	if buchWord.MatchString(text) {
		return "de"
	}
	if m := languageSniff.FindStringSubmatch(text); m != nil {
		return languageCodes[strings.ToLower(m[1])]
	}
	return ""
}
