// Package scanner walks a library root and groups audio files into "book
// units" using the path/filename heuristics of §4.L, grounded on the
// original Python LibraryScanner (app/internal/library/scanner.py) and,
// for the directory-walk idiom, qui's dirscan.Scanner
// (internal/services/dirscan/scanner.go).
package scanner

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bookarr/bookarr/pkg/fuzzyratio"
	"github.com/bookarr/bookarr/pkg/naturalsort"
)

var audioExtensions = map[string]bool{
	".m4b": true, ".mp3": true, ".m4a": true, ".flac": true,
	".wav": true, ".ogg": true, ".opus": true, ".aac": true, ".wma": true,
}

// singleFileExtensions are the "master" container formats: a lone file in
// one of these without a chapter/part marker in its name is a complete
// book by itself.
var singleFileExtensions = map[string]bool{".m4b": true, ".m4a": true}

// Unit is one detected book's physical footprint: a file path, a
// directory path, or several sibling file paths joined with "|" (§3).
type Unit struct {
	SourcePath string
	Author     string
	Title      string
	Language   string
}

// Walk detects book units under root (§4.L). Directories recognized as a
// "folder of parts" or claimed by a lone collection are not descended
// into further; every other directory contributes zero or more units
// from its own audio file children before recursion continues.
func Walk(root string) ([]Unit, error) {
	var units []Unit
	err := walkDir(root, root, &units)
	return units, err
}

func walkDir(dir, root string, units *[]Unit) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var subdirs []os.DirEntry
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			subdirs = append(subdirs, e)
		} else if audioExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, e.Name())
		}
	}

	if claimed, ok := claimFolderOfParts(dir, subdirs); ok {
		*units = append(*units, claimed)
		return nil
	}

	if len(files) > 0 {
		sort.Slice(files, func(i, j int) bool { return naturalsort.Less(files[i], files[j]) })
		claimedWhole := detectUnitsInDir(dir, root, files, units)
		if claimedWhole {
			return nil
		}
	}

	for _, sd := range subdirs {
		if err := walkDir(filepath.Join(dir, sd.Name()), root, units); err != nil {
			return err
		}
	}
	return nil
}

// claimFolderOfParts recognizes a directory whose children are
// predominantly CD/part/disc-style subdirectories, folding the whole
// directory into a single unit and stopping descent.
func claimFolderOfParts(dir string, subdirs []os.DirEntry) (Unit, bool) {
	if len(subdirs) == 0 {
		return Unit{}, false
	}
	matches := 0
	for _, sd := range subdirs {
		if partDirMarker.MatchString(sd.Name()) {
			matches++
		}
	}
	if matches == 0 || float64(matches) < float64(len(subdirs))*0.5 {
		return Unit{}, false
	}
	author, title, lang := guessFromPath(dir, dir, false)
	return Unit{SourcePath: dir, Author: author, Title: title, Language: lang}, true
}

// detectUnitsInDir appends every unit found among dir's direct audio file
// children, returning true if the whole directory was claimed by a lone
// collection (so the caller must not also recurse into its subdirectories
// looking for more — there are none left to find).
func detectUnitsInDir(dir, root string, files []string, units *[]Unit) bool {
	var masters []string
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f))
		if !singleFileExtensions[ext] {
			continue
		}
		if chapterMarker.MatchString(strings.TrimSuffix(f, filepath.Ext(f))) {
			continue
		}
		fpath := filepath.Join(dir, f)
		author, title, lang := guessFromPath(fpath, root, true)
		*units = append(*units, Unit{SourcePath: fpath, Author: author, Title: title, Language: lang})
		masters = append(masters, f)
	}

	masterSet := make(map[string]bool, len(masters))
	for _, m := range masters {
		masterSet[m] = true
	}
	var remaining []string
	for _, f := range files {
		if !masterSet[f] {
			remaining = append(remaining, f)
		}
	}
	if len(remaining) == 0 {
		return false
	}

	groups := groupByPrefix(remaining)

	for key, groupFiles := range groups {
		isCollection := isCollectionGroup(key, groupFiles)

		if len(masters) > 0 && isCollection && isRedundantWithMaster(key, masters) {
			continue
		}

		if len(groups) == 1 && len(masters) == 0 && isCollection {
			author, title, lang := guessFromPath(dir, root, false)
			*units = append(*units, Unit{SourcePath: dir, Author: author, Title: title, Language: lang})
			return true
		}

		if isCollection {
			rep := filepath.Join(dir, groupFiles[0])
			paths := make([]string, len(groupFiles))
			for i, f := range groupFiles {
				paths[i] = filepath.Join(dir, f)
			}
			author, title, lang := guessFromPath(rep, root, true)
			*units = append(*units, Unit{SourcePath: strings.Join(paths, "|"), Author: author, Title: title, Language: lang})
		} else {
			for _, f := range groupFiles {
				fpath := filepath.Join(dir, f)
				author, title, lang := guessFromPath(fpath, root, true)
				*units = append(*units, Unit{SourcePath: fpath, Author: author, Title: title, Language: lang})
			}
		}
	}
	return false
}

var nonLetter = regexp.MustCompile(`[^a-z]`)

// groupByPrefix buckets remaining files by a letters-only prefix of their
// cleaned stem, so "Track01.mp3"/"Track02.mp3" land in the same group
// regardless of the digit run; 8.3-garbage names get their own bucket so
// they never establish a misleading grouping key.
func groupByPrefix(files []string) map[string][]string {
	groups := make(map[string][]string)
	for _, f := range files {
		var key string
		if looksLikeGarbage(f) {
			key = "garbage_bin"
		} else {
			clean := strings.ToLower(cleanString(f))
			key = nonLetter.ReplaceAllString(clean, "")
			if len(key) > 12 {
				key = key[:12]
			}
			if key == "" {
				key = "misc_pile"
			}
		}
		groups[key] = append(groups[key], f)
	}
	return groups
}

func isCollectionGroup(key string, files []string) bool {
	if len(files) <= 1 {
		return false
	}
	matched := 0
	for _, f := range files {
		if chapterMarker.MatchString(strings.TrimSuffix(f, filepath.Ext(f))) {
			matched++
		}
	}
	if key == "garbage_bin" || float64(matched)/float64(len(files)) > 0.4 {
		return true
	}
	return fuzzyratio.Ratio(files[0], files[len(files)-1]) > 60
}

func isRedundantWithMaster(key string, masters []string) bool {
	prefix := key
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	for _, m := range masters {
		mKey := nonLetter.ReplaceAllString(strings.ToLower(cleanString(m)), "")
		if len(mKey) > 8 {
			mKey = mKey[:8]
		}
		if prefix == mKey {
			return true
		}
	}
	return false
}

// guessFromPath derives (author, title, language) for one unit using the
// cascade described in §4.L: parse the cleaned basename, fall back to the
// parent directory for whichever half is still missing, and reach for the
// grandparent for the author when the file sits two levels under root.
func guessFromPath(path, root string, isFile bool) (author, title, lang string) {
	actual := path
	if idx := strings.IndexByte(actual, '|'); idx >= 0 {
		actual = actual[:idx]
	}

	rel, err := filepath.Rel(root, actual)
	if err != nil {
		rel = actual
	}
	parts := strings.Split(rel, string(filepath.Separator))

	name := filepath.Base(actual)
	if isFile {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}

	lang = detectLanguage(name)
	if lang == "" && len(parts) >= 2 {
		lang = detectLanguage(parts[len(parts)-2])
	}

	author, title = parseName(name)
	cleanTitle := cleanString(title)
	if isFile && (looksLikeGarbage(name) || cleanTitle == "" || isAllDigits(cleanTitle) || len(cleanTitle) < 3) {
		title = ""
	}

	if (author == "" || title == "") && len(parts) >= 2 {
		parentAuthor, parentTitle := parseName(parts[len(parts)-2])

		if isFile {
			if len(parts) >= 3 {
				gpAuthor, _ := parseName(parts[len(parts)-3])
				if gpAuthor != "" {
					author = gpAuthor
				} else if author == "" {
					author = parts[len(parts)-3]
				}
				if title == "" {
					if parentTitle != "" {
						title = parentTitle
					} else {
						title = parts[len(parts)-2]
					}
				}
			} else {
				if parentAuthor != "" && author == "" {
					author = parentAuthor
				}
				if title == "" {
					if parentTitle != "" {
						title = parentTitle
					} else {
						title = parts[len(parts)-2]
					}
				}
			}
		} else if author == "" {
			if parentAuthor != "" {
				author = parentAuthor
			} else {
				author = parts[len(parts)-2]
			}
		}
	}

	return author, title, lang
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type sidecarASIN struct {
	ASIN string `json:"asin"`
}

// FindByIdentifier walks root looking for a metadata.json sidecar whose
// "asin" field equals target, returning its containing directory.
func FindByIdentifier(root, target string) (string, bool, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || found != "" {
			return nil
		}
		if d.Name() != "metadata.json" {
			return nil
		}
		var sc sidecarASIN
		raw, rerr := os.ReadFile(path)
		if rerr != nil || json.Unmarshal(raw, &sc) != nil {
			return nil
		}
		if sc.ASIN == target {
			found = filepath.Dir(path)
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return found, found != "", nil
}

// MapByIdentifier walks root once, building asin -> absolute directory
// path for every metadata.json sidecar found, for bulk lookups (the
// import engine's LibraryChecker and reconciliation sessions).
func MapByIdentifier(root string) (map[string]string, error) {
	out := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || d.Name() != "metadata.json" {
			return nil
		}
		var sc sidecarASIN
		raw, rerr := os.ReadFile(path)
		if rerr != nil || json.Unmarshal(raw, &sc) != nil || sc.ASIN == "" {
			return nil
		}
		abs, aerr := filepath.Abs(filepath.Dir(path))
		if aerr != nil {
			abs = filepath.Dir(path)
		}
		out[sc.ASIN] = abs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
