package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func sourcePaths(units []Unit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.SourcePath
	}
	sort.Strings(out)
	return out
}

func TestWalkDetectsSingleFileMasterBook(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "Susan Cain", "Quiet", "Quiet.m4b"))

	units, err := Walk(root)
	require.NoError(t, err)
	require.Len(t, units, 1)
	require.Equal(t, "Susan Cain", units[0].Author)
	require.Equal(t, "Quiet", units[0].Title)
}

func TestWalkDetectsFolderOfParts(t *testing.T) {
	root := t.TempDir()
	book := filepath.Join(root, "Tolkien", "The Fellowship of the Ring")
	touch(t, filepath.Join(book, "CD1", "track1.mp3"))
	touch(t, filepath.Join(book, "CD2", "track1.mp3"))
	touch(t, filepath.Join(book, "CD3", "track1.mp3"))

	units, err := Walk(root)
	require.NoError(t, err)
	require.Len(t, units, 1)
	require.Equal(t, book, units[0].SourcePath)
}

func TestWalkGroupsChapterFilesIntoCollection(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "Brandon Sanderson", "The Way of Kings")
	touch(t, filepath.Join(dir, "Way of Kings - Part 01.mp3"))
	touch(t, filepath.Join(dir, "Way of Kings - Part 02.mp3"))
	touch(t, filepath.Join(dir, "Way of Kings - Part 03.mp3"))

	units, err := Walk(root)
	require.NoError(t, err)
	require.Len(t, units, 1)
	require.Equal(t, dir, units[0].SourcePath, "lone collection claims the whole folder")
}

func TestWalkKeepsMasterAndChaptersSeparateWhenBothPresent(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "Author", "Book")
	touch(t, filepath.Join(dir, "Book.m4b"))
	touch(t, filepath.Join(dir, "loose notes part 01.mp3"))
	touch(t, filepath.Join(dir, "loose notes part 02.mp3"))

	units, err := Walk(root)
	require.NoError(t, err)
	require.Len(t, units, 2)
}

func TestFindAndMapByIdentifier(t *testing.T) {
	root := t.TempDir()
	bookDir := filepath.Join(root, "Author", "Book")
	require.NoError(t, os.MkdirAll(bookDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bookDir, "metadata.json"), []byte(`{"asin":"B0AAA00001"}`), 0o644))

	path, ok, err := FindByIdentifier(root, "B0AAA00001")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, bookDir, path)

	m, err := MapByIdentifier(root)
	require.NoError(t, err)
	require.Len(t, m, 1)
	require.Contains(t, m["B0AAA00001"], "Book")
}

func TestGuessFromPathFallsBackToParentAuthorFolder(t *testing.T) {
	root := t.TempDir()
	fpath := filepath.Join(root, "Susan Cain", "Quiet", "Quiet.m4b")
	touch(t, fpath)

	author, title, _ := guessFromPath(fpath, root, true)
	require.Equal(t, "Susan Cain", author)
	require.Equal(t, "Quiet", title)
}

func TestParseNameSplitsAuthorDashTitle(t *testing.T) {
	author, title := parseName("Brandon Sanderson - The Way of Kings")
	require.Equal(t, "Brandon Sanderson", author)
	require.Equal(t, "The Way of Kings", title)
}

func TestDetectLanguageSniffsBracketMarker(t *testing.T) {
	require.Equal(t, "de", detectLanguage("Die Stadt der Traumenden Bücher [GER]"))
	require.Equal(t, "", detectLanguage("The Way of Kings"))
}

func TestLooksLikeGarbageDetects83Names(t *testing.T) {
	require.True(t, looksLikeGarbage("MI20D0~1.MP3"))
	require.False(t, looksLikeGarbage("Chapter 01.mp3"))
}
