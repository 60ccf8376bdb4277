package importer

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/bookarr/bookarr/internal/config"
	"github.com/bookarr/bookarr/internal/database"
)

func setupConfigDB(t *testing.T) *database.DB {
	t.Helper()
	dbName := "file:" + t.Name() + "?mode=memory&cache=shared"
	sqlDB, err := sql.Open("sqlite", dbName)
	require.NoError(t, err)
	_, err = sqlDB.Exec(`CREATE TABLE config (key TEXT PRIMARY KEY, value TEXT NOT NULL);`)
	require.NoError(t, err)
	return database.NewForTest(sqlDB)
}

func TestLibraryIndexContainsFindsSidecarASIN(t *testing.T) {
	root := t.TempDir()
	bookDir := filepath.Join(root, "Author", "Book")
	require.NoError(t, os.MkdirAll(bookDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bookDir, "metadata.json"), []byte(`{"asin":"B0AAA00001"}`), 0o644))

	ctx := context.Background()
	cfg := config.New(setupConfigDB(t))
	require.NoError(t, cfg.Load(ctx))
	require.NoError(t, cfg.Set(ctx, config.KeyLibraryPath, root))

	idx := NewLibraryIndex(cfg)
	has, err := idx.Contains(ctx, "B0AAA00001")
	require.NoError(t, err)
	require.True(t, has)

	has, err = idx.Contains(ctx, "B0MISSING1")
	require.NoError(t, err)
	require.False(t, has)
}

func TestLibraryIndexContainsReturnsFalseWithNoLibraryConfigured(t *testing.T) {
	ctx := context.Background()
	cfg := config.New(setupConfigDB(t))
	require.NoError(t, cfg.Load(ctx))

	idx := NewLibraryIndex(cfg)
	has, err := idx.Contains(ctx, "B0AAA00001")
	require.NoError(t, err)
	require.False(t, has)
}
