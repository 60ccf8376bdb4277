package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/bookarr/bookarr/internal/bootstrap"
)

func TestBuildAppWiresEveryComponentWithoutATorrentClient(t *testing.T) {
	metaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer metaSrv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, bootstrap.WriteDefaultConfig(path))

	pcfg, err := bootstrap.New(path)
	require.NoError(t, err)
	pcfg.MetadataPrimaryBaseURL = metaSrv.URL

	ctx := context.Background()
	a, err := buildApp(ctx, pcfg)
	require.NoError(t, err)
	defer a.Close()

	require.Nil(t, a.torrent, "qbit_enabled defaults to false, so no torrent client should be built")
	require.Nil(t, a.monitor, "monitor is only started once a torrent client is configured")
	require.NotNil(t, a.engine)
	require.NotNil(t, a.importer)
}

func TestLoadProcessConfigSeedsConfigFileOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	cmd := &cobra.Command{Use: "test"}
	cmd.PersistentFlags().String("config-dir", dir, "")

	pcfg, err := loadProcessConfig(cmd)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "config.toml"), pcfg.ConfigPath)
}
