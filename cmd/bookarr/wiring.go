package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/bookarr/bookarr/internal/bookstore"
	"github.com/bookarr/bookarr/internal/bootstrap"
	"github.com/bookarr/bookarr/internal/config"
	"github.com/bookarr/bookarr/internal/database"
	"github.com/bookarr/bookarr/internal/enrich"
	"github.com/bookarr/bookarr/internal/importer"
	"github.com/bookarr/bookarr/internal/importsession"
	"github.com/bookarr/bookarr/internal/indexer"
	"github.com/bookarr/bookarr/internal/metadata"
	"github.com/bookarr/bookarr/internal/monitor"
	"github.com/bookarr/bookarr/internal/processor"
	"github.com/bookarr/bookarr/internal/request"
	"github.com/bookarr/bookarr/internal/torrentclient"
)

// configPath resolves the --config-dir flag (shared by every
// subcommand) to its config.toml path, creating the directory if
// necessary.
func configPath(cmd *cobra.Command) (string, error) {
	dir, err := cmd.Flags().GetString("config-dir")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// loadProcessConfig resolves --config-dir, seeds a default config.toml
// on first run, and loads it.
func loadProcessConfig(cmd *cobra.Command) (*bootstrap.ProcessConfig, error) {
	path, err := configPath(cmd)
	if err != nil {
		return nil, err
	}
	if err := bootstrap.WriteDefaultConfig(path); err != nil {
		return nil, err
	}
	return bootstrap.New(path)
}

// app bundles every wired component a subcommand might need. Fields a
// particular command doesn't touch are simply left unused by it.
type app struct {
	db       *database.DB
	cfg      *config.Store
	books    *bookstore.Store
	requests *request.Store
	sessions *importsession.Store
	meta     *metadata.Client
	torrent  *torrentclient.Client
	engine   *request.Engine
	proc     *processor.Processor
	importer *importer.Importer
	monitor  *monitor.Monitor
}

// buildApp wires every §4 component together against an already-loaded
// ProcessConfig. torrentClient is nil (and every dependent feature fails
// soft or reports apperr.Misconfigured) when qbit_enabled is false.
func buildApp(ctx context.Context, pcfg *bootstrap.ProcessConfig) (*app, error) {
	db, err := database.New(pcfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	cfg := config.New(db)
	if err := cfg.Load(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	books := bookstore.New(db)
	requests := request.NewStore(db)
	sessions := importsession.New(db)

	meta := metadata.New(cfg, metadata.PrimaryProvider{}, metadata.SecondaryProvider{},
		pcfg.MetadataPrimaryBaseURL, pcfg.MetadataSecondaryBaseURL)

	indexerClient := indexer.NewClient(indexer.ClientConfig{
		BaseURL: cfg.Get(config.KeyProwlarrBaseURL, ""),
		APIKey:  cfg.Get(config.KeyProwlarrAPIKey, ""),
	})
	searchTTL := time.Duration(cfg.GetInt(config.KeyProwlarrSourceTTL, 900)) * time.Second
	gateway := indexer.NewGateway(indexerClient, searchTTL)

	enricher := enrich.NewRegistry(enrich.FiletypeAdapter{}, enrich.FreeleechAdapter{})

	var torrent *torrentclient.Client
	if cfg.GetBool(config.KeyQbitEnabled, false) {
		torrent, err = torrentclient.New(ctx, torrentclient.Config{
			Host:     cfg.Get(config.KeyQbitHost, ""),
			Username: cfg.Get(config.KeyQbitUser, ""),
			Password: cfg.Get(config.KeyQbitPass, ""),
		})
		if err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	library := importer.NewLibraryIndex(cfg)
	engine := request.NewEngine(requests, books, meta, gateway, enricher, cfg, torrent, library)
	proc := processor.New(requests, books, cfg)
	imp := importer.New(sessions, requests, books, meta, proc, cfg)

	var mon *monitor.Monitor
	if torrent != nil {
		mon = monitor.New(requests, books, cfg, torrent, proc)
	}

	return &app{
		db:       db,
		cfg:      cfg,
		books:    books,
		requests: requests,
		sessions: sessions,
		meta:     meta,
		torrent:  torrent,
		engine:   engine,
		proc:     proc,
		importer: imp,
		monitor:  mon,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
