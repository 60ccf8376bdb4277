// Package bootstrap wires process-level configuration (the file and
// environment-driven settings the process needs before it can even open
// its database) for the cobra CLI in cmd/bookarr that starts or
// administers it. It is deliberately separate from internal/config, whose Store holds
// the durable, web-UI-editable domain settings described in §6
// "Persisted config keys" — ProcessConfig only ever covers what has to be
// known before that store can be opened: where the database lives, how
// to log, and which address to serve health/metrics on.
package bootstrap

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ProcessConfig is loaded once at startup from a TOML file plus
// environment overrides, following the BOOKARR__<KEY> env-var
// convention below.
type ProcessConfig struct {
	ConfigPath string

	Host string
	Port int

	DatabasePath string

	MetadataPrimaryBaseURL   string
	MetadataSecondaryBaseURL string

	LogLevel      string
	LogPath       string
	LogMaxSize    int
	LogMaxBackups int
}

const envPrefix = "BOOKARR"

// New loads configPath (a TOML file that must already exist; New does not
// create it, callers write one first with WriteDefaultConfig) into a
// ProcessConfig, with BOOKARR__<KEY> environment
// variables taking precedence over file values.
func New(configPath string) (*ProcessConfig, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 7979)
	v.SetDefault("metadataPrimaryBaseURL", "https://api.audnex.us")
	v.SetDefault("metadataSecondaryBaseURL", "")
	v.SetDefault("logLevel", "INFO")
	v.SetDefault("logMaxSize", 50)
	v.SetDefault("logMaxBackups", 3)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", configPath, err)
	}

	bindEnv(v, "host", "HOST")
	bindEnv(v, "port", "PORT")
	bindEnv(v, "databasePath", "DATABASE_PATH")
	bindEnv(v, "metadataPrimaryBaseURL", "METADATA_PRIMARY_BASE_URL")
	bindEnv(v, "metadataSecondaryBaseURL", "METADATA_SECONDARY_BASE_URL")
	bindEnv(v, "logLevel", "LOG_LEVEL")
	bindEnv(v, "logPath", "LOG_PATH")
	bindEnv(v, "logMaxSize", "LOG_MAX_SIZE")
	bindEnv(v, "logMaxBackups", "LOG_MAX_BACKUPS")

	cfg := &ProcessConfig{
		ConfigPath:               configPath,
		Host:                     v.GetString("host"),
		Port:                     v.GetInt("port"),
		DatabasePath:             v.GetString("databasePath"),
		MetadataPrimaryBaseURL:   v.GetString("metadataPrimaryBaseURL"),
		MetadataSecondaryBaseURL: v.GetString("metadataSecondaryBaseURL"),
		LogLevel:                 strings.ToUpper(v.GetString("logLevel")),
		LogPath:                  v.GetString("logPath"),
		LogMaxSize:               v.GetInt("logMaxSize"),
		LogMaxBackups:            v.GetInt("logMaxBackups"),
	}

	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(filepath.Dir(configPath), "bookarr.db")
	}

	return cfg, nil
}

func bindEnv(v *viper.Viper, key, envSuffix string) {
	_ = v.BindEnv(key, envPrefix+"__"+envSuffix)
}
