package bootstrap

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

const defaultConfigTemplate = `# bookarr config.toml - generated on first run

# Address the health/metrics HTTP surface listens on.
host = "0.0.0.0"
port = 7979

# Path to the SQLite database file.
# Default: next to this config file.
#databasePath = "bookarr.db"

# Metadata provider endpoints (§6 "HTTP client - metadata providers").
metadataPrimaryBaseURL = "https://api.audnex.us"
#metadataSecondaryBaseURL = ""

# Log level.
# Default: "INFO"
# Options: "TRACE", "DEBUG", "INFO", "WARN", "ERROR"
logLevel = "INFO"

# Log file path. If not set, logs to stdout.
#logPath = "log/bookarr.log"

# Log rotation.
logMaxSize = 50
logMaxBackups = 3
`

// WriteDefaultConfig writes a commented starter config.toml to path
// unless a file already exists there.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(defaultConfigTemplate), 0o644)
}

var logSettingPattern = map[string]*regexp.Regexp{
	"logLevel":      regexp.MustCompile(`(?m)^#?\s*logLevel\s*=.*$`),
	"logPath":       regexp.MustCompile(`(?m)^#?\s*logPath\s*=.*$`),
	"logMaxSize":    regexp.MustCompile(`(?m)^#?\s*logMaxSize\s*=.*$`),
	"logMaxBackups": regexp.MustCompile(`(?m)^#?\s*logMaxBackups\s*=.*$`),
}

// UpdateLogSettingsInTOML rewrites the four log settings in content in
// place, uncommenting them if necessary, without disturbing surrounding
// structure or comments, so an operator's hand-edited config.toml is not
// clobbered.
func UpdateLogSettingsInTOML(content, level, path string, maxSize, maxBackups int) string {
	replacements := map[string]string{
		"logLevel":      fmt.Sprintf(`logLevel = "%s"`, level),
		"logPath":       fmt.Sprintf(`logPath = "%s"`, path),
		"logMaxSize":    fmt.Sprintf("logMaxSize = %d", maxSize),
		"logMaxBackups": fmt.Sprintf("logMaxBackups = %d", maxBackups),
	}

	for key, line := range replacements {
		pattern := logSettingPattern[key]
		if pattern.MatchString(content) {
			content = pattern.ReplaceAllString(content, line)
			continue
		}
		content = strings.TrimRight(content, "\n") + "\n" + line + "\n"
	}
	return content
}
