package bootstrap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateLogSettingsInTOMLUpdatesCommentedKeysInPlace(t *testing.T) {
	content := `# bookarr config.toml

host = "0.0.0.0"
port = 7979

#logPath = "log/bookarr.log"
#logMaxSize = 50
#logMaxBackups = 3
logLevel = "INFO"
`
	updated := UpdateLogSettingsInTOML(content, "DEBUG", "/data/bookarr.log", 25, 5)

	require.NotContains(t, updated, "#logPath")
	assert.Contains(t, updated, `logPath = "/data/bookarr.log"`)
	assert.Contains(t, updated, "logMaxSize = 25")
	assert.Contains(t, updated, "logMaxBackups = 5")
	assert.Contains(t, updated, `logLevel = "DEBUG"`)

	// host/port lines must survive untouched.
	assert.True(t, strings.Contains(updated, `host = "0.0.0.0"`))
}

func TestUpdateLogSettingsInTOMLAppendsMissingKeys(t *testing.T) {
	updated := UpdateLogSettingsInTOML("host = \"0.0.0.0\"\n", "WARN", "", 50, 3)
	assert.Contains(t, updated, `logLevel = "WARN"`)
	assert.Contains(t, updated, "logMaxSize = 50")
}
