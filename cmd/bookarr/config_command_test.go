package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, cmd *cobra.Command, configDir string, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.PersistentFlags().String("config-dir", configDir, "")
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return buf.String()
}

func TestConfigSetAndGetRoundTrip(t *testing.T) {
	dir := t.TempDir()

	out := runCLI(t, RunConfigSetCmdForTest(), dir, "library_path", "/library")
	assert.Contains(t, out, "library_path updated")

	out = runCLI(t, RunConfigGetCmdForTest(), dir, "library_path")
	assert.Equal(t, "/library\n", out)
}

func TestConfigGetMasksSensitiveKeys(t *testing.T) {
	dir := t.TempDir()

	runCLI(t, RunConfigSetCmdForTest(), dir, "qbit_pass", "hunter2")
	out := runCLI(t, RunConfigGetCmdForTest(), dir, "qbit_pass")
	assert.Equal(t, "********\n", out)
}

func TestConfigSetRequiresValueForNonSensitiveKey(t *testing.T) {
	dir := t.TempDir()
	cmd := RunConfigSetCmdForTest()

	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.PersistentFlags().String("config-dir", dir, "")
	cmd.SetArgs([]string{"library_path"})

	err := cmd.Execute()
	require.Error(t, err)
}

func TestConfigInitWritesConfigFile(t *testing.T) {
	dir := t.TempDir()
	out := runCLI(t, RunConfigInitCmdForTest(), dir)
	assert.Contains(t, out, filepath.Join(dir, "config.toml"))
}

// RunConfigSetCmdForTest, RunConfigGetCmdForTest and RunConfigInitCmdForTest
// expose the individual subcommands so tests can invoke one without going
// through the "config" parent's own argument parsing.
func RunConfigSetCmdForTest() *cobra.Command { return runConfigSetCommand() }
func RunConfigGetCmdForTest() *cobra.Command { return runConfigGetCommand() }
func RunConfigInitCmdForTest() *cobra.Command { return runConfigInitCommand() }
