package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "bookarr",
		Short: "Self-hosted audiobook request and acquisition orchestrator",
	}

	root.PersistentFlags().String("config-dir", defaultConfigDir(), "Directory holding config.toml and the database")

	root.AddCommand(RunServeCommand())
	root.AddCommand(RunConfigCommand())
	root.AddCommand(RunDBCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/bookarr"
	}
	return "./config"
}
