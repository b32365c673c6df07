package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vcdmerge/internal/config"
)

// loadConfig reads --config, or the nearest configuration file above the
// working directory.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to get config flag: %w", err)
	}
	if path != "" {
		return config.Load(path)
	}
	return config.Discover(".")
}
