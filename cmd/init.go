package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zjrosen/fieldcore/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default config file",
	Long: `Init writes the default configuration with explanatory comments to the
path given by --config, or to ~/.config/fieldcore/config.yaml. It refuses
to overwrite an existing file.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolving home directory: %w", err)
		}
		path = filepath.Join(home, ".config", "fieldcore", "config.yaml")
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}

	if err := config.WriteDefaultConfig(path); err != nil {
		return err
	}
	cmd.Printf("wrote %s\n", path)
	return nil
}
