package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/fieldcore/internal/config"
	"github.com/zjrosen/fieldcore/internal/log"
	"github.com/zjrosen/fieldcore/internal/tracing"
)

var (
	version  = "dev"
	cfgFile  string
	cfg      config.Config
	provider *tracing.Provider
)

var rootCmd = &cobra.Command{
	Use:     "fieldcore",
	Short:   "Schema-driven field derivation for entity graphs",
	Long:    `Fieldcore loads entity type definitions from YAML, validates their derivation chains and dependency graph, and serves derived field values with cache invalidation.`,
	Version: version,
	// Every subcommand runs against a validated config; the tracing
	// provider installs itself as the global otel provider so resolver
	// spans are exported when tracing is enabled.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Validate(cfg); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		p, err := tracing.NewProvider(cfg.Tracing)
		if err != nil {
			return fmt.Errorf("initializing tracing: %w", err)
		}
		provider = p
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if provider == nil {
			return nil
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return provider.Shutdown(ctx)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/fieldcore/config.yaml)")
	rootCmd.PersistentFlags().StringP("schema", "s", "",
		"path to the schema definition directory")
	rootCmd.PersistentFlags().Bool("debug", false,
		"enable debug logging")

	// Bind flags to viper
	_ = viper.BindPFlag("schema_dir", rootCmd.PersistentFlags().Lookup("schema"))
	_ = viper.BindPFlag("log.enabled", rootCmd.PersistentFlags().Lookup("debug"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("schema_dir", defaults.SchemaDir)
	viper.SetDefault("auto_reload", defaults.AutoReload)
	viper.SetDefault("log.path", defaults.Log.Path)
	viper.SetDefault("log.level", defaults.Log.Level)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	viper.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)
	viper.SetDefault("watcher.debounce_ms", defaults.Watcher.DebounceMs)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .fieldcore/config.yaml (current directory)
		// 2. ~/.config/fieldcore/config.yaml (user config)
		if _, err := os.Stat(".fieldcore/config.yaml"); err == nil {
			viper.SetConfigFile(".fieldcore/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "fieldcore"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	// A missing config file is fine; defaults apply.
	_ = viper.ReadInConfig()
	_ = viper.Unmarshal(&cfg)

	if os.Getenv("FIELDCORE_DEBUG") != "" {
		cfg.Log.Enabled = true
	}
	if cfg.Log.Enabled {
		if _, err := log.Init(cfg.Log.Path); err == nil {
			log.SetMinLevel(logLevel(cfg.Log.Level))
		}
	}
}

func logLevel(name string) log.Level {
	switch name {
	case "info":
		return log.LevelInfo
	case "warn":
		return log.LevelWarn
	case "error":
		return log.LevelError
	default:
		return log.LevelDebug
	}
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
