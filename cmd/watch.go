package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjrosen/fieldcore/internal/log"
	"github.com/zjrosen/fieldcore/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Revalidate the schema whenever a definition file changes",
	Long: `Watch validates the schema directory, then keeps watching it and
revalidates on every change to a definition file. Ctrl-C stops it.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	report := func() {
		if _, _, err := loadSchema(); err != nil {
			cmd.Printf("invalid: %v\n", err)
		} else {
			cmd.Println("schema OK")
		}
	}
	report()

	w, err := watcher.New(watcher.Config{
		SchemaDir:   cfg.SchemaDir,
		DebounceDur: cfg.Watcher.Debounce(),
	})
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = w.Stop() }()

	onChange, err := w.Start()
	if err != nil {
		return fmt.Errorf("watching %s: %w", cfg.SchemaDir, err)
	}
	log.Info(log.CatWatcher, "Watching schema directory", "dir", cfg.SchemaDir)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-onChange:
			report()
		case <-stop:
			return nil
		}
	}
}
