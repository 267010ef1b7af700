package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/fieldcore/internal/graph"
	"github.com/zjrosen/fieldcore/internal/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load the schema directory and validate chains and dependencies",
	Long: `Validate loads every type definition from the schema directory, checks
field flags and source chains, builds the dependency graph, and rejects
cycles. Exit status is non-zero when the schema is invalid.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	registry, g, err := loadSchema()
	if err != nil {
		return err
	}

	derived := 0
	for _, t := range registry.Types() {
		for _, f := range t.Fields() {
			if f.DataCore() != nil {
				derived++
			}
		}
	}

	cmd.Printf("schema OK: %d types, %d derived fields, %d graph edges\n",
		len(registry.Types()), derived, edgeCount(g))
	return nil
}

// loadSchema loads and validates the configured schema directory.
func loadSchema() (*schema.Registry, *graph.Graph, error) {
	registry, err := schema.LoadDir(cfg.SchemaDir)
	if err != nil {
		return nil, nil, fmt.Errorf("loading schema from %s: %w", cfg.SchemaDir, err)
	}

	g, err := graph.Build(registry)
	if err != nil {
		return nil, nil, fmt.Errorf("building dependency graph: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, nil, fmt.Errorf("validating dependency graph: %w", err)
	}
	return registry, g, nil
}

func edgeCount(g *graph.Graph) int {
	total := 0
	for _, node := range g.Nodes() {
		total += len(g.DependenciesOf(node))
	}
	return total
}
