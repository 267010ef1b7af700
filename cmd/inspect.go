package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/fieldcore/internal/schema"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [type|type_field]",
	Short: "Show types, fields, and derivation dependencies",
	Long: `Inspect prints the loaded schema. With no argument it lists every type.
With a type name it lists that type's fields and their strategies. With a
qualified field (for example Bank_Currency) it shows the field's
dependencies and dependents in the graph.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	registry, g, err := loadSchema()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		for _, t := range registry.Types() {
			marker := ""
			if t.Abstract() {
				marker = " (abstract)"
			}
			if t.Extends() != "" {
				marker += " extends " + t.Extends()
			}
			cmd.Printf("%s%s\n", t.Name(), marker)
		}
		return nil
	}

	arg := args[0]

	// A bare type name lists its fields.
	if t, err := registry.Resolve(arg); err == nil {
		fields, err := registry.FieldsOf(t.Name())
		if err != nil {
			return err
		}
		for _, f := range fields {
			strategy := "stored"
			if core := f.DataCore(); core != nil {
				strategy = core.Kind().String()
			}
			cmd.Printf("%-30s %-10s %s\n", f.Ref(), f.Type(), strategy)
		}
		return nil
	}

	// Otherwise treat it as a qualified field reference.
	idx := strings.LastIndex(arg, "_")
	if idx <= 0 || idx == len(arg)-1 {
		return fmt.Errorf("unknown type or field %q", arg)
	}
	field, err := registry.FieldOf(arg[:idx], arg[idx+1:])
	if err != nil {
		return err
	}

	ref := field.Ref()
	cmd.Printf("%s (%s)\n", ref, describeStrategy(field))
	if core := field.DataCore(); core != nil && core.CodeLine() != "" {
		cmd.Printf("computation: %s\n", core.CodeLine())
	}
	if deps := g.DependenciesOf(ref); len(deps) > 0 {
		cmd.Println("depends on:")
		for _, dep := range deps {
			cmd.Printf("  %s\n", dep)
		}
	}
	if dependents := g.DependentsOf(ref); len(dependents) > 0 {
		cmd.Println("invalidates:")
		for _, dep := range dependents {
			cmd.Printf("  %s\n", dep)
		}
	}
	return nil
}

func describeStrategy(field *schema.Field) string {
	core := field.DataCore()
	if core == nil {
		if field.Editable() {
			return "stored, editable"
		}
		return "stored"
	}
	return core.Kind().String()
}
