package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/fieldcore/internal/schema"
)

// chainRegistry builds: C depends on B, B depends on A (a stored field).
func chainRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	r := schema.NewRegistry()
	_, err := r.Register(schema.TypeDef{
		Name: "T",
		Fields: []schema.FieldDef{
			{Name: "A", Type: "string", Editable: true},
			{Name: "B", Type: "string", DataCore: &schema.DataCoreDef{
				DirectDerived: &schema.DirectDerivedDef{Sources: "T_A", Default: "b"},
			}},
			{Name: "C", Type: "string", DataCore: &schema.DataCoreDef{
				DirectDerived: &schema.DirectDerivedDef{Sources: "T_B", Default: "c"},
			}},
		},
	})
	require.NoError(t, err)
	require.NoError(t, r.Finalize())
	return r
}

func TestBuild_RequiresFinalizedRegistry(t *testing.T) {
	r := schema.NewRegistry()
	_, err := Build(r)
	require.ErrorIs(t, err, schema.ErrNotFinalized)
}

func TestBuild_EdgesAndReverseEdges(t *testing.T) {
	g, err := Build(chainRegistry(t))
	require.NoError(t, err)

	refA := schema.FieldRef{Type: "T", Field: "A"}
	refB := schema.FieldRef{Type: "T", Field: "B"}
	refC := schema.FieldRef{Type: "T", Field: "C"}

	require.Equal(t, []schema.FieldRef{refB, refC}, g.Nodes())
	require.Equal(t, []schema.FieldRef{refA}, g.DependenciesOf(refB))
	require.Equal(t, []schema.FieldRef{refB}, g.DependenciesOf(refC))
	require.Equal(t, []schema.FieldRef{refB}, g.DependentsOf(refA))
	require.Equal(t, []schema.FieldRef{refC}, g.DependentsOf(refB))
	require.Empty(t, g.DependentsOf(refC))
}

func TestBuild_NormalizesSubtypeHopsToDeclaringType(t *testing.T) {
	r := schema.NewRegistry()
	_, err := r.Register(schema.TypeDef{
		Name:   "Base",
		Fields: []schema.FieldDef{{Name: "Amount", Type: "double", Editable: true}},
	})
	require.NoError(t, err)
	_, err = r.Register(schema.TypeDef{
		Name:    "Sub",
		Extends: "Base",
		Fields: []schema.FieldDef{
			{Name: "Doubled", Type: "double", DataCore: &schema.DataCoreDef{
				Derived: &schema.DerivedDef{Sources: []string{"Sub_Amount"}},
			}},
		},
	})
	require.NoError(t, err)
	require.NoError(t, r.Finalize())

	g, err := Build(r)
	require.NoError(t, err)

	// The hop was written against Sub but Amount is declared on Base.
	doubled := schema.FieldRef{Type: "Sub", Field: "Doubled"}
	require.Equal(t, []schema.FieldRef{{Type: "Base", Field: "Amount"}}, g.DependenciesOf(doubled))
	require.Equal(t, []schema.FieldRef{doubled}, g.DependentsOf(schema.FieldRef{Type: "Base", Field: "Amount"}))
}

func TestValidate_AcceptsAcyclic(t *testing.T) {
	g, err := Build(chainRegistry(t))
	require.NoError(t, err)
	require.NoError(t, g.Validate())
}

func TestValidate_ReportsCycleWithPath(t *testing.T) {
	r := schema.NewRegistry()
	_, err := r.Register(schema.TypeDef{
		Name: "T",
		Fields: []schema.FieldDef{
			{Name: "A", Type: "string", DataCore: &schema.DataCoreDef{
				DirectDerived: &schema.DirectDerivedDef{Sources: "T_B", Default: "a"},
			}},
			{Name: "B", Type: "string", DataCore: &schema.DataCoreDef{
				DirectDerived: &schema.DirectDerivedDef{Sources: "T_A", Default: "b"},
			}},
		},
	})
	require.NoError(t, err)
	require.NoError(t, r.Finalize())

	g, err := Build(r)
	require.NoError(t, err)

	err = g.Validate()
	require.ErrorIs(t, err, ErrCycle)
	require.Contains(t, err.Error(), "T_A -> T_B -> T_A")
}

func TestValidate_SelfCycle(t *testing.T) {
	r := schema.NewRegistry()
	_, err := r.Register(schema.TypeDef{
		Name: "T",
		Fields: []schema.FieldDef{
			{Name: "A", Type: "string", DataCore: &schema.DataCoreDef{
				DirectDerived: &schema.DirectDerivedDef{Sources: "T_A", Default: "a"},
			}},
		},
	})
	require.NoError(t, err)
	require.NoError(t, r.Finalize())

	g, err := Build(r)
	require.NoError(t, err)
	require.ErrorIs(t, g.Validate(), ErrCycle)
}

func TestTopologicalOrder_DependenciesFirst(t *testing.T) {
	g, err := Build(chainRegistry(t))
	require.NoError(t, err)

	order, err := g.TopologicalOrder()
	require.NoError(t, err)

	pos := make(map[schema.FieldRef]int)
	for i, ref := range order {
		pos[ref] = i
	}
	refB := schema.FieldRef{Type: "T", Field: "B"}
	refC := schema.FieldRef{Type: "T", Field: "C"}
	require.Less(t, pos[refB], pos[refC], "B must be warmed before C")
}

func TestTopologicalOrder_FailsOnCycle(t *testing.T) {
	r := schema.NewRegistry()
	_, err := r.Register(schema.TypeDef{
		Name: "T",
		Fields: []schema.FieldDef{
			{Name: "A", Type: "string", DataCore: &schema.DataCoreDef{
				DirectDerived: &schema.DirectDerivedDef{Sources: "T_A", Default: "a"},
			}},
		},
	})
	require.NoError(t, err)
	require.NoError(t, r.Finalize())

	g, err := Build(r)
	require.NoError(t, err)

	_, err = g.TopologicalOrder()
	require.ErrorIs(t, err, ErrCycle)
}

func TestBuildWithExtras_AddsEdges(t *testing.T) {
	g, err := BuildWithExtras(chainRegistry(t), map[schema.FieldRef][]schema.FieldRef{
		{Type: "T", Field: "C"}: {{Type: "T", Field: "A"}},
	})
	require.NoError(t, err)

	refC := schema.FieldRef{Type: "T", Field: "C"}
	require.Contains(t, g.DependenciesOf(refC), schema.FieldRef{Type: "T", Field: "A"})
	require.Contains(t, g.DependentsOf(schema.FieldRef{Type: "T", Field: "A"}), refC)
}

func TestBuildWithExtras_RejectsNonDerivedTarget(t *testing.T) {
	_, err := BuildWithExtras(chainRegistry(t), map[schema.FieldRef][]schema.FieldRef{
		{Type: "T", Field: "A"}: {{Type: "T", Field: "B"}},
	})
	require.ErrorIs(t, err, schema.ErrInvalidChain)
}

func TestBuildWithExtras_RejectsUnknownDependency(t *testing.T) {
	_, err := BuildWithExtras(chainRegistry(t), map[schema.FieldRef][]schema.FieldRef{
		{Type: "T", Field: "C"}: {{Type: "T", Field: "Nope"}},
	})
	require.ErrorIs(t, err, schema.ErrInvalidChain)
}
