package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/fieldcore/internal/schema"
)

// arithRegistry is a minimal schema for property tests: one editable
// double and a derived double that doubles it.
func arithRegistry(t require.TestingT) *schema.Registry {
	r := schema.NewRegistry()
	_, err := r.Register(schema.TypeDef{
		Name: "T",
		Fields: []schema.FieldDef{
			{Name: "Base", Type: "double", Editable: true},
			{Name: "Doubled", Type: "double", DataCore: &schema.DataCoreDef{
				Derived: &schema.DerivedDef{Sources: []string{"T_Base"}},
			}},
		},
	})
	require.NoError(t, err)
	require.NoError(t, r.Finalize())
	return r
}

func arithContainer(t require.TestingT) *Container {
	c, err := New(arithRegistry(t), WithComputation("T", "Doubled", func(ctx context.Context, inst *Instance) (any, error) {
		base, err := inst.Value(ctx, "Base")
		if err != nil {
			return nil, err
		}
		return base.(float64) * 2, nil
	}))
	require.NoError(t, err)
	return c
}

// TestInvariant_ReadAfterWrite checks that any interleaving of writes and
// reads never observes a stale derived value: a read after a completed
// write reflects exactly that write.
func TestInvariant_ReadAfterWrite(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := arithContainer(t)
		defer c.Close()
		ctx := context.Background()

		inst, err := c.NewInstance("T", WithValues(map[string]any{"Base": 0.0}))
		require.NoError(t, err)

		model := 0.0
		numOps := rapid.IntRange(1, 40).Draw(t, "numOps")
		for i := 0; i < numOps; i++ {
			if rapid.Bool().Draw(t, fmt.Sprintf("write-%d", i)) {
				model = float64(rapid.IntRange(-1000, 1000).Draw(t, fmt.Sprintf("value-%d", i)))
				require.NoError(t, inst.Set("Base", model))
			} else {
				v, err := inst.Value(ctx, "Doubled")
				require.NoError(t, err)
				require.Equal(t, model*2, v, "derived value must reflect the latest write")
			}
		}
	})
}

// TestInvariant_ConcurrentReadersObserveWrittenValues hammers one derived
// field from concurrent readers while a writer marches through values.
// Every observed value must correspond to some value actually written, and
// after the writer finishes a final read must reflect the last write.
func TestInvariant_ConcurrentReadersObserveWrittenValues(t *testing.T) {
	c := arithContainer(t)
	defer c.Close()
	ctx := context.Background()

	inst, err := c.NewInstance("T", WithValues(map[string]any{"Base": 0.0}))
	require.NoError(t, err)

	const writes = 50
	const readers = 8

	written := map[float64]bool{0: true}
	for i := 1; i <= writes; i++ {
		written[float64(i)] = true
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	observed := make([][]float64, readers)
	errs := make([]error, readers)

	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				v, err := inst.Value(ctx, "Doubled")
				if err != nil {
					errs[r] = err
					return
				}
				observed[r] = append(observed[r], v.(float64))
			}
		}(r)
	}

	for i := 1; i <= writes; i++ {
		require.NoError(t, inst.Set("Base", float64(i)))
	}
	close(stop)
	wg.Wait()

	for r := 0; r < readers; r++ {
		require.NoError(t, errs[r])
		for _, v := range observed[r] {
			require.True(t, written[v/2], "observed %v which was never written", v/2)
		}
	}

	final, err := inst.Value(ctx, "Doubled")
	require.NoError(t, err)
	require.Equal(t, float64(writes)*2, final)
}
