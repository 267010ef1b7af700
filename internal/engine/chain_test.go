package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvalChain_NonInstanceMidChain(t *testing.T) {
	c := bankingContainer(t, nil)

	// Stored values are not type-checked at write time; a chain walking
	// through garbage reports the break at resolution.
	tx, err := c.NewInstance("StatementTransaction", WithValues(map[string]any{"Bank": "not a bank"}))
	require.NoError(t, err)

	_, err = tx.Value(context.Background(), "BankName")
	require.ErrorIs(t, err, ErrBrokenChain)
}

func TestEvalChain_UnsetRequiredHopPropagates(t *testing.T) {
	c := bankingContainer(t, nil)

	bank, err := c.NewInstance("Bank")
	require.NoError(t, err)
	tx, err := c.NewInstance("StatementTransaction", WithValues(map[string]any{"Bank": bank}))
	require.NoError(t, err)

	// Bank.Name is required and unset: that error, not the chain default,
	// is the result.
	_, err = tx.Value(context.Background(), "BankName")
	require.ErrorIs(t, err, ErrUnsetRequiredField)
}

func TestResolveStack_PushPopContains(t *testing.T) {
	s := newResolveStack()
	tx := stackKey{field: "A"}

	require.False(t, s.contains(tx))
	s.push(tx)
	require.True(t, s.contains(tx))
	s.pop()
	require.False(t, s.contains(tx))
}

func TestResolveStack_PathWith(t *testing.T) {
	s := newResolveStack()
	s.push(stackKey{field: "A"})
	s.push(stackKey{field: "B"})

	require.Equal(t, "A -> B -> A", s.pathWith(stackKey{field: "A"}))
}
