package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLine(t *testing.T) {
	c := New("u1")

	require.NoError(t, c.SetLine("p1", 2))
	require.NoError(t, c.SetLine("p2", 1))
	require.Len(t, c.Lines, 2)

	// Setting an existing product overwrites its quantity.
	require.NoError(t, c.SetLine("p1", 5))
	require.Len(t, c.Lines, 2)
	assert.Equal(t, 5, c.Lines[0].Quantity)

	assert.ErrorIs(t, c.SetLine("p3", 0), ErrInvalidQuantity)
}

func TestUpdateLine(t *testing.T) {
	c := New("u1")
	require.NoError(t, c.SetLine("p1", 2))

	require.NoError(t, c.UpdateLine("p1", 3))
	assert.Equal(t, 3, c.Lines[0].Quantity)

	assert.ErrorIs(t, c.UpdateLine("missing", 1), ErrNotFound)
	assert.ErrorIs(t, c.UpdateLine("p1", -1), ErrInvalidQuantity)
}

func TestRemoveLine(t *testing.T) {
	c := New("u1")
	require.NoError(t, c.SetLine("p1", 2))
	require.NoError(t, c.SetLine("p2", 1))

	c.RemoveLine("p1")
	require.Len(t, c.Lines, 1)
	assert.Equal(t, "p2", c.Lines[0].ProductID)

	// Removing an absent product is a no-op.
	c.RemoveLine("p1")
	assert.Len(t, c.Lines, 1)
}

func TestCloneIsIndependent(t *testing.T) {
	c := New("u1")
	require.NoError(t, c.SetLine("p1", 2))

	clone := c.Clone()
	require.NoError(t, clone.SetLine("p1", 9))

	assert.Equal(t, 2, c.Lines[0].Quantity)
}
