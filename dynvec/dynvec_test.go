package dynvec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l-stm/tcell"
)

type pair struct {
	A, B uint64
}

func TestPushAndAt(t *testing.T) {
	var v Vec
	c1 := tcell.NewErased(1)
	c2 := tcell.NewErased(2)

	i1 := Push(&v, c1, uint64(11))
	i2 := Push(&v, c2, pair{A: 1, B: 2})

	assert.Equal(t, 0, i1)
	assert.Equal(t, 1, i2)
	assert.Equal(t, 2, v.Len())
	assert.Equal(t, 3, v.WordLen())

	e1 := v.At(i1)
	require.True(t, e1.IsTarget(c1))
	assert.Equal(t, uint64(11), tcell.UnmarshalWords[uint64](e1.Words()))

	e2 := v.At(i2)
	require.True(t, e2.IsTarget(c2))
	assert.Equal(t, pair{A: 1, B: 2}, tcell.UnmarshalWords[pair](e2.Words()))
}

func TestIndicesStableAcrossGrowth(t *testing.T) {
	var v Vec
	cells := make([]*tcell.Erased, 100)
	for i := range cells {
		cells[i] = tcell.NewErased(1)
		Push(&v, cells[i], uint64(i))
	}
	for i, c := range cells {
		e := v.At(i)
		require.True(t, e.IsTarget(c))
		require.Equal(t, uint64(i), tcell.UnmarshalWords[uint64](e.Words()))
	}
}

func TestDeactivate(t *testing.T) {
	var v Vec
	c := tcell.NewErased(1)
	i := Push(&v, c, uint64(5))

	e := v.At(i)
	e.Deactivate()
	assert.Nil(t, v.At(i).Target())
	assert.False(t, v.At(i).IsTarget(c))
	assert.Equal(t, 1, v.Len(), "deactivation must not shrink the container")

	assert.Panics(t, func() { v.At(i).Deactivate() })
}

func TestInPlaceOverwrite(t *testing.T) {
	var v Vec
	c := tcell.NewErased(1)
	i := Push(&v, c, uint64(1))

	val := uint64(99)
	tcell.MarshalWords(&val, v.At(i).Words())
	assert.Equal(t, uint64(99), tcell.UnmarshalWords[uint64](v.At(i).Words()))
}

func TestNextPushAllocates(t *testing.T) {
	var v Vec
	assert.True(t, NextPushAllocates[uint64](&v), "empty vec always allocates")

	c := tcell.NewErased(1)
	Push(&v, c, uint64(0))
	for !NextPushAllocates[uint64](&v) {
		Push(&v, c, uint64(0))
	}
	before := v.Len()
	Push(&v, c, uint64(0))
	assert.Equal(t, before+1, v.Len())
}

func TestClearRetainsStorage(t *testing.T) {
	var v Vec
	c := tcell.NewErased(1)
	for i := 0; i < 16; i++ {
		Push(&v, c, uint64(i))
	}
	v.Clear()
	assert.True(t, v.IsEmpty())
	assert.Zero(t, v.WordLen())
	assert.False(t, NextPushAllocates[uint64](&v), "cleared vec reuses its storage")
}

func TestClearNoDrop(t *testing.T) {
	var v Vec
	Push(&v, tcell.NewErased(1), uint64(1))
	v.ClearNoDrop()
	assert.True(t, v.IsEmpty())
}
