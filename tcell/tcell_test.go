package tcell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l-stm/epoch"
)

type vec3 struct {
	X, Y, Z float64
}

func TestNewAndLoad(t *testing.T) {
	c := New(uint64(42))
	assert.Equal(t, uint64(42), c.Load())
	assert.Equal(t, 1, c.Erased().Words())
	assert.Equal(t, epoch.First, c.Erased().Lock.Read())
}

func TestMultiWordValue(t *testing.T) {
	v := vec3{X: 1.5, Y: -2, Z: 12}
	c := New(v)
	assert.Equal(t, 3, c.Erased().Words())
	assert.Equal(t, v, c.Load())
}

func TestSetAdvancesVersion(t *testing.T) {
	c := New(int32(7))
	before := c.Erased().Lock.Read()
	c.Set(9)
	after := c.Erased().Lock.Read()

	assert.Equal(t, int32(9), c.Load())
	assert.Greater(t, after, before)
	assert.False(t, after.Locked())
}

func TestSubWordValue(t *testing.T) {
	c := New(byte(0xAB))
	require.Equal(t, 1, c.Erased().Words())
	c.Set(0xCD)
	assert.Equal(t, byte(0xCD), c.Load())
}

func TestCheckValueTypeRejectsZeroSized(t *testing.T) {
	assert.Panics(t, func() { CheckValueType[struct{}]() })
}

func TestCheckValueTypeRejectsPointers(t *testing.T) {
	assert.Panics(t, func() { CheckValueType[*int]() })
	assert.Panics(t, func() { CheckValueType[string]() })
	assert.Panics(t, func() { CheckValueType[[]byte]() })
	assert.Panics(t, func() {
		type holder struct {
			n int
			p *int
		}
		CheckValueType[holder]()
	})
}

func TestCheckValueTypeAcceptsFlatValues(t *testing.T) {
	assert.NotPanics(t, func() { CheckValueType[int]() })
	assert.NotPanics(t, func() { CheckValueType[vec3]() })
	assert.NotPanics(t, func() { CheckValueType[[4]uint16]() })
}

func TestMarshalZeroFillsTail(t *testing.T) {
	v := uint16(0xBEEF)
	dirty := []uintptr{^uintptr(0)}
	clean := []uintptr{0}
	MarshalWords(&v, dirty)
	MarshalWords(&v, clean)
	assert.Equal(t, v, UnmarshalWords[uint16](dirty))
	assert.Equal(t, clean[0], dirty[0], "tail bytes beyond the value must be zeroed")
}
