package toolkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitVector_SetGet(t *testing.T) {
	bv := NewBitVector(16)
	bv.Set(0)
	bv.Set(9)
	bv.Set(16) // out of range
	bv.Set(-1)

	assert.True(t, bv.Get(0))
	assert.True(t, bv.Get(9))
	assert.False(t, bv.Get(1))
	assert.False(t, bv.Get(16))
	assert.Equal(t, 2, bv.PopCount())
	assert.Equal(t, 16, bv.Len())
	assert.Equal(t, "0102", bv.String())
}

func TestBitVectorFromBytes(t *testing.T) {
	bv, err := BitVectorFromBytes([]byte{0xff, 0x01}, 16)
	require.NoError(t, err)
	assert.Equal(t, 9, bv.PopCount())

	_, err = BitVectorFromBytes([]byte{0xff}, 16)
	assert.Error(t, err)
}

func TestBitVector_BytesIsCopy(t *testing.T) {
	bv := NewBitVector(8)
	b := bv.Bytes()
	b[0] = 0xff
	assert.Equal(t, 0, bv.PopCount())
}

func TestBitVector_Equal(t *testing.T) {
	a := NewBitVector(8)
	b := NewBitVector(8)
	a.Set(3)
	assert.False(t, a.Equal(b))
	b.Set(3)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(NewBitVector(16)))
	assert.False(t, a.Equal(nil))
}

func TestTanimoto(t *testing.T) {
	a := NewBitVector(8)
	b := NewBitVector(8)

	sim, err := Tanimoto(a, b)
	require.NoError(t, err)
	assert.Equal(t, 1.0, sim)

	a.Set(0)
	a.Set(1)
	b.Set(1)
	b.Set(2)
	sim, err = Tanimoto(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, sim, 1e-12)

	_, err = Tanimoto(a, NewBitVector(16))
	assert.Error(t, err)
	_, err = Tanimoto(nil, b)
	assert.Error(t, err)
}
