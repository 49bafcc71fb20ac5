package toolkit

import (
	"encoding/hex"
	"fmt"
	"math/bits"
)

// BitVector is a fixed-length fingerprint.  Bit i is stored in byte i/8 at
// bit position i%8.
type BitVector struct {
	data []byte
	n    int
}

// NewBitVector returns an all-zero vector of n bits.
func NewBitVector(n int) *BitVector {
	if n < 0 {
		n = 0
	}
	return &BitVector{data: make([]byte, (n+7)/8), n: n}
}

// BitVectorFromBytes wraps packed bytes.  The slice is copied.
func BitVectorFromBytes(data []byte, n int) (*BitVector, error) {
	if n < 0 || len(data) != (n+7)/8 {
		return nil, fmt.Errorf("bit vector of %d bits needs %d bytes, got %d", n, (n+7)/8, len(data))
	}
	bv := &BitVector{data: make([]byte, len(data)), n: n}
	copy(bv.data, data)
	return bv, nil
}

// Len returns the number of bits.
func (b *BitVector) Len() int { return b.n }

// Set sets bit i.  Out-of-range indices are ignored.
func (b *BitVector) Set(i int) {
	if i < 0 || i >= b.n {
		return
	}
	b.data[i/8] |= 1 << uint(i%8)
}

// Get reports whether bit i is set.
func (b *BitVector) Get(i int) bool {
	if i < 0 || i >= b.n {
		return false
	}
	return b.data[i/8]&(1<<uint(i%8)) != 0
}

// PopCount returns the number of set bits.
func (b *BitVector) PopCount() int {
	c := 0
	for _, x := range b.data {
		c += bits.OnesCount8(x)
	}
	return c
}

// Bytes returns a copy of the packed representation.
func (b *BitVector) Bytes() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Equal reports whether both vectors have the same length and bits.
func (b *BitVector) Equal(o *BitVector) bool {
	if b == nil || o == nil {
		return b == o
	}
	if b.n != o.n {
		return false
	}
	for i := range b.data {
		if b.data[i] != o.data[i] {
			return false
		}
	}
	return true
}

// String renders the vector as hex.
func (b *BitVector) String() string {
	return hex.EncodeToString(b.data)
}

// Tanimoto returns |a∧b| / |a∨b|.  Two empty vectors are identical (1.0).
// Vectors of different length cannot be compared.
func Tanimoto(a, b *BitVector) (float64, error) {
	if a == nil || b == nil {
		return 0, fmt.Errorf("tanimoto: nil fingerprint")
	}
	if a.n != b.n {
		return 0, fmt.Errorf("tanimoto: length mismatch %d != %d", a.n, b.n)
	}
	and, or := 0, 0
	for i := range a.data {
		and += bits.OnesCount8(a.data[i] & b.data[i])
		or += bits.OnesCount8(a.data[i] | b.data[i])
	}
	if or == 0 {
		return 1, nil
	}
	return float64(and) / float64(or), nil
}
