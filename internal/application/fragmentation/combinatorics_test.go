package fragmentation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type canon string

func (c canon) Canonical() string { return string(c) }

func TestCombinations(t *testing.T) {
	var got [][]int
	combinations(4, 2, func(idx []int) bool {
		got = append(got, idx)
		return true
	})
	assert.Equal(t, [][]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}, got)

	calls := 0
	combinations(5, 3, func([]int) bool {
		calls++
		return calls < 2
	})
	assert.Equal(t, 2, calls, "stops when fn returns false")

	combinations(2, 3, func([]int) bool {
		t.Fatal("k > n must not call fn")
		return false
	})
}

func TestTiePermutations(t *testing.T) {
	var got [][]int
	tiePermutations([]canon{"a", "a", "b"}, func(perm []int) bool {
		got = append(got, perm)
		return true
	})
	assert.ElementsMatch(t, [][]int{{0, 1, 2}, {1, 0, 2}}, got)

	got = nil
	tiePermutations([]canon{"a", "b", "c"}, func(perm []int) bool {
		got = append(got, perm)
		return true
	})
	assert.Equal(t, [][]int{{0, 1, 2}}, got)

	got = nil
	tiePermutations([]canon{"x", "x", "x"}, func(perm []int) bool {
		got = append(got, perm)
		return true
	})
	assert.Len(t, got, 6)
}
