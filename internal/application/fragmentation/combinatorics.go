package fragmentation

// combinations calls fn with every k-subset of 0..n-1 in lexicographic
// order until fn returns false.
func combinations(n, k int, fn func(idx []int) bool) {
	if k <= 0 || k > n {
		return
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		if !fn(append([]int(nil), idx...)) {
			return
		}
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}

// tiePermutations calls fn with every assignment of leaves to positions
// that only swaps leaves with equal canonical forms.  perm[pos] is the
// index into leaves placed at pos.
func tiePermutations[L interface{ Canonical() string }](leaves []L, fn func(perm []int) bool) {
	var groups [][]int
	for i := range leaves {
		if i > 0 && leaves[i].Canonical() == leaves[i-1].Canonical() {
			groups[len(groups)-1] = append(groups[len(groups)-1], i)
			continue
		}
		groups = append(groups, []int{i})
	}

	perm := make([]int, len(leaves))
	var walk func(g int) bool
	walk = func(g int) bool {
		if g == len(groups) {
			return fn(append([]int(nil), perm...))
		}
		ok := true
		permute(groups[g], func(order []int) bool {
			for i, pos := range groups[g] {
				perm[pos] = order[i]
			}
			ok = walk(g + 1)
			return ok
		})
		return ok
	}
	walk(0)
}

// permute calls fn with every ordering of items (Heap's algorithm).
func permute(items []int, fn func([]int) bool) {
	a := append([]int(nil), items...)
	c := make([]int, len(a))
	if !fn(append([]int(nil), a...)) {
		return
	}
	for i := 0; i < len(a); {
		if c[i] < i {
			if i%2 == 0 {
				a[0], a[i] = a[i], a[0]
			} else {
				a[c[i]], a[i] = a[i], a[c[i]]
			}
			if !fn(append([]int(nil), a...)) {
				return
			}
			c[i]++
			i = 0
		} else {
			c[i] = 0
			i++
		}
	}
}
