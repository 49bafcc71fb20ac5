package graphkit

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ─────────────────────────────────────────────────────────────────────────────
// Canonical ranking
// ─────────────────────────────────────────────────────────────────────────────

func lessInts(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// denseRanks sorts atoms by key and returns 0-based dense ranks plus the
// number of distinct classes.
func denseRanks(keys [][]int) ([]int, int) {
	idx := make([]int, len(keys))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return lessInts(keys[idx[a]], keys[idx[b]]) })
	rank := make([]int, len(keys))
	classes := 0
	for i, a := range idx {
		if i > 0 && !equalInts(keys[idx[i-1]], keys[a]) {
			classes++
		}
		rank[a] = classes
	}
	if len(keys) > 0 {
		classes++
	}
	return rank, classes
}

func (m *Mol) atomInvariant(i int) []int {
	a := m.atoms[i]
	arom, inRing := 0, 0
	if a.Aromatic {
		arom = 1
	}
	if m.AtomInRing(i) {
		inRing = 1
	}
	return []int{a.Number, a.Isotope, a.Charge, m.Degree(i), m.TotalHydrogens(i), arom, inRing, a.MapNum}
}

// refine splits rank classes by sorted (neighbour rank, bond order) lists
// until the class count stops growing.
func (m *Mol) refine(rank []int, classes int) ([]int, int) {
	for {
		keys := make([][]int, len(m.atoms))
		for i := range m.atoms {
			pairs := make([][2]int, 0, len(m.adj[i]))
			for _, b := range m.adj[i] {
				pairs = append(pairs, [2]int{rank[m.bonds[b].Other(i)], int(m.bonds[b].Order)})
			}
			sort.Slice(pairs, func(x, y int) bool {
				if pairs[x][0] != pairs[y][0] {
					return pairs[x][0] < pairs[y][0]
				}
				return pairs[x][1] < pairs[y][1]
			})
			key := make([]int, 0, 1+2*len(pairs))
			key = append(key, rank[i])
			for _, p := range pairs {
				key = append(key, p[0], p[1])
			}
			keys[i] = key
		}
		next, n := denseRanks(keys)
		if n == classes {
			return next, n
		}
		rank, classes = next, n
	}
}

// canonicalRanks returns a total order of the atoms that depends only on the
// graph, not on input atom order.
func (m *Mol) canonicalRanks() []int {
	keys := make([][]int, len(m.atoms))
	for i := range m.atoms {
		keys[i] = m.atomInvariant(i)
	}
	rank, classes := denseRanks(keys)
	rank, classes = m.refine(rank, classes)
	for classes < len(m.atoms) {
		// Break the lowest tied class at its lowest-index member.
		count := make([]int, classes)
		for _, r := range rank {
			count[r]++
		}
		tied := -1
		for r, c := range count {
			if c > 1 {
				tied = r
				break
			}
		}
		chosen := -1
		for i, r := range rank {
			if r == tied {
				chosen = i
				break
			}
		}
		keys := make([][]int, len(rank))
		for i, r := range rank {
			keys[i] = []int{r * 2}
		}
		keys[chosen] = []int{tied*2 - 1}
		rank, classes = denseRanks(keys)
		rank, classes = m.refine(rank, classes)
	}
	return rank
}

// ─────────────────────────────────────────────────────────────────────────────
// Writer
// ─────────────────────────────────────────────────────────────────────────────

type renderer struct {
	atom func(m *Mol, i int) string
	bond func(m *Mol, b int) string
}

var canonicalRenderer = renderer{atom: canonicalAtom, bond: canonicalBond}

var exactRenderer = renderer{atom: exactAtom, bond: exactBond}

func elementText(a Atom) string {
	if a.Number == 0 {
		return "*"
	}
	if a.Aromatic {
		return strings.ToLower(a.Symbol)
	}
	return a.Symbol
}

func chargeText(c int) string {
	switch {
	case c == 1:
		return "+"
	case c == -1:
		return "-"
	case c > 1:
		return "+" + strconv.Itoa(c)
	case c < -1:
		return strconv.Itoa(c)
	}
	return ""
}

func canonicalAtom(m *Mol, i int) string {
	a := m.atoms[i]
	if m.isOrganic(i) {
		return elementText(a)
	}
	var sb strings.Builder
	sb.WriteByte('[')
	if a.Isotope > 0 {
		sb.WriteString(strconv.Itoa(a.Isotope))
	}
	sb.WriteString(elementText(a))
	switch {
	case a.Hydrogens == 1:
		sb.WriteString("H")
	case a.Hydrogens > 1:
		sb.WriteString("H" + strconv.Itoa(a.Hydrogens))
	}
	sb.WriteString(chargeText(a.Charge))
	if a.MapNum > 0 {
		sb.WriteString(":" + strconv.Itoa(a.MapNum))
	}
	sb.WriteByte(']')
	return sb.String()
}

func canonicalBond(m *Mol, b int) string {
	bd := m.bonds[b]
	bothAromatic := m.atoms[bd.Begin].Aromatic && m.atoms[bd.End].Aromatic
	switch bd.Order {
	case BondDouble:
		return "="
	case BondTriple:
		return "#"
	case BondAromatic:
		if bothAromatic {
			return ""
		}
		return ":"
	}
	if bothAromatic {
		return "-"
	}
	return ""
}

func exactAtom(m *Mol, i int) string {
	a := m.atoms[i]
	if a.Number == 0 {
		if l := a.Label(); l > 0 {
			return fmt.Sprintf("[*:%d]", l)
		}
		return "[*]"
	}
	elem := elementText(a)
	if a.Number == 1 {
		elem = "#1"
	}
	iso := ""
	if a.Isotope > 0 {
		iso = strconv.Itoa(a.Isotope)
	}
	return fmt.Sprintf("[%s%s;D%d;H%d;%+d]", iso, elem, m.Degree(i), m.TotalHydrogens(i), a.Charge)
}

func exactBond(m *Mol, b int) string {
	switch m.bonds[b].Order {
	case BondDouble:
		return "="
	case BondTriple:
		return "#"
	case BondAromatic:
		return ":"
	}
	return "-"
}

type dfsWriter struct {
	m        *Mol
	rank     []int
	r        renderer
	visited  []bool
	children [][]int // atom -> tree bonds to children, in rank order
	opens    [][]int // atom -> ring bonds it opens
	closes   [][]int // atom -> ring bonds it closes
	isRing   map[int]bool
	digit    map[int]int
	inUse    map[int]bool
	sb       strings.Builder
}

func (w *dfsWriter) sortedBonds(u int) []int {
	bs := append([]int(nil), w.m.adj[u]...)
	sort.Slice(bs, func(x, y int) bool {
		rx, ry := w.rank[w.m.bonds[bs[x]].Other(u)], w.rank[w.m.bonds[bs[y]].Other(u)]
		return rx < ry
	})
	return bs
}

// plan records the spanning tree and ring-closure bonds of one component.
func (w *dfsWriter) plan(u, parentBond int) {
	w.visited[u] = true
	for _, b := range w.sortedBonds(u) {
		if b == parentBond || w.isRing[b] {
			continue
		}
		v := w.m.bonds[b].Other(u)
		if w.visited[v] {
			w.isRing[b] = true
			w.opens[v] = append(w.opens[v], b)
			w.closes[u] = append(w.closes[u], b)
			continue
		}
		w.children[u] = append(w.children[u], b)
		w.plan(v, b)
	}
}

func (w *dfsWriter) freeDigit() int {
	for d := 1; ; d++ {
		if !w.inUse[d] {
			w.inUse[d] = true
			return d
		}
	}
}

func digitText(d int) string {
	if d < 10 {
		return strconv.Itoa(d)
	}
	return "%" + strconv.Itoa(d)
}

func (w *dfsWriter) byPartnerRank(u int, bs []int) []int {
	out := append([]int(nil), bs...)
	sort.Slice(out, func(x, y int) bool {
		return w.rank[w.m.bonds[out[x]].Other(u)] < w.rank[w.m.bonds[out[y]].Other(u)]
	})
	return out
}

func (w *dfsWriter) write(u int) {
	w.sb.WriteString(w.r.atom(w.m, u))
	for _, b := range w.byPartnerRank(u, w.closes[u]) {
		d := w.digit[b]
		w.sb.WriteString(digitText(d))
		delete(w.inUse, d)
	}
	for _, b := range w.byPartnerRank(u, w.opens[u]) {
		d := w.freeDigit()
		w.digit[b] = d
		w.sb.WriteString(w.r.bond(w.m, b))
		w.sb.WriteString(digitText(d))
	}
	kids := w.children[u]
	for i, b := range kids {
		v := w.m.bonds[b].Other(u)
		last := i == len(kids)-1
		if !last {
			w.sb.WriteByte('(')
		}
		w.sb.WriteString(w.r.bond(w.m, b))
		w.write(v)
		if !last {
			w.sb.WriteByte(')')
		}
	}
}

// writeSMILES renders m with r, one canonical DFS per component; the
// component strings are sorted and joined with ".".
func (m *Mol) writeSMILES(r renderer) string {
	if len(m.atoms) == 0 {
		return ""
	}
	w := &dfsWriter{
		m:        m,
		rank:     m.canonicalRanks(),
		r:        r,
		visited:  make([]bool, len(m.atoms)),
		children: make([][]int, len(m.atoms)),
		opens:    make([][]int, len(m.atoms)),
		closes:   make([][]int, len(m.atoms)),
		isRing:   map[int]bool{},
		digit:    map[int]int{},
		inUse:    map[int]bool{},
	}
	comp, n := m.components()
	starts := make([]int, n)
	for i := range starts {
		starts[i] = -1
	}
	for i, c := range comp {
		if starts[c] == -1 || w.rank[i] < w.rank[starts[c]] {
			starts[c] = i
		}
	}
	parts := make([]string, 0, n)
	for _, s := range starts {
		w.plan(s, -1)
		w.sb.Reset()
		w.write(s)
		parts = append(parts, w.sb.String())
	}
	sort.Strings(parts)
	return strings.Join(parts, ".")
}
