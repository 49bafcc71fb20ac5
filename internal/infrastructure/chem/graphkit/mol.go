// Package graphkit is a small Go-native structure toolkit: a SMILES reader
// and canonical writer, a two-atom query matcher, bond cutting and circular
// fingerprints over an adjacency-list molecule graph.  It implements
// toolkit.Toolkit[*Mol] so the MMP engine can run without a native
// cheminformatics library.
//
// Aromaticity is taken from the input as written and never perceived, so
// Kekulé and aromatic spellings of the same ring canonicalize differently.
// Stereo marks are kept on atoms for fingerprinting but never written.
package graphkit

import "sync/atomic"

// BondOrder is the order of a bond.  Aromatic is its own order.
type BondOrder int

const (
	BondSingle   BondOrder = 1
	BondDouble   BondOrder = 2
	BondTriple   BondOrder = 3
	BondAromatic BondOrder = 4
)

// valence returns the bond's contribution to an atom's valence.  Aromatic
// bonds count one; the aromatic atom adds its extra electron separately.
func (o BondOrder) valence() int {
	if o == BondAromatic {
		return 1
	}
	return int(o)
}

// Atom is one vertex of a Mol.
type Atom struct {
	Symbol    string // capitalised element symbol, "*" for attachment points
	Number    int    // atomic number, 0 for attachment points
	Aromatic  bool
	Isotope   int
	Charge    int
	Hydrogens int  // implicit or bracket hydrogens, not graph atoms
	Bracket   bool // hydrogen count was written explicitly
	MapNum    int
	Chirality string
}

// IsAttachment reports whether the atom is an attachment point.
func (a Atom) IsAttachment() bool { return a.Number == 0 }

// Label returns an attachment point's label: its isotope, or its map number
// when no isotope is set.
func (a Atom) Label() int {
	if a.Isotope > 0 {
		return a.Isotope
	}
	return a.MapNum
}

// Bond is one edge of a Mol.
type Bond struct {
	Begin, End int
	Order      BondOrder
}

// Other returns the bond's atom that is not atom.
func (b Bond) Other(atom int) int {
	if b.Begin == atom {
		return b.End
	}
	return b.Begin
}

// Mol is a molecule graph.  A Mol is not safe for concurrent mutation; the
// toolkit never mutates a handle it has returned.
type Mol struct {
	atoms []Atom
	bonds []Bond
	adj   [][]int // atom -> incident bond indices

	ring     []bool // bond -> in ring; nil until computed
	released atomic.Bool
}

// NumAtoms returns the atom count, attachment points and explicit
// hydrogens included.
func (m *Mol) NumAtoms() int { return len(m.atoms) }

// NumBonds returns the bond count.
func (m *Mol) NumBonds() int { return len(m.bonds) }

// Atom returns atom i.
func (m *Mol) Atom(i int) Atom { return m.atoms[i] }

// Bond returns bond i.
func (m *Mol) Bond(i int) Bond { return m.bonds[i] }

// Degree returns the number of explicit neighbours of atom i.
func (m *Mol) Degree(i int) int { return len(m.adj[i]) }

// TotalHydrogens returns implicit plus explicit-atom hydrogens of atom i.
func (m *Mol) TotalHydrogens(i int) int {
	h := m.atoms[i].Hydrogens
	for _, b := range m.adj[i] {
		if m.atoms[m.bonds[b].Other(i)].Number == 1 {
			h++
		}
	}
	return h
}

// Neighbors returns the atoms bonded to i in bond order.
func (m *Mol) Neighbors(i int) []int {
	out := make([]int, 0, len(m.adj[i]))
	for _, b := range m.adj[i] {
		out = append(out, m.bonds[b].Other(i))
	}
	return out
}

// BondBetween returns the index of the bond joining a and b, or -1.
func (m *Mol) BondBetween(a, b int) int {
	for _, bi := range m.adj[a] {
		if m.bonds[bi].Other(a) == b {
			return bi
		}
	}
	return -1
}

func (m *Mol) addAtom(a Atom) int {
	m.atoms = append(m.atoms, a)
	m.adj = append(m.adj, nil)
	m.ring = nil
	return len(m.atoms) - 1
}

func (m *Mol) addBond(a, b int, order BondOrder) int {
	m.bonds = append(m.bonds, Bond{Begin: a, End: b, Order: order})
	idx := len(m.bonds) - 1
	m.adj[a] = append(m.adj[a], idx)
	m.adj[b] = append(m.adj[b], idx)
	m.ring = nil
	return idx
}

// Clone returns a deep copy.
func (m *Mol) Clone() *Mol {
	c := &Mol{
		atoms: make([]Atom, len(m.atoms)),
		bonds: make([]Bond, len(m.bonds)),
		adj:   make([][]int, len(m.adj)),
	}
	copy(c.atoms, m.atoms)
	copy(c.bonds, m.bonds)
	for i, a := range m.adj {
		c.adj[i] = append([]int(nil), a...)
	}
	return c
}

// withoutBonds returns a copy without the bonds in drop.
func (m *Mol) withoutBonds(drop map[int]bool) *Mol {
	c := &Mol{atoms: make([]Atom, len(m.atoms)), adj: make([][]int, len(m.atoms))}
	copy(c.atoms, m.atoms)
	for i, b := range m.bonds {
		if drop[i] {
			continue
		}
		c.addBond(b.Begin, b.End, b.Order)
	}
	return c
}

// ─────────────────────────────────────────────────────────────────────────────
// Ring membership
// ─────────────────────────────────────────────────────────────────────────────

// BondInRing reports whether bond b lies on a cycle.
func (m *Mol) BondInRing(b int) bool {
	m.perceiveRings()
	return m.ring[b]
}

// AtomInRing reports whether atom i has a ring bond.
func (m *Mol) AtomInRing(i int) bool {
	m.perceiveRings()
	for _, b := range m.adj[i] {
		if m.ring[b] {
			return true
		}
	}
	return false
}

// perceiveRings marks every non-bridge bond as a ring bond (Tarjan).
func (m *Mol) perceiveRings() {
	if m.ring != nil {
		return
	}
	ring := make([]bool, len(m.bonds))
	for i := range ring {
		ring[i] = true
	}
	disc := make([]int, len(m.atoms))
	low := make([]int, len(m.atoms))
	for i := range disc {
		disc[i] = -1
	}
	timer := 0
	var dfs func(u, parentBond int)
	dfs = func(u, parentBond int) {
		disc[u] = timer
		low[u] = timer
		timer++
		for _, b := range m.adj[u] {
			if b == parentBond {
				continue
			}
			v := m.bonds[b].Other(u)
			if disc[v] == -1 {
				dfs(v, b)
				if low[v] < low[u] {
					low[u] = low[v]
				}
				if low[v] > disc[u] {
					ring[b] = false
				}
			} else if disc[v] < low[u] {
				low[u] = disc[v]
			}
		}
	}
	for i := range m.atoms {
		if disc[i] == -1 {
			dfs(i, -1)
		}
	}
	m.ring = ring
}

// ─────────────────────────────────────────────────────────────────────────────
// Connectivity
// ─────────────────────────────────────────────────────────────────────────────

// components labels every atom with its connected-component index, in
// order of each component's lowest atom.
func (m *Mol) components() ([]int, int) {
	comp := make([]int, len(m.atoms))
	for i := range comp {
		comp[i] = -1
	}
	n := 0
	for start := range m.atoms {
		if comp[start] != -1 {
			continue
		}
		queue := []int{start}
		comp[start] = n
		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]
			for _, b := range m.adj[u] {
				v := m.bonds[b].Other(u)
				if comp[v] == -1 {
					comp[v] = n
					queue = append(queue, v)
				}
			}
		}
		n++
	}
	return comp, n
}

// subMol extracts the atoms of component c, preserving relative order.
func (m *Mol) subMol(comp []int, c int) *Mol {
	out := &Mol{}
	remap := make(map[int]int)
	for i, a := range m.atoms {
		if comp[i] == c {
			remap[i] = out.addAtom(a)
		}
	}
	for _, b := range m.bonds {
		if comp[b.Begin] == c {
			out.addBond(remap[b.Begin], remap[b.End], b.Order)
		}
	}
	return out
}

// shortestPath returns the BFS bond distance between two atoms.
func (m *Mol) shortestPath(from, to int) (int, bool) {
	if from < 0 || to < 0 || from >= len(m.atoms) || to >= len(m.atoms) {
		return 0, false
	}
	if from == to {
		return 0, true
	}
	dist := make([]int, len(m.atoms))
	for i := range dist {
		dist[i] = -1
	}
	dist[from] = 0
	queue := []int{from}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, b := range m.adj[u] {
			v := m.bonds[b].Other(u)
			if dist[v] != -1 {
				continue
			}
			dist[v] = dist[u] + 1
			if v == to {
				return dist[v], true
			}
			queue = append(queue, v)
		}
	}
	return 0, false
}
