package graphkit

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/turtacn/KeyIP-MMP/internal/domain/toolkit"
)

func hashInts(vals ...uint64) uint64 {
	d := xxhash.New()
	var buf [8]byte
	for _, v := range vals {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (m *Mol) initialIdentifier(i int, opts toolkit.FingerprintOptions) uint64 {
	a := m.atoms[i]
	iso := uint64(a.Isotope)
	if a.IsAttachment() {
		// Attachment labels must not distinguish environments.
		iso = 0
	}
	chiral := uint64(0)
	if opts.UseChirality {
		chiral = uint64(len(a.Chirality))
	}
	return hashInts(
		uint64(a.Number), uint64(m.Degree(i)), uint64(m.TotalHydrogens(i)),
		uint64(int64(a.Charge)), iso, boolBit(a.Aromatic), boolBit(m.AtomInRing(i)), chiral,
	)
}

// circularFingerprint folds Morgan-style environment identifiers of the
// root atoms at every iteration 0..Radius into a Bits-long vector.
func (m *Mol) circularFingerprint(roots []int, opts toolkit.FingerprintOptions) *toolkit.BitVector {
	fp := toolkit.NewBitVector(opts.Bits)
	ids := make([]uint64, len(m.atoms))
	for i := range m.atoms {
		ids[i] = m.initialIdentifier(i, opts)
	}
	set := func() {
		for _, r := range roots {
			fp.Set(int(ids[r] % uint64(opts.Bits)))
		}
	}
	set()
	for iter := 0; iter < opts.Radius; iter++ {
		next := make([]uint64, len(ids))
		for i := range m.atoms {
			type nb struct{ bond, id uint64 }
			nbs := make([]nb, 0, len(m.adj[i]))
			for _, b := range m.adj[i] {
				bt := uint64(0)
				if opts.UseBondTypes {
					bt = uint64(m.bonds[b].Order)
				}
				nbs = append(nbs, nb{bt, ids[m.bonds[b].Other(i)]})
			}
			sort.Slice(nbs, func(x, y int) bool {
				if nbs[x].bond != nbs[y].bond {
					return nbs[x].bond < nbs[y].bond
				}
				return nbs[x].id < nbs[y].id
			})
			vals := make([]uint64, 0, 2+2*len(nbs))
			vals = append(vals, uint64(iter+1), ids[i])
			for _, n := range nbs {
				vals = append(vals, n.bond, n.id)
			}
			next[i] = hashInts(vals...)
		}
		ids = next
		set()
	}
	return fp
}
