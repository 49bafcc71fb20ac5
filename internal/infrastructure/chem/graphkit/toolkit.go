package graphkit

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/turtacn/KeyIP-MMP/internal/domain/toolkit"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
)

// Toolkit implements toolkit.Toolkit over *Mol handles.  It is safe for
// concurrent use; handles are never mutated after they are returned.
type Toolkit struct {
	live    atomic.Int64
	queries sync.Map // pattern -> *Query
}

var _ toolkit.Toolkit[*Mol] = (*Toolkit)(nil)

// New returns a Toolkit.
func New() *Toolkit { return &Toolkit{} }

// Live returns the number of handles returned and not yet released.
func (t *Toolkit) Live() int64 { return t.live.Load() }

func (t *Toolkit) track(m *Mol) *Mol {
	t.live.Add(1)
	return m
}

func checkHandle(m *Mol) error {
	if m == nil {
		return errors.Toolkit("nil structure handle")
	}
	if m.released.Load() {
		return errors.Toolkit("structure handle used after release")
	}
	return nil
}

func (t *Toolkit) Parse(text string) (*Mol, error) {
	m, err := ParseSMILES(text)
	if err != nil {
		return nil, err
	}
	return t.track(m), nil
}

func (t *Toolkit) Canonicalize(m *Mol) (string, error) {
	if err := checkHandle(m); err != nil {
		return "", err
	}
	return m.writeSMILES(canonicalRenderer), nil
}

func (t *Toolkit) compile(pattern string) (*Query, error) {
	if q, ok := t.queries.Load(pattern); ok {
		return q.(*Query), nil
	}
	q, err := CompileQuery(pattern)
	if err != nil {
		return nil, errors.Toolkit("invalid query pattern").WithDetail(pattern).WithCause(err)
	}
	t.queries.Store(pattern, q)
	return q, nil
}

func (t *Toolkit) Match(m *Mol, pattern string) ([][]int, error) {
	if err := checkHandle(m); err != nil {
		return nil, err
	}
	q, err := t.compile(pattern)
	if err != nil {
		return nil, err
	}
	return q.Match(m), nil
}

func (t *Toolkit) MatchBonds(m *Mol, pattern string) ([]int, error) {
	if err := checkHandle(m); err != nil {
		return nil, err
	}
	q, err := t.compile(pattern)
	if err != nil {
		return nil, err
	}
	if q.Size() != 2 {
		return nil, errors.Toolkit("bond pattern must have two atoms").WithDetail(pattern)
	}
	seen := make(map[int]bool)
	var out []int
	for _, pair := range q.Match(m) {
		b := m.BondBetween(pair[0], pair[1])
		if b >= 0 && !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}
	sort.Ints(out)
	return out, nil
}

func (t *Toolkit) ShortestPath(m *Mol, from, to int) (int, bool) {
	if checkHandle(m) != nil {
		return 0, false
	}
	return m.shortestPath(from, to)
}

func (t *Toolkit) Fingerprint(m *Mol, roots []int, opts toolkit.FingerprintOptions) (*toolkit.BitVector, error) {
	if err := checkHandle(m); err != nil {
		return nil, err
	}
	if opts.Bits <= 0 || opts.Radius < 0 {
		return nil, errors.Toolkit("invalid fingerprint options").
			WithDetail(fmt.Sprintf("radius=%d bits=%d", opts.Radius, opts.Bits))
	}
	for _, r := range roots {
		if r < 0 || r >= m.NumAtoms() {
			return nil, errors.Toolkit("fingerprint root out of range").WithDetail(fmt.Sprintf("atom=%d", r))
		}
	}
	return m.circularFingerprint(roots, opts), nil
}

func (t *Toolkit) FragmentOnBonds(m *Mol, bonds []int) (*Mol, error) {
	if err := checkHandle(m); err != nil {
		return nil, err
	}
	drop := make(map[int]bool, len(bonds))
	for _, b := range bonds {
		if b < 0 || b >= m.NumBonds() || drop[b] {
			return nil, errors.Toolkit("invalid bond to cut").WithDetail(fmt.Sprintf("bond=%d", b))
		}
		drop[b] = true
	}
	out := m.withoutBonds(drop)
	for i, b := range bonds {
		bd := m.bonds[b]
		for _, end := range []int{bd.Begin, bd.End} {
			d := out.addAtom(Atom{Symbol: "*", Isotope: i + 1, Bracket: true})
			out.addBond(end, d, bd.Order)
		}
	}
	return t.track(out), nil
}

func (t *Toolkit) Components(m *Mol) ([]*Mol, error) {
	if err := checkHandle(m); err != nil {
		return nil, err
	}
	comp, n := m.components()
	out := make([]*Mol, n)
	for c := 0; c < n; c++ {
		out[c] = t.track(m.subMol(comp, c))
	}
	return out, nil
}

func (t *Toolkit) AttachmentPoints(m *Mol) []toolkit.Attachment {
	if checkHandle(m) != nil {
		return nil
	}
	var out []toolkit.Attachment
	for i, a := range m.atoms {
		if a.IsAttachment() {
			out = append(out, toolkit.Attachment{Atom: i, Label: a.Label()})
		}
	}
	return out
}

func (t *Toolkit) Neighbors(m *Mol, atom int) []int {
	if checkHandle(m) != nil || atom < 0 || atom >= m.NumAtoms() {
		return nil
	}
	return m.Neighbors(atom)
}

func (t *Toolkit) SetAttachmentLabels(m *Mol, labels map[int]int) (*Mol, error) {
	if err := checkHandle(m); err != nil {
		return nil, err
	}
	out := m.Clone()
	for atom, label := range labels {
		if atom < 0 || atom >= out.NumAtoms() || !out.atoms[atom].IsAttachment() {
			return nil, errors.Toolkit("not an attachment point").WithDetail(fmt.Sprintf("atom=%d", atom))
		}
		if label < 0 {
			return nil, errors.Toolkit("negative attachment label").WithDetail(fmt.Sprintf("atom=%d", atom))
		}
		out.atoms[atom].Isotope = label
		out.atoms[atom].MapNum = 0
	}
	return t.track(out), nil
}

func (t *Toolkit) HeavyAtomCount(m *Mol) int {
	if checkHandle(m) != nil {
		return 0
	}
	n := 0
	for _, a := range m.atoms {
		if a.Number > 1 {
			n++
		}
	}
	return n
}

func (t *Toolkit) AddHydrogens(m *Mol) (*Mol, error) {
	if err := checkHandle(m); err != nil {
		return nil, err
	}
	out := m.Clone()
	for i := 0; i < m.NumAtoms(); i++ {
		h := out.atoms[i].Hydrogens
		if h == 0 || out.atoms[i].Number <= 1 {
			continue
		}
		out.atoms[i].Hydrogens = 0
		out.atoms[i].Bracket = true
		for k := 0; k < h; k++ {
			hi := out.addAtom(Atom{Symbol: "H", Number: 1, Bracket: true})
			out.addBond(i, hi, BondSingle)
		}
	}
	return t.track(out), nil
}

func (t *Toolkit) ExactQuery(m *Mol) (string, error) {
	if err := checkHandle(m); err != nil {
		return "", err
	}
	return m.writeSMILES(exactRenderer), nil
}

func (t *Toolkit) Release(m *Mol) {
	if m == nil {
		return
	}
	if m.released.CompareAndSwap(false, true) {
		t.live.Add(-1)
	}
}
