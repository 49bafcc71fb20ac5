package graphkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-MMP/internal/domain/toolkit"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
)

func canon(t *testing.T, tk *Toolkit, smiles string) string {
	t.Helper()
	m, err := tk.Parse(smiles)
	require.NoError(t, err, smiles)
	defer tk.Release(m)
	s, err := tk.Canonicalize(m)
	require.NoError(t, err)
	return s
}

func TestParseSMILES_Errors(t *testing.T) {
	for _, in := range []string{"", "   ", "C C", "C(", "C)", "C1CC", "[Xx]", "C=", "[C", "C%1", "=C", "C..C("} {
		_, err := ParseSMILES(in)
		require.Error(t, err, in)
		assert.True(t, errors.IsCode(err, errors.CodeParse), in)
	}
}

func TestParseSMILES_ImplicitHydrogens(t *testing.T) {
	m, err := ParseSMILES("CCO")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 1}, []int{m.TotalHydrogens(0), m.TotalHydrogens(1), m.TotalHydrogens(2)})

	m, err = ParseSMILES("c1ccccc1")
	require.NoError(t, err)
	for i := 0; i < m.NumAtoms(); i++ {
		assert.Equal(t, 1, m.TotalHydrogens(i))
		assert.True(t, m.AtomInRing(i))
	}

	m, err = ParseSMILES("[NH4+]")
	require.NoError(t, err)
	assert.Equal(t, 4, m.TotalHydrogens(0))
	assert.Equal(t, 1, m.Atom(0).Charge)
}

func TestParseSMILES_BracketAtom(t *testing.T) {
	m, err := ParseSMILES("[13CH3:7][C@@H](F)[2*]")
	require.NoError(t, err)
	a := m.Atom(0)
	assert.Equal(t, 13, a.Isotope)
	assert.Equal(t, 3, a.Hydrogens)
	assert.Equal(t, 7, a.MapNum)
	assert.Equal(t, "@@", m.Atom(1).Chirality)
	assert.True(t, m.Atom(3).IsAttachment())
	assert.Equal(t, 2, m.Atom(3).Label())
}

func TestParseSMILES_RingClosures(t *testing.T) {
	m, err := ParseSMILES("C%10CCCCC%10")
	require.NoError(t, err)
	assert.Equal(t, 6, m.NumBonds())
	for b := 0; b < m.NumBonds(); b++ {
		assert.True(t, m.BondInRing(b))
	}

	m, err = ParseSMILES("C1CC1CC")
	require.NoError(t, err)
	assert.True(t, m.BondInRing(0))
	assert.False(t, m.BondInRing(m.BondBetween(2, 3)))
}

func TestCanonicalize_IndependentOfInputOrder(t *testing.T) {
	tk := New()
	pairs := [][2]string{
		{"Cc1ccccc1", "c1ccccc1C"},
		{"OCC", "CCO"},
		{"CC(=O)O", "OC(C)=O"},
		{"[1*]CC", "CC[1*]"},
		{"c1ccc2ccccc2c1", "c1ccc2c(c1)cccc2"},
		{"[1*]c1ccc([2*])cc1", "c1cc([2*])ccc1[1*]"},
		{"C[N+](C)(C)C", "[N+](C)(C)(C)C"},
		{"OC1CCCCC1", "C1CCC(O)CC1"},
	}
	for _, p := range pairs {
		assert.Equal(t, canon(t, tk, p[0]), canon(t, tk, p[1]), "%s vs %s", p[0], p[1])
	}
	assert.Zero(t, tk.Live())
}

func TestParseSMILES_BiarylBondIsSingle(t *testing.T) {
	tk := New()
	assert.Equal(t, canon(t, tk, "c1ccc(-c2ccccc2)cc1"), canon(t, tk, "c1ccccc1c1ccccc1"))

	for _, s := range []string{"c1ccccc1c1ccccc1", "c1ccc(-c2ccccc2)cc1"} {
		m, err := tk.Parse(s)
		require.NoError(t, err)
		bonds, err := tk.MatchBonds(m, "[*]!@-[*]")
		require.NoError(t, err)
		require.Len(t, bonds, 1, s)
		assert.Equal(t, BondSingle, m.Bond(bonds[0]).Order)
		tk.Release(m)
	}

	// Ring bonds written without a symbol stay aromatic.
	m, err := tk.Parse("c1ccc2ccccc2c1")
	require.NoError(t, err)
	defer tk.Release(m)
	for i := 0; i < m.NumBonds(); i++ {
		assert.Equal(t, BondAromatic, m.Bond(i).Order)
	}
}

func TestCanonicalize_KnownForms(t *testing.T) {
	tk := New()
	assert.Equal(t, "CCO", canon(t, tk, "OCC"))
	assert.Equal(t, "CC(=O)O", canon(t, tk, "OC(C)=O"))
	assert.Equal(t, "Cc1ccccc1", canon(t, tk, "c1ccccc1C"))
	assert.Equal(t, "[1*]CC", canon(t, tk, "CC[1*]"))
	assert.Equal(t, "*C", canon(t, tk, "C*"))
	assert.Equal(t, "[NH4+]", canon(t, tk, "[NH4+]"))
	assert.Equal(t, "C.O", canon(t, tk, "O.C"))
}

func TestCanonicalize_Idempotent(t *testing.T) {
	tk := New()
	for _, s := range []string{"CC(C)(C)c1ccc(O)cc1", "O=C(O)c1ccccc1N", "C1CC2CCC1C2", "[1*]C(=O)N[2*]", "C#N"} {
		first := canon(t, tk, s)
		assert.Equal(t, first, canon(t, tk, first), s)
	}
}

func TestMatchBonds_CutPatterns(t *testing.T) {
	tk := New()
	tol, err := tk.Parse("Cc1ccccc1")
	require.NoError(t, err)
	defer tk.Release(tol)
	eth, err := tk.Parse("CCc1ccccc1")
	require.NoError(t, err)
	defer tk.Release(eth)

	bonds, err := tk.MatchBonds(tol, "[*]!@-[*]")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, bonds)

	bonds, err = tk.MatchBonds(eth, "[*]!@-[*]")
	require.NoError(t, err)
	assert.Len(t, bonds, 2)

	bonds, err = tk.MatchBonds(eth, "[R]!@-[!R]")
	require.NoError(t, err)
	assert.Len(t, bonds, 1)

	bonds, err = tk.MatchBonds(eth, "[!#1;!D1]!@-[!#1;!D1]")
	require.NoError(t, err)
	assert.Len(t, bonds, 1)

	bonds, err = tk.MatchBonds(tol, "[!#1;!D1]!@-[!#1;!D1]")
	require.NoError(t, err)
	assert.Empty(t, bonds)
}

func TestMatch_AtomPrimitives(t *testing.T) {
	tk := New()
	m, err := tk.Parse("[1*]C(=O)Nc1ccccc1Cl")
	require.NoError(t, err)
	defer tk.Release(m)

	cases := []struct {
		pattern string
		want    int
	}{
		{"*", m.NumAtoms()},
		{"[#0]", 1},
		{"c", 6},
		{"a", 6},
		{"[C,N]", 2},
		{"[#6;A]", 1},
		{"[D3]", 3},
		{"[H1]", 5},
		{"[Cl]", 1},
		{"[O;X1]", 1},
		{"[+0;!#0]", m.NumAtoms() - 1},
		{"[R0]", 5},
		{"[#0]~[!#0]", 1},
		{"[#6]=[#8]", 1},
	}
	for _, tc := range cases {
		got, err := tk.Match(m, tc.pattern)
		require.NoError(t, err, tc.pattern)
		assert.Len(t, got, tc.want, tc.pattern)
	}
}

func TestMatch_Unsupported(t *testing.T) {
	tk := New()
	m, err := tk.Parse("CC")
	require.NoError(t, err)
	defer tk.Release(m)

	for _, p := range []string{"[$(CC)]", "CCC", "C1CC1", "[Q]", ""} {
		_, err := tk.Match(m, p)
		require.Error(t, err, p)
		assert.True(t, errors.IsCode(err, errors.CodeToolkit), p)
	}
	_, err = tk.MatchBonds(m, "C")
	assert.True(t, errors.IsCode(err, errors.CodeToolkit))
}

func TestFragmentOnBonds_Toluene(t *testing.T) {
	tk := New()
	arena := toolkit.NewArena[*Mol](tk)
	m, err := arena.Parse("Cc1ccccc1")
	require.NoError(t, err)

	cut, err := arena.FragmentOnBonds(m, []int{0})
	require.NoError(t, err)
	parts, err := arena.Components(cut)
	require.NoError(t, err)
	require.Len(t, parts, 2)

	got := map[string]bool{}
	for _, p := range parts {
		s, err := tk.Canonicalize(p)
		require.NoError(t, err)
		got[s] = true
		require.Len(t, tk.AttachmentPoints(p), 1)
		assert.Equal(t, 1, tk.AttachmentPoints(p)[0].Label)
	}
	assert.True(t, got[canon(t, tk, "[1*]C")])
	assert.True(t, got[canon(t, tk, "[1*]c1ccccc1")])

	_, err = tk.FragmentOnBonds(m, []int{99})
	assert.True(t, errors.IsCode(err, errors.CodeToolkit))

	arena.Release()
	assert.Zero(t, tk.Live())
}

func TestSetAttachmentLabels(t *testing.T) {
	tk := New()
	m, err := tk.Parse("*CC*")
	require.NoError(t, err)
	defer tk.Release(m)

	pts := tk.AttachmentPoints(m)
	require.Len(t, pts, 2)
	relabelled, err := tk.SetAttachmentLabels(m, map[int]int{pts[0].Atom: 2, pts[1].Atom: 1})
	require.NoError(t, err)
	defer tk.Release(relabelled)
	s, err := tk.Canonicalize(relabelled)
	require.NoError(t, err)
	assert.Equal(t, canon(t, tk, "[1*]CC[2*]"), s)

	_, err = tk.SetAttachmentLabels(m, map[int]int{1: 1})
	assert.True(t, errors.IsCode(err, errors.CodeToolkit))
}

func TestShortestPathAndNeighbors(t *testing.T) {
	tk := New()
	m, err := tk.Parse("CCCC.O")
	require.NoError(t, err)
	defer tk.Release(m)

	d, ok := tk.ShortestPath(m, 0, 3)
	assert.True(t, ok)
	assert.Equal(t, 3, d)
	_, ok = tk.ShortestPath(m, 0, 4)
	assert.False(t, ok)
	assert.ElementsMatch(t, []int{0, 2}, tk.Neighbors(m, 1))
}

func TestHeavyAtomsAndHydrogens(t *testing.T) {
	tk := New()
	m, err := tk.Parse("[1*]CO")
	require.NoError(t, err)
	defer tk.Release(m)
	assert.Equal(t, 2, tk.HeavyAtomCount(m))

	h, err := tk.AddHydrogens(m)
	require.NoError(t, err)
	defer tk.Release(h)
	assert.Equal(t, 2, tk.HeavyAtomCount(h))
	assert.Equal(t, 3+3, h.NumAtoms())

	s, err := tk.Canonicalize(h)
	require.NoError(t, err)
	again := canon(t, tk, s)
	assert.Equal(t, s, again)
}

func TestExactQuery(t *testing.T) {
	tk := New()
	m, err := tk.Parse("[1*]CC")
	require.NoError(t, err)
	defer tk.Release(m)

	q, err := tk.ExactQuery(m)
	require.NoError(t, err)
	assert.Equal(t, "[*:1]-[C;D2;H2;+0]-[C;D1;H3;+0]", q)
}

func TestFingerprint(t *testing.T) {
	tk := New()
	opts := toolkit.FingerprintOptions{Radius: 2, Bits: 1024, UseBondTypes: true}

	fpOf := func(s string) *toolkit.BitVector {
		m, err := tk.Parse(s)
		require.NoError(t, err)
		defer tk.Release(m)
		hits, err := tk.Match(m, "[#0]~[!#0]")
		require.NoError(t, err)
		roots := make([]int, 0, len(hits))
		for _, h := range hits {
			roots = append(roots, h[1])
		}
		fp, err := tk.Fingerprint(m, roots, opts)
		require.NoError(t, err)
		return fp
	}

	a := fpOf("[1*]CCO")
	b := fpOf("OCC[2*]")
	c := fpOf("[1*]c1ccccc1")
	assert.True(t, a.Equal(b), "attachment label must not change the fingerprint")
	assert.False(t, a.Equal(c))
	assert.Equal(t, 1024, a.Len())
	assert.Positive(t, a.PopCount())

	m, err := tk.Parse("CC")
	require.NoError(t, err)
	defer tk.Release(m)
	_, err = tk.Fingerprint(m, []int{0}, toolkit.FingerprintOptions{Radius: 1})
	assert.True(t, errors.IsCode(err, errors.CodeToolkit))
	_, err = tk.Fingerprint(m, []int{5}, opts)
	assert.True(t, errors.IsCode(err, errors.CodeToolkit))
}

func TestRelease_CountsOnce(t *testing.T) {
	tk := New()
	m, err := tk.Parse("C")
	require.NoError(t, err)
	assert.EqualValues(t, 1, tk.Live())
	tk.Release(m)
	tk.Release(m)
	tk.Release(nil)
	assert.Zero(t, tk.Live())

	_, err = tk.Canonicalize(m)
	assert.True(t, errors.IsCode(err, errors.CodeToolkit))
}
