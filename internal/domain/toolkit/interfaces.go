// Package toolkit defines the contract the MMP engine requires from a
// molecular-structure toolkit.  The engine never inspects a structure
// directly: it holds opaque handles of type M and asks the toolkit to parse,
// canonicalize, match, cut and fingerprint them.
//
// Implementations must be safe for concurrent use by multiple goroutines as
// long as no single handle is shared between them.  Every handle a toolkit
// returns is owned by the caller and must be given back through Release,
// normally via an Arena.
package toolkit

// Attachment is one attachment-point atom of a structure and its label.  A
// label of 0 means the attachment is unlabelled ("*").
type Attachment struct {
	Atom  int
	Label int
}

// FingerprintOptions configures a circular environment fingerprint.
type FingerprintOptions struct {
	Radius       int
	Bits         int
	UseChirality bool
	UseBondTypes bool
}

// Toolkit is the structure-toolkit contract, parameterized over the
// toolkit's native molecule handle.
//
// All failures are typed AppErrors: CodeParse for unreadable text and
// CodeToolkit for everything else.
type Toolkit[M any] interface {
	// Parse reads structure text.  Empty or unreadable text fails with
	// CodeParse.
	Parse(text string) (M, error)

	// Canonicalize returns the canonical text of m.  Attachment labels are
	// part of the canonical form.
	Canonicalize(m M) (string, error)

	// Match returns every atom tuple of m matching pattern, one entry per
	// embedding.
	Match(m M, pattern string) ([][]int, error)

	// MatchBonds returns the sorted, distinct bond indices of m matched by a
	// two-atom bond pattern in either direction.
	MatchBonds(m M, pattern string) ([]int, error)

	// ShortestPath returns the bond count of the shortest path between two
	// atoms, or false when they are not connected.
	ShortestPath(m M, from, to int) (int, bool)

	// Fingerprint computes a circular fingerprint whose environments are
	// centred on roots.
	Fingerprint(m M, roots []int, opts FingerprintOptions) (*BitVector, error)

	// FragmentOnBonds breaks the given bonds.  Bond bonds[i] is replaced by
	// two attachment atoms, one on each side, both labelled i+1.
	FragmentOnBonds(m M, bonds []int) (M, error)

	// Components splits m into its connected components, in order of their
	// lowest atom index.
	Components(m M) ([]M, error)

	// AttachmentPoints lists the attachment atoms of m in atom order.
	AttachmentPoints(m M) []Attachment

	// Neighbors returns the atoms bonded to atom.
	Neighbors(m M, atom int) []int

	// SetAttachmentLabels returns a copy of m whose attachment atoms carry
	// the given labels (atom index → label, 0 clears the label).
	SetAttachmentLabels(m M, labels map[int]int) (M, error)

	// HeavyAtomCount counts atoms other than hydrogen and attachment points.
	HeavyAtomCount(m M) int

	// AddHydrogens returns a copy of m with every implicit hydrogen made
	// explicit.
	AddHydrogens(m M) (M, error)

	// ExactQuery renders m as a query pattern that only matches the same
	// substitution: every atom is locked to its degree, hydrogen count and
	// charge.  Attachment atoms are written as mapped wildcards.
	ExactQuery(m M) (string, error)

	// Release frees the handle.  Releasing a zero handle is a no-op.
	Release(m M)
}
