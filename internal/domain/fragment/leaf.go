// Package fragment holds the value types produced by fragmentation: Leaves,
// Keys, Values and the run-wide Key→Values Result.
//
// Leaves and Values are immutable.  Only Result is mutable and it is owned by
// a single goroutine at a time; workers build their own Results and the
// runner merges them.
package fragment

import (
	"fmt"
	"strings"

	"github.com/turtacn/KeyIP-MMP/internal/domain/toolkit"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
)

// Leaf is the canonical form of a fragment with exactly one attachment
// point.  The attachment is written as a bare "*" in the canonical form; the
// label it carried before canonicalization is kept as a zero-based index.
type Leaf struct {
	canonical string
	index     int
	heavy     int
}

// NewLeaf builds a Leaf from frag.  frag is not released.
func NewLeaf[M any](tk toolkit.Toolkit[M], frag M) (Leaf, error) {
	pts := tk.AttachmentPoints(frag)
	if len(pts) != 1 {
		return Leaf{}, errors.InvalidLeaf("fragment must carry exactly one attachment point").
			WithDetail(fmt.Sprintf("attachment_points=%d", len(pts)))
	}
	index := 0
	if pts[0].Label > 0 {
		index = pts[0].Label - 1
	}

	cleared, err := tk.SetAttachmentLabels(frag, map[int]int{pts[0].Atom: 0})
	if err != nil {
		return Leaf{}, errors.Wrap(err, errors.CodeToolkit, "clear attachment label")
	}
	defer tk.Release(cleared)

	canonical, err := tk.Canonicalize(cleared)
	if err != nil {
		return Leaf{}, errors.Wrap(err, errors.CodeToolkit, "canonicalize leaf")
	}
	return Leaf{canonical: canonical, index: index, heavy: tk.HeavyAtomCount(frag)}, nil
}

// ParseLeaf reads a single-attachment fragment from text.
func ParseLeaf[M any](tk toolkit.Toolkit[M], s string) (Leaf, error) {
	m, err := tk.Parse(s)
	if err != nil {
		return Leaf{}, err
	}
	defer tk.Release(m)
	return NewLeaf(tk, m)
}

// Canonical returns the canonical form with an unlabelled attachment.
func (l Leaf) Canonical() string { return l.canonical }

// AttachmentIndex returns the zero-based label the attachment carried.
func (l Leaf) AttachmentIndex() int { return l.index }

// HeavyAtoms returns the leaf's heavy-atom count.
func (l Leaf) HeavyAtoms() int { return l.heavy }

// Equal compares canonical forms only.
func (l Leaf) Equal(o Leaf) bool { return l.canonical == o.canonical }

// Labelled returns the canonical form with its attachment written [label*].
func (l Leaf) Labelled(label int) string {
	return strings.Replace(l.canonical, "*", fmt.Sprintf("[%d*]", label), 1)
}

func (l Leaf) String() string { return l.canonical }

func leafLess(a, b Leaf) bool {
	if a.canonical != b.canonical {
		return a.canonical < b.canonical
	}
	return a.index < b.index
}
