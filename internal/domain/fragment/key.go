package fragment

import (
	"sort"
	"strings"

	"github.com/turtacn/KeyIP-MMP/internal/domain/toolkit"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
)

// ComponentSeparator joins Key components.
const ComponentSeparator = "."

// Key is the unchanging part of a fragmentation: one or more Leaves in
// canonical order.  Its String form is comparable and usable as a map key.
type Key struct {
	leaves []Leaf
	text   string
}

// NewKey sorts leaves by (canonical form, attachment index) and numbers the
// attachments 1..n in that order.
func NewKey(leaves []Leaf) Key {
	sorted := append([]Leaf(nil), leaves...)
	sort.SliceStable(sorted, func(i, j int) bool { return leafLess(sorted[i], sorted[j]) })
	parts := make([]string, len(sorted))
	for i, l := range sorted {
		parts[i] = l.Labelled(i + 1)
	}
	return Key{leaves: sorted, text: strings.Join(parts, ComponentSeparator)}
}

// ParseKey splits s into components, builds one Leaf each and re-sorts.
func ParseKey[M any](tk toolkit.Toolkit[M], s string) (Key, error) {
	if strings.TrimSpace(s) == "" {
		return Key{}, errors.Parse("empty key")
	}
	comps := strings.Split(s, ComponentSeparator)
	leaves := make([]Leaf, 0, len(comps))
	for _, c := range comps {
		l, err := ParseLeaf(tk, c)
		if err != nil {
			return Key{}, err
		}
		leaves = append(leaves, l)
	}
	return NewKey(leaves), nil
}

// String returns the joined canonical form.
func (k Key) String() string { return k.text }

// ComponentCount returns the number of Leaves.
func (k Key) ComponentCount() int { return len(k.leaves) }

// Components returns the Leaves in canonical order.
func (k Key) Components() []Leaf { return append([]Leaf(nil), k.leaves...) }

// HeavyAtoms sums the heavy atoms of every component.
func (k Key) HeavyAtoms() int {
	n := 0
	for _, l := range k.leaves {
		n += l.heavy
	}
	return n
}

// Equal compares joined canonical strings.
func (k Key) Equal(o Key) bool { return k.text == o.text }

// IsZero reports whether k has no components.
func (k Key) IsZero() bool { return len(k.leaves) == 0 }
