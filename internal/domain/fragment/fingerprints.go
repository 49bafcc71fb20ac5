package fragment

import (
	"sort"

	"github.com/turtacn/KeyIP-MMP/internal/domain/toolkit"
)

// AttachmentEnvironmentPattern matches an attachment point and the atom it
// is bonded to.
const AttachmentEnvironmentPattern = "[#0]~[!#0]"

// MaxGraphDistance caps a graph-distance entry so it fits in a byte.
const MaxGraphDistance = 255

// EnvironmentFingerprint computes a circular fingerprint of v rooted at the
// atoms bonded to its attachment points.  It returns false when v cannot be
// parsed or the pattern finds no root, as for the atomless bridging value.
func EnvironmentFingerprint[M any](tk toolkit.Toolkit[M], v Value, opts toolkit.FingerprintOptions) (*toolkit.BitVector, bool) {
	m, err := tk.Parse(v.Canonical())
	if err != nil {
		return nil, false
	}
	defer tk.Release(m)

	hits, err := tk.Match(m, AttachmentEnvironmentPattern)
	if err != nil || len(hits) == 0 {
		return nil, false
	}
	roots := make([]int, 0, len(hits))
	seen := make(map[int]bool, len(hits))
	for _, h := range hits {
		if len(h) < 2 || seen[h[1]] {
			continue
		}
		seen[h[1]] = true
		roots = append(roots, h[1])
	}
	sort.Ints(roots)
	fp, err := tk.Fingerprint(m, roots, opts)
	if err != nil {
		return nil, false
	}
	return fp, true
}

// GraphDistanceFingerprint lists the bond distances between every pair of
// attachment points of v, in label order (1,2),(1,3)…(n-1,n), each capped at
// MaxGraphDistance.  It returns false for fewer than two attachments, when
// C(n,2) exceeds capacity or when any pair is disconnected.
func GraphDistanceFingerprint[M any](tk toolkit.Toolkit[M], v Value, capacity int) ([]byte, bool) {
	m, err := tk.Parse(v.Canonical())
	if err != nil {
		return nil, false
	}
	defer tk.Release(m)

	pts := tk.AttachmentPoints(m)
	n := len(pts)
	if n < 2 || n*(n-1)/2 > capacity {
		return nil, false
	}
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Label < pts[j].Label })

	out := make([]byte, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d, ok := tk.ShortestPath(m, pts[i].Atom, pts[j].Atom)
			if !ok {
				return nil, false
			}
			if d > MaxGraphDistance {
				d = MaxGraphDistance
			}
			out = append(out, byte(d))
		}
	}
	return out, true
}
