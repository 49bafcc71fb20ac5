// Package pairing turns the Key → Values map of a run into transform rows.
// Every Key with two or more Values yields one row per unordered pair of
// Values, optionally with its reverse.
package pairing

import (
	"fmt"

	"github.com/turtacn/KeyIP-MMP/internal/domain/toolkit"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
)

// DefaultGraphDistanceCapacity fits the distances of up to eight attachment
// points.
const DefaultGraphDistanceCapacity = 28

// EnvironmentGate drops pairs whose attachment environments differ too much.
type EnvironmentGate struct {
	Fingerprint   toolkit.FingerprintOptions
	MinSimilarity float64
}

// Options selects the optional columns and the pair gates.
type Options struct {
	IncludeReverse         bool
	IncludeKey             bool
	IncludeHeavyAtomCounts bool
	IncludeRatios          bool
	IncludeReactionPattern bool

	// RequireAcyclicSingleBondAttachments constrains every attachment bond
	// of the emitted patterns to -!@.
	RequireAcyclicSingleBondAttachments bool

	// Environment is nil when the similarity gate is off.
	Environment *EnvironmentGate

	// MatchAttachmentDistances only pairs multi-attachment Values whose
	// attachment points lie the same bond distances apart.
	MatchAttachmentDistances bool
	GraphDistanceCapacity    int
}

// Validate rejects unusable gate settings.
func (o Options) Validate() error {
	if g := o.Environment; g != nil {
		if g.Fingerprint.Bits <= 0 || g.Fingerprint.Radius < 0 {
			return errors.UnsupportedConfiguration("invalid environment fingerprint").
				WithDetail(fmt.Sprintf("radius=%d bits=%d", g.Fingerprint.Radius, g.Fingerprint.Bits))
		}
		if g.MinSimilarity < 0 || g.MinSimilarity > 1 {
			return errors.UnsupportedConfiguration("min similarity must be within [0,1]").
				WithDetail(fmt.Sprintf("min_similarity=%g", g.MinSimilarity))
		}
	}
	if o.MatchAttachmentDistances && o.GraphDistanceCapacity < 1 {
		return errors.UnsupportedConfiguration("graph distance capacity must be positive").
			WithDetail(fmt.Sprintf("capacity=%d", o.GraphDistanceCapacity))
	}
	return nil
}
