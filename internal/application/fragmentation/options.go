package fragmentation

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/turtacn/KeyIP-MMP/pkg/errors"
)

// Options configures an Engine.
type Options struct {
	CutRule              CutRule
	MaxCuts              int
	AddHydrogens         bool
	TrackCutConnectivity bool

	// SignificantIDs makes a Value's source ID part of its equality, so the
	// same fragment from two structures is kept twice.
	SignificantIDs bool
}

// DefaultOptions cuts single acyclic bonds once.
func DefaultOptions() Options {
	return Options{CutRule: SingleAcyclic, MaxCuts: 1, SignificantIDs: true}
}

// Validate rejects option combinations before any structure is processed.
func (o Options) Validate() error {
	if err := o.CutRule.Validate(); err != nil {
		return err
	}
	if o.MaxCuts < 1 {
		return errors.UnsupportedConfiguration("max cuts must be at least 1").
			WithDetail(fmt.Sprintf("max_cuts=%d", o.MaxCuts))
	}
	if o.AddHydrogens && o.MaxCuts > 1 {
		return errors.UnsupportedConfiguration("adding hydrogens requires max cuts 1").
			WithDetail(fmt.Sprintf("max_cuts=%d", o.MaxCuts))
	}
	return nil
}

// Fingerprint identifies the options that change fragmentation output, for
// cache keys.
func (o Options) Fingerprint() string {
	s := fmt.Sprintf("%s|%s|%d|%t|%t", o.CutRule.Kind, o.CutRule.Pattern, o.MaxCuts, o.AddHydrogens, o.TrackCutConnectivity)
	return strconv.FormatUint(xxhash.Sum64String(s), 16)
}
