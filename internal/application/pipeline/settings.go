// Package pipeline runs a whole matched-molecular-pair job: fragmentation,
// filtering, pairing and delivery of the results to the configured sinks.
package pipeline

import (
	"github.com/turtacn/KeyIP-MMP/internal/application/fragmentation"
	"github.com/turtacn/KeyIP-MMP/internal/application/pairing"
	"github.com/turtacn/KeyIP-MMP/internal/config"
	"github.com/turtacn/KeyIP-MMP/internal/domain/fragment"
	"github.com/turtacn/KeyIP-MMP/internal/domain/toolkit"
	"github.com/turtacn/KeyIP-MMP/pkg/types/mmp"
)

// Settings are the resolved options of one run.
type Settings struct {
	Fragmentation fragmentation.Options
	Filter        fragment.FilterOptions
	Pairing       pairing.Options

	// Fingerprint is used for the similarity gate and for the fingerprints
	// handed to sinks.
	Fingerprint toolkit.FingerprintOptions
}

// Resolve applies the per-run overrides in o on top of cfg.  Unknown cut
// rule names and contradictory options fail with
// CodeUnsupportedConfiguration before any structure is read.
func Resolve(cfg config.MMPConfig, o *mmp.RunOptions) (Settings, error) {
	if o == nil {
		o = &mmp.RunOptions{}
	}
	setString(&cfg.CutRule, o.CutRule)
	setString(&cfg.CustomPattern, o.CustomPattern)
	setInt(&cfg.MaxCuts, o.MaxCuts)
	setBool(&cfg.AddHydrogens, o.AddHydrogens)
	setBool(&cfg.TrackCutConnectivity, o.TrackCutConnectivity)
	setBool(&cfg.IncludeReverseTransforms, o.IncludeReverseTransforms)
	setBool(&cfg.IncludeReactionPattern, o.IncludeReactionPattern)
	setBool(&cfg.RequireAcyclicSingleBondAttachments, o.RequireAcyclicSingleBondAttachments)
	if o.MaxChangingHeavyAtoms != nil {
		cfg.MaxChangingHeavyAtoms = o.MaxChangingHeavyAtoms
	}
	if o.MinUnchangedRatio != nil {
		cfg.MinUnchangedRatio = o.MinUnchangedRatio
	}
	if o.MinEnvironmentSimilarity != nil {
		cfg.EnvironmentFingerprint.Enabled = true
		cfg.EnvironmentFingerprint.MinSimilarity = *o.MinEnvironmentSimilarity
	}

	rule, err := fragmentation.CutRuleByName(cfg.CutRule, cfg.CustomPattern)
	if err != nil {
		return Settings{}, err
	}
	fp := toolkit.FingerprintOptions{
		Radius:       cfg.EnvironmentFingerprint.Radius,
		Bits:         cfg.EnvironmentFingerprint.Bits,
		UseChirality: cfg.EnvironmentFingerprint.UseChirality,
		UseBondTypes: cfg.EnvironmentFingerprint.UseBondTypes,
	}
	s := Settings{
		Fragmentation: fragmentation.Options{
			CutRule:              rule,
			MaxCuts:              cfg.MaxCuts,
			AddHydrogens:         cfg.AddHydrogens,
			TrackCutConnectivity: cfg.TrackCutConnectivity,
			SignificantIDs:       !cfg.IgnoreIDs,
		},
		Filter: fragment.FilterOptions{
			MaxChangingHeavyAtoms: cfg.MaxChangingHeavyAtoms,
			MinUnchangedRatio:     cfg.MinUnchangedRatio,
		},
		Pairing: pairing.Options{
			IncludeReverse:                      cfg.IncludeReverseTransforms,
			IncludeKey:                          cfg.IncludeKey,
			IncludeHeavyAtomCounts:              cfg.IncludeHeavyAtomCounts,
			IncludeRatios:                       cfg.IncludeRatios,
			IncludeReactionPattern:              cfg.IncludeReactionPattern,
			RequireAcyclicSingleBondAttachments: cfg.RequireAcyclicSingleBondAttachments,
			MatchAttachmentDistances:            cfg.MatchAttachmentDistances,
			GraphDistanceCapacity:               cfg.GraphDistanceCapacity,
		},
		Fingerprint: fp,
	}
	if s.Pairing.GraphDistanceCapacity == 0 {
		s.Pairing.GraphDistanceCapacity = pairing.DefaultGraphDistanceCapacity
	}
	if cfg.EnvironmentFingerprint.Enabled {
		s.Pairing.Environment = &pairing.EnvironmentGate{Fingerprint: fp, MinSimilarity: cfg.EnvironmentFingerprint.MinSimilarity}
	}
	if err := s.Fragmentation.Validate(); err != nil {
		return Settings{}, err
	}
	if err := s.Pairing.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
