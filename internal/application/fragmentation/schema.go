// Package fragmentation cuts structures into Key/Value records.  Engine
// handles one structure; Runner fans a whole input set out over workers and
// merges their Results in input order.
package fragmentation

import (
	"strings"

	"github.com/turtacn/KeyIP-MMP/pkg/errors"
)

// CutRuleKind names a cut schema.
type CutRuleKind string

const (
	KindSingleAcyclic     CutRuleKind = "SINGLE_ACYCLIC"
	KindSingleAcyclicNonH CutRuleKind = "SINGLE_ACYCLIC_NON_H"
	KindRingSubstituent   CutRuleKind = "RING_SUBSTITUENT"
	KindMatsy             CutRuleKind = "MATSY"
	KindCustom            CutRuleKind = "CUSTOM"
)

// CutRule selects the bonds to cut with a two-atom bond pattern.
type CutRule struct {
	Kind    CutRuleKind
	Name    string
	Pattern string
}

// Predefined schemas.
var (
	SingleAcyclic = CutRule{
		Kind:    KindSingleAcyclic,
		Name:    "Any acyclic single bond",
		Pattern: "[*]!@-[*]",
	}
	SingleAcyclicNonH = CutRule{
		Kind:    KindSingleAcyclicNonH,
		Name:    "Acyclic single bond between heavy atoms",
		Pattern: "[!#1]!@-[!#1]",
	}
	RingSubstituent = CutRule{
		Kind:    KindRingSubstituent,
		Name:    "Ring to non-ring substituent",
		Pattern: "[R]!@-[!R]",
	}
	Matsy = CutRule{
		Kind:    KindMatsy,
		Name:    "Acyclic single bond between non-terminal heavy atoms",
		Pattern: "[!#1;!D1]!@-[!#1;!D1]",
	}
)

// PredefinedCutRules lists the built-in schemas.
func PredefinedCutRules() []CutRule {
	return []CutRule{SingleAcyclic, SingleAcyclicNonH, RingSubstituent, Matsy}
}

// CustomCutRule wraps a caller-supplied bond pattern.
func CustomCutRule(pattern string) CutRule {
	return CutRule{Kind: KindCustom, Name: "Custom", Pattern: strings.TrimSpace(pattern)}
}

// CutRuleByName resolves a schema name.  CUSTOM takes its pattern from
// custom.
func CutRuleByName(name, custom string) (CutRule, error) {
	kind := CutRuleKind(strings.ToUpper(strings.TrimSpace(name)))
	if kind == KindCustom {
		r := CustomCutRule(custom)
		return r, r.Validate()
	}
	for _, r := range PredefinedCutRules() {
		if r.Kind == kind {
			return r, nil
		}
	}
	return CutRule{}, errors.UnsupportedConfiguration("unknown cut rule").WithDetail(name)
}

// Validate checks that the rule carries a pattern.
func (r CutRule) Validate() error {
	if r.Pattern == "" {
		return errors.UnsupportedConfiguration("cut rule has no pattern").WithDetail(string(r.Kind))
	}
	return nil
}
