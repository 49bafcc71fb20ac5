// Package mmp defines the data transfer objects of a matched-molecular-pair
// run: input structures, transform rows, side-channel rows and the run
// summary.  Only plain data lives here so any layer may import it.
package mmp

import (
	"errors"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Input
// ─────────────────────────────────────────────────────────────────────────────

// StructureInput is one input structure.
type StructureInput struct {
	ID     string `json:"id"`
	SMILES string `json:"smiles"`
}

// RunOptions overrides engine options for one run.  Nil fields keep the
// configured value.
type RunOptions struct {
	CutRule                             *string  `json:"cut_rule,omitempty"`
	CustomPattern                       *string  `json:"custom_pattern,omitempty"`
	MaxCuts                             *int     `json:"max_cuts,omitempty"`
	AddHydrogens                        *bool    `json:"add_hydrogens,omitempty"`
	TrackCutConnectivity                *bool    `json:"track_cut_connectivity,omitempty"`
	MaxChangingHeavyAtoms               *int     `json:"max_changing_heavy_atoms,omitempty"`
	MinUnchangedRatio                   *float64 `json:"min_unchanged_ratio,omitempty"`
	IncludeReverseTransforms            *bool    `json:"include_reverse_transforms,omitempty"`
	IncludeReactionPattern              *bool    `json:"include_reaction_pattern,omitempty"`
	RequireAcyclicSingleBondAttachments *bool    `json:"require_acyclic_single_bond_attachments,omitempty"`
	MinEnvironmentSimilarity            *float64 `json:"min_environment_similarity,omitempty"`
}

// RunRequest is the body of a run submission.
type RunRequest struct {
	Structures []StructureInput `json:"structures"`
	Options    *RunOptions      `json:"options,omitempty"`
}

// Validate rejects a request with nothing to fragment.
func (r *RunRequest) Validate() error {
	if len(r.Structures) == 0 {
		return errors.New("no structures to process")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Output rows
// ─────────────────────────────────────────────────────────────────────────────

// TransformRow is one emitted matched pair.  Optional columns are nil unless
// requested.
type TransformRow struct {
	Transform     string `json:"transform"`
	LeftID        string `json:"left_id"`
	RightID       string `json:"right_id"`
	LeftFragment  string `json:"left_fragment"`
	RightFragment string `json:"right_fragment"`

	Key                     *string  `json:"key,omitempty"`
	LeftChangingHeavyAtoms  *int     `json:"left_changing_heavy_atoms,omitempty"`
	RightChangingHeavyAtoms *int     `json:"right_changing_heavy_atoms,omitempty"`
	LeftRatio               *float64 `json:"left_ratio,omitempty"`
	RightRatio              *float64 `json:"right_ratio,omitempty"`
	ReactionPattern         *string  `json:"reaction_pattern,omitempty"`

	// Reverse marks the swapped copy of a forward row.
	Reverse bool `json:"reverse,omitempty"`
}

// UnprocessedRow routes an input that could not be fragmented.
type UnprocessedRow struct {
	ID     string `json:"id"`
	Input  string `json:"input"`
	Reason string `json:"reason,omitempty"`
}

// PairFailure reports a pair whose transform could not be built.
type PairFailure struct {
	Key           string `json:"key"`
	LeftID        string `json:"left_id"`
	RightID       string `json:"right_id"`
	LeftFragment  string `json:"left_fragment"`
	RightFragment string `json:"right_fragment"`
	Reason        string `json:"reason"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Run summary
// ─────────────────────────────────────────────────────────────────────────────

// RunStatus is the terminal state of a run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
	RunFailed    RunStatus = "failed"
)

// RunSummary counts the outcomes of a run.
type RunSummary struct {
	RunID           string            `json:"run_id"`
	Status          RunStatus         `json:"status"`
	StartedAt       time.Time         `json:"started_at"`
	Duration        time.Duration     `json:"duration_ns"`
	Structures      int               `json:"structures"`
	Processed       int               `json:"processed"`
	Unprocessed     int               `json:"unprocessed"`
	CacheHits       int               `json:"cache_hits"`
	Keys            int               `json:"keys"`
	FragmentRecords int               `json:"fragment_records"`
	Transforms      int               `json:"transforms"`
	PairFailures    int               `json:"pair_failures"`
	PairsRejected   map[string]int    `json:"pairs_rejected,omitempty"`
	SinkErrors      map[string]string `json:"sink_errors,omitempty"`
}

// RunResponse is the full result of a run.
type RunResponse struct {
	RunID       string           `json:"run_id"`
	Rows        []TransformRow   `json:"rows"`
	Unprocessed []UnprocessedRow `json:"unprocessed"`
	Failures    []PairFailure    `json:"failures"`
	Summary     RunSummary       `json:"summary"`
}
