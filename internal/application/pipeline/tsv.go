package pipeline

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/turtacn/KeyIP-MMP/internal/application/pairing"
	"github.com/turtacn/KeyIP-MMP/pkg/types/mmp"
)

// TransformHeader returns the column names of the transform table for the
// optional columns selected in opts.
func TransformHeader(opts pairing.Options) []string {
	h := []string{"transform", "left_id", "right_id", "left_fragment", "right_fragment"}
	if opts.IncludeKey {
		h = append(h, "key")
	}
	if opts.IncludeHeavyAtomCounts {
		h = append(h, "left_changing_heavy_atoms", "right_changing_heavy_atoms")
	}
	if opts.IncludeRatios {
		h = append(h, "left_ratio", "right_ratio")
	}
	if opts.IncludeReactionPattern {
		h = append(h, "reaction_pattern")
	}
	return h
}

// WriteTransformsTSV writes rows as a tab-separated table with a header.
func WriteTransformsTSV(w io.Writer, rows []mmp.TransformRow, opts pairing.Options) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(TransformHeader(opts)); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{r.Transform, r.LeftID, r.RightID, r.LeftFragment, r.RightFragment}
		if opts.IncludeKey {
			rec = append(rec, deref(r.Key))
		}
		if opts.IncludeHeavyAtomCounts {
			rec = append(rec, itoa(r.LeftChangingHeavyAtoms), itoa(r.RightChangingHeavyAtoms))
		}
		if opts.IncludeRatios {
			rec = append(rec, ftoa(r.LeftRatio), ftoa(r.RightRatio))
		}
		if opts.IncludeReactionPattern {
			rec = append(rec, deref(r.ReactionPattern))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteUnprocessedTSV writes the side channel of inputs that could not be
// fragmented.
func WriteUnprocessedTSV(w io.Writer, rows []mmp.UnprocessedRow) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write([]string{"id", "input", "reason"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.ID, r.Input, r.Reason}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func itoa(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func ftoa(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 4, 64)
}
