package fragmentation

import (
	"context"
	"fmt"

	"github.com/turtacn/KeyIP-MMP/internal/domain/fragment"
	"github.com/turtacn/KeyIP-MMP/internal/domain/toolkit"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
)

// Engine fragments one structure at a time.  It is stateless between calls
// and safe for concurrent use when the toolkit is.
type Engine[M any] struct {
	tk     toolkit.Toolkit[M]
	opts   Options
	logger logging.Logger
}

// NewEngine validates opts and returns an Engine.
func NewEngine[M any](tk toolkit.Toolkit[M], opts Options, logger logging.Logger) (*Engine[M], error) {
	if tk == nil {
		return nil, errors.InvalidParam("toolkit is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Engine[M]{tk: tk, opts: opts, logger: logger.Named("fragmentation")}, nil
}

// Options returns the engine's options.
func (e *Engine[M]) Options() Options { return e.opts }

// Toolkit returns the engine's toolkit.
func (e *Engine[M]) Toolkit() toolkit.Toolkit[M] { return e.tk }

// Fragment cuts structure every way the cut rule allows, up to MaxCuts bonds
// at once, and returns the Key/Value records stamped with id.  structure is
// not released; every intermediate handle is.
func (e *Engine[M]) Fragment(ctx context.Context, structure M, id string) (*fragment.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Cancelled(err)
	}
	arena := toolkit.NewArena(e.tk)
	defer arena.Release()

	work, err := e.prepare(arena, structure, id)
	if err != nil {
		return nil, err
	}
	bonds, err := e.tk.MatchBonds(work, e.opts.CutRule.Pattern)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeToolkit, "match cut rule")
	}

	result := fragment.NewResult()
	maxCuts := e.opts.MaxCuts
	if maxCuts > len(bonds) {
		maxCuts = len(bonds)
	}
	for k := 1; k <= maxCuts; k++ {
		var cutErr error
		combinations(len(bonds), k, func(idx []int) bool {
			combo := make([]int, k)
			for i, j := range idx {
				combo[i] = bonds[j]
			}
			if k == 1 {
				cutErr = e.singleCut(arena, work, combo[0], id, result)
			} else {
				cutErr = e.multiCut(arena, work, combo, id, result)
			}
			if errors.IsCode(cutErr, errors.CodeInvalidLeaf) {
				e.logger.Debug("cut skipped", logging.StructureID(id), logging.Err(cutErr))
				cutErr = nil
			}
			return cutErr == nil
		})
		if cutErr != nil {
			return nil, cutErr
		}
	}
	return result, nil
}

// prepare keeps the largest component and adds hydrogens when asked.
func (e *Engine[M]) prepare(arena *toolkit.Arena[M], structure M, id string) (M, error) {
	work := structure
	parts, err := arena.Components(structure)
	if err != nil {
		return work, errors.Wrap(err, errors.CodeToolkit, "split components")
	}
	if len(parts) > 1 {
		best, bestHeavy := 0, -1
		for i, p := range parts {
			if h := e.tk.HeavyAtomCount(p); h > bestHeavy {
				best, bestHeavy = i, h
			}
		}
		work = parts[best]
		e.logger.Debug("kept largest component", logging.StructureID(id),
			logging.Int("components", len(parts)), logging.Int("heavy_atoms", bestHeavy))
	}
	if e.opts.AddHydrogens {
		work, err = arena.AddHydrogens(work)
		if err != nil {
			return work, errors.Wrap(err, errors.CodeToolkit, "add hydrogens")
		}
	}
	return work, nil
}

func (e *Engine[M]) newValue(m M, id string) (fragment.Value, error) {
	canonical, err := e.tk.Canonicalize(m)
	if err != nil {
		return fragment.Value{}, errors.Wrap(err, errors.CodeToolkit, "canonicalize value")
	}
	return fragment.NewValue(canonical, id, e.opts.SignificantIDs,
		len(e.tk.AttachmentPoints(m)), e.tk.HeavyAtomCount(m)), nil
}

// singleCut records both orientations of one broken bond.
func (e *Engine[M]) singleCut(arena *toolkit.Arena[M], m M, bond int, id string, result *fragment.Result) error {
	cut, err := arena.FragmentOnBonds(m, []int{bond})
	if err != nil {
		return errors.Wrap(err, errors.CodeToolkit, "cut bond")
	}
	parts, err := arena.Components(cut)
	if err != nil {
		return errors.Wrap(err, errors.CodeToolkit, "split components")
	}
	if len(parts) != 2 {
		// Ring bond: nothing falls off.
		return nil
	}

	leaves := make([]fragment.Leaf, 2)
	for i, p := range parts {
		if leaves[i], err = fragment.NewLeaf(e.tk, p); err != nil {
			return err
		}
	}
	for i := range parts {
		v, err := e.newValue(parts[1-i], id)
		if err != nil {
			return err
		}
		result.Add(fragment.NewKey([]fragment.Leaf{leaves[i]}), v)
	}

	if e.opts.TrackCutConnectivity && e.opts.MaxCuts >= 2 {
		bridge := fragment.NewValue(fragment.BridgingValue, id, e.opts.SignificantIDs, 2, 0)
		result.Add(fragment.NewKey(leaves), bridge)
	}
	return nil
}

// multiCut records the core of a k-bond cut as the Value and its k
// single-attachment pieces as the Key.
func (e *Engine[M]) multiCut(arena *toolkit.Arena[M], m M, bonds []int, id string, result *fragment.Result) error {
	k := len(bonds)
	cut, err := arena.FragmentOnBonds(m, bonds)
	if err != nil {
		return errors.Wrap(err, errors.CodeToolkit, "cut bonds")
	}
	parts, err := arena.Components(cut)
	if err != nil {
		return errors.Wrap(err, errors.CodeToolkit, "split components")
	}
	if len(parts) != k+1 {
		return nil
	}

	core := -1
	leaves := make([]fragment.Leaf, 0, k)
	for i, p := range parts {
		switch n := len(e.tk.AttachmentPoints(p)); {
		case n == k:
			if core >= 0 {
				return nil
			}
			core = i
		case n == 1:
			l, err := fragment.NewLeaf(e.tk, p)
			if err != nil {
				return err
			}
			leaves = append(leaves, l)
		default:
			return errors.InvalidLeaf("cut piece carries several attachment points").
				WithDetail(fmt.Sprintf("attachment_points=%d", n))
		}
	}
	if core < 0 || len(leaves) != k {
		return nil
	}

	key := fragment.NewKey(leaves)
	canonical, err := e.relabelCore(arena, parts[core], key)
	if err != nil {
		return err
	}
	v := fragment.NewValue(canonical, id, e.opts.SignificantIDs, k, e.tk.HeavyAtomCount(parts[core]))
	result.Add(key, v)
	return nil
}

// relabelCore gives the core attachment bonded to the Key's i-th Leaf the
// label i+1.  Identical Leaves may be assigned either way; the smallest
// canonical form wins.
func (e *Engine[M]) relabelCore(arena *toolkit.Arena[M], core M, key fragment.Key) (string, error) {
	byLabel := make(map[int]int)
	for _, a := range e.tk.AttachmentPoints(core) {
		byLabel[a.Label] = a.Atom
	}
	sorted := key.Components()

	best := ""
	var relabelErr error
	tiePermutations(sorted, func(perm []int) bool {
		labels := make(map[int]int, len(perm))
		for pos, li := range perm {
			atom, ok := byLabel[sorted[li].AttachmentIndex()+1]
			if !ok {
				relabelErr = errors.Toolkit("core attachment missing").
					WithDetail(fmt.Sprintf("label=%d", sorted[li].AttachmentIndex()+1))
				return false
			}
			labels[atom] = pos + 1
		}
		relabelled, err := arena.SetAttachmentLabels(core, labels)
		if err != nil {
			relabelErr = errors.Wrap(err, errors.CodeToolkit, "relabel core")
			return false
		}
		s, err := e.tk.Canonicalize(relabelled)
		if err != nil {
			relabelErr = errors.Wrap(err, errors.CodeToolkit, "canonicalize core")
			return false
		}
		if best == "" || s < best {
			best = s
		}
		return true
	})
	return best, relabelErr
}
