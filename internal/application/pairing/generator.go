package pairing

import (
	"bytes"
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/KeyIP-MMP/internal/domain/fragment"
	"github.com/turtacn/KeyIP-MMP/internal/domain/toolkit"
	"github.com/turtacn/KeyIP-MMP/internal/domain/transform"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
	"github.com/turtacn/KeyIP-MMP/pkg/types/mmp"
)

// Reasons a pair is not emitted.
const (
	RejectIdentical  = "identical"
	RejectSameID     = "same_id"
	RejectSimilarity = "similarity"
	RejectDistance   = "distance"
)

// Output is the result of pairing one run.
type Output struct {
	// Keys counts the Keys that had at least two Values.
	Keys     int
	Rows     []mmp.TransformRow
	Failures []mmp.PairFailure
	Rejected map[string]int
}

// Generator pairs Values sharing a Key.
type Generator[M any] struct {
	tk      toolkit.Toolkit[M]
	opts    Options
	workers int
	logger  logging.Logger
	metrics *prometheus.MMPMetrics
}

// NewGenerator validates opts and returns a Generator running up to workers
// Keys at once.
func NewGenerator[M any](tk toolkit.Toolkit[M], opts Options, workers int, logger logging.Logger, metrics *prometheus.MMPMetrics) (*Generator[M], error) {
	if tk == nil {
		return nil, errors.InvalidParam("toolkit is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if metrics == nil {
		metrics = prometheus.NewMMPMetrics(nil)
	}
	return &Generator[M]{tk: tk, opts: opts, workers: workers, logger: logger.Named("pairing"), metrics: metrics}, nil
}

// Options returns the generator's options.
func (g *Generator[M]) Options() Options { return g.opts }

type keyOutput struct {
	rows     []mmp.TransformRow
	failures []mmp.PairFailure
	rejected map[string]int
}

// Generate pairs every Key of result.  Keys are processed in parallel and
// their rows concatenated in Key order.  On cancellation the Keys finished
// so far are returned with a CodeCancelled error.
func (g *Generator[M]) Generate(ctx context.Context, result *fragment.Result) (*Output, error) {
	start := time.Now()
	defer func() { g.metrics.PairingDuration.WithLabelValues().Observe(time.Since(start).Seconds()) }()

	keys := result.Keys()
	per := make([]*keyOutput, len(keys))

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for i, k := range keys {
		if egctx.Err() != nil {
			break
		}
		values := result.Values(k)
		if len(values) < 2 {
			continue
		}
		i, k := i, k
		eg.Go(func() error {
			if egctx.Err() != nil {
				return nil
			}
			per[i] = g.pairKey(k, values)
			return nil
		})
	}
	_ = eg.Wait()

	out := &Output{Rejected: make(map[string]int)}
	for _, ko := range per {
		if ko == nil {
			continue
		}
		out.Keys++
		out.Rows = append(out.Rows, ko.rows...)
		out.Failures = append(out.Failures, ko.failures...)
		for reason, n := range ko.rejected {
			out.Rejected[reason] += n
		}
	}
	for reason, n := range out.Rejected {
		g.metrics.PairsRejectedTotal.WithLabelValues(reason).Add(float64(n))
	}
	g.metrics.KeysTotal.WithLabelValues().Add(float64(out.Keys))
	for _, r := range out.Rows {
		direction := "forward"
		if r.Reverse {
			direction = "reverse"
		}
		g.metrics.TransformsTotal.WithLabelValues(direction).Inc()
	}

	if err := ctx.Err(); err != nil {
		return out, errors.Cancelled(err)
	}
	return out, nil
}

// pairKey emits the rows of one Key.  Values arrive in insertion order, so
// the row order is stable for a given input order.
func (g *Generator[M]) pairKey(k fragment.Key, values []fragment.Value) *keyOutput {
	ko := &keyOutput{rejected: make(map[string]int)}
	envs := g.environments(k, values)
	dists := g.distances(k, values)

	for i := 0; i < len(values); i++ {
		for j := i + 1; j < len(values); j++ {
			a, b := values[i], values[j]
			if reason, ok := g.gate(k, a, b, envs, dists); !ok {
				ko.rejected[reason]++
				continue
			}
			rows, err := g.rows(k, a, b)
			if err != nil {
				g.logger.Warn("transform failed", logging.Key(k.String()),
					logging.String("left", a.Canonical()), logging.String("right", b.Canonical()), logging.Err(err))
				ko.failures = append(ko.failures, mmp.PairFailure{
					Key: k.String(), LeftID: a.ID(), RightID: b.ID(),
					LeftFragment: a.Canonical(), RightFragment: b.Canonical(),
					Reason: errors.Describe(err),
				})
				continue
			}
			ko.rows = append(ko.rows, rows...)
		}
	}
	return ko
}

func (g *Generator[M]) gate(k fragment.Key, a, b fragment.Value, envs map[string]*toolkit.BitVector, dists map[string][]byte) (string, bool) {
	if a.Canonical() == b.Canonical() {
		return RejectIdentical, false
	}
	if a.ID() != "" && a.ID() == b.ID() {
		return RejectSameID, false
	}
	if g.opts.MatchAttachmentDistances && a.AttachmentCount() >= 2 {
		da, okA := dists[a.Canonical()]
		db, okB := dists[b.Canonical()]
		if !okA || !okB || !bytes.Equal(da, db) {
			return RejectDistance, false
		}
	}
	if gate := g.opts.Environment; gate != nil {
		fa, okA := envs[a.Canonical()]
		fb, okB := envs[b.Canonical()]
		if !okA || !okB {
			return RejectSimilarity, false
		}
		sim, err := toolkit.Tanimoto(fa, fb)
		if err != nil || sim < gate.MinSimilarity {
			return RejectSimilarity, false
		}
	}
	return "", true
}

// environments fingerprints each distinct Value of a Key once.  Values with
// no fingerprint are absent from the map.
func (g *Generator[M]) environments(k fragment.Key, values []fragment.Value) map[string]*toolkit.BitVector {
	gate := g.opts.Environment
	if gate == nil {
		return nil
	}
	out := make(map[string]*toolkit.BitVector, len(values))
	tried := make(map[string]bool, len(values))
	for _, v := range values {
		if tried[v.Canonical()] {
			continue
		}
		tried[v.Canonical()] = true
		fp, ok := fragment.EnvironmentFingerprint(g.tk, v, gate.Fingerprint)
		if !ok {
			g.logger.Debug("environment fingerprint unavailable", logging.Key(k.String()),
				logging.String("value", v.Canonical()))
			continue
		}
		out[v.Canonical()] = fp
	}
	return out
}

func (g *Generator[M]) distances(k fragment.Key, values []fragment.Value) map[string][]byte {
	if !g.opts.MatchAttachmentDistances {
		return nil
	}
	out := make(map[string][]byte, len(values))
	for _, v := range values {
		if v.AttachmentCount() < 2 {
			continue
		}
		if _, ok := out[v.Canonical()]; ok {
			continue
		}
		fp, ok := fragment.GraphDistanceFingerprint(g.tk, v, g.opts.GraphDistanceCapacity)
		if !ok {
			g.logger.Debug("graph distance fingerprint unavailable", logging.Key(k.String()),
				logging.String("value", v.Canonical()))
			continue
		}
		out[v.Canonical()] = fp
	}
	return out
}

// rows builds the forward row of a pair and, when asked, its reverse.
func (g *Generator[M]) rows(k fragment.Key, a, b fragment.Value) ([]mmp.TransformRow, error) {
	acyclic := g.opts.RequireAcyclicSingleBondAttachments
	forward, err := transform.TransformPattern(a.Canonical(), b.Canonical(), acyclic)
	if err != nil {
		return nil, err
	}
	row, err := g.row(k, a, b, forward)
	if err != nil {
		return nil, err
	}
	out := []mmp.TransformRow{row}
	if !g.opts.IncludeReverse {
		return out, nil
	}

	backward, err := transform.Reverse(forward)
	if err != nil {
		return nil, err
	}
	rev, err := g.row(k, b, a, backward)
	if err != nil {
		return nil, err
	}
	rev.Reverse = true
	return append(out, rev), nil
}

func (g *Generator[M]) row(k fragment.Key, left, right fragment.Value, pattern string) (mmp.TransformRow, error) {
	row := mmp.TransformRow{
		Transform:     pattern,
		LeftID:        left.ID(),
		RightID:       right.ID(),
		LeftFragment:  left.Canonical(),
		RightFragment: right.Canonical(),
	}
	if g.opts.IncludeKey {
		s := k.String()
		row.Key = &s
	}
	if g.opts.IncludeHeavyAtomCounts {
		lh, rh := left.HeavyAtoms(), right.HeavyAtoms()
		row.LeftChangingHeavyAtoms, row.RightChangingHeavyAtoms = &lh, &rh
	}
	if g.opts.IncludeRatios {
		lr, rr := ChangingRatio(k, left), ChangingRatio(k, right)
		row.LeftRatio, row.RightRatio = &lr, &rr
	}
	if g.opts.IncludeReactionPattern {
		exact, err := transform.ExactMatchPattern(g.tk, pattern, g.opts.RequireAcyclicSingleBondAttachments)
		if err != nil {
			return row, err
		}
		row.ReactionPattern = &exact
	}
	return row, nil
}

// ChangingRatio is the Value's heavy atoms over the Key's, 0 for an atomless
// Key.
func ChangingRatio(k fragment.Key, v fragment.Value) float64 {
	kh := k.HeavyAtoms()
	if kh == 0 {
		return 0
	}
	return float64(v.HeavyAtoms()) / float64(kh)
}
