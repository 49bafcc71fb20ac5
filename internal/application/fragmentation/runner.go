package fragmentation

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/KeyIP-MMP/internal/domain/fragment"
	"github.com/turtacn/KeyIP-MMP/internal/domain/toolkit"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
	"github.com/turtacn/KeyIP-MMP/pkg/types/mmp"
)

// FragmentCache stores the records of previously fragmented structures.
// Lookups are keyed by engine options and canonical structure, so the same
// structure under another ID is a hit.
type FragmentCache interface {
	Get(ctx context.Context, key string) ([]fragment.Record, bool, error)
	Set(ctx context.Context, key string, records []fragment.Record) error
}

// Structure outcome labels.
const (
	StatusFragmented  = "fragmented"
	StatusCached      = "cached"
	StatusUnprocessed = "unprocessed"
)

// Output is what a run of the Runner produced.
type Output struct {
	Result      *fragment.Result
	Unprocessed []mmp.UnprocessedRow
	Processed   int
	CacheHits   int
}

// Runner fans structures out over a bounded set of goroutines.
type Runner[M any] struct {
	engine  *Engine[M]
	workers int
	cache   FragmentCache
	logger  logging.Logger
	metrics *prometheus.MMPMetrics
}

// RunnerOption customises a Runner.
type RunnerOption[M any] func(*Runner[M])

// WithCache enables the fragment cache.
func WithCache[M any](c FragmentCache) RunnerOption[M] {
	return func(r *Runner[M]) { r.cache = c }
}

// WithLogger sets the runner's logger.
func WithLogger[M any](l logging.Logger) RunnerOption[M] {
	return func(r *Runner[M]) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics[M any](m *prometheus.MMPMetrics) RunnerOption[M] {
	return func(r *Runner[M]) {
		if m != nil {
			r.metrics = m
		}
	}
}

// NewRunner returns a Runner using workers goroutines (at least one).
func NewRunner[M any](engine *Engine[M], workers int, opts ...RunnerOption[M]) *Runner[M] {
	if workers < 1 {
		workers = 1
	}
	r := &Runner[M]{
		engine:  engine,
		workers: workers,
		logger:  logging.NewNopLogger(),
		metrics: prometheus.NewMMPMetrics(nil),
	}
	for _, o := range opts {
		o(r)
	}
	r.logger = r.logger.Named("runner")
	return r
}

type outcome struct {
	done        bool
	result      *fragment.Result
	unprocessed *mmp.UnprocessedRow
	cached      bool
}

// Run fragments inputs.  Each structure is processed by one worker into its
// own Result; the Results are merged afterwards in input order, so output
// does not depend on scheduling.  On cancellation the structures finished so
// far are merged and returned together with a CodeCancelled error.
func (r *Runner[M]) Run(ctx context.Context, inputs []mmp.StructureInput) (*Output, error) {
	outcomes := make([]outcome, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := range inputs {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			outcomes[i] = r.processOne(gctx, inputs[i])
			return nil
		})
	}
	_ = g.Wait()

	out := &Output{Result: fragment.NewResult()}
	for _, o := range outcomes {
		if !o.done {
			continue
		}
		if o.unprocessed != nil {
			out.Unprocessed = append(out.Unprocessed, *o.unprocessed)
			continue
		}
		out.Processed++
		if o.cached {
			out.CacheHits++
		}
		out.Result.Merge(o.result)
	}

	if err := ctx.Err(); err != nil {
		r.logger.Warn("fragmentation cancelled",
			logging.Int("merged", out.Processed+len(out.Unprocessed)), logging.Int("total", len(inputs)))
		return out, errors.Cancelled(err)
	}
	return out, nil
}

func (r *Runner[M]) processOne(ctx context.Context, in mmp.StructureInput) outcome {
	start := time.Now()
	res, cached, err := r.fragmentOne(ctx, in)
	if err != nil {
		if errors.IsCode(err, errors.CodeCancelled) {
			return outcome{}
		}
		r.metrics.RecordStructure(StatusUnprocessed, nil, time.Since(start))
		r.logger.Debug("structure not processed", logging.StructureID(in.ID), logging.Err(err))
		return outcome{done: true, unprocessed: &mmp.UnprocessedRow{ID: in.ID, Input: in.SMILES, Reason: errors.Describe(err)}}
	}

	cuts := make(map[int]int)
	res.Each(func(_ fragment.Key, values []fragment.Value) {
		for _, v := range values {
			cuts[v.AttachmentCount()]++
		}
	})
	status := StatusFragmented
	if cached {
		status = StatusCached
	}
	r.metrics.RecordStructure(status, cuts, time.Since(start))
	return outcome{done: true, result: res, cached: cached}
}

func (r *Runner[M]) fragmentOne(ctx context.Context, in mmp.StructureInput) (*fragment.Result, bool, error) {
	if strings.TrimSpace(in.SMILES) == "" {
		return nil, false, errors.Parse("empty structure")
	}
	tk := r.engine.Toolkit()
	arena := toolkit.NewArena(tk)
	defer arena.Release()

	m, err := arena.Parse(in.SMILES)
	if err != nil {
		return nil, false, err
	}

	var cacheKey string
	if r.cache != nil {
		canonical, err := tk.Canonicalize(m)
		if err != nil {
			return nil, false, errors.Wrap(err, errors.CodeToolkit, "canonicalize input")
		}
		cacheKey = r.engine.Options().Fingerprint() + ":" + strconv.FormatUint(xxhash.Sum64String(canonical), 16)
		records, ok, err := r.cache.Get(ctx, cacheKey)
		if err != nil {
			r.logger.Warn("fragment cache read failed", logging.StructureID(in.ID), logging.Err(err))
		}
		r.metrics.RecordCacheAccess(ok)
		if ok {
			return fragment.ResultFromRecords(records, in.ID, r.engine.Options().SignificantIDs), true, nil
		}
	}

	res, err := r.engine.Fragment(ctx, m, in.ID)
	if err != nil {
		return nil, false, err
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, cacheKey, res.Records()); err != nil {
			r.metrics.SinkErrors.WithLabelValues("fragment_cache").Inc()
			r.logger.Warn("fragment cache write failed", logging.StructureID(in.ID), logging.Err(err))
		}
	}
	return res, false, nil
}
