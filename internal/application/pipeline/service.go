package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/KeyIP-MMP/internal/application/fragmentation"
	"github.com/turtacn/KeyIP-MMP/internal/application/pairing"
	"github.com/turtacn/KeyIP-MMP/internal/config"
	"github.com/turtacn/KeyIP-MMP/internal/domain/fragment"
	"github.com/turtacn/KeyIP-MMP/internal/domain/toolkit"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
	"github.com/turtacn/KeyIP-MMP/pkg/types/mmp"
)

// Service runs matched-molecular-pair jobs against one toolkit.
type Service[M any] struct {
	tk          toolkit.Toolkit[M]
	cfg         config.MMPConfig
	workers     int
	pairWorkers int
	cache       fragmentation.FragmentCache
	sinks       []Sink
	logger      logging.Logger
	metrics     *prometheus.MMPMetrics
	newID       func() string
}

// Option customises a Service.
type Option[M any] func(*Service[M])

// WithFragmentCache enables the fragment cache.
func WithFragmentCache[M any](c fragmentation.FragmentCache) Option[M] {
	return func(s *Service[M]) { s.cache = c }
}

// WithSinks appends result sinks.
func WithSinks[M any](sinks ...Sink) Option[M] {
	return func(s *Service[M]) { s.sinks = append(s.sinks, sinks...) }
}

// WithLogger sets the logger.
func WithLogger[M any](l logging.Logger) Option[M] {
	return func(s *Service[M]) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics.
func WithMetrics[M any](m *prometheus.MMPMetrics) Option[M] {
	return func(s *Service[M]) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithIDGenerator replaces the run ID source.
func WithIDGenerator[M any](fn func() string) Option[M] {
	return func(s *Service[M]) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewService returns a Service using cfg as the base options of every run.
func NewService[M any](tk toolkit.Toolkit[M], cfg config.MMPConfig, workers config.WorkerConfig, opts ...Option[M]) *Service[M] {
	s := &Service[M]{
		tk:          tk,
		cfg:         cfg,
		workers:     workers.Concurrency,
		pairWorkers: workers.PairingConcurrency,
		logger:      logging.NewNopLogger(),
		metrics:     prometheus.NewMMPMetrics(nil),
		newID:       uuid.NewString,
	}
	if s.pairWorkers < 1 {
		s.pairWorkers = s.workers
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.Named("pipeline")
	return s
}

// Run executes one job.  Configuration errors fail before any structure is
// read.  On cancellation the partial response is returned together with a
// CodeCancelled error and no sink is called.
func (s *Service[M]) Run(ctx context.Context, req mmp.RunRequest) (*mmp.RunResponse, error) {
	if len(req.Structures) == 0 {
		return nil, errors.InvalidParam("no structures to process")
	}
	settings, err := Resolve(s.cfg, req.Options)
	if err != nil {
		return nil, err
	}

	runID := s.newID()
	log := s.logger.With(logging.RunID(runID))
	start := time.Now()
	s.metrics.ActiveRuns.WithLabelValues().Inc()
	defer s.metrics.ActiveRuns.WithLabelValues().Dec()

	engine, err := fragmentation.NewEngine(s.tk, settings.Fragmentation, log)
	if err != nil {
		return nil, err
	}
	gen, err := pairing.NewGenerator(s.tk, settings.Pairing, s.pairWorkers, log, s.metrics)
	if err != nil {
		return nil, err
	}
	runner := fragmentation.NewRunner(engine, s.workers,
		fragmentation.WithCache[M](s.cache), fragmentation.WithLogger[M](log), fragmentation.WithMetrics[M](s.metrics))

	resp := &mmp.RunResponse{
		RunID:       runID,
		Rows:        []mmp.TransformRow{},
		Unprocessed: []mmp.UnprocessedRow{},
		Failures:    []mmp.PairFailure{},
		Summary: mmp.RunSummary{
			RunID:      runID,
			Status:     mmp.RunCompleted,
			StartedAt:  start.UTC(),
			Structures: len(req.Structures),
		},
	}

	frag, runErr := runner.Run(ctx, req.Structures)
	if frag != nil {
		resp.Unprocessed = append(resp.Unprocessed, frag.Unprocessed...)
		resp.Summary.Processed = frag.Processed
		resp.Summary.Unprocessed = len(frag.Unprocessed)
		resp.Summary.CacheHits = frag.CacheHits
	}

	if runErr == nil {
		result := frag.Result
		if settings.Filter.Active() {
			result = fragment.FilterFragments(result, settings.Filter)
		}
		resp.Summary.FragmentRecords = result.ValueCount()

		var pairs *pairing.Output
		pairs, runErr = gen.Generate(ctx, result)
		if pairs != nil {
			resp.Rows = append(resp.Rows, pairs.Rows...)
			resp.Failures = append(resp.Failures, pairs.Failures...)
			resp.Summary.Keys = pairs.Keys
			resp.Summary.Transforms = len(pairs.Rows)
			resp.Summary.PairFailures = len(pairs.Failures)
			if len(pairs.Rejected) > 0 {
				resp.Summary.PairsRejected = pairs.Rejected
			}
		}
		if runErr == nil {
			s.publish(ctx, log, resp, result, settings)
		}
	}

	resp.Summary.Duration = time.Since(start)
	if runErr != nil {
		resp.Summary.Status = mmp.RunCancelled
		if !errors.IsCode(runErr, errors.CodeCancelled) {
			resp.Summary.Status = mmp.RunFailed
		}
	}
	s.metrics.RecordRun(string(resp.Summary.Status), resp.Summary.Duration)
	log.Info("run finished",
		logging.String("status", string(resp.Summary.Status)),
		logging.Int("structures", resp.Summary.Structures),
		logging.Int("unprocessed", resp.Summary.Unprocessed),
		logging.Int("transforms", resp.Summary.Transforms),
		logging.Duration("duration", resp.Summary.Duration))
	return resp, runErr
}

func (s *Service[M]) publish(ctx context.Context, log logging.Logger, resp *mmp.RunResponse, result *fragment.Result, settings Settings) {
	if len(s.sinks) == 0 {
		return
	}
	report := &Report{Response: resp, Pairing: settings.Pairing}
	for _, sink := range s.sinks {
		if fc, ok := sink.(FingerprintConsumer); ok && fc.WantsFingerprints() {
			report.Fingerprints = s.fingerprints(result, settings.Fingerprint)
			break
		}
	}
	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, report); err != nil {
			s.metrics.SinkErrors.WithLabelValues(sink.Name()).Inc()
			log.Warn("sink failed", logging.String("sink", sink.Name()), logging.Err(err))
			if resp.Summary.SinkErrors == nil {
				resp.Summary.SinkErrors = make(map[string]string)
			}
			resp.Summary.SinkErrors[sink.Name()] = errors.Describe(err)
		}
	}
}

// fingerprints computes the environment fingerprint of every distinct
// changing fragment.  Fragments without one are skipped.
func (s *Service[M]) fingerprints(result *fragment.Result, opts toolkit.FingerprintOptions) []FragmentFingerprint {
	var out []FragmentFingerprint
	seen := make(map[string]bool)
	result.Each(func(k fragment.Key, values []fragment.Value) {
		for _, v := range values {
			id := k.String() + "\x00" + v.Canonical()
			if seen[id] {
				continue
			}
			seen[id] = true
			bv, ok := fragment.EnvironmentFingerprint(s.tk, v, opts)
			if !ok {
				continue
			}
			out = append(out, FragmentFingerprint{
				Key: k.String(), Fragment: v.Canonical(), ID: v.ID(),
				Bits: bv.Len(), Vector: bv.Bytes(),
			})
		}
	})
	return out
}
