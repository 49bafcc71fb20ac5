package prometheus

import (
	"strconv"
	"time"
)

// MMPMetrics holds the engine's metric vectors.
type MMPMetrics struct {
	// Fragmentation
	StructuresTotal      CounterVec // status: fragmented|unprocessed|cached
	FragmentRecordsTotal CounterVec // cuts
	FragmentDuration     HistogramVec

	// Pairing
	KeysTotal          CounterVec
	TransformsTotal    CounterVec // direction: forward|reverse
	PairsRejectedTotal CounterVec // reason: identical|same_id|similarity|distance
	PairingDuration    HistogramVec

	// Runs
	RunsTotal    CounterVec // status: completed|cancelled|failed
	RunDuration  HistogramVec
	ActiveRuns   GaugeVec
	SinkErrors   CounterVec // sink
	CacheLookups CounterVec // result: hit|miss

	// HTTP
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec

	// gRPC
	GRPCRequestsTotal   CounterVec // method, code
	GRPCRequestDuration HistogramVec
}

// Default buckets.
var (
	DefaultFragmentDurationBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, 1}
	DefaultRunDurationBuckets      = []float64{.1, .5, 1, 5, 10, 30, 60, 300, 900, 3600}
	DefaultHTTPDurationBuckets     = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
)

// NewMMPMetrics registers every engine metric on collector.
func NewMMPMetrics(collector MetricsCollector) *MMPMetrics {
	if collector == nil {
		collector = NewNoopCollector()
	}
	m := &MMPMetrics{}

	m.StructuresTotal = collector.RegisterCounter("structures_total", "Input structures processed", "status")
	m.FragmentRecordsTotal = collector.RegisterCounter("fragment_records_total", "Fragment records produced", "cuts")
	m.FragmentDuration = collector.RegisterHistogram("fragment_duration_seconds", "Per-structure fragmentation time", DefaultFragmentDurationBuckets)

	m.KeysTotal = collector.RegisterCounter("keys_total", "Distinct keys paired")
	m.TransformsTotal = collector.RegisterCounter("transforms_total", "Transform rows emitted", "direction")
	m.PairsRejectedTotal = collector.RegisterCounter("pairs_rejected_total", "Candidate pairs skipped", "reason")
	m.PairingDuration = collector.RegisterHistogram("pairing_duration_seconds", "Pairing stage time", DefaultRunDurationBuckets)

	m.RunsTotal = collector.RegisterCounter("runs_total", "Runs by outcome", "status")
	m.RunDuration = collector.RegisterHistogram("run_duration_seconds", "End-to-end run time", DefaultRunDurationBuckets)
	m.ActiveRuns = collector.RegisterGauge("active_runs", "Runs in progress")
	m.SinkErrors = collector.RegisterCounter("sink_errors_total", "Result sink failures", "sink")
	m.CacheLookups = collector.RegisterCounter("fragment_cache_lookups_total", "Fragment cache lookups", "result")

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")

	m.GRPCRequestsTotal = collector.RegisterCounter("grpc_requests_total", "Total gRPC requests", "method", "code")
	m.GRPCRequestDuration = collector.RegisterHistogram("grpc_request_duration_seconds", "gRPC request duration", DefaultHTTPDurationBuckets, "method")

	return m
}

// RecordStructure counts one structure outcome and its record count.
func (m *MMPMetrics) RecordStructure(status string, cuts map[int]int, d time.Duration) {
	m.StructuresTotal.WithLabelValues(status).Inc()
	for c, n := range cuts {
		m.FragmentRecordsTotal.WithLabelValues(strconv.Itoa(c)).Add(float64(n))
	}
	if d > 0 {
		m.FragmentDuration.WithLabelValues().Observe(d.Seconds())
	}
}

// RecordRun counts a finished run.
func (m *MMPMetrics) RecordRun(status string, d time.Duration) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.WithLabelValues().Observe(d.Seconds())
}

// RecordCacheAccess counts a fragment cache hit or miss.
func (m *MMPMetrics) RecordCacheAccess(hit bool) {
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

// RecordHTTPRequest counts one served request.
func (m *MMPMetrics) RecordHTTPRequest(method, path string, statusCode int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// RecordGRPCRequest counts one served RPC.
func (m *MMPMetrics) RecordGRPCRequest(method, code string, d time.Duration) {
	m.GRPCRequestsTotal.WithLabelValues(method, code).Inc()
	m.GRPCRequestDuration.WithLabelValues(method).Observe(d.Seconds())
}
