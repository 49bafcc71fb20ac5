// Package bootstrap builds the engine and every configured sink from a
// Config.  cmd/apiserver and cmd/worker share it so that both processes
// publish to the same places and report the same readiness.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/turtacn/KeyIP-MMP/internal/application/pipeline"
	"github.com/turtacn/KeyIP-MMP/internal/config"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/chem/graphkit"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/database/neo4j"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/database/postgres"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/database/redis"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/search/milvus"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/search/opensearch"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/storage/minio"
	"github.com/turtacn/KeyIP-MMP/internal/interfaces/http/handlers"
)

// Infrastructure owns the clients opened for one process.
type Infrastructure struct {
	cfg    *config.Config
	logger logging.Logger

	collector prometheus.MetricsCollector
	metrics   *prometheus.MMPMetrics

	cache    *redis.FragmentCache
	sinks    []pipeline.Sink
	checkers []handlers.HealthChecker

	reports      *minio.ReportStore
	graph        *neo4j.PairGraphWriter
	searcher     *opensearch.Searcher
	fingerprints *milvus.FingerprintStore

	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// New connects to every enabled backend.  On failure everything opened so
// far is closed again.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Infrastructure, error) {
	infra := &Infrastructure{cfg: cfg, logger: logger.Named("bootstrap")}

	steps := []struct {
		name    string
		enabled bool
		init    func(context.Context) error
	}{
		{"metrics", true, infra.initMetrics},
		{"redis", cfg.Redis.Enabled, infra.initRedis},
		{"postgres", cfg.Postgres.Enabled, infra.initPostgres},
		{"kafka", cfg.Kafka.Enabled, infra.initKafka},
		{"minio", cfg.MinIO.Enabled, infra.initMinIO},
		{"neo4j", cfg.Neo4j.Enabled, infra.initNeo4j},
		{"opensearch", cfg.OpenSearch.Enabled, infra.initOpenSearch},
		{"milvus", cfg.Milvus.Enabled, infra.initMilvus},
	}
	for _, s := range steps {
		if !s.enabled {
			continue
		}
		if err := s.init(ctx); err != nil {
			_ = infra.Close()
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
	}

	names := make([]string, 0, len(infra.sinks))
	for _, s := range infra.sinks {
		names = append(names, s.Name())
	}
	infra.logger.Info("infrastructure initialized", logging.Strings("sinks", names))
	return infra, nil
}

func (i *Infrastructure) initMetrics(_ context.Context) error {
	if !i.cfg.Metrics.Enabled {
		i.collector = prometheus.NewNoopCollector()
		i.metrics = prometheus.NewMMPMetrics(i.collector)
		return nil
	}
	c, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            i.cfg.Metrics.Namespace,
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, i.logger)
	if err != nil {
		return err
	}
	i.collector = c
	i.metrics = prometheus.NewMMPMetrics(c)
	return nil
}

func (i *Infrastructure) initRedis(ctx context.Context) error {
	client, err := redis.NewClient(i.cfg.Redis, i.logger)
	if err != nil {
		return err
	}
	i.addCloser("redis", client.Close)
	i.cache = redis.NewFragmentCache(client, i.logger,
		redis.WithPrefix(i.cfg.Redis.KeyPrefix), redis.WithTTL(i.cfg.Redis.TTL))
	i.checkers = append(i.checkers, handlers.NewCheck("redis", client.Ping))
	return nil
}

func (i *Infrastructure) initPostgres(ctx context.Context) error {
	if i.cfg.Postgres.AutoMigrate {
		mg, err := postgres.NewMigrator(i.cfg.Postgres, i.logger)
		if err != nil {
			return err
		}
		err = mg.Up()
		_ = mg.Close()
		if err != nil {
			return err
		}
	}
	pool, err := postgres.NewPool(ctx, i.cfg.Postgres, i.logger)
	if err != nil {
		return err
	}
	i.addCloser("postgres", func() error { pool.Close(); return nil })
	i.sinks = append(i.sinks, postgres.NewResultRepository(pool, i.logger))
	i.checkers = append(i.checkers, handlers.NewCheck("postgres", pool.Ping))
	return nil
}

func (i *Infrastructure) initKafka(ctx context.Context) error {
	kc := i.cfg.Kafka
	tm, err := kafka.NewTopicManager(kc.Brokers, i.logger)
	if err != nil {
		return err
	}
	// Clusters that forbid topic creation still work with pre-made topics.
	if err := tm.EnsureTopics(ctx, kafka.DefaultTopics(kc.Topic, kc.RunTopic, kc.RequestTopic, kc.DeadLetterTopic)); err != nil {
		i.logger.Warn("kafka topics not ensured", logging.Err(err))
	}
	_ = tm.Close()

	producer, err := kafka.NewProducer(kc, i.logger)
	if err != nil {
		return err
	}
	i.addCloser("kafka", producer.Close)
	i.sinks = append(i.sinks, kafka.NewTransformPublisher(producer, kc.Topic, kc.RunTopic, i.logger))
	return nil
}

func (i *Infrastructure) initMinIO(ctx context.Context) error {
	mc := i.cfg.MinIO
	api, err := minio.NewObjectAPI(ctx, mc)
	if err != nil {
		return err
	}
	if err := minio.EnsureBucket(ctx, api, mc.Bucket, mc.Region, mc.RetentionDays, i.logger); err != nil {
		return err
	}
	i.reports = minio.NewReportStore(api, mc.Bucket, mc.PresignExpiry, i.logger)
	i.sinks = append(i.sinks, i.reports)
	i.checkers = append(i.checkers, handlers.NewCheck("minio", func(ctx context.Context) error {
		ok, err := api.BucketExists(ctx, mc.Bucket)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("bucket %q is missing", mc.Bucket)
		}
		return nil
	}))
	return nil
}

func (i *Infrastructure) initNeo4j(ctx context.Context) error {
	d, err := neo4j.NewDriver(ctx, i.cfg.Neo4j, i.logger)
	if err != nil {
		return err
	}
	i.addCloser("neo4j", d.Close)
	i.graph = neo4j.NewPairGraphWriter(d, i.logger)
	if err := i.graph.EnsureSchema(ctx); err != nil {
		return err
	}
	i.sinks = append(i.sinks, i.graph)
	i.checkers = append(i.checkers, handlers.NewCheck("neo4j", d.HealthCheck))
	return nil
}

func (i *Infrastructure) initOpenSearch(ctx context.Context) error {
	oc := i.cfg.OpenSearch
	client, err := opensearch.NewClient(ctx, oc, i.logger)
	if err != nil {
		return err
	}
	i.addCloser("opensearch", client.Close)
	indexer := opensearch.NewTransformIndexer(client, oc.Index, oc.BulkBatchSize, i.logger)
	if err := indexer.EnsureIndex(ctx); err != nil {
		return err
	}
	i.sinks = append(i.sinks, indexer)
	i.searcher = opensearch.NewSearcher(client, oc.Index, i.logger)
	i.checkers = append(i.checkers, handlers.NewCheck("opensearch", client.Ping))
	return nil
}

func (i *Infrastructure) initMilvus(ctx context.Context) error {
	mc := i.cfg.Milvus
	client, err := milvus.NewClient(ctx, mc, i.logger)
	if err != nil {
		return err
	}
	i.addCloser("milvus", client.Close)
	store, err := milvus.NewFingerprintStore(client, milvus.StoreConfig{
		Collection: mc.Collection,
		Dim:        i.cfg.MMP.EnvironmentFingerprint.Bits,
		NList:      mc.NList,
		NProbe:     mc.NProbe,
	}, i.logger)
	if err != nil {
		return err
	}
	if err := store.EnsureCollection(ctx); err != nil {
		return err
	}
	i.fingerprints = store
	i.sinks = append(i.sinks, store)
	i.checkers = append(i.checkers, handlers.NewCheck("milvus", client.CheckHealth))
	return nil
}

func (i *Infrastructure) addCloser(name string, fn func() error) {
	i.closers = append(i.closers, closer{name: name, fn: fn})
}

// Service builds a run service publishing to every configured sink.
func (i *Infrastructure) Service() *pipeline.Service[*graphkit.Mol] {
	opts := []pipeline.Option[*graphkit.Mol]{
		pipeline.WithLogger[*graphkit.Mol](i.logger.Named("pipeline")),
		pipeline.WithMetrics[*graphkit.Mol](i.metrics),
		pipeline.WithSinks[*graphkit.Mol](i.sinks...),
	}
	if i.cache != nil {
		opts = append(opts, pipeline.WithFragmentCache[*graphkit.Mol](i.cache))
	}
	return pipeline.NewService[*graphkit.Mol](graphkit.New(), i.cfg.MMP, i.cfg.Worker, opts...)
}

// QueryHandler exposes the read side of the sinks that support it.  Nil is
// returned when none does.
func (i *Infrastructure) QueryHandler() *handlers.QueryHandler {
	q := &handlers.QueryHandler{}
	found := false
	if i.reports != nil {
		q.Reports, found = i.reports, true
	}
	if i.graph != nil {
		q.Ranker, found = i.graph, true
	}
	if i.searcher != nil {
		q.Searcher, found = i.searcher, true
	}
	if i.fingerprints != nil {
		q.Fingerprints, found = i.fingerprints, true
	}
	if !found {
		return nil
	}
	return q
}

// Sinks lists the configured sinks in publication order.
func (i *Infrastructure) Sinks() []pipeline.Sink { return i.sinks }

// HealthCheckers probes every connected backend.
func (i *Infrastructure) HealthCheckers() []handlers.HealthChecker { return i.checkers }

// Metrics returns the engine metrics, backed by a no-op collector when
// metrics are disabled.
func (i *Infrastructure) Metrics() *prometheus.MMPMetrics { return i.metrics }

// MetricsHandler serves the registry, or nil when metrics are disabled.
func (i *Infrastructure) MetricsHandler() http.Handler {
	if !i.cfg.Metrics.Enabled {
		return nil
	}
	return i.collector.Handler()
}

// Close releases clients in reverse order of opening and returns the first
// error.
func (i *Infrastructure) Close() error {
	var first error
	for n := len(i.closers) - 1; n >= 0; n-- {
		c := i.closers[n]
		if err := c.fn(); err != nil {
			i.logger.Warn("close failed", logging.String("backend", c.name), logging.Err(err))
			if first == nil {
				first = err
			}
		}
	}
	i.closers = nil
	return first
}
