package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
	DefaultLogErrorOutput = "stderr"

	DefaultCutRule               = "SINGLE_ACYCLIC"
	DefaultMaxCuts               = 1
	DefaultFingerprintRadius     = 2
	DefaultFingerprintBits       = 2048
	DefaultGraphDistanceCapacity = 64

	DefaultWorkerConcurrency = 4

	DefaultServerPort    = 8080
	DefaultServerMode    = "release"
	DefaultMaxBodySize   = 16 << 20
	DefaultMaxStructures = 50000

	DefaultGRPCPort           = 9090
	DefaultGRPCMaxRecvMsgSize = 64 << 20

	DefaultMetricsNamespace = "mmp"

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "mmp:frag:"
	DefaultRedisTTL       = 24 * time.Hour

	DefaultPostgresHost     = "localhost"
	DefaultPostgresPort     = 5432
	DefaultPostgresDBName   = "mmp"
	DefaultPostgresMaxConns = 10

	DefaultKafkaBroker          = "localhost:9092"
	DefaultKafkaTopic           = "mmp.transforms"
	DefaultKafkaRunTopic        = "mmp.runs"
	DefaultKafkaRequestTopic    = "mmp.run_requests"
	DefaultKafkaDeadLetterTopic = "mmp.dead_letter"
	DefaultKafkaGroupID         = "mmp-apiserver"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "mmp-runs"

	DefaultNeo4jURI = "bolt://localhost:7687"

	DefaultOpenSearchAddress = "http://localhost:9200"
	DefaultOpenSearchIndex   = "mmp-transforms"

	DefaultMilvusAddr       = "localhost:19530"
	DefaultMilvusCollection = "mmp_environment_fingerprints"
)

// ApplyDefaults fills zero-value fields in cfg.  Explicitly set values win.
// Sink defaults are applied even when the sink is disabled so that enabling
// one through a single env var is enough.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if len(cfg.Log.ErrorOutputPaths) == 0 {
		cfg.Log.ErrorOutputPaths = []string{DefaultLogErrorOutput}
	}

	// ── MMP ───────────────────────────────────────────────────────────────────
	if cfg.MMP.CutRule == "" {
		cfg.MMP.CutRule = DefaultCutRule
	}
	if cfg.MMP.MaxCuts == 0 {
		cfg.MMP.MaxCuts = DefaultMaxCuts
	}
	if cfg.MMP.EnvironmentFingerprint.Radius == 0 {
		cfg.MMP.EnvironmentFingerprint.Radius = DefaultFingerprintRadius
	}
	if cfg.MMP.EnvironmentFingerprint.Bits == 0 {
		cfg.MMP.EnvironmentFingerprint.Bits = DefaultFingerprintBits
	}
	if cfg.MMP.GraphDistanceCapacity == 0 {
		cfg.MMP.GraphDistanceCapacity = DefaultGraphDistanceCapacity
	}

	// ── Worker ────────────────────────────────────────────────────────────────
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.PairingConcurrency == 0 {
		cfg.Worker.PairingConcurrency = cfg.Worker.Concurrency
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 5 * time.Minute
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.Server.MaxStructures == 0 {
		cfg.Server.MaxStructures = DefaultMaxStructures
	}
	if cfg.Server.RateLimitRPS > 0 && cfg.Server.RateLimitBurst == 0 {
		cfg.Server.RateLimitBurst = int(cfg.Server.RateLimitRPS * 2)
	}

	// ── gRPC ──────────────────────────────────────────────────────────────────
	if cfg.GRPC.Port == 0 {
		cfg.GRPC.Port = DefaultGRPCPort
	}
	if cfg.GRPC.MaxRecvMsgSize == 0 {
		cfg.GRPC.MaxRecvMsgSize = DefaultGRPCMaxRecvMsgSize
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = DefaultRedisTTL
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}

	// ── Postgres ──────────────────────────────────────────────────────────────
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = DefaultPostgresHost
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = DefaultPostgresPort
	}
	if cfg.Postgres.DBName == "" {
		cfg.Postgres.DBName = DefaultPostgresDBName
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.MaxConns == 0 {
		cfg.Postgres.MaxConns = DefaultPostgresMaxConns
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = DefaultKafkaTopic
	}
	if cfg.Kafka.BatchSize == 0 {
		cfg.Kafka.BatchSize = 100
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = 50 * time.Millisecond
	}
	if cfg.Kafka.RunTopic == "" {
		cfg.Kafka.RunTopic = DefaultKafkaRunTopic
	}
	if cfg.Kafka.RequestTopic == "" {
		cfg.Kafka.RequestTopic = DefaultKafkaRequestTopic
	}
	if cfg.Kafka.DeadLetterTopic == "" {
		cfg.Kafka.DeadLetterTopic = DefaultKafkaDeadLetterTopic
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.Acks == "" {
		cfg.Kafka.Acks = "one"
	}
	if cfg.Kafka.MaxMessageBytes == 0 {
		cfg.Kafka.MaxMessageBytes = 1 << 20
	}
	if cfg.Kafka.MaxRetries == 0 {
		cfg.Kafka.MaxRetries = 3
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}
	if cfg.MinIO.Region == "" {
		cfg.MinIO.Region = "us-east-1"
	}
	if cfg.MinIO.PresignExpiry == 0 {
		cfg.MinIO.PresignExpiry = time.Hour
	}

	// ── Neo4j ─────────────────────────────────────────────────────────────────
	if cfg.Neo4j.URI == "" {
		cfg.Neo4j.URI = DefaultNeo4jURI
	}
	if cfg.Neo4j.Database == "" {
		cfg.Neo4j.Database = "neo4j"
	}

	// ── OpenSearch ────────────────────────────────────────────────────────────
	if len(cfg.OpenSearch.Addresses) == 0 {
		cfg.OpenSearch.Addresses = []string{DefaultOpenSearchAddress}
	}
	if cfg.OpenSearch.Index == "" {
		cfg.OpenSearch.Index = DefaultOpenSearchIndex
	}
	if cfg.OpenSearch.BulkBatchSize == 0 {
		cfg.OpenSearch.BulkBatchSize = 500
	}

	// ── Milvus ────────────────────────────────────────────────────────────────
	if cfg.Milvus.Addr == "" {
		cfg.Milvus.Addr = DefaultMilvusAddr
	}
	if cfg.Milvus.Collection == "" {
		cfg.Milvus.Collection = DefaultMilvusCollection
	}
	if cfg.Milvus.DBName == "" {
		cfg.Milvus.DBName = "default"
	}
	if cfg.Milvus.NList == 0 {
		cfg.Milvus.NList = 128
	}
	if cfg.Milvus.NProbe == 0 {
		cfg.Milvus.NProbe = 16
	}
}
