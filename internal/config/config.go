// Package config defines the configuration structures for the MMP engine and
// its optional sinks.  No I/O lives here, only data types and validation.
package config

import (
	"fmt"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Engine options
// ─────────────────────────────────────────────────────────────────────────────

// FingerprintConfig enables the environment-fingerprint similarity gate.
type FingerprintConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	Radius        int     `mapstructure:"radius"`
	Bits          int     `mapstructure:"bits"`
	UseChirality  bool    `mapstructure:"use_chirality"`
	UseBondTypes  bool    `mapstructure:"use_bond_types"`
	MinSimilarity float64 `mapstructure:"min_similarity"`
}

// MMPConfig holds the fragmentation and pairing options of a run.
type MMPConfig struct {
	// CutRule names a predefined schema (SINGLE_ACYCLIC, RING_SUBSTITUENT,
	// MATSY) or CUSTOM, in which case CustomPattern is used.
	CutRule       string `mapstructure:"cut_rule"`
	CustomPattern string `mapstructure:"custom_pattern"`

	MaxCuts              int  `mapstructure:"max_cuts"`
	AddHydrogens         bool `mapstructure:"add_hydrogens"`
	TrackCutConnectivity bool `mapstructure:"track_cut_connectivity"`

	// nil means unbounded.
	MaxChangingHeavyAtoms *int     `mapstructure:"max_changing_heavy_atoms"`
	MinUnchangedRatio     *float64 `mapstructure:"min_unchanged_ratio"`

	IncludeReverseTransforms            bool `mapstructure:"include_reverse_transforms"`
	IncludeReactionPattern              bool `mapstructure:"include_reaction_pattern"`
	IncludeKey                          bool `mapstructure:"include_key"`
	IncludeHeavyAtomCounts              bool `mapstructure:"include_heavy_atom_counts"`
	IncludeRatios                       bool `mapstructure:"include_ratios"`
	RequireAcyclicSingleBondAttachments bool `mapstructure:"require_acyclic_single_bond_attachments"`
	IgnoreIDs                           bool `mapstructure:"ignore_ids"`

	EnvironmentFingerprint   FingerprintConfig `mapstructure:"environment_fingerprint"`
	MatchAttachmentDistances bool              `mapstructure:"match_attachment_distances"`
	GraphDistanceCapacity    int               `mapstructure:"graph_distance_capacity"`
}

// WorkerConfig bounds run parallelism.
type WorkerConfig struct {
	Concurrency        int `mapstructure:"concurrency"`
	PairingConcurrency int `mapstructure:"pairing_concurrency"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Ambient
// ─────────────────────────────────────────────────────────────────────────────

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level       string   `mapstructure:"level"`  // debug | info | warn | error
	Format      string   `mapstructure:"format"` // json | console
	OutputPaths []string `mapstructure:"output_paths"`

	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug | release | test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	MaxStructures   int           `mapstructure:"max_structures"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// RateLimitRPS of 0 disables per-client rate limiting.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// GRPCConfig configures the gRPC run endpoint.
type GRPCConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	Port           int  `mapstructure:"port"`
	Reflection     bool `mapstructure:"reflection"`
	MaxRecvMsgSize int  `mapstructure:"max_recv_msg_size"`
}

// MetricsConfig configures the prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Sinks
// ─────────────────────────────────────────────────────────────────────────────

// RedisConfig configures the fragment cache.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	TTL          time.Duration `mapstructure:"ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// PostgresConfig configures the transform repository.
type PostgresConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN renders the libpq-style connection URL.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

// KafkaConfig configures the transform event publisher and the optional
// run-request consumer.
type KafkaConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Brokers         []string      `mapstructure:"brokers"`
	Topic           string        `mapstructure:"topic"`
	RunTopic        string        `mapstructure:"run_topic"`
	BatchSize       int           `mapstructure:"batch_size"`
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`
	Acks            string        `mapstructure:"acks"`        // none | one | all
	Compression     string        `mapstructure:"compression"` // gzip | snappy | lz4 | zstd
	MaxMessageBytes int           `mapstructure:"max_message_bytes"`
	MaxRetries      int           `mapstructure:"max_retries"`
	SASLMechanism   string        `mapstructure:"sasl_mechanism"` // PLAIN | SCRAM-SHA-256 | SCRAM-SHA-512
	SASLUsername    string        `mapstructure:"sasl_username"`
	SASLPassword    string        `mapstructure:"sasl_password"`
	TLSEnabled      bool          `mapstructure:"tls_enabled"`
	TLSCertPath     string        `mapstructure:"tls_cert_path"`

	// ConsumeRequests makes the API server execute runs submitted to
	// RequestTopic.
	ConsumeRequests bool   `mapstructure:"consume_requests"`
	RequestTopic    string `mapstructure:"request_topic"`
	GroupID         string `mapstructure:"group_id"`
	DeadLetterTopic string `mapstructure:"dead_letter_topic"`
}

// MinIOConfig configures the run report store.
type MinIOConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Endpoint      string        `mapstructure:"endpoint"`
	AccessKey     string        `mapstructure:"access_key"`
	SecretKey     string        `mapstructure:"secret_key"`
	Bucket        string        `mapstructure:"bucket"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	Region        string        `mapstructure:"region"`
	RetentionDays int           `mapstructure:"retention_days"` // 0 keeps reports forever
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
}

// Neo4jConfig configures the pair graph writer.
type Neo4jConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URI      string `mapstructure:"uri"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// OpenSearchConfig configures the transform indexer.
type OpenSearchConfig struct {
	Enabled            bool     `mapstructure:"enabled"`
	Addresses          []string `mapstructure:"addresses"`
	User               string   `mapstructure:"user"`
	Password           string   `mapstructure:"password"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify"`
	Index              string   `mapstructure:"index"`
	BulkBatchSize      int      `mapstructure:"bulk_batch_size"`
}

// MilvusConfig configures the environment fingerprint store.
type MilvusConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Addr       string `mapstructure:"addr"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	DBName     string `mapstructure:"db_name"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	Collection string `mapstructure:"collection"`

	// NList and NProbe tune the BIN_IVF_FLAT index and its searches.
	NList  int `mapstructure:"nlist"`
	NProbe int `mapstructure:"nprobe"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	MMP        MMPConfig        `mapstructure:"mmp"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Server     ServerConfig     `mapstructure:"server"`
	GRPC       GRPCConfig       `mapstructure:"grpc"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	Neo4j      Neo4jConfig      `mapstructure:"neo4j"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	Milvus     MilvusConfig     `mapstructure:"milvus"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of a populated Config and returns the
// first problem found.  Engine option combinations that are legal here but
// contradictory (add hydrogens with several cuts) are rejected later by the
// engine itself so that library callers get the same typed error.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	if c.MMP.MaxCuts < 1 {
		return fmt.Errorf("config: mmp.max_cuts must be ≥ 1, got %d", c.MMP.MaxCuts)
	}
	if c.MMP.CutRule == "CUSTOM" && c.MMP.CustomPattern == "" {
		return fmt.Errorf("config: mmp.custom_pattern is required when mmp.cut_rule is CUSTOM")
	}
	if v := c.MMP.MaxChangingHeavyAtoms; v != nil && *v < 0 {
		return fmt.Errorf("config: mmp.max_changing_heavy_atoms must be ≥ 0, got %d", *v)
	}
	if v := c.MMP.MinUnchangedRatio; v != nil && (*v < 0 || *v > 1) {
		return fmt.Errorf("config: mmp.min_unchanged_ratio must be in [0, 1], got %g", *v)
	}
	if fp := c.MMP.EnvironmentFingerprint; fp.Enabled {
		if fp.Bits < 8 || fp.Bits%8 != 0 {
			return fmt.Errorf("config: mmp.environment_fingerprint.bits must be a positive multiple of 8, got %d", fp.Bits)
		}
		if fp.Radius < 0 {
			return fmt.Errorf("config: mmp.environment_fingerprint.radius must be ≥ 0, got %d", fp.Radius)
		}
		if fp.MinSimilarity < 0 || fp.MinSimilarity > 1 {
			return fmt.Errorf("config: mmp.environment_fingerprint.min_similarity must be in [0, 1], got %g", fp.MinSimilarity)
		}
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("config: worker.concurrency must be ≥ 1, got %d", c.Worker.Concurrency)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	if c.Server.RateLimitRPS < 0 {
		return fmt.Errorf("config: server.rate_limit_rps must be ≥ 0, got %g", c.Server.RateLimitRPS)
	}
	if c.GRPC.Enabled {
		if c.GRPC.Port < 1 || c.GRPC.Port > 65535 {
			return fmt.Errorf("config: grpc.port %d is out of range [1, 65535]", c.GRPC.Port)
		}
		if c.GRPC.Port == c.Server.Port {
			return fmt.Errorf("config: grpc.port must differ from server.port (%d)", c.Server.Port)
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required when redis is enabled")
	}
	if c.Postgres.Enabled {
		if c.Postgres.Host == "" || c.Postgres.User == "" || c.Postgres.DBName == "" {
			return fmt.Errorf("config: postgres.host, postgres.user and postgres.db_name are required when postgres is enabled")
		}
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("config: kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	if c.Kafka.ConsumeRequests && (len(c.Kafka.Brokers) == 0 || c.Kafka.RequestTopic == "" || c.Kafka.GroupID == "") {
		return fmt.Errorf("config: kafka.request_topic and kafka.group_id are required when kafka.consume_requests is set")
	}
	if c.MinIO.Enabled && (c.MinIO.Endpoint == "" || c.MinIO.Bucket == "") {
		return fmt.Errorf("config: minio.endpoint and minio.bucket are required when minio is enabled")
	}
	if c.Neo4j.Enabled && c.Neo4j.URI == "" {
		return fmt.Errorf("config: neo4j.uri is required when neo4j is enabled")
	}
	if c.OpenSearch.Enabled && len(c.OpenSearch.Addresses) == 0 {
		return fmt.Errorf("config: opensearch.addresses is required when opensearch is enabled")
	}
	if c.Milvus.Enabled {
		if c.Milvus.Addr == "" {
			return fmt.Errorf("config: milvus.addr is required when milvus is enabled")
		}
		if !c.MMP.EnvironmentFingerprint.Enabled {
			return fmt.Errorf("config: milvus requires mmp.environment_fingerprint.enabled")
		}
	}

	return nil
}
