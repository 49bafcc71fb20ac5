package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix for every setting.
const envPrefix = "MMP"

// envKeys lists every leaf key so that AutomaticEnv can resolve nested keys
// even when no config file mentions them.
var envKeys = []string{
	"log.level", "log.format", "log.output_paths", "log.error_output_paths",
	"mmp.cut_rule", "mmp.custom_pattern", "mmp.max_cuts", "mmp.add_hydrogens",
	"mmp.track_cut_connectivity", "mmp.max_changing_heavy_atoms", "mmp.min_unchanged_ratio",
	"mmp.include_reverse_transforms", "mmp.include_reaction_pattern", "mmp.include_key",
	"mmp.include_heavy_atom_counts", "mmp.include_ratios",
	"mmp.require_acyclic_single_bond_attachments", "mmp.ignore_ids", "mmp.match_attachment_distances",
	"mmp.environment_fingerprint.enabled", "mmp.environment_fingerprint.radius",
	"mmp.environment_fingerprint.bits", "mmp.environment_fingerprint.min_similarity",
	"worker.concurrency", "worker.pairing_concurrency",
	"server.port", "server.mode", "server.rate_limit_rps", "server.rate_limit_burst",
	"grpc.enabled", "grpc.port", "grpc.reflection",
	"metrics.enabled", "metrics.namespace",
	"redis.enabled", "redis.addr", "redis.password", "redis.db", "redis.ttl",
	"postgres.enabled", "postgres.host", "postgres.port", "postgres.user", "postgres.password",
	"postgres.db_name", "postgres.auto_migrate",
	"kafka.enabled", "kafka.brokers", "kafka.topic", "kafka.run_topic", "kafka.acks", "kafka.compression",
	"kafka.consume_requests", "kafka.request_topic", "kafka.group_id", "kafka.dead_letter_topic",
	"minio.enabled", "minio.endpoint", "minio.access_key", "minio.secret_key", "minio.bucket",
	"neo4j.enabled", "neo4j.uri", "neo4j.user", "neo4j.password",
	"opensearch.enabled", "opensearch.addresses", "opensearch.index",
	"milvus.enabled", "milvus.addr", "milvus.user", "milvus.password", "milvus.collection",
}

// newViper builds a Viper instance with YAML file type, the MMP_ env prefix
// and a "." → "_" key replacer, so "redis.addr" resolves to MMP_REDIS_ADDR.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}
	return v
}

// Load reads the YAML file at configPath, merges MMP_* environment overrides,
// applies defaults and validates.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}
	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from MMP_* environment variables and defaults.
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

// LoadOptional calls Load when configPath is non-empty and LoadFromEnv
// otherwise.
func LoadOptional(configPath string) (*Config, error) {
	if configPath == "" {
		return LoadFromEnv()
	}
	return Load(configPath)
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}
	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

// Watch invokes onChange with the re-parsed Config whenever configPath
// changes.  Invalid revisions are skipped.  Only the log level is safe to
// apply to a running server; engine options are read per run.
func Watch(configPath string, onChange func(*Config)) {
	v := newViper()
	v.SetConfigFile(configPath)
	_ = v.ReadInConfig()

	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

// MustLoad is Load that panics on error.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
