// Package postgres persists run results in PostgreSQL.  Transform rows and
// unprocessed inputs are bulk-loaded with the COPY protocol through pgxpool;
// the schema is versioned with golang-migrate from embedded SQL files.
package postgres

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/KeyIP-MMP/internal/config"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
)

const (
	defaultMaxConns        int32 = 10
	defaultMinConns        int32 = 1
	defaultConnMaxLifetime       = time.Hour
	defaultConnMaxIdleTime       = 30 * time.Minute
	pingTimeout                  = 5 * time.Second
)

// ErrConnectionFailed is returned when the pool cannot reach the server.
var ErrConnectionFailed = errors.New(errors.ErrCodeDatabaseError, "postgres connection failed")

// buildConnString renders cfg as a postgres:// URL.  Credentials are escaped.
func buildConnString(cfg config.PostgresConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.DBName,
	}
	q := url.Values{}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	q.Set("sslmode", sslMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// configurePool applies the sizing knobs of cfg, falling back to defaults for
// unset values.
func configurePool(poolCfg *pgxpool.Config, cfg config.PostgresConfig) {
	poolCfg.MaxConns = defaultMaxConns
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = defaultMinConns
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if poolCfg.MinConns > poolCfg.MaxConns {
		poolCfg.MinConns = poolCfg.MaxConns
	}
	poolCfg.MaxConnLifetime = defaultConnMaxLifetime
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	poolCfg.MaxConnIdleTime = defaultConnMaxIdleTime
}

// NewPool opens a pgx connection pool and verifies it with a ping.
func NewPool(ctx context.Context, cfg config.PostgresConfig, log logging.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(buildConnString(cfg))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "invalid postgres configuration")
	}
	configurePool(poolCfg, cfg)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, ErrConnectionFailed.WithCause(err)
	}
	if err := HealthCheck(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("connected to postgres",
		logging.String("host", cfg.Host),
		logging.Int("port", cfg.Port),
		logging.String("database", cfg.DBName),
		logging.Int("max_conns", int(poolCfg.MaxConns)))
	return pool, nil
}

// pinger is the part of a pool HealthCheck needs.
type pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck pings the server with a bounded timeout.
func HealthCheck(ctx context.Context, p pinger) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return ErrConnectionFailed.WithCause(err)
	}
	return nil
}
