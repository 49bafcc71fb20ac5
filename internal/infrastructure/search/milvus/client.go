// Package milvus stores environment fingerprints of changing fragments as
// binary vectors, so that fragments with a similar attachment environment
// can be found across runs by Jaccard (Tanimoto) distance.
package milvus

import (
	"context"
	"crypto/tls"
	"sync"
	"sync/atomic"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/turtacn/KeyIP-MMP/internal/config"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
)

const (
	connectTimeout      = 10 * time.Second
	healthCheckInterval = 30 * time.Second
	keepAliveTime       = 60 * time.Second
	keepAliveTimeout    = 20 * time.Second
	reconnectAfter      = 3
)

// VectorAPI is the subset of client.Client the store uses.
type VectorAPI interface {
	CheckHealth(ctx context.Context) (*entity.MilvusState, error)
	HasCollection(ctx context.Context, collName string) (bool, error)
	CreateCollection(ctx context.Context, schema *entity.Schema, shardsNum int32, opts ...client.CreateCollectionOption) error
	CreateIndex(ctx context.Context, collName string, fieldName string, idx entity.Index, async bool, opts ...client.IndexOption) error
	LoadCollection(ctx context.Context, collName string, async bool, opts ...client.LoadCollectionOption) error
	Upsert(ctx context.Context, collName string, partitionName string, columns ...entity.Column) (entity.Column, error)
	Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string,
		vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int,
		sp entity.SearchParam, opts ...client.SearchQueryOptionFunc) ([]client.SearchResult, error)
	Close() error
}

// dialFunc opens a connection; replaced in tests.
type dialFunc func(ctx context.Context, cfg config.MilvusConfig) (VectorAPI, error)

var (
	ErrInvalidConfig    = errors.New(errors.ErrCodeValidation, "invalid milvus configuration")
	ErrConnectionFailed = errors.New(errors.CodeSearchError, "milvus connection failed")
	ErrUnhealthy        = errors.New(errors.ErrCodeServiceUnavailable, "milvus unhealthy")
)

// Client owns the Milvus connection and reconnects after repeated failed
// health checks.
type Client struct {
	mu      sync.RWMutex
	api     VectorAPI
	cfg     config.MilvusConfig
	dial    dialFunc
	logger  logging.Logger
	healthy atomic.Bool
	cancel  context.CancelFunc
}

// ValidateConfig checks the fields NewClient depends on.
func ValidateConfig(cfg config.MilvusConfig) error {
	if cfg.Addr == "" {
		return ErrInvalidConfig.WithDetail("addr is required")
	}
	if cfg.Collection == "" {
		return ErrInvalidConfig.WithDetail("collection is required")
	}
	if cfg.NList < 0 || cfg.NProbe < 0 {
		return ErrInvalidConfig.WithDetail("nlist and nprobe must be >= 0")
	}
	return nil
}

// NewClient connects to cfg.Addr and starts the background health check.
func NewClient(ctx context.Context, cfg config.MilvusConfig, logger logging.Logger) (*Client, error) {
	return newClient(ctx, cfg, dial, logger)
}

func newClient(ctx context.Context, cfg config.MilvusConfig, dial dialFunc, logger logging.Logger) (*Client, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	api, err := dial(ctx, cfg)
	if err != nil {
		return nil, ErrConnectionFailed.WithCause(err)
	}

	hcCtx, cancel := context.WithCancel(context.Background())
	c := &Client{api: api, cfg: cfg, dial: dial, logger: logger.Named("milvus"), cancel: cancel}
	if err := c.CheckHealth(ctx); err != nil {
		_ = c.Close()
		return nil, ErrConnectionFailed.WithCause(err)
	}

	go c.startHealthCheck(hcCtx, healthCheckInterval)
	c.logger.Info("milvus client connected", logging.String("addr", cfg.Addr))
	return c, nil
}

func dial(ctx context.Context, cfg config.MilvusConfig) (VectorAPI, error) {
	creds := insecure.NewCredentials()
	if cfg.TLSEnabled {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                keepAliveTime,
			Timeout:             keepAliveTimeout,
			PermitWithoutStream: true,
		}),
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	return client.NewClient(connectCtx, client.Config{
		Address:       cfg.Addr,
		Username:      cfg.User,
		Password:      cfg.Password,
		DBName:        cfg.DBName,
		EnableTLSAuth: cfg.TLSEnabled,
		DialOptions:   dialOpts,
	})
}

// API returns the current connection.
func (c *Client) API() VectorAPI {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.api
}

// CheckHealth probes the server and records the outcome.
func (c *Client) CheckHealth(ctx context.Context) error {
	api := c.API()
	if api == nil {
		return ErrConnectionFailed
	}
	state, err := api.CheckHealth(ctx)
	if err == nil && state != nil && !state.IsHealthy {
		err = errors.New(errors.CodeSearchError, "server reports unhealthy")
	}
	if err != nil {
		c.healthy.Store(false)
		c.logger.Warn("milvus health check failed", logging.Err(err))
		return ErrUnhealthy.WithCause(err)
	}
	c.healthy.Store(true)
	return nil
}

// IsHealthy reports the outcome of the last health check.
func (c *Client) IsHealthy() bool {
	return c.healthy.Load()
}

// Close stops the health check and closes the connection.
func (c *Client) Close() error {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api == nil {
		return nil
	}
	err := c.api.Close()
	c.api = nil
	return err
}

func (c *Client) startHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			failures = c.healthTick(ctx, failures)
		}
	}
}

// healthTick runs one check and returns the updated count of consecutive
// failures.
func (c *Client) healthTick(ctx context.Context, failures int) int {
	prev := c.healthy.Load()
	err := c.CheckHealth(ctx)
	if err == nil {
		if !prev {
			c.logger.Info("milvus recovered")
		}
		return 0
	}
	if prev {
		c.logger.Error("milvus became unhealthy", logging.Err(err))
	}
	failures++
	if failures < reconnectAfter {
		return failures
	}

	c.logger.Warn("milvus consecutive failures, reconnecting", logging.Int("failures", failures))
	if err := c.reconnect(ctx); err != nil {
		c.logger.Error("milvus reconnect failed", logging.Err(err))
		return failures
	}
	return 0
}

func (c *Client) reconnect(ctx context.Context) error {
	api, err := c.dial(ctx, c.cfg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	old := c.api
	c.api = api
	c.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	c.logger.Warn("milvus client reconnected")
	return nil
}
