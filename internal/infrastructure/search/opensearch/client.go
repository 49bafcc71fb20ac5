// Package opensearch indexes emitted transform rows so pairs can be searched
// by fragment, transform or run after the run has finished.
package opensearch

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/turtacn/KeyIP-MMP/internal/config"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
)

const (
	defaultMaxRetries          = 3
	defaultRetryBackoff        = 100 * time.Millisecond
	defaultMaxIdleConnsPerHost = 10
	defaultHealthCheckInterval = 30 * time.Second
)

var (
	ErrInvalidConfig    = errors.New(errors.ErrCodeValidation, "invalid opensearch configuration")
	ErrConnectionFailed = errors.New(errors.CodeSearchError, "opensearch connection failed")
)

// Client wraps the OpenSearch client and tracks cluster health in the
// background.
type Client struct {
	client  *opensearch.Client
	logger  logging.Logger
	healthy atomic.Bool
	cancel  context.CancelFunc

	healthInterval time.Duration
}

// ValidateConfig checks the fields NewClient depends on.
func ValidateConfig(cfg config.OpenSearchConfig) error {
	if len(cfg.Addresses) == 0 {
		return ErrInvalidConfig.WithDetail("addresses is empty")
	}
	if cfg.Index == "" {
		return ErrInvalidConfig.WithDetail("index is empty")
	}
	if cfg.BulkBatchSize < 0 {
		return ErrInvalidConfig.WithDetail("bulk_batch_size must be >= 0")
	}
	return nil
}

// NewClient connects to cfg.Addresses and pings the cluster once.
func NewClient(ctx context.Context, cfg config.OpenSearchConfig, logger logging.Logger) (*Client, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	transport := &http.Transport{MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	osClient, err := opensearch.NewClient(opensearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.User,
		Password:      cfg.Password,
		MaxRetries:    defaultMaxRetries,
		RetryBackoff:  func(int) time.Duration { return defaultRetryBackoff },
		Transport:     transport,
		RetryOnStatus: []int{502, 503, 504, 429},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSearchError, "failed to create opensearch client")
	}

	c := newClient(osClient, logger)
	if err := c.Ping(ctx); err != nil {
		return nil, ErrConnectionFailed.WithCause(err)
	}

	hcCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.startHealthCheck(hcCtx)
	return c, nil
}

func newClient(osClient *opensearch.Client, logger logging.Logger) *Client {
	return &Client{
		client:         osClient,
		logger:         logger.Named("opensearch"),
		cancel:         func() {},
		healthInterval: defaultHealthCheckInterval,
	}
}

// Ping checks the connection and records the outcome.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.client.Ping(c.client.Ping.WithContext(ctx))
	if err != nil {
		c.healthy.Store(false)
		c.logger.Warn("opensearch ping failed", logging.Err(err))
		return err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		c.healthy.Store(false)
		c.logger.Warn("opensearch ping returned error status", logging.Int("status", resp.StatusCode))
		return errors.Newf(errors.CodeSearchError, "ping returned status %d", resp.StatusCode)
	}

	c.healthy.Store(true)
	return nil
}

// IsHealthy reports the outcome of the last ping.
func (c *Client) IsHealthy() bool {
	return c.healthy.Load()
}

// Close stops the health check.  It is safe to call more than once.
func (c *Client) Close() error {
	c.cancel()
	return nil
}

func (c *Client) startHealthCheck(ctx context.Context) {
	ticker := time.NewTicker(c.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prev := c.healthy.Load()
			err := c.Ping(ctx)
			curr := c.healthy.Load()

			if prev && !curr {
				c.logger.Error("opensearch cluster became unhealthy", logging.Err(err))
			} else if !prev && curr {
				c.logger.Info("opensearch cluster recovered")
			}
		}
	}
}
