package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/KeyIP-MMP/internal/domain/fragment"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
)

// Serializer encodes cached fragment records.
type Serializer interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

type jsonSerializer struct{}

func (jsonSerializer) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonSerializer) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

// FragmentCache keeps the fragment records of structures already seen, keyed
// by engine options and canonical structure.
type FragmentCache struct {
	client     *Client
	logger     logging.Logger
	prefix     string
	ttl        time.Duration
	serializer Serializer
	jitter     bool
}

type CacheOption func(*FragmentCache)

func WithPrefix(prefix string) CacheOption {
	return func(c *FragmentCache) { c.prefix = prefix }
}

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *FragmentCache) { c.ttl = ttl }
}

func WithSerializer(s Serializer) CacheOption {
	return func(c *FragmentCache) { c.serializer = s }
}

// WithoutJitter stores entries with exactly the configured TTL.
func WithoutJitter() CacheOption {
	return func(c *FragmentCache) { c.jitter = false }
}

func NewFragmentCache(client *Client, log logging.Logger, opts ...CacheOption) *FragmentCache {
	if log == nil {
		log = logging.NewNopLogger()
	}
	c := &FragmentCache{
		client:     client,
		logger:     log,
		prefix:     "mmp:frag:",
		ttl:        24 * time.Hour,
		serializer: jsonSerializer{},
		jitter:     true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *FragmentCache) fullKey(key string) string {
	return c.prefix + key
}

// jitterTTL spreads expiry by ±10% so entries written together do not
// expire together.
func (c *FragmentCache) jitterTTL(ttl time.Duration) time.Duration {
	if ttl == 0 || !c.jitter {
		return ttl
	}
	jitter := float64(ttl) * 0.1 * (rand.Float64()*2 - 1)
	return ttl + time.Duration(jitter)
}

// Get returns the cached records for key.  A miss is (nil, false, nil).
func (c *FragmentCache) Get(ctx context.Context, key string) ([]fragment.Record, bool, error) {
	data, err := c.client.Get(ctx, c.fullKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to get from cache")
	}
	var records []fragment.Record
	if err := c.serializer.Unmarshal(data, &records); err != nil {
		c.logger.Warn("Dropping undecodable cache entry", logging.String("key", key), logging.Err(err))
		return nil, false, nil
	}
	return records, true, nil
}

// Set stores records under key.
func (c *FragmentCache) Set(ctx context.Context, key string, records []fragment.Record) error {
	if records == nil {
		records = []fragment.Record{}
	}
	data, err := c.serializer.Marshal(records)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode fragment records")
	}
	if err := c.client.Set(ctx, c.fullKey(key), data, c.jitterTTL(c.ttl)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to set cache")
	}
	return nil
}

// Invalidate drops the entries of keys.
func (c *FragmentCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.fullKey(k)
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to delete from cache")
	}
	return nil
}
