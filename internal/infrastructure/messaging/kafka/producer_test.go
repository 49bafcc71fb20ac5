package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-MMP/internal/config"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/KeyIP-MMP/pkg/errors"
)

type mockKafkaWriter struct {
	mu        sync.Mutex
	writeFunc func(ctx context.Context, msgs ...kafka.Message) error
	written   []kafka.Message
	closed    int
}

func (m *mockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeFunc != nil {
		if err := m.writeFunc(ctx, msgs...); err != nil {
			return err
		}
	}
	m.written = append(m.written, msgs...)
	return nil
}

func (m *mockKafkaWriter) Close() error {
	m.closed++
	return nil
}

func newTestProducer(w WriterInterface) *Producer {
	return newProducer(w, 1024, logging.NewNopLogger())
}

func TestValidateProducerConfig(t *testing.T) {
	assert.NoError(t, ValidateProducerConfig(config.KafkaConfig{Brokers: []string{"localhost:9092"}}))

	err := ValidateProducerConfig(config.KafkaConfig{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeValidation))

	err = ValidateProducerConfig(config.KafkaConfig{Brokers: []string{"b"}, SASLMechanism: "PLAIN"})
	assert.Error(t, err)

	err = ValidateProducerConfig(config.KafkaConfig{Brokers: []string{"b"}, TLSEnabled: true})
	assert.Error(t, err)
}

func TestNewProducer_UnknownSASLMechanism(t *testing.T) {
	_, err := NewProducer(config.KafkaConfig{
		Brokers: []string{"b"}, SASLMechanism: "GSSAPI", SASLUsername: "u", SASLPassword: "p",
	}, logging.NewNopLogger())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeValidation))
}

func TestNewProducer_Settings(t *testing.T) {
	p, err := NewProducer(config.KafkaConfig{
		Brokers: []string{"b1:9092"}, Acks: "all", Compression: "zstd", MaxRetries: 2, BatchSize: 10,
	}, logging.NewNopLogger())
	require.NoError(t, err)
	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
	assert.Equal(t, kafka.Zstd, w.Compression)
	assert.Equal(t, 3, w.MaxAttempts)
	assert.Equal(t, 10, w.BatchSize)
	assert.Equal(t, 1<<20, p.maxMessageBytes)
	require.NoError(t, p.Close())
}

func TestPublish_Success(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newTestProducer(w)

	err := p.Publish(context.Background(), &ProducerMessage{
		Topic: "mmp.transforms", Key: []byte("k"), Value: []byte("v"), Headers: map[string]string{"run_id": "r1"},
	})
	require.NoError(t, err)
	require.Len(t, w.written, 1)
	assert.Equal(t, "mmp.transforms", w.written[0].Topic)
	assert.Equal(t, []byte("k"), w.written[0].Key)
	assert.Equal(t, []kafka.Header{{Key: "run_id", Value: []byte("r1")}}, w.written[0].Headers)
	assert.False(t, w.written[0].Time.IsZero())
	assert.Equal(t, int64(1), p.Metrics().MessagesSent.Load())
	assert.Equal(t, int64(1), p.Metrics().BytesSent.Load())
}

func TestPublish_Validation(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{})
	ctx := context.Background()

	assert.Error(t, p.Publish(ctx, &ProducerMessage{Value: []byte("v")}))
	assert.Error(t, p.Publish(ctx, &ProducerMessage{Topic: "t"}))
	assert.Error(t, p.Publish(ctx, &ProducerMessage{Topic: "t", Value: make([]byte, 2048)}))
}

func TestPublish_WriterError(t *testing.T) {
	w := &mockKafkaWriter{writeFunc: func(context.Context, ...kafka.Message) error { return errors.New("broker down") }}
	p := newTestProducer(w)

	err := p.Publish(context.Background(), &ProducerMessage{Topic: "t", Value: []byte("v")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeMessageQueueError))
	assert.Equal(t, int64(1), p.Metrics().MessagesFailed.Load())
}

func TestPublishBatch_PartialFailure(t *testing.T) {
	w := &mockKafkaWriter{writeFunc: func(_ context.Context, msgs ...kafka.Message) error {
		return kafka.WriteErrors{nil, errors.New("too large"), nil}
	}}
	p := newTestProducer(w)

	msgs := []*ProducerMessage{
		{Topic: "t", Value: []byte("a")},
		{Topic: "t", Value: []byte("b")},
		{Topic: "t", Value: []byte("c")},
	}
	res, err := p.PublishBatch(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Errors[0].Index)
}

func TestPublishBatch_TotalFailure(t *testing.T) {
	w := &mockKafkaWriter{writeFunc: func(context.Context, ...kafka.Message) error { return errors.New("timeout") }}
	p := newTestProducer(w)

	res, err := p.PublishBatch(context.Background(), []*ProducerMessage{{Topic: "t", Value: []byte("a")}, {Topic: "t", Value: []byte("b")}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, -1, res.Errors[0].Index)
}

func TestPublishBatch_Empty(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{})
	_, err := p.PublishBatch(context.Background(), nil)
	assert.Error(t, err)
}

func TestClose_Idempotent(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newTestProducer(w)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, w.closed)

	err := p.Publish(context.Background(), &ProducerMessage{Topic: "t", Value: []byte("v")})
	assert.ErrorIs(t, err, ErrProducerClosed)
}
