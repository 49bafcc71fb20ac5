package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-MMP/pkg/types/mmp"
)

func TestEventEnvelope_RoundTripThroughMessage(t *testing.T) {
	payload := TransformEmittedPayload{RunID: "r1", Ordinal: 3, Row: mmp.TransformRow{Transform: "[*:1]C>>[*:1]CC"}}
	env, err := NewEventEnvelope(EventTransformEmitted, "test", payload)
	require.NoError(t, err)
	env.Metadata = map[string]string{"run_id": "r1"}

	pm, err := env.ToMessage("mmp.transforms", "[*:1]C>>[*:1]CC")
	require.NoError(t, err)
	assert.Equal(t, "mmp.transforms", pm.Topic)
	assert.Equal(t, EventTransformEmitted, pm.Headers["event_type"])
	assert.Equal(t, "r1", pm.Headers["run_id"])
	assert.Equal(t, "v1", pm.Headers["schema_version"])

	got, err := MessageToEventEnvelope(&Message{Value: pm.Value})
	require.NoError(t, err)
	assert.Equal(t, env.EventID, got.EventID)

	var decoded TransformEmittedPayload
	require.NoError(t, got.DecodePayload(&decoded))
	assert.Equal(t, payload, decoded)
}

func TestMessageToEventEnvelope_Invalid(t *testing.T) {
	_, err := MessageToEventEnvelope(&Message{})
	assert.Error(t, err)
	_, err = MessageToEventEnvelope(&Message{Value: []byte("{not json")})
	assert.Error(t, err)
}

func TestDecodePayload_Missing(t *testing.T) {
	env := &EventEnvelope{Payload: []byte("null")}
	var v map[string]any
	assert.Error(t, env.DecodePayload(&v))
}

type mockConn struct {
	created    []kafka.TopicConfig
	existing   map[string]bool
	createErr  error
	closeCalls int
}

func (m *mockConn) CreateTopics(topics ...kafka.TopicConfig) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, topics...)
	return nil
}

func (m *mockConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	if len(topics) == 1 && m.existing[topics[0]] {
		return []kafka.Partition{{Topic: topics[0]}}, nil
	}
	return nil, errors.New("unknown topic")
}

func (m *mockConn) Close() error {
	m.closeCalls++
	return nil
}

func TestTopicManager_EnsureTopics(t *testing.T) {
	conn := &mockConn{existing: map[string]bool{"mmp.runs": true}}
	m := &TopicManager{conn: conn, logger: logging.NewNopLogger()}

	topics := DefaultTopics("mmp.transforms", "mmp.runs", "mmp.run_requests", "mmp.dead_letter")
	require.NoError(t, m.EnsureTopics(context.Background(), topics))

	var names []string
	for _, c := range conn.created {
		names = append(names, c.Topic)
	}
	assert.Equal(t, []string{"mmp.transforms", "mmp.run_requests", "mmp.dead_letter"}, names)
	assert.Equal(t, "retention.ms", conn.created[0].ConfigEntries[0].ConfigName)
	assert.Equal(t, "604800000", conn.created[0].ConfigEntries[0].ConfigValue)

	require.NoError(t, m.Close())
	assert.Equal(t, 1, conn.closeCalls)
}

func TestTopicManager_CreateTopic(t *testing.T) {
	ctx := context.Background()

	m := &TopicManager{conn: &mockConn{createErr: kafka.TopicAlreadyExists}, logger: logging.NewNopLogger()}
	assert.NoError(t, m.CreateTopic(ctx, TopicConfig{Name: "t", NumPartitions: 1, ReplicationFactor: 1}))

	m = &TopicManager{conn: &mockConn{createErr: errors.New("not controller")}, logger: logging.NewNopLogger()}
	assert.Error(t, m.CreateTopic(ctx, TopicConfig{Name: "t", NumPartitions: 1, ReplicationFactor: 1}))

	assert.Error(t, m.CreateTopic(ctx, TopicConfig{NumPartitions: 1, ReplicationFactor: 1}))
	assert.Error(t, m.CreateTopic(ctx, TopicConfig{Name: "t"}))
}

func TestNewTopicManager_NoBrokers(t *testing.T) {
	_, err := NewTopicManager(nil, logging.NewNopLogger())
	assert.Error(t, err)
}
