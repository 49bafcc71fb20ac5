package kafka

import (
	"context"
	"fmt"

	"github.com/turtacn/KeyIP-MMP/internal/application/pipeline"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
)

const eventSource = "mmp-engine"

// batchPublisher is the part of Producer the TransformPublisher uses.
type batchPublisher interface {
	PublishBatch(ctx context.Context, msgs []*ProducerMessage) (*BatchPublishResult, error)
}

// TransformPublisher emits one event per transform row, keyed by transform
// so that every occurrence of a transform lands on the same partition, and
// one run-completed event keyed by run ID.  It is a pipeline.Sink.
type TransformPublisher struct {
	producer       batchPublisher
	transformTopic string
	runTopic       string
	logger         logging.Logger
}

// NewTransformPublisher publishes through producer.
func NewTransformPublisher(producer batchPublisher, transformTopic, runTopic string, logger logging.Logger) *TransformPublisher {
	return &TransformPublisher{
		producer:       producer,
		transformTopic: transformTopic,
		runTopic:       runTopic,
		logger:         logger.Named("kafka"),
	}
}

// Name implements pipeline.Sink.
func (p *TransformPublisher) Name() string { return "kafka" }

// Publish implements pipeline.Sink.
func (p *TransformPublisher) Publish(ctx context.Context, report *pipeline.Report) error {
	if report == nil || report.Response == nil {
		return nil
	}
	resp := report.Response
	meta := map[string]string{"run_id": resp.RunID}

	msgs := make([]*ProducerMessage, 0, len(resp.Rows)+1)
	for i, row := range resp.Rows {
		env, err := NewEventEnvelope(EventTransformEmitted, eventSource, TransformEmittedPayload{RunID: resp.RunID, Ordinal: i, Row: row})
		if err != nil {
			return err
		}
		env.Metadata = meta
		msg, err := env.ToMessage(p.transformTopic, row.Transform)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}

	env, err := NewEventEnvelope(EventRunCompleted, eventSource, RunCompletedPayload{Summary: resp.Summary, Unprocessed: resp.Unprocessed})
	if err != nil {
		return err
	}
	env.Metadata = meta
	msg, err := env.ToMessage(p.runTopic, resp.RunID)
	if err != nil {
		return err
	}
	msgs = append(msgs, msg)

	result, err := p.producer.PublishBatch(ctx, msgs)
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		first := result.Errors[0].Error
		return ErrPublishFailed.WithDetail(fmt.Sprintf("%d of %d messages failed", result.Failed, len(msgs))).WithCause(first)
	}
	p.logger.Debug("run events published", logging.RunID(resp.RunID), logging.Int("messages", len(msgs)))
	return nil
}
