package kafka

import (
	"context"

	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
	"github.com/turtacn/KeyIP-MMP/pkg/types/mmp"
)

// RunFunc executes one run request.
type RunFunc func(ctx context.Context, req mmp.RunRequest) (*mmp.RunResponse, error)

// NewRunRequestHandler returns a MessageHandler that decodes
// EventRunRequested envelopes and executes them with run.  Undecodable
// messages and requests the engine rejects are permanent failures; toolkit
// and sink outages are retried.
func NewRunRequestHandler(run RunFunc, logger logging.Logger) MessageHandler {
	logger = logger.Named("kafka.requests")
	return func(ctx context.Context, msg *Message) error {
		env, err := MessageToEventEnvelope(msg)
		if err != nil {
			return Permanent(err)
		}
		if env.EventType != EventRunRequested {
			return Permanent(errors.Newf(errors.ErrCodeValidation, "unexpected event type %q", env.EventType))
		}
		var req mmp.RunRequest
		if err := env.DecodePayload(&req); err != nil {
			return Permanent(err)
		}

		resp, err := run(ctx, req)
		if err != nil {
			if errors.IsClientError(errors.GetCode(err)) && !errors.IsCode(err, errors.CodeCancelled) {
				return Permanent(err)
			}
			return err
		}
		logger.Info("run request executed",
			logging.String("event_id", env.EventID),
			logging.RunID(resp.RunID),
			logging.Int("transforms", resp.Summary.Transforms))
		return nil
	}
}
