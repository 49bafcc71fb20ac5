package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/KeyIP-MMP/pkg/errors"
	"github.com/turtacn/KeyIP-MMP/pkg/types/mmp"
)

func requestMessage(t *testing.T, eventType string, payload interface{}) *Message {
	t.Helper()
	env, err := NewEventEnvelope(eventType, "client", payload)
	require.NoError(t, err)
	pm, err := env.ToMessage("mmp.run_requests", "")
	require.NoError(t, err)
	return &Message{Topic: pm.Topic, Value: pm.Value}
}

func TestRunRequestHandler_Executes(t *testing.T) {
	var got mmp.RunRequest
	h := NewRunRequestHandler(func(_ context.Context, req mmp.RunRequest) (*mmp.RunResponse, error) {
		got = req
		return &mmp.RunResponse{RunID: "r1"}, nil
	}, logging.NewNopLogger())

	req := mmp.RunRequest{Structures: []mmp.StructureInput{{ID: "tol", SMILES: "Cc1ccccc1"}}}
	require.NoError(t, h(context.Background(), requestMessage(t, EventRunRequested, req)))
	assert.Equal(t, req, got)
}

func TestRunRequestHandler_PermanentFailures(t *testing.T) {
	run := func(context.Context, mmp.RunRequest) (*mmp.RunResponse, error) {
		return nil, pkgerrors.UnsupportedConfiguration("add hydrogens requires max cuts 1")
	}
	h := NewRunRequestHandler(run, logging.NewNopLogger())

	assert.True(t, isPermanent(h(context.Background(), &Message{Value: []byte("garbage")})))
	assert.True(t, isPermanent(h(context.Background(), requestMessage(t, EventRunCompleted, mmp.RunSummary{}))))
	assert.True(t, isPermanent(h(context.Background(), requestMessage(t, EventRunRequested, mmp.RunRequest{}))))
}

func TestRunRequestHandler_TransientFailure(t *testing.T) {
	h := NewRunRequestHandler(func(context.Context, mmp.RunRequest) (*mmp.RunResponse, error) {
		return nil, pkgerrors.Toolkit("toolkit crashed")
	}, logging.NewNopLogger())

	err := h(context.Background(), requestMessage(t, EventRunRequested, mmp.RunRequest{}))
	require.Error(t, err)
	assert.False(t, isPermanent(err))
}
