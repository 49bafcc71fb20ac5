package neo4j

import (
	"context"
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/KeyIP-MMP/pkg/errors"
)

func nopLogger() logging.Logger { return logging.NewNopLogger() }

func TestDriver_SessionModes(t *testing.T) {
	d, _, session := newFakeDriver()
	ctx := context.Background()

	_, err := d.ExecuteRead(ctx, func(Transaction) (any, error) { return 1, nil })
	require.NoError(t, err)
	_, err = d.ExecuteWrite(ctx, func(Transaction) (any, error) { return 2, nil })
	require.NoError(t, err)

	require.Len(t, session.configs, 2)
	assert.Equal(t, "neo4j", session.configs[0].DatabaseName)
	assert.Equal(t, neo4j.AccessModeRead, session.configs[0].AccessMode)
	assert.Equal(t, neo4j.AccessModeWrite, session.configs[1].AccessMode)
	assert.Equal(t, 2, session.closed)
}

func TestDriver_WorkErrorIsWrapped(t *testing.T) {
	d, _, _ := newFakeDriver()
	_, err := d.ExecuteWrite(context.Background(), func(Transaction) (any, error) { return nil, errors.New("deadlock") })
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
}

func TestDriver_HealthCheck(t *testing.T) {
	d, md, _ := newFakeDriver()
	md.On("VerifyConnectivity", mock.Anything).Return(nil).Once()
	assert.NoError(t, d.HealthCheck(context.Background()))

	md.On("VerifyConnectivity", mock.Anything).Return(errors.New("routing table empty"))
	assert.Error(t, d.HealthCheck(context.Background()))
}

func TestDriver_CloseOnce(t *testing.T) {
	d, md, _ := newFakeDriver()
	md.On("Close", mock.Anything).Return(nil).Once()
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	md.AssertNumberOfCalls(t, "Close", 1)
}
