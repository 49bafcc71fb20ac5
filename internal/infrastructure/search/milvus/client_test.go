package milvus

import (
	"context"
	"errors"
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-MMP/internal/config"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/KeyIP-MMP/pkg/errors"
)

func testConfig() config.MilvusConfig {
	return config.MilvusConfig{Addr: "localhost:19530", Collection: "fps"}
}

func dialTo(apis ...*mockVectorAPI) (dialFunc, *int) {
	calls := 0
	return func(context.Context, config.MilvusConfig) (VectorAPI, error) {
		api := apis[calls]
		calls++
		return api, nil
	}, &calls
}

func newConnectedClient(t *testing.T, api *mockVectorAPI) *Client {
	t.Helper()
	api.On("CheckHealth", mock.Anything).Return(healthyState(), nil).Once()
	dial, _ := dialTo(api)
	c, err := newClient(context.Background(), testConfig(), dial, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { c.cancel() })
	return c
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, ValidateConfig(testConfig()))
	assert.ErrorContains(t, ValidateConfig(config.MilvusConfig{Collection: "x"}), "addr is required")
	assert.ErrorContains(t, ValidateConfig(config.MilvusConfig{Addr: "x"}), "collection is required")
	assert.Error(t, ValidateConfig(config.MilvusConfig{Addr: "x", Collection: "y", NList: -1}))
}

func TestNewClient_Healthy(t *testing.T) {
	api := &mockVectorAPI{}
	c := newConnectedClient(t, api)
	assert.True(t, c.IsHealthy())
	assert.Same(t, api, c.API())
}

func TestNewClient_DialFailure(t *testing.T) {
	dial := func(context.Context, config.MilvusConfig) (VectorAPI, error) { return nil, errors.New("refused") }
	_, err := newClient(context.Background(), testConfig(), dial, logging.NewNopLogger())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSearchError))
}

func TestNewClient_UnhealthyClosesConnection(t *testing.T) {
	api := &mockVectorAPI{}
	api.On("CheckHealth", mock.Anything).Return(&entity.MilvusState{IsHealthy: false, Reasons: []string{"querynode down"}}, nil)
	api.On("Close").Return(nil).Once()
	dial, _ := dialTo(api)

	_, err := newClient(context.Background(), testConfig(), dial, logging.NewNopLogger())
	require.Error(t, err)
	api.AssertCalled(t, "Close")
}

func TestClient_HealthTickReconnects(t *testing.T) {
	first, second := &mockVectorAPI{}, &mockVectorAPI{}
	first.On("CheckHealth", mock.Anything).Return(healthyState(), nil).Once()
	first.On("CheckHealth", mock.Anything).Return(nil, errors.New("timeout"))
	first.On("Close").Return(nil).Once()
	dial, calls := dialTo(first, second)

	c, err := newClient(context.Background(), testConfig(), dial, logging.NewNopLogger())
	require.NoError(t, err)
	defer c.cancel()

	ctx := context.Background()
	failures := 0
	for i := 0; i < reconnectAfter; i++ {
		failures = c.healthTick(ctx, failures)
	}
	assert.Equal(t, 0, failures)
	assert.Equal(t, 2, *calls)
	assert.Same(t, second, c.API())
	assert.False(t, c.IsHealthy())

	second.On("CheckHealth", mock.Anything).Return(healthyState(), nil)
	assert.Equal(t, 0, c.healthTick(ctx, 0))
	assert.True(t, c.IsHealthy())
}

func TestClient_CloseIdempotent(t *testing.T) {
	api := &mockVectorAPI{}
	c := newConnectedClient(t, api)
	api.On("Close").Return(nil).Once()

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	api.AssertNumberOfCalls(t, "Close", 1)
	assert.ErrorIs(t, c.CheckHealth(context.Background()), ErrConnectionFailed)
}
