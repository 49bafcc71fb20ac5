package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/database/neo4j"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/search/milvus"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/search/opensearch"
	"github.com/turtacn/KeyIP-MMP/pkg/types/mmp"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockRunner struct{ mock.Mock }

func (m *mockRunner) Run(ctx context.Context, req mmp.RunRequest) (*mmp.RunResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*mmp.RunResponse)
	return resp, args.Error(1)
}

type mockQueries struct{ mock.Mock }

func (m *mockQueries) ReportURLs(ctx context.Context, runID string) (map[string]string, error) {
	args := m.Called(ctx, runID)
	urls, _ := args.Get(0).(map[string]string)
	return urls, args.Error(1)
}

func (m *mockQueries) TopTransforms(ctx context.Context, limit int) ([]neo4j.TransformCount, error) {
	args := m.Called(ctx, limit)
	counts, _ := args.Get(0).([]neo4j.TransformCount)
	return counts, args.Error(1)
}

func (m *mockQueries) SearchTransforms(ctx context.Context, q opensearch.TransformQuery) (*opensearch.TransformSearchResult, error) {
	args := m.Called(ctx, q)
	res, _ := args.Get(0).(*opensearch.TransformSearchResult)
	return res, args.Error(1)
}

func (m *mockQueries) SearchSimilar(ctx context.Context, vector []byte, topK int, excludeRunID string) ([]milvus.FingerprintMatch, error) {
	args := m.Called(ctx, vector, topK, excludeRunID)
	matches, _ := args.Get(0).([]milvus.FingerprintMatch)
	return matches, args.Error(1)
}

func doRequest(t *testing.T, h gin.HandlerFunc, route, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	engine := gin.New()
	engine.Handle(method, route, h)

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

var anyCtx = mock.Anything

const (
	statusClientClosed = 499
	statusOK           = http.StatusOK
)
