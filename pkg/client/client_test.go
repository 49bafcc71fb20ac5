package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/database/neo4j"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/search/milvus"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/search/opensearch"
	httpiface "github.com/turtacn/KeyIP-MMP/internal/interfaces/http"
	"github.com/turtacn/KeyIP-MMP/internal/interfaces/http/handlers"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
	"github.com/turtacn/KeyIP-MMP/pkg/types/mmp"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]Option{WithRetryWait(time.Millisecond, 5*time.Millisecond)}, opts...)
	c, err := NewClient(server.URL, opts...)
	require.NoError(t, err)
	return c
}

type testLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *testLogger) Debugf(format string, args ...interface{}) { l.log(format, args...) }
func (l *testLogger) Infof(format string, args ...interface{})  { l.log(format, args...) }
func (l *testLogger) Errorf(format string, args ...interface{}) { l.log(format, args...) }

func (l *testLogger) log(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

type fakeBackend struct {
	lastReq mmp.RunRequest
	err     error
}

func (f *fakeBackend) Run(_ context.Context, req mmp.RunRequest) (*mmp.RunResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &mmp.RunResponse{
		RunID:   "run-1",
		Rows:    []mmp.TransformRow{{Transform: "[*:1][H]>>[*:1]C", LeftID: "ben", RightID: "tol"}},
		Summary: mmp.RunSummary{RunID: "run-1", Structures: len(req.Structures), Transforms: 1},
	}, nil
}

func (f *fakeBackend) ReportURLs(_ context.Context, runID string) (map[string]string, error) {
	if runID != "run-1" {
		return nil, errors.NotFound("run has no reports")
	}
	return map[string]string{"transforms.tsv": "https://minio/run-1/transforms.tsv"}, nil
}

func (f *fakeBackend) TopTransforms(_ context.Context, limit int) ([]neo4j.TransformCount, error) {
	return []neo4j.TransformCount{{Transform: "t1", Pairs: int64(limit)}}, nil
}

func (f *fakeBackend) SearchTransforms(_ context.Context, q opensearch.TransformQuery) (*opensearch.TransformSearchResult, error) {
	return &opensearch.TransformSearchResult{
		Total: 1,
		Hits:  []opensearch.TransformDocument{{RunID: q.RunID, Transform: q.Transform, Reverse: q.IncludeReverse}},
	}, nil
}

func (f *fakeBackend) SearchSimilar(_ context.Context, fp []byte, topK int, exclude string) ([]milvus.FingerprintMatch, error) {
	return []milvus.FingerprintMatch{{RunID: exclude + "-other", Key: fmt.Sprintf("%x/%d", fp, topK), Similarity: 0.9}}, nil
}

// newAPIClient talks to the real router.
func newAPIClient(t *testing.T, backend *fakeBackend) *Client {
	t.Helper()
	router := httpiface.NewRouter(httpiface.RouterConfig{
		Mode:   gin.TestMode,
		Logger: logging.NewNopLogger(),
		Health: handlers.NewHealthHandler("test"),
		Run:    handlers.NewRunHandler(backend, 10, logging.NewNopLogger()),
		Query: &handlers.QueryHandler{
			Reports: backend, Ranker: backend, Searcher: backend, Fingerprints: backend,
		},
		MaxBodySize: 1 << 20,
	})
	return newTestClient(t, router)
}

// ---------------------------------------------------------------------------
// Constructor
// ---------------------------------------------------------------------------

func TestNewClient(t *testing.T) {
	c, err := NewClient("http://mmp.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "http://mmp.example.com", c.baseURL)
	assert.Equal(t, 3, c.retryMax)
	assert.Contains(t, c.userAgent, "mmp-go-sdk/")
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	for _, u := range []string{"", "ftp://invalid", "invalid-url"} {
		_, err := NewClient(u)
		assert.True(t, errors.IsCode(err, errors.CodeInvalidParam), u)
	}
}

func TestClient_SubClients_ConcurrentAccess(t *testing.T) {
	c, err := NewClient("http://localhost")
	require.NoError(t, err)

	var wg sync.WaitGroup
	runs := make([]*RunsClient, 16)
	for i := range runs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			runs[i] = c.Runs()
			_ = c.Transforms()
		}(i)
	}
	wg.Wait()
	for _, r := range runs {
		assert.Same(t, runs[0], r)
	}
}

// ---------------------------------------------------------------------------
// Endpoints
// ---------------------------------------------------------------------------

func TestRuns_Create(t *testing.T) {
	backend := &fakeBackend{}
	c := newAPIClient(t, backend)

	resp, err := c.Runs().Create(context.Background(), mmp.RunRequest{
		Structures: []mmp.StructureInput{{ID: "ben", SMILES: "c1ccccc1"}, {ID: "tol", SMILES: "Cc1ccccc1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "run-1", resp.RunID)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "tol", resp.Rows[0].RightID)
	assert.Len(t, backend.lastReq.Structures, 2)
}

func TestRuns_Create_EmptyRejectedLocally(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:1")
	require.NoError(t, err)

	_, err = c.Runs().Create(context.Background(), mmp.RunRequest{})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestRuns_Create_ServerRejects(t *testing.T) {
	backend := &fakeBackend{err: errors.UnsupportedConfiguration("add hydrogens requires max cuts 1").WithDetail("max_cuts=3")}
	c := newAPIClient(t, backend)

	_, err := c.Runs().Create(context.Background(), mmp.RunRequest{
		Structures: []mmp.StructureInput{{ID: "a", SMILES: "C"}},
	})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "add hydrogens requires max cuts 1: max_cuts=3", apiErr.Detail)
	assert.Contains(t, apiErr.Error(), "max_cuts=3")
	assert.NotEmpty(t, apiErr.RequestID)
}

func TestRuns_Reports(t *testing.T) {
	c := newAPIClient(t, &fakeBackend{})

	urls, err := c.Runs().Reports(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Contains(t, urls, "transforms.tsv")

	_, err = c.Runs().Reports(context.Background(), "run-2")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())
}

func TestTransforms_Top(t *testing.T) {
	c := newAPIClient(t, &fakeBackend{})

	top, err := c.Transforms().Top(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, int64(7), top[0].Pairs)
}

func TestTransforms_Search(t *testing.T) {
	c := newAPIClient(t, &fakeBackend{})

	res, err := c.Transforms().Search(context.Background(), SearchParams{
		RunID: "run-1", Transform: "t1", IncludeReverse: true, Limit: 5,
	})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "run-1", res.Hits[0].RunID)
	assert.Equal(t, "t1", res.Hits[0].Transform)
	assert.True(t, res.Hits[0].Reverse)

	_, err = c.Transforms().Search(context.Background(), SearchParams{Limit: -1})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestTransforms_Similar(t *testing.T) {
	c := newAPIClient(t, &fakeBackend{})

	matches, err := c.Transforms().Similar(context.Background(), []byte{0xab, 0x01}, 3, "run-1")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "run-1-other", matches[0].RunID)
	assert.Equal(t, "ab01/3", matches[0].Key)

	_, err = c.Transforms().Similar(context.Background(), nil, 3, "")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

// ---------------------------------------------------------------------------
// Transport behaviour
// ---------------------------------------------------------------------------

func TestClient_Do_RequestHeaders(t *testing.T) {
	var got http.Header
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = io.WriteString(w, `{}`)
	}), WithAPIKey("secret"), WithUserAgent("ua/1"))

	require.NoError(t, c.post(context.Background(), "/x", map[string]int{"a": 1}, nil))
	assert.Equal(t, "Bearer secret", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "ua/1", got.Get("User-Agent"))
	assert.NotEmpty(t, got.Get("X-Request-ID"))
}

func TestClient_Do_NoAuthorizationWithoutKey(t *testing.T) {
	var auth string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	require.NoError(t, c.get(context.Background(), "x", nil))
	assert.Empty(t, auth)
}

func TestClient_Do_4xxNoRetry(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"code":"COMMON_002","message":"bad request"}`)
	}))

	err := c.get(context.Background(), "/x", nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "COMMON_002", apiErr.Code)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestClient_Do_500NoRetry(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	err := c.get(context.Background(), "/x", nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsServerError())
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestClient_Do_503Retry(t *testing.T) {
	var calls int32
	logger := &testLogger{}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
	}), WithLogger(logger))

	var out map[string]string
	require.NoError(t, c.get(context.Background(), "/x", &out))
	assert.Equal(t, "yes", out["ok"])
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.NotEmpty(t, logger.lines)
}

func TestClient_Do_RetryExhausted(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}), WithRetryMax(2))

	err := c.get(context.Background(), "/x", nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestClient_Do_429RetryAfter(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"code":"RATE_LIMITED","message":"rate limit exceeded"}`)
			return
		}
		_, _ = io.WriteString(w, `{}`)
	}))

	start := time.Now()
	require.NoError(t, c.get(context.Background(), "/x", nil))
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestClient_Do_NetworkError(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:1", WithRetryMax(1), WithRetryWait(time.Millisecond, time.Millisecond))
	require.NoError(t, err)
	assert.Error(t, c.get(context.Background(), "/x", nil))
}

func TestClient_Do_ContextCanceled(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}), WithRetryWait(time.Second, time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.get(ctx, "/x", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAPIError_Methods(t *testing.T) {
	e := &APIError{StatusCode: 499, Code: "MMP_005", Message: "run cancelled", RequestID: "r1"}
	assert.True(t, e.IsCancelled())
	assert.False(t, e.IsServerError())
	assert.Equal(t, "mmp: MMP_005 (HTTP 499): run cancelled [request_id=r1]", e.Error())

	e = &APIError{StatusCode: 400, Code: "MMP_004", Message: "unsupported configuration", Detail: "max_cuts=3"}
	assert.Contains(t, e.Error(), "unsupported configuration: max_cuts=3")
	assert.True(t, (&APIError{StatusCode: 429}).IsRateLimited())
}
