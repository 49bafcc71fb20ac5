package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/KeyIP-MMP/internal/application/pipeline"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
)

const defaultBulkBatchSize = 500

var (
	ErrIndexCreationFailed = errors.New(errors.CodeSearchError, "index creation failed")
	ErrBulkIndexFailed     = errors.New(errors.CodeSearchError, "bulk index failed")
)

// TransformDocument is the indexed form of one transform row.
type TransformDocument struct {
	RunID         string    `json:"run_id"`
	Ordinal       int       `json:"ordinal"`
	Transform     string    `json:"transform"`
	LeftID        string    `json:"left_id"`
	RightID       string    `json:"right_id"`
	LeftFragment  string    `json:"left_fragment"`
	RightFragment string    `json:"right_fragment"`
	Key           string    `json:"key,omitempty"`
	Reverse       bool      `json:"reverse"`
	IndexedAt     time.Time `json:"indexed_at"`
}

// DocumentID is the document ID of row ordinal of runID.  Re-publishing a
// run overwrites its documents.
func DocumentID(runID string, ordinal int) string {
	return fmt.Sprintf("%s:%d", runID, ordinal)
}

// TransformIndexMapping returns the settings and mappings of the transform
// index.  Every field is an exact-match keyword.
func TransformIndexMapping() map[string]interface{} {
	keyword := map[string]interface{}{"type": "keyword"}
	return map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 1,
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"run_id":         keyword,
				"ordinal":        map[string]interface{}{"type": "integer"},
				"transform":      keyword,
				"left_id":        keyword,
				"right_id":       keyword,
				"left_fragment":  keyword,
				"right_fragment": keyword,
				"key":            keyword,
				"reverse":        map[string]interface{}{"type": "boolean"},
				"indexed_at":     map[string]interface{}{"type": "date"},
			},
		},
	}
}

// BulkItemError is one rejected document.
type BulkItemError struct {
	DocID     string
	ErrorType string
	Reason    string
}

// BulkResult summarises a bulk upload.
type BulkResult struct {
	Succeeded int
	Failed    int
	Errors    []BulkItemError
}

// TransformIndexer bulk-indexes transform rows.  It is a pipeline.Sink.
type TransformIndexer struct {
	client    *Client
	index     string
	batchSize int
	refresh   string
	logger    logging.Logger
	now       func() time.Time
}

// NewTransformIndexer writes into index through client.  A batchSize of 0
// uses 500 documents per bulk request.
func NewTransformIndexer(client *Client, index string, batchSize int, logger logging.Logger) *TransformIndexer {
	if batchSize <= 0 {
		batchSize = defaultBulkBatchSize
	}
	return &TransformIndexer{
		client:    client,
		index:     index,
		batchSize: batchSize,
		refresh:   "false",
		logger:    logger.Named("opensearch"),
		now:       time.Now,
	}
}

// Name implements pipeline.Sink.
func (i *TransformIndexer) Name() string { return "opensearch" }

// IndexExists reports whether the transform index exists.
func (i *TransformIndexer) IndexExists(ctx context.Context) (bool, error) {
	resp, err := opensearchapi.IndicesExistsRequest{Index: []string{i.index}}.Do(ctx, i.client.client)
	if err != nil {
		return false, errors.Wrap(err, errors.CodeSearchError, "failed to check index existence")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, handleErrorResponse(resp, "check index existence failed")
}

// EnsureIndex creates the transform index unless it already exists.
func (i *TransformIndexer) EnsureIndex(ctx context.Context) error {
	exists, err := i.IndexExists(ctx)
	if err != nil || exists {
		return err
	}

	body, err := json.Marshal(TransformIndexMapping())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal index mapping")
	}
	resp, err := opensearchapi.IndicesCreateRequest{Index: i.index, Body: bytes.NewReader(body)}.Do(ctx, i.client.client)
	if err != nil {
		return ErrIndexCreationFailed.WithCause(err)
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return handleErrorResponse(resp, "index creation failed")
	}

	i.logger.Info("index created", logging.String("index", i.index))
	return nil
}

// Publish implements pipeline.Sink.  Any rejected document fails the
// publish after every batch has been attempted.
func (i *TransformIndexer) Publish(ctx context.Context, report *pipeline.Report) error {
	if report == nil || report.Response == nil || len(report.Response.Rows) == 0 {
		return nil
	}
	resp := report.Response

	indexedAt := i.now().UTC()
	docs := make([]TransformDocument, len(resp.Rows))
	for n, r := range resp.Rows {
		key := ""
		if r.Key != nil {
			key = *r.Key
		}
		docs[n] = TransformDocument{
			RunID:         resp.RunID,
			Ordinal:       n,
			Transform:     r.Transform,
			LeftID:        r.LeftID,
			RightID:       r.RightID,
			LeftFragment:  r.LeftFragment,
			RightFragment: r.RightFragment,
			Key:           key,
			Reverse:       r.Reverse,
			IndexedAt:     indexedAt,
		}
	}

	result, err := i.BulkIndex(ctx, docs)
	if err != nil {
		return err
	}
	i.logger.Debug("transforms indexed", logging.RunID(resp.RunID),
		logging.Int("succeeded", result.Succeeded), logging.Int("failed", result.Failed))

	if result.Failed > 0 {
		first := result.Errors[0]
		return ErrBulkIndexFailed.WithDetail(fmt.Sprintf("%d of %d documents rejected, first %s: %s %s",
			result.Failed, len(docs), first.DocID, first.ErrorType, first.Reason))
	}
	return nil
}

type bulkAction struct {
	Index struct {
		Index string `json:"_index"`
		ID    string `json:"_id"`
	} `json:"index"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// BulkIndex uploads docs in batches.  Transport failures abort; rejected
// documents are counted in the result.
func (i *TransformIndexer) BulkIndex(ctx context.Context, docs []TransformDocument) (*BulkResult, error) {
	result := &BulkResult{}

	for start := 0; start < len(docs); start += i.batchSize {
		end := start + i.batchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]

		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, doc := range batch {
			var action bulkAction
			action.Index.Index = i.index
			action.Index.ID = DocumentID(doc.RunID, doc.Ordinal)
			if err := enc.Encode(action); err != nil {
				return result, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode bulk action")
			}
			if err := enc.Encode(doc); err != nil {
				return result, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode document")
			}
		}

		if err := i.sendBatch(ctx, &buf, len(batch), result); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (i *TransformIndexer) sendBatch(ctx context.Context, body io.Reader, size int, result *BulkResult) error {
	resp, err := opensearchapi.BulkRequest{Body: body, Refresh: i.refresh}.Do(ctx, i.client.client)
	if err != nil {
		return ErrBulkIndexFailed.WithCause(err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		result.Failed += size
		err := handleErrorResponse(resp, "bulk batch failed")
		result.Errors = append(result.Errors, BulkItemError{DocID: "batch", ErrorType: "http_error", Reason: errors.Describe(err)})
		return nil
	}

	var parsed bulkResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode bulk response")
	}
	if !parsed.Errors {
		result.Succeeded += len(parsed.Items)
		return nil
	}
	for _, item := range parsed.Items {
		for _, info := range item {
			if info.Status >= 200 && info.Status < 300 {
				result.Succeeded++
				continue
			}
			result.Failed++
			result.Errors = append(result.Errors, BulkItemError{DocID: info.ID, ErrorType: info.Error.Type, Reason: info.Error.Reason})
		}
	}
	return nil
}

func handleErrorResponse(resp *opensearchapi.Response, message string) error {
	var errResp struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Reason != "" {
		return errors.New(errors.CodeSearchError, message).
			WithDetail(fmt.Sprintf("%s: %s", errResp.Error.Type, errResp.Error.Reason))
	}
	return errors.New(errors.CodeSearchError, message).WithDetail(fmt.Sprintf("status %d", resp.StatusCode))
}
