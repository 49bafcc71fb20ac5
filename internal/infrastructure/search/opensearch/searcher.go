package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
)

const (
	defaultPageSize   = 20
	maxPageSize       = 1000
	transformAggName  = "transforms"
	transformAggLimit = 10
)

// TransformQuery selects indexed rows.  Empty fields do not constrain.
// Fragment matches either side of a pair and StructureID either ID.
type TransformQuery struct {
	RunID          string
	Transform      string
	Fragment       string
	StructureID    string
	IncludeReverse bool
	Offset         int
	Limit          int
}

// TransformBucket counts hits per transform.
type TransformBucket struct {
	Transform string `json:"transform"`
	Count     int64  `json:"count"`
}

// TransformSearchResult is one page of hits plus the most frequent
// transforms among all matches.
type TransformSearchResult struct {
	Total         int64               `json:"total"`
	TookMs        int64               `json:"took_ms"`
	Hits          []TransformDocument `json:"hits"`
	TopTransforms []TransformBucket   `json:"top_transforms"`
}

// Searcher queries the transform index.
type Searcher struct {
	client *Client
	index  string
	logger logging.Logger
}

// NewSearcher reads index through client.
func NewSearcher(client *Client, index string, logger logging.Logger) *Searcher {
	return &Searcher{client: client, index: index, logger: logger.Named("opensearch")}
}

// SearchTransforms runs q against the transform index.
func (s *Searcher) SearchTransforms(ctx context.Context, q TransformQuery) (*TransformSearchResult, error) {
	if q.Offset < 0 {
		return nil, errors.InvalidParam("offset must be >= 0")
	}
	if q.Limit > maxPageSize {
		return nil, errors.InvalidParam("limit exceeds maximum page size")
	}

	body, err := json.Marshal(buildQueryDSL(q))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal search query")
	}

	resp, err := opensearchapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(body),
	}.Do(ctx, s.client.client)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSearchError, "search request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, handleErrorResponse(resp, "search failed")
	}

	result, err := parseSearchResponse(resp.Body)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("transform search", logging.Int64("total", result.Total), logging.Int64("took_ms", result.TookMs))
	return result, nil
}

func buildQueryDSL(q TransformQuery) map[string]interface{} {
	term := func(field, value string) map[string]interface{} {
		return map[string]interface{}{"term": map[string]interface{}{field: value}}
	}
	eitherOf := func(a, b, value string) map[string]interface{} {
		return map[string]interface{}{"bool": map[string]interface{}{
			"should":               []interface{}{term(a, value), term(b, value)},
			"minimum_should_match": 1,
		}}
	}

	filters := []interface{}{}
	if q.RunID != "" {
		filters = append(filters, term("run_id", q.RunID))
	}
	if q.Transform != "" {
		filters = append(filters, term("transform", q.Transform))
	}
	if q.Fragment != "" {
		filters = append(filters, eitherOf("left_fragment", "right_fragment", q.Fragment))
	}
	if q.StructureID != "" {
		filters = append(filters, eitherOf("left_id", "right_id", q.StructureID))
	}
	if !q.IncludeReverse {
		filters = append(filters, map[string]interface{}{"term": map[string]interface{}{"reverse": false}})
	}

	size := q.Limit
	if size == 0 {
		size = defaultPageSize
	}

	return map[string]interface{}{
		"query": map[string]interface{}{"bool": map[string]interface{}{"filter": filters}},
		"from":  q.Offset,
		"size":  size,
		"sort": []interface{}{
			map[string]interface{}{"run_id": map[string]interface{}{"order": "asc"}},
			map[string]interface{}{"ordinal": map[string]interface{}{"order": "asc"}},
		},
		"track_total_hits": true,
		"aggs": map[string]interface{}{
			transformAggName: map[string]interface{}{
				"terms": map[string]interface{}{"field": "transform", "size": transformAggLimit},
			},
		},
	}
}

func parseSearchResponse(body io.Reader) (*TransformSearchResult, error) {
	var resp struct {
		Took int64 `json:"took"`
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source TransformDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
		Aggregations map[string]struct {
			Buckets []struct {
				Key      string `json:"key"`
				DocCount int64  `json:"doc_count"`
			} `json:"buckets"`
		} `json:"aggregations"`
	}
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode search response")
	}

	result := &TransformSearchResult{
		Total:  resp.Hits.Total.Value,
		TookMs: resp.Took,
		Hits:   make([]TransformDocument, 0, len(resp.Hits.Hits)),
	}
	for _, h := range resp.Hits.Hits {
		result.Hits = append(result.Hits, h.Source)
	}
	for _, b := range resp.Aggregations[transformAggName].Buckets {
		result.TopTransforms = append(result.TopTransforms, TransformBucket{Transform: b.Key, Count: b.DocCount})
	}
	return result, nil
}
