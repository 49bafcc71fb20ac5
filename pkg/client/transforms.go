package client

import (
	"context"
	"encoding/hex"
	"net/url"
	"strconv"
	"time"

	"github.com/turtacn/KeyIP-MMP/pkg/errors"
)

// TransformCount is the number of pairs sharing one transform across every
// published run.
type TransformCount struct {
	Transform string `json:"transform"`
	Pairs     int64  `json:"pairs"`
}

// TransformHit is one indexed transform row.
type TransformHit struct {
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

// TransformBucket counts hits per transform.
type TransformBucket struct {
	Transform string `json:"transform"`
	Count     int64  `json:"count"`
}

// SearchResult is one page of transform hits.
type SearchResult struct {
	Total         int64             `json:"total"`
	TookMs        int64             `json:"took_ms"`
	Hits          []TransformHit    `json:"hits"`
	TopTransforms []TransformBucket `json:"top_transforms"`
}

// SearchParams filters a transform search.  Empty fields match anything.
type SearchParams struct {
	RunID          string
	Transform      string
	Fragment       string
	StructureID    string
	IncludeReverse bool
	Offset         int
	Limit          int
}

func (p SearchParams) values() url.Values {
	v := url.Values{}
	set := func(k, s string) {
		if s != "" {
			v.Set(k, s)
		}
	}
	set("run_id", p.RunID)
	set("transform", p.Transform)
	set("fragment", p.Fragment)
	set("structure_id", p.StructureID)
	if p.IncludeReverse {
		v.Set("include_reverse", "true")
	}
	if p.Offset > 0 {
		v.Set("offset", strconv.Itoa(p.Offset))
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	return v
}

// FingerprintMatch is one fragment whose environment fingerprint resembles
// the query.
type FingerprintMatch struct {
	RunID       string  `json:"run_id"`
	StructureID string  `json:"structure_id"`
	Key         string  `json:"key"`
	Fragment    string  `json:"fragment"`
	Similarity  float64 `json:"similarity"`
}

// TransformsClient reads the transform graph, index and fingerprint store.
type TransformsClient struct {
	client *Client
}

// Top returns the most frequent transforms.  A limit of 0 uses the server
// default.
func (t *TransformsClient) Top(ctx context.Context, limit int) ([]TransformCount, error) {
	path := apiPrefix + "/transforms/top"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Transforms []TransformCount `json:"transforms"`
	}
	if err := t.client.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Transforms, nil
}

// Search queries the transform index.
func (t *TransformsClient) Search(ctx context.Context, p SearchParams) (*SearchResult, error) {
	if p.Offset < 0 || p.Limit < 0 {
		return nil, errors.InvalidParam("client: offset and limit must be ≥ 0")
	}
	path := apiPrefix + "/transforms/search"
	if q := p.values().Encode(); q != "" {
		path += "?" + q
	}
	var resp SearchResult
	if err := t.client.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Similar finds stored fragments whose environment fingerprint is closest to
// fp.  Fragments of excludeRunID are skipped when it is set.
func (t *TransformsClient) Similar(ctx context.Context, fp []byte, topK int, excludeRunID string) ([]FingerprintMatch, error) {
	if len(fp) == 0 {
		return nil, errors.InvalidParam("client: fingerprint is required")
	}
	body := struct {
		Fingerprint  string `json:"fingerprint"`
		TopK         int    `json:"top_k,omitempty"`
		ExcludeRunID string `json:"exclude_run_id,omitempty"`
	}{hex.EncodeToString(fp), topK, excludeRunID}

	var resp struct {
		Matches []FingerprintMatch `json:"matches"`
	}
	if err := t.client.post(ctx, apiPrefix+"/fingerprints/similar", body, &resp); err != nil {
		return nil, err
	}
	return resp.Matches, nil
}
