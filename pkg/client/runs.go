package client

import (
	"context"
	"net/url"

	"github.com/turtacn/KeyIP-MMP/pkg/errors"
	"github.com/turtacn/KeyIP-MMP/pkg/types/mmp"
)

// RunsClient submits runs and fetches their reports.
type RunsClient struct {
	client *Client
}

// Create executes req synchronously on the server.  A cancelled run comes
// back as an *APIError with IsCancelled set.
func (r *RunsClient) Create(ctx context.Context, req mmp.RunRequest) (*mmp.RunResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParam, "client: invalid run request")
	}
	var resp mmp.RunResponse
	if err := r.client.post(ctx, apiPrefix+"/runs", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reports returns presigned download URLs of a run's report objects, keyed
// by report name.
func (r *RunsClient) Reports(ctx context.Context, runID string) (map[string]string, error) {
	if runID == "" {
		return nil, errors.InvalidParam("client: run ID is required")
	}
	var resp struct {
		RunID   string            `json:"run_id"`
		Reports map[string]string `json:"reports"`
	}
	if err := r.client.get(ctx, apiPrefix+"/runs/"+url.PathEscape(runID)+"/reports", &resp); err != nil {
		return nil, err
	}
	return resp.Reports, nil
}
