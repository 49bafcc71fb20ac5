package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
	"github.com/turtacn/KeyIP-MMP/pkg/types/mmp"
)

// Runner executes one run.
type Runner interface {
	Run(ctx context.Context, req mmp.RunRequest) (*mmp.RunResponse, error)
}

// RunHandler serves run submissions.
type RunHandler struct {
	runner        Runner
	maxStructures int
	logger        logging.Logger
}

// NewRunHandler rejects requests with more than maxStructures inputs; 0
// means unlimited.
func NewRunHandler(runner Runner, maxStructures int, logger logging.Logger) *RunHandler {
	return &RunHandler{runner: runner, maxStructures: maxStructures, logger: logger.Named("http")}
}

// CancelledResponse is returned when the client goes away mid-run and the
// connection is still writable.
type CancelledResponse struct {
	ErrorResponse
	Partial *mmp.RunResponse `json:"partial,omitempty"`
}

// CreateRun handles POST /api/v1/mmp/runs.
func (h *RunHandler) CreateRun(c *gin.Context) {
	var req mmp.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "malformed run request: "+err.Error())
		return
	}
	if h.maxStructures > 0 && len(req.Structures) > h.maxStructures {
		writeBadRequest(c, fmt.Sprintf("%d structures exceed the limit of %d", len(req.Structures), h.maxStructures))
		return
	}

	resp, err := h.runner.Run(c.Request.Context(), req)
	if err != nil {
		if errors.IsCode(err, errors.CodeCancelled) && resp != nil {
			code := errors.CodeCancelled
			c.AbortWithStatusJSON(errors.HTTPStatusForCode(code), CancelledResponse{
				ErrorResponse: ErrorResponse{Code: code.String(), Message: errors.DefaultMessageForCode(code)},
				Partial:       resp,
			})
			return
		}
		if !errors.IsClientError(errors.GetCode(err)) {
			h.logger.Error("run failed", logging.Err(err))
		}
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
