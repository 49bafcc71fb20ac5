package handlers

import (
	"context"
	"encoding/hex"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/database/neo4j"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/search/milvus"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/search/opensearch"
)

const defaultTopTransforms = 20

// ReportLocator resolves download links of a stored run report.
type ReportLocator interface {
	ReportURLs(ctx context.Context, runID string) (map[string]string, error)
}

// TransformRanker ranks transforms by pair count across runs.
type TransformRanker interface {
	TopTransforms(ctx context.Context, limit int) ([]neo4j.TransformCount, error)
}

// TransformSearcher queries indexed transform rows.
type TransformSearcher interface {
	SearchTransforms(ctx context.Context, q opensearch.TransformQuery) (*opensearch.TransformSearchResult, error)
}

// FingerprintSearcher finds fragments with a similar attachment
// environment.
type FingerprintSearcher interface {
	SearchSimilar(ctx context.Context, vector []byte, topK int, excludeRunID string) ([]milvus.FingerprintMatch, error)
}

// QueryHandler serves read endpoints over the optional sinks.  Each
// dependency may be nil, in which case its routes are not mounted.
type QueryHandler struct {
	Reports      ReportLocator
	Ranker       TransformRanker
	Searcher     TransformSearcher
	Fingerprints FingerprintSearcher
}

// GetRunReports handles GET /api/v1/mmp/runs/:run_id/reports.
func (h *QueryHandler) GetRunReports(c *gin.Context) {
	runID := c.Param("run_id")
	urls, err := h.Reports.ReportURLs(c.Request.Context(), runID)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "reports": urls})
}

// TopTransforms handles GET /api/v1/mmp/transforms/top.
func (h *QueryHandler) TopTransforms(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultTopTransforms)
	if err != nil {
		writeAppError(c, err)
		return
	}
	counts, err := h.Ranker.TopTransforms(c.Request.Context(), limit)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transforms": counts})
}

// SearchTransforms handles GET /api/v1/mmp/transforms/search.
func (h *QueryHandler) SearchTransforms(c *gin.Context) {
	q := opensearch.TransformQuery{
		RunID:       c.Query("run_id"),
		Transform:   c.Query("transform"),
		Fragment:    c.Query("fragment"),
		StructureID: c.Query("structure_id"),
	}
	if raw := c.Query("include_reverse"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeBadRequest(c, "include_reverse must be a boolean")
			return
		}
		q.IncludeReverse = v
	}
	var err error
	if q.Offset, err = queryInt(c, "offset", 0); err != nil {
		writeAppError(c, err)
		return
	}
	if q.Limit, err = queryInt(c, "limit", 0); err != nil {
		writeAppError(c, err)
		return
	}

	result, err := h.Searcher.SearchTransforms(c.Request.Context(), q)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SimilarFingerprintsRequest is the body of a fingerprint search.
// Fingerprint is the hex-encoded bit vector.
type SimilarFingerprintsRequest struct {
	Fingerprint  string `json:"fingerprint" binding:"required"`
	TopK         int    `json:"top_k"`
	ExcludeRunID string `json:"exclude_run_id"`
}

// SimilarFingerprints handles POST /api/v1/mmp/fingerprints/similar.
func (h *QueryHandler) SimilarFingerprints(c *gin.Context) {
	var req SimilarFingerprintsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "malformed fingerprint request: "+err.Error())
		return
	}
	vector, err := hex.DecodeString(req.Fingerprint)
	if err != nil {
		writeBadRequest(c, "fingerprint must be hex encoded")
		return
	}

	matches, err := h.Fingerprints.SearchSimilar(c.Request.Context(), vector, req.TopK, req.ExcludeRunID)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches})
}
