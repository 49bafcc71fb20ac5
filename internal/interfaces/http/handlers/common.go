// Package handlers implements the gin handlers of the MMP HTTP API.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/KeyIP-MMP/pkg/errors"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// writeAppError maps err to its HTTP status.  Server-side failures are
// masked.
func writeAppError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := errors.HTTPStatusForCode(code)
	if status >= http.StatusInternalServerError {
		c.AbortWithStatusJSON(status, ErrorResponse{Code: code.String(), Message: errors.DefaultMessageForCode(code)})
		return
	}
	resp := ErrorResponse{Code: code.String(), Message: errors.DefaultMessageForCode(code), Detail: errors.Describe(err)}
	c.AbortWithStatusJSON(status, resp)
}

func writeBadRequest(c *gin.Context, detail string) {
	writeAppError(c, errors.InvalidParam(detail))
}

// queryInt reads an integer query parameter, falling back to def when it is
// absent.
func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.InvalidParam(name + " must be an integer")
	}
	return v, nil
}
