package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/backplane/errors"
)

// DataResponse is the standard success envelope.
type DataResponse struct {
	Data any `json:"data"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the taxonomy kind alongside the message so clients
// can branch without parsing text.
type ErrorBody struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, DataResponse{Data: data})
}

func respondAccepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, DataResponse{Data: data})
}

func respondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func respondBadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: ErrorBody{
		Kind:    "bad_request",
		Message: msg,
	}})
}

// respondError maps the error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	body := ErrorBody{Kind: "internal", Message: err.Error()}

	if e, ok := errors.AsError(err); ok {
		body.Kind = string(e.Kind)
		body.Message = e.Message
		body.Details = e.Details
		switch e.Kind {
		case errors.KindNotFound:
			status = http.StatusNotFound
		case errors.KindUnhealthy, errors.KindMigrationInProgress,
			errors.KindTargetUnavailable, errors.KindVerificationFailed:
			status = http.StatusConflict
		case errors.KindCircuitOpen:
			status = http.StatusServiceUnavailable
		case errors.KindTimeout:
			status = http.StatusGatewayTimeout
		case errors.KindCancelled:
			status = http.StatusConflict
		case errors.KindAdapter:
			status = http.StatusBadGateway
		}
	}
	c.JSON(status, ErrorResponse{Error: body})
}
