package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"listing-optimizer/apperr"
)

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Detail  string `json:"detail,omitempty"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

type dataEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation:           http.StatusBadRequest,
	apperr.KindNotFound:             http.StatusNotFound,
	apperr.KindBlocked:              http.StatusServiceUnavailable,
	apperr.KindExtractionFailed:     http.StatusUnprocessableEntity,
	apperr.KindTransport:            http.StatusBadGateway,
	apperr.KindRewriteUnavailable:   http.StatusServiceUnavailable,
	apperr.KindNotFoundOptimization: http.StatusNotFound,
	apperr.KindRateLimited:          http.StatusTooManyRequests,
	apperr.KindInternal:             http.StatusInternalServerError,
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	if s, ok := statusByKind[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func respondData(c *gin.Context, status int, data any) {
	c.JSON(status, dataEnvelope{Success: true, Data: data})
}

// respondError writes the error envelope. Unclassified errors are reported as
// INTERNAL; their text only reaches the client when exposeDetail is set.
func respondError(c *gin.Context, err error, exposeDetail bool) {
	_ = c.Error(err)

	kind := apperr.KindOf(err)
	body := errorBody{Code: string(kind)}

	var ae *apperr.Error
	if errors.As(err, &ae) && kind != apperr.KindInternal {
		body.Message = ae.Message
	} else {
		body.Message = "Internal server error"
	}
	if exposeDetail {
		body.Detail = err.Error()
	}

	c.AbortWithStatusJSON(StatusFor(kind), errorEnvelope{Error: body})
}
