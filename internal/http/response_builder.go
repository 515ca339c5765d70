package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"pilotage/internal/auth"
	"pilotage/internal/core"
	"pilotage/internal/log"
)

// Error codes of the JSON error envelope.
const (
	CodeBadRequest       = "bad_request"
	CodeInvalidWeek      = "invalid_week"
	CodeInvalidRecord    = "invalid_record"
	CodeOutOfRange       = "position_out_of_range"
	CodeDuplicateOutlet  = "duplicate_outlet"
	CodeVersionConflict  = "version_conflict"
	CodeStoreUnavailable = "store_unavailable"
	CodeUnauthorized     = "unauthorized"
	CodeRateLimited      = "rate_limited"
	CodeInternal         = "internal"
)

// ErrorBody is the payload of every failed request.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errBadRequest marks request decoding failures.
var errBadRequest = errors.New("bad request")

func errBadRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errBadRequest}, args...)...)
}

// classify maps an error to its status code and envelope code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, core.ErrInvalidWeek):
		return http.StatusUnprocessableEntity, CodeInvalidWeek
	case errors.Is(err, core.ErrInvalidYear),
		errors.Is(err, core.ErrInvalidRevenue),
		errors.Is(err, core.ErrEmptyOutlet),
		errors.Is(err, core.ErrEmptyProductLine):
		return http.StatusUnprocessableEntity, CodeInvalidRecord
	case errors.Is(err, core.ErrPositionOutOfRange):
		return http.StatusNotFound, CodeOutOfRange
	case errors.Is(err, core.ErrDuplicateOutlet):
		return http.StatusConflict, CodeDuplicateOutlet
	case errors.Is(err, core.ErrVersionConflict):
		return http.StatusConflict, CodeVersionConflict
	case errors.Is(err, core.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, CodeStoreUnavailable
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrSessionNotFound):
		return http.StatusUnauthorized, CodeUnauthorized
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// errorType groups envelope codes into log categories.
func errorType(code string) string {
	switch code {
	case CodeBadRequest, CodeInvalidWeek, CodeInvalidRecord:
		return log.ErrorTypeValidation
	case CodeOutOfRange:
		return log.ErrorTypeNotFound
	case CodeDuplicateOutlet, CodeVersionConflict:
		return log.ErrorTypeConflict
	case CodeStoreUnavailable:
		return log.ErrorTypeStore
	case CodeUnauthorized, CodeRateLimited:
		return log.ErrorTypeAuth
	default:
		return log.ErrorTypeInternal
	}
}

// writeJSON encodes v with status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err in the error envelope. Internal and store errors
// keep their cause out of the response body.
func writeError(w http.ResponseWriter, err error) int {
	status, code := classify(err)
	msg := err.Error()
	switch code {
	case CodeInternal:
		msg = "internal error"
	case CodeStoreUnavailable:
		msg = "the data store is unavailable, retry later"
	}
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: msg}})
	return status
}

func writeErrorCode(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: msg}})
}
