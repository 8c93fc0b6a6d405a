package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/campusmess/messhall/internal/app/core"
)

// Error codes carried in response bodies.
const (
	codeNotFound     = "not_found"
	codeConflict     = "conflict"
	codeInvalidState = "invalid_state"
	codeForbidden    = "forbidden"
	codeValidation   = "validation_failed"
	codeUnavailable  = "unavailable"
	codeUnauthorized = "unauthorized"
	codeRateLimited  = "rate_limited"
	codeInternal     = "internal"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// classify maps a service error onto a status, code and client-safe message.
// Unavailable and unclassified errors never expose their cause.
func classify(err error) (int, errorDetail) {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, errorDetail{Code: codeValidation, Message: "validation failed", Fields: verr.Fields}
	case core.IsNotFound(err):
		return http.StatusNotFound, errorDetail{Code: codeNotFound, Message: err.Error()}
	case core.IsConflict(err):
		return http.StatusConflict, errorDetail{Code: codeConflict, Message: err.Error()}
	case core.IsInvalidState(err):
		return http.StatusUnprocessableEntity, errorDetail{Code: codeInvalidState, Message: err.Error()}
	case core.IsForbidden(err):
		return http.StatusForbidden, errorDetail{Code: codeForbidden, Message: err.Error()}
	case core.IsUnauthorized(err):
		return http.StatusUnauthorized, errorDetail{Code: codeUnauthorized, Message: err.Error()}
	case core.IsUnavailable(err):
		return http.StatusServiceUnavailable, errorDetail{Code: codeUnavailable, Message: "service temporarily unavailable, retry later"}
	default:
		return http.StatusInternalServerError, errorDetail{Code: codeInternal, Message: "internal server error"}
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeStatus(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}
