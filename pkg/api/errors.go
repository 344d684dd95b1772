package api

import (
	"encoding/json"
	"net/http"

	"github.com/kylo-io/hadoop-authz/pkg/authz"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error     string     `json:"error"`
	Kind      authz.Kind `json:"kind,omitempty"`
	Retryable bool       `json:"retryable"`
}

// statusFor maps an error kind to an HTTP status code.
func statusFor(err error) int {
	switch authz.KindOf(err) {
	case authz.KindInvalidArgument:
		return http.StatusBadRequest
	case authz.KindNotFound:
		return http.StatusNotFound
	case authz.KindNameCollision:
		return http.StatusConflict
	case authz.KindNotSupported:
		return http.StatusNotImplemented
	case authz.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	case authz.KindStoreRejected, authz.KindPartialApply:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes err with the status derived from its kind.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{
		Error:     err.Error(),
		Kind:      authz.KindOf(err),
		Retryable: authz.Retryable(err),
	})
}

// writeMessage writes a plain error message with an explicit status.
func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
