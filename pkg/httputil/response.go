// Package httputil provides HTTP handler utilities for consistent envelopes,
// JSON encoding/decoding, and request middleware.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/platinummonkey/tenantguard/pkg/apperrors"
)

// Envelope is the response shape of every action
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Reason  string      `json:"reason,omitempty"`
	Data    interface{} `json:"data,omitempty"`

	// Kind selects the HTTP status and is not serialized
	Kind apperrors.Kind `json:"-"`
}

// OK builds a successful envelope
func OK(message string, data interface{}) Envelope {
	return Envelope{Success: true, Message: message, Data: data}
}

// Fail builds a failed envelope from err. Unexpected errors carry only the
// generic message.
func Fail(err error) Envelope {
	kind := apperrors.KindOf(err)
	if kind == "" {
		kind = apperrors.KindUnexpected
	}
	return Envelope{Success: false, Reason: apperrors.ReasonOf(err), Kind: kind}
}

// Status returns the HTTP status mirroring the envelope's error kind
func (e Envelope) Status() int {
	if e.Success {
		return http.StatusOK
	}
	return apperrors.HTTPStatus(e.Kind)
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteEnvelope writes env with the status its kind maps to
func WriteEnvelope(w http.ResponseWriter, env Envelope) error {
	return WriteJSON(w, env.Status(), env)
}

// WriteError writes a failed envelope for err
func WriteError(w http.ResponseWriter, err error) {
	_ = WriteEnvelope(w, Fail(err))
}

// WriteFailure writes a failed envelope with an explicit status and reason
func WriteFailure(w http.ResponseWriter, status int, reason string) {
	_ = WriteJSON(w, status, Envelope{Success: false, Reason: reason})
}
