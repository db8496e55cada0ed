package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantguard/pkg/apperrors"
)

// DecodeJSON decodes a single JSON object from body into dest. Unknown
// fields and trailing data are rejected. Failures are validation errors.
func DecodeJSON(body io.Reader, dest interface{}) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.Validation("request body is required")
		}
		return &apperrors.Error{Kind: apperrors.KindValidation, Reason: fmt.Sprintf("invalid JSON: %v", err), Err: err}
	}
	if dec.More() {
		return apperrors.Validation("invalid JSON: unexpected trailing data")
	}
	return nil
}

// ParsePathString extracts a string path parameter
func ParsePathString(r *http.Request, key string) (string, error) {
	str := mux.Vars(r)[key]
	if str == "" {
		return "", apperrors.Validation("missing path parameter: %s", key)
	}
	return str, nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", apperrors.Authentication("missing bearer token")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", apperrors.Authentication("invalid authorization header format")
	}
	return strings.TrimSpace(token), nil
}
