package admin

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantguard/pkg/apperrors"
	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
)

// Dispatch decodes body for the named action and runs it. A body that does
// not decode is still audited for mutating actions.
func (s *Service) Dispatch(ctx context.Context, caller Caller, action string, body []byte) Envelope {
	switch action {
	case ActionList:
		var req ListRequest
		return dispatch(ctx, s, caller, action, body, &req, func() Envelope { return s.List(ctx, caller, req) })
	case ActionAddUser:
		var req AddUserRequest
		return dispatch(ctx, s, caller, action, body, &req, func() Envelope { return s.AddUser(ctx, caller, req) })
	case ActionUpdateProfile:
		var req UpdateProfileRequest
		return dispatch(ctx, s, caller, action, body, &req, func() Envelope { return s.UpdateProfile(ctx, caller, req) })
	case ActionSetStatus:
		var req SetStatusRequest
		return dispatch(ctx, s, caller, action, body, &req, func() Envelope { return s.SetStatus(ctx, caller, req) })
	case ActionSetRole:
		var req SetRoleRequest
		return dispatch(ctx, s, caller, action, body, &req, func() Envelope { return s.SetRole(ctx, caller, req) })
	case ActionSetCompany:
		var req SetCompanyRequest
		return dispatch(ctx, s, caller, action, body, &req, func() Envelope { return s.SetCompany(ctx, caller, req) })
	case ActionSetLicense:
		var req SetLicenseRequest
		return dispatch(ctx, s, caller, action, body, &req, func() Envelope { return s.SetLicense(ctx, caller, req) })
	case ActionRemoveUser:
		var req RemoveUserRequest
		return dispatch(ctx, s, caller, action, body, &req, func() Envelope { return s.RemoveUser(ctx, caller, req) })
	}
	return httputil.Fail(apperrors.NotFound("unknown action %q", action))
}

func dispatch(ctx context.Context, s *Service, caller Caller, action string, body []byte, dest interface{}, run func() Envelope) Envelope {
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}
	if err := httputil.DecodeJSON(bytes.NewReader(body), dest); err != nil {
		return s.Reject(ctx, caller, action, err)
	}
	return run()
}

// Reject fails action before its request could be decoded. Mutating
// actions are audited like any other failure, and an unauthenticated
// caller is reported as such instead of err.
func (s *Service) Reject(ctx context.Context, caller Caller, action string, err error) Envelope {
	if !known(action) {
		return httputil.Fail(apperrors.NotFound("unknown action %q", action))
	}
	c := s.start(ctx, action, caller)
	if authErr := c.authenticate(); authErr != nil {
		err = authErr
	}
	return c.finish("", nil, err)
}

// Handlers serves the actions over HTTP
type Handlers struct {
	service *Service
}

// NewHandlers creates the HTTP surface for s
func NewHandlers(s *Service) *Handlers {
	return &Handlers{service: s}
}

// RegisterRoutes registers POST /v1/admin/{action}
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/v1/admin/{action}", h.Handle).Methods(http.MethodPost)
}

// Handle runs the action named in the path. The caller comes from the
// authentication middleware, which must run in deferred mode so failed
// authentication still reaches the audit log.
func (h *Handlers) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	action, err := httputil.ParsePathString(r, "action")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	caller := Caller{
		AuthErr:   contextkeys.GetAuthError(ctx),
		RequestID: contextkeys.GetRequestID(ctx),
	}
	if id, ok := contextkeys.GetPrincipalID(ctx); ok {
		caller.PrincipalID = id
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		readErr := apperrors.Validation("failed to read request body")
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			readErr = apperrors.Validation("request body too large")
		}
		_ = httputil.WriteEnvelope(w, h.service.Reject(ctx, caller, action, readErr))
		return
	}

	_ = httputil.WriteEnvelope(w, h.service.Dispatch(ctx, caller, action, body))
}
