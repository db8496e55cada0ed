// Package admin implements the tenant administration actions: list,
// add_user, update_profile, set_status, set_role, set_company, set_license
// and remove_user.
//
// Each action takes an explicit Caller and a request struct validated with
// go-playground/validator, and returns an Envelope:
//
//	{"success": false, "reason": "insufficient permissions"}
//
// The caller's standing is loaded fresh from the membership store for the
// tenant the action targets. Mutating actions write exactly one audit entry
// whether they succeed or fail, including failed authentication.
//
// Over HTTP the actions are served as POST /v1/admin/{action}:
//
//	router := mux.NewRouter()
//	admin.NewHandlers(service).RegisterRoutes(router)
package admin
