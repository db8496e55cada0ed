package admin

import (
	"context"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/tenantguard/pkg/apperrors"
	"github.com/platinummonkey/tenantguard/pkg/assignment"
	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/catalog"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/orgs"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

// Seats is the part of the assignment guard the actions use
type Seats interface {
	AssignSeat(ctx context.Context, req assignment.SeatRequest) (*assignment.Result, error)
	ReleaseSeat(ctx context.Context, orgID, principalID int64) (*assignment.Result, error)
}

// Auditor records one entry per mutating action and never fails
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Observer receives action and decision outcomes, typically for metrics
type Observer interface {
	ObserveAction(action string, success bool)
	ObserveDecision(check string, allowed bool)
}

type nopObserver struct{}

func (nopObserver) ObserveAction(string, bool)   {}
func (nopObserver) ObserveDecision(string, bool) {}

var _ Observer = (*observability.Metrics)(nil)

// Service runs the administrative actions. Every call re-reads the caller's
// standing in the target tenant; nothing is cached between calls.
type Service struct {
	members  orgs.Service
	resolver *rbac.Resolver
	seats    Seats
	auditor  Auditor
	observer Observer
	diag     *logrus.Logger
	validate *validator.Validate
}

// Option configures a Service
type Option func(*Service)

// WithObserver reports outcomes to o
func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithDiagnostics sends the full detail of unexpected errors to diag
func WithDiagnostics(diag *logrus.Logger) Option {
	return func(s *Service) {
		s.diag = diag
	}
}

// NewService creates the admin action service
func NewService(members orgs.Service, resolver *rbac.Resolver, seats Seats, auditor Auditor, opts ...Option) *Service {
	s := &Service{
		members:  members,
		resolver: resolver,
		seats:    seats,
		auditor:  auditor,
		observer: nopObserver{},
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// call carries one action invocation through tracing, metrics and audit
type call struct {
	s          *Service
	ctx        context.Context
	span       trace.Span
	action     string
	caller     Caller
	tenantID   *int64
	resourceID string
	details    map[string]interface{}
}

func (s *Service) start(ctx context.Context, action string, c Caller) *call {
	ctx, span := observability.Tracer().Start(ctx, "admin."+action,
		trace.WithAttributes(attribute.String("admin.action", action)))
	if c.PrincipalID > 0 {
		span.SetAttributes(attribute.Int64("admin.caller_id", c.PrincipalID))
	}
	return &call{s: s, ctx: ctx, span: span, action: action, caller: c, details: map[string]interface{}{}}
}

func (c *call) tenant(id int64) {
	c.tenantID = &id
	c.span.SetAttributes(attribute.Int64("admin.tenant_id", id))
}

// authenticate fails unless the middleware resolved a principal
func (c *call) authenticate() error {
	if c.caller.PrincipalID > 0 {
		return nil
	}
	if c.caller.AuthErr != nil {
		return c.caller.AuthErr
	}
	return apperrors.Authentication("authentication required")
}

// admin loads the caller as seen from the target's tenant and requires
// standing over the target
func (c *call) admin(target rbac.AccessContext) (*rbac.Principal, error) {
	p, err := c.principal(*target.OrganizationID)
	if err != nil {
		return nil, err
	}
	if err := c.standing(p, target); err != nil {
		return nil, err
	}
	return p, nil
}

// standing requires edit access to the target user record plus manage_users
func (c *call) standing(p *rbac.Principal, target rbac.AccessContext) error {
	if err := c.decide("edit_users", c.s.resolver.CanEdit(p, string(catalog.ResourceUsers), &target)); err != nil {
		return err
	}
	return c.decide("manage_users", c.s.resolver.HasPermission(p, catalog.PermManageUsers))
}

func (c *call) principal(tenantID int64) (*rbac.Principal, error) {
	c.tenant(tenantID)
	return c.s.members.LoadPrincipal(c.ctx, c.caller.PrincipalID, tenantID)
}

func (c *call) decide(check string, d rbac.Decision) error {
	c.s.observer.ObserveDecision(check, d.Allowed)
	if !d.Allowed {
		return apperrors.Authorization("%s", d.Reason)
	}
	return nil
}

// finish turns the outcome into an envelope and records it
func (c *call) finish(message string, data interface{}, err error) Envelope {
	defer c.span.End()

	env := httputil.OK(message, data)
	if err != nil {
		env = httputil.Fail(err)
		c.span.SetStatus(codes.Error, env.Reason)
		c.span.RecordError(err)
		log := observability.WithTraceContext(c.ctx, observability.FromContext(c.ctx)).
			WithField("action", c.action).
			WithError(err)
		if env.Kind == apperrors.KindUnexpected || env.Kind == apperrors.KindConfiguration {
			log.Error("admin action failed")
			c.diagnose(err)
		} else {
			log.Debug("admin action rejected")
		}
	}
	c.s.observer.ObserveAction(c.action, env.Success)

	if mutating(c.action) {
		c.record(env)
	}
	return env
}

func (c *call) diagnose(err error) {
	if c.s.diag == nil {
		return
	}
	fields := logrus.Fields{
		"action":     c.action,
		"request_id": c.caller.RequestID,
		"kind":       apperrors.KindOf(err),
	}
	if c.caller.PrincipalID > 0 {
		fields["actor_id"] = c.caller.PrincipalID
	}
	if c.tenantID != nil {
		fields["organization_id"] = *c.tenantID
	}
	c.s.diag.WithFields(fields).WithError(err).Error("admin action error")
}

func (c *call) record(env Envelope) {
	entry := audit.Entry{
		OrganizationID: c.tenantID,
		Action:         c.action,
		Resource:       string(catalog.ResourceUsers),
		ResourceID:     c.resourceID,
		Result:         audit.ResultSuccess,
		RequestID:      c.caller.RequestID,
	}
	if c.caller.PrincipalID > 0 {
		actor := c.caller.PrincipalID
		entry.ActorID = &actor
	}
	if len(c.details) > 0 {
		entry.Details = c.details
	}
	if !env.Success {
		entry.Result = audit.ResultFailure
		entry.Reason = env.Reason
	}
	c.s.auditor.Record(c.ctx, entry)
}

// tenantTarget addresses any user record of a tenant
func tenantTarget(tenantID int64) rbac.AccessContext {
	return rbac.AccessContext{OrganizationID: &tenantID}
}

// memberTarget addresses one member's user record
func memberTarget(m *orgs.Membership) rbac.AccessContext {
	orgID, ownerID := m.OrganizationID, m.PrincipalID
	return rbac.AccessContext{OrganizationID: &orgID, DepartmentID: m.DepartmentID, OwnerID: &ownerID}
}

func idString(id int64) string {
	if id <= 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
