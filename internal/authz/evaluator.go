package authz

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/clinicore/clinic-booking/internal/audit"
	"github.com/clinicore/clinic-booking/internal/user"
)

// Denial reasons surfaced to callers. These are part of the API surface:
// clients and tests match on them.
const (
	ReasonRoleLacksPermission = "role lacks permission"
	ReasonAdminViewOnly       = "admin roles have view-only access to appointments"
	ReasonNoAccessibleLoc     = "no accessible locations for this role"
	ReasonLocationOutOfScope  = "location is outside the caller's accessible locations"
	ReasonWrongOrganization   = "operation is limited to the caller's own organization"
	ReasonNoDoctorProfile     = "no doctor profile found for this account"
	ReasonNotOwnAppointment   = "doctors may only modify their own appointments"
	ReasonNotAssignedLocation = "location is not among the caller's assigned locations"
)

// Evaluator is the single permission-evaluation entry point. Every call site
// that previously would have wrapped a handler in a role or location check
// invokes Evaluate explicitly instead.
type Evaluator struct {
	matrix       Matrix
	resolver     *LocationResolver
	doctors      DoctorDirectory
	appointments AppointmentDirectory
	sink         audit.Sink
	logger       *slog.Logger
}

func NewEvaluator(matrix Matrix, resolver *LocationResolver, doctors DoctorDirectory, appointments AppointmentDirectory, sink audit.Sink, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		matrix:       matrix,
		resolver:     resolver,
		doctors:      doctors,
		appointments: appointments,
		sink:         sink,
		logger:       logger,
	}
}

// Evaluate decides whether u may exercise perm against the given request
// context. Denials carry a specific reason; every denial except a plain
// matrix miss is audited at warning severity. A returned error is a system
// fault (directory unavailable), not a denial.
func (e *Evaluator) Evaluate(ctx context.Context, u *user.User, perm Permission, req Request) (Decision, error) {
	if u == nil {
		return Decision{Allowed: false, Reason: ReasonRoleLacksPermission}, nil
	}

	grant, ok := e.matrix.Lookup(u.Role, perm)
	if !ok {
		// Configuration-level miss, not a security event: no audit write.
		return Decision{Allowed: false, Reason: ReasonRoleLacksPermission}, nil
	}

	// Hard rule, checked before any scope or ownership constraint and never
	// overridden by them: administrators may view but never mutate
	// appointments.
	if perm.IsAppointmentMutation() && u.Role.IsAdmin() {
		return e.deny(ctx, u, perm, req, grant.Scope, ReasonAdminViewOnly), nil
	}

	switch grant.Scope {
	case ScopeLocation:
		if req.LocationID != "" {
			ok, err := e.resolver.CanAccessLocation(ctx, u, req.LocationID)
			if err != nil {
				return Decision{}, err
			}
			if !ok {
				return e.deny(ctx, u, perm, req, grant.Scope, ReasonLocationOutOfScope), nil
			}
		} else {
			// List-style request: a non-empty accessible set suffices.
			ids, err := e.resolver.AccessibleLocations(ctx, u)
			if err != nil {
				return Decision{}, err
			}
			if len(ids) == 0 {
				return e.deny(ctx, u, perm, req, grant.Scope, ReasonNoAccessibleLoc), nil
			}
		}

	case ScopeOrganization:
		orgID := req.OrganizationID
		if orgID == "" && u.OrganizationID != nil {
			orgID = u.OrganizationID.String()
		}
		if u.OrganizationID == nil || u.OrganizationID.String() != orgID {
			return e.deny(ctx, u, perm, req, grant.Scope, ReasonWrongOrganization), nil
		}

		// Location-bound requests still resolve membership: an unrestricted
		// SUPER_ADMIN reaches every active location through the live lookup,
		// one with an explicit list is held to it.
		if req.LocationID != "" {
			ok, err := e.resolver.CanAccessLocation(ctx, u, req.LocationID)
			if err != nil {
				return Decision{}, err
			}
			if !ok {
				return e.deny(ctx, u, perm, req, grant.Scope, ReasonLocationOutOfScope), nil
			}
		}
	}

	if grant.OwnAppointmentsOnly {
		doctorID, found, err := e.doctors.DoctorIDByEmail(ctx, u.Email)
		if err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
		}
		if !found {
			return e.deny(ctx, u, perm, req, grant.Scope, ReasonNoDoctorProfile), nil
		}

		apptDoctorID, found, err := e.appointments.AppointmentDoctorID(ctx, req.ResourceID)
		if err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
		}
		if !found || apptDoctorID != doctorID {
			return e.deny(ctx, u, perm, req, grant.Scope, ReasonNotOwnAppointment), nil
		}
	}

	if grant.OwnLocationOnly {
		if !user.StringList(u.AssignedLocations()).Contains(req.ResourceID) {
			return e.deny(ctx, u, perm, req, grant.Scope, ReasonNotAssignedLocation), nil
		}
	}

	return Decision{Allowed: true, Scope: grant.Scope}, nil
}

func (e *Evaluator) deny(ctx context.Context, u *user.User, perm Permission, req Request, scope Scope, reason string) Decision {
	e.logger.Warn("permission denied",
		"user_id", u.ID,
		"role", u.Role,
		"permission", perm,
		"location_id", req.LocationID,
		"resource_id", req.ResourceID,
		"reason", reason)

	e.sink.Record(ctx, audit.Entry{
		ActorID:    u.ID.String(),
		ActorEmail: u.Email,
		ActorRole:  string(u.Role),
		Action:     string(perm),
		Resource:   perm.Resource(),
		ResourceID: req.ResourceID,
		Outcome:    audit.OutcomeDenied,
		Reason:     reason,
		Severity:   audit.SeverityWarning,
	})

	return Decision{Allowed: false, Reason: reason, Scope: scope}
}
