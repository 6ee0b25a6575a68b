package authz

import (
	"context"
	"errors"
	"strings"
)

// Permission is a named capability in "resource:action" form.
type Permission string

const (
	PermAppointmentsView     Permission = "appointments:view"
	PermAppointmentsCreate   Permission = "appointments:create"
	PermAppointmentsUpdate   Permission = "appointments:update"
	PermAppointmentsAccept   Permission = "appointments:accept"
	PermAppointmentsComplete Permission = "appointments:complete"
	PermAppointmentsCancel   Permission = "appointments:cancel"
	PermAppointmentsDelete   Permission = "appointments:delete"

	PermLocationsView   Permission = "locations:view"
	PermLocationsManage Permission = "locations:manage"

	PermDoctorsView   Permission = "doctors:view"
	PermDoctorsManage Permission = "doctors:manage"

	PermOrganizationsManage Permission = "organizations:manage"
	PermUsersInvite         Permission = "users:invite"
	PermAuditView           Permission = "audit:view"
)

const appointmentsPrefix = "appointments:"

// IsAppointmentMutation reports whether the permission mutates appointment
// state. Everything under appointments: except plain view counts.
func (p Permission) IsAppointmentMutation() bool {
	return strings.HasPrefix(string(p), appointmentsPrefix) && p != PermAppointmentsView
}

func (p Permission) Resource() string {
	if i := strings.Index(string(p), ":"); i > 0 {
		return string(p)[:i]
	}
	return string(p)
}

// Scope is the breadth at which a permission grant applies.
type Scope string

const (
	ScopeGlobal       Scope = "global"
	ScopeOrganization Scope = "organization"
	ScopeLocation     Scope = "location"
	ScopeSelf         Scope = "self"
	ScopePublic       Scope = "public"
)

// Grant is one cell of the role-permission matrix: a scope plus optional
// constraint flags.
type Grant struct {
	Scope Scope

	// ViewOnly marks grants that exist so the evaluator can name the
	// admin view-only rule as the denial reason instead of a plain
	// missing-permission miss.
	ViewOnly bool

	// OwnAppointmentsOnly restricts the grant to appointments whose doctor
	// resolves from the caller's own email.
	OwnAppointmentsOnly bool

	// OwnLocationOnly restricts the grant to locations in the caller's
	// assigned list.
	OwnLocationOnly bool
}

// Decision is the evaluator's verdict. Reason is always specific and
// human-readable on denial.
type Decision struct {
	Allowed bool
	Reason  string
	Scope   Scope
}

// Request carries the resource context a permission is evaluated against.
type Request struct {
	// ResourceID identifies the specific resource acted on, when there is
	// one: an appointment id for appointment mutations, a location id for
	// own-location-constrained grants.
	ResourceID string

	// LocationID scopes the request to a branch. Empty means a list-style
	// request where a non-empty accessible set suffices.
	LocationID string

	// OrganizationID defaults to the caller's own organization when empty.
	OrganizationID string
}

var (
	// ErrDirectoryUnavailable wraps storage faults from the read-only
	// lookups the evaluator consults. It is a system fault, not a denial.
	ErrDirectoryUnavailable = errors.New("authorization directory unavailable")
)

// DoctorDirectory resolves doctor profiles for ownership checks.
type DoctorDirectory interface {
	DoctorIDByEmail(ctx context.Context, email string) (string, bool, error)
}

// AppointmentDirectory resolves the owning doctor of an appointment.
type AppointmentDirectory interface {
	AppointmentDoctorID(ctx context.Context, appointmentID string) (string, bool, error)
}

// LocationDirectory lists the active locations of an organization. The
// resolver queries it live so newly created locations are visible
// immediately.
type LocationDirectory interface {
	ActiveLocationIDs(ctx context.Context, organizationID string) ([]string, error)
}
