package authz

import (
	"github.com/clinicore/clinic-booking/internal/user"
)

// Matrix is the static role-permission table. It is plain configuration:
// seeded at construction, never mutated at runtime.
type Matrix map[user.Role]map[Permission]Grant

// Lookup returns the grant for a role-permission pair.
func (m Matrix) Lookup(role user.Role, perm Permission) (Grant, bool) {
	perms, ok := m[role]
	if !ok {
		return Grant{}, false
	}
	g, ok := perms[perm]
	return g, ok
}

// DefaultMatrix returns the platform's role-permission table.
//
// Administrative roles carry appointment entries marked ViewOnly so a denied
// mutation names the view-only rule rather than a missing grant; the
// evaluator enforces the ban itself and never honors those entries for
// mutation.
func DefaultMatrix() Matrix {
	return Matrix{
		user.RoleSuperAdmin: {
			PermAppointmentsView:     {Scope: ScopeOrganization},
			PermAppointmentsCreate:   {Scope: ScopeOrganization, ViewOnly: true},
			PermAppointmentsUpdate:   {Scope: ScopeOrganization, ViewOnly: true},
			PermAppointmentsAccept:   {Scope: ScopeOrganization, ViewOnly: true},
			PermAppointmentsComplete: {Scope: ScopeOrganization, ViewOnly: true},
			PermAppointmentsCancel:   {Scope: ScopeOrganization, ViewOnly: true},
			PermAppointmentsDelete:   {Scope: ScopeOrganization, ViewOnly: true},
			PermLocationsView:        {Scope: ScopeOrganization},
			PermLocationsManage:      {Scope: ScopeOrganization},
			PermDoctorsView:          {Scope: ScopeOrganization},
			PermDoctorsManage:        {Scope: ScopeOrganization},
			PermOrganizationsManage:  {Scope: ScopeOrganization},
			PermUsersInvite:          {Scope: ScopeOrganization},
			PermAuditView:            {Scope: ScopeOrganization},
		},
		user.RoleLocationAdmin: {
			PermAppointmentsView:     {Scope: ScopeLocation},
			PermAppointmentsCreate:   {Scope: ScopeLocation, ViewOnly: true},
			PermAppointmentsUpdate:   {Scope: ScopeLocation, ViewOnly: true},
			PermAppointmentsAccept:   {Scope: ScopeLocation, ViewOnly: true},
			PermAppointmentsComplete: {Scope: ScopeLocation, ViewOnly: true},
			PermAppointmentsCancel:   {Scope: ScopeLocation, ViewOnly: true},
			PermAppointmentsDelete:   {Scope: ScopeLocation, ViewOnly: true},
			PermLocationsView:        {Scope: ScopeLocation},
			PermLocationsManage:      {Scope: ScopeLocation, OwnLocationOnly: true},
			PermDoctorsView:          {Scope: ScopeLocation},
			PermDoctorsManage:        {Scope: ScopeLocation},
			PermUsersInvite:          {Scope: ScopeLocation},
		},
		user.RoleReceptionist: {
			PermAppointmentsView:   {Scope: ScopeLocation},
			PermAppointmentsCreate: {Scope: ScopeLocation},
			PermAppointmentsUpdate: {Scope: ScopeLocation},
			PermAppointmentsAccept: {Scope: ScopeLocation},
			PermAppointmentsCancel: {Scope: ScopeLocation},
			PermAppointmentsDelete: {Scope: ScopeLocation},
			PermDoctorsView:        {Scope: ScopeLocation},
			PermLocationsView:      {Scope: ScopeLocation},
		},
		user.RoleDoctor: {
			PermAppointmentsView: {Scope: ScopeLocation},
			// Doctors mutate only appointments that resolve to their own
			// profile; intentionally different from the admin blanket ban.
			PermAppointmentsAccept:   {Scope: ScopeLocation, OwnAppointmentsOnly: true},
			PermAppointmentsUpdate:   {Scope: ScopeLocation, OwnAppointmentsOnly: true},
			PermAppointmentsComplete: {Scope: ScopeLocation, OwnAppointmentsOnly: true},
			PermDoctorsView:          {Scope: ScopeLocation},
			PermLocationsView:        {Scope: ScopeLocation},
		},
		user.RoleAssistant: {
			PermAppointmentsView:   {Scope: ScopeLocation},
			PermAppointmentsCreate: {Scope: ScopeLocation},
			PermDoctorsView:        {Scope: ScopeLocation},
			PermLocationsView:      {Scope: ScopeLocation},
		},
		user.RolePatient: {
			PermAppointmentsView:   {Scope: ScopeSelf},
			PermAppointmentsCreate: {Scope: ScopePublic},
			PermAppointmentsCancel: {Scope: ScopeSelf},
			PermDoctorsView:        {Scope: ScopePublic},
			PermLocationsView:      {Scope: ScopePublic},
		},
	}
}
