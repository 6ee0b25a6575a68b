package user

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of roles the platform knows about. An unknown role
// string never silently evaluates to "no permissions"; it fails Validate at
// the boundary instead.
type Role string

const (
	RoleSuperAdmin    Role = "SUPER_ADMIN"
	RoleLocationAdmin Role = "LOCATION_ADMIN"
	RoleReceptionist  Role = "RECEPTIONIST"
	RoleDoctor        Role = "DOCTOR"
	RoleAssistant     Role = "ASSISTANT"
	RolePatient       Role = "PATIENT"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleLocationAdmin, RoleReceptionist, RoleDoctor, RoleAssistant, RolePatient:
		return true
	}
	return false
}

// IsAdmin reports whether the role is one of the administrative roles that
// hold view-only access to appointments.
func (r Role) IsAdmin() bool {
	return r == RoleSuperAdmin || r == RoleLocationAdmin
}

func (r Role) IsStaff() bool {
	switch r {
	case RoleSuperAdmin, RoleLocationAdmin, RoleReceptionist, RoleDoctor, RoleAssistant:
		return true
	}
	return false
}

// StringList stores a list of IDs as a JSON column. The distinction between a
// nil pointer and an empty list is load-bearing for assigned locations: nil
// means "unrestricted within the organization" and is legal only for
// SUPER_ADMIN, an empty list means no location-scoped access at all.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	}
	return fmt.Errorf("unsupported type %T for StringList", value)
}

func (l StringList) Contains(id string) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

type User struct {
	ID                  uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	Email               string      `json:"email" gorm:"uniqueIndex;not null"`
	Name                string      `json:"name"`
	PasswordHash        string      `json:"-" gorm:"column:password_hash"`
	Role                Role        `json:"role" gorm:"not null"`
	OrganizationID      *uuid.UUID  `json:"organization_id,omitempty" gorm:"type:uuid"`
	AssignedLocationIDs *StringList `json:"assigned_location_ids" gorm:"column:assigned_location_ids;type:jsonb"`
	IsActive            bool        `json:"is_active" gorm:"default:true"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// AssignedLocations returns the explicit assignment list, treating nil as
// empty. Callers that care about the SUPER_ADMIN "nil means all" semantics
// must check UnrestrictedLocations first.
func (u *User) AssignedLocations() []string {
	if u.AssignedLocationIDs == nil {
		return nil
	}
	return *u.AssignedLocationIDs
}

// UnrestrictedLocations reports whether the user may act in every active
// location of their organization. Only SUPER_ADMIN with no explicit list
// qualifies; for any other role a missing list means zero access.
func (u *User) UnrestrictedLocations() bool {
	return u.Role == RoleSuperAdmin && u.AssignedLocationIDs == nil
}

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

type ctxKey string

const contextUserKey ctxKey = "authenticated_user"

func WithContext(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, contextUserKey, u)
}

func FromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(contextUserKey).(*User)
	return u, ok
}
