package user

import (
	"errors"
	"strings"
)

// RegisterPatientDTO is the self-service registration payload. Staff accounts
// are never created through this path; they come from redeemed invitations.
type RegisterPatientDTO struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (dto RegisterPatientDTO) Validate() error {
	if strings.TrimSpace(dto.Email) == "" || !strings.Contains(dto.Email, "@") {
		return errors.New("a valid email is required")
	}
	if strings.TrimSpace(dto.Name) == "" {
		return errors.New("name is required")
	}
	if len(dto.Password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}

// CreateStaffDTO carries the fields accepted when redeeming an invitation.
// Role and location set come from the validated token, never from the client.
type CreateStaffDTO struct {
	Token    string `json:"token"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (dto CreateStaffDTO) Validate() error {
	if strings.TrimSpace(dto.Token) == "" {
		return errors.New("invitation token is required")
	}
	if strings.TrimSpace(dto.Name) == "" {
		return errors.New("name is required")
	}
	if len(dto.Password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}

type UserResponse struct {
	ID                  string   `json:"id"`
	Email               string   `json:"email"`
	Name                string   `json:"name"`
	Role                Role     `json:"role"`
	OrganizationID      string   `json:"organization_id,omitempty"`
	AssignedLocationIDs []string `json:"assigned_location_ids"`
	IsActive            bool     `json:"is_active"`
}

func ToResponse(u *User) UserResponse {
	resp := UserResponse{
		ID:       u.ID.String(),
		Email:    u.Email,
		Name:     u.Name,
		Role:     u.Role,
		IsActive: u.IsActive,
	}
	if u.OrganizationID != nil {
		resp.OrganizationID = u.OrganizationID.String()
	}
	if u.AssignedLocationIDs != nil {
		resp.AssignedLocationIDs = *u.AssignedLocationIDs
	}
	return resp
}
