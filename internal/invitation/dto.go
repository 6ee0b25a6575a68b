package invitation

import (
	"errors"
	"strings"

	"github.com/clinicore/clinic-booking/internal/user"
)

type IssueInvitationDTO struct {
	Email          string   `json:"email"`
	Role           string   `json:"role"`
	OrganizationID string   `json:"organization_id"`
	LocationIDs    []string `json:"location_ids"`
}

func (dto IssueInvitationDTO) Validate() error {
	if strings.TrimSpace(dto.Email) == "" || !strings.Contains(dto.Email, "@") {
		return errors.New("a valid email is required")
	}
	role := user.Role(dto.Role)
	if !role.Valid() || !role.IsStaff() {
		return errors.New("role must be a staff role")
	}
	if strings.TrimSpace(dto.OrganizationID) == "" {
		return errors.New("organization_id is required")
	}
	if role != user.RoleSuperAdmin && dto.LocationIDs == nil {
		return errors.New("location_ids is required for non-super-admin roles")
	}
	return nil
}

// IssueResponse carries the cleartext token exactly once.
type IssueResponse struct {
	Invitation *Invitation `json:"invitation"`
	Token      string      `json:"token"`
}
