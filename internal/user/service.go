package user

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-booking/internal"
)

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
}

// PasswordHasher is satisfied by the auth service.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
}

// StaffGrant is what a redeemed invitation entitles the new account to.
// A nil LocationIDs slice means an unrestricted assignment, which only
// SUPER_ADMIN invitations carry.
type StaffGrant struct {
	Role           string
	Email          string
	OrganizationID string
	LocationIDs    []string
}

// InvitationRedeemer is satisfied by the invitation service. Role and
// location set for new staff come only from a validated, unexpired,
// unused token.
type InvitationRedeemer interface {
	Redeem(ctx context.Context, token string) (*StaffGrant, error)
}

type Service struct {
	repo        Repository
	hasher      PasswordHasher
	invitations InvitationRedeemer
	logger      *slog.Logger
}

func NewService(repo Repository, hasher PasswordHasher, invitations InvitationRedeemer, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		hasher:      hasher,
		invitations: invitations,
		logger:      logger,
	}
}

func (s *Service) RegisterPatient(ctx context.Context, dto RegisterPatientDTO) (*User, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	hash, err := s.hasher.HashPassword(dto.Password)
	if err != nil {
		return nil, internal.NewInternalError("failed to hash password", err)
	}

	empty := StringList{}
	u := &User{
		ID:                  uuid.New(),
		Email:               dto.Email,
		Name:                dto.Name,
		PasswordHash:        hash,
		Role:                RolePatient,
		AssignedLocationIDs: &empty,
		IsActive:            true,
		CreatedAt:           time.Now(),
		UpdatedAt:           time.Now(),
	}

	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, internal.NewConflictError("email already registered", internal.ErrCodeDuplicateEmail)
		}
		s.logger.Error("failed to create patient account", "error", err, "email", dto.Email)
		return nil, internal.NewInternalError("failed to create user", err)
	}

	s.logger.Info("patient registered", "user_id", u.ID, "email", u.Email)
	return u, nil
}

// CreateStaffFromInvitation redeems a single-use invitation token and creates
// the staff account with the role and location set the token carries.
func (s *Service) CreateStaffFromInvitation(ctx context.Context, dto CreateStaffDTO) (*User, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	grant, err := s.invitations.Redeem(ctx, dto.Token)
	if err != nil {
		return nil, err
	}

	role := Role(grant.Role)
	if !role.Valid() || !role.IsStaff() {
		return nil, internal.NewValidationError("invitation carries an unknown staff role", internal.ErrCodeInvalidRole)
	}

	hash, err := s.hasher.HashPassword(dto.Password)
	if err != nil {
		return nil, internal.NewInternalError("failed to hash password", err)
	}

	// nil assignment list is reserved for SUPER_ADMIN; everyone else gets the
	// explicit (possibly empty) list from the token.
	var assigned *StringList
	if role != RoleSuperAdmin || grant.LocationIDs != nil {
		list := StringList(grant.LocationIDs)
		if list == nil {
			list = StringList{}
		}
		assigned = &list
	}

	orgID, err := uuid.Parse(grant.OrganizationID)
	if err != nil {
		return nil, internal.NewValidationError("invitation carries an invalid organization id", internal.ErrCodeValidationFailed)
	}

	u := &User{
		ID:                  uuid.New(),
		Email:               grant.Email,
		Name:                dto.Name,
		PasswordHash:        hash,
		Role:                role,
		OrganizationID:      &orgID,
		AssignedLocationIDs: assigned,
		IsActive:            true,
		CreatedAt:           time.Now(),
		UpdatedAt:           time.Now(),
	}

	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, internal.NewConflictError("email already registered", internal.ErrCodeDuplicateEmail)
		}
		s.logger.Error("failed to create staff account", "error", err, "email", grant.Email)
		return nil, internal.NewInternalError("failed to create user", err)
	}

	s.logger.Info("staff account created from invitation",
		"user_id", u.ID,
		"email", u.Email,
		"role", u.Role,
		"locations", grant.LocationIDs)

	return u, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, internal.NewNotFoundError("user not found", internal.ErrCodeUserNotFound)
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, internal.NewNotFoundError("user not found", internal.ErrCodeUserNotFound)
		}
		return nil, err
	}
	return u, nil
}
