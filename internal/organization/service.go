package organization

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-booking/internal"
	"github.com/clinicore/clinic-booking/internal/audit"
	"github.com/clinicore/clinic-booking/internal/authz"
	"github.com/clinicore/clinic-booking/internal/user"
)

type Repository interface {
	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error)
	CreateLocation(ctx context.Context, loc *Location) error
	GetLocation(ctx context.Context, id uuid.UUID) (*Location, error)
	UpdateLocation(ctx context.Context, loc *Location) error
	ListLocations(ctx context.Context, organizationID uuid.UUID) ([]*Location, error)
	ActiveLocationIDs(ctx context.Context, organizationID string) ([]string, error)
}

type PermissionEvaluator interface {
	Evaluate(ctx context.Context, u *user.User, perm authz.Permission, req authz.Request) (authz.Decision, error)
}

type Service struct {
	repo      Repository
	evaluator PermissionEvaluator
	sink      audit.Sink
	logger    *slog.Logger
}

func NewService(repo Repository, evaluator PermissionEvaluator, sink audit.Sink, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		evaluator: evaluator,
		sink:      sink,
		logger:    logger,
	}
}

// ActiveLocationIDs satisfies authz.LocationDirectory. The location-access
// resolver queries it live so a location created a moment ago is already
// accessible to its organization's super admins.
func (s *Service) ActiveLocationIDs(ctx context.Context, organizationID string) ([]string, error) {
	return s.repo.ActiveLocationIDs(ctx, organizationID)
}

func (s *Service) CreateOrganization(ctx context.Context, dto CreateOrganizationDTO) (*Organization, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	org := &Organization{
		ID:         uuid.New(),
		Name:       dto.Name,
		FiscalCode: dto.FiscalCode,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	if err := s.repo.CreateOrganization(ctx, org); err != nil {
		if errors.Is(err, ErrDuplicateFiscalCode) {
			return nil, internal.NewConflictError("an organization with this fiscal code already exists", internal.ErrCodeDuplicateFiscalCode)
		}
		s.logger.Error("failed to create organization", "error", err, "fiscal_code", dto.FiscalCode)
		return nil, internal.NewInternalError("failed to create organization", err)
	}

	s.logger.Info("organization created", "organization_id", org.ID, "name", org.Name)
	return org, nil
}

func (s *Service) GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error) {
	org, err := s.repo.GetOrganization(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrganizationNotFound) {
			return nil, internal.NewNotFoundError("organization not found", internal.ErrCodeOrganizationNotFound)
		}
		return nil, err
	}
	return org, nil
}

func (s *Service) CreateLocation(ctx context.Context, actor *user.User, organizationID uuid.UUID, dto CreateLocationDTO) (*Location, error) {
	decision, err := s.evaluator.Evaluate(ctx, actor, authz.PermLocationsManage, authz.Request{
		OrganizationID: organizationID.String(),
	})
	if err != nil {
		return nil, internal.NewInternalError("permission evaluation failed", err)
	}
	if !decision.Allowed {
		return nil, internal.NewForbiddenError(decision.Reason, internal.ErrCodePermissionDenied)
	}

	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	if _, err := s.repo.GetOrganization(ctx, organizationID); err != nil {
		if errors.Is(err, ErrOrganizationNotFound) {
			return nil, internal.NewNotFoundError("organization not found", internal.ErrCodeOrganizationNotFound)
		}
		return nil, err
	}

	loc := &Location{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		Name:           dto.Name,
		Address:        dto.Address,
		WorkingHours:   dto.WorkingHours,
		IsActive:       true,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}

	if err := s.repo.CreateLocation(ctx, loc); err != nil {
		s.logger.Error("failed to create location", "error", err, "organization_id", organizationID)
		return nil, internal.NewInternalError("failed to create location", err)
	}

	s.recordMutation(ctx, actor, "locations:manage", "location", loc.ID.String(), "location created")
	s.logger.Info("location created", "location_id", loc.ID, "organization_id", organizationID)
	return loc, nil
}

func (s *Service) UpdateWorkingHours(ctx context.Context, actor *user.User, locationID uuid.UUID, dto UpdateWorkingHoursDTO) (*Location, error) {
	decision, err := s.evaluator.Evaluate(ctx, actor, authz.PermLocationsManage, authz.Request{
		ResourceID: locationID.String(),
		LocationID: locationID.String(),
	})
	if err != nil {
		return nil, internal.NewInternalError("permission evaluation failed", err)
	}
	if !decision.Allowed {
		return nil, internal.NewForbiddenError(decision.Reason, internal.ErrCodePermissionDenied)
	}

	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	loc, err := s.repo.GetLocation(ctx, locationID)
	if err != nil {
		if errors.Is(err, ErrLocationNotFound) {
			return nil, internal.NewNotFoundError("location not found", internal.ErrCodeLocationNotFound)
		}
		return nil, err
	}

	loc.WorkingHours = dto.WorkingHours
	loc.UpdatedAt = time.Now()

	if err := s.repo.UpdateLocation(ctx, loc); err != nil {
		s.logger.Error("failed to update working hours", "error", err, "location_id", locationID)
		return nil, internal.NewInternalError("failed to update location", err)
	}

	s.recordMutation(ctx, actor, "locations:manage", "location", loc.ID.String(), "working hours updated")
	return loc, nil
}

// DeactivateLocation soft-deletes: appointments and doctors keep their
// references, the location just stops accepting activity.
func (s *Service) DeactivateLocation(ctx context.Context, actor *user.User, locationID uuid.UUID) error {
	decision, err := s.evaluator.Evaluate(ctx, actor, authz.PermLocationsManage, authz.Request{
		ResourceID: locationID.String(),
		LocationID: locationID.String(),
	})
	if err != nil {
		return internal.NewInternalError("permission evaluation failed", err)
	}
	if !decision.Allowed {
		return internal.NewForbiddenError(decision.Reason, internal.ErrCodePermissionDenied)
	}

	loc, err := s.repo.GetLocation(ctx, locationID)
	if err != nil {
		if errors.Is(err, ErrLocationNotFound) {
			return internal.NewNotFoundError("location not found", internal.ErrCodeLocationNotFound)
		}
		return err
	}

	loc.IsActive = false
	loc.UpdatedAt = time.Now()

	if err := s.repo.UpdateLocation(ctx, loc); err != nil {
		s.logger.Error("failed to deactivate location", "error", err, "location_id", locationID)
		return internal.NewInternalError("failed to deactivate location", err)
	}

	s.recordMutation(ctx, actor, "locations:manage", "location", loc.ID.String(), "location deactivated")
	return nil
}

func (s *Service) GetLocation(ctx context.Context, id uuid.UUID) (*Location, error) {
	loc, err := s.repo.GetLocation(ctx, id)
	if err != nil {
		if errors.Is(err, ErrLocationNotFound) {
			return nil, internal.NewNotFoundError("location not found", internal.ErrCodeLocationNotFound)
		}
		return nil, err
	}
	return loc, nil
}

func (s *Service) ListLocations(ctx context.Context, actor *user.User, organizationID uuid.UUID) ([]*Location, error) {
	decision, err := s.evaluator.Evaluate(ctx, actor, authz.PermLocationsView, authz.Request{
		OrganizationID: organizationID.String(),
	})
	if err != nil {
		return nil, internal.NewInternalError("permission evaluation failed", err)
	}
	if !decision.Allowed {
		return nil, internal.NewForbiddenError(decision.Reason, internal.ErrCodePermissionDenied)
	}

	return s.repo.ListLocations(ctx, organizationID)
}

func (s *Service) recordMutation(ctx context.Context, actor *user.User, action, resource, resourceID, reason string) {
	s.sink.Record(ctx, audit.Entry{
		ActorID:    actor.ID.String(),
		ActorEmail: actor.Email,
		ActorRole:  string(actor.Role),
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Outcome:    audit.OutcomeSuccess,
		Reason:     reason,
		Severity:   audit.SeverityInfo,
	})
}
