package doctor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-booking/internal"
	"github.com/clinicore/clinic-booking/internal/audit"
	"github.com/clinicore/clinic-booking/internal/authz"
	"github.com/clinicore/clinic-booking/internal/organization"
	"github.com/clinicore/clinic-booking/internal/user"
)

type Repository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetByEmail(ctx context.Context, email string) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	ListByLocation(ctx context.Context, locationID uuid.UUID) ([]*Doctor, error)
}

// LocationReader is the tenancy lookup the service needs from the
// organization package.
type LocationReader interface {
	GetLocation(ctx context.Context, id uuid.UUID) (*organization.Location, error)
}

type PermissionEvaluator interface {
	Evaluate(ctx context.Context, u *user.User, perm authz.Permission, req authz.Request) (authz.Decision, error)
}

type Service struct {
	repo      Repository
	locations LocationReader
	evaluator PermissionEvaluator
	sink      audit.Sink
	logger    *slog.Logger
}

func NewService(repo Repository, locations LocationReader, evaluator PermissionEvaluator, sink audit.Sink, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		locations: locations,
		evaluator: evaluator,
		sink:      sink,
		logger:    logger,
	}
}

// DoctorIDByEmail satisfies authz.DoctorDirectory for ownership checks.
func (s *Service) DoctorIDByEmail(ctx context.Context, email string) (string, bool, error) {
	d, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return d.ID.String(), true, nil
}

func (s *Service) CreateDoctor(ctx context.Context, actor *user.User, dto CreateDoctorDTO) (*Doctor, error) {
	decision, err := s.evaluator.Evaluate(ctx, actor, authz.PermDoctorsManage, authz.Request{
		LocationID: dto.LocationID,
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

	locationID, err := uuid.Parse(dto.LocationID)
	if err != nil {
		return nil, internal.NewValidationError("invalid location id", internal.ErrCodeValidationFailed)
	}

	loc, err := s.locations.GetLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if !loc.IsActive {
		return nil, internal.NewValidationError("location is not active", internal.ErrCodeLocationInactive)
	}

	// The schedule is constrained to the location's working hours at write
	// time; slivers that clamp to nothing are dropped here, not at read time.
	schedule := dto.Schedule
	if schedule == nil {
		schedule = Schedule{}
	}
	clamped, err := schedule.ClampToWorkingHours(loc.WorkingHours)
	if err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeInvalidSchedule)
	}

	d := &Doctor{
		ID:                   uuid.New(),
		Email:                dto.Email,
		OrganizationID:       loc.OrganizationID,
		LocationID:           locationID,
		Name:                 dto.Name,
		Specialty:            dto.Specialty,
		ConsultationDuration: dto.ConsultationDuration,
		Schedule:             clamped,
		IsActive:             true,
		CreatedAt:            time.Now(),
		UpdatedAt:            time.Now(),
	}

	if err := s.repo.Create(ctx, d); err != nil {
		s.logger.Error("failed to create doctor", "error", err, "email", dto.Email)
		return nil, internal.NewInternalError("failed to create doctor", err)
	}

	s.recordMutation(ctx, actor, "doctors:manage", d.ID.String(), "doctor profile created")
	s.logger.Info("doctor created", "doctor_id", d.ID, "location_id", locationID, "specialty", d.Specialty)
	return d, nil
}

func (s *Service) UpdateSchedule(ctx context.Context, actor *user.User, doctorID uuid.UUID, dto UpdateScheduleDTO) (*Doctor, error) {
	d, err := s.repo.GetByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, internal.NewNotFoundError("doctor not found", internal.ErrCodeDoctorNotFound)
		}
		return nil, err
	}

	decision, err := s.evaluator.Evaluate(ctx, actor, authz.PermDoctorsManage, authz.Request{
		ResourceID: doctorID.String(),
		LocationID: d.LocationID.String(),
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

	loc, err := s.locations.GetLocation(ctx, d.LocationID)
	if err != nil {
		return nil, err
	}

	clamped, err := dto.Schedule.ClampToWorkingHours(loc.WorkingHours)
	if err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeInvalidSchedule)
	}

	d.Schedule = clamped
	if dto.ConsultationDuration != 0 {
		d.ConsultationDuration = dto.ConsultationDuration
	}
	d.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, d); err != nil {
		s.logger.Error("failed to update doctor schedule", "error", err, "doctor_id", doctorID)
		return nil, internal.NewInternalError("failed to update doctor", err)
	}

	s.recordMutation(ctx, actor, "doctors:manage", d.ID.String(), "availability schedule updated")
	return d, nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, internal.NewNotFoundError("doctor not found", internal.ErrCodeDoctorNotFound)
		}
		return nil, err
	}
	return d, nil
}

func (s *Service) ListByLocation(ctx context.Context, locationID uuid.UUID) ([]*Doctor, error) {
	return s.repo.ListByLocation(ctx, locationID)
}

func (s *Service) recordMutation(ctx context.Context, actor *user.User, action, resourceID, reason string) {
	s.sink.Record(ctx, audit.Entry{
		ActorID:    actor.ID.String(),
		ActorEmail: actor.Email,
		ActorRole:  string(actor.Role),
		Action:     action,
		Resource:   "doctor",
		ResourceID: resourceID,
		Outcome:    audit.OutcomeSuccess,
		Reason:     reason,
		Severity:   audit.SeverityInfo,
	})
}
