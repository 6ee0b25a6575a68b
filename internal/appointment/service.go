package appointment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-booking/internal"
	"github.com/clinicore/clinic-booking/internal/audit"
	"github.com/clinicore/clinic-booking/internal/authz"
	"github.com/clinicore/clinic-booking/internal/core/events"
	"github.com/clinicore/clinic-booking/internal/doctor"
	"github.com/clinicore/clinic-booking/internal/organization"
	"github.com/clinicore/clinic-booking/internal/user"
)

type Repository interface {
	// CreateIfSlotFree inserts the appointment inside a transaction that
	// re-checks the slot, returning ErrSlotTaken on collision.
	CreateIfSlotFree(ctx context.Context, a *Appointment) error

	// MoveIfSlotFree updates date_time inside the same transactional
	// conflict check as CreateIfSlotFree.
	MoveIfSlotFree(ctx context.Context, a *Appointment, to time.Time) error

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// UpdateStatusCAS persists the appointment's status fields only when the
	// stored status still equals from, returning ErrStatusConflict otherwise.
	UpdateStatusCAS(ctx context.Context, a *Appointment, from Status) error

	// ListActiveTimesForDoctorOnDate returns the start times of all
	// non-cancelled appointments of a doctor on a calendar date.
	ListActiveTimesForDoctorOnDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]time.Time, error)

	ListForDoctor(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Appointment, error)
	ListForPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error)
	ListForLocation(ctx context.Context, locationID uuid.UUID, date time.Time) ([]*Appointment, error)
}

// DoctorReader is the profile lookup the scheduler needs from the doctor
// package.
type DoctorReader interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error)
}

// LocationReader is the tenancy lookup used to refuse bookings at
// deactivated branches.
type LocationReader interface {
	GetLocation(ctx context.Context, id uuid.UUID) (*organization.Location, error)
}

type PermissionEvaluator interface {
	Evaluate(ctx context.Context, u *user.User, perm authz.Permission, req authz.Request) (authz.Decision, error)
}

// Locker serializes writers on a per-slot key. It is an optimization in
// front of the database constraint, never the source of truth: failing to
// acquire within the attempt means another writer holds the slot, while a
// locker error degrades to relying on the transactional check alone.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context), acquired bool, err error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

const slotLockTTL = 5 * time.Second

type Service struct {
	repo      Repository
	doctors   DoctorReader
	locations LocationReader
	evaluator PermissionEvaluator
	engine    *AvailabilityEngine
	locker    Locker
	sink      audit.Sink
	publisher EventPublisher
	logger    *slog.Logger
}

func NewService(
	repo Repository,
	doctors DoctorReader,
	locations LocationReader,
	evaluator PermissionEvaluator,
	engine *AvailabilityEngine,
	locker Locker,
	sink audit.Sink,
	publisher EventPublisher,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		doctors:   doctors,
		locations: locations,
		evaluator: evaluator,
		engine:    engine,
		locker:    locker,
		sink:      sink,
		publisher: publisher,
		logger:    logger,
	}
}

// AppointmentDoctorID satisfies authz.AppointmentDirectory for doctor
// ownership checks.
func (s *Service) AppointmentDoctorID(ctx context.Context, appointmentID string) (string, bool, error) {
	id, err := uuid.Parse(appointmentID)
	if err != nil {
		return "", false, nil
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return a.DoctorID.String(), true, nil
}

// Availability returns the open "HH:MM" slots of a doctor on a date.
func (s *Service) Availability(ctx context.Context, actor *user.User, doctorID uuid.UUID, date string) (*AvailabilityResponse, error) {
	day, err := time.ParseInLocation(dateLayout, date, time.UTC)
	if err != nil {
		return nil, internal.NewValidationError("date must be YYYY-MM-DD", internal.ErrCodeInvalidDateTime)
	}

	d, err := s.doctors.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(ctx, actor, authz.PermAppointmentsView, authz.Request{
		LocationID: d.LocationID.String(),
	}); err != nil {
		return nil, err
	}

	booked, err := s.repo.ListActiveTimesForDoctorOnDate(ctx, doctorID, day)
	if err != nil {
		return nil, internal.NewInternalError("failed to load booked slots", err)
	}

	return &AvailabilityResponse{
		DoctorID: doctorID.String(),
		Date:     date,
		Slots:    s.engine.SlotsForDate(d, day, booked),
	}, nil
}

// Book creates a SCHEDULED appointment in a free slot.
func (s *Service) Book(ctx context.Context, actor *user.User, dto BookAppointmentDTO) (*Appointment, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	doctorID, err := uuid.Parse(dto.DoctorID)
	if err != nil {
		return nil, internal.NewValidationError("invalid doctor id", internal.ErrCodeValidationFailed)
	}
	patientID, err := uuid.Parse(dto.PatientID)
	if err != nil {
		return nil, internal.NewValidationError("invalid patient id", internal.ErrCodeValidationFailed)
	}

	d, err := s.doctors.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(ctx, actor, authz.PermAppointmentsCreate, authz.Request{
		LocationID: d.LocationID.String(),
	}); err != nil {
		return nil, err
	}

	if !d.IsActive {
		return nil, internal.NewValidationError("doctor is not accepting appointments", internal.ErrCodeValidationFailed)
	}
	loc, err := s.locations.GetLocation(ctx, d.LocationID)
	if err != nil {
		return nil, err
	}
	if !loc.IsActive {
		return nil, internal.NewValidationError("location is not active", internal.ErrCodeLocationInactive)
	}

	// Patients book for themselves only; staff may book on a patient's
	// behalf within their location scope.
	if actor.Role == user.RolePatient && patientID != actor.ID {
		return nil, internal.NewForbiddenError("patients may only book their own appointments", internal.ErrCodePermissionDenied)
	}

	at, err := dto.DateTime(time.UTC)
	if err != nil {
		return nil, internal.NewValidationError("invalid date or time", internal.ErrCodeInvalidDateTime)
	}

	booked, err := s.repo.ListActiveTimesForDoctorOnDate(ctx, doctorID, at)
	if err != nil {
		return nil, internal.NewInternalError("failed to load booked slots", err)
	}
	if !s.engine.IsBookable(d, at, booked) {
		return nil, internal.NewConflictError("requested slot is not available", internal.ErrCodeSlotTaken)
	}

	a := &Appointment{
		ID:             uuid.New(),
		OrganizationID: d.OrganizationID,
		LocationID:     d.LocationID,
		DoctorID:       doctorID,
		PatientID:      patientID,
		DateTime:       at,
		Duration:       d.ConsultationDuration,
		Status:         StatusScheduled,
		Notes:          dto.Notes,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}

	release, ok := s.lockSlot(ctx, doctorID, at)
	if !ok {
		return nil, internal.NewConflictError("requested slot is not available", internal.ErrCodeSlotTaken)
	}
	defer release()

	if err := s.repo.CreateIfSlotFree(ctx, a); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return nil, internal.NewConflictError("requested slot is not available", internal.ErrCodeSlotTaken)
		}
		s.logger.Error("failed to create appointment", "error", err, "doctor_id", doctorID)
		return nil, internal.NewInternalError("failed to create appointment", err)
	}

	s.recordSuccess(ctx, actor, authz.PermAppointmentsCreate, a.ID.String(), "appointment booked")
	s.publish(ctx, events.AppointmentBooked, a)
	s.logger.Info("appointment booked", "appointment_id", a.ID, "doctor_id", doctorID, "date_time", at)
	return a, nil
}

// Reschedule moves a non-terminal appointment to a new free slot.
func (s *Service) Reschedule(ctx context.Context, actor *user.User, id uuid.UUID, dto RescheduleDTO) (*Appointment, error) {
	a, err := s.getByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(ctx, actor, authz.PermAppointmentsUpdate, authz.Request{
		ResourceID: id.String(),
		LocationID: a.LocationID.String(),
	}); err != nil {
		return nil, err
	}

	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}
	if a.Status.Terminal() {
		return nil, internal.NewConflictError(
			fmt.Sprintf("appointment is %s and cannot be rescheduled", a.Status),
			internal.ErrCodeInvalidStatus,
		)
	}

	at, err := dto.DateTime(time.UTC)
	if err != nil {
		return nil, internal.NewValidationError("invalid date or time", internal.ErrCodeInvalidDateTime)
	}

	d, err := s.doctors.GetDoctor(ctx, a.DoctorID)
	if err != nil {
		return nil, err
	}

	booked, err := s.repo.ListActiveTimesForDoctorOnDate(ctx, a.DoctorID, at)
	if err != nil {
		return nil, internal.NewInternalError("failed to load booked slots", err)
	}
	// The slot the appointment currently holds is not a conflict with its
	// own move.
	booked = withoutTime(booked, a.DateTime)
	if !s.engine.IsBookable(d, at, booked) {
		return nil, internal.NewConflictError("requested slot is not available", internal.ErrCodeSlotTaken)
	}

	release, ok := s.lockSlot(ctx, a.DoctorID, at)
	if !ok {
		return nil, internal.NewConflictError("requested slot is not available", internal.ErrCodeSlotTaken)
	}
	defer release()

	if err := s.repo.MoveIfSlotFree(ctx, a, at); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return nil, internal.NewConflictError("requested slot is not available", internal.ErrCodeSlotTaken)
		}
		return nil, internal.NewInternalError("failed to reschedule appointment", err)
	}

	s.recordSuccess(ctx, actor, authz.PermAppointmentsUpdate, a.ID.String(), "appointment rescheduled")
	s.publish(ctx, events.AppointmentRescheduled, a)
	return a, nil
}

// Accept confirms a SCHEDULED appointment.
func (s *Service) Accept(ctx context.Context, actor *user.User, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, authz.PermAppointmentsAccept, StatusConfirmed, events.AppointmentConfirmed, "appointment confirmed")
}

// Complete closes out a CONFIRMED appointment.
func (s *Service) Complete(ctx context.Context, actor *user.User, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, authz.PermAppointmentsComplete, StatusCompleted, events.AppointmentCompleted, "appointment completed")
}

// Cancel cancels an appointment with a mandatory reason of at least three
// characters. The reason, the actor, and the instant are kept on the record.
func (s *Service) Cancel(ctx context.Context, actor *user.User, id uuid.UUID, dto CancelDTO) (*Appointment, error) {
	a, err := s.getByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(ctx, actor, authz.PermAppointmentsCancel, authz.Request{
		ResourceID: id.String(),
		LocationID: a.LocationID.String(),
	}); err != nil {
		return nil, err
	}

	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeReasonTooShort)
	}

	return s.cancel(ctx, actor, a, dto.Reason, authz.PermAppointmentsCancel)
}

// Delete is the reasonless cancellation path. It takes no body and records
// no reason, but otherwise follows the same state transition as Cancel.
func (s *Service) Delete(ctx context.Context, actor *user.User, id uuid.UUID) (*Appointment, error) {
	a, err := s.getByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(ctx, actor, authz.PermAppointmentsDelete, authz.Request{
		ResourceID: id.String(),
		LocationID: a.LocationID.String(),
	}); err != nil {
		return nil, err
	}

	return s.cancel(ctx, actor, a, "", authz.PermAppointmentsDelete)
}

func (s *Service) Get(ctx context.Context, actor *user.User, id uuid.UUID) (*Appointment, error) {
	a, err := s.getByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(ctx, actor, authz.PermAppointmentsView, authz.Request{
		ResourceID: id.String(),
		LocationID: a.LocationID.String(),
	}); err != nil {
		return nil, err
	}

	// Patients see their own records only.
	if actor.Role == user.RolePatient && a.PatientID != actor.ID {
		return nil, internal.NewNotFoundError("appointment not found", internal.ErrCodeAppointmentNotFound)
	}
	return a, nil
}

func (s *Service) ListForDoctor(ctx context.Context, actor *user.User, doctorID uuid.UUID, date time.Time) ([]*Appointment, error) {
	d, err := s.doctors.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, authz.PermAppointmentsView, authz.Request{
		LocationID: d.LocationID.String(),
	}); err != nil {
		return nil, err
	}
	return s.repo.ListForDoctor(ctx, doctorID, date)
}

func (s *Service) ListForPatient(ctx context.Context, actor *user.User, patientID uuid.UUID) ([]*Appointment, error) {
	if actor.Role == user.RolePatient && patientID != actor.ID {
		return nil, internal.NewForbiddenError("patients may only view their own appointments", internal.ErrCodePermissionDenied)
	}
	if err := s.authorize(ctx, actor, authz.PermAppointmentsView, authz.Request{}); err != nil {
		return nil, err
	}
	return s.repo.ListForPatient(ctx, patientID)
}

func (s *Service) ListForLocation(ctx context.Context, actor *user.User, locationID uuid.UUID, date time.Time) ([]*Appointment, error) {
	if err := s.authorize(ctx, actor, authz.PermAppointmentsView, authz.Request{
		LocationID: locationID.String(),
	}); err != nil {
		return nil, err
	}
	return s.repo.ListForLocation(ctx, locationID, date)
}

func (s *Service) authorize(ctx context.Context, actor *user.User, perm authz.Permission, req authz.Request) error {
	decision, err := s.evaluator.Evaluate(ctx, actor, perm, req)
	if err != nil {
		return internal.NewInternalError("permission evaluation failed", err)
	}
	if !decision.Allowed {
		return internal.NewForbiddenError(decision.Reason, internal.ErrCodePermissionDenied)
	}
	return nil
}

func (s *Service) getByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, internal.NewNotFoundError("appointment not found", internal.ErrCodeAppointmentNotFound)
		}
		return nil, internal.NewInternalError("failed to load appointment", err)
	}
	return a, nil
}

func (s *Service) transition(ctx context.Context, actor *user.User, id uuid.UUID, perm authz.Permission, to Status, eventType string, reason string) (*Appointment, error) {
	a, err := s.getByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(ctx, actor, perm, authz.Request{
		ResourceID: id.String(),
		LocationID: a.LocationID.String(),
	}); err != nil {
		return nil, err
	}

	from := a.Status
	if !from.CanTransitionTo(to) {
		return nil, internal.NewConflictError(
			fmt.Sprintf("cannot move appointment from %s to %s", from, to),
			internal.ErrCodeInvalidStatus,
		)
	}

	a.Status = to
	a.UpdatedAt = time.Now()
	if err := s.repo.UpdateStatusCAS(ctx, a, from); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, internal.NewConflictError("appointment status changed concurrently", internal.ErrCodeInvalidStatus)
		}
		return nil, internal.NewInternalError("failed to update appointment", err)
	}

	s.recordSuccess(ctx, actor, perm, a.ID.String(), reason)
	s.publish(ctx, eventType, a)
	return a, nil
}

func (s *Service) cancel(ctx context.Context, actor *user.User, a *Appointment, reason string, perm authz.Permission) (*Appointment, error) {
	from := a.Status
	if !from.CanTransitionTo(StatusCancelled) {
		return nil, internal.NewConflictError(
			fmt.Sprintf("appointment is %s and cannot be cancelled", from),
			internal.ErrCodeInvalidStatus,
		)
	}

	now := time.Now()
	a.Status = StatusCancelled
	a.CancelReason = reason
	a.CancelledByID = actor.ID.String()
	a.CancelledAt = &now
	a.UpdatedAt = now

	if err := s.repo.UpdateStatusCAS(ctx, a, from); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, internal.NewConflictError("appointment status changed concurrently", internal.ErrCodeInvalidStatus)
		}
		return nil, internal.NewInternalError("failed to cancel appointment", err)
	}

	auditReason := "appointment cancelled"
	if reason != "" {
		auditReason = "appointment cancelled: " + reason
	}
	s.recordSuccess(ctx, actor, perm, a.ID.String(), auditReason)
	s.publish(ctx, events.AppointmentCancelled, a)
	return a, nil
}

// lockSlot serializes writers on one (doctor, instant) slot. A held lock
// means another writer is mid-insert, so the caller fails fast; a locker
// fault degrades to the database constraint alone.
func (s *Service) lockSlot(ctx context.Context, doctorID uuid.UUID, at time.Time) (func(), bool) {
	if s.locker == nil {
		return func() {}, true
	}
	key := fmt.Sprintf("slot:%s:%s", doctorID, at.UTC().Format(time.RFC3339))
	release, acquired, err := s.locker.Acquire(ctx, key, slotLockTTL)
	if err != nil {
		s.logger.Warn("slot lock unavailable", "error", err, "key", key)
		return func() {}, true
	}
	if !acquired {
		return func() {}, false
	}
	return func() { release(context.Background()) }, true
}

func withoutTime(times []time.Time, t time.Time) []time.Time {
	filtered := times[:0]
	for _, v := range times {
		if !v.Equal(t) {
			filtered = append(filtered, v)
		}
	}
	return filtered
}

func (s *Service) recordSuccess(ctx context.Context, actor *user.User, perm authz.Permission, resourceID, reason string) {
	s.sink.Record(ctx, audit.Entry{
		ActorID:    actor.ID.String(),
		ActorEmail: actor.Email,
		ActorRole:  string(actor.Role),
		Action:     string(perm),
		Resource:   "appointment",
		ResourceID: resourceID,
		Outcome:    audit.OutcomeSuccess,
		Reason:     reason,
		Severity:   audit.SeverityInfo,
	})
}

func (s *Service) publish(ctx context.Context, eventType string, a *Appointment) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events.NewAppointmentEvent(eventType, a.ID.String(), map[string]interface{}{
		"doctor_id":  a.DoctorID.String(),
		"patient_id": a.PatientID.String(),
		"date_time":  a.DateTime,
		"status":     string(a.Status),
	})); err != nil {
		s.logger.Error("failed to publish event", "event_type", eventType, "error", err)
	}
}
