package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/clinicore/clinic-booking/internal/appointment"
)

// AppointmentRepository implements appointment.Repository using GORM.
//
// Slot uniqueness rests on the partial unique index on
// (doctor_id, date_time) WHERE status <> 'CANCELLED'. The transactional
// re-check below closes the window for drivers without partial index
// support; the index remains the last line of defense on Postgres.
type AppointmentRepository struct {
	db *gorm.DB
}

func NewAppointmentRepository(db *gorm.DB) appointment.Repository {
	return &AppointmentRepository{db: db}
}

func (r *AppointmentRepository) CreateIfSlotFree(ctx context.Context, a *appointment.Appointment) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&appointment.Appointment{}).
			Where("doctor_id = ? AND date_time = ? AND status <> ?", a.DoctorID, a.DateTime, appointment.StatusCancelled).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return appointment.ErrSlotTaken
		}
		return tx.Create(a).Error
	})
	if isUniqueViolation(err) {
		return appointment.ErrSlotTaken
	}
	return err
}

func (r *AppointmentRepository) MoveIfSlotFree(ctx context.Context, a *appointment.Appointment, to time.Time) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&appointment.Appointment{}).
			Where("doctor_id = ? AND date_time = ? AND status <> ? AND id <> ?",
				a.DoctorID, to, appointment.StatusCancelled, a.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return appointment.ErrSlotTaken
		}

		res := tx.Model(&appointment.Appointment{}).
			Where("id = ?", a.ID).
			Updates(map[string]interface{}{
				"date_time":  to,
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return appointment.ErrNotFound
		}
		a.DateTime = to
		a.UpdatedAt = time.Now()
		return nil
	})
	if isUniqueViolation(err) {
		return appointment.ErrSlotTaken
	}
	return err
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	var a appointment.Appointment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appointment.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *AppointmentRepository) UpdateStatusCAS(ctx context.Context, a *appointment.Appointment, from appointment.Status) error {
	res := r.db.WithContext(ctx).Model(&appointment.Appointment{}).
		Where("id = ? AND status = ?", a.ID, from).
		Updates(map[string]interface{}{
			"status":        a.Status,
			"cancel_reason": a.CancelReason,
			"cancelled_by":  a.CancelledByID,
			"cancelled_at":  a.CancelledAt,
			"updated_at":    a.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return appointment.ErrStatusConflict
	}
	return nil
}

func (r *AppointmentRepository) ListActiveTimesForDoctorOnDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]time.Time, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	end := start.Add(24 * time.Hour)

	var times []time.Time
	err := r.db.WithContext(ctx).Model(&appointment.Appointment{}).
		Where("doctor_id = ? AND date_time >= ? AND date_time < ? AND status <> ?",
			doctorID, start, end, appointment.StatusCancelled).
		Order("date_time ASC").
		Pluck("date_time", &times).Error
	return times, err
}

func (r *AppointmentRepository) ListForDoctor(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*appointment.Appointment, error) {
	return r.listInDay(ctx, "doctor_id = ?", doctorID, date)
}

func (r *AppointmentRepository) ListForLocation(ctx context.Context, locationID uuid.UUID, date time.Time) ([]*appointment.Appointment, error) {
	return r.listInDay(ctx, "location_id = ?", locationID, date)
}

func (r *AppointmentRepository) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]*appointment.Appointment, error) {
	var appointments []*appointment.Appointment
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("date_time DESC").
		Find(&appointments).Error
	return appointments, err
}

func (r *AppointmentRepository) listInDay(ctx context.Context, cond string, id uuid.UUID, date time.Time) ([]*appointment.Appointment, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	end := start.Add(24 * time.Hour)

	var appointments []*appointment.Appointment
	err := r.db.WithContext(ctx).
		Where(cond, id).
		Where("date_time >= ? AND date_time < ?", start, end).
		Order("date_time ASC").
		Find(&appointments).Error
	return appointments, err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key value")
}
