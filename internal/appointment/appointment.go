package appointment

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal states accept no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo encodes the lifecycle: SCHEDULED accepts confirmation or
// cancellation, CONFIRMED accepts completion or cancellation. Terminal states
// accept nothing, which makes repeated cancellation a conflict rather than a
// silent no-op.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusScheduled:
		return next == StatusConfirmed || next == StatusCancelled
	case StatusConfirmed:
		return next == StatusCompleted || next == StatusCancelled
	}
	return false
}

// Appointment is a booked consultation slot. At most one non-cancelled
// appointment may exist per (doctor_id, date_time); the database enforces
// this with a partial unique index and the repository re-checks inside the
// insert transaction.
type Appointment struct {
	ID             uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID  `json:"organization_id" gorm:"type:uuid;index;not null"`
	LocationID     uuid.UUID  `json:"location_id" gorm:"type:uuid;index;not null"`
	DoctorID       uuid.UUID  `json:"doctor_id" gorm:"type:uuid;index;not null"`
	PatientID      uuid.UUID  `json:"patient_id" gorm:"type:uuid;index;not null"`
	DateTime       time.Time  `json:"date_time" gorm:"column:date_time;not null"`
	Duration       int        `json:"duration_minutes" gorm:"column:duration_minutes"`
	Status         Status     `json:"status" gorm:"not null;default:SCHEDULED"`
	Notes          string     `json:"notes,omitempty"`
	CancelReason   string     `json:"cancel_reason,omitempty" gorm:"column:cancel_reason"`
	CancelledByID  string     `json:"cancelled_by,omitempty" gorm:"column:cancelled_by"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty" gorm:"column:cancelled_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (Appointment) TableName() string {
	return "appointments"
}

var (
	ErrNotFound = errors.New("appointment not found")

	// ErrSlotTaken is returned when an insert or reschedule collides with
	// another non-cancelled appointment for the same doctor and instant.
	ErrSlotTaken = errors.New("slot already booked")

	// ErrStatusConflict is returned when a compare-and-set status update
	// matches no row, meaning the appointment moved state concurrently.
	ErrStatusConflict = errors.New("appointment status changed concurrently")
)
