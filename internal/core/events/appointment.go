package events

import (
	"time"

	"github.com/google/uuid"
)

// Appointment lifecycle event types.
const (
	AppointmentBooked      = "appointment.booked"
	AppointmentConfirmed   = "appointment.confirmed"
	AppointmentRescheduled = "appointment.rescheduled"
	AppointmentCompleted   = "appointment.completed"
	AppointmentCancelled   = "appointment.cancelled"
)

// NewAppointmentEvent builds a lifecycle event for one appointment. The
// appointment id rides in the payload under "appointment_id" alongside the
// caller's data.
func NewAppointmentEvent(eventType, appointmentID string, data map[string]interface{}) Event {
	if data == nil {
		data = map[string]interface{}{}
	}
	data["appointment_id"] = appointmentID
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}
