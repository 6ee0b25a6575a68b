package appointment

import (
	"errors"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

type BookAppointmentDTO struct {
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Notes     string `json:"notes"`
}

func (dto BookAppointmentDTO) Validate() error {
	if strings.TrimSpace(dto.DoctorID) == "" {
		return errors.New("doctor_id is required")
	}
	if strings.TrimSpace(dto.PatientID) == "" {
		return errors.New("patient_id is required")
	}
	if _, err := time.Parse(dateLayout, dto.Date); err != nil {
		return errors.New("date must be YYYY-MM-DD")
	}
	if _, err := time.Parse("15:04", dto.Time); err != nil {
		return errors.New("time must be HH:MM")
	}
	return nil
}

// DateTime combines the date and time fields into one instant in loc.
func (dto BookAppointmentDTO) DateTime(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout+" 15:04", dto.Date+" "+dto.Time, loc)
}

type RescheduleDTO struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

func (dto RescheduleDTO) Validate() error {
	if _, err := time.Parse(dateLayout, dto.Date); err != nil {
		return errors.New("date must be YYYY-MM-DD")
	}
	if _, err := time.Parse("15:04", dto.Time); err != nil {
		return errors.New("time must be HH:MM")
	}
	return nil
}

func (dto RescheduleDTO) DateTime(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout+" 15:04", dto.Date+" "+dto.Time, loc)
}

// CancelDTO carries the mandatory explanation for a reasoned cancellation.
// The reasonless path is a separate endpoint and takes no body at all.
type CancelDTO struct {
	Reason string `json:"reason"`
}

const minCancelReasonLen = 3

func (dto CancelDTO) Validate() error {
	if len(strings.TrimSpace(dto.Reason)) < minCancelReasonLen {
		return errors.New("cancellation reason must be at least 3 characters")
	}
	return nil
}

type AvailabilityResponse struct {
	DoctorID string   `json:"doctor_id"`
	Date     string   `json:"date"`
	Slots    []string `json:"available_slots"`
}
