package doctor

import (
	"errors"
	"strings"
)

type CreateDoctorDTO struct {
	Email                string   `json:"email"`
	Name                 string   `json:"name"`
	Specialty            string   `json:"specialty"`
	LocationID           string   `json:"location_id"`
	ConsultationDuration int      `json:"consultation_duration"`
	Schedule             Schedule `json:"availability_schedule"`
}

func (dto CreateDoctorDTO) Validate() error {
	if strings.TrimSpace(dto.Email) == "" || !strings.Contains(dto.Email, "@") {
		return errors.New("a valid email is required")
	}
	if strings.TrimSpace(dto.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(dto.LocationID) == "" {
		return errors.New("location_id is required")
	}
	if dto.ConsultationDuration < 5 || dto.ConsultationDuration > 240 {
		return errors.New("consultation duration must be between 5 and 240 minutes")
	}
	return nil
}

type UpdateScheduleDTO struct {
	Schedule             Schedule `json:"availability_schedule"`
	ConsultationDuration int      `json:"consultation_duration"`
}

func (dto UpdateScheduleDTO) Validate() error {
	if dto.Schedule == nil {
		return errors.New("availability schedule is required")
	}
	if dto.ConsultationDuration != 0 && (dto.ConsultationDuration < 5 || dto.ConsultationDuration > 240) {
		return errors.New("consultation duration must be between 5 and 240 minutes")
	}
	return nil
}
