package organization

import (
	"errors"
	"strings"
)

type CreateOrganizationDTO struct {
	Name       string `json:"name"`
	FiscalCode string `json:"fiscal_code"`
}

func (dto CreateOrganizationDTO) Validate() error {
	if strings.TrimSpace(dto.Name) == "" {
		return errors.New("organization name is required")
	}
	if strings.TrimSpace(dto.FiscalCode) == "" {
		return errors.New("fiscal code is required")
	}
	return nil
}

type CreateLocationDTO struct {
	Name         string       `json:"name"`
	Address      string       `json:"address"`
	WorkingHours WorkingHours `json:"working_hours"`
}

func (dto CreateLocationDTO) Validate() error {
	if strings.TrimSpace(dto.Name) == "" {
		return errors.New("location name is required")
	}
	if dto.WorkingHours == nil {
		return errors.New("working hours are required")
	}
	return dto.WorkingHours.Validate()
}

type UpdateWorkingHoursDTO struct {
	WorkingHours WorkingHours `json:"working_hours"`
}

func (dto UpdateWorkingHoursDTO) Validate() error {
	if dto.WorkingHours == nil {
		return errors.New("working hours are required")
	}
	return dto.WorkingHours.Validate()
}
