package organization

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Organization is the top-level tenant, identified by a unique fiscal code.
type Organization struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name       string    `json:"name" gorm:"not null"`
	FiscalCode string    `json:"fiscal_code" gorm:"column:fiscal_code;uniqueIndex;not null"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Organization) TableName() string {
	return "organizations"
}

// DayWindow is one weekday's open/close window in "HH:MM". A missing entry
// means the location is closed that day.
type DayWindow struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// WorkingHours maps lowercase weekday names to windows, stored as JSON.
type WorkingHours map[string]DayWindow

func (w WorkingHours) Value() (driver.Value, error) {
	if w == nil {
		return json.Marshal(WorkingHours{})
	}
	return json.Marshal(w)
}

func (w *WorkingHours) Scan(value interface{}) error {
	if value == nil {
		*w = WorkingHours{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, w)
	case string:
		return json.Unmarshal([]byte(v), w)
	}
	return fmt.Errorf("unsupported type %T for WorkingHours", value)
}

// WindowFor returns the open window for a weekday, or ok=false when closed.
func (w WorkingHours) WindowFor(day time.Weekday) (DayWindow, bool) {
	win, ok := w[WeekdayName(day)]
	if !ok || win.Open == "" || win.Close == "" {
		return DayWindow{}, false
	}
	return win, true
}

func WeekdayName(day time.Weekday) string {
	return strings.ToLower(day.String())
}

// ParseClock parses an "HH:MM" clock value into minutes since midnight.
func ParseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", v, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Validate checks every window parses and opens before it closes.
func (w WorkingHours) Validate() error {
	for day, win := range w {
		if !validWeekday(day) {
			return fmt.Errorf("unknown weekday %q", day)
		}
		open, err := ParseClock(win.Open)
		if err != nil {
			return err
		}
		close, err := ParseClock(win.Close)
		if err != nil {
			return err
		}
		if open >= close {
			return fmt.Errorf("%s: open %s must be before close %s", day, win.Open, win.Close)
		}
	}
	return nil
}

func validWeekday(day string) bool {
	switch day {
	case "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday":
		return true
	}
	return false
}

// Location is a physical branch. It is never hard-deleted because doctors
// and appointments reference it; deactivation flips IsActive.
type Location struct {
	ID             uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID    `json:"organization_id" gorm:"type:uuid;index;not null"`
	Name           string       `json:"name" gorm:"not null"`
	Address        string       `json:"address"`
	WorkingHours   WorkingHours `json:"working_hours" gorm:"column:working_hours;type:jsonb"`
	IsActive       bool         `json:"is_active" gorm:"default:true"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func (Location) TableName() string {
	return "locations"
}

var (
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrLocationNotFound     = errors.New("location not found")
	ErrDuplicateFiscalCode  = errors.New("fiscal code already registered")
)
