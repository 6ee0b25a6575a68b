package doctor

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-booking/internal/organization"
)

// Interval is one open stretch of a doctor's day, "HH:MM" half-open [Start,End).
type Interval struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Schedule maps lowercase weekday names to disjoint open intervals. It is
// validated and clamped against the owning location's working hours on every
// write, so readers can trust it without re-checking.
type Schedule map[string][]Interval

func (s Schedule) Value() (driver.Value, error) {
	if s == nil {
		return json.Marshal(Schedule{})
	}
	return json.Marshal(s)
}

func (s *Schedule) Scan(value interface{}) error {
	if value == nil {
		*s = Schedule{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	}
	return fmt.Errorf("unsupported type %T for Schedule", value)
}

// IntervalsFor returns the open intervals for a weekday, empty when the
// doctor does not work that day.
func (s Schedule) IntervalsFor(day time.Weekday) []Interval {
	return s[organization.WeekdayName(day)]
}

// ClampToWorkingHours intersects the schedule with the location's working
// hours. Intervals are clamped into the day's window; slivers that end up
// with start >= end are dropped, as are whole days the location is closed.
// The result is sorted by start time.
func (s Schedule) ClampToWorkingHours(hours organization.WorkingHours) (Schedule, error) {
	clamped := Schedule{}
	for day, intervals := range s {
		window, open := hours.WindowFor(weekdayFromName(day))
		if !open {
			continue
		}

		winStart, err := organization.ParseClock(window.Open)
		if err != nil {
			return nil, err
		}
		winEnd, err := organization.ParseClock(window.Close)
		if err != nil {
			return nil, err
		}

		var kept []Interval
		for _, iv := range intervals {
			start, err := organization.ParseClock(iv.Start)
			if err != nil {
				return nil, err
			}
			end, err := organization.ParseClock(iv.End)
			if err != nil {
				return nil, err
			}

			if start < winStart {
				start = winStart
			}
			if end > winEnd {
				end = winEnd
			}
			if start >= end {
				continue
			}
			kept = append(kept, Interval{Start: clockString(start), End: clockString(end)})
		}

		if len(kept) > 0 {
			sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
			clamped[day] = kept
		}
	}
	return clamped, nil
}

func clockString(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func weekdayFromName(name string) time.Weekday {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if organization.WeekdayName(d) == name {
			return d
		}
	}
	return time.Sunday
}

// Doctor is a staff profile that appointments are booked against.
type Doctor struct {
	ID                   uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID               uuid.UUID `json:"user_id" gorm:"type:uuid;index"`
	Email                string    `json:"email" gorm:"uniqueIndex;not null"`
	OrganizationID       uuid.UUID `json:"organization_id" gorm:"type:uuid;index;not null"`
	LocationID           uuid.UUID `json:"location_id" gorm:"type:uuid;index;not null"`
	Name                 string    `json:"name"`
	Specialty            string    `json:"specialty"`
	ConsultationDuration int       `json:"consultation_duration" gorm:"column:consultation_duration"`
	Schedule             Schedule  `json:"availability_schedule" gorm:"column:availability_schedule;type:jsonb"`
	IsActive             bool      `json:"is_active" gorm:"default:true"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (Doctor) TableName() string {
	return "doctors"
}

var (
	ErrNotFound = errors.New("doctor not found")
)
