package appointment

import (
	"sort"
	"time"

	"github.com/clinicore/clinic-booking/internal/doctor"
	"github.com/clinicore/clinic-booking/internal/organization"
)

// Clock abstracts "now" so availability around the current time is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return systemClock{} }

// AvailabilityEngine computes the open slots of a doctor on a given date.
//
// A slot is offered when it starts inside one of the doctor's intervals for
// that weekday and the full consultation fits before the interval closes.
// Slots advance in consultation-duration steps from each interval's start.
type AvailabilityEngine struct {
	clock Clock
}

func NewAvailabilityEngine(clock Clock) *AvailabilityEngine {
	if clock == nil {
		clock = SystemClock()
	}
	return &AvailabilityEngine{clock: clock}
}

// SlotsForDate returns the bookable "HH:MM" start times for the doctor on
// date, with booked ones removed.
//
// Booked appointments knock out slots by exact start time: an appointment at
// 09:30 removes the 09:30 slot even when the grid would also generate 09:00
// and 10:00 around it. Slots strictly before the current minute are removed
// only when date is today; dates in the past return their full grid
// untouched.
func (e *AvailabilityEngine) SlotsForDate(d *doctor.Doctor, date time.Time, booked []time.Time) []string {
	if d.ConsultationDuration <= 0 {
		return []string{}
	}

	intervals := d.Schedule.IntervalsFor(date.Weekday())
	if len(intervals) == 0 {
		return []string{}
	}

	taken := make(map[string]struct{}, len(booked))
	for _, t := range booked {
		taken[t.Format("15:04")] = struct{}{}
	}

	now := e.clock.Now()
	today := sameDate(date, now)
	nowMinutes := now.Hour()*60 + now.Minute()

	var slots []string
	for _, iv := range intervals {
		start, err := organization.ParseClock(iv.Start)
		if err != nil {
			continue
		}
		end, err := organization.ParseClock(iv.End)
		if err != nil {
			continue
		}

		for at := start; at+d.ConsultationDuration <= end; at += d.ConsultationDuration {
			if today && at < nowMinutes {
				continue
			}
			slot := clockString(at)
			if _, ok := taken[slot]; ok {
				continue
			}
			slots = append(slots, slot)
		}
	}

	sort.Strings(slots)
	if slots == nil {
		slots = []string{}
	}
	return slots
}

// IsBookable reports whether a specific instant is one of the doctor's open
// slots on that day. It is the write-path twin of SlotsForDate.
func (e *AvailabilityEngine) IsBookable(d *doctor.Doctor, at time.Time, booked []time.Time) bool {
	slot := at.Format("15:04")
	for _, s := range e.SlotsForDate(d, at, booked) {
		if s == slot {
			return true
		}
	}
	return false
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func clockString(minutes int) string {
	h := minutes / 60
	m := minutes % 60
	return time.Date(0, 1, 1, h, m, 0, 0, time.UTC).Format("15:04")
}
