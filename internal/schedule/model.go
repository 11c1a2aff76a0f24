// Package schedule owns the weekday slot templates and the expansion of those
// templates into bookable 15-minute times.
package schedule

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/clinic-booking/internal/apperrors"
)

// SlotStep is the fixed length of one bookable slot.
const SlotStep = 15 * time.Minute

// DateLayout is the ISO date format used for every stored date.
const DateLayout = time.DateOnly

// ServiceType partitions the slot space; the same clock time can be booked once per type.
type ServiceType string

const (
	ServiceConsultation ServiceType = "consultation"
	ServiceMassage      ServiceType = "massage"
)

// ServiceTypes lists every known service type in display order.
var ServiceTypes = []ServiceType{ServiceConsultation, ServiceMassage}

func (s ServiceType) Valid() bool {
	return s == ServiceConsultation || s == ServiceMassage
}

// Label is the patient-facing name.
func (s ServiceType) Label() string {
	switch s {
	case ServiceConsultation:
		return "諮詢"
	case ServiceMassage:
		return "按摩"
	}
	return string(s)
}

// ParseServiceType validates s. An empty value defaults to consultation.
func ParseServiceType(s string) (ServiceType, error) {
	if s == "" {
		return ServiceConsultation, nil
	}
	st := ServiceType(s)
	if !st.Valid() {
		return "", apperrors.Validation("unknown service type %q", s)
	}
	return st, nil
}

// Weekday is the clinic weekday, Monday=1 through Saturday=6. Sunday is 7 and
// never has templates.
type Weekday int

const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// Valid reports whether w can carry templates.
func (w Weekday) Valid() bool {
	return w >= Monday && w <= Saturday
}

// WeekdayOf converts a calendar date to a clinic weekday.
func WeekdayOf(t time.Time) Weekday {
	if t.Weekday() == time.Sunday {
		return Sunday
	}
	return Weekday(t.Weekday())
}

// Template defines open hours for one weekday and service type.
type Template struct {
	ID          uuid.UUID   `json:"id"`
	Weekday     Weekday     `json:"weekday"`
	ServiceType ServiceType `json:"service_type"`
	StartTime   string      `json:"start_time"`
	EndTime     string      `json:"end_time"`
	Active      bool        `json:"active"`
	Note        string      `json:"note"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Validate checks weekday range, service type and quarter-hour alignment.
func (t Template) Validate() error {
	if !t.Weekday.Valid() {
		return apperrors.Validation("weekday %d out of range 1..6", t.Weekday)
	}
	if !t.ServiceType.Valid() {
		return apperrors.Validation("unknown service type %q", t.ServiceType)
	}
	if _, err := ParseClock(t.StartTime); err != nil {
		return err
	}
	if _, err := ParseClock(t.EndTime); err != nil {
		return err
	}
	return nil
}

// ParseClock parses an HH:MM time on a 15-minute boundary into minutes after midnight.
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' || !isDigits(s[:2]) || !isDigits(s[3:]) {
		return 0, apperrors.Validation("time %q must be HH:MM", s)
	}
	h, _ := strconv.Atoi(s[:2])
	m, _ := strconv.Atoi(s[3:])
	if h > 23 || m > 59 {
		return 0, apperrors.Validation("time %q out of range", s)
	}
	if m%15 != 0 {
		return 0, apperrors.Validation("time %q is not on a 15-minute boundary", s)
	}
	return h*60 + m, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// FormatClock renders minutes after midnight as HH:MM.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseDate validates an ISO YYYY-MM-DD date and returns it at midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, apperrors.Validation("date %q must be YYYY-MM-DD", s)
	}
	return d, nil
}

// SlotStart combines a date and an HH:MM time into an instant in loc.
func SlotStart(date, clock string, loc *time.Location) (time.Time, error) {
	d, err := ParseDate(date, loc)
	if err != nil {
		return time.Time{}, err
	}
	mins, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return d.Add(time.Duration(mins) * time.Minute), nil
}
