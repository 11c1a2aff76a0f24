// Package chatbot is the patient conversation over chat. Flow turns chat
// triggers into orchestrator calls and returns plain data; the Telegram
// controller renders it.
package chatbot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-booking/internal/apperrors"
	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/auth"
	"github.com/wolfman30/clinic-booking/internal/availability"
	"github.com/wolfman30/clinic-booking/internal/booking"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/internal/users"
	"github.com/wolfman30/clinic-booking/internal/waitlist"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Booker is the orchestrator surface the chat needs.
type Booker interface {
	Book(ctx context.Context, actor auth.Actor, req booking.BookRequest) (*appointments.Appointment, error)
	CancelNext(ctx context.Context, actor auth.Actor) (*appointments.Appointment, error)
	Upcoming(ctx context.Context, actor auth.Actor, userID string) ([]appointments.Appointment, error)
	Available(ctx context.Context, date string, service schedule.ServiceType) ([]string, error)
	Dates(ctx context.Context, offset int) ([]availability.DateOption, error)
	RecordInboundReply(ctx context.Context, userID, text string, at time.Time) (*appointments.Appointment, error)
	AddToWaitlist(ctx context.Context, actor auth.Actor, e *waitlist.Entry) error
	BookingWindow() int
}

// Profiles registers chat users and stores their reminder preference.
type Profiles interface {
	Ensure(ctx context.Context, id, displayName string) (*users.User, error)
	SetCadence(ctx context.Context, id string, c users.Cadence) error
}

// Patient identifies the chat user.
type Patient struct {
	ID   string
	Name string
}

func (p Patient) actor() auth.Actor { return auth.Actor{UserID: p.ID} }

// DatePrompt is one week of the date picker.
type DatePrompt struct {
	Offset  int
	Dates   []availability.DateOption
	HasPrev bool
	HasNext bool
}

// TimePrompt lists open times on a date for one service.
type TimePrompt struct {
	Date        string
	ServiceType schedule.ServiceType
	Times       []string
}

// Selection is the answer to a picked time. When Available is false the slot
// went away and Times holds what is still open.
type Selection struct {
	Date        string
	Time        string
	ServiceType schedule.ServiceType
	Available   bool
	Times       []string
}

// Outcome is the result of a confirmation. Conflict and Closed are expected
// outcomes, not errors.
type Outcome struct {
	Appointment *appointments.Appointment
	Conflict    bool
	Closed      bool
	Times       []string
}

// Flow is the chat booking conversation. It holds no per-user state; every
// step carries the choices made so far.
type Flow struct {
	booker   Booker
	profiles Profiles
	logger   *logging.Logger
}

func NewFlow(booker Booker, profiles Profiles, logger *logging.Logger) *Flow {
	if logger == nil {
		logger = logging.Default()
	}
	return &Flow{booker: booker, profiles: profiles, logger: logger}
}

// Register records the user on first contact.
func (f *Flow) Register(ctx context.Context, p Patient) (*users.User, error) {
	u, err := f.profiles.Ensure(ctx, p.ID, p.Name)
	if err != nil {
		return nil, fmt.Errorf("chatbot: register: %w", err)
	}
	return u, nil
}

// RequestBooking opens the date picker on the week at offset.
func (f *Flow) RequestBooking(ctx context.Context, p Patient, offset int) (*DatePrompt, error) {
	if _, err := f.Register(ctx, p); err != nil {
		return nil, err
	}
	dates, err := f.booker.Dates(ctx, offset)
	if err != nil {
		return nil, err
	}
	return &DatePrompt{
		Offset:  offset,
		Dates:   dates,
		HasPrev: offset > 0,
		HasNext: offset+1 < f.booker.BookingWindow(),
	}, nil
}

// SelectDate lists the open times on date.
func (f *Flow) SelectDate(ctx context.Context, _ Patient, date string, service schedule.ServiceType) (*TimePrompt, error) {
	times, err := f.booker.Available(ctx, date, service)
	if err != nil {
		return nil, err
	}
	return &TimePrompt{Date: date, ServiceType: service, Times: times}, nil
}

// SelectTime checks the picked time is still open before asking to confirm.
func (f *Flow) SelectTime(ctx context.Context, _ Patient, date, clock string, service schedule.ServiceType) (*Selection, error) {
	times, err := f.booker.Available(ctx, date, service)
	if err != nil {
		return nil, err
	}
	sel := &Selection{Date: date, Time: clock, ServiceType: service, Times: times}
	for _, t := range times {
		if t == clock {
			sel.Available = true
			break
		}
	}
	return sel, nil
}

// Confirm books the slot. Losing a race returns Conflict with the times that
// are still open so the user can pick again.
func (f *Flow) Confirm(ctx context.Context, p Patient, date, clock string, service schedule.ServiceType) (*Outcome, error) {
	appt, err := f.booker.Book(ctx, p.actor(), booking.BookRequest{
		UserID:      p.ID,
		UserName:    p.Name,
		Date:        date,
		Time:        clock,
		ServiceType: string(service),
	})
	switch {
	case err == nil:
		return &Outcome{Appointment: appt}, nil
	case errors.Is(err, apperrors.ErrSlotConflict):
		times, qerr := f.booker.Available(ctx, date, service)
		if qerr != nil {
			return nil, qerr
		}
		return &Outcome{Conflict: true, Times: times}, nil
	case errors.Is(err, apperrors.ErrClosedDay):
		return &Outcome{Closed: true, Times: []string{}}, nil
	default:
		return nil, err
	}
}

// Query lists the user's upcoming bookings.
func (f *Flow) Query(ctx context.Context, p Patient) ([]appointments.Appointment, error) {
	return f.booker.Upcoming(ctx, p.actor(), p.ID)
}

// Cancel cancels the user's next booking. It returns nil when there is none.
func (f *Flow) Cancel(ctx context.Context, p Patient) (*appointments.Appointment, error) {
	appt, err := f.booker.CancelNext(ctx, p.actor())
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	return appt, err
}

// Reply records free text against the user's nearest booking.
func (f *Flow) Reply(ctx context.Context, p Patient, text string, at time.Time) (*appointments.Appointment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	return f.booker.RecordInboundReply(ctx, p.ID, text, at)
}

// SetReminders stores the user's reminder cadence.
func (f *Flow) SetReminders(ctx context.Context, p Patient, cadence string) (users.Cadence, error) {
	c, err := users.ParseCadence(cadence)
	if err != nil {
		return "", err
	}
	if _, err := f.Register(ctx, p); err != nil {
		return "", err
	}
	if err := f.profiles.SetCadence(ctx, p.ID, c); err != nil {
		return "", fmt.Errorf("chatbot: set cadence: %w", err)
	}
	return c, nil
}

// JoinWaitlist queues the user for a date whose slots are gone.
func (f *Flow) JoinWaitlist(ctx context.Context, p Patient, date string) (*waitlist.Entry, error) {
	e := &waitlist.Entry{Date: date, UserID: p.ID, UserName: p.Name}
	if err := f.booker.AddToWaitlist(ctx, p.actor(), e); err != nil {
		return nil, err
	}
	return e, nil
}
