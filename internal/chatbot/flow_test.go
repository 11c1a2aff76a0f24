package chatbot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

// fakeBooker serves one date with a mutable set of open times.
type fakeBooker struct {
	mu        sync.Mutex
	open      map[string][]string
	closed    map[string]bool
	booked    []appointments.Appointment
	replies   []string
	waiting   []waitlist.Entry
	actors    []auth.Actor
	bookErr   error
	cancelErr error
}

func newFakeBooker() *fakeBooker {
	return &fakeBooker{
		open:   map[string][]string{"2025-10-14": {"10:00", "14:15"}},
		closed: map[string]bool{},
	}
}

func (b *fakeBooker) Book(_ context.Context, actor auth.Actor, req booking.BookRequest) (*appointments.Appointment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.actors = append(b.actors, actor)
	if b.bookErr != nil {
		return nil, b.bookErr
	}
	if b.closed[req.Date] {
		return nil, apperrors.ErrClosedDay
	}
	times := b.open[req.Date]
	for i, t := range times {
		if t == req.Time {
			b.open[req.Date] = append(times[:i:i], times[i+1:]...)
			a := appointments.Appointment{ID: uuid.New(), UserID: req.UserID, UserName: req.UserName, Date: req.Date,
				Time: req.Time, ServiceType: schedule.ServiceType(req.ServiceType), Status: appointments.StatusConfirmed}
			b.booked = append(b.booked, a)
			return &a, nil
		}
	}
	return nil, apperrors.ErrSlotConflict
}

func (b *fakeBooker) CancelNext(_ context.Context, actor auth.Actor) (*appointments.Appointment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancelErr != nil {
		return nil, b.cancelErr
	}
	for i, a := range b.booked {
		if a.UserID == actor.UserID {
			b.booked = append(b.booked[:i:i], b.booked[i+1:]...)
			a.Status = appointments.StatusCancelled
			return &a, nil
		}
	}
	return nil, apperrors.NotFound("upcoming appointment for user", actor.UserID)
}

func (b *fakeBooker) Upcoming(_ context.Context, _ auth.Actor, userID string) ([]appointments.Appointment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []appointments.Appointment
	for _, a := range b.booked {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (b *fakeBooker) Available(_ context.Context, date string, _ schedule.ServiceType) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed[date] {
		return []string{}, nil
	}
	return append([]string{}, b.open[date]...), nil
}

func (b *fakeBooker) Dates(_ context.Context, offset int) ([]availability.DateOption, error) {
	if offset < 0 || offset >= 2 {
		return nil, apperrors.Validation("week offset %d outside booking window of 2 weeks", offset)
	}
	return []availability.DateOption{
		{Date: "2025-10-13", Weekday: schedule.Monday, Past: true},
		{Date: "2025-10-14", Weekday: schedule.Tuesday, Bookable: true},
		{Date: "2025-10-15", Weekday: schedule.Wednesday, Closed: true, Reason: "進修"},
	}, nil
}

func (b *fakeBooker) RecordInboundReply(_ context.Context, userID, text string, _ time.Time) (*appointments.Appointment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range b.booked {
		if a.UserID == userID {
			b.replies = append(b.replies, text)
			return &a, nil
		}
	}
	return nil, nil
}

func (b *fakeBooker) AddToWaitlist(_ context.Context, actor auth.Actor, e *waitlist.Entry) error {
	if !actor.CanActFor(e.UserID) {
		return apperrors.ErrForbidden
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	e.ID = uuid.New()
	b.waiting = append(b.waiting, *e)
	return nil
}

func (b *fakeBooker) BookingWindow() int { return 2 }

type fakeProfiles struct {
	mu       sync.Mutex
	users    map[string]*users.User
	cadences map[string]users.Cadence
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{users: map[string]*users.User{}, cadences: map[string]users.Cadence{}}
}

func (p *fakeProfiles) Ensure(_ context.Context, id, name string) (*users.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.users[id]; ok {
		return u, nil
	}
	u := &users.User{ID: id, DisplayName: name}
	p.users[id] = u
	return u, nil
}

func (p *fakeProfiles) SetCadence(_ context.Context, id string, c users.Cadence) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cadences[id] = c
	return nil
}

var patient = Patient{ID: "1001", Name: "Alice"}

func newFlow() (*Flow, *fakeBooker, *fakeProfiles) {
	b, p := newFakeBooker(), newFakeProfiles()
	return NewFlow(b, p, logging.Discard()), b, p
}

func TestRequestBookingRegistersAndPaginates(t *testing.T) {
	flow, _, profiles := newFlow()

	prompt, err := flow.RequestBooking(context.Background(), patient, 0)
	require.NoError(t, err)
	assert.False(t, prompt.HasPrev)
	assert.True(t, prompt.HasNext)
	assert.Len(t, prompt.Dates, 3)
	assert.Contains(t, profiles.users, "1001")

	prompt, err = flow.RequestBooking(context.Background(), patient, 1)
	require.NoError(t, err)
	assert.True(t, prompt.HasPrev)
	assert.False(t, prompt.HasNext)

	_, err = flow.RequestBooking(context.Background(), patient, 2)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestSelectTimeReportsTakenSlot(t *testing.T) {
	flow, booker, _ := newFlow()

	sel, err := flow.SelectTime(context.Background(), patient, "2025-10-14", "14:15", schedule.ServiceConsultation)
	require.NoError(t, err)
	assert.True(t, sel.Available)

	booker.open["2025-10-14"] = []string{"10:00"}
	sel, err = flow.SelectTime(context.Background(), patient, "2025-10-14", "14:15", schedule.ServiceConsultation)
	require.NoError(t, err)
	assert.False(t, sel.Available)
	assert.Equal(t, []string{"10:00"}, sel.Times)
}

func TestConfirmBooksAsPatient(t *testing.T) {
	flow, booker, _ := newFlow()

	out, err := flow.Confirm(context.Background(), patient, "2025-10-14", "14:15", schedule.ServiceConsultation)
	require.NoError(t, err)
	require.NotNil(t, out.Appointment)
	assert.False(t, out.Conflict)
	assert.Equal(t, "1001", out.Appointment.UserID)
	assert.Equal(t, auth.Actor{UserID: "1001"}, booker.actors[0])
}

func TestConfirmLosingRaceReturnsFreshTimes(t *testing.T) {
	flow, _, _ := newFlow()
	other := Patient{ID: "1002", Name: "Bob"}

	_, err := flow.Confirm(context.Background(), other, "2025-10-14", "14:15", schedule.ServiceConsultation)
	require.NoError(t, err)

	out, err := flow.Confirm(context.Background(), patient, "2025-10-14", "14:15", schedule.ServiceConsultation)
	require.NoError(t, err)
	assert.True(t, out.Conflict)
	assert.Nil(t, out.Appointment)
	assert.Equal(t, []string{"10:00"}, out.Times)
}

func TestConfirmOnClosedDay(t *testing.T) {
	flow, booker, _ := newFlow()
	booker.closed["2025-10-14"] = true

	out, err := flow.Confirm(context.Background(), patient, "2025-10-14", "10:00", schedule.ServiceConsultation)
	require.NoError(t, err)
	assert.True(t, out.Closed)
}

func TestConfirmPassesThroughFaults(t *testing.T) {
	flow, booker, _ := newFlow()
	booker.bookErr = errors.New("db down")

	_, err := flow.Confirm(context.Background(), patient, "2025-10-14", "10:00", schedule.ServiceConsultation)
	assert.EqualError(t, err, "db down")
}

func TestCancelWithoutBookingIsNil(t *testing.T) {
	flow, _, _ := newFlow()

	appt, err := flow.Cancel(context.Background(), patient)
	require.NoError(t, err)
	assert.Nil(t, appt)

	_, err = flow.Confirm(context.Background(), patient, "2025-10-14", "10:00", schedule.ServiceConsultation)
	require.NoError(t, err)
	appt, err = flow.Cancel(context.Background(), patient)
	require.NoError(t, err)
	require.NotNil(t, appt)
	assert.Equal(t, appointments.StatusCancelled, appt.Status)
}

func TestReplyAndQuery(t *testing.T) {
	flow, booker, _ := newFlow()

	appt, err := flow.Reply(context.Background(), patient, "OK", time.Now())
	require.NoError(t, err)
	assert.Nil(t, appt)

	_, err = flow.Confirm(context.Background(), patient, "2025-10-14", "10:00", schedule.ServiceConsultation)
	require.NoError(t, err)

	appt, err = flow.Reply(context.Background(), patient, "  會準時到 ", time.Now())
	require.NoError(t, err)
	require.NotNil(t, appt)
	assert.Equal(t, []string{"會準時到"}, booker.replies)

	list, err := flow.Query(context.Background(), patient)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSetReminders(t *testing.T) {
	flow, _, profiles := newFlow()

	c, err := flow.SetReminders(context.Background(), patient, "weekly")
	require.NoError(t, err)
	assert.Equal(t, users.CadenceWeekly, c)
	assert.Equal(t, users.CadenceWeekly, profiles.cadences["1001"])

	_, err = flow.SetReminders(context.Background(), patient, "hourly")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestJoinWaitlist(t *testing.T) {
	flow, booker, _ := newFlow()

	e, err := flow.JoinWaitlist(context.Background(), patient, "2025-10-14")
	require.NoError(t, err)
	assert.Equal(t, "1001", e.UserID)
	assert.Len(t, booker.waiting, 1)
}
