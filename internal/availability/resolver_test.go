package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinic-booking/internal/apperrors"
	"github.com/wolfman30/clinic-booking/internal/closures"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/internal/storage"
)

var taipei = time.FixedZone("Asia/Taipei", 8*60*60)

type templateSource []schedule.Template

func (s templateSource) ListActive(_ context.Context, _ schedule.Weekday, _ schedule.ServiceType) ([]schedule.Template, error) {
	return s, nil
}

type closedSet map[string]string

func (c closedSet) IsClosed(_ context.Context, _ storage.Querier, date string) (bool, error) {
	_, ok := c[date]
	return ok, nil
}

func (c closedSet) List(_ context.Context, from, to string) ([]closures.ClosedDay, error) {
	var out []closures.ClosedDay
	for d, reason := range c {
		if d >= from && d <= to {
			out = append(out, closures.ClosedDay{Date: d, Reason: reason})
		}
	}
	return out, nil
}

type bookedSet map[string][]string

func (b bookedSet) BookedTimes(_ context.Context, date string, service schedule.ServiceType) ([]string, error) {
	return b[date+"|"+string(service)], nil
}

func tuesdayAfternoon() templateSource {
	return templateSource{
		{Weekday: schedule.Tuesday, ServiceType: schedule.ServiceConsultation, StartTime: "14:00", EndTime: "15:00", Active: true},
	}
}

func newResolver(closed closedSet, booked bookedSet) *Resolver {
	return NewResolver(schedule.NewGenerator(tuesdayAfternoon()), closed, booked, taipei)
}

func TestAvailableClosedDayIsEmpty(t *testing.T) {
	r := newResolver(closedSet{"2025-10-14": "holiday"}, bookedSet{})
	now := time.Date(2025, 10, 1, 9, 0, 0, 0, taipei)

	got, err := r.Available(context.Background(), "2025-10-14", schedule.ServiceConsultation, now)
	require.NoError(t, err)
	assert.Empty(t, got)

	closed, err := r.IsClosed(context.Background(), "2025-10-14")
	require.NoError(t, err)
	assert.True(t, closed)
}

func TestAvailableDropsPastTimesToday(t *testing.T) {
	r := newResolver(closedSet{}, bookedSet{})
	now := time.Date(2025, 10, 14, 14, 10, 0, 0, taipei)

	got, err := r.Available(context.Background(), "2025-10-14", schedule.ServiceConsultation, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"14:15", "14:30", "14:45", "15:00"}, got)
}

func TestAvailableSlotExactlyAtNowIsPast(t *testing.T) {
	r := newResolver(closedSet{}, bookedSet{})
	now := time.Date(2025, 10, 14, 14, 15, 0, 0, taipei)

	got, err := r.Available(context.Background(), "2025-10-14", schedule.ServiceConsultation, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"14:30", "14:45", "15:00"}, got)
}

func TestAvailableUsesClinicTimezone(t *testing.T) {
	r := newResolver(closedSet{}, bookedSet{})
	// 06:20 UTC is 14:20 in Taipei.
	now := time.Date(2025, 10, 14, 6, 20, 0, 0, time.UTC)

	got, err := r.Available(context.Background(), "2025-10-14", schedule.ServiceConsultation, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"14:30", "14:45", "15:00"}, got)
}

func TestAvailableExcludesBookedForSameServiceOnly(t *testing.T) {
	booked := bookedSet{"2025-10-14|consultation": {"14:15"}, "2025-10-14|massage": {"14:30"}}
	r := newResolver(closedSet{}, booked)
	now := time.Date(2025, 10, 13, 9, 0, 0, 0, taipei)

	got, err := r.Available(context.Background(), "2025-10-14", schedule.ServiceConsultation, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"14:00", "14:30", "14:45", "15:00"}, got)
}

func TestAvailableIsIdempotent(t *testing.T) {
	r := newResolver(closedSet{}, bookedSet{"2025-10-14|consultation": {"14:45"}})
	now := time.Date(2025, 10, 14, 14, 0, 0, 0, taipei)

	first, err := r.Available(context.Background(), "2025-10-14", schedule.ServiceConsultation, now)
	require.NoError(t, err)
	second, err := r.Available(context.Background(), "2025-10-14", schedule.ServiceConsultation, now)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAvailablePastDateAndSunday(t *testing.T) {
	r := newResolver(closedSet{}, bookedSet{})
	now := time.Date(2025, 10, 15, 9, 0, 0, 0, taipei)

	got, err := r.Available(context.Background(), "2025-10-14", schedule.ServiceConsultation, now)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = r.Available(context.Background(), "2025-10-19", schedule.ServiceConsultation, now)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAvailableValidation(t *testing.T) {
	r := newResolver(closedSet{}, bookedSet{})
	now := time.Now()

	_, err := r.Available(context.Background(), "14-10-2025", schedule.ServiceConsultation, now)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	_, err = r.Available(context.Background(), "2025-10-14", "yoga", now)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestWeekDates(t *testing.T) {
	wed := time.Date(2025, 10, 15, 10, 0, 0, 0, taipei)
	days := WeekDates(wed, 0)
	require.Len(t, days, 6)
	assert.Equal(t, "2025-10-13", days[0].Format(schedule.DateLayout))
	assert.Equal(t, "2025-10-18", days[5].Format(schedule.DateLayout))

	sunday := time.Date(2025, 10, 19, 10, 0, 0, 0, taipei)
	assert.Equal(t, "2025-10-13", WeekDates(sunday, 0)[0].Format(schedule.DateLayout))
	assert.Equal(t, "2025-10-20", WeekDates(sunday, 1)[0].Format(schedule.DateLayout))
}

func TestDates(t *testing.T) {
	r := newResolver(closedSet{"2025-10-17": "training"}, bookedSet{})
	now := time.Date(2025, 10, 15, 10, 0, 0, 0, taipei)

	days, err := r.Dates(context.Background(), now, 0, 2)
	require.NoError(t, err)
	require.Len(t, days, 6)
	assert.True(t, days[0].Past)
	assert.False(t, days[0].Bookable)
	assert.True(t, days[2].Bookable)
	assert.True(t, days[4].Closed)
	assert.Equal(t, "training", days[4].Reason)
	assert.False(t, days[4].Bookable)

	next, err := r.Dates(context.Background(), now, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "2025-10-20", next[0].Date)
	assert.True(t, next[5].Bookable)

	_, err = r.Dates(context.Background(), now, 2, 2)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
