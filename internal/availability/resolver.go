// Package availability computes which slots can currently be booked.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/clinic-booking/internal/apperrors"
	"github.com/wolfman30/clinic-booking/internal/closures"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/internal/storage"
)

// SlotSource expands templates into slot times.
type SlotSource interface {
	Slots(ctx context.Context, weekday schedule.Weekday, service schedule.ServiceType) ([]string, error)
}

// ClosedDays answers closure questions.
type ClosedDays interface {
	IsClosed(ctx context.Context, q storage.Querier, date string) (bool, error)
	List(ctx context.Context, from, to string) ([]closures.ClosedDay, error)
}

// BookedSlots lists the confirmed times on a date.
type BookedSlots interface {
	BookedTimes(ctx context.Context, date string, service schedule.ServiceType) ([]string, error)
}

// Resolver combines templates, closures, bookings and the clock. It never writes.
type Resolver struct {
	slots  SlotSource
	closed ClosedDays
	booked BookedSlots
	loc    *time.Location
}

func NewResolver(slots SlotSource, closed ClosedDays, booked BookedSlots, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{slots: slots, closed: closed, booked: booked, loc: loc}
}

// Location is the clinic time zone the resolver works in.
func (r *Resolver) Location() *time.Location { return r.loc }

// Today is now's calendar date in the clinic time zone.
func (r *Resolver) Today(now time.Time) string {
	return now.In(r.loc).Format(schedule.DateLayout)
}

// IsClosed reports whether the clinic is closed on date.
func (r *Resolver) IsClosed(ctx context.Context, date string) (bool, error) {
	if _, err := schedule.ParseDate(date, r.loc); err != nil {
		return false, err
	}
	return r.closed.IsClosed(ctx, nil, date)
}

// Available returns the ascending slot times on date that are offered by the
// templates, not held by a confirmed booking, and strictly after now. A closed
// date has no available slots.
func (r *Resolver) Available(ctx context.Context, date string, service schedule.ServiceType, now time.Time) ([]string, error) {
	day, err := schedule.ParseDate(date, r.loc)
	if err != nil {
		return nil, err
	}
	if !service.Valid() {
		return nil, apperrors.Validation("unknown service type %q", service)
	}

	closed, err := r.closed.IsClosed(ctx, nil, date)
	if err != nil {
		return nil, fmt.Errorf("availability: %w", err)
	}
	if closed {
		return []string{}, nil
	}

	all, err := r.slots.Slots(ctx, schedule.WeekdayOf(day), service)
	if err != nil {
		return nil, fmt.Errorf("availability: %w", err)
	}
	if len(all) == 0 {
		return []string{}, nil
	}

	bookedTimes, err := r.booked.BookedTimes(ctx, date, service)
	if err != nil {
		return nil, fmt.Errorf("availability: %w", err)
	}
	taken := make(map[string]struct{}, len(bookedTimes))
	for _, t := range bookedTimes {
		taken[t] = struct{}{}
	}

	out := make([]string, 0, len(all))
	for _, t := range all {
		if _, ok := taken[t]; ok {
			continue
		}
		start, err := schedule.SlotStart(date, t, r.loc)
		if err != nil || !start.After(now) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
