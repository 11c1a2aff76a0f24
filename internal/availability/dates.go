package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/clinic-booking/internal/apperrors"
	"github.com/wolfman30/clinic-booking/internal/schedule"
)

// DateOption is one day offered by the date picker.
type DateOption struct {
	Date     string           `json:"date"`
	Weekday  schedule.Weekday `json:"weekday"`
	Closed   bool             `json:"closed"`
	Reason   string           `json:"reason,omitempty"`
	Past     bool             `json:"past"`
	Bookable bool             `json:"bookable"`
}

// WeekDates returns Monday through Saturday of the week containing ref,
// shifted by offset weeks.
func WeekDates(ref time.Time, offset int) []time.Time {
	day := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())
	back := int(day.Weekday()+6) % 7
	monday := day.AddDate(0, 0, -back+7*offset)
	out := make([]time.Time, 6)
	for i := range out {
		out[i] = monday.AddDate(0, 0, i)
	}
	return out
}

// WindowEnd is the first date outside a rolling window of weeks starting today.
func WindowEnd(today time.Time, weeks int) time.Time {
	return today.AddDate(0, 0, 7*weeks)
}

// Dates lists the clinic days of the week at offset from now, flagging closed
// and past days. Offsets outside the booking window are rejected.
func (r *Resolver) Dates(ctx context.Context, now time.Time, offset, windowWeeks int) ([]DateOption, error) {
	if offset < 0 || offset >= windowWeeks {
		return nil, apperrors.Validation("week offset %d outside booking window of %d weeks", offset, windowWeeks)
	}
	local := now.In(r.loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.loc)
	end := WindowEnd(today, windowWeeks)

	days := WeekDates(today, offset)
	from := days[0].Format(schedule.DateLayout)
	to := days[len(days)-1].Format(schedule.DateLayout)
	closedDays, err := r.closed.List(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("availability: dates: %w", err)
	}
	reasons := make(map[string]string, len(closedDays))
	for _, c := range closedDays {
		reasons[c.Date] = c.Reason
	}

	out := make([]DateOption, 0, len(days))
	for _, d := range days {
		date := d.Format(schedule.DateLayout)
		reason, closed := reasons[date]
		past := d.Before(today)
		out = append(out, DateOption{
			Date:     date,
			Weekday:  schedule.WeekdayOf(d),
			Closed:   closed,
			Reason:   reason,
			Past:     past,
			Bookable: !closed && !past && d.Before(end),
		})
	}
	return out, nil
}
