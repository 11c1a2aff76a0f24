package booking

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-booking/internal/apperrors"
	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/auth"
	"github.com/wolfman30/clinic-booking/internal/availability"
	"github.com/wolfman30/clinic-booking/internal/board"
	"github.com/wolfman30/clinic-booking/internal/closures"
	"github.com/wolfman30/clinic-booking/internal/messaging"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/internal/storage"
	"github.com/wolfman30/clinic-booking/internal/waitlist"
)

// CloseResult reports a closure and the bookings it cancelled.
type CloseResult struct {
	Day       *closures.ClosedDay        `json:"closed_day"`
	Cancelled []appointments.Appointment `json:"cancelled"`
}

// CloseDay marks date closed and cancels its confirmed bookings in one
// transaction, then tells affected patients and staff.
func (s *Service) CloseDay(ctx context.Context, actor auth.Actor, date, reason string) (res *CloseResult, err error) {
	ctx, span := tracer.Start(ctx, "booking.close_day", trace.WithAttributes(attribute.String("booking.date", date)))
	defer s.finish(span, "close_day", time.Now(), &err)

	if !actor.IsAdmin {
		return nil, apperrors.ErrForbidden
	}
	if _, err := schedule.ParseDate(date, s.loc); err != nil {
		return nil, err
	}

	res = &CloseResult{}
	err = s.Tx.InTx(ctx, func(q storage.Querier) error {
		if err := s.Closures.Lock(ctx, q, date, true); err != nil {
			return err
		}
		day, err := s.Closures.Upsert(ctx, q, date, reason)
		if err != nil {
			return err
		}
		res.Day = day
		res.Cancelled, err = s.Ledger.CancelDay(ctx, q, date)
		return err
	})
	if err != nil {
		return nil, err
	}
	if res.Cancelled == nil {
		res.Cancelled = []appointments.Appointment{}
	}

	for _, g := range groupByUser(res.Cancelled) {
		s.deliver(ctx, g.userID, g.name, messaging.TypeClinicClosed, ClosureText(s.ClinicName, date, reason, g.times))
	}
	if s.Staff != nil {
		if err := s.Staff.NotifyClosure(ctx, date, reason, res.Cancelled); err != nil {
			s.Logger.Warn("staff closure email failed", "date", date, "error", err)
		}
	}
	if s.Publisher != nil {
		s.Publisher.Publish(board.NewEvent(board.EventDayClosed, date))
	}
	s.Logger.Info("clinic day closed", "date", date, "cancelled", len(res.Cancelled))
	return res, nil
}

// ReopenDay removes a closure. Bookings it cancelled stay cancelled.
func (s *Service) ReopenDay(ctx context.Context, actor auth.Actor, date string) (err error) {
	ctx, span := tracer.Start(ctx, "booking.reopen_day", trace.WithAttributes(attribute.String("booking.date", date)))
	defer s.finish(span, "reopen_day", time.Now(), &err)

	if !actor.IsAdmin {
		return apperrors.ErrForbidden
	}
	if err := s.Closures.Remove(ctx, nil, date); err != nil {
		return err
	}
	if s.Publisher != nil {
		s.Publisher.Publish(board.NewEvent(board.EventDayReopened, date))
	}
	return nil
}

// ClosedDays lists closures in an inclusive range.
func (s *Service) ClosedDays(ctx context.Context, from, to string) ([]closures.ClosedDay, error) {
	return s.Closures.List(ctx, from, to)
}

type userTimes struct {
	userID, name string
	times        []string
}

func groupByUser(appts []appointments.Appointment) []userTimes {
	index := map[string]int{}
	var out []userTimes
	for _, a := range appts {
		i, ok := index[a.UserID]
		if !ok {
			i = len(out)
			index[a.UserID] = i
			out = append(out, userTimes{userID: a.UserID, name: a.UserName})
		}
		out[i].times = append(out[i].times, a.Time)
	}
	for i := range out {
		sort.Strings(out[i].times)
	}
	return out
}

// BoardSlot is one cell on the scheduling board.
type BoardSlot struct {
	Time        string                    `json:"time"`
	Appointment *appointments.Appointment `json:"appointment,omitempty"`
}

// BoardDay is one column of the board.
type BoardDay struct {
	Date         string                               `json:"date"`
	Weekday      schedule.Weekday                     `json:"weekday"`
	Closed       bool                                 `json:"is_closed"`
	ClosedReason string                               `json:"closed_reason,omitempty"`
	Services     map[schedule.ServiceType][]BoardSlot `json:"services"`
	WaitingList  []waitlist.Entry                     `json:"waiting_list"`
}

// Board is the admin week view.
type Board struct {
	WeekStart string     `json:"week_start"`
	Days      []BoardDay `json:"days"`
}

// WeekBoard builds Monday to Saturday of the week at offset from today.
// Booked times missing from the current templates still appear.
func (s *Service) WeekBoard(ctx context.Context, actor auth.Actor, offset int) (*Board, error) {
	if !actor.IsAdmin {
		return nil, apperrors.ErrForbidden
	}
	days := availability.WeekDates(s.today(s.now()), offset)
	from := days[0].Format(schedule.DateLayout)
	to := days[len(days)-1].Format(schedule.DateLayout)

	appts, err := s.Ledger.ListConfirmedBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	closed, err := s.Closures.List(ctx, from, to)
	if err != nil {
		return nil, err
	}
	waiting, err := s.Waitlist.ListBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}

	reasons := map[string]string{}
	for _, c := range closed {
		reasons[c.Date] = c.Reason
	}
	type cell struct {
		date    string
		service schedule.ServiceType
	}
	booked := map[cell]map[string]*appointments.Appointment{}
	for i := range appts {
		a := &appts[i]
		k := cell{a.Date, a.ServiceType}
		if booked[k] == nil {
			booked[k] = map[string]*appointments.Appointment{}
		}
		booked[k][a.Time] = a
	}
	queued := waitlist.GroupByDate(waiting)

	out := &Board{WeekStart: from, Days: make([]BoardDay, 0, len(days))}
	for _, d := range days {
		date := d.Format(schedule.DateLayout)
		weekday := schedule.WeekdayOf(d)
		reason, isClosed := reasons[date]
		day := BoardDay{
			Date:         date,
			Weekday:      weekday,
			Closed:       isClosed,
			ClosedReason: reason,
			Services:     map[schedule.ServiceType][]BoardSlot{},
			WaitingList:  queued[date],
		}
		if day.WaitingList == nil {
			day.WaitingList = []waitlist.Entry{}
		}
		for _, svc := range schedule.ServiceTypes {
			var times []string
			if s.Slots != nil {
				if times, err = s.Slots.Slots(ctx, weekday, svc); err != nil {
					return nil, err
				}
			}
			held := booked[cell{date, svc}]
			seen := map[string]bool{}
			for _, t := range times {
				seen[t] = true
			}
			for t := range held {
				if !seen[t] {
					times = append(times, t)
				}
			}
			sort.Strings(times)
			slots := make([]BoardSlot, 0, len(times))
			for _, t := range times {
				slots = append(slots, BoardSlot{Time: t, Appointment: held[t]})
			}
			day.Services[svc] = slots
		}
		out.Days = append(out.Days, day)
	}
	return out, nil
}

// ConfirmReply marks a patient's reply as confirmed by staff.
func (s *Service) ConfirmReply(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	if !actor.IsAdmin {
		return apperrors.ErrForbidden
	}
	if err := s.Ledger.Confirm(ctx, id, s.now()); err != nil {
		return err
	}
	s.publishReply(ctx, id)
	return nil
}

// ConfirmUserDay confirms every booking a patient holds on date.
func (s *Service) ConfirmUserDay(ctx context.Context, actor auth.Actor, userID, date string) (int, error) {
	if !actor.IsAdmin {
		return 0, apperrors.ErrForbidden
	}
	if _, err := schedule.ParseDate(date, s.loc); err != nil {
		return 0, err
	}
	n, err := s.Ledger.ConfirmUserDay(ctx, userID, date, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 && s.Publisher != nil {
		s.Publisher.Publish(board.NewEvent(board.EventReplied, date))
	}
	return n, nil
}

// ResetReply clears the reply state back to unreplied.
func (s *Service) ResetReply(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	if !actor.IsAdmin {
		return apperrors.ErrForbidden
	}
	if err := s.Ledger.ResetReply(ctx, id); err != nil {
		return err
	}
	s.publishReply(ctx, id)
	return nil
}

// RecordInboundReply attaches free text from a patient to their nearest
// upcoming booking. It returns nil when they have none.
func (s *Service) RecordInboundReply(ctx context.Context, userID, text string, at time.Time) (*appointments.Appointment, error) {
	local := at.In(s.loc)
	next, err := s.Ledger.NextForUser(ctx, userID, local.Format(schedule.DateLayout), local.Format("15:04"))
	if err != nil || next == nil {
		return nil, err
	}
	if err := s.Ledger.MarkReplied(ctx, next.ID, text, at); err != nil {
		return nil, err
	}
	s.publishReply(ctx, next.ID)
	return next, nil
}

func (s *Service) publishReply(ctx context.Context, id uuid.UUID) {
	if s.Publisher == nil {
		return
	}
	a, err := s.Ledger.Get(ctx, nil, id)
	if err != nil {
		return
	}
	s.publish(board.EventReplied, a)
}

// AddToWaitlist queues a patient on a date.
func (s *Service) AddToWaitlist(ctx context.Context, actor auth.Actor, e *waitlist.Entry) error {
	if e.UserID == "" {
		e.UserID = actor.UserID
	}
	if !actor.CanActFor(e.UserID) {
		return apperrors.ErrForbidden
	}
	if err := s.Waitlist.Add(ctx, e); err != nil {
		return err
	}
	if s.Publisher != nil {
		s.Publisher.Publish(board.NewEvent(board.EventWaitlist, e.Date))
	}
	return nil
}

// RemoveFromWaitlist deletes an entry without booking it.
func (s *Service) RemoveFromWaitlist(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	if !actor.IsAdmin {
		return apperrors.ErrForbidden
	}
	entry, err := s.Waitlist.Get(ctx, nil, id)
	if err != nil {
		return err
	}
	if err := s.Waitlist.Delete(ctx, nil, id); err != nil {
		return err
	}
	if s.Publisher != nil {
		s.Publisher.Publish(board.NewEvent(board.EventWaitlist, entry.Date))
	}
	return nil
}

// Available lists open slots on date.
func (s *Service) Available(ctx context.Context, date string, service schedule.ServiceType) ([]string, error) {
	return s.Availability.Available(ctx, date, service, s.now())
}

// Dates lists the bookable days of the week at offset.
func (s *Service) Dates(ctx context.Context, offset int) ([]availability.DateOption, error) {
	return s.Availability.Dates(ctx, s.now(), offset, s.Deps.WindowWeeks)
}
