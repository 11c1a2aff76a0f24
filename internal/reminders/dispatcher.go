package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/messaging"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/internal/settings"
	"github.com/wolfman30/clinic-booking/internal/users"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Ledger loads confirmed appointments in an inclusive date range.
type Ledger interface {
	ListConfirmedBetween(ctx context.Context, from, to string) ([]appointments.Appointment, error)
}

// CadenceSource returns stored preferences for the given users. Missing
// users count as unset.
type CadenceSource interface {
	Cadences(ctx context.Context, ids []string) (map[string]users.Cadence, error)
}

// SettingsSource supplies the editable reminder template.
type SettingsSource interface {
	Reminders(ctx context.Context) (*settings.Reminders, error)
}

// Deliverer sends and records one outbound message.
type Deliverer interface {
	Deliver(ctx context.Context, msg messaging.Outbound) error
}

// Metrics records sweep outcomes.
type Metrics interface {
	ObserveReminder(cadence string, sent, failed int)
}

// Result summarises one sweep. Attempted equals Sent plus Failed; Skipped
// counts reminders the selector excluded.
type Result struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Dispatcher builds and sends reminders.
type Dispatcher struct {
	ledger   Ledger
	cadences CadenceSource
	out      Deliverer
	settings SettingsSource
	metrics  Metrics
	loc      *time.Location
	logger   *logging.Logger
}

// NewDispatcher wires a dispatcher. settings and metrics may be nil.
func NewDispatcher(ledger Ledger, cadences CadenceSource, out Deliverer, settings SettingsSource, metrics Metrics, loc *time.Location, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Dispatcher{ledger: ledger, cadences: cadences, out: out, settings: settings, metrics: metrics, loc: loc, logger: logger}
}

// Dispatch sends one reminder per (user, date) among appts that the
// selector reaches. Appointments that are not confirmed or already started
// are dropped. A failed send does not stop the sweep.
func (d *Dispatcher) Dispatch(ctx context.Context, appts []appointments.Appointment, sel Selector, now time.Time) (Result, error) {
	return d.dispatch(ctx, appts, sel, now, typeFor(sel))
}

func (d *Dispatcher) dispatch(ctx context.Context, appts []appointments.Appointment, sel Selector, now time.Time, msgType messaging.MessageType) (Result, error) {
	var res Result
	upcoming := make([]appointments.Appointment, 0, len(appts))
	for _, a := range appts {
		if a.Status != appointments.StatusConfirmed {
			continue
		}
		start, err := schedule.SlotStart(a.Date, a.Time, d.loc)
		if err != nil || !start.After(now) {
			continue
		}
		upcoming = append(upcoming, a)
	}
	groups := Group(upcoming)
	if len(groups) == 0 {
		return res, nil
	}

	prefs, err := d.cadences.Cadences(ctx, userIDs(groups))
	if err != nil {
		return res, fmt.Errorf("reminders: load cadences: %w", err)
	}
	template := d.template(ctx)
	today := now.In(d.loc)

	for _, g := range groups {
		if !Selects(sel, prefs[g.UserID]) {
			res.Skipped++
			continue
		}
		res.Attempted++
		err := d.out.Deliver(ctx, messaging.Outbound{
			UserID:     g.UserID,
			TargetName: g.UserName,
			Type:       msgType,
			Text:       Render(template, g, today),
		})
		if err != nil {
			res.Failed++
			continue
		}
		res.Sent++
	}
	if d.metrics != nil {
		d.metrics.ObserveReminder(string(sel), res.Sent, res.Failed)
	}
	d.logger.Info("reminder sweep finished", "selector", sel, "attempted", res.Attempted, "sent", res.Sent, "failed", res.Failed, "skipped", res.Skipped)
	return res, nil
}

// Range sends reminders for the inclusive date range on staff request.
func (d *Dispatcher) Range(ctx context.Context, from, to string, sel Selector, now time.Time) (Result, error) {
	appts, err := d.ledger.ListConfirmedBetween(ctx, from, to)
	if err != nil {
		return Result{}, err
	}
	return d.dispatch(ctx, appts, sel, now, messaging.TypeReminderManual)
}

// RunDaily reminds daily-cadence users of today's remaining appointments.
func (d *Dispatcher) RunDaily(ctx context.Context, now time.Time) (Result, error) {
	today := now.In(d.loc).Format(schedule.DateLayout)
	appts, err := d.ledger.ListConfirmedBetween(ctx, today, today)
	if err != nil {
		return Result{}, err
	}
	return d.dispatch(ctx, appts, SelectDaily, now, messaging.TypeReminderDaily)
}

// RunWeekly reminds everyone else of next week's appointments, Monday
// through Sunday.
func (d *Dispatcher) RunWeekly(ctx context.Context, now time.Time) (Result, error) {
	from, to := NextWeek(now.In(d.loc))
	appts, err := d.ledger.ListConfirmedBetween(ctx, from, to)
	if err != nil {
		return Result{}, err
	}
	return d.dispatch(ctx, appts, SelectWeekly, now, messaging.TypeReminderWeekly)
}

// NextWeek returns the Monday and Sunday of the week after the one holding
// today.
func NextWeek(today time.Time) (from, to string) {
	monday := mondayOf(civil(today)).AddDate(0, 0, 7)
	return monday.Format(schedule.DateLayout), monday.AddDate(0, 0, 6).Format(schedule.DateLayout)
}

func (d *Dispatcher) template(ctx context.Context) string {
	if d.settings == nil {
		return settings.DefaultReminderTemplate
	}
	r, err := d.settings.Reminders(ctx)
	if err != nil {
		d.logger.Warn("reminder settings unavailable, using default template", "error", err)
		return settings.DefaultReminderTemplate
	}
	return r.TemplateOrDefault()
}

func typeFor(sel Selector) messaging.MessageType {
	switch sel {
	case SelectDaily:
		return messaging.TypeReminderDaily
	case SelectWeekly:
		return messaging.TypeReminderWeekly
	}
	return messaging.TypeReminderManual
}

func userIDs(groups []Reminder) []string {
	seen := map[string]bool{}
	var ids []string
	for _, g := range groups {
		if !seen[g.UserID] {
			seen[g.UserID] = true
			ids = append(ids, g.UserID)
		}
	}
	return ids
}
