package booking

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-booking/internal/apperrors"
	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/availability"
	"github.com/wolfman30/clinic-booking/internal/board"
	"github.com/wolfman30/clinic-booking/internal/closures"
	"github.com/wolfman30/clinic-booking/internal/messaging"
	"github.com/wolfman30/clinic-booking/internal/reminders"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/internal/storage"
	"github.com/wolfman30/clinic-booking/internal/users"
	"github.com/wolfman30/clinic-booking/internal/waitlist"
)

var taipei = time.FixedZone("Asia/Taipei", 8*3600)

// Monday 2025-10-13 09:00 in the clinic zone.
var clinicNow = time.Date(2025, 10, 13, 9, 0, 0, 0, taipei)

// memLedger keeps appointments in memory and enforces one confirmed booking
// per slot the way the partial unique index does.
type memLedger struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*appointments.Appointment
	seq  []uuid.UUID
}

func newMemLedger() *memLedger {
	return &memLedger{rows: map[uuid.UUID]*appointments.Appointment{}}
}

func (l *memLedger) snapshot() (map[uuid.UUID]appointments.Appointment, []uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[uuid.UUID]appointments.Appointment, len(l.rows))
	for id, a := range l.rows {
		out[id] = *a
	}
	return out, append([]uuid.UUID(nil), l.seq...)
}

func (l *memLedger) restore(rows map[uuid.UUID]appointments.Appointment, seq []uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = make(map[uuid.UUID]*appointments.Appointment, len(rows))
	for id, a := range rows {
		a := a
		l.rows[id] = &a
	}
	l.seq = seq
}

func (l *memLedger) Insert(_ context.Context, _ storage.Querier, a *appointments.Appointment) error {
	if err := a.Slot().Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.rows {
		if r.Status == appointments.StatusConfirmed && r.Slot() == a.Slot() {
			return apperrors.ErrSlotConflict
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Status = appointments.StatusConfirmed
	a.ReplyStatus = appointments.ReplyUnreplied
	cp := *a
	l.rows[a.ID] = &cp
	l.seq = append(l.seq, a.ID)
	return nil
}

func (l *memLedger) Get(_ context.Context, _ storage.Querier, id uuid.UUID) (*appointments.Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.rows[id]
	if !ok {
		return nil, apperrors.NotFound("appointment", id)
	}
	cp := *a
	return &cp, nil
}

func (l *memLedger) confirmed(match func(a *appointments.Appointment) bool) []appointments.Appointment {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []appointments.Appointment
	for _, id := range l.seq {
		a := l.rows[id]
		if a.Status == appointments.StatusConfirmed && match(a) {
			out = append(out, *a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out
}

func (l *memLedger) BookedTimes(_ context.Context, date string, service schedule.ServiceType) ([]string, error) {
	var out []string
	for _, a := range l.confirmed(func(a *appointments.Appointment) bool {
		return a.Date == date && a.ServiceType == service
	}) {
		out = append(out, a.Time)
	}
	return out, nil
}

func (l *memLedger) Cancel(_ context.Context, _ storage.Querier, id uuid.UUID, status appointments.Status) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.rows[id]
	if !ok || a.Status != appointments.StatusConfirmed {
		return false, nil
	}
	a.Status = status
	return true, nil
}

func (l *memLedger) CancelSlot(_ context.Context, _ storage.Querier, slot appointments.Slot) (*appointments.Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.rows {
		if a.Status == appointments.StatusConfirmed && a.Slot() == slot {
			a.Status = appointments.StatusCancelledByClinic
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (l *memLedger) CancelDay(_ context.Context, _ storage.Querier, date string) ([]appointments.Appointment, error) {
	held := l.confirmed(func(a *appointments.Appointment) bool { return a.Date == date })
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range held {
		l.rows[held[i].ID].Status = appointments.StatusCancelledByClinic
		held[i].Status = appointments.StatusCancelledByClinic
	}
	return held, nil
}

func (l *memLedger) ListConfirmedBetween(_ context.Context, from, to string) ([]appointments.Appointment, error) {
	return l.confirmed(func(a *appointments.Appointment) bool { return a.Date >= from && a.Date <= to }), nil
}

func (l *memLedger) ListUpcomingForUser(_ context.Context, userID, fromDate string) ([]appointments.Appointment, error) {
	return l.confirmed(func(a *appointments.Appointment) bool { return a.UserID == userID && a.Date >= fromDate }), nil
}

func (l *memLedger) NextForUser(_ context.Context, userID, date, clock string) (*appointments.Appointment, error) {
	all := l.confirmed(func(a *appointments.Appointment) bool {
		return a.UserID == userID && (a.Date > date || (a.Date == date && a.Time >= clock))
	})
	if len(all) == 0 {
		return nil, nil
	}
	return &all[0], nil
}

func (l *memLedger) MarkReplied(_ context.Context, id uuid.UUID, text string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.rows[id]
	if !ok || a.Status != appointments.StatusConfirmed {
		return apperrors.NotFound("appointment", id)
	}
	if a.ReplyStatus != appointments.ReplyConfirmed {
		a.ReplyStatus = appointments.ReplyReplied
	}
	a.LastReply = text
	a.ReplyTime = &at
	return nil
}

func (l *memLedger) Confirm(_ context.Context, id uuid.UUID, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.rows[id]
	if !ok || a.Status != appointments.StatusConfirmed {
		return apperrors.NotFound("appointment", id)
	}
	a.ReplyStatus = appointments.ReplyConfirmed
	a.ConfirmTime = &at
	return nil
}

func (l *memLedger) ConfirmUserDay(_ context.Context, userID, date string, at time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, a := range l.rows {
		if a.UserID == userID && a.Date == date && a.Status == appointments.StatusConfirmed {
			a.ReplyStatus = appointments.ReplyConfirmed
			a.ConfirmTime = &at
			n++
		}
	}
	return n, nil
}

func (l *memLedger) ResetReply(_ context.Context, id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.rows[id]
	if !ok || a.Status != appointments.StatusConfirmed {
		return apperrors.NotFound("appointment", id)
	}
	a.ReplyStatus = appointments.ReplyUnreplied
	a.ConfirmTime = nil
	return nil
}

func (l *memLedger) PropagateUserName(_ context.Context, _ storage.Querier, userID, name string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, a := range l.rows {
		if a.UserID == userID {
			a.UserName = name
			n++
		}
	}
	return n, nil
}

func (l *memLedger) MoveUser(_ context.Context, _ storage.Querier, fromID, toID, name string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, a := range l.rows {
		if a.UserID == fromID {
			a.UserID, a.UserName = toID, name
			n++
		}
	}
	return n, nil
}

type memClosures struct {
	mu   sync.Mutex
	days map[string]string
}

func newMemClosures() *memClosures { return &memClosures{days: map[string]string{}} }

func (c *memClosures) Upsert(_ context.Context, _ storage.Querier, date, reason string) (*closures.ClosedDay, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.days[date] = reason
	return &closures.ClosedDay{Date: date, Reason: reason, CreatedAt: clinicNow}, nil
}

func (c *memClosures) Remove(_ context.Context, _ storage.Querier, date string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.days[date]; !ok {
		return apperrors.NotFound("closed day", date)
	}
	delete(c.days, date)
	return nil
}

func (c *memClosures) IsClosed(_ context.Context, _ storage.Querier, date string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.days[date]
	return ok, nil
}

func (c *memClosures) List(_ context.Context, from, to string) ([]closures.ClosedDay, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []closures.ClosedDay
	for d, r := range c.days {
		if (from == "" || d >= from) && (to == "" || d <= to) {
			out = append(out, closures.ClosedDay{Date: d, Reason: r})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (c *memClosures) Lock(context.Context, storage.Querier, string, bool) error { return nil }

type memWaitlist struct {
	mu      sync.Mutex
	entries []waitlist.Entry
}

func (w *memWaitlist) Add(_ context.Context, e *waitlist.Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	w.entries = append(w.entries, *e)
	return nil
}

func (w *memWaitlist) Get(_ context.Context, _ storage.Querier, id uuid.UUID) (*waitlist.Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range w.entries {
		if e.ID == id {
			cp := e
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("waiting list entry", id)
}

func (w *memWaitlist) Delete(_ context.Context, _ storage.Querier, id uuid.UUID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, e := range w.entries {
		if e.ID == id {
			w.entries = append(w.entries[:i:i], w.entries[i+1:]...)
			return nil
		}
	}
	return apperrors.NotFound("waiting list entry", id)
}

func (w *memWaitlist) ListBetween(_ context.Context, from, to string) ([]waitlist.Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []waitlist.Entry
	for _, e := range w.entries {
		if e.Date >= from && e.Date <= to {
			out = append(out, e)
		}
	}
	return out, nil
}

func (w *memWaitlist) MoveUser(_ context.Context, _ storage.Querier, fromID, toID, name string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for i := range w.entries {
		if w.entries[i].UserID == fromID {
			w.entries[i].UserID, w.entries[i].UserName = toID, name
			n++
		}
	}
	return n, nil
}

// memTx restores the ledger and waiting list when fn fails.
type memTx struct {
	ledger *memLedger
	wait   *memWaitlist
}

func (t *memTx) InTx(_ context.Context, fn func(q storage.Querier) error) error {
	rows, seq := t.ledger.snapshot()
	t.wait.mu.Lock()
	entries := append([]waitlist.Entry(nil), t.wait.entries...)
	t.wait.mu.Unlock()
	if err := fn(nil); err != nil {
		t.ledger.restore(rows, seq)
		t.wait.mu.Lock()
		t.wait.entries = entries
		t.wait.mu.Unlock()
		return err
	}
	return nil
}

// fixedSlots offers the same times every clinic weekday.
type fixedSlots map[schedule.ServiceType][]string

func (f fixedSlots) Slots(_ context.Context, weekday schedule.Weekday, service schedule.ServiceType) ([]string, error) {
	if weekday == schedule.Sunday {
		return nil, nil
	}
	return append([]string(nil), f[service]...), nil
}

type recordingOutbox struct {
	mu   sync.Mutex
	sent []messaging.Outbound
}

func (o *recordingOutbox) Deliver(_ context.Context, msg messaging.Outbound) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

func (o *recordingOutbox) byType(t messaging.MessageType) []messaging.Outbound {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []messaging.Outbound
	for _, m := range o.sent {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []board.Event
}

func (p *recordingPublisher) Publish(e board.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingStaff struct {
	date      string
	cancelled []appointments.Appointment
}

func (s *recordingStaff) NotifyClosure(_ context.Context, date, _ string, cancelled []appointments.Appointment) error {
	s.date = date
	s.cancelled = cancelled
	return nil
}

type recordingReminders struct {
	from, to string
	sel      reminders.Selector
}

func (r *recordingReminders) Range(_ context.Context, from, to string, sel reminders.Selector, _ time.Time) (reminders.Result, error) {
	r.from, r.to, r.sel = from, to, sel
	return reminders.Result{Attempted: 2, Sent: 2}, nil
}

type memUsers struct{ names map[string]string }

func (u *memUsers) Rename(_ context.Context, _ storage.Querier, id, name string) error {
	if _, ok := u.names[id]; !ok {
		return apperrors.NotFound("user", id)
	}
	u.names[id] = name
	return nil
}

func (u *memUsers) GetForUpdate(_ context.Context, _ storage.Querier, id string) (*users.User, error) {
	name, ok := u.names[id]
	if !ok {
		return nil, apperrors.NotFound("user", id)
	}
	return &users.User{ID: id, DisplayName: name}, nil
}

func (u *memUsers) Delete(_ context.Context, _ storage.Querier, id string) error {
	if _, ok := u.names[id]; !ok {
		return apperrors.NotFound("user", id)
	}
	delete(u.names, id)
	return nil
}

type harness struct {
	svc       *Service
	ledger    *memLedger
	closed    *memClosures
	wait      *memWaitlist
	outbox    *recordingOutbox
	publisher *recordingPublisher
	staff     *recordingStaff
	reminders *recordingReminders
	users     *memUsers
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		ledger:    newMemLedger(),
		closed:    newMemClosures(),
		wait:      &memWaitlist{},
		outbox:    &recordingOutbox{},
		publisher: &recordingPublisher{},
		staff:     &recordingStaff{},
		reminders: &recordingReminders{},
		users:     &memUsers{names: map[string]string{"u1": "Alice", "u2": "Bob"}},
	}
	slots := fixedSlots{
		schedule.ServiceConsultation: {"10:00", "14:00", "14:15"},
		schedule.ServiceMassage:      {"14:15", "14:30"},
	}
	h.svc = NewService(Deps{
		Ledger:       h.ledger,
		Closures:     h.closed,
		Waitlist:     h.wait,
		Availability: availability.NewResolver(slots, h.closed, h.ledger, taipei),
		Slots:        slots,
		Users:        h.users,
		Tx:           &memTx{ledger: h.ledger, wait: h.wait},
		Outbox:       h.outbox,
		Staff:        h.staff,
		Publisher:    h.publisher,
		Reminders:    h.reminders,
		WindowWeeks:  2,
		ClinicName:   "Test Clinic",
	})
	h.svc.now = func() time.Time { return clinicNow }
	return h
}
