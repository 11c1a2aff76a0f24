// Package booking orchestrates every write to the ledger: patient bookings
// and cancellations, staff reassignment from the scheduling board, day
// closures and reminder sweeps.
package booking

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-booking/internal/apperrors"
	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/auth"
	"github.com/wolfman30/clinic-booking/internal/availability"
	"github.com/wolfman30/clinic-booking/internal/board"
	"github.com/wolfman30/clinic-booking/internal/closures"
	"github.com/wolfman30/clinic-booking/internal/messaging"
	"github.com/wolfman30/clinic-booking/internal/reminders"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/internal/storage"
	"github.com/wolfman30/clinic-booking/internal/users"
	"github.com/wolfman30/clinic-booking/internal/waitlist"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.booking")

// Ledger is the booking ledger. Methods taking a Querier join the caller's
// transaction when it is non-nil.
type Ledger interface {
	Insert(ctx context.Context, q storage.Querier, a *appointments.Appointment) error
	Get(ctx context.Context, q storage.Querier, id uuid.UUID) (*appointments.Appointment, error)
	BookedTimes(ctx context.Context, date string, service schedule.ServiceType) ([]string, error)
	Cancel(ctx context.Context, q storage.Querier, id uuid.UUID, status appointments.Status) (bool, error)
	CancelSlot(ctx context.Context, q storage.Querier, slot appointments.Slot) (*appointments.Appointment, error)
	CancelDay(ctx context.Context, q storage.Querier, date string) ([]appointments.Appointment, error)
	ListConfirmedBetween(ctx context.Context, from, to string) ([]appointments.Appointment, error)
	ListUpcomingForUser(ctx context.Context, userID, fromDate string) ([]appointments.Appointment, error)
	NextForUser(ctx context.Context, userID, date, clock string) (*appointments.Appointment, error)
	MarkReplied(ctx context.Context, id uuid.UUID, text string, at time.Time) error
	Confirm(ctx context.Context, id uuid.UUID, at time.Time) error
	ConfirmUserDay(ctx context.Context, userID, date string, at time.Time) (int, error)
	ResetReply(ctx context.Context, id uuid.UUID) error
	PropagateUserName(ctx context.Context, q storage.Querier, userID, name string) (int, error)
	MoveUser(ctx context.Context, q storage.Querier, fromID, toID, name string) (int, error)
}

// Closures is the closed-day registry plus its date lock.
type Closures interface {
	Upsert(ctx context.Context, q storage.Querier, date, reason string) (*closures.ClosedDay, error)
	Remove(ctx context.Context, q storage.Querier, date string) error
	IsClosed(ctx context.Context, q storage.Querier, date string) (bool, error)
	List(ctx context.Context, from, to string) ([]closures.ClosedDay, error)
	Lock(ctx context.Context, q storage.Querier, date string, exclusive bool) error
}

// Waitlist is the per-date waiting list.
type Waitlist interface {
	Add(ctx context.Context, e *waitlist.Entry) error
	Get(ctx context.Context, q storage.Querier, id uuid.UUID) (*waitlist.Entry, error)
	Delete(ctx context.Context, q storage.Querier, id uuid.UUID) error
	ListBetween(ctx context.Context, from, to string) ([]waitlist.Entry, error)
	MoveUser(ctx context.Context, q storage.Querier, fromID, toID, name string) (int, error)
}

// Availability answers read-only slot questions.
type Availability interface {
	Available(ctx context.Context, date string, service schedule.ServiceType, now time.Time) ([]string, error)
	IsClosed(ctx context.Context, date string) (bool, error)
	Dates(ctx context.Context, now time.Time, offset, windowWeeks int) ([]availability.DateOption, error)
	Location() *time.Location
}

// SlotSource expands templates for the board.
type SlotSource interface {
	Slots(ctx context.Context, weekday schedule.Weekday, service schedule.ServiceType) ([]string, error)
}

// Users renames and merges patients inside a transaction.
type Users interface {
	Rename(ctx context.Context, q storage.Querier, id, name string) error
	GetForUpdate(ctx context.Context, q storage.Querier, id string) (*users.User, error)
	Delete(ctx context.Context, q storage.Querier, id string) error
}

// Transactor runs fn in one database transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(q storage.Querier) error) error
}

// Outbox delivers patient-facing chat messages.
type Outbox interface {
	Deliver(ctx context.Context, msg messaging.Outbound) error
}

// StaffNotifier emails staff about closures.
type StaffNotifier interface {
	NotifyClosure(ctx context.Context, date, reason string, cancelled []appointments.Appointment) error
}

// Publisher pushes board changes to live clients.
type Publisher interface {
	Publish(e board.Event)
}

// ReminderRunner sends reminders for a date range.
type ReminderRunner interface {
	Range(ctx context.Context, from, to string, sel reminders.Selector, now time.Time) (reminders.Result, error)
}

// Metrics records operation outcomes.
type Metrics interface {
	ObserveBooking(operation, outcome string, seconds float64)
}

// Deps are the collaborators of a Service. Outbox, Staff, Publisher, Users,
// Slots and Metrics may be nil.
type Deps struct {
	Ledger       Ledger
	Closures     Closures
	Waitlist     Waitlist
	Availability Availability
	Slots        SlotSource
	Users        Users
	Tx           Transactor
	Outbox       Outbox
	Staff        StaffNotifier
	Publisher    Publisher
	Reminders    ReminderRunner
	Metrics      Metrics
	Logger       *logging.Logger
	WindowWeeks  int
	ClinicName   string
}

// Service is the booking orchestrator.
type Service struct {
	Deps
	loc *time.Location
	now func() time.Time
}

func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = logging.Default()
	}
	if d.WindowWeeks <= 0 {
		d.WindowWeeks = 2
	}
	loc := time.UTC
	if d.Availability != nil && d.Availability.Location() != nil {
		loc = d.Availability.Location()
	}
	return &Service{Deps: d, loc: loc, now: time.Now}
}

// Location is the clinic time zone.
func (s *Service) Location() *time.Location { return s.loc }

// BookingWindow is how many weeks ahead patients may book.
func (s *Service) BookingWindow() int { return s.Deps.WindowWeeks }

func (s *Service) today(now time.Time) time.Time {
	l := now.In(s.loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, s.loc)
}

// BookRequest asks for one slot. Notify sends the patient a confirmation
// message; the chat flow replies inline instead.
type BookRequest struct {
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	ServiceType string `json:"service_type"`
	Notify      bool   `json:"-"`
}

// Book confirms a slot for a patient. Patients may only book for themselves
// inside the booking window. The ledger's uniqueness rule decides races.
func (s *Service) Book(ctx context.Context, actor auth.Actor, req BookRequest) (appt *appointments.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "booking.book", trace.WithAttributes(
		attribute.String("booking.date", req.Date),
		attribute.String("booking.time", req.Time),
	))
	defer s.finish(span, "book", time.Now(), &err)

	if req.UserID == "" {
		req.UserID = actor.UserID
	}
	if !actor.CanActFor(req.UserID) {
		return nil, apperrors.ErrForbidden
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, apperrors.Validation("user id is required")
	}
	service, err := schedule.ParseServiceType(req.ServiceType)
	if err != nil {
		return nil, err
	}
	slot := appointments.Slot{Date: req.Date, Time: req.Time, ServiceType: service}
	if err := slot.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	if !actor.IsAdmin {
		day, _ := schedule.ParseDate(req.Date, s.loc)
		today := s.today(now)
		if day.Before(today) || !day.Before(availability.WindowEnd(today, s.Deps.WindowWeeks)) {
			return nil, apperrors.Validation("date %s is outside the %d-week booking window", req.Date, s.Deps.WindowWeeks)
		}
	}

	closed, err := s.Availability.IsClosed(ctx, req.Date)
	if err != nil {
		return nil, err
	}
	if closed {
		return nil, apperrors.ErrClosedDay
	}
	if err := s.checkBookable(ctx, slot, now); err != nil {
		return nil, err
	}

	appt = &appointments.Appointment{
		UserID:      req.UserID,
		UserName:    strings.TrimSpace(req.UserName),
		Date:        slot.Date,
		Time:        slot.Time,
		ServiceType: slot.ServiceType,
	}
	err = s.Tx.InTx(ctx, func(q storage.Querier) error {
		return s.insertLocked(ctx, q, appt)
	})
	if err != nil {
		return nil, err
	}

	s.publish(board.EventBooked, appt)
	if req.Notify || actor.UserID != appt.UserID {
		s.deliver(ctx, appt.UserID, appt.UserName, messaging.TypeAppointmentConfirmed, ConfirmationText(appt, s.loc, now))
	}
	return appt, nil
}

// checkBookable rejects slots that are not currently offered. A taken slot
// is a conflict so the caller can re-prompt.
func (s *Service) checkBookable(ctx context.Context, slot appointments.Slot, now time.Time) error {
	open, err := s.Availability.Available(ctx, slot.Date, slot.ServiceType, now)
	if err != nil {
		return err
	}
	if slices.Contains(open, slot.Time) {
		return nil
	}
	booked, err := s.Ledger.BookedTimes(ctx, slot.Date, slot.ServiceType)
	if err != nil {
		return err
	}
	if slices.Contains(booked, slot.Time) {
		return apperrors.ErrSlotConflict
	}
	return apperrors.Validation("%s %s is not an available %s slot", slot.Date, slot.Time, slot.ServiceType)
}

// insertLocked takes the shared date lock, re-checks the closure and inserts.
func (s *Service) insertLocked(ctx context.Context, q storage.Querier, appt *appointments.Appointment) error {
	if err := s.Closures.Lock(ctx, q, appt.Date, false); err != nil {
		return err
	}
	closed, err := s.Closures.IsClosed(ctx, q, appt.Date)
	if err != nil {
		return err
	}
	if closed {
		return apperrors.ErrClosedDay
	}
	return s.Ledger.Insert(ctx, q, appt)
}

// CancelOwn cancels an appointment on behalf of its owner. Staff may cancel
// any appointment; those are recorded as cancelled by the clinic and the
// patient is told. Cancelling twice is a no-op.
func (s *Service) CancelOwn(ctx context.Context, actor auth.Actor, id uuid.UUID) (appt *appointments.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "booking.cancel", trace.WithAttributes(attribute.String("booking.id", id.String())))
	defer s.finish(span, "cancel", time.Now(), &err)

	appt, err = s.Ledger.Get(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanActFor(appt.UserID) {
		return nil, apperrors.ErrForbidden
	}
	if appt.Status != appointments.StatusConfirmed {
		return appt, nil
	}
	return s.cancel(ctx, actor, appt)
}

func (s *Service) cancel(ctx context.Context, actor auth.Actor, appt *appointments.Appointment) (*appointments.Appointment, error) {
	status := appointments.StatusCancelled
	byClinic := actor.IsAdmin && actor.UserID != appt.UserID
	if byClinic {
		status = appointments.StatusCancelledByClinic
	}
	changed, err := s.Ledger.Cancel(ctx, nil, appt.ID, status)
	if err != nil {
		return nil, err
	}
	if !changed {
		return s.Ledger.Get(ctx, nil, appt.ID)
	}
	appt.Status = status
	s.publish(board.EventCancelled, appt)
	if byClinic {
		s.deliver(ctx, appt.UserID, appt.UserName, messaging.TypeAppointmentCancelled, CancellationText(appt))
	}
	return appt, nil
}

// CancelNext cancels the caller's earliest upcoming appointment.
func (s *Service) CancelNext(ctx context.Context, actor auth.Actor) (appt *appointments.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "booking.cancel_next")
	defer s.finish(span, "cancel_next", time.Now(), &err)

	local := s.now().In(s.loc)
	next, err := s.Ledger.NextForUser(ctx, actor.UserID, local.Format(schedule.DateLayout), local.Format("15:04"))
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, apperrors.NotFound("upcoming appointment for user", actor.UserID)
	}
	return s.cancel(ctx, actor, next)
}

// Upcoming lists a patient's confirmed appointments from today on.
func (s *Service) Upcoming(ctx context.Context, actor auth.Actor, userID string) ([]appointments.Appointment, error) {
	if userID == "" {
		userID = actor.UserID
	}
	if !actor.CanActFor(userID) {
		return nil, apperrors.ErrForbidden
	}
	return s.Ledger.ListUpcomingForUser(ctx, userID, s.today(s.now()).Format(schedule.DateLayout))
}

// ReassignRequest drives a drop on the scheduling board. Without NewUserID
// the slot is only cleared.
type ReassignRequest struct {
	Date          string     `json:"date"`
	Time          string     `json:"time"`
	ServiceType   string     `json:"service_type"`
	NewUserID     string     `json:"new_user_id,omitempty"`
	NewUserName   string     `json:"new_user_name,omitempty"`
	WaitingListID *uuid.UUID `json:"waiting_list_id,omitempty"`
}

// ReassignResult reports what changed.
type ReassignResult struct {
	Cancelled *appointments.Appointment `json:"cancelled,omitempty"`
	Booked    *appointments.Appointment `json:"booked,omitempty"`
}

// AdminReassign clears a slot and optionally books a new patient into it,
// consuming a waiting-list entry. All of it commits or none of it does.
func (s *Service) AdminReassign(ctx context.Context, actor auth.Actor, req ReassignRequest) (res *ReassignResult, err error) {
	ctx, span := tracer.Start(ctx, "booking.reassign", trace.WithAttributes(
		attribute.String("booking.date", req.Date),
		attribute.String("booking.time", req.Time),
	))
	defer s.finish(span, "reassign", time.Now(), &err)

	if !actor.IsAdmin {
		return nil, apperrors.ErrForbidden
	}
	service, err := schedule.ParseServiceType(req.ServiceType)
	if err != nil {
		return nil, err
	}
	slot := appointments.Slot{Date: req.Date, Time: req.Time, ServiceType: service}
	if err := slot.Validate(); err != nil {
		return nil, err
	}
	if req.WaitingListID != nil && strings.TrimSpace(req.NewUserID) == "" {
		return nil, apperrors.Validation("waiting_list_id requires new_user_id")
	}

	res = &ReassignResult{}
	err = s.Tx.InTx(ctx, func(q storage.Querier) error {
		if err := s.Closures.Lock(ctx, q, slot.Date, false); err != nil {
			return err
		}
		cancelled, err := s.Ledger.CancelSlot(ctx, q, slot)
		if err != nil {
			return err
		}
		res.Cancelled = cancelled
		if req.NewUserID == "" {
			return nil
		}

		name := strings.TrimSpace(req.NewUserName)
		if req.WaitingListID != nil && name == "" {
			entry, err := s.Waitlist.Get(ctx, q, *req.WaitingListID)
			if err != nil {
				return err
			}
			name = entry.UserName
		}
		booked := &appointments.Appointment{UserID: req.NewUserID, UserName: name, Date: slot.Date, Time: slot.Time, ServiceType: slot.ServiceType}
		if err := s.insertLocked(ctx, q, booked); err != nil {
			return err
		}
		res.Booked = booked
		if req.WaitingListID != nil {
			return s.Waitlist.Delete(ctx, q, *req.WaitingListID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	if c := res.Cancelled; c != nil {
		s.publish(board.EventCancelled, c)
		if res.Booked == nil || res.Booked.UserID != c.UserID {
			s.deliver(ctx, c.UserID, c.UserName, messaging.TypeAppointmentCancelled, CancellationText(c))
		}
	}
	if b := res.Booked; b != nil {
		s.publish(board.EventBooked, b)
		s.deliver(ctx, b.UserID, b.UserName, messaging.TypeAppointmentConfirmed, ConfirmationText(b, s.loc, now))
	}
	if req.WaitingListID != nil && s.Publisher != nil {
		s.Publisher.Publish(board.NewEvent(board.EventWaitlist, slot.Date))
	}
	return res, nil
}

// BulkReminder sends reminders for a date range. It never touches the ledger.
func (s *Service) BulkReminder(ctx context.Context, actor auth.Actor, from, to, selector string) (res reminders.Result, err error) {
	ctx, span := tracer.Start(ctx, "booking.bulk_reminder")
	defer s.finish(span, "bulk_reminder", time.Now(), &err)

	if !actor.IsAdmin {
		return res, apperrors.ErrForbidden
	}
	sel, ok := reminders.ParseSelector(selector)
	if !ok {
		return res, apperrors.Validation("cadence must be daily, weekly or all")
	}
	if _, err := schedule.ParseDate(from, s.loc); err != nil {
		return res, err
	}
	if _, err := schedule.ParseDate(to, s.loc); err != nil {
		return res, err
	}
	if to < from {
		return res, apperrors.Validation("end date %s is before start date %s", to, from)
	}
	return s.Reminders.Range(ctx, from, to, sel, s.now())
}

// RenameUser changes a patient's display name and refreshes the snapshot on
// their appointments in the same transaction.
func (s *Service) RenameUser(ctx context.Context, actor auth.Actor, userID, name string) (updated int, err error) {
	if !actor.CanActFor(userID) {
		return 0, apperrors.ErrForbidden
	}
	if s.Users == nil {
		return 0, errors.New("booking: user store not configured")
	}
	err = s.Tx.InTx(ctx, func(q storage.Querier) error {
		if err := s.Users.Rename(ctx, q, userID, name); err != nil {
			return err
		}
		updated, err = s.Ledger.PropagateUserName(ctx, q, userID, strings.TrimSpace(name))
		return err
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// MergeResult counts what a merge moved.
type MergeResult struct {
	Target       string `json:"target_user_id"`
	Appointments int    `json:"appointments_moved"`
	Waitlist     int    `json:"waitlist_moved"`
}

// MergeUsers folds sourceID into targetID: the source's appointments and
// waiting-list entries move to the target under the target's name, and the
// source user is deleted. Everything happens in one transaction.
func (s *Service) MergeUsers(ctx context.Context, actor auth.Actor, sourceID, targetID string) (res *MergeResult, err error) {
	if !actor.IsAdmin {
		return nil, apperrors.ErrForbidden
	}
	sourceID, targetID = strings.TrimSpace(sourceID), strings.TrimSpace(targetID)
	if sourceID == "" || targetID == "" {
		return nil, apperrors.Validation("source_user_id and target_user_id are required")
	}
	if sourceID == targetID {
		return nil, apperrors.Validation("cannot merge a user into itself")
	}
	if s.Users == nil {
		return nil, errors.New("booking: user store not configured")
	}

	res = &MergeResult{Target: targetID}
	err = s.Tx.InTx(ctx, func(q storage.Querier) error {
		target, err := s.Users.GetForUpdate(ctx, q, targetID)
		if err != nil {
			return err
		}
		if _, err := s.Users.GetForUpdate(ctx, q, sourceID); err != nil {
			return err
		}
		if res.Appointments, err = s.Ledger.MoveUser(ctx, q, sourceID, targetID, target.DisplayName); err != nil {
			return err
		}
		if res.Waitlist, err = s.Waitlist.MoveUser(ctx, q, sourceID, targetID, target.DisplayName); err != nil {
			return err
		}
		if _, err := s.Ledger.PropagateUserName(ctx, q, targetID, target.DisplayName); err != nil {
			return err
		}
		return s.Users.Delete(ctx, q, sourceID)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("users merged", "source", sourceID, "target", targetID, "appointments", res.Appointments, "waitlist", res.Waitlist)
	return res, nil
}

func (s *Service) publish(eventType string, a *appointments.Appointment) {
	if s.Publisher == nil {
		return
	}
	e := board.NewEvent(eventType, a.Date)
	e.Time = a.Time
	e.ServiceType = string(a.ServiceType)
	e.ID = a.ID.String()
	s.Publisher.Publish(e)
}

// deliver sends a patient message. Failures are logged and never undo the
// ledger change that prompted them.
func (s *Service) deliver(ctx context.Context, userID, name string, t messaging.MessageType, text string) {
	if s.Outbox == nil {
		return
	}
	if err := s.Outbox.Deliver(ctx, messaging.Outbound{UserID: userID, TargetName: name, Type: t, Text: text}); err != nil {
		s.Logger.Warn("patient notification failed", "user_id", userID, "type", t, "error", err)
	}
}

func (s *Service) finish(span trace.Span, op string, start time.Time, errp *error) {
	err := *errp
	outcome := outcomeOf(err)
	span.SetAttributes(attribute.String("booking.outcome", outcome))
	if err != nil && outcome == "error" {
		span.RecordError(err)
		s.Logger.Error("booking operation failed", "operation", op, "error", err)
	}
	span.End()
	if s.Metrics != nil {
		s.Metrics.ObserveBooking(op, outcome, time.Since(start).Seconds())
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if apperrors.IsBusiness(err) {
		return apperrors.Code(err)
	}
	return "error"
}
