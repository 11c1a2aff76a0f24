package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wolfman30/clinic-booking/internal/apperrors"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/internal/storage"
)

// ConfirmedSlotIndex is the partial unique index guarding confirmed slots.
const ConfirmedSlotIndex = "appointments_confirmed_slot_key"

const columns = `id, user_id, user_name, appt_date, appt_time, service_type, status, reply_status,
	last_reply, reply_time, confirm_time, created_at, updated_at`

// Store persists appointments. Methods taking a Querier run on it when non-nil
// so the orchestrator can compose them inside one transaction.
type Store struct {
	db  storage.Querier
	now func() time.Time
}

func NewStore(db storage.Querier) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) q(q storage.Querier) storage.Querier {
	if q == nil {
		return s.db
	}
	return q
}

// Insert records a confirmed booking. A second confirmed booking for the same
// slot fails with apperrors.ErrSlotConflict.
func (s *Store) Insert(ctx context.Context, q storage.Querier, a *Appointment) error {
	if err := a.Slot().Validate(); err != nil {
		return err
	}
	if a.UserID == "" {
		return apperrors.Validation("user id is required")
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := s.now().UTC()
	a.Status = StatusConfirmed
	a.ReplyStatus = ReplyUnreplied
	a.CreatedAt, a.UpdatedAt = now, now

	_, err := s.q(q).Exec(ctx, `
		INSERT INTO appointments (id, user_id, user_name, appt_date, appt_time, service_type, status, reply_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.UserID, a.UserName, a.Date, a.Time, string(a.ServiceType), string(a.Status), string(a.ReplyStatus), a.CreatedAt, a.UpdatedAt,
	)
	if storage.IsUniqueViolation(err, ConfirmedSlotIndex) {
		return fmt.Errorf("appointments: insert %s %s %s: %w", a.Date, a.Time, a.ServiceType, apperrors.ErrSlotConflict)
	}
	if err != nil {
		return fmt.Errorf("appointments: insert: %w", err)
	}
	return nil
}

// Get loads an appointment in any status.
func (s *Store) Get(ctx context.Context, q storage.Querier, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(s.q(q).QueryRow(ctx, `SELECT `+columns+` FROM appointments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("appointment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: get: %w", err)
	}
	return a, nil
}

// BookedTimes returns the confirmed times on date for one service type.
func (s *Store) BookedTimes(ctx context.Context, date string, service schedule.ServiceType) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT appt_time FROM appointments
		WHERE appt_date = $1 AND service_type = $2 AND status = 'confirmed'
		ORDER BY appt_time`, date, string(service))
	if err != nil {
		return nil, fmt.Errorf("appointments: booked times: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("appointments: scan booked time: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListConfirmedBetween returns confirmed appointments with from <= date <= to,
// ordered by date, time and service type.
func (s *Store) ListConfirmedBetween(ctx context.Context, from, to string) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+columns+` FROM appointments
		WHERE appt_date >= $1 AND appt_date <= $2 AND status = 'confirmed'
		ORDER BY appt_date, appt_time, service_type`, from, to)
	if err != nil {
		return nil, fmt.Errorf("appointments: list confirmed: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ListUpcomingForUser returns the user's confirmed appointments on or after fromDate.
func (s *Store) ListUpcomingForUser(ctx context.Context, userID, fromDate string) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+columns+` FROM appointments
		WHERE user_id = $1 AND appt_date >= $2 AND status = 'confirmed'
		ORDER BY appt_date, appt_time`, userID, fromDate)
	if err != nil {
		return nil, fmt.Errorf("appointments: list for user: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// NextForUser returns the user's earliest confirmed appointment strictly after
// the given local date and time, or nil.
func (s *Store) NextForUser(ctx context.Context, userID, date, clock string) (*Appointment, error) {
	a, err := scanAppointment(s.db.QueryRow(ctx, `
		SELECT `+columns+` FROM appointments
		WHERE user_id = $1 AND status = 'confirmed'
		  AND (appt_date > $2 OR (appt_date = $2 AND appt_time > $3))
		ORDER BY appt_date, appt_time
		LIMIT 1`, userID, date, clock))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: next for user: %w", err)
	}
	return a, nil
}

// Cancel moves a confirmed appointment to status. It reports whether a row
// changed; cancelled appointments never transition again.
func (s *Store) Cancel(ctx context.Context, q storage.Querier, id uuid.UUID, status Status) (bool, error) {
	if status != StatusCancelled && status != StatusCancelledByClinic {
		return false, apperrors.Validation("cannot cancel into status %q", status)
	}
	tag, err := s.q(q).Exec(ctx, `
		UPDATE appointments SET status = $2, updated_at = $3
		WHERE id = $1 AND status = 'confirmed'`, id, string(status), s.now().UTC())
	if err != nil {
		return false, fmt.Errorf("appointments: cancel: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CancelSlot cancels, as the clinic, whichever confirmed appointment occupies
// slot and returns it, or nil when the slot was empty.
func (s *Store) CancelSlot(ctx context.Context, q storage.Querier, slot Slot) (*Appointment, error) {
	a, err := scanAppointment(s.q(q).QueryRow(ctx, `
		UPDATE appointments SET status = 'cancelled_by_clinic', updated_at = $4
		WHERE appt_date = $1 AND appt_time = $2 AND service_type = $3 AND status = 'confirmed'
		RETURNING `+columns, slot.Date, slot.Time, string(slot.ServiceType), s.now().UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: cancel slot: %w", err)
	}
	return a, nil
}

// CancelDay marks every confirmed appointment on date as cancelled by the
// clinic and returns them.
func (s *Store) CancelDay(ctx context.Context, q storage.Querier, date string) ([]Appointment, error) {
	rows, err := s.q(q).Query(ctx, `
		UPDATE appointments SET status = 'cancelled_by_clinic', updated_at = $2
		WHERE appt_date = $1 AND status = 'confirmed'
		RETURNING `+columns, date, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("appointments: cancel day: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// MarkReplied records an inbound patient reply. A staff-confirmed reply status
// is kept; only the reply text and time move.
func (s *Store) MarkReplied(ctx context.Context, id uuid.UUID, text string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET reply_status = CASE WHEN reply_status = '已確認' THEN reply_status ELSE '已回覆' END,
		    last_reply = $2, reply_time = $3, updated_at = $3
		WHERE id = $1 AND status = 'confirmed'`, id, text, at.UTC())
	if err != nil {
		return fmt.Errorf("appointments: mark replied: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("appointment", id)
	}
	return nil
}

// Confirm records a staff confirmation of the patient's reply. Cancelled
// appointments report NotFound.
func (s *Store) Confirm(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET reply_status = '已確認', confirm_time = $2, updated_at = $2
		WHERE id = $1 AND status = 'confirmed'`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("appointments: confirm: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("appointment", id)
	}
	return nil
}

// ConfirmUserDay confirms every confirmed booking the user holds on date.
func (s *Store) ConfirmUserDay(ctx context.Context, userID, date string, at time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET reply_status = '已確認', confirm_time = $3, updated_at = $3
		WHERE user_id = $1 AND appt_date = $2 AND status = 'confirmed'`, userID, date, at.UTC())
	if err != nil {
		return 0, fmt.Errorf("appointments: confirm user day: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ResetReply returns the reply sub-state of a confirmed appointment to
// unreplied.
func (s *Store) ResetReply(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET reply_status = '未回覆', last_reply = '', reply_time = NULL, confirm_time = NULL, updated_at = $2
		WHERE id = $1 AND status = 'confirmed'`, id, s.now().UTC())
	if err != nil {
		return fmt.Errorf("appointments: reset reply: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("appointment", id)
	}
	return nil
}

// PropagateUserName refreshes the name snapshot on the user's appointments.
func (s *Store) PropagateUserName(ctx context.Context, q storage.Querier, userID, name string) (int, error) {
	tag, err := s.q(q).Exec(ctx, `
		UPDATE appointments SET user_name = $2, updated_at = $3
		WHERE user_id = $1 AND user_name <> $2`, userID, name, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("appointments: propagate user name: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// MoveUser reassigns every appointment of fromID to toID, refreshing the name
// snapshot to name.
func (s *Store) MoveUser(ctx context.Context, q storage.Querier, fromID, toID, name string) (int, error) {
	tag, err := s.q(q).Exec(ctx, `
		UPDATE appointments SET user_id = $2, user_name = $3, updated_at = $4
		WHERE user_id = $1`, fromID, toID, name, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("appointments: move user: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var service, status, reply string
	err := row.Scan(&a.ID, &a.UserID, &a.UserName, &a.Date, &a.Time, &service, &status, &reply,
		&a.LastReply, &a.ReplyTime, &a.ConfirmTime, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.ServiceType = schedule.ServiceType(service)
	a.Status = Status(status)
	a.ReplyStatus = ReplyStatus(reply)
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: rows: %w", err)
	}
	return out, nil
}
