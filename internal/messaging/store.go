package messaging

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wolfman30/clinic-booking/internal/apperrors"
	"github.com/wolfman30/clinic-booking/internal/storage"
)

// Scheduled message states.
const (
	ScheduledPending = "pending"
	ScheduledSending = "sending"
	ScheduledSent    = "sent"
	ScheduledFailed  = "failed"
)

// ScheduledMessage is a custom message staff queued for a future time. An
// empty UserID addresses every known user.
type ScheduledMessage struct {
	ID        uuid.UUID  `json:"id"`
	UserID    string     `json:"user_id,omitempty"`
	Body      string     `json:"body"`
	SendAt    time.Time  `json:"send_at"`
	Status    string     `json:"status"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

const scheduledColumns = `id, COALESCE(user_id, ''), body, send_at, status, sent_at, COALESCE(last_error, ''), created_at`

// ScheduledStore persists scheduled custom messages.
type ScheduledStore struct {
	db storage.Querier
}

func NewScheduledStore(db storage.Querier) *ScheduledStore {
	return &ScheduledStore{db: db}
}

// Create queues a message.
func (s *ScheduledStore) Create(ctx context.Context, m *ScheduledMessage) error {
	if strings.TrimSpace(m.Body) == "" {
		return apperrors.Validation("message body is required")
	}
	if m.SendAt.IsZero() {
		return apperrors.Validation("send_at is required")
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.Status = ScheduledPending
	m.CreatedAt = time.Now().UTC()
	var userID any
	if m.UserID != "" {
		userID = m.UserID
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO scheduled_messages (id, user_id, body, send_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, userID, m.Body, m.SendAt.UTC(), m.Status, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("messaging: create scheduled: %w", err)
	}
	return nil
}

// ClaimDue moves up to limit due pending messages to sending and returns
// them, oldest first. Rows locked by a concurrent claim are skipped, so two
// flushers never receive the same message.
func (s *ScheduledStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]ScheduledMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		UPDATE scheduled_messages SET status = 'sending', claimed_at = $1
		WHERE id IN (
			SELECT id FROM scheduled_messages
			WHERE status = 'pending' AND send_at <= $1
			ORDER BY send_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+scheduledColumns, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("messaging: claim due: %w", err)
	}
	defer rows.Close()
	msgs, err := scanScheduled(rows)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].SendAt.Before(msgs[j].SendAt) })
	return msgs, nil
}

// List returns recent messages in any state, newest send time first.
func (s *ScheduledStore) List(ctx context.Context, limit int) ([]ScheduledMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+scheduledColumns+` FROM scheduled_messages
		ORDER BY send_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("messaging: list scheduled: %w", err)
	}
	defer rows.Close()
	return scanScheduled(rows)
}

// Get loads one scheduled message.
func (s *ScheduledStore) Get(ctx context.Context, id uuid.UUID) (*ScheduledMessage, error) {
	rows, err := s.db.Query(ctx, `SELECT `+scheduledColumns+` FROM scheduled_messages WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("messaging: get scheduled: %w", err)
	}
	defer rows.Close()
	msgs, err := scanScheduled(rows)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, apperrors.NotFound("scheduled message", id)
	}
	return &msgs[0], nil
}

// MarkResult moves a claimed message to sent or failed.
func (s *ScheduledStore) MarkResult(ctx context.Context, id uuid.UUID, sendErr error, at time.Time) error {
	status, lastError := ScheduledSent, ""
	if sendErr != nil {
		status, lastError = ScheduledFailed, sendErr.Error()
	}
	_, err := s.db.Exec(ctx, `
		UPDATE scheduled_messages SET status = $2, sent_at = $3, last_error = $4
		WHERE id = $1 AND status = 'sending'`, id, status, at.UTC(), lastError)
	if err != nil {
		return fmt.Errorf("messaging: mark scheduled: %w", err)
	}
	return nil
}

// Cancel deletes a message that has not been claimed yet.
func (s *ScheduledStore) Cancel(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM scheduled_messages WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("messaging: cancel scheduled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("pending scheduled message", id)
	}
	return nil
}

func scanScheduled(rows pgx.Rows) ([]ScheduledMessage, error) {
	var out []ScheduledMessage
	for rows.Next() {
		var m ScheduledMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.Body, &m.SendAt, &m.Status, &m.SentAt, &m.LastError, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("messaging: scan scheduled: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("messaging: scheduled rows: %w", err)
	}
	return out, nil
}
