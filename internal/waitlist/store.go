// Package waitlist keeps the per-date overflow queue of patients waiting for a
// slot to free up.
package waitlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wolfman30/clinic-booking/internal/apperrors"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/internal/storage"
)

// Entry is one patient waiting on one date.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	Date      string    `json:"date"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists waiting-list entries.
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

// Add queues a patient for a date. The same patient may queue on many dates.
func (s *Store) Add(ctx context.Context, e *Entry) error {
	if _, err := schedule.ParseDate(e.Date, time.UTC); err != nil {
		return err
	}
	if strings.TrimSpace(e.UserID) == "" {
		return apperrors.Validation("user id is required")
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = s.now().UTC()
	_, err := s.db.Exec(ctx, `
		INSERT INTO waiting_list (id, wait_date, user_id, user_name, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Date, e.UserID, e.UserName, e.Note, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("waitlist: add: %w", err)
	}
	return nil
}

// Get loads one entry.
func (s *Store) Get(ctx context.Context, q storage.Querier, id uuid.UUID) (*Entry, error) {
	var e Entry
	err := s.q(q).QueryRow(ctx, `
		SELECT id, wait_date, user_id, user_name, note, created_at
		FROM waiting_list WHERE id = $1`, id).
		Scan(&e.ID, &e.Date, &e.UserID, &e.UserName, &e.Note, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("waiting list entry", id)
	}
	if err != nil {
		return nil, fmt.Errorf("waitlist: get: %w", err)
	}
	return &e, nil
}

// Delete removes an entry. A missing entry is ErrNotFound.
func (s *Store) Delete(ctx context.Context, q storage.Querier, id uuid.UUID) error {
	tag, err := s.q(q).Exec(ctx, `DELETE FROM waiting_list WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("waitlist: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("waiting list entry", id)
	}
	return nil
}

// MoveUser reassigns every waiting-list entry of fromID to toID under name.
func (s *Store) MoveUser(ctx context.Context, q storage.Querier, fromID, toID, name string) (int, error) {
	tag, err := s.q(q).Exec(ctx, `
		UPDATE waiting_list SET user_id = $2, user_name = $3
		WHERE user_id = $1`, fromID, toID, name)
	if err != nil {
		return 0, fmt.Errorf("waitlist: move user: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListBetween returns entries with from <= date <= to in queue order.
func (s *Store) ListBetween(ctx context.Context, from, to string) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, wait_date, user_id, user_name, note, created_at
		FROM waiting_list
		WHERE wait_date >= $1 AND wait_date <= $2
		ORDER BY wait_date, created_at`, from, to)
	if err != nil {
		return nil, fmt.Errorf("waitlist: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Date, &e.UserID, &e.UserName, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("waitlist: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListByDate returns the queue for one date.
func (s *Store) ListByDate(ctx context.Context, date string) ([]Entry, error) {
	return s.ListBetween(ctx, date, date)
}

// GroupByDate indexes entries by date, keeping queue order.
func GroupByDate(entries []Entry) map[string][]Entry {
	out := make(map[string][]Entry)
	for _, e := range entries {
		out[e.Date] = append(out[e.Date], e)
	}
	return out
}
