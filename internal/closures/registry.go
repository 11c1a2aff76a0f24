// Package closures records the dates on which the clinic is fully closed.
package closures

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/clinic-booking/internal/apperrors"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/internal/storage"
)

// ClosedDay marks a date as unavailable for booking.
type ClosedDay struct {
	Date      string    `json:"date"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Registry persists closed days. Every method takes an optional Querier so the
// call can join a caller's transaction; nil uses the registry's pool.
type Registry struct {
	db storage.Querier
}

func NewRegistry(db storage.Querier) *Registry {
	return &Registry{db: db}
}

func (r *Registry) q(q storage.Querier) storage.Querier {
	if q == nil {
		return r.db
	}
	return q
}

// Upsert closes date, replacing the reason if it was already closed.
func (r *Registry) Upsert(ctx context.Context, q storage.Querier, date, reason string) (*ClosedDay, error) {
	if _, err := schedule.ParseDate(date, time.UTC); err != nil {
		return nil, err
	}
	day := ClosedDay{Date: date, Reason: reason}
	err := r.q(q).QueryRow(ctx, `
		INSERT INTO closed_days (day, reason) VALUES ($1, $2)
		ON CONFLICT (day) DO UPDATE SET reason = EXCLUDED.reason
		RETURNING created_at`, date, reason).Scan(&day.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("closures: upsert %s: %w", date, err)
	}
	return &day, nil
}

// Remove reopens date.
func (r *Registry) Remove(ctx context.Context, q storage.Querier, date string) error {
	tag, err := r.q(q).Exec(ctx, `DELETE FROM closed_days WHERE day = $1`, date)
	if err != nil {
		return fmt.Errorf("closures: remove %s: %w", date, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("closed day", date)
	}
	return nil
}

// IsClosed reports whether date is a closed day.
func (r *Registry) IsClosed(ctx context.Context, q storage.Querier, date string) (bool, error) {
	var closed bool
	if err := r.q(q).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM closed_days WHERE day = $1)`, date).Scan(&closed); err != nil {
		return false, fmt.Errorf("closures: is closed %s: %w", date, err)
	}
	return closed, nil
}

// List returns the closed days in [from, to], both inclusive. Empty bounds are open.
func (r *Registry) List(ctx context.Context, from, to string) ([]ClosedDay, error) {
	rows, err := r.db.Query(ctx, `
		SELECT day, reason, created_at FROM closed_days
		WHERE ($1 = '' OR day >= $1) AND ($2 = '' OR day <= $2)
		ORDER BY day`, from, to)
	if err != nil {
		return nil, fmt.Errorf("closures: list: %w", err)
	}
	defer rows.Close()

	var out []ClosedDay
	for rows.Next() {
		var d ClosedDay
		if err := rows.Scan(&d.Date, &d.Reason, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("closures: scan: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// LockDate takes a transaction-scoped advisory lock on date. Closing a day
// holds it exclusively; bookings hold it shared so no booking commits onto a
// date after its closure cascade ran.
func LockDate(ctx context.Context, tx storage.Querier, date string, exclusive bool) error {
	query := `SELECT pg_advisory_xact_lock_shared(hashtext('closed_day:' || $1))`
	if exclusive {
		query = `SELECT pg_advisory_xact_lock(hashtext('closed_day:' || $1))`
	}
	if _, err := tx.Exec(ctx, query, date); err != nil {
		return fmt.Errorf("closures: lock %s: %w", date, err)
	}
	return nil
}

// Lock is LockDate bound to the registry so callers can depend on an interface.
func (r *Registry) Lock(ctx context.Context, tx storage.Querier, date string, exclusive bool) error {
	return LockDate(ctx, r.q(tx), date, exclusive)
}
