// Package users stores patient profiles: display name, reminder cadence and
// the admin flag.
package users

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wolfman30/clinic-booking/internal/apperrors"
	"github.com/wolfman30/clinic-booking/internal/storage"
)

// Cadence is a user's reminder preference. The empty value means unset.
type Cadence string

const (
	CadenceUnset  Cadence = ""
	CadenceDaily  Cadence = "daily"
	CadenceWeekly Cadence = "weekly"
	CadenceNone   Cadence = "none"
)

// ParseCadence accepts daily, weekly, none, or empty for unset.
func ParseCadence(s string) (Cadence, error) {
	switch c := Cadence(strings.ToLower(strings.TrimSpace(s))); c {
	case CadenceUnset, CadenceDaily, CadenceWeekly, CadenceNone:
		return c, nil
	default:
		return "", apperrors.Validation("unknown reminder cadence %q", s)
	}
}

// ManualPrefix marks users staff entered by hand, such as walk-in patients
// who never used the chat.
const ManualPrefix = "manual_"

// User is a patient or staff member known to the bot.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Cadence     Cadence   `json:"reminder_cadence"`
	IsAdmin     bool      `json:"is_admin"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store persists users.
type Store struct {
	db storage.Querier
}

func NewStore(db storage.Querier) *Store {
	return &Store{db: db}
}

// Ensure creates the user on first contact and returns the stored profile.
// An existing display name is left alone; renames go through Rename.
func (s *Store) Ensure(ctx context.Context, id, displayName string) (*User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.Validation("user id is required")
	}
	u, err := scanUser(s.db.QueryRow(ctx, `
		INSERT INTO users (id, display_name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET display_name = CASE WHEN users.display_name = '' THEN EXCLUDED.display_name ELSE users.display_name END
		RETURNING id, display_name, reminder_cadence, is_admin, created_at, updated_at`, id, displayName))
	if err != nil {
		return nil, fmt.Errorf("users: ensure: %w", err)
	}
	return u, nil
}

// Get loads one user.
func (s *Store) Get(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `
		SELECT id, display_name, reminder_cadence, is_admin, created_at, updated_at
		FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("users: get: %w", err)
	}
	return u, nil
}

// GetForUpdate loads one user on q and locks the row until q commits.
func (s *Store) GetForUpdate(ctx context.Context, q storage.Querier, id string) (*User, error) {
	if q == nil {
		q = s.db
	}
	u, err := scanUser(q.QueryRow(ctx, `
		SELECT id, display_name, reminder_cadence, is_admin, created_at, updated_at
		FROM users WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("users: get for update: %w", err)
	}
	return u, nil
}

// List returns every user ordered by name.
func (s *Store) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, display_name, reminder_cadence, is_admin, created_at, updated_at
		FROM users ORDER BY display_name, id`)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("users: scan: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// SetCadence stores the reminder preference. CadenceUnset clears it.
func (s *Store) SetCadence(ctx context.Context, id string, c Cadence) error {
	var value any
	if c != CadenceUnset {
		value = string(c)
	}
	tag, err := s.db.Exec(ctx, `UPDATE users SET reminder_cadence = $2, updated_at = now() WHERE id = $1`, id, value)
	if err != nil {
		return fmt.Errorf("users: set cadence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}
	return nil
}

// Cadences returns the stored preference for each id. Unknown ids are absent.
func (s *Store) Cadences(ctx context.Context, ids []string) (map[string]Cadence, error) {
	out := make(map[string]Cadence, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.Query(ctx, `SELECT id, COALESCE(reminder_cadence, '') FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("users: cadences: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, c string
		if err := rows.Scan(&id, &c); err != nil {
			return nil, fmt.Errorf("users: scan cadence: %w", err)
		}
		out[id] = Cadence(c)
	}
	return out, rows.Err()
}

// AllIDs returns every user id, for broadcast messages.
func (s *Store) AllIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("users: all ids: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("users: scan id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Rename changes the display name on q. Callers propagate the change to the
// appointment name snapshots in the same transaction.
func (s *Store) Rename(ctx context.Context, q storage.Querier, id, name string) error {
	if q == nil {
		q = s.db
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.Validation("display name is required")
	}
	tag, err := q.Exec(ctx, `UPDATE users SET display_name = $2, updated_at = now() WHERE id = $1`, id, name)
	if err != nil {
		return fmt.Errorf("users: rename: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}
	return nil
}

// SetAdmin grants or revokes staff rights.
func (s *Store) SetAdmin(ctx context.Context, id string, admin bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE users SET is_admin = $2, updated_at = now() WHERE id = $1`, id, admin)
	if err != nil {
		return fmt.Errorf("users: set admin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}
	return nil
}

// IsManual reports whether the user was entered by staff.
func (u User) IsManual() bool { return strings.HasPrefix(u.ID, ManualPrefix) }

// AddManual creates a staff-entered user with a generated manual_ id.
func (s *Store) AddManual(ctx context.Context, name string) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.Validation("display name is required")
	}
	u, err := scanUser(s.db.QueryRow(ctx, `
		INSERT INTO users (id, display_name) VALUES ($1, $2)
		RETURNING id, display_name, reminder_cadence, is_admin, created_at, updated_at`, ManualPrefix+uuid.NewString(), name))
	if err != nil {
		return nil, fmt.Errorf("users: add manual: %w", err)
	}
	return u, nil
}

// ToggleAdmin flips the admin flag and returns the new value.
func (s *Store) ToggleAdmin(ctx context.Context, id string) (bool, error) {
	var admin bool
	err := s.db.QueryRow(ctx, `
		UPDATE users SET is_admin = NOT is_admin, updated_at = now()
		WHERE id = $1 RETURNING is_admin`, id).Scan(&admin)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, apperrors.NotFound("user", id)
	}
	if err != nil {
		return false, fmt.Errorf("users: toggle admin: %w", err)
	}
	return admin, nil
}

// Delete removes the user row on q. Appointments keep their name snapshot.
func (s *Store) Delete(ctx context.Context, q storage.Querier, id string) error {
	if q == nil {
		q = s.db
	}
	tag, err := q.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("users: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}
	return nil
}

// MergeSuggestion proposes folding a manual user into a chat user.
type MergeSuggestion struct {
	Source User   `json:"source"`
	Target User   `json:"target"`
	Reason string `json:"reason"`
}

// nameNoise matches whitespace, ASCII and full-width brackets, and the 手動 tag
// staff add to walk-in names.
var nameNoise = regexp.MustCompile(`[\s()（）]|手動`)

func normalizeName(name string) string {
	return strings.ToLower(nameNoise.ReplaceAllString(name, ""))
}

// SuggestMerges pairs each manual user with a chat user of the same
// normalized name. A chat user is proposed at most once.
func SuggestMerges(all []User) []MergeSuggestion {
	chat := map[string]User{}
	for _, u := range all {
		if u.IsManual() {
			continue
		}
		key := normalizeName(u.DisplayName)
		if _, taken := chat[key]; key != "" && !taken {
			chat[key] = u
		}
	}
	used := map[string]bool{}
	out := []MergeSuggestion{}
	for _, u := range all {
		if !u.IsManual() {
			continue
		}
		target, ok := chat[normalizeName(u.DisplayName)]
		if !ok || used[target.ID] {
			continue
		}
		used[target.ID] = true
		out = append(out, MergeSuggestion{Source: u, Target: target, Reason: "name"})
	}
	return out
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var cadence *string
	if err := row.Scan(&u.ID, &u.DisplayName, &cadence, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if cadence != nil {
		u.Cadence = Cadence(*cadence)
	}
	return &u, nil
}
