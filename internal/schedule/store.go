package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wolfman30/clinic-booking/internal/apperrors"
	"github.com/wolfman30/clinic-booking/internal/storage"
)

const anchorConstraint = "slot_templates_anchor_key"

const templateColumns = `id, weekday, service_type, start_time, end_time, active, note, created_at, updated_at`

// Filter narrows List. Zero values match everything.
type Filter struct {
	Weekday     Weekday
	ServiceType ServiceType
	ActiveOnly  bool
}

// Store persists slot templates in Postgres.
type Store struct {
	db  storage.Querier
	now func() time.Time
}

// NewStore creates a template store.
func NewStore(db storage.Querier) *Store {
	return &Store{db: db, now: time.Now}
}

// Create inserts a template. A duplicate (weekday, start_time, service_type)
// anchor is rejected as a validation error.
func (s *Store) Create(ctx context.Context, t *Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := s.now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	_, err := s.db.Exec(ctx, `
		INSERT INTO slot_templates (`+templateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, int(t.Weekday), string(t.ServiceType), t.StartTime, t.EndTime, t.Active, t.Note, t.CreatedAt, t.UpdatedAt,
	)
	if storage.IsUniqueViolation(err, anchorConstraint) {
		return apperrors.Validation("template for weekday %d %s at %s already exists", t.Weekday, t.ServiceType, t.StartTime)
	}
	if err != nil {
		return fmt.Errorf("schedule: create template: %w", err)
	}
	return nil
}

// Update replaces the editable fields of an existing template.
func (s *Store) Update(ctx context.Context, t *Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	t.UpdatedAt = s.now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE slot_templates
		SET weekday = $2, service_type = $3, start_time = $4, end_time = $5, active = $6, note = $7, updated_at = $8
		WHERE id = $1`,
		t.ID, int(t.Weekday), string(t.ServiceType), t.StartTime, t.EndTime, t.Active, t.Note, t.UpdatedAt,
	)
	if storage.IsUniqueViolation(err, anchorConstraint) {
		return apperrors.Validation("template for weekday %d %s at %s already exists", t.Weekday, t.ServiceType, t.StartTime)
	}
	if err != nil {
		return fmt.Errorf("schedule: update template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("slot template", t.ID)
	}
	return nil
}

// Delete removes a template.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM slot_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("schedule: delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("slot template", id)
	}
	return nil
}

// Get loads one template.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Template, error) {
	row := s.db.QueryRow(ctx, `SELECT `+templateColumns+` FROM slot_templates WHERE id = $1`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("slot template", id)
	}
	if err != nil {
		return nil, fmt.Errorf("schedule: get template: %w", err)
	}
	return t, nil
}

// List returns templates ordered by weekday, service and start time.
func (s *Store) List(ctx context.Context, f Filter) ([]Template, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+templateColumns+`
		FROM slot_templates
		WHERE ($1 = 0 OR weekday = $1)
		  AND ($2 = '' OR service_type = $2)
		  AND (NOT $3 OR active)
		ORDER BY weekday, service_type, start_time`,
		int(f.Weekday), string(f.ServiceType), f.ActiveOnly,
	)
	if err != nil {
		return nil, fmt.Errorf("schedule: list templates: %w", err)
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("schedule: scan template: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schedule: list templates: %w", err)
	}
	return out, nil
}

// ListActive returns the active templates for one weekday and service type.
func (s *Store) ListActive(ctx context.Context, weekday Weekday, service ServiceType) ([]Template, error) {
	return s.List(ctx, Filter{Weekday: weekday, ServiceType: service, ActiveOnly: true})
}

// CopyDay copies every template of one weekday onto another, skipping anchors
// the target already has. It returns the number of templates created.
func (s *Store) CopyDay(ctx context.Context, from, to Weekday, service ServiceType) (int, error) {
	if !from.Valid() || !to.Valid() {
		return 0, apperrors.Validation("weekdays must be in 1..6")
	}
	if from == to {
		return 0, apperrors.Validation("source and target weekday are the same")
	}
	if service != "" && !service.Valid() {
		return 0, apperrors.Validation("unknown service type %q", service)
	}
	tag, err := s.db.Exec(ctx, `
		INSERT INTO slot_templates (id, weekday, service_type, start_time, end_time, active, note, created_at, updated_at)
		SELECT gen_random_uuid(), $2, service_type, start_time, end_time, active, note, now(), now()
		FROM slot_templates
		WHERE weekday = $1 AND ($3 = '' OR service_type = $3)
		ON CONFLICT ON CONSTRAINT `+anchorConstraint+` DO NOTHING`,
		int(from), int(to), string(service),
	)
	if err != nil {
		return 0, fmt.Errorf("schedule: copy day: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanTemplate(row pgx.Row) (*Template, error) {
	var t Template
	var weekday int
	var service string
	if err := row.Scan(&t.ID, &weekday, &service, &t.StartTime, &t.EndTime, &t.Active, &t.Note, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Weekday = Weekday(weekday)
	t.ServiceType = ServiceType(service)
	return &t, nil
}
