package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinic-booking/internal/apperrors"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store := NewStore(mock)
	store.now = func() time.Time { return time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC) }
	return store, mock
}

func TestStoreCreate(t *testing.T) {
	store, mock := newMockStore(t)
	tmpl := tpl(Tuesday, ServiceConsultation, "14:00", "15:00")

	mock.ExpectExec("INSERT INTO slot_templates").
		WithArgs(pgxmock.AnyArg(), 2, "consultation", "14:00", "15:00", true, "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), &tmpl))
	assert.NotEqual(t, uuid.Nil, tmpl.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCreateDuplicateAnchor(t *testing.T) {
	store, mock := newMockStore(t)
	tmpl := tpl(Tuesday, ServiceConsultation, "14:00", "15:00")

	mock.ExpectExec("INSERT INTO slot_templates").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "slot_templates_anchor_key"})

	err := store.Create(context.Background(), &tmpl)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Contains(t, err.Error(), "already exists")
}

func TestStoreCreateRejectsInvalidWithoutQuery(t *testing.T) {
	store, mock := newMockStore(t)
	tmpl := tpl(Tuesday, ServiceConsultation, "14:10", "15:00")

	assert.ErrorIs(t, store.Create(context.Background(), &tmpl), apperrors.ErrValidation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM slot_templates WHERE id").WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err := store.Get(context.Background(), id)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStoreListActive(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM slot_templates").
		WithArgs(2, "consultation", true).
		WillReturnRows(pgxmock.NewRows([]string{"id", "weekday", "service_type", "start_time", "end_time", "active", "note", "created_at", "updated_at"}).
			AddRow(id, 2, "consultation", "14:00", "15:00", true, "afternoon", created, created))

	got, err := store.ListActive(context.Background(), Tuesday, ServiceConsultation)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, Tuesday, got[0].Weekday)
	assert.Equal(t, "afternoon", got[0].Note)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpdateAndDeleteMissing(t *testing.T) {
	store, mock := newMockStore(t)
	tmpl := tpl(Monday, ServiceMassage, "09:00", "10:00")
	tmpl.ID = uuid.New()

	mock.ExpectExec("UPDATE slot_templates").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, store.Update(context.Background(), &tmpl), apperrors.ErrNotFound)

	mock.ExpectExec("DELETE FROM slot_templates").WithArgs(tmpl.ID).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	assert.ErrorIs(t, store.Delete(context.Background(), tmpl.ID), apperrors.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCopyDay(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO slot_templates (.+) SELECT").
		WithArgs(2, 4, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 3))

	n, err := store.CopyDay(context.Background(), Tuesday, Thursday, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = store.CopyDay(context.Background(), Tuesday, Tuesday, "")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	require.NoError(t, mock.ExpectationsWereMet())
}
