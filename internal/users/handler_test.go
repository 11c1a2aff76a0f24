package users

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinic-booking/internal/auth"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

func newTestHandler(t *testing.T) (http.Handler, pgxmock.PgxPoolIface) {
	t.Helper()
	store, mock := newMock(t)
	r := chi.NewRouter()
	NewHandler(store, logging.Discard()).RegisterRoutes(r)
	return r, mock
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(auth.WithActor(context.Background(), auth.Actor{UserID: "staff", IsAdmin: true}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerListAndSuggestions(t *testing.T) {
	h, mock := newTestHandler(t)
	now := time.Now().UTC()
	var none *string
	rows := func() *pgxmock.Rows {
		return pgxmock.NewRows(userCols).
			AddRow("1001", "Amy", none, false, now, now).
			AddRow("manual_1", "Amy (手動)", none, false, now, now)
	}
	mock.ExpectQuery("FROM users ORDER BY display_name").WillReturnRows(rows())
	mock.ExpectQuery("FROM users ORDER BY display_name").WillReturnRows(rows())

	rec := serve(h, http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list struct {
		Users          []User `json:"users"`
		CurrentAdminID string `json:"current_admin_id"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list.Users, 2)
	assert.Equal(t, "staff", list.CurrentAdminID)

	rec = serve(h, http.MethodGet, "/users/merge-suggestions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sug struct {
		Suggestions []MergeSuggestion `json:"suggestions"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sug))
	require.Len(t, sug.Suggestions, 1)
	assert.Equal(t, "manual_1", sug.Suggestions[0].Source.ID)
	assert.Equal(t, "1001", sug.Suggestions[0].Target.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlerAddManual(t *testing.T) {
	h, mock := newTestHandler(t)
	now := time.Now().UTC()
	var none *string
	mock.ExpectQuery("INSERT INTO users").WithArgs(manualID{}, "Walk-in").
		WillReturnRows(pgxmock.NewRows(userCols).AddRow("manual_1", "Walk-in", none, false, now, now))

	rec := serve(h, http.MethodPost, "/users/manual", `{"name":"Walk-in"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"id":"manual_1"`)

	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodPost, "/users/manual", `{"name":""}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodPost, "/users/manual", `{`).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlerToggleAdmin(t *testing.T) {
	h, mock := newTestHandler(t)
	mock.ExpectQuery("UPDATE users SET is_admin = NOT is_admin").WithArgs("1001").
		WillReturnRows(pgxmock.NewRows([]string{"is_admin"}).AddRow(true))

	rec := serve(h, http.MethodPost, "/users/1001/toggle-admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"is_admin":true`)

	assert.Equal(t, http.StatusForbidden, serve(h, http.MethodPost, "/users/staff/toggle-admin", "").Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlerDelete(t *testing.T) {
	h, mock := newTestHandler(t)
	mock.ExpectExec("DELETE FROM users").WithArgs("manual_1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM users").WithArgs("ghost").WillReturnResult(pgxmock.NewResult("DELETE", 0))

	assert.Equal(t, http.StatusNoContent, serve(h, http.MethodDelete, "/users/manual_1", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodDelete, "/users/ghost", "").Code)
	assert.Equal(t, http.StatusForbidden, serve(h, http.MethodDelete, "/users/staff", "").Code)
	require.NoError(t, mock.ExpectationsWereMet())
}
