package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"conflict", fmt.Errorf("appointments: insert: %w", ErrSlotConflict), http.StatusConflict, "slot_conflict"},
		{"closed", ErrClosedDay, http.StatusConflict, "closed_day"},
		{"not found", NotFound("appointment", 42), http.StatusNotFound, "not_found"},
		{"forbidden", ErrForbidden, http.StatusForbidden, "forbidden"},
		{"validation", Validation("time %q is not on a 15-minute boundary", "10:05"), http.StatusBadRequest, "validation_error"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
			assert.Equal(t, tt.code, Code(tt.err))
		})
	}
}

func TestValidationMessage(t *testing.T) {
	err := Validation("weekday %d out of range", 9)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "weekday 9 out of range", err.Error())
	assert.True(t, IsBusiness(err))
}

func TestWriteJSONHidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, errors.New("pq: connection refused"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal error", body.Error)

	rec = httptest.NewRecorder()
	WriteJSON(rec, ErrSlotConflict)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "slot_conflict", body.Code)
}
