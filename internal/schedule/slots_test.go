package schedule

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinic-booking/internal/apperrors"
)

func tpl(weekday Weekday, service ServiceType, start, end string) Template {
	return Template{Weekday: weekday, ServiceType: service, StartTime: start, EndTime: end, Active: true}
}

func TestExpandTuesdayAfternoonConsultation(t *testing.T) {
	templates := []Template{tpl(Tuesday, ServiceConsultation, "14:00", "15:00")}

	got := Expand(templates, Tuesday, ServiceConsultation)

	assert.Equal(t, []string{"14:00", "14:15", "14:30", "14:45", "15:00"}, got)
}

func TestExpandMergesOverlappingTemplates(t *testing.T) {
	templates := []Template{
		tpl(Wednesday, ServiceMassage, "10:30", "11:00"),
		tpl(Wednesday, ServiceMassage, "09:00", "09:30"),
		tpl(Wednesday, ServiceMassage, "10:00", "10:45"),
	}

	got := Expand(templates, Wednesday, ServiceMassage)

	assert.Equal(t, []string{"09:00", "09:15", "09:30", "10:00", "10:15", "10:30", "10:45", "11:00"}, got)
}

func TestExpandSkipsNonMatchingAndMalformed(t *testing.T) {
	inactive := tpl(Monday, ServiceConsultation, "08:00", "08:30")
	inactive.Active = false
	templates := []Template{
		inactive,
		tpl(Monday, ServiceConsultation, "12:00", "11:00"), // reversed
		tpl(Monday, ServiceMassage, "09:00", "09:15"),
		tpl(Tuesday, ServiceConsultation, "09:00", "09:15"),
		tpl(Monday, ServiceConsultation, "9:00", "09:15"),
	}

	got := Expand(templates, Monday, ServiceConsultation)

	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestExpandOutputIsSortedUniqueAndAligned(t *testing.T) {
	templates := []Template{
		tpl(Friday, ServiceConsultation, "08:00", "12:00"),
		tpl(Friday, ServiceConsultation, "11:00", "13:30"),
		tpl(Friday, ServiceConsultation, "17:45", "20:00"),
		tpl(Friday, ServiceConsultation, "08:15", "08:15"),
	}

	got := Expand(templates, Friday, ServiceConsultation)
	require.NotEmpty(t, got)

	assert.True(t, sort.StringsAreSorted(got))
	seen := map[string]bool{}
	for _, s := range got {
		assert.False(t, seen[s], "duplicate %s", s)
		seen[s] = true
		mins, err := ParseClock(s)
		require.NoError(t, err)
		assert.Zero(t, mins%15)
	}
}

func TestParseClock(t *testing.T) {
	mins, err := ParseClock("14:45")
	require.NoError(t, err)
	assert.Equal(t, 14*60+45, mins)

	for _, bad := range []string{"14:10", "24:00", "9:00", "ab:cd", "14-00", ""} {
		_, err := ParseClock(bad)
		assert.True(t, errors.Is(err, apperrors.ErrValidation), bad)
	}
}

func TestTemplateValidate(t *testing.T) {
	assert.NoError(t, tpl(Saturday, ServiceMassage, "09:00", "12:00").Validate())
	assert.ErrorIs(t, tpl(Sunday, ServiceMassage, "09:00", "12:00").Validate(), apperrors.ErrValidation)
	assert.ErrorIs(t, tpl(Monday, "yoga", "09:00", "12:00").Validate(), apperrors.ErrValidation)
	assert.ErrorIs(t, tpl(Monday, ServiceMassage, "09:05", "12:00").Validate(), apperrors.ErrValidation)
}

type fakeSource struct {
	templates []Template
	err       error
}

func (f fakeSource) ListActive(_ context.Context, _ Weekday, _ ServiceType) ([]Template, error) {
	return f.templates, f.err
}

func TestGeneratorSlots(t *testing.T) {
	gen := NewGenerator(fakeSource{templates: []Template{tpl(Tuesday, ServiceConsultation, "14:00", "14:30")}})

	got, err := gen.Slots(context.Background(), Tuesday, ServiceConsultation)
	require.NoError(t, err)
	assert.Equal(t, []string{"14:00", "14:15", "14:30"}, got)

	got, err = gen.Slots(context.Background(), Sunday, ServiceConsultation)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = NewGenerator(fakeSource{err: errors.New("db down")}).Slots(context.Background(), Monday, ServiceMassage)
	assert.Error(t, err)
}
