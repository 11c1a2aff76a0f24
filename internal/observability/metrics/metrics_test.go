package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveBooking("book", "ok", 0.01)
	m.ObserveBooking("book", "slot_conflict", 0.02)
	m.ObserveBooking("book", "slot_conflict", 0.02)
	m.ObserveReminder("daily", 3, 1)
	m.ObserveMessage("reminder_daily", "success")
	m.BoardClientDelta(2)
	m.BoardClientDelta(-1)

	assert.Equal(t, 2.0, counterValue(t, m.bookingsTotal.WithLabelValues("book", "slot_conflict")))
	assert.Equal(t, 3.0, counterValue(t, m.remindersTotal.WithLabelValues("daily", "sent")))
	assert.Equal(t, 1.0, counterValue(t, m.remindersTotal.WithLabelValues("daily", "failed")))

	var gauge dto.Metric
	require.NoError(t, m.boardClients.Write(&gauge))
	assert.Equal(t, 1.0, gauge.GetGauge().GetValue())
}

func TestBookingMetricsLatencyHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveBooking("reassign", "ok", 0.2)

	families, err := reg.Gather()
	require.NoError(t, err)
	var hist *dto.Histogram
	for _, f := range families {
		if f.GetName() == "clinic_booking_operation_seconds" {
			hist = f.GetMetric()[0].GetHistogram()
		}
	}
	require.NotNil(t, hist)
	assert.Equal(t, uint64(1), hist.GetSampleCount())
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveBooking("book", "ok", 0.1)
	m.ObserveReminder("weekly", 1, 0)
	m.ObserveMessage("custom", "failed")
	m.BoardClientDelta(1)
	m.ObserveSchedulerError("daily")
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	require.NoError(t, c.Write(&metric))
	return metric.GetCounter().GetValue()
}
