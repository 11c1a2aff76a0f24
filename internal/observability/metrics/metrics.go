package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters and histograms for booking, reminder and
// outbound message flows. A nil *BookingMetrics is a valid no-op.
type BookingMetrics struct {
	bookingsTotal   *prometheus.CounterVec
	bookingLatency  *prometheus.HistogramVec
	remindersTotal  *prometheus.CounterVec
	messagesTotal   *prometheus.CounterVec
	boardClients    prometheus.Gauge
	schedulerErrors *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "operations_total",
			Help:      "Booking operations by kind and outcome",
		}, []string{"operation", "outcome"}),
		bookingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "operation_seconds",
			Help:      "Latency of booking operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		remindersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "reminders",
			Name:      "sent_total",
			Help:      "Reminder messages by cadence and status",
		}, []string{"cadence", "status"}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Outbound chat messages by type and status",
		}, []string{"message_type", "status"}),
		boardClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clinic",
			Subsystem: "board",
			Name:      "clients",
			Help:      "Connected live board websocket clients",
		}),
		schedulerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduler",
			Name:      "job_errors_total",
			Help:      "Scheduler job failures by job",
		}, []string{"job"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.bookingLatency, m.remindersTotal, m.messagesTotal, m.boardClients, m.schedulerErrors)
	return m
}

// ObserveBooking counts one orchestrator operation and its latency.
func (m *BookingMetrics) ObserveBooking(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(operation, outcome).Inc()
	m.bookingLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *BookingMetrics) ObserveReminder(cadence string, sent, failed int) {
	if m == nil {
		return
	}
	m.remindersTotal.WithLabelValues(cadence, "sent").Add(float64(sent))
	m.remindersTotal.WithLabelValues(cadence, "failed").Add(float64(failed))
}

func (m *BookingMetrics) ObserveMessage(messageType, status string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(messageType, status).Inc()
}

func (m *BookingMetrics) BoardClientDelta(delta int) {
	if m == nil {
		return
	}
	m.boardClients.Add(float64(delta))
}

func (m *BookingMetrics) ObserveSchedulerError(job string) {
	if m == nil {
		return
	}
	m.schedulerErrors.WithLabelValues(job).Inc()
}
