package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters for booking and series outcomes.
type SchedulingMetrics struct {
	conflictsTotal   *prometheus.CounterVec
	bookingsTotal    *prometheus.CounterVec
	seriesTotal      *prometheus.CounterVec
	occurrencesTotal *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		conflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "therapycrm",
			Subsystem: "scheduling",
			Name:      "conflicts_total",
			Help:      "Booking conflicts detected, by contended resource kind",
		}, []string{"resource_kind"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "therapycrm",
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Standalone appointment bookings, by outcome",
		}, []string{"outcome"}),
		seriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "therapycrm",
			Subsystem: "scheduling",
			Name:      "series_total",
			Help:      "Recurring series creations, by outcome",
		}, []string{"outcome"}),
		occurrencesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "therapycrm",
			Subsystem: "scheduling",
			Name:      "series_occurrences_total",
			Help:      "Occurrences handled during series expansion, by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.conflictsTotal, m.bookingsTotal, m.seriesTotal, m.occurrencesTotal)
	return m
}

func (m *SchedulingMetrics) ObserveConflict(resourceKind string) {
	if m == nil {
		return
	}
	m.conflictsTotal.WithLabelValues(resourceKind).Inc()
}

func (m *SchedulingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveSeries(outcome string) {
	if m == nil {
		return
	}
	m.seriesTotal.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveOccurrence(outcome string) {
	if m == nil {
		return
	}
	m.occurrencesTotal.WithLabelValues(outcome).Inc()
}
