package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics tracks booking outcomes, upgrade offers and background
// sweeps.
type BookingMetrics struct {
	bookingsTotal  *prometheus.CounterVec
	reconcileTotal *prometheus.CounterVec
	offersTotal    *prometheus.CounterVec
	sweepsTotal    *prometheus.CounterVec
	remindersTotal *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "finalize_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		reconcileTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "reconcile_needed_total",
			Help:      "Partial failures between ledger and calendar that need manual reconciliation",
		}, []string{"operation"}),
		offersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "waitlist",
			Name:      "offers_total",
			Help:      "Upgrade offers sent per wave bucket",
		}, []string{"bucket"}),
		sweepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "sweeps_total",
			Help:      "Background job runs by status",
		}, []string{"job", "status"}),
		remindersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "notifications_total",
			Help:      "Reminders and nudges sent by kind",
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.reconcileTotal, m.offersTotal, m.sweepsTotal, m.remindersTotal)
	return m
}

func (m *BookingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveReconcileNeeded(operation string) {
	if m == nil {
		return
	}
	m.reconcileTotal.WithLabelValues(operation).Inc()
}

func (m *BookingMetrics) ObserveOffer(bucket string) {
	if m == nil {
		return
	}
	m.offersTotal.WithLabelValues(bucket).Inc()
}

func (m *BookingMetrics) ObserveSweep(job, status string) {
	if m == nil {
		return
	}
	m.sweepsTotal.WithLabelValues(job, status).Inc()
}

func (m *BookingMetrics) ObserveNotification(kind string) {
	if m == nil {
		return
	}
	m.remindersTotal.WithLabelValues(kind).Inc()
}
