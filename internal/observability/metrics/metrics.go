package metrics

import "github.com/prometheus/client_golang/prometheus"

// CapacityMetrics exposes counters/histograms for admission and capacity reads.
type CapacityMetrics struct {
	admissionTotal   *prometheus.CounterVec
	admissionLatency *prometheus.HistogramVec
	snapshotDays     *prometheus.HistogramVec
	outboxDelivered  *prometheus.CounterVec
}

func NewCapacityMetrics(reg prometheus.Registerer) *CapacityMetrics {
	m := &CapacityMetrics{
		admissionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "capacity",
			Name:      "admission_decisions_total",
			Help:      "Booking admission decisions by result code",
		}, []string{"code"}),
		admissionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medspa",
			Subsystem: "capacity",
			Name:      "admission_latency_seconds",
			Help:      "Latency of booking admission",
			Buckets:   prometheus.DefBuckets,
		}, []string{"code"}),
		snapshotDays: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medspa",
			Subsystem: "capacity",
			Name:      "snapshot_days",
			Help:      "Number of days computed per capacity read",
			Buckets:   []float64{1, 7, 31, 62, 92},
		}, []string{"kind"}),
		outboxDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "capacity",
			Name:      "outbox_delivered_total",
			Help:      "Outbox events handed to the delivery handler",
		}, []string{"type", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.admissionTotal, m.admissionLatency, m.snapshotDays, m.outboxDelivered)
	return m
}

func (m *CapacityMetrics) ObserveAdmission(code string, seconds float64) {
	if m == nil {
		return
	}
	m.admissionTotal.WithLabelValues(code).Inc()
	m.admissionLatency.WithLabelValues(code).Observe(seconds)
}

func (m *CapacityMetrics) ObserveSnapshot(kind string, days int) {
	if m == nil {
		return
	}
	m.snapshotDays.WithLabelValues(kind).Observe(float64(days))
}

func (m *CapacityMetrics) ObserveDelivery(eventType string, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.outboxDelivered.WithLabelValues(eventType, status).Inc()
}
