package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build isolated instances
// without tripping duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	ResultsReceived *prometheus.CounterVec
	Triggers        *prometheus.CounterVec
	Emails          *prometheus.CounterVec
	Clips           *prometheus.CounterVec
	DispatcherDrops prometheus.Counter
	BufferSize      prometheus.Gauge
	QueueDepth      prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		ResultsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "avesia_results_received_total",
			Help: "Detection results accepted by ingress, by payload format.",
		}, []string{"format"}),
		Triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "avesia_triggers_total",
			Help: "Trigger evaluations, by outcome.",
		}, []string{"outcome"}),
		Emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "avesia_emails_total",
			Help: "Email notification attempts, by status.",
		}, []string{"status"}),
		Clips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "avesia_clips_total",
			Help: "Clip extraction attempts, by status.",
		}, []string{"status"}),
		DispatcherDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avesia_dispatcher_dropped_total",
			Help: "Results dropped because the trigger queue was full.",
		}),
		BufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "avesia_result_buffer_size",
			Help: "Detection results currently held in the ring buffer.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "avesia_dispatcher_queue_depth",
			Help: "Results waiting in the trigger dispatch queue.",
		}),
	}

	reg.MustRegister(
		m.ResultsReceived, m.Triggers, m.Emails, m.Clips,
		m.DispatcherDrops, m.BufferSize, m.QueueDepth,
	)
	return m
}

// Handler serves this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
