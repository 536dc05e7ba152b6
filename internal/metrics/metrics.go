package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ysocial"

// Metrics holds the collectors of one application instance. They are
// registered on a private registry so several instances (tests) never clash.
type Metrics struct {
	Registry *prometheus.Registry

	WriteTasks     *prometheus.CounterVec
	QueueDepth     prometheus.Gauge
	ReportEvents   *prometheus.CounterVec
	CascadeDeletes *prometheus.CounterVec
	LoginAttempts  *prometheus.CounterVec
	ArchiveErrors  prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		WriteTasks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "tasks_total",
			Help:      "Store write tasks executed by the worker pool by result",
		}, []string{"result"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_depth",
			Help:      "Tasks submitted but not yet executed",
		}),
		ReportEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "moderation",
			Name:      "report_events_total",
			Help:      "Report lifecycle events by kind and event",
		}, []string{"kind", "event"}),
		CascadeDeletes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "social",
			Name:      "deleted_entities_total",
			Help:      "Posts and accounts removed, including cascades",
		}, []string{"entity"}),
		LoginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "login_attempts_total",
			Help:      "Authentication attempts by role and result",
		}, []string{"role", "result"}),
		ArchiveErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "archive_errors_total",
			Help:      "Failed snapshots of removed content",
		}),
	}
}

// WriteTextfile dumps the registry in the text exposition format, for the
// node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("ошибка при записи метрик в %s: %w", path, err)
	}
	return nil
}
