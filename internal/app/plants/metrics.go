package plants

import "github.com/plantbuddy/project/internal/platform/metrics"

type Metrics struct {
	CareActions     *metrics.CounterVec
	PlantChanges    *metrics.CounterVec
	PublishFailures *metrics.CounterVec
}

// NewMetrics creates the service counters and registers them on reg.
func NewMetrics(reg *metrics.Registry) *Metrics {
	m := &Metrics{
		CareActions: metrics.NewCounterVec(metrics.Opts{
			Name: "plant_care_actions_total",
			Help: "Care actions by care type and result (ok, stale, error).",
		}, "care_type", "result"),
		PlantChanges: metrics.NewCounterVec(metrics.Opts{
			Name: "plant_catalog_changes_total",
			Help: "Plants added, updated and deleted.",
		}, "op"),
		PublishFailures: metrics.NewCounterVec(metrics.Opts{
			Name: "plant_care_publish_failures_total",
			Help: "Care events that could not be published.",
		}, "event_type"),
	}
	reg.MustRegister(m.CareActions, m.PlantChanges, m.PublishFailures)
	return m
}
