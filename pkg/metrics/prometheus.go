package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AdjustmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotad_adjustments_total",
			Help: "Total number of quota delta adjustments by resource and result",
		},
		[]string{"resource", "result"},
	)

	QuotaUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotad_quota_updates_total",
			Help: "Total number of bulk quota updates by result",
		},
		[]string{"result"},
	)

	ServerEditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotad_server_edits_total",
			Help: "Total number of validated server resource edits by result",
		},
		[]string{"result"},
	)

	OverflowDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotad_overflow_detected_total",
			Help: "Times an aggregate overflow was observed, by resource",
		},
		[]string{"resource"},
	)

	SettingsWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotad_settings_writes_total",
			Help: "Total number of resource settings writes by vector name",
		},
		[]string{"name"},
	)
)

const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)
