package services

import "github.com/prometheus/client_golang/prometheus"

var (
	fastsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fasts_started_total",
			Help: "Total number of fasts started",
		},
	)
	fastsEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fasts_ended_total",
			Help: "Total number of fasts ended, by final status",
		},
		[]string{"status"},
	)
	waterLogged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "water_logged_ml_total",
			Help: "Total millilitres of water logged",
		},
	)
	milestonesFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milestones_fired_total",
			Help: "Total number of milestone and goal events fired",
		},
		[]string{"kind"},
	)
	liveClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "live_clients",
			Help: "Number of connected live progress websockets",
		},
	)
	pushesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pushes_dropped_total",
			Help: "Pushes dropped because the dispatch queue was full",
		},
	)
)

// RegisterMetrics adds the service metrics to reg. Call once from main.go.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(fastsStarted, fastsEnded, waterLogged, milestonesFired, liveClients, pushesDropped)
}
