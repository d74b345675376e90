package pumps

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
)

var (
	pumpSeconds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plants_pump_seconds_total",
		Help: "Seconds of pump activation.",
	}, []string{"pump_id"})
	pumpFaults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plants_pump_faults_total",
		Help: "Pump faults by kind (on, off, history).",
	}, []string{"pump_id", "kind"})
	breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "plants_pump_breaker_state",
		Help: "Pump fault breaker state (0 closed, 1 half-open, 2 open).",
	}, []string{"pump_id"})
)

func init() {
	prometheus.MustRegister(pumpSeconds, pumpFaults, breakerState)
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
