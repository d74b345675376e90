package event

import "github.com/prometheus/client_golang/prometheus"

var (
	publishErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plants_event_publish_errors_total",
		Help: "Events a sink failed to hand over.",
	}, []string{"sink"})
	remoteCommands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plants_remote_commands_total",
		Help: "Water commands received over MQTT, by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(publishErrors, remoteCommands)
}
