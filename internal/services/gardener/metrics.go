package gardener

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/LeonardoBeccarini/plants/internal/model"
)

var (
	sensorMetrics = map[string]*prometheus.GaugeVec{
		model.KindTemperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "plants_temp_celsius",
			Help: "Temperature.",
		}, []string{"sensor_id"}),
		model.KindMoisture: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "plants_moisture_ratio",
			Help: "Moisture per sensor ([0..1]).",
		}, []string{"sensor_id"}),
	}
	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "plants_queue_depth",
		Help: "Watering commands waiting for the control loop.",
	})
	pollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "plants_poll_duration_seconds",
		Help:    "Time spent polling every sensor group in one cycle.",
		Buckets: []float64{.01, .05, .1, .5, 1, 2, 5, 10},
	})
)

func init() {
	for _, g := range sensorMetrics {
		prometheus.MustRegister(g)
	}
	prometheus.MustRegister(queueDepth, pollDuration)
}

// exportReadings sets one gauge per present reading. Absent readings
// keep the previous value.
func exportReadings(r model.Readings) {
	for kind, measures := range r {
		g, ok := sensorMetrics[kind]
		if !ok {
			continue
		}
		for name, v := range measures {
			if v != nil {
				g.WithLabelValues(name).Set(*v)
			}
		}
	}
}
