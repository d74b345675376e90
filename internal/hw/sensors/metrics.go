package sensors

import "github.com/prometheus/client_golang/prometheus"

var (
	ads1115Volts = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "plants_ads1115_sensor_volts",
		Help: "Moisture per sensor volts.",
	}, []string{"sensor_id"})
	chirpCapacitance = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "plants_chirp_sensor_capacitance",
		Help: "Capacitance value.",
	}, []string{"sensor_id"})
	chirpTemperature = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "plants_chirp_sensor_temperature",
		Help: "Temperature in Celsius.",
	}, []string{"sensor_id"})
)

func init() {
	prometheus.MustRegister(ads1115Volts, chirpCapacitance, chirpTemperature)
}
