package model

import "time"

// Sensor kinds understood by the control loop and the metrics exporter.
const (
	KindMoisture    = "moisture"
	KindTemperature = "temperature"
)

// Readings maps sensor kind -> sensor name -> value. A nil value is an
// absent reading: the sensor could not be read this cycle. It is never
// the same thing as zero.
type Readings map[string]map[string]*float64

// Set stores v (possibly nil) for the named sensor.
func (r Readings) Set(kind, name string, v *float64) {
	m, ok := r[kind]
	if !ok {
		m = make(map[string]*float64)
		r[kind] = m
	}
	m[name] = v
}

// Merge copies every reading of other into r.
func (r Readings) Merge(other Readings) {
	for kind, measures := range other {
		if _, ok := r[kind]; !ok {
			r[kind] = make(map[string]*float64, len(measures))
		}
		for name, v := range measures {
			r[kind][name] = v
		}
	}
}

// Lookup returns the reading of the named sensor of the given kind.
// ok is false when the sensor is unknown or its reading is absent.
func (r Readings) Lookup(kind, name string) (float64, bool) {
	v := r[kind][name]
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Snapshot is the result of one poll cycle. It is replaced as a whole
// after every poll and never mutated once published.
type Snapshot struct {
	Time   time.Time `json:"time"`
	Result Readings  `json:"result"`
}

// Value returns a pointer to v, for building Readings.
func Value(v float64) *float64 { return &v }
