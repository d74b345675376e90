package event

import (
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/LeonardoBeccarini/plants/internal/model"
)

const (
	measurementReading = "sensor_reading"
	measurementResult  = "watering_result"
)

// ReadingsToPoints returns one point per present reading. Absent
// readings are not written: a gap in the series is the absence.
func ReadingsToPoints(snap model.Snapshot) []*write.Point {
	var out []*write.Point
	for kind, measures := range snap.Result {
		for name, v := range measures {
			if v == nil {
				continue
			}
			out = append(out, influxdb2.NewPoint(measurementReading,
				map[string]string{"kind": kind, "sensor_id": name},
				map[string]interface{}{"value": *v},
				snap.Time))
		}
	}
	return out
}

func ResultToPoint(res model.WateringResult) *write.Point {
	tags := map[string]string{
		"pump":   res.Pump,
		"status": res.Status,
		"auto":   strconv.FormatBool(res.Auto),
	}
	fields := map[string]interface{}{
		"requested_s": res.Requested.D().Seconds(),
		"elapsed_s":   res.Timestamp.Sub(res.StartedAt).Seconds(),
		"force":       res.Force,
	}
	if res.Reason != "" {
		fields["reason"] = res.Reason
	}
	return influxdb2.NewPoint(measurementResult, tags, fields, res.Timestamp)
}
