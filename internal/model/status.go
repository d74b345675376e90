package model

import (
	"strconv"
	"time"
)

// Duration is a time.Duration that marshals to JSON as whole seconds.
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, int64(time.Duration(d)/time.Second), 10), nil
}

type LimitStatus struct {
	Window Duration `json:"per_interval"`
	Max    Duration `json:"duration"`
	Used   Duration `json:"used"`
}

type PumpStatus struct {
	Name       string             `json:"name"`
	Kind       string             `json:"kind"`
	Duration   Duration           `json:"duration"`
	Limits     []LimitStatus      `json:"limits"`
	Thresholds map[string]float64 `json:"activation_thresholds"`
	Faulted    bool               `json:"faulted"`
}

type SensorStatus struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Reading *float64 `json:"reading"`
}

type SensorGroupStatus struct {
	Name    string         `json:"name"`
	Kind    string         `json:"kind"`
	Sensors []SensorStatus `json:"sensors"`
}
