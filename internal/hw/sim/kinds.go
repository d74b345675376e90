package sim

import (
	"fmt"
	"sync/atomic"

	"github.com/LeonardoBeccarini/plants/internal/config"
	"github.com/LeonardoBeccarini/plants/internal/hw"
	"github.com/LeonardoBeccarini/plants/internal/hw/pumps"
	"github.com/LeonardoBeccarini/plants/internal/model"
)

const (
	KindSoil  = "sim-soil"
	KindValve = "sim-valve"
)

// Register adds the sim kinds to r, all backed by soil. A sim-valve
// pump waters the beds named by its activation thresholds.
func Register(r *hw.Registry, soil *Soil) {
	r.RegisterSensorGroup(KindSoil, func(cfg config.SensorGroup, _ hw.Deps) (hw.SensorGroup, error) {
		g, err := newGroup(cfg, soil)
		if err != nil {
			return nil, err
		}
		return g, nil
	})
	r.RegisterPump(KindValve, func(name string, cfg config.Pump, deps hw.Deps) (hw.Pump, error) {
		beds := make([]string, 0, len(cfg.ActivationThresholds))
		for _, t := range cfg.ActivationThresholds {
			beds = append(beds, t.Name)
		}
		p, err := pumps.New(name, KindValve, cfg, soil.Valve(beds...), deps)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

type sensor struct {
	name string
	last atomic.Pointer[float64]
}

func (s *sensor) Name() string   { return s.name }
func (s *sensor) Kind() string   { return model.KindMoisture }
func (s *sensor) Last() *float64 { return s.last.Load() }

type group struct {
	name    string
	soil    *Soil
	sensors []*sensor
}

func newGroup(cfg config.SensorGroup, soil *Soil) (*group, error) {
	if len(cfg.Sensors) == 0 {
		return nil, fmt.Errorf("%w: %s group without sensors", config.ErrInvalid, KindSoil)
	}
	g := &group{name: cfg.Name, soil: soil}
	if g.name == "" {
		g.name = KindSoil
	}
	for _, s := range cfg.Sensors {
		g.sensors = append(g.sensors, &sensor{name: s.Name})
	}
	return g, nil
}

func (g *group) Name() string { return g.name }
func (g *group) Kind() string { return KindSoil }

func (g *group) Sensors() []hw.Sensor {
	out := make([]hw.Sensor, len(g.sensors))
	for i, s := range g.sensors {
		out[i] = s
	}
	return out
}

func (g *group) Poll() model.Readings {
	r := model.Readings{}
	for _, s := range g.sensors {
		v := g.soil.Moisture(s.name)
		s.last.Store(&v)
		r.Set(model.KindMoisture, s.name, &v)
	}
	return r
}
