// Package sensors implements the sensor group kinds: ADS1115 analog
// moisture probes (real and mock) and Chirp capacitive I2C sensors.
package sensors

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/LeonardoBeccarini/plants/internal/clock"
	"github.com/LeonardoBeccarini/plants/internal/hw"
	"github.com/LeonardoBeccarini/plants/internal/model"
)

const defaultSettle = time.Second

const (
	KindADS1115     = "ads1115"
	KindMockADS1115 = "mock-ads1115"
	KindChirp       = "chirp"
)

// Register adds the sensor group kinds of this package to r.
func Register(r *hw.Registry) {
	r.RegisterSensorGroup(KindADS1115, newADS1115)
	r.RegisterSensorGroup(KindMockADS1115, newMockADS1115)
	r.RegisterSensorGroup(KindChirp, newChirp)
}

type sensor struct {
	name string
	kind string
	read func() (float64, error)
	last atomic.Pointer[float64]
}

func (s *sensor) Name() string   { return s.name }
func (s *sensor) Kind() string   { return s.kind }
func (s *sensor) Last() *float64 { return s.last.Load() }

// Group polls its sensors in one bus transaction: power on, settle,
// read each sensor, power off.
type Group struct {
	name    string
	kind    string
	sensors []*sensor
	enable  hw.Switch // nil when the sensors are always powered
	settle  time.Duration
	clk     clock.Clock
	logger  *slog.Logger
}

func newGroup(name, kind string, enable hw.Switch, settle time.Duration, deps hw.Deps) *Group {
	return &Group{
		name:   name,
		kind:   kind,
		enable: enable,
		settle: settle,
		clk:    deps.Clock,
		logger: deps.Logger.With("sensor_group", name),
	}
}

func (g *Group) add(name, kind string, read func() (float64, error)) {
	g.sensors = append(g.sensors, &sensor{name: name, kind: kind, read: read})
}

func (g *Group) Name() string { return g.name }
func (g *Group) Kind() string { return g.kind }

func (g *Group) Sensors() []hw.Sensor {
	out := make([]hw.Sensor, len(g.sensors))
	for i, s := range g.sensors {
		out[i] = s
	}
	return out
}

func (g *Group) Poll() model.Readings {
	r := model.Readings{}
	if g.enable != nil {
		if err := g.enable.On(); err != nil {
			g.logger.Warn("sensor power on failed, readings absent", "err", err)
			for _, s := range g.sensors {
				s.last.Store(nil)
				r.Set(s.kind, s.name, nil)
			}
			return r
		}
		defer func() {
			if err := g.enable.Off(); err != nil {
				g.logger.Warn("sensor power off failed", "err", err)
			}
		}()
		g.clk.Sleep(g.settle)
	}
	for _, s := range g.sensors {
		r.Set(s.kind, s.name, g.readOne(s))
	}
	return r
}

func (g *Group) readOne(s *sensor) (v *float64) {
	defer func() {
		if rec := recover(); rec != nil {
			g.logger.Warn("sensor read panicked", "sensor", s.name, "panic", fmt.Sprint(rec))
			s.last.Store(nil)
			v = nil
		}
	}()
	f, err := s.read()
	if err == nil && (math.IsNaN(f) || math.IsInf(f, 0)) {
		err = fmt.Errorf("non-finite value %v", f)
	}
	if err != nil {
		g.logger.Warn("sensor read failed", "sensor", s.name, "err", err)
		s.last.Store(nil)
		return nil
	}
	s.last.Store(&f)
	return &f
}
