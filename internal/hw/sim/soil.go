// Package sim provides a simulated rig: soil beds whose moisture dries
// out over time and rises while a valve waters them. Moisture sensors
// and pumps of the sim kinds share one Soil, so the control loop can be
// exercised end to end without hardware.
package sim

import (
	"sync"
	"time"

	"github.com/LeonardoBeccarini/plants/internal/clock"
)

const (
	// DefaultGainPerMin is +0.6% per minute of watering.
	DefaultGainPerMin = 0.006
	// DefaultDecayPerMin is -0.1% per minute otherwise.
	DefaultDecayPerMin = 0.001

	defaultSeed = 0.30
)

// Soil holds the moisture of every bed, keyed by sensor name. Beds are
// created on first use at the seed level.
type Soil struct {
	mu    sync.Mutex
	clk   clock.Clock
	gain  float64
	decay float64
	beds  map[string]*bed
}

type bed struct {
	moisture float64 // [0..1]
	last     time.Time
	valves   int
}

func NewSoil(clk clock.Clock, gainPerMin, decayPerMin float64) *Soil {
	return &Soil{
		clk:   clk,
		gain:  max(0, gainPerMin),
		decay: max(0, decayPerMin),
		beds:  make(map[string]*bed),
	}
}

// Moisture brings the bed up to date and returns its moisture.
func (s *Soil) Moisture(name string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bed(name).moisture
}

// Set overrides the moisture of a bed.
func (s *Soil) Set(name string, m float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bed(name)
	b.moisture = clamp01(m)
}

// Valve returns a switch that waters the given beds while on.
func (s *Soil) Valve(beds ...string) *Valve {
	return &Valve{soil: s, beds: beds}
}

// bed returns the named bed advanced to now. Caller holds mu.
func (s *Soil) bed(name string) *bed {
	now := s.clk.Now()
	b, ok := s.beds[name]
	if !ok {
		b = &bed{moisture: defaultSeed, last: now}
		s.beds[name] = b
		return b
	}
	dtMin := max(0, now.Sub(b.last).Minutes())
	if b.valves > 0 {
		b.moisture = clamp01(b.moisture + s.gain*dtMin)
	} else {
		b.moisture = clamp01(b.moisture - s.decay*dtMin)
	}
	b.last = now
	return b
}

// Valve is the simulated pump output.
type Valve struct {
	soil *Soil
	mu   sync.Mutex
	open bool
	beds []string
}

func (v *Valve) On() error  { v.set(true); return nil }
func (v *Valve) Off() error { v.set(false); return nil }

func (v *Valve) set(open bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.open == open {
		return
	}
	v.open = open
	v.soil.mu.Lock()
	defer v.soil.mu.Unlock()
	for _, name := range v.beds {
		b := v.soil.bed(name)
		if open {
			b.valves++
		} else {
			b.valves--
		}
	}
}

func clamp01(x float64) float64 {
	return min(1, max(0, x))
}
