package hw

import (
	"fmt"
	"maps"
	"slices"

	"github.com/LeonardoBeccarini/plants/internal/config"
)

type (
	PumpFactory        func(name string, cfg config.Pump, deps Deps) (Pump, error)
	SensorGroupFactory func(cfg config.SensorGroup, deps Deps) (SensorGroup, error)
)

// Registry maps config kind tags to constructors. It is filled once at
// startup and only read afterwards.
type Registry struct {
	pumps  map[string]PumpFactory
	groups map[string]SensorGroupFactory
}

func NewRegistry() *Registry {
	return &Registry{
		pumps:  make(map[string]PumpFactory),
		groups: make(map[string]SensorGroupFactory),
	}
}

func (r *Registry) RegisterPump(kind string, f PumpFactory) {
	if _, dup := r.pumps[kind]; dup {
		panic("hw: pump kind registered twice: " + kind)
	}
	r.pumps[kind] = f
}

func (r *Registry) RegisterSensorGroup(kind string, f SensorGroupFactory) {
	if _, dup := r.groups[kind]; dup {
		panic("hw: sensor group kind registered twice: " + kind)
	}
	r.groups[kind] = f
}

func (r *Registry) NewPump(name string, cfg config.Pump, deps Deps) (Pump, error) {
	f, ok := r.pumps[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("pump %s: %w %q (have %v)", name, ErrUnknownKind, cfg.Kind, keys(r.pumps))
	}
	return f(name, cfg, deps)
}

func (r *Registry) NewSensorGroup(cfg config.SensorGroup, deps Deps) (SensorGroup, error) {
	f, ok := r.groups[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("sensor group: %w %q (have %v)", ErrUnknownKind, cfg.Kind, keys(r.groups))
	}
	return f(cfg, deps)
}

func keys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
