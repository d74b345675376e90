// Package hw defines the capabilities the control loop drives: pumps,
// sensor groups and their sensors. Concrete kinds live in the pumps and
// sensors sub-packages and are looked up by name in a Registry.
package hw

import (
	"errors"
	"log/slog"
	"time"

	"github.com/LeonardoBeccarini/plants/internal/clock"
	"github.com/LeonardoBeccarini/plants/internal/history"
	"github.com/LeonardoBeccarini/plants/internal/model"
)

var (
	// ErrHardware means a driver could not confirm a commanded state.
	ErrHardware = errors.New("hardware fault")
	// ErrPumpFaulted is returned while a pump is held off after a fault.
	ErrPumpFaulted = errors.New("pump faulted")
	// ErrUnknownKind is returned for a kind no factory was registered for.
	ErrUnknownKind = errors.New("unknown kind")
)

// Switch is a binary output such as a relay.
type Switch interface {
	On() error
	Off() error
}

type Sensor interface {
	Name() string
	Kind() string
	// Last returns the reading of the latest poll, nil when absent.
	Last() *float64
}

// SensorGroup is a set of sensors sharing one bus transaction.
type SensorGroup interface {
	Name() string
	Kind() string
	Sensors() []Sensor
	// Poll reads every sensor. It never fails: a sensor that cannot be
	// read reports a nil value.
	Poll() model.Readings
}

type Pump interface {
	Name() string

	// Water runs the pump for d (the configured default when zero),
	// capped by the quota limits unless force is set. It blocks for the
	// whole watering. A refusal because of quota is (false, nil). With
	// dryRun nothing is switched nor recorded.
	Water(d time.Duration, force, dryRun bool) (bool, error)

	// ShouldActivate reports whether every configured threshold sensor
	// has a reading below its threshold. A pump without thresholds
	// never activates on its own, it only runs on explicit commands.
	ShouldActivate(r model.Readings) bool

	Status() model.PumpStatus
}

// Histories hands out the usage history of a pump.
type Histories interface {
	HistoryFor(name string) (history.History, error)
}

// Deps are the collaborators handed to every factory.
type Deps struct {
	Clock         clock.Clock
	Logger        *slog.Logger
	Histories     Histories
	Board         *Board
	// FaultCooldown is how long a faulted pump is held off. It is timed
	// by the circuit breaker on the wall clock, not by Clock. A pump
	// with unsaved usage stays refused past the cooldown until the
	// history write succeeds.
	FaultCooldown time.Duration
}
