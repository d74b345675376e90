package pumps

import (
	"fmt"

	"gobot.io/x/gobot/v2/drivers/gpio"

	"github.com/LeonardoBeccarini/plants/internal/config"
	"github.com/LeonardoBeccarini/plants/internal/hw"
)

const (
	KindGPIO     = "gpio"
	KindMockGPIO = "mock-gpio"
)

// Register adds the pump kinds of this package to r.
func Register(r *hw.Registry) {
	r.RegisterPump(KindGPIO, newGPIO)
	r.RegisterPump(KindMockGPIO, newMock)
}

// newGPIO drives a relay on a Raspberry Pi header pin.
func newGPIO(name string, cfg config.Pump, deps hw.Deps) (hw.Pump, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("%w: pump %s: port is required", config.ErrInvalid, name)
	}
	a, err := deps.Board.Adaptor()
	if err != nil {
		return nil, fmt.Errorf("pump %s: %w", name, err)
	}
	relay := gpio.NewRelayDriver(a, cfg.Port)
	if err := relay.Start(); err != nil {
		return nil, fmt.Errorf("%w: pump %s: start relay on %s: %v", hw.ErrHardware, name, cfg.Port, err)
	}
	return New(name, KindGPIO, cfg, relay, deps)
}

func newMock(name string, cfg config.Pump, deps hw.Deps) (hw.Pump, error) {
	return New(name, KindMockGPIO, cfg, nopSwitch{}, deps)
}

type nopSwitch struct{}

func (nopSwitch) On() error  { return nil }
func (nopSwitch) Off() error { return nil }
