package sensors

import (
	"fmt"

	"gobot.io/x/gobot/v2/drivers/gpio"
	"gobot.io/x/gobot/v2/drivers/i2c"

	"github.com/LeonardoBeccarini/plants/internal/config"
	"github.com/LeonardoBeccarini/plants/internal/hw"
	"github.com/LeonardoBeccarini/plants/internal/model"
)

const (
	defaultADSBus     = 1
	defaultADSAddress = 72
)

// adc reads the voltage of one single-ended input.
type adc interface {
	ReadWithDefaults(channel int) (float64, error)
}

func newADS1115(cfg config.SensorGroup, deps hw.Deps) (hw.SensorGroup, error) {
	bus, addr := defaultADSBus, defaultADSAddress
	if cfg.SMBus != nil {
		bus = *cfg.SMBus
	}
	if cfg.I2CAddress != 0 {
		addr = cfg.I2CAddress
	}
	a, err := deps.Board.Adaptor()
	if err != nil {
		return nil, err
	}
	drv := i2c.NewADS1115Driver(a, i2c.WithBus(bus), i2c.WithAddress(addr))
	if err := drv.Start(); err != nil {
		return nil, fmt.Errorf("%w: ads1115 on bus %d address %d: %v", hw.ErrHardware, bus, addr, err)
	}

	var enable hw.Switch
	if cfg.EnablePort != "" {
		led := gpio.NewLedDriver(a, cfg.EnablePort)
		if err := led.Start(); err != nil {
			return nil, fmt.Errorf("%w: enable port %s: %v", hw.ErrHardware, cfg.EnablePort, err)
		}
		enable = led
	}
	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("ads1115@%d:%d", bus, addr)
	}
	return buildADCGroup(name, KindADS1115, cfg, drv, enable, deps)
}

// newMockADS1115 runs the ADS1115 sensor math against a fake converter.
func newMockADS1115(cfg config.SensorGroup, deps hw.Deps) (hw.SensorGroup, error) {
	name := cfg.Name
	if name == "" {
		name = KindMockADS1115
	}
	return buildADCGroup(name, KindMockADS1115, cfg, mockADC{}, nopSwitch{}, deps)
}

func buildADCGroup(name, kind string, cfg config.SensorGroup, conv adc, enable hw.Switch, deps hw.Deps) (*Group, error) {
	settle := cfg.SettleDuration.D()
	if settle == 0 {
		settle = defaultSettle
	}
	g := newGroup(name, kind, enable, settle, deps)
	for _, s := range cfg.Sensors {
		sc := s.Value
		if sc.Type != "" && sc.Type != model.KindMoisture {
			return nil, fmt.Errorf("%w: sensor %s: unsupported type %q", config.ErrInvalid, s.Name, sc.Type)
		}
		if sc.Port < 0 || sc.Port > 3 {
			return nil, fmt.Errorf("%w: sensor %s: port %d out of range 0..3", config.ErrInvalid, s.Name, sc.Port)
		}
		if sc.VoltageDry == sc.VoltageWet {
			return nil, fmt.Errorf("%w: sensor %s: voltage_wet and voltage_dry must differ", config.ErrInvalid, s.Name)
		}
		g.add(s.Name, model.KindMoisture, func() (float64, error) {
			v, err := conv.ReadWithDefaults(sc.Port)
			if err != nil {
				return 0, err
			}
			ads1115Volts.WithLabelValues(s.Name).Set(v)
			// 1 is wet
			return (sc.VoltageDry - v) / (sc.VoltageDry - sc.VoltageWet), nil
		})
	}
	deps.Logger.Info("sensor group ready", "group", name, "kind", kind, "sensors", len(g.sensors))
	return g, nil
}

type mockADC struct{}

func (mockADC) ReadWithDefaults(channel int) (float64, error) {
	return 1.7 + float64(channel)/5, nil
}

type nopSwitch struct{}

func (nopSwitch) On() error  { return nil }
func (nopSwitch) Off() error { return nil }
