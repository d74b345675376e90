package sensors

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/LeonardoBeccarini/plants/internal/config"
	"github.com/LeonardoBeccarini/plants/internal/hw"
	"github.com/LeonardoBeccarini/plants/internal/model"
)

// Chirp registers, each a big-endian 16 bit value.
const (
	regCapacitance uint8 = 0x00
	regTemperature uint8 = 0x05
)

const (
	defaultChirpBus     = 1
	defaultChirpAddress = 0x20
	defaultCapWet       = 500
	defaultCapDry       = 250
	chirpRetries        = 3
)

type blockReader interface {
	ReadBlockData(reg uint8, b []byte) error
}

func newChirp(cfg config.SensorGroup, deps hw.Deps) (hw.SensorGroup, error) {
	bus, addr := defaultChirpBus, defaultChirpAddress
	if cfg.I2CBus != nil {
		bus = *cfg.I2CBus
	}
	if cfg.I2CAddress != 0 {
		addr = cfg.I2CAddress
	}
	a, err := deps.Board.Adaptor()
	if err != nil {
		return nil, err
	}
	conn, err := a.GetI2cConnection(addr, bus)
	if err != nil {
		return nil, fmt.Errorf("%w: chirp on bus %d address %d: %v", hw.ErrHardware, bus, addr, err)
	}
	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("chirp@%d:%d", bus, addr)
	}
	return buildChirp(name, cfg, conn, defaultRetry, deps)
}

func defaultRetry() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = 2 * time.Second
	return bo
}

func buildChirp(name string, cfg config.SensorGroup, dev blockReader, retry func() backoff.BackOff, deps hw.Deps) (*Group, error) {
	capWet, capDry := defaultCapWet, defaultCapDry
	if cfg.CapWet != 0 {
		capWet = cfg.CapWet
	}
	if cfg.CapDry != 0 {
		capDry = cfg.CapDry
	}
	if capWet == capDry {
		return nil, fmt.Errorf("%w: chirp %s: cap_wet and cap_dry must differ", config.ErrInvalid, name)
	}

	read := func(reg uint8) (uint16, error) {
		var buf [2]byte
		err := backoff.Retry(func() error {
			return dev.ReadBlockData(reg, buf[:])
		}, backoff.WithMaxRetries(retry(), chirpRetries))
		if err != nil {
			return 0, fmt.Errorf("register 0x%02x after %d retries: %w", reg, chirpRetries, err)
		}
		return binary.BigEndian.Uint16(buf[:]), nil
	}

	g := newGroup(name, KindChirp, nil, 0, deps)
	tempName := "temp-" + name
	g.add(tempName, model.KindTemperature, func() (float64, error) {
		raw, err := read(regTemperature)
		if err != nil {
			return 0, err
		}
		t := float64(raw) / 10
		chirpTemperature.WithLabelValues(tempName).Set(t)
		return t, nil
	})
	g.add(name, model.KindMoisture, func() (float64, error) {
		c, err := read(regCapacitance)
		if err != nil {
			return 0, err
		}
		chirpCapacitance.WithLabelValues(name).Set(float64(c))
		return float64(int(c)-capDry) / float64(capWet-capDry), nil
	})
	deps.Logger.Info("sensor group ready", "group", name, "kind", KindChirp)
	return g, nil
}
