// Package pumps implements the pump kinds and the quota accounting
// they share.
package pumps

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/plants/internal/clock"
	"github.com/LeonardoBeccarini/plants/internal/config"
	"github.com/LeonardoBeccarini/plants/internal/history"
	"github.com/LeonardoBeccarini/plants/internal/hw"
	"github.com/LeonardoBeccarini/plants/internal/model"
)

// DefaultLimit applies to pumps configured without limits.
var DefaultLimit = Limit{Window: 24 * time.Hour, Max: 60 * time.Second}

// Limit caps the watering time spent within a trailing window.
type Limit struct {
	Window time.Duration
	Max    time.Duration
}

// Base is a Pump over any Switch. It owns the pump's usage history.
//
// Water with dryRun=false must only be called from the control loop
// goroutine. Dry runs and Status may be called from any goroutine.
type Base struct {
	name       string
	kind       string
	driver     hw.Switch
	duration   time.Duration
	limits     []Limit
	maxWindow  time.Duration
	thresholds map[string]float64

	clk     clock.Clock
	logger  *slog.Logger
	breaker *gobreaker.CircuitBreaker

	mu      sync.RWMutex // guards history and unsaved
	history history.History
	// unsaved is water delivered whose history write failed. It counts
	// against every limit and keeps the pump refused until it is saved.
	unsaved int
}

// New builds a pump of the given kind switching driver.
func New(name, kind string, cfg config.Pump, driver hw.Switch, deps hw.Deps) (*Base, error) {
	h, err := deps.Histories.HistoryFor("pump@" + name)
	if err != nil {
		return nil, fmt.Errorf("pump %s: %w", name, err)
	}

	p := &Base{
		name:       name,
		kind:       kind,
		driver:     driver,
		duration:   cfg.Duration.D().Truncate(time.Second),
		thresholds: make(map[string]float64, len(cfg.ActivationThresholds)),
		clk:        deps.Clock,
		logger:     deps.Logger.With("pump", name),
		history:    h,
	}
	for _, l := range cfg.Limits {
		p.limits = append(p.limits, Limit{Window: l.PerInterval.D(), Max: l.Duration.D()})
	}
	if len(p.limits) == 0 {
		p.limits = []Limit{DefaultLimit}
	}
	for _, l := range p.limits {
		p.maxWindow = max(p.maxWindow, l.Window)
	}
	for _, t := range cfg.ActivationThresholds {
		p.thresholds[t.Name] = float64(t.Value)
	}

	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "pump@" + name,
		MaxRequests: 1,
		Timeout:     deps.FaultCooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 1
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			p.logger.Warn("pump breaker state change", "from", from.String(), "to", to.String())
			breakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
	breakerState.WithLabelValues(name).Set(0)
	return p, nil
}

func (p *Base) Name() string   { return p.name }
func (p *Base) String() string { return "pump@" + p.name }

func (p *Base) Water(d time.Duration, force, dryRun bool) (bool, error) {
	if d <= 0 {
		d = p.duration
	}
	d = d.Truncate(time.Second)

	if p.breaker.State() == gobreaker.StateOpen {
		return false, fmt.Errorf("%w: %s", hw.ErrPumpFaulted, p.name)
	}
	if dryRun {
		p.mu.RLock()
		defer p.mu.RUnlock()
		if p.unsaved > 0 {
			return false, fmt.Errorf("%w: %s: %ds of usage not saved: %w", hw.ErrPumpFaulted, p.name, p.unsaved, history.ErrPersistence)
		}
		_, ok := p.allowance(d, force)
		return ok, nil
	}

	res, err := p.breaker.Execute(func() (interface{}, error) {
		return p.water(d, force)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false, fmt.Errorf("%w: %s", hw.ErrPumpFaulted, p.name)
	}
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

// allowance returns how long the pump may run for a request of d.
// The caller holds mu.
func (p *Base) allowance(d time.Duration, force bool) (time.Duration, bool) {
	allowed := d
	for _, l := range p.limits {
		spent := time.Duration(p.history.TotalUpTo(l.Window)+p.unsaved) * time.Second
		allowed = min(allowed, l.Max-spent)
		if !force && allowed <= 0 {
			p.logger.Info("inhibiting pump, limit reached", "window", l.Window, "max", l.Max, "spent", spent)
			return 0, false
		}
	}
	return allowed, true
}

// saveUnsaved retries the history write of a previous watering. The
// caller holds mu.
func (p *Base) saveUnsaved() error {
	if p.unsaved == 0 {
		return nil
	}
	if err := p.history.Add(p.unsaved); err != nil {
		pumpFaults.WithLabelValues(p.name, "history").Inc()
		return fmt.Errorf("pump %s: %ds of usage still not saved: %w", p.name, p.unsaved, err)
	}
	p.logger.Info("pending usage saved", "seconds", p.unsaved)
	p.unsaved = 0
	return nil
}

func (p *Base) water(d time.Duration, force bool) (bool, error) {
	p.mu.Lock()
	if err := p.saveUnsaved(); err != nil {
		p.mu.Unlock()
		p.logger.Error("pump held off", "err", err)
		return false, err
	}
	allowed, ok := p.allowance(d, force)
	p.mu.Unlock()
	if !ok {
		return false, nil
	}
	if force {
		allowed = d
		p.logger.Info("watering forced", "duration", d)
	}

	if err := p.driver.On(); err != nil {
		pumpFaults.WithLabelValues(p.name, "on").Inc()
		p.logger.Error("pump did not switch on", "err", err)
		return false, fmt.Errorf("%w: %s on: %v", hw.ErrHardware, p.name, err)
	}
	p.logger.Info("pump on", "duration", allowed)
	p.clk.Sleep(allowed)
	if err := p.driver.Off(); err != nil {
		// Nothing is recorded: we cannot tell how long it really ran.
		pumpFaults.WithLabelValues(p.name, "off").Inc()
		p.logger.Error("pump did not confirm off", "err", err)
		return false, fmt.Errorf("%w: %s off: %v", hw.ErrHardware, p.name, err)
	}
	p.logger.Info("pump off")

	secs := int(allowed / time.Second)
	pumpSeconds.WithLabelValues(p.name).Add(float64(secs))
	p.mu.Lock()
	err := p.history.Add(secs)
	if err != nil {
		// The water was delivered: keep counting it.
		p.unsaved += secs
	} else {
		err = p.history.ForgetUpTo(p.maxWindow)
	}
	p.mu.Unlock()
	if err != nil {
		pumpFaults.WithLabelValues(p.name, "history").Inc()
		p.logger.Error("recording watering failed", "err", err)
		return false, fmt.Errorf("pump %s: %w", p.name, err)
	}
	return true, nil
}

func (p *Base) ShouldActivate(r model.Readings) bool {
	if len(p.thresholds) == 0 {
		return false
	}
	for sensor, threshold := range p.thresholds {
		v, ok := r.Lookup(model.KindMoisture, sensor)
		if !ok || v >= threshold {
			return false
		}
	}
	return true
}

func (p *Base) Status() model.PumpStatus {
	p.mu.RLock()
	limits := make([]model.LimitStatus, 0, len(p.limits))
	for _, l := range p.limits {
		limits = append(limits, model.LimitStatus{
			Window: model.Duration(l.Window),
			Max:    model.Duration(l.Max),
			Used:   model.Duration(time.Duration(p.history.TotalUpTo(l.Window)+p.unsaved) * time.Second),
		})
	}
	unsaved := p.unsaved
	p.mu.RUnlock()

	return model.PumpStatus{
		Name:       p.name,
		Kind:       p.kind,
		Duration:   model.Duration(p.duration),
		Limits:     limits,
		Thresholds: maps.Clone(p.thresholds),
		Faulted:    p.breaker.State() != gobreaker.StateClosed || unsaved > 0,
	}
}
