// Package gardener runs the control loop: the single goroutine that
// polls the sensors, decides which pumps to start and executes every
// watering command, in order.
package gardener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/plants/internal/clock"
	"github.com/LeonardoBeccarini/plants/internal/config"
	"github.com/LeonardoBeccarini/plants/internal/history"
	"github.com/LeonardoBeccarini/plants/internal/hw"
	"github.com/LeonardoBeccarini/plants/internal/model"
)

var (
	// ErrNotReady is returned by Water before setup completed or once
	// the loop is stopping.
	ErrNotReady    = errors.New("gardener not running")
	ErrUnknownPump = errors.New("unknown pump")
)

// sleepQuantum bounds how long a stop request may go unnoticed.
const sleepQuantum = 100 * time.Millisecond

type State int32

const (
	Initializing State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Sink receives what the loop observes and does. Methods are called on
// the loop goroutine and must not block for long.
type Sink interface {
	Readings(model.Snapshot)
	Result(model.WateringResult)
}

type Option func(*Gardener)

func WithClock(c clock.Clock) Option { return func(g *Gardener) { g.clk = c } }

func WithLogger(l *slog.Logger) Option { return func(g *Gardener) { g.logger = l } }

// WithBoard shares a board with the loop. The loop closes it on exit.
func WithBoard(b *hw.Board) Option { return func(g *Gardener) { g.board = b } }

func WithSinks(sinks ...Sink) Option {
	return func(g *Gardener) { g.sinks = append(g.sinks, sinks...) }
}

// Gardener owns the rig. Hardware and usage history are only touched by
// the goroutine running Run; other goroutines talk to it through Water
// and Status.
type Gardener struct {
	cfg      *config.Config
	registry *hw.Registry
	clk      clock.Clock
	logger   *slog.Logger
	board    *hw.Board
	sinks    []Sink

	state    atomic.Int32
	ready    chan struct{}
	done     chan struct{}
	setupErr error

	queue    Queue
	snapshot atomic.Pointer[model.Snapshot]

	// Set up by the loop goroutine before ready is closed, read-only after.
	histories *history.Manager
	groups    []hw.SensorGroup
	pumps     []hw.Pump
	byName    map[string]hw.Pump
}

func New(cfg *config.Config, registry *hw.Registry, opts ...Option) *Gardener {
	g := &Gardener{
		cfg:      cfg,
		registry: registry,
		clk:      clock.Real(),
		logger:   slog.New(slog.NewTextHandler(os.Stdout, nil)),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(g)
	}
	if g.board == nil {
		g.board = hw.NewBoard()
	}
	g.logger = g.logger.With("component", "gardener")
	return g
}

// Run builds the rig from the configuration and loops until ctx is
// done or Stop is called. A setup error is returned immediately and
// also reported by WaitReady.
func (g *Gardener) Run(ctx context.Context) error {
	defer close(g.done)
	defer g.state.Store(int32(Stopped))

	if err := g.start(); err != nil {
		g.logger.Error("setup failed", "err", err)
		_ = g.board.Close()
		return err
	}
	defer g.teardown()

	g.logger.Info("gardener running",
		"poll_interval", g.cfg.PollInterval.D(),
		"sensor_groups", len(g.groups),
		"pumps", len(g.pumps))
	for !g.shouldStop(ctx) {
		g.cycle(ctx)
	}
	if dropped := g.queue.TryDrain(); len(dropped) > 0 {
		g.logger.Warn("dropping queued commands at stop", "count", len(dropped))
	}
	queueDepth.Set(0)
	g.logger.Info("gardener exited")
	return nil
}

// start runs setup and publishes its outcome on ready.
func (g *Gardener) start() error {
	defer close(g.ready)
	if err := g.setup(); err != nil {
		g.setupErr = err
		return err
	}
	g.state.CompareAndSwap(int32(Initializing), int32(Running))
	return nil
}

func (g *Gardener) setup() error {
	hm, err := history.NewManager(g.cfg.HistoryDB, g.clk, g.logger.With("component", "history"))
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	deps := hw.Deps{
		Clock:         g.clk,
		Logger:        g.logger,
		Histories:     hm,
		Board:         g.board,
		FaultCooldown: g.cfg.FaultCooldown.D(),
	}

	moisture := make(map[string]bool)
	for _, gc := range g.cfg.SensorGroups {
		grp, err := g.registry.NewSensorGroup(gc, deps)
		if err != nil {
			hm.Close()
			return fmt.Errorf("setup: %w", err)
		}
		for _, s := range grp.Sensors() {
			if s.Kind() == model.KindMoisture {
				moisture[s.Name()] = true
			}
		}
		g.groups = append(g.groups, grp)
	}

	g.byName = make(map[string]hw.Pump, len(g.cfg.Pumps))
	for _, pc := range g.cfg.Pumps {
		p, err := g.registry.NewPump(pc.Name, pc.Value, deps)
		if err != nil {
			hm.Close()
			return fmt.Errorf("setup: %w", err)
		}
		for _, t := range pc.Value.ActivationThresholds {
			if !moisture[t.Name] {
				g.logger.Warn("activation threshold on an unknown moisture sensor, pump will not auto-trigger",
					"pump", pc.Name, "sensor", t.Name)
			}
		}
		g.pumps = append(g.pumps, p)
		g.byName[pc.Name] = p
	}
	g.histories = hm
	return nil
}

func (g *Gardener) teardown() {
	if err := g.histories.Close(); err != nil {
		g.logger.Error("closing usage history", "err", err)
	}
	if err := g.board.Close(); err != nil {
		g.logger.Error("closing board", "err", err)
	}
}

func (g *Gardener) shouldStop(ctx context.Context) bool {
	if ctx.Err() != nil {
		g.Stop()
		return true
	}
	return g.State() != Running
}

// cycle polls, publishes the snapshot, enqueues the auto-triggered
// pumps, drains the queue and sleeps out the rest of the interval.
//
// Commands run one after the other and each blocks for its watering
// duration: N queued commands delay the next poll by their sum.
func (g *Gardener) cycle(ctx context.Context) {
	start := g.clk.Now()

	readings := model.Readings{}
	for _, grp := range g.groups {
		readings.Merge(grp.Poll())
	}
	pollDuration.Observe(g.clk.Now().Sub(start).Seconds())
	exportReadings(readings)

	snap := &model.Snapshot{Time: g.clk.Now(), Result: readings}
	g.snapshot.Store(snap)
	for _, s := range g.sinks {
		s.Readings(*snap)
	}

	for _, p := range g.pumps {
		if p.ShouldActivate(readings) {
			g.logger.Info("pump triggered", "pump", p.Name())
			g.queue.Enqueue(model.WaterCommand{
				ID:       uuid.NewString(),
				Pump:     p.Name(),
				Auto:     true,
				Enqueued: g.clk.Now(),
			})
		}
	}

	g.drain(ctx)
	g.sleepUntil(ctx, start.Add(g.cfg.PollInterval.D()))
}

func (g *Gardener) drain(ctx context.Context) {
	cmds := g.queue.TryDrain()
	for i, cmd := range cmds {
		if i > 0 && g.shouldStop(ctx) {
			g.logger.Warn("stop requested, dropping remaining commands", "count", len(cmds)-i)
			break
		}
		g.execute(cmd)
	}
	queueDepth.Set(float64(g.queue.Len()))
}

func (g *Gardener) execute(cmd model.WaterCommand) {
	res := model.WateringResult{
		CommandID: cmd.ID,
		Pump:      cmd.Pump,
		Requested: model.Duration(cmd.Duration),
		Force:     cmd.Force,
		Auto:      cmd.Auto,
		StartedAt: g.clk.Now(),
	}
	p, ok := g.byName[cmd.Pump]
	if !ok {
		res.Status, res.Reason = model.ResultFail, ErrUnknownPump.Error()
	} else {
		ok, err := p.Water(cmd.Duration, cmd.Force, false)
		switch {
		case err != nil:
			g.logger.Error("watering failed", "pump", cmd.Pump, "id", cmd.ID, "err", err)
			res.Status, res.Reason = model.ResultFail, err.Error()
		case !ok:
			res.Status, res.Reason = model.ResultRefused, "quota"
		default:
			res.Status = model.ResultOK
		}
	}
	res.Timestamp = g.clk.Now()
	for _, s := range g.sinks {
		s.Result(res)
	}
}

func (g *Gardener) sleepUntil(ctx context.Context, deadline time.Time) {
	for {
		left := deadline.Sub(g.clk.Now())
		if left <= 0 || g.shouldStop(ctx) {
			return
		}
		g.clk.Sleep(min(left, sleepQuantum))
	}
}

// Stop asks the loop to exit. A watering in progress is completed.
func (g *Gardener) Stop() {
	for {
		s := g.State()
		if s == Stopping || s == Stopped {
			return
		}
		if g.state.CompareAndSwap(int32(s), int32(Stopping)) {
			g.logger.Info("gardener stopping", "from", s.String())
			return
		}
	}
}

// Wait blocks until Run has returned.
func (g *Gardener) Wait() { <-g.done }

// WaitReady blocks until setup finished and returns its error.
func (g *Gardener) WaitReady(ctx context.Context) error {
	select {
	case <-g.ready:
		return g.setupErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gardener) State() State { return State(g.state.Load()) }

// Water checks with a dry run whether the pump would run now and, if
// so, queues the command. The returned id identifies the command in
// the watering results.
func (g *Gardener) Water(pump string, d time.Duration, force bool) (bool, string, error) {
	if !g.isReady() || g.State() != Running {
		return false, "", ErrNotReady
	}
	p, ok := g.byName[pump]
	if !ok {
		return false, "", fmt.Errorf("%w: %q", ErrUnknownPump, pump)
	}
	ok, err := p.Water(d, force, true)
	if err != nil || !ok {
		return false, "", err
	}
	cmd := model.WaterCommand{
		ID:       uuid.NewString(),
		Pump:     pump,
		Duration: d,
		Force:    force,
		Enqueued: g.clk.Now(),
	}
	g.queue.Enqueue(cmd)
	queueDepth.Set(float64(g.queue.Len()))
	g.logger.Info("watering queued", "pump", pump, "id", cmd.ID, "duration", d, "force", force)
	return true, cmd.ID, nil
}

func (g *Gardener) isReady() bool {
	select {
	case <-g.ready:
		return g.setupErr == nil
	default:
		return false
	}
}
