package gardener

import "github.com/LeonardoBeccarini/plants/internal/model"

// Status is the read-only view served to API callers.
type Status struct {
	State        string                    `json:"state"`
	Pumps        []model.PumpStatus        `json:"pumps"`
	SensorGroups []model.SensorGroupStatus `json:"sensor_groups"`
	LastPoll     *model.Snapshot           `json:"last_poll"`
	QueuedOps    int                       `json:"queued_ops"`
}

// Status never waits for the hardware. Before the first poll LastPoll
// is nil.
func (g *Gardener) Status() Status {
	st := Status{
		State:        g.State().String(),
		Pumps:        []model.PumpStatus{},
		SensorGroups: []model.SensorGroupStatus{},
		LastPoll:     g.snapshot.Load(),
		QueuedOps:    g.queue.Len(),
	}
	if !g.isReady() {
		return st
	}
	for _, p := range g.pumps {
		st.Pumps = append(st.Pumps, p.Status())
	}
	for _, grp := range g.groups {
		gs := model.SensorGroupStatus{Name: grp.Name(), Kind: grp.Kind()}
		for _, s := range grp.Sensors() {
			gs.Sensors = append(gs.Sensors, model.SensorStatus{Name: s.Name(), Kind: s.Kind(), Reading: s.Last()})
		}
		st.SensorGroups = append(st.SensorGroups, gs)
	}
	return st
}

// Snapshot returns the result of the latest poll, nil before the first.
func (g *Gardener) Snapshot() *model.Snapshot { return g.snapshot.Load() }

// Pumps lists the configured pump names, in configuration order.
func (g *Gardener) Pumps() []string {
	if !g.isReady() {
		return nil
	}
	names := make([]string, len(g.pumps))
	for i, p := range g.pumps {
		names[i] = p.Name()
	}
	return names
}
