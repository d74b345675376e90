package model

import "time"

// WaterCommand asks the control loop to run a pump. A zero Duration
// means the pump's configured default. Commands are immutable once
// enqueued.
type WaterCommand struct {
	ID       string        `json:"id"`
	Pump     string        `json:"pump"`
	Duration time.Duration `json:"duration"`
	Force    bool          `json:"force"`
	Auto     bool          `json:"auto"`
	Enqueued time.Time     `json:"enqueued"`
}

// Outcome of a watering command.
const (
	ResultOK      = "OK"
	ResultRefused = "REFUSED"
	ResultFail    = "FAIL"
)

// WateringResult is published after the loop executed a WaterCommand.
type WateringResult struct {
	CommandID string    `json:"command_id"`
	Pump      string    `json:"pump"`
	Requested Duration  `json:"requested"`
	Force     bool      `json:"force"`
	Auto      bool      `json:"auto"`
	Status    string    `json:"status"`           // OK | REFUSED | FAIL
	Reason    string    `json:"reason,omitempty"` // "quota" | error text
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}
