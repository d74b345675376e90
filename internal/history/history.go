// Package history keeps the per-pump log of watering events that the
// quota limits are computed from.
package history

import (
	"errors"
	"time"

	"github.com/LeonardoBeccarini/plants/internal/clock"
)

// ErrPersistence wraps every failure of a durable backend.
var ErrPersistence = errors.New("history persistence")

// History is an append/evict log of watering events, each being a
// number of seconds stamped with the time it was recorded.
type History interface {
	// Add records seconds at the current time.
	Add(seconds int) error

	// TotalUpTo sums the events recorded within the trailing window.
	TotalUpTo(window time.Duration) int

	// ForgetUpTo drops the events older than window.
	ForgetUpTo(window time.Duration) error
}

// InMemory is a History that lives only as long as the process.
// It is not safe for concurrent use.
type InMemory struct {
	clk    clock.Clock
	events map[int64]int
}

func NewInMemory(clk clock.Clock) *InMemory {
	return &InMemory{clk: clk, events: make(map[int64]int)}
}

func (h *InMemory) Add(seconds int) error {
	h.record(h.clk.Now().Unix(), seconds)
	return nil
}

func (h *InMemory) TotalUpTo(window time.Duration) int {
	cutoff := h.cutoff(window)
	total := 0
	for ts, v := range h.events {
		if ts >= cutoff {
			total += v
		}
	}
	return total
}

func (h *InMemory) ForgetUpTo(window time.Duration) error {
	h.forgetBefore(h.cutoff(window))
	return nil
}

// Len returns the number of distinct timestamps held.
func (h *InMemory) Len() int { return len(h.events) }

// Events recorded within the same second are summed.
func (h *InMemory) record(ts int64, seconds int) {
	h.events[ts] += seconds
}

func (h *InMemory) forgetBefore(cutoff int64) {
	for ts := range h.events {
		if ts < cutoff {
			delete(h.events, ts)
		}
	}
}

func (h *InMemory) cutoff(window time.Duration) int64 {
	return h.clk.Now().Add(-window).Unix()
}
