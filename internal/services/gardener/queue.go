package gardener

import (
	"sync"

	"github.com/LeonardoBeccarini/plants/internal/model"
)

// Queue is the FIFO of watering commands. Any goroutine may Enqueue;
// only the control loop drains it.
type Queue struct {
	mu    sync.Mutex
	items []model.WaterCommand
}

// Enqueue appends cmd. It never blocks on the consumer.
func (q *Queue) Enqueue(cmd model.WaterCommand) {
	q.mu.Lock()
	q.items = append(q.items, cmd)
	q.mu.Unlock()
}

// TryDrain removes and returns every pending command in enqueue order,
// or nil when the queue is empty.
func (q *Queue) TryDrain() []model.WaterCommand {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
