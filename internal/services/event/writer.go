package event

import (
	"log/slog"
	"sync"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/LeonardoBeccarini/plants/internal/model"
)

// Writer is the InfluxDB sink. Writes are batched by the client; the
// last asynchronous write error is kept for the health endpoint.
type Writer struct {
	api     api.WriteAPI
	logger  *slog.Logger
	mu      sync.RWMutex
	lastErr time.Time
	counts  map[string]int64
}

func NewWriter(w api.WriteAPI, logger *slog.Logger) *Writer {
	ww := &Writer{
		api:     w,
		logger:  logger.With("sink", "influx"),
		lastErr: time.Now().Add(-24 * time.Hour),
		counts:  make(map[string]int64),
	}
	go func() {
		for err := range w.Errors() {
			if err != nil {
				ww.mu.Lock()
				ww.lastErr = time.Now()
				ww.mu.Unlock()
				publishErrors.WithLabelValues("influx").Inc()
				ww.logger.Warn("influx write error", "err", err)
			}
		}
	}()
	return ww
}

func (w *Writer) Readings(snap model.Snapshot) {
	for _, p := range ReadingsToPoints(snap) {
		w.api.WritePoint(p)
		w.mark(measurementReading)
	}
}

func (w *Writer) Result(res model.WateringResult) {
	w.api.WritePoint(ResultToPoint(res))
	w.mark(measurementResult)
}

// Flush forces pending points out, used at shutdown.
func (w *Writer) Flush() { w.api.Flush() }

// LastErrorAge is the time since the last failed write.
func (w *Writer) LastErrorAge() time.Duration {
	if w == nil {
		return 99999 * time.Hour
	}
	w.mu.RLock()
	t := w.lastErr
	w.mu.RUnlock()
	return time.Since(t)
}

func (w *Writer) mark(measurement string) {
	w.mu.Lock()
	w.counts[measurement]++
	w.mu.Unlock()
}

// Count returns how many points of a measurement were handed over.
func (w *Writer) Count(measurement string) int64 {
	if w == nil {
		return 0
	}
	w.mu.RLock()
	c := w.counts[measurement]
	w.mu.RUnlock()
	return c
}
