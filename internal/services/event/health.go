package event

import (
	"encoding/json"
	"net/http"
	"time"
)

// Connectivity reports whether the MQTT link is up.
type Connectivity interface {
	Connected() bool
}

type healthHandler struct {
	mqtt     Connectivity
	writer   *Writer
	errGrace time.Duration
}

// NewHealthHandler reports the state of the configured sinks. Either
// may be nil when the integration is disabled. A write error younger
// than errGrace degrades the status.
func NewHealthHandler(m Connectivity, w *Writer, errGrace time.Duration) http.Handler {
	return &healthHandler{mqtt: m, writer: w, errGrace: errGrace}
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	type status struct {
		Status          string   `json:"status"`
		MQTTConnected   *bool    `json:"mqtt_connected,omitempty"`
		InfluxOK        *bool    `json:"influx_ok,omitempty"`
		LastWriteErrorS *float64 `json:"last_write_error_age_sec,omitempty"`
	}
	var st status
	up, total := 0, 0
	if h.mqtt != nil {
		ok := h.mqtt.Connected()
		st.MQTTConnected = &ok
		total++
		if ok {
			up++
		}
	}
	if h.writer != nil {
		age := h.writer.LastErrorAge()
		ok := age > h.errGrace
		secs := age.Seconds()
		st.InfluxOK, st.LastWriteErrorS = &ok, &secs
		total++
		if ok {
			up++
		}
	}

	switch {
	case up == total:
		st.Status = "ok"
	case up > 0:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}

	w.Header().Set("Content-Type", "application/json")
	if st.Status == "down" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(st)
}
