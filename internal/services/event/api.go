package event

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
)

// Watering is one past watering result read back from InfluxDB.
type Watering struct {
	Pump      string  `json:"pump"`
	Status    string  `json:"status"`
	Requested float64 `json:"requested_s"`
	Time      string  `json:"time"` // RFC3339
}

type latestParams struct {
	Pump      string
	Minutes   int
	Limit     int
	TimeoutMS int
}

func parseLatest(r *http.Request, defMin, defLim, defTOms int) latestParams {
	q := r.URL.Query()
	get := func(k string, def, lo, hi int) int {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return max(lo, min(n, hi))
			}
		}
		return def
	}
	return latestParams{
		Pump:      strings.TrimSpace(q.Get("pump")),
		Minutes:   get("minutes", defMin, 1, 31*24*60),
		Limit:     get("limit", defLim, 1, 500),
		TimeoutMS: get("timeout_ms", defTOms, 200, 5000),
	}
}

func buildFlux(bucket string, p latestParams) string {
	pumpFilter := ""
	if p.Pump != "" {
		pumpFilter = fmt.Sprintf("\n  |> filter(fn: (r) => r.pump == %q)", p.Pump)
	}
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%dm)
  |> filter(fn: (r) => r._measurement == %q and r._field == "requested_s")%s
  |> keep(columns: ["_time","_value","pump","status"])
  |> group()
  |> sort(columns: ["_time"], desc: true)
  |> limit(n:%d)
`, bucket, p.Minutes, measurementResult, pumpFilter, p.Limit)
}

func runLatest(w http.ResponseWriter, r *http.Request, influx influxdb2.Client, org, bucket string) {
	p := parseLatest(r, 1440, 20, 2000)

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(p.TimeoutMS)*time.Millisecond)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	res, err := influx.QueryAPI(org).Query(ctx, buildFlux(bucket, p))
	if err != nil {
		w.Header().Set("X-Error", "influx-query-error")
		_, _ = w.Write([]byte("[]"))
		return
	}
	defer res.Close()

	out := make([]Watering, 0, p.Limit)
	for res.Next() {
		rec := res.Record()
		var secs float64
		switch v := rec.Value().(type) {
		case float64:
			secs = v
		case int64:
			secs = float64(v)
		}
		pump, _ := rec.ValueByKey("pump").(string)
		status, _ := rec.ValueByKey("status").(string)
		out = append(out, Watering{
			Pump:      pump,
			Status:    status,
			Requested: secs,
			Time:      rec.Time().UTC().Format(time.RFC3339),
		})
	}
	if res.Err() != nil {
		w.Header().Set("X-Error", "influx-iter-error")
	}
	_ = json.NewEncoder(w).Encode(out)
}

// NewLatestHandler serves
// GET /events/watering/latest?limit=20[&minutes=1440][&pump=basil_pump]
func NewLatestHandler(influx influxdb2.Client, org, bucket string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		runLatest(w, r, influx, org, bucket)
	})
}
