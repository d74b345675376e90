package event

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/LeonardoBeccarini/plants/internal/hw"
	"github.com/LeonardoBeccarini/plants/internal/model"
	"github.com/LeonardoBeccarini/plants/pkg/dedup"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type message struct {
	topic   string
	payload []byte
}

func (m message) Duplicate() bool   { return false }
func (m message) Qos() byte         { return 1 }
func (m message) Retained() bool    { return false }
func (m message) Topic() string     { return m.topic }
func (m message) MessageID() uint16 { return 0 }
func (m message) Payload() []byte   { return m.payload }
func (m message) Ack()              {}

type sent struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakePublisher struct {
	sent []sent
	err  error
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	p.sent = append(p.sent, sent{topic, qos, retained, payload})
	return p.err
}

func result() model.WateringResult {
	return model.WateringResult{
		CommandID: "c1",
		Pump:      "basil",
		Requested: model.Duration(30 * time.Second),
		Status:    model.ResultOK,
		StartedAt: t0,
		Timestamp: t0.Add(30 * time.Second),
	}
}

func TestMQTTSinkResult(t *testing.T) {
	pub := &fakePublisher{}
	s := NewMQTTSink(pub, "plants/event/{pump}", "", discard)

	s.Result(result())
	s.Readings(model.Snapshot{Time: t0})

	if len(pub.sent) != 1 {
		t.Fatalf("sent %d messages, want 1 (no readings topic)", len(pub.sent))
	}
	m := pub.sent[0]
	if m.topic != "plants/event/basil" || m.qos != 1 || m.retained {
		t.Errorf("sent = %+v", m)
	}
	var got map[string]any
	if err := json.Unmarshal(m.payload, &got); err != nil {
		t.Fatal(err)
	}
	if got["status"] != "OK" || got["requested"] != float64(30) || got["command_id"] != "c1" {
		t.Errorf("payload = %s", m.payload)
	}
}

func TestMQTTSinkReadings(t *testing.T) {
	pub := &fakePublisher{err: errors.New("offline")}
	s := NewMQTTSink(pub, "plants/event/{pump}", "plants/readings", discard)

	r := model.Readings{}
	r.Set(model.KindMoisture, "basil", model.Value(0.4))
	r.Set(model.KindMoisture, "mint", nil)
	s.Readings(model.Snapshot{Time: t0, Result: r})

	if len(pub.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(pub.sent))
	}
	m := pub.sent[0]
	if m.topic != "plants/readings" || m.qos != 0 || !m.retained {
		t.Errorf("sent = %+v", m)
	}
	if !strings.Contains(string(m.payload), `"mint":null`) {
		t.Errorf("absent reading not published as null: %s", m.payload)
	}
}

func TestReadingsToPointsSkipsAbsent(t *testing.T) {
	r := model.Readings{}
	r.Set(model.KindMoisture, "basil", model.Value(0))
	r.Set(model.KindMoisture, "mint", nil)
	r.Set(model.KindTemperature, "temp-chirp0", model.Value(21.5))

	pts := ReadingsToPoints(model.Snapshot{Time: t0, Result: r})
	if len(pts) != 2 {
		t.Fatalf("len(points) = %d, want 2", len(pts))
	}
	for _, p := range pts {
		if p.Name() != measurementReading {
			t.Errorf("measurement = %q", p.Name())
		}
		if !p.Time().Equal(t0) {
			t.Errorf("time = %v", p.Time())
		}
	}
}

func TestResultToPoint(t *testing.T) {
	res := result()
	res.Status, res.Reason = model.ResultRefused, "quota"
	p := ResultToPoint(res)
	if p.Name() != measurementResult {
		t.Fatalf("measurement = %q", p.Name())
	}
	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["pump"] != "basil" || tags["status"] != "REFUSED" || tags["auto"] != "false" {
		t.Errorf("tags = %v", tags)
	}
	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["requested_s"] != float64(30) || fields["elapsed_s"] != float64(30) || fields["reason"] != "quota" {
		t.Errorf("fields = %v", fields)
	}
}

type fakeWriteAPI struct {
	api.WriteAPI
	mu     sync.Mutex
	points []*write.Point
	errs   chan error
}

func (f *fakeWriteAPI) WritePoint(p *write.Point) {
	f.mu.Lock()
	f.points = append(f.points, p)
	f.mu.Unlock()
}
func (f *fakeWriteAPI) Errors() <-chan error { return f.errs }
func (f *fakeWriteAPI) Flush()               {}

func TestWriter(t *testing.T) {
	fw := &fakeWriteAPI{errs: make(chan error)}
	w := NewWriter(fw, discard)
	defer close(fw.errs)

	r := model.Readings{}
	r.Set(model.KindMoisture, "basil", model.Value(0.4))
	r.Set(model.KindMoisture, "mint", nil)
	w.Readings(model.Snapshot{Time: t0, Result: r})
	w.Result(result())
	w.Flush()

	if len(fw.points) != 2 {
		t.Errorf("points = %d, want 2", len(fw.points))
	}
	if w.Count(measurementReading) != 1 || w.Count(measurementResult) != 1 {
		t.Errorf("counts = %d/%d", w.Count(measurementReading), w.Count(measurementResult))
	}
	if w.LastErrorAge() < time.Hour {
		t.Errorf("LastErrorAge() = %v before any error", w.LastErrorAge())
	}

	fw.errs <- errors.New("401 unauthorized")
	deadline := time.Now().Add(time.Second)
	for w.LastErrorAge() > time.Minute && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if w.LastErrorAge() > time.Minute {
		t.Error("write error not recorded")
	}

	var nilWriter *Writer
	if nilWriter.Count("x") != 0 || nilWriter.LastErrorAge() < time.Hour {
		t.Error("nil writer should report nothing")
	}
}

type call struct {
	pump  string
	d     time.Duration
	force bool
}

type fakeWaterer struct {
	calls []call
	ok    bool
	err   error
}

func (f *fakeWaterer) Water(pump string, d time.Duration, force bool) (bool, string, error) {
	f.calls = append(f.calls, call{pump, d, force})
	return f.ok, "id-1", f.err
}

func TestCommandHandler(t *testing.T) {
	w := &fakeWaterer{ok: true}
	h := NewCommandHandler(w, dedup.New(time.Minute, 100), "plants/water/#", discard)

	msgs := []message{
		{"plants/water/basil", []byte(`{"duration":"30s"}`)},
		{"plants/water/basil", []byte(`{"duration":"30s"}`)}, // redelivery
		{"plants/water", []byte(`{"pump":"mint","duration":"2m","force":true}`)},
		{"plants/water/fern", nil},
		{"plants/water/fern", []byte(`{"id":"a","duration":"5"}`)},
		{"plants/water/fern", []byte(`{"id":"a","duration":"6"}`)}, // same id
	}
	for _, m := range msgs {
		if err := h.Handle(m.topic, m); err != nil {
			t.Errorf("Handle(%s, %s): %v", m.topic, m.payload, err)
		}
	}

	want := []call{
		{"basil", 30 * time.Second, false},
		{"mint", 2 * time.Minute, true},
		{"fern", 0, false},
		{"fern", 5 * time.Second, false},
	}
	if len(w.calls) != len(want) {
		t.Fatalf("calls = %+v, want %+v", w.calls, want)
	}
	for i := range want {
		if w.calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, w.calls[i], want[i])
		}
	}
}

func TestCommandHandlerRejects(t *testing.T) {
	w := &fakeWaterer{}
	h := NewCommandHandler(w, dedup.New(time.Minute, 100), "plants/water/#", discard)

	bad := []message{
		{"plants/water/basil", []byte(`not json`)},
		{"plants/water", []byte(`{}`)},
		{"plants/water/a/b", []byte(`{}`)},
		{"plants/water/basil", []byte(`{"duration":"soon"}`)},
	}
	for _, m := range bad {
		if err := h.Handle(m.topic, m); !errors.Is(err, ErrBadCommand) {
			t.Errorf("Handle(%s, %s) error = %v, want ErrBadCommand", m.topic, m.payload, err)
		}
	}
	if len(w.calls) != 0 {
		t.Errorf("bad commands reached the loop: %+v", w.calls)
	}

	// refusal is not an error, a faulted pump is
	if err := h.Handle("plants/water/basil", message{"plants/water/basil", []byte(`{"id":"r"}`)}); err != nil {
		t.Errorf("refused command error = %v", err)
	}
	w.err = hw.ErrPumpFaulted
	if err := h.Handle("plants/water/basil", message{"plants/water/basil", []byte(`{"id":"f"}`)}); !errors.Is(err, hw.ErrPumpFaulted) {
		t.Errorf("faulted pump error = %v", err)
	}
}

func TestPickPump(t *testing.T) {
	tests := []struct {
		topic, pump, prefix, want string
	}{
		{"plants/water/basil", "", "plants/water/", "basil"},
		{"plants/water/basil", "mint", "plants/water/", "mint"},
		{"plants/water/", "", "plants/water/", ""},
		{"other/basil", "", "plants/water/", ""},
		{"plants/water/a/b", "", "plants/water/", ""},
		{"plants/water/basil", "", "", ""},
	}
	for _, tt := range tests {
		if got := pickPump(tt.topic, tt.pump, tt.prefix); got != tt.want {
			t.Errorf("pickPump(%q, %q, %q) = %q, want %q", tt.topic, tt.pump, tt.prefix, got, tt.want)
		}
	}
}

type link bool

func (l link) Connected() bool { return bool(l) }

func TestHealthHandler(t *testing.T) {
	fw := &fakeWriteAPI{errs: make(chan error)}
	defer close(fw.errs)
	writer := NewWriter(fw, discard)

	tests := []struct {
		name   string
		mqtt   Connectivity
		writer *Writer
		code   int
		status string
	}{
		{"nothing configured", nil, nil, http.StatusOK, "ok"},
		{"all up", link(true), writer, http.StatusOK, "ok"},
		{"mqtt down", link(false), writer, http.StatusOK, "degraded"},
		{"only mqtt, down", link(false), nil, http.StatusServiceUnavailable, "down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.mqtt, tt.writer, 30*time.Second).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/sinks", nil))
			if rec.Code != tt.code {
				t.Errorf("code = %d, want %d", rec.Code, tt.code)
			}
			var body struct{ Status string }
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Status != tt.status {
				t.Errorf("status = %q, want %q", body.Status, tt.status)
			}
		})
	}
}

func TestParseLatestClamps(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/events/watering/latest?limit=9999&minutes=0&pump=+basil+", nil)
	p := parseLatest(r, 1440, 20, 2000)
	if p.Limit != 500 || p.Minutes != 1 || p.TimeoutMS != 2000 || p.Pump != "basil" {
		t.Errorf("params = %+v", p)
	}

	flux := buildFlux("garden", p)
	for _, want := range []string{`from(bucket: "garden")`, `range(start: -1m)`, `r.pump == "basil"`, `limit(n:500)`} {
		if !strings.Contains(flux, want) {
			t.Errorf("flux missing %q:\n%s", want, flux)
		}
	}
	if strings.Contains(buildFlux("garden", latestParams{Minutes: 5, Limit: 1}), "r.pump") {
		t.Error("pump filter without a pump")
	}
}

func TestLatestHandlerInfluxDown(t *testing.T) {
	client := influxdb2.NewClient("http://127.0.0.1:1", "token")
	defer client.Close()

	rec := httptest.NewRecorder()
	NewLatestHandler(client, "plants", "garden").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/watering/latest?timeout_ms=200", nil))

	if rec.Code != http.StatusOK || rec.Header().Get("X-Error") != "influx-query-error" {
		t.Errorf("code = %d, X-Error = %q", rec.Code, rec.Header().Get("X-Error"))
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("body = %q", rec.Body.String())
	}
}
