package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/LeonardoBeccarini/plants/internal/hw"
	"github.com/LeonardoBeccarini/plants/internal/model"
	"github.com/LeonardoBeccarini/plants/internal/services/gardener"
)

type waterCall struct {
	pump  string
	d     time.Duration
	force bool
}

// fakeGardener waters "basil" once within quota, refuses it afterwards,
// reports "fern" as faulted and knows no other pump.
type fakeGardener struct {
	state gardener.State
	calls []waterCall
	used  bool
}

func (f *fakeGardener) State() gardener.State { return f.state }

func (f *fakeGardener) Status() gardener.Status {
	return gardener.Status{
		State: f.state.String(),
		Pumps: []model.PumpStatus{{Name: "basil", Kind: "mock-gpio", Duration: model.Duration(10 * time.Second)}},
		LastPoll: &model.Snapshot{
			Time:   time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC),
			Result: model.Readings{model.KindMoisture: {"s1": model.Value(0.25), "s2": nil}},
		},
		QueuedOps: 2,
	}
}

func (f *fakeGardener) Water(pump string, d time.Duration, force bool) (bool, string, error) {
	f.calls = append(f.calls, waterCall{pump, d, force})
	switch {
	case f.state != gardener.Running:
		return false, "", gardener.ErrNotReady
	case pump == "fern":
		return false, "", fmt.Errorf("%w: fern", hw.ErrPumpFaulted)
	case pump != "basil":
		return false, "", fmt.Errorf("%w: %q", gardener.ErrUnknownPump, pump)
	case f.used && !force:
		return false, "", nil
	}
	f.used = true
	return true, "cmd-1", nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("%s %s: body %q: %v", method, target, rec.Body.String(), err)
	}
	return rec, body
}

func TestStatusEndpoint(t *testing.T) {
	h := NewRouter(&fakeGardener{state: gardener.Running}, discard())
	rec, body := do(t, h, http.MethodGet, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if body["queued_ops"] != float64(2) || body["state"] != "running" {
		t.Errorf("body = %v", body)
	}
	result := body["last_poll"].(map[string]any)["result"].(map[string]any)["moisture"].(map[string]any)
	if result["s1"] != 0.25 || result["s2"] != nil {
		t.Errorf("readings = %v", result)
	}
	if !strings.Contains(rec.Body.String(), `"s2":null`) {
		t.Errorf("absent reading not rendered as null: %s", rec.Body.String())
	}
	if pumps := body["pumps"].([]any); pumps[0].(map[string]any)["duration"] != float64(10) {
		t.Errorf("pump duration not in seconds: %v", pumps[0])
	}
}

func TestWaterEndpoint(t *testing.T) {
	g := &fakeGardener{state: gardener.Running}
	h := NewRouter(g, discard())

	tests := []struct {
		target string
		code   int
		status bool
		field  string
		value  any
	}{
		{"/water/basil?duration=30", http.StatusOK, true, "id", "cmd-1"},
		{"/water/basil?duration=30s", http.StatusOK, false, "reason", "quota"},
		{"/water/basil?force=1&duration=2m", http.StatusOK, true, "id", "cmd-1"},
		{"/water/basil?duration=soon", http.StatusBadRequest, false, "", nil},
		{"/water/mint", http.StatusNotFound, false, "", nil},
		{"/water/fern", http.StatusServiceUnavailable, false, "", nil},
	}
	for _, tt := range tests {
		rec, body := do(t, h, http.MethodPost, tt.target)
		if rec.Code != tt.code {
			t.Errorf("POST %s: code = %d, want %d", tt.target, rec.Code, tt.code)
			continue
		}
		if body["status"] != tt.status {
			t.Errorf("POST %s: status = %v, want %v", tt.target, body["status"], tt.status)
		}
		if tt.field != "" && body[tt.field] != tt.value {
			t.Errorf("POST %s: %s = %v, want %v", tt.target, tt.field, body[tt.field], tt.value)
		}
		if tt.code >= 400 && body["error"] == nil {
			t.Errorf("POST %s: no error message", tt.target)
		}
	}

	want := []waterCall{
		{"basil", 30 * time.Second, false},
		{"basil", 30 * time.Second, false},
		{"basil", 2 * time.Minute, true},
		{"mint", 0, false},
		{"fern", 0, false},
	}
	if len(g.calls) != len(want) {
		t.Fatalf("calls = %+v", g.calls)
	}
	for i := range want {
		if g.calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, g.calls[i], want[i])
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/water/basil", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /water/basil = %d, want 405", rec.Code)
	}
}

func TestTruthy(t *testing.T) {
	for v, want := range map[string]bool{"": false, "0": false, "false": false, "No": false, "1": true, "true": true, "yes": true} {
		if got := truthy(v); got != want {
			t.Errorf("truthy(%q) = %v", v, got)
		}
	}
}

func TestHealthAndReady(t *testing.T) {
	g := &fakeGardener{state: gardener.Initializing}
	h := NewRouter(g, discard())

	if rec, body := do(t, h, http.MethodGet, "/healthz"); rec.Code != http.StatusOK || body["state"] != "initializing" {
		t.Errorf("healthz = %d %v", rec.Code, body)
	}
	if rec, _ := do(t, h, http.MethodGet, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz while initializing = %d", rec.Code)
	}
	if rec, _ := do(t, h, http.MethodPost, "/water/basil"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("water while initializing = %d", rec.Code)
	}
	g.state = gardener.Running
	if rec, body := do(t, h, http.MethodGet, "/readyz"); rec.Code != http.StatusOK || body["ready"] != true {
		t.Errorf("readyz while running = %d %v", rec.Code, body)
	}
}

func TestMetricsMounted(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRouter(&fakeGardener{}, discard()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("/metrics = %d", rec.Code)
	}
}

func TestHandlerLogsAndRecovers(t *testing.T) {
	var access bytes.Buffer
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	h := Handler(panicky, &access, discard())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("code = %d, want 500", rec.Code)
	}
	if !strings.Contains(access.String(), `"GET / HTTP/1.1" 500`) {
		t.Errorf("access log = %q", access.String())
	}
}

func dialBufconn(t *testing.T, g Gardener) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterGardenerServer(srv, NewGRPCServer(g))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = cc.Close() })
	return NewClient(cc)
}

func TestGRPCStatus(t *testing.T) {
	c := dialBufconn(t, &fakeGardener{state: gardener.Running})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := c.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	doc := st.AsMap()
	if doc["queued_ops"] != float64(2) || doc["state"] != "running" {
		t.Errorf("status = %v", doc)
	}
}

func TestGRPCWater(t *testing.T) {
	c := dialBufconn(t, &fakeGardener{state: gardener.Running})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if ok, id, err := c.Water(ctx, "basil", "30s", false); !ok || id != "cmd-1" || err != nil {
		t.Errorf("Water = %v, %q, %v", ok, id, err)
	}
	if ok, _, err := c.Water(ctx, "basil", "", false); ok || err != nil {
		t.Errorf("Water over quota = %v, %v", ok, err)
	}

	codesFor := map[string]codes.Code{
		"mint": codes.NotFound,
		"fern": codes.Unavailable,
		"":     codes.InvalidArgument,
	}
	for pump, want := range codesFor {
		if _, _, err := c.Water(ctx, pump, "", false); status.Code(err) != want {
			t.Errorf("Water(%q) code = %v, want %v", pump, status.Code(err), want)
		}
	}
	if _, _, err := c.Water(ctx, "basil", "tomorrow", false); status.Code(err) != codes.InvalidArgument {
		t.Errorf("bad duration code = %v", status.Code(err))
	}
}
