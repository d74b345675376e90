package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sample = `
poll_interval: 1m
pumps_history_db: /tmp/history.db
sensor_groups:
  - kind: mock-ads1115
    sensors:
      - basil: {port: 0, voltage_wet: 1.2, voltage_dry: 2.8}
      - mint: {port: 1, voltage_wet: 1.2, voltage_dry: 2.8}
  - kind: chirp
    name: chirp0
    i2c_bus: 0
    i2c_address: 32
pumps:
  - basil_pump:
      kind: mock-gpio
      duration: 10s
      limits:
        - {per_interval: 1d, duration: 60s}
        - {per_interval: 1w, duration: 5m}
      activation_thresholds:
        - basil: 30%
        - mint: 0.25
mqtt:
  host: broker
  port: 1883
`

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"17s", 17 * time.Second},
		{"2d", 48 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
		{"3m", 3 * time.Minute},
		{"1M", 31 * 24 * time.Hour},
		{"1Y", 365 * 24 * time.Hour},
		{"30", 30 * time.Second},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if err != nil {
			t.Errorf("ParseDuration(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseDurationRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "1.5h", "-3s", "s"} {
		if _, err := ParseDuration(in); !errors.Is(err, ErrInvalid) {
			t.Errorf("ParseDuration(%q) error = %v, want ErrInvalid", in, err)
		}
	}
}

func TestParseSample(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.PollInterval.D() != time.Minute {
		t.Errorf("PollInterval = %v, want 1m", cfg.PollInterval.D())
	}
	if cfg.Host != defaultHost || cfg.Port != defaultPort {
		t.Errorf("listen = %s:%d, want defaults", cfg.Host, cfg.Port)
	}
	if cfg.FaultCooldown != defaultFaultCooldown {
		t.Errorf("FaultCooldown = %v, want default", cfg.FaultCooldown.D())
	}
	if len(cfg.SensorGroups) != 2 {
		t.Fatalf("len(SensorGroups) = %d, want 2", len(cfg.SensorGroups))
	}
	g := cfg.SensorGroups[0]
	if len(g.Sensors) != 2 || g.Sensors[1].Name != "mint" || g.Sensors[1].Value.Port != 1 {
		t.Errorf("sensors = %+v", g.Sensors)
	}
	if chirp := cfg.SensorGroups[1]; chirp.I2CBus == nil || *chirp.I2CBus != 0 || chirp.I2CAddress != 32 {
		t.Errorf("chirp group = %+v", chirp)
	}

	if len(cfg.Pumps) != 1 {
		t.Fatalf("len(Pumps) = %d, want 1", len(cfg.Pumps))
	}
	p := cfg.Pumps[0]
	if p.Name != "basil_pump" || p.Value.Kind != "mock-gpio" {
		t.Errorf("pump = %s/%s", p.Name, p.Value.Kind)
	}
	if p.Value.Duration.D() != 10*time.Second {
		t.Errorf("pump duration = %v", p.Value.Duration.D())
	}
	if got := p.Value.Limits[1].PerInterval.D(); got != 7*24*time.Hour {
		t.Errorf("second limit window = %v", got)
	}
	th := p.Value.ActivationThresholds
	if len(th) != 2 || th[0].Value != 0.3 || th[1].Value != 0.25 {
		t.Errorf("thresholds = %+v", th)
	}
	if cfg.MQTT == nil || cfg.MQTT.Host != "broker" {
		t.Fatalf("mqtt = %+v", cfg.MQTT)
	}
	if cfg.MQTT.EventTopic != "plants/event/{pump}" || cfg.MQTT.CommandTopic != "plants/water/#" || cfg.MQTT.ReadingsTopic != "" {
		t.Errorf("mqtt topics = %+v", cfg.MQTT)
	}
	if cfg.Influx != nil {
		t.Errorf("influx = %+v, want nil", cfg.Influx)
	}
}

func TestParseRejects(t *testing.T) {
	tests := map[string]string{
		"missing poll interval": `pumps: []`,
		"unknown key":           "poll_interval: 1m\nbogus: 1\n",
		"pump without kind": `
poll_interval: 1m
pumps:
  - p1: {duration: 10s}
`,
		"pump without duration": `
poll_interval: 1m
pumps:
  - p1: {kind: gpio}
`,
		"duplicate pump": `
poll_interval: 1m
pumps:
  - p1: {kind: gpio, duration: 1s}
  - p1: {kind: gpio, duration: 1s}
`,
		"bad limit": `
poll_interval: 1m
pumps:
  - p1: {kind: gpio, duration: 1s, limits: [{per_interval: 1d}]}
`,
		"group without kind": `
poll_interval: 1m
sensor_groups:
  - name: g
`,
		"named entry with two keys": `
poll_interval: 1m
pumps:
  - {p1: {kind: gpio, duration: 1s}, p2: {kind: gpio, duration: 1s}}
`,
		"mqtt without host": `
poll_interval: 1m
mqtt: {port: 1883}
`,
		"influx without bucket": `
poll_interval: 1m
influx: {url: "http://localhost:8086"}
`,
		"bad ratio": `
poll_interval: 1m
pumps:
  - p1: {kind: gpio, duration: 1s, activation_thresholds: [{s1: wet}]}
`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); !errors.Is(err, ErrInvalid) {
				t.Errorf("Parse error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plants.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HistoryDB != "/tmp/history.db" {
		t.Errorf("HistoryDB = %q", cfg.HistoryDB)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
}
