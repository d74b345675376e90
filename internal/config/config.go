// Package config loads the rig description: poll cadence, sensor
// groups, pumps with their quotas and thresholds, and the optional
// MQTT / InfluxDB integrations.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid marks every configuration problem. Startup refuses to
// continue when it sees one.
var ErrInvalid = errors.New("invalid config")

const (
	defaultHost          = "127.0.0.1"
	defaultPort          = 9001
	defaultLogLevel      = "info"
	defaultFaultCooldown = Duration(10 * time.Minute)
)

type Config struct {
	PollInterval  Duration      `yaml:"poll_interval"`
	HistoryDB     string        `yaml:"pumps_history_db"`
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	GRPCPort      int           `yaml:"grpc_port"`
	LogLevel      string        `yaml:"log_level"`
	FaultCooldown Duration      `yaml:"fault_cooldown"`
	SensorGroups  []SensorGroup `yaml:"sensor_groups"`
	Pumps         []Named[Pump] `yaml:"pumps"`
	MQTT          *MQTT         `yaml:"mqtt"`
	Influx        *Influx       `yaml:"influx"`
}

// SensorGroup holds the settings of every sensor group kind. Each
// driver reads the fields it understands.
type SensorGroup struct {
	Kind           string          `yaml:"kind"`
	Name           string          `yaml:"name"`
	SMBus          *int            `yaml:"smbus"`
	I2CBus         *int            `yaml:"i2c_bus"`
	I2CAddress     int             `yaml:"i2c_address"`
	EnablePort     string          `yaml:"enable_port"`
	SettleDuration Duration        `yaml:"settle_duration"`
	CapWet         int             `yaml:"cap_wet"`
	CapDry         int             `yaml:"cap_dry"`
	Sensors        []Named[Sensor] `yaml:"sensors"`
}

// Sensor is one analog input of an ADC group.
type Sensor struct {
	Type       string  `yaml:"type"`
	Port       int     `yaml:"port"`
	VoltageWet float64 `yaml:"voltage_wet"`
	VoltageDry float64 `yaml:"voltage_dry"`
}

type Pump struct {
	Kind                 string         `yaml:"kind"`
	Port                 string         `yaml:"port"`
	Duration             Duration       `yaml:"duration"`
	Limits               []Limit        `yaml:"limits"`
	ActivationThresholds []Named[Ratio] `yaml:"activation_thresholds"`
}

// Limit caps the watering seconds a pump may spend within a trailing
// window.
type Limit struct {
	PerInterval Duration `yaml:"per_interval"`
	Duration    Duration `yaml:"duration"`
}

// MQTT enables event publishing and remote water commands. The event
// topic may contain "{pump}". An empty readings topic disables
// snapshot publishing.
type MQTT struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	ClientID      string `yaml:"client_id"`
	EventTopic    string `yaml:"event_topic"`
	ReadingsTopic string `yaml:"readings_topic"`
	CommandTopic  string `yaml:"command_topic"`
}

type Influx struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// Named decodes the single-key mappings used for named list entries:
//
//	pumps:
//	  - basil_pump: {kind: gpio, port: "11"}
type Named[T any] struct {
	Name  string
	Value T
}

func (n *Named[T]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return fmt.Errorf("line %d: %w: expected a single-key mapping", node.Line, ErrInvalid)
	}
	n.Name = node.Content[0].Value
	return node.Content[1].Decode(&n.Value)
}

// Load reads and validates the YAML file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a YAML document, applies defaults and validates it.
// Unknown keys are rejected.
func Parse(raw []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, ErrInvalid) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = defaultHost
	}
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.FaultCooldown == 0 {
		c.FaultCooldown = defaultFaultCooldown
	}
	if m := c.MQTT; m != nil {
		if m.Port == 0 {
			m.Port = 1883
		}
		if m.ClientID == "" {
			m.ClientID = "plants"
		}
		if m.EventTopic == "" {
			m.EventTopic = "plants/event/{pump}"
		}
		if m.CommandTopic == "" {
			m.CommandTopic = "plants/water/#"
		}
	}
}

// Validate checks the fields every driver relies on. Driver specific
// settings are checked when the driver is constructed.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll_interval is required", ErrInvalid)
	}
	for i, g := range c.SensorGroups {
		if g.Kind == "" {
			return fmt.Errorf("%w: sensor_groups[%d]: kind is required", ErrInvalid, i)
		}
	}
	seen := make(map[string]bool, len(c.Pumps))
	for _, p := range c.Pumps {
		if p.Name == "" {
			return fmt.Errorf("%w: pump without a name", ErrInvalid)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate pump %q", ErrInvalid, p.Name)
		}
		seen[p.Name] = true
		if err := p.Value.validate(); err != nil {
			return fmt.Errorf("pump %s: %w", p.Name, err)
		}
	}
	if c.MQTT != nil && c.MQTT.Host == "" {
		return fmt.Errorf("%w: mqtt.host is required", ErrInvalid)
	}
	if i := c.Influx; i != nil && (i.URL == "" || i.Bucket == "") {
		return fmt.Errorf("%w: influx needs url and bucket", ErrInvalid)
	}
	return nil
}

func (p Pump) validate() error {
	if p.Kind == "" {
		return fmt.Errorf("%w: kind is required", ErrInvalid)
	}
	if p.Duration <= 0 {
		return fmt.Errorf("%w: duration is required", ErrInvalid)
	}
	for i, l := range p.Limits {
		if l.PerInterval <= 0 || l.Duration <= 0 {
			return fmt.Errorf("%w: limits[%d] needs per_interval and duration", ErrInvalid, i)
		}
	}
	for _, t := range p.ActivationThresholds {
		if t.Name == "" {
			return fmt.Errorf("%w: activation threshold without a sensor name", ErrInvalid)
		}
	}
	return nil
}
