package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/plants/internal/config"
	"github.com/LeonardoBeccarini/plants/pkg/dedup"
)

var ErrBadCommand = errors.New("bad water command")

// Waterer enqueues a watering on the control loop.
type Waterer interface {
	Water(pump string, d time.Duration, force bool) (bool, string, error)
}

// Command is the payload of a remote water command. Pump may be left
// out when the topic ends with the pump name; an empty Duration means
// the pump default. ID, when set, is the de-duplication key.
type Command struct {
	ID       string `json:"id,omitempty"`
	Pump     string `json:"pump,omitempty"`
	Duration string `json:"duration,omitempty"`
	Force    bool   `json:"force,omitempty"`
}

// CommandHandler turns MQTT messages on the command topic into Water
// calls. Redelivered messages are dropped.
type CommandHandler struct {
	w      Waterer
	seen   *dedup.Deduper
	prefix string
	logger *slog.Logger
}

// NewCommandHandler builds a handler for messages matching topic. A
// trailing "#" wildcard becomes the prefix stripped to find the pump.
func NewCommandHandler(w Waterer, seen *dedup.Deduper, topic string, logger *slog.Logger) *CommandHandler {
	return &CommandHandler{
		w:      w,
		seen:   seen,
		prefix: strings.TrimSuffix(topic, "#"),
		logger: logger.With("component", "commands"),
	}
}

func (h *CommandHandler) Handle(topic string, m mqtt.Message) error {
	payload := m.Payload()
	cmd, err := h.decode(topic, payload)
	if err != nil {
		remoteCommands.WithLabelValues("invalid").Inc()
		return err
	}
	key := cmd.ID
	if key == "" {
		key = dedup.Key(payload)
	}
	if !h.seen.ShouldProcess(key) {
		remoteCommands.WithLabelValues("duplicate").Inc()
		h.logger.Debug("duplicate command dropped", "pump", cmd.Pump, "key", key)
		return nil
	}

	var d time.Duration
	if cmd.Duration != "" {
		if d, err = config.ParseDuration(cmd.Duration); err != nil {
			remoteCommands.WithLabelValues("invalid").Inc()
			return fmt.Errorf("%w: %v", ErrBadCommand, err)
		}
	}

	ok, id, err := h.w.Water(cmd.Pump, d, cmd.Force)
	switch {
	case err != nil:
		remoteCommands.WithLabelValues("error").Inc()
		return fmt.Errorf("water %s: %w", cmd.Pump, err)
	case !ok:
		remoteCommands.WithLabelValues("refused").Inc()
		h.logger.Info("remote command refused", "pump", cmd.Pump, "reason", "quota")
	default:
		remoteCommands.WithLabelValues("queued").Inc()
		h.logger.Info("remote command queued", "pump", cmd.Pump, "id", id, "duration", d, "force", cmd.Force)
	}
	return nil
}

func (h *CommandHandler) decode(topic string, payload []byte) (Command, error) {
	var cmd Command
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return cmd, fmt.Errorf("%w: %v", ErrBadCommand, err)
		}
	}
	cmd.Pump = pickPump(topic, cmd.Pump, h.prefix)
	if cmd.Pump == "" {
		return cmd, fmt.Errorf("%w: no pump in payload or topic %q", ErrBadCommand, topic)
	}
	return cmd, nil
}

// pickPump prefers the payload, then the topic segment after prefix.
func pickPump(topic, pump, prefix string) string {
	if p := strings.TrimSpace(pump); p != "" {
		return p
	}
	if prefix == "" || !strings.HasPrefix(topic, prefix) {
		return ""
	}
	suffix := strings.Trim(strings.TrimPrefix(topic, prefix), "/")
	if suffix == "" || strings.Contains(suffix, "/") {
		return ""
	}
	return suffix
}
