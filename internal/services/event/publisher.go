// Package event ships what the control loop observes and does to the
// outside world (MQTT, InfluxDB) and accepts water commands over MQTT.
package event

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/LeonardoBeccarini/plants/internal/model"
)

// Publisher is the MQTT side of the sink.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTSink publishes every watering result on the event topic, with
// "{pump}" replaced by the pump name, and optionally every snapshot
// on a retained readings topic.
type MQTTSink struct {
	pub           Publisher
	eventTopic    string
	readingsTopic string
	logger        *slog.Logger
}

func NewMQTTSink(pub Publisher, eventTopic, readingsTopic string, logger *slog.Logger) *MQTTSink {
	return &MQTTSink{
		pub:           pub,
		eventTopic:    eventTopic,
		readingsTopic: readingsTopic,
		logger:        logger.With("sink", "mqtt"),
	}
}

func (s *MQTTSink) Result(res model.WateringResult) {
	topic := strings.ReplaceAll(s.eventTopic, "{pump}", res.Pump)
	s.publish(topic, 1, false, res)
}

func (s *MQTTSink) Readings(snap model.Snapshot) {
	if s.readingsTopic == "" {
		return
	}
	s.publish(s.readingsTopic, 0, true, snap)
}

func (s *MQTTSink) publish(topic string, qos byte, retained bool, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encode event", "topic", topic, "err", err)
		return
	}
	if err := s.pub.Publish(topic, qos, retained, b); err != nil {
		publishErrors.WithLabelValues("mqtt").Inc()
		s.logger.Warn("publish event", "topic", topic, "err", err)
	}
}
