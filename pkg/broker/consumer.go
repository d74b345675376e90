package broker

import (
	"context"
	"fmt"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Handler processes one message. Errors are logged, the message is not
// redelivered.
type Handler func(topic string, msg mqtt.Message) error

// Consumer subscribes a handler to a topic filter.
type Consumer struct {
	client  mqtt.Client
	topic   string
	qos     byte
	handler Handler
	logger  *slog.Logger
}

func NewConsumer(client mqtt.Client, topic string, qos byte, handler Handler, logger *slog.Logger) *Consumer {
	return &Consumer{client: client, topic: topic, qos: qos, handler: handler, logger: logger.With("topic", topic)}
}

// Consume subscribes and blocks until ctx is done, then unsubscribes.
func (c *Consumer) Consume(ctx context.Context) error {
	token := c.client.Subscribe(c.topic, c.qos, func(_ mqtt.Client, msg mqtt.Message) {
		if err := c.handler(msg.Topic(), msg); err != nil {
			c.logger.Warn("message rejected", "msg_topic", msg.Topic(), "err", err)
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", c.topic, token.Error())
	}
	c.logger.Info("subscribed", "qos", c.qos)

	<-ctx.Done()

	c.client.Unsubscribe(c.topic).Wait()
	return nil
}
