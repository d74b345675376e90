// Package broker wraps the MQTT client used for watering events and
// remote commands.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectRetries = 5
	disconnectWait = 250 // ms
)

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	ClientID string
}

func (c Config) URL() string { return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port) }

// Options builds the client options for c. Reconnection after the
// first successful connect is left to paho.
func (c Config) Options() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.URL())
	opts.SetUsername(c.User)
	opts.SetPassword(c.Password)
	opts.SetClientID(c.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	return opts
}

// Connect dials the broker with exponential backoff and disconnects
// the client once ctx is done.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (mqtt.Client, error) {
	return connect(ctx, cfg, mqtt.NewClient, logger)
}

func connect(ctx context.Context, cfg Config, newClient func(*mqtt.ClientOptions) mqtt.Client, logger *slog.Logger) (mqtt.Client, error) {
	opts := cfg.Options()

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = newClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			logger.Warn("mqtt connect failed", "broker", cfg.URL(), "err", token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, connectRetries-1), ctx))
	if err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.URL(), err)
	}
	logger.Info("mqtt connected", "broker", cfg.URL(), "client_id", cfg.ClientID)

	go func() {
		<-ctx.Done()
		Close(client, logger)
	}()
	return client, nil
}

func Close(client mqtt.Client, logger *slog.Logger) {
	if client.IsConnected() {
		client.Disconnect(disconnectWait)
		logger.Info("mqtt disconnected")
	}
}
