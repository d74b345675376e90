package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"

	"github.com/LeonardoBeccarini/plants/internal/clock"
	"github.com/LeonardoBeccarini/plants/internal/config"
	"github.com/LeonardoBeccarini/plants/internal/hw"
	"github.com/LeonardoBeccarini/plants/internal/hw/pumps"
	"github.com/LeonardoBeccarini/plants/internal/hw/sensors"
	"github.com/LeonardoBeccarini/plants/internal/hw/sim"
	"github.com/LeonardoBeccarini/plants/internal/services/api"
	"github.com/LeonardoBeccarini/plants/internal/services/event"
	"github.com/LeonardoBeccarini/plants/internal/services/gardener"
	"github.com/LeonardoBeccarini/plants/pkg/broker"
	"github.com/LeonardoBeccarini/plants/pkg/dedup"
)

const shutdownGrace = 5 * time.Second

func envStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// applyEnv lets the deployment override the listen address and the
// integration credentials without editing the config file.
func applyEnv(cfg *config.Config) {
	cfg.Host = envStr("PLANTS_HOST", cfg.Host)
	cfg.Port = envInt("PLANTS_PORT", cfg.Port)
	cfg.GRPCPort = envInt("PLANTS_GRPC_PORT", cfg.GRPCPort)
	cfg.LogLevel = envStr("LOG_LEVEL", cfg.LogLevel)
	if m := cfg.MQTT; m != nil {
		m.Host = envStr("MQTT_HOST", m.Host)
		m.Port = envInt("MQTT_PORT", m.Port)
		m.User = envStr("MQTT_USER", m.User)
		m.Password = envStr("MQTT_PASSWORD", m.Password)
		m.ClientID = envStr("MQTT_CLIENTID", m.ClientID)
	}
	if i := cfg.Influx; i != nil {
		i.URL = envStr("INFLUX_URL", i.URL)
		i.Token = envStr("INFLUX_TOKEN", i.Token)
		i.Org = envStr("INFLUX_ORG", i.Org)
		i.Bucket = envStr("INFLUX_BUCKET", i.Bucket)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func main() {
	confPath := pflag.StringP("conf", "c", "/usr/local/etc/plants.yaml", "configuration file")
	pflag.Parse()

	cfg, err := config.Load(*confPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "plants: %v\n", err)
		os.Exit(2)
	}
	applyEnv(cfg)
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("plants exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := hw.NewRegistry()
	pumps.Register(registry)
	sensors.Register(registry)
	sim.Register(registry, sim.NewSoil(clock.Real(), sim.DefaultGainPerMin, sim.DefaultDecayPerMin))

	// === Sinks ===
	var (
		sinks     []gardener.Sink
		conn      event.Connectivity
		client    mqtt.Client
		writer    *event.Writer
		influxCli influxdb2.Client
	)
	brokerCtx, closeBroker := context.WithCancel(context.Background())
	defer closeBroker()

	if m := cfg.MQTT; m != nil {
		var err error
		client, err = broker.Connect(brokerCtx, broker.Config{
			Host:     m.Host,
			Port:     m.Port,
			User:     m.User,
			Password: m.Password,
			ClientID: m.ClientID,
		}, logger.With("component", "mqtt"))
		if err != nil {
			return err
		}
		pub := broker.NewPublisher(client, 2*time.Second)
		conn = pub
		sinks = append(sinks, event.NewMQTTSink(pub, m.EventTopic, m.ReadingsTopic, logger))
	}

	if i := cfg.Influx; i != nil {
		opts := influxdb2.DefaultOptions().
			SetBatchSize(20).
			SetFlushInterval(1000)
		influxCli = influxdb2.NewClientWithOptions(i.URL, i.Token, opts)
		defer influxCli.Close()
		writer = event.NewWriter(influxCli.WriteAPI(i.Org, i.Bucket), logger)
		defer writer.Flush()
		sinks = append(sinks, writer)
	}

	// === Control loop ===
	g := gardener.New(cfg, registry,
		gardener.WithLogger(logger),
		gardener.WithSinks(sinks...))
	loopErr := make(chan error, 1)
	go func() { loopErr <- g.Run(ctx) }()
	if err := g.WaitReady(ctx); err != nil {
		g.Stop()
		g.Wait()
		return fmt.Errorf("setup: %w", err)
	}

	// === Remote commands ===
	if client != nil {
		seen := dedup.New(time.Minute, 1000)
		h := event.NewCommandHandler(g, seen, cfg.MQTT.CommandTopic, logger)
		consumer := broker.NewConsumer(client, cfg.MQTT.CommandTopic, 1, h.Handle, logger)
		go func() {
			if err := consumer.Consume(ctx); err != nil {
				logger.Error("command consumer stopped", "err", err)
			}
		}()
	}

	// === HTTP ===
	router := api.NewRouter(g, logger)
	router.Handle("/healthz/sinks", event.NewHealthHandler(conn, writer, 30*time.Second)).Methods(http.MethodGet)
	if influxCli != nil {
		router.Handle("/events/watering/latest", event.NewLatestHandler(influxCli, cfg.Influx.Org, cfg.Influx.Bucket)).Methods(http.MethodGet)
	}
	hs := &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           api.Handler(router, os.Stdout, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http listening", "addr", hs.Addr)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
			stop()
		}
	}()

	// === gRPC ===
	var gs *grpc.Server
	if cfg.GRPCPort > 0 {
		addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.GRPCPort))
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		gs = grpc.NewServer()
		api.RegisterGardenerServer(gs, api.NewGRPCServer(g))
		go func() {
			logger.Info("grpc listening", "addr", addr)
			if err := gs.Serve(lis); err != nil {
				logger.Error("grpc serve error", "err", err)
			}
		}()
	}

	// === Wait for signal or loop exit ===
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-loopErr:
		logger.Warn("control loop exited", "err", runErr)
	}

	shCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	_ = hs.Shutdown(shCtx)
	if gs != nil {
		gs.GracefulStop()
	}
	g.Stop()
	g.Wait()
	return runErr
}
