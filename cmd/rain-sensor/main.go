package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/rain-sensor/internal/api"
	"github.com/thatsimonsguy/rain-sensor/internal/bridge"
	"github.com/thatsimonsguy/rain-sensor/internal/config"
	"github.com/thatsimonsguy/rain-sensor/internal/hap"
	"github.com/thatsimonsguy/rain-sensor/internal/logging"
	"github.com/thatsimonsguy/rain-sensor/internal/metrics"
	"github.com/thatsimonsguy/rain-sensor/internal/netatmo"
	"github.com/thatsimonsguy/rain-sensor/internal/notifications"
	"github.com/thatsimonsguy/rain-sensor/internal/rain"
	"github.com/thatsimonsguy/rain-sensor/system/shutdown"
	"github.com/thatsimonsguy/rain-sensor/system/startup"
)

func main() {
	cfg := config.Load()
	logCloser := logging.Init(cfg.LogLevel, cfg.LogFile)

	if cfg.InstallService {
		binary, err := os.Executable()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to resolve executable path")
		}
		if err := startup.InstallService(startup.DefaultUnitPath, binary, cfg.ConfigFile); err != nil {
			log.Fatal().Err(err).Msg("Failed to install systemd unit")
		}
		log.Info().Str("unit", startup.DefaultUnitPath).Msg("Installed systemd unit")
		return
	}

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Str("name", cfg.Name).
		Str("device_type", cfg.DeviceType).
		Msg("Starting rain sensor")

	shutdown.Register("log file", func(context.Context) error { return logCloser.Close() })

	var recorders metrics.Multi
	var prom *metrics.Prometheus
	if cfg.Datadog.Enabled {
		dd, err := metrics.NewDatadog(cfg.Datadog.AgentAddr, cfg.Datadog.Namespace, cfg.Datadog.Tags)
		if err != nil {
			log.Warn().Err(err).Msg("Datadog metrics disabled")
		} else {
			recorders = append(recorders, dd)
		}
	}
	if cfg.Prometheus.Enabled {
		prom = metrics.NewPrometheus("rain_sensor")
		recorders = append(recorders, prom)
	}

	netatmoOpts := []netatmo.Option{}
	if cfg.Netatmo.BaseURL != "" {
		netatmoOpts = append(netatmoOpts, netatmo.WithBaseURL(cfg.Netatmo.BaseURL))
	}
	if cfg.Netatmo.TimeoutSeconds > 0 {
		netatmoOpts = append(netatmoOpts, netatmo.WithTimeout(time.Duration(cfg.Netatmo.TimeoutSeconds)*time.Second))
	}

	registry := hap.NewRegistry()
	deps := rain.Deps{
		Host:    registry,
		Auth:    netatmo.NewClient(netatmoOpts...),
		Metrics: recorders,
	}
	if n := notifications.New(notifications.DefaultBaseURL, cfg.NtfyTopic); n != nil {
		deps.Notifier = n
	}

	accessory := rain.New(cfg.Accessory(), deps)
	for _, svc := range accessory.Services() {
		registry.AddService(svc)
	}

	ctx, cancel := context.WithCancel(context.Background())
	accessory.Start(ctx)
	shutdown.Register("accessory", func(context.Context) error {
		cancel()
		accessory.Stop()
		return nil
	})

	if cfg.MQTT.Broker != "" {
		transport, err := bridge.NewPahoTransport(bridge.PahoConfig{
			Broker:    cfg.MQTT.Broker,
			ClientID:  cfg.MQTT.ClientID,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
			WillTopic: bridge.StatusTopic(cfg.MQTT.TopicPrefix, cfg.Name),
		})
		if err != nil {
			log.Error().Err(err).Str("broker", cfg.MQTT.Broker).Msg("MQTT bridge disabled")
		} else {
			b := bridge.New(transport, registry, cfg.MQTT.TopicPrefix, cfg.Name)
			if err := b.Start(); err != nil {
				log.Error().Err(err).Msg("Failed to start MQTT bridge")
			}
			shutdown.Register("mqtt", func(context.Context) error { return b.Stop() })
		}
	}

	if port := cfg.Port(); port > 0 {
		server := api.NewServer(registry, accessory, prom.Gatherer())
		go func() {
			if err := server.Start(port); err != nil {
				shutdown.ShutdownWithError(err, "REST API server failed")
			}
		}()
		shutdown.Register("http", server.Shutdown)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	log.Info().Str("signal", sig.String()).Msg("Shutting down")
	shutdown.Shutdown()
}
