package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"iot-dashboard/adapters"
	"iot-dashboard/application"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var Flags = []cli.Flag{
	FlagConfigFile,
	FlagLogLevel,
	FlagLogWriter,
	FlagMQTTHost,
	FlagMQTTPort,
	FlagMQTTTLS,
	FlagMQTTWebSocketPath,
	FlagMQTTClientID,
	FlagMQTTUsername,
	FlagMQTTPassword,
	FlagMQTTQoS,
	FlagMQTTBufferCapacity,
	FlagHeartbeatNamespace,
	FlagDeviceIDs,
	FlagHeartbeatTimeout,
	FlagProbeTopic,
	FlagProbePayload,
	FlagProbeInterval,
	FlagWatchTopics,
	FlagHTTPAddr,
	FlagConfigStoreURL,
}

var (
	logger zerolog.Logger
	config *Config
)

func main() {
	logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	app := cli.App{
		Name:    "iot-dashboard",
		Usage:   "monitor device heartbeats and control devices over mqtt",
		Version: "v0.1.0",
		Flags:   Flags,
		Before: func(ctx *cli.Context) error {
			cfg, err := LoadConfig(ctx.String(FlagConfigFile.Name))
			if err != nil {
				return err
			}
			cfg.ApplyFlags(ctx)
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err = newLogger(cfg.Log)
			if err != nil {
				return err
			}

			config = cfg
			return nil
		},
		Action: runDashboard,
		Commands: []*cli.Command{
			sendCommand,
			configCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Err(err).Msg("service terminated")
		os.Exit(1)
	}
}

func newLogger(cfg LogConfig) (zerolog.Logger, error) {
	var logWriter io.Writer
	if cfg.Writer == "console" {
		logWriter = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		}
	} else if cfg.Writer == "json" {
		logWriter = os.Stderr
	} else {
		return zerolog.Logger{}, fmt.Errorf("invalid log writer: %s", cfg.Writer)
	}

	l := zerolog.New(logWriter).With().Timestamp().
		Str("service", "iot-dashboard").
		Str("module", "main").
		Logger()

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Logger{}, err
	}

	zerolog.SetGlobalLevel(level)

	return l, nil
}

// newAppContext returns a context cancelled on the first interrupt signal.
func newAppContext() (context.Context, context.CancelFunc) {
	appCtx, cancel := context.WithCancel(logger.WithContext(context.Background()))
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(c)

		select {
		case <-c:
			logger.Warn().Msg("interrupt signal received")
			cancel()
		case <-appCtx.Done():
		}
	}()
	return appCtx, cancel
}

func moduleLogger(name string) zerolog.Logger {
	return logger.With().Str("module", name).Logger()
}

func newMQTTClient() (*adapters.MQTTClient, error) {
	params := config.MQTTClientParams()
	params.Log = moduleLogger("mqtt-client")
	return adapters.NewMQTTClient(params)
}

func runDashboard(ctx *cli.Context) error {
	logger.Info().Msg("service starting...")

	appCtx, cancel := newAppContext()
	defer cancel()

	mqttClient, err := newMQTTClient()
	if err != nil {
		return err
	}

	watchdog, err := application.NewLivenessWatchdog(application.LivenessWatchdogParams{
		Client:       mqttClient,
		Notifier:     adapters.NewLogNotifier(moduleLogger("notifier")),
		DeviceIDs:    config.Heartbeat.DeviceIDs,
		Namespace:    config.Heartbeat.Namespace,
		ProbeTopic:   config.Heartbeat.ProbeTopic,
		ProbePayload: config.Heartbeat.ProbePayload,
		Timeout:      config.Heartbeat.Timeout,
		Log:          moduleLogger("watchdog"),
	})
	if err != nil {
		return err
	}

	var messageLog *application.MessageLog
	if len(config.WatchTopics) > 0 {
		messageLog, err = application.NewMessageLog(application.MessageLogParams{
			Client: mqttClient,
			Topics: config.WatchTopics,
		})
		if err != nil {
			return err
		}
	}

	dashboardService, err := application.NewDashboardService(application.DashboardServiceParams{
		MQTTClient:    mqttClient,
		Watchdog:      watchdog,
		MessageLog:    messageLog,
		ProbeInterval: config.Heartbeat.ProbeInterval,
		Log:           moduleLogger("dashboard"),
	})
	if err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(appCtx)

	if config.HTTP.Addr != "" {
		control, err := application.NewControlService(mqttClient)
		if err != nil {
			return err
		}

		statusServer, err := adapters.NewStatusServer(adapters.StatusServerParams{
			Addr:       config.HTTP.Addr,
			MQTTClient: mqttClient,
			Watchdog:   watchdog,
			MessageLog: messageLog,
			Control:    control,
			Log:        moduleLogger("status-server"),
		})
		if err != nil {
			return err
		}

		g.Go(func() error {
			return statusServer.Run(gCtx)
		})
	}

	g.Go(func() error {
		return dashboardService.Run(gCtx)
	})

	brokerParams := config.MQTTClientParams()
	logger.Info().
		Str("broker", brokerParams.BrokerURL()).
		Strs("devices", config.Heartbeat.DeviceIDs).
		Msg("service started")

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info().Msg("service terminating...")
	return nil
}
