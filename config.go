package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"iot-dashboard/adapters"
	"iot-dashboard/application"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

const DefaultBufferCapacity = 1000

type Config struct {
	Log         LogConfig         `yaml:"log"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Heartbeat   HeartbeatConfig   `yaml:"heartbeat"`
	HTTP        HTTPConfig        `yaml:"http"`
	ConfigStore ConfigStoreConfig `yaml:"config_store"`

	// WatchTopics are recorded in the message log.
	WatchTopics []string `yaml:"watch_topics"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Writer string `yaml:"writer"`
}

type MQTTConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	TLS            bool          `yaml:"tls"`
	WebSocketPath  string        `yaml:"websocket_path"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	QoS            int           `yaml:"qos"`
	BufferCapacity int           `yaml:"buffer_capacity"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type HeartbeatConfig struct {
	Namespace     string        `yaml:"namespace"`
	DeviceIDs     []string      `yaml:"device_ids"`
	Timeout       time.Duration `yaml:"timeout"`
	ProbeTopic    string        `yaml:"probe_topic"`
	ProbePayload  string        `yaml:"probe_payload"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

type HTTPConfig struct {
	// Addr enables the status server when set.
	Addr string `yaml:"addr"`
}

type ConfigStoreConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Writer: "console",
		},
		MQTT: MQTTConfig{
			Host:           "broker.hivemq.com",
			Port:           8000,
			WebSocketPath:  "mqtt",
			BufferCapacity: DefaultBufferCapacity,
			ConnectTimeout: adapters.MQTTDefaultConnectTimeout,
		},
		Heartbeat: HeartbeatConfig{
			Namespace:    application.DefaultHeartbeatNamespace,
			DeviceIDs:    append([]string(nil), application.DefaultDeviceIDs...),
			Timeout:      application.DefaultHeartbeatTimeout,
			ProbeTopic:   application.DefaultProbeTopic,
			ProbePayload: application.DefaultProbePayload,
		},
		ConfigStore: ConfigStoreConfig{
			URL:     "http://raspberrypi:8080",
			Timeout: adapters.ConfigStoreDefaultTimeout,
		},
		WatchTopics: []string{application.TopicLight, application.TopicLED, application.TopicColor},
	}
}

// LoadConfig reads a YAML file over the defaults. An empty path returns the
// defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// ApplyFlags overrides the config with every flag set on the command line or
// through its environment variable.
func (c *Config) ApplyFlags(ctx *cli.Context) {
	if ctx.IsSet(FlagLogLevel.Name) {
		c.Log.Level = ctx.String(FlagLogLevel.Name)
	}
	if ctx.IsSet(FlagLogWriter.Name) {
		c.Log.Writer = ctx.String(FlagLogWriter.Name)
	}

	if ctx.IsSet(FlagMQTTHost.Name) {
		c.MQTT.Host = ctx.String(FlagMQTTHost.Name)
	}
	if ctx.IsSet(FlagMQTTPort.Name) {
		c.MQTT.Port = ctx.Int(FlagMQTTPort.Name)
	}
	if ctx.IsSet(FlagMQTTTLS.Name) {
		c.MQTT.TLS = ctx.Bool(FlagMQTTTLS.Name)
	}
	if ctx.IsSet(FlagMQTTWebSocketPath.Name) {
		c.MQTT.WebSocketPath = ctx.String(FlagMQTTWebSocketPath.Name)
	}
	if ctx.IsSet(FlagMQTTClientID.Name) {
		c.MQTT.ClientID = ctx.String(FlagMQTTClientID.Name)
	}
	if ctx.IsSet(FlagMQTTUsername.Name) {
		c.MQTT.Username = ctx.String(FlagMQTTUsername.Name)
	}
	if ctx.IsSet(FlagMQTTPassword.Name) {
		c.MQTT.Password = ctx.String(FlagMQTTPassword.Name)
	}
	if ctx.IsSet(FlagMQTTQoS.Name) {
		c.MQTT.QoS = ctx.Int(FlagMQTTQoS.Name)
	}
	if ctx.IsSet(FlagMQTTBufferCapacity.Name) {
		c.MQTT.BufferCapacity = ctx.Int(FlagMQTTBufferCapacity.Name)
	}

	if ctx.IsSet(FlagHeartbeatNamespace.Name) {
		c.Heartbeat.Namespace = ctx.String(FlagHeartbeatNamespace.Name)
	}
	if ctx.IsSet(FlagDeviceIDs.Name) {
		c.Heartbeat.DeviceIDs = ctx.StringSlice(FlagDeviceIDs.Name)
	}
	if ctx.IsSet(FlagHeartbeatTimeout.Name) {
		c.Heartbeat.Timeout = ctx.Duration(FlagHeartbeatTimeout.Name)
	}
	if ctx.IsSet(FlagProbeTopic.Name) {
		c.Heartbeat.ProbeTopic = ctx.String(FlagProbeTopic.Name)
	}
	if ctx.IsSet(FlagProbePayload.Name) {
		c.Heartbeat.ProbePayload = ctx.String(FlagProbePayload.Name)
	}
	if ctx.IsSet(FlagProbeInterval.Name) {
		c.Heartbeat.ProbeInterval = ctx.Duration(FlagProbeInterval.Name)
	}

	if ctx.IsSet(FlagWatchTopics.Name) {
		c.WatchTopics = ctx.StringSlice(FlagWatchTopics.Name)
	}
	if ctx.IsSet(FlagHTTPAddr.Name) {
		c.HTTP.Addr = ctx.String(FlagHTTPAddr.Name)
	}
	if ctx.IsSet(FlagConfigStoreURL.Name) {
		c.ConfigStore.URL = ctx.String(FlagConfigStoreURL.Name)
	}
}

func (c *Config) Validate() error {
	var errs []string

	switch c.Log.Writer {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.writer must be console or json, got %q", c.Log.Writer))
	}

	if c.MQTT.Host == "" {
		errs = append(errs, "mqtt.host is required")
	}
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		errs = append(errs, fmt.Sprintf("mqtt.port must be between 1 and 65535, got %d", c.MQTT.Port))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Sprintf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}
	if c.MQTT.BufferCapacity < 0 {
		errs = append(errs, "mqtt.buffer_capacity cannot be negative")
	}

	if len(c.Heartbeat.DeviceIDs) == 0 {
		errs = append(errs, "heartbeat.device_ids cannot be empty")
	}
	if c.Heartbeat.Timeout <= 0 {
		errs = append(errs, "heartbeat.timeout must be positive")
	}
	if c.Heartbeat.ProbeInterval < 0 {
		errs = append(errs, "heartbeat.probe_interval cannot be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) MQTTClientParams() adapters.MQTTClientParams {
	return adapters.MQTTClientParams{
		BrokerHost:     c.MQTT.Host,
		BrokerPort:     c.MQTT.Port,
		UseTLS:         c.MQTT.TLS,
		WebSocketPath:  c.MQTT.WebSocketPath,
		ClientID:       c.MQTT.ClientID,
		Username:       c.MQTT.Username,
		Password:       c.MQTT.Password,
		QoS:            byte(c.MQTT.QoS),
		BufferCapacity: c.MQTT.BufferCapacity,
		ConnectTimeout: c.MQTT.ConnectTimeout,
	}
}
