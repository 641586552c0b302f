package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

var FlagConfigFile = &cli.StringFlag{
	Name:     "config",
	Usage:    "path to a yaml config file, flags and env take precedence",
	EnvVars:  []string{"DASHBOARD_CONFIG"},
	Required: false,
}

var FlagLogLevel = &cli.StringFlag{
	Name:     "log-level",
	EnvVars:  []string{"LOG_LEVEL"},
	Value:    "info",
	Required: false,
}

var FlagLogWriter = &cli.StringFlag{
	Name:     "log-writer",
	Usage:    "one of: [console, json]",
	EnvVars:  []string{"LOG_WRITER"},
	Value:    "console",
	Required: false,
}

var FlagMQTTHost = &cli.StringFlag{
	Name:    "mqtt-host",
	EnvVars: []string{"MQTT_HOST"},
	Value:   "broker.hivemq.com",
}

var FlagMQTTPort = &cli.IntFlag{
	Name:    "mqtt-port",
	EnvVars: []string{"MQTT_PORT"},
	Value:   8000,
}

var FlagMQTTTLS = &cli.BoolFlag{
	Name:    "mqtt-tls",
	Usage:   "connect with ssl:// or wss://",
	EnvVars: []string{"MQTT_TLS"},
}

var FlagMQTTWebSocketPath = &cli.StringFlag{
	Name:    "mqtt-ws-path",
	Usage:   "websocket path, empty connects over plain tcp",
	EnvVars: []string{"MQTT_WS_PATH"},
	Value:   "mqtt",
}

var FlagMQTTClientID = &cli.StringFlag{
	Name:    "mqtt-client-id",
	Usage:   "generated when empty",
	EnvVars: []string{"MQTT_CLIENT_ID"},
}

var FlagMQTTUsername = &cli.StringFlag{
	Name:    "mqtt-username",
	EnvVars: []string{"MQTT_USERNAME"},
}

var FlagMQTTPassword = &cli.StringFlag{
	Name:    "mqtt-password",
	EnvVars: []string{"MQTT_PASSWORD"},
}

var FlagMQTTQoS = &cli.IntFlag{
	Name:    "mqtt-qos",
	EnvVars: []string{"MQTT_QOS"},
	Value:   0,
}

var FlagMQTTBufferCapacity = &cli.IntFlag{
	Name:    "mqtt-buffer-capacity",
	Usage:   "messages kept while disconnected, oldest dropped first, 0 is unbounded",
	EnvVars: []string{"MQTT_BUFFER_CAPACITY"},
	Value:   DefaultBufferCapacity,
}

var FlagHeartbeatNamespace = &cli.StringFlag{
	Name:    "heartbeat-namespace",
	EnvVars: []string{"HEARTBEAT_NAMESPACE"},
	Value:   "Devices",
}

var FlagDeviceIDs = &cli.StringSliceFlag{
	Name:    "device-id",
	Usage:   "monitored device id, repeatable",
	EnvVars: []string{"DEVICE_IDS"},
}

var FlagHeartbeatTimeout = &cli.DurationFlag{
	Name:    "heartbeat-timeout",
	EnvVars: []string{"HEARTBEAT_TIMEOUT"},
	Value:   5 * time.Second,
}

var FlagProbeTopic = &cli.StringFlag{
	Name:    "probe-topic",
	EnvVars: []string{"PROBE_TOPIC"},
	Value:   "This device",
}

var FlagProbePayload = &cli.StringFlag{
	Name:    "probe-payload",
	EnvVars: []string{"PROBE_PAYLOAD"},
	Value:   "check",
}

var FlagProbeInterval = &cli.DurationFlag{
	Name:    "probe-interval",
	Usage:   "re-send the status probe periodically, 0 disables",
	EnvVars: []string{"PROBE_INTERVAL"},
}

var FlagWatchTopics = &cli.StringSliceFlag{
	Name:    "watch-topic",
	Usage:   "topic recorded in the message log, repeatable",
	EnvVars: []string{"WATCH_TOPICS"},
}

var FlagHTTPAddr = &cli.StringFlag{
	Name:    "http-addr",
	Usage:   "status server listen address, empty disables it",
	EnvVars: []string{"HTTP_ADDR"},
}

var FlagConfigStoreURL = &cli.StringFlag{
	Name:    "config-store-url",
	EnvVars: []string{"CONFIG_STORE_URL"},
	Value:   "http://raspberrypi:8080",
}

var FlagSendTimeout = &cli.DurationFlag{
	Name:  "timeout",
	Usage: "how long to wait for the broker",
	Value: 10 * time.Second,
}
