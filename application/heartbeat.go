package application

import (
	"fmt"
	"strings"
)

const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

var ErrMalformedHeartbeat = fmt.Errorf("malformed heartbeat payload")

type HeartbeatKind int

const (
	// HeartbeatOnline is the literal "online" token.
	HeartbeatOnline HeartbeatKind = iota
	// HeartbeatOffline is an explicit offline signal.
	HeartbeatOffline
	// HeartbeatEcho is a "<word>/<integer>" command echoed back by a device.
	HeartbeatEcho
)

func (k HeartbeatKind) String() string {
	switch k {
	case HeartbeatOnline:
		return "online"
	case HeartbeatOffline:
		return "offline"
	case HeartbeatEcho:
		return "echo"
	default:
		return "unknown"
	}
}

type Heartbeat struct {
	Kind HeartbeatKind
	Echo Command
}

// Alive reports whether the heartbeat proves the device is reachable.
func (h Heartbeat) Alive() bool {
	return h.Kind != HeartbeatOffline
}

func ParseHeartbeat(payload string) (Heartbeat, error) {
	switch p := strings.TrimSpace(payload); p {
	case PayloadOnline:
		return Heartbeat{Kind: HeartbeatOnline}, nil
	case PayloadOffline:
		return Heartbeat{Kind: HeartbeatOffline}, nil
	default:
		cmd, err := ParseCommand(p)
		if err != nil {
			return Heartbeat{}, fmt.Errorf("%w: %q", ErrMalformedHeartbeat, payload)
		}
		return Heartbeat{Kind: HeartbeatEcho, Echo: cmd}, nil
	}
}

// HeartbeatTopic returns "<namespace>/<id>".
func HeartbeatTopic(namespace, id string) string {
	return namespace + "/" + id
}

// DeviceIDFromTopic extracts the id from a "<namespace>/<id>" topic.
func DeviceIDFromTopic(namespace, topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, namespace+"/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
