package application

import "time"

type ConnectionState uint32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// MessageHandler receives messages delivered on a registered topic.
type MessageHandler func(topic string, payload string)

type MQTTStatus struct {
	MessageCount      uint64
	LastTimePublished time.Time
	Connected         bool
	State             ConnectionState
	Pending           int
	Topics            int
}

// MQTTClient is the process-wide messaging client. None of its methods block
// on the broker: outcomes surface later through registered handlers.
type MQTTClient interface {
	Connect()
	Disconnect()

	Publish(topic string, payload string)
	Subscribe(topic string)
	AddTopic(topic string, handler MessageHandler)

	State() ConnectionState
	IsConnected() bool
	Status() MQTTStatus
}
