package application

import (
	"fmt"
	"sync"
	"time"
)

const DefaultMessageLogSize = 200

type LogEntry struct {
	Topic      string    `json:"topic"`
	Payload    string    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}

type MessageLogParams struct {
	Client MQTTClient
	Topics []string
	Size   int

	Now func() time.Time
}

// MessageLog keeps the most recent messages received on a set of topics.
type MessageLog struct {
	params MessageLogParams

	mu      sync.Mutex
	entries []LogEntry
}

func NewMessageLog(params MessageLogParams) (*MessageLog, error) {
	if params.Client == nil {
		return nil, fmt.Errorf("MQTTClient is nil")
	}
	if params.Size <= 0 {
		params.Size = DefaultMessageLogSize
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &MessageLog{params: params}, nil
}

func (l *MessageLog) Start() {
	for _, topic := range l.params.Topics {
		l.params.Client.AddTopic(topic, l.Record)
	}
}

func (l *MessageLog) Record(topic string, payload string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) >= l.params.Size {
		l.entries = l.entries[1:]
	}
	l.entries = append(l.entries, LogEntry{Topic: topic, Payload: payload, ReceivedAt: l.params.Now()})
}

// Entries returns the logged messages, oldest first.
func (l *MessageLog) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]LogEntry, len(l.entries))
	copy(entries, l.entries)
	return entries
}
