package application

import "sync"

type PendingMessage struct {
	Topic   string
	Payload string
}

// OutboundBuffer holds messages that could not be sent while disconnected,
// oldest first. A capacity of zero means unbounded; with a positive capacity
// the oldest message is discarded to make room for a new one.
type OutboundBuffer struct {
	capacity int

	mu       sync.Mutex
	messages []PendingMessage
}

func NewOutboundBuffer(capacity int) *OutboundBuffer {
	if capacity < 0 {
		capacity = 0
	}
	return &OutboundBuffer{capacity: capacity}
}

// Push appends msg. When the buffer is full, the oldest message is removed and
// returned with dropped set to true.
func (b *OutboundBuffer) Push(msg PendingMessage) (evicted PendingMessage, dropped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.capacity > 0 && len(b.messages) >= b.capacity {
		evicted, dropped = b.messages[0], true
		b.messages = b.messages[1:]
	}
	b.messages = append(b.messages, msg)
	return evicted, dropped
}

// Pop removes and returns the oldest pending message.
func (b *OutboundBuffer) Pop() (PendingMessage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.messages) == 0 {
		return PendingMessage{}, false
	}
	msg := b.messages[0]
	b.messages[0] = PendingMessage{}
	b.messages = b.messages[1:]
	return msg, true
}

func (b *OutboundBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

func (b *OutboundBuffer) Capacity() int {
	return b.capacity
}
