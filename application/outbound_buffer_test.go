package application

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(b *OutboundBuffer) []string {
	var payloads []string
	for {
		msg, ok := b.Pop()
		if !ok {
			return payloads
		}
		payloads = append(payloads, msg.Payload)
	}
}

func TestOutboundBuffer_FIFO(t *testing.T) {
	buffer := NewOutboundBuffer(0)

	for i := 0; i < 100; i++ {
		_, dropped := buffer.Push(PendingMessage{Topic: "cmd", Payload: fmt.Sprint(i)})
		require.False(t, dropped)
	}
	assert.Equal(t, 100, buffer.Len())

	payloads := drain(buffer)
	require.Len(t, payloads, 100)
	for i, payload := range payloads {
		assert.Equal(t, fmt.Sprint(i), payload)
	}
	assert.Equal(t, 0, buffer.Len())

	_, ok := buffer.Pop()
	assert.False(t, ok)
}

func TestOutboundBuffer_Bounded(t *testing.T) {
	buffer := NewOutboundBuffer(2)

	buffer.Push(PendingMessage{Topic: "cmd", Payload: "A"})
	buffer.Push(PendingMessage{Topic: "cmd", Payload: "B"})
	evicted, dropped := buffer.Push(PendingMessage{Topic: "cmd", Payload: "C"})

	assert.True(t, dropped)
	assert.Equal(t, PendingMessage{Topic: "cmd", Payload: "A"}, evicted)
	assert.Equal(t, []string{"B", "C"}, drain(buffer))
	assert.Equal(t, 2, buffer.Capacity())
}

func TestOutboundBuffer_NegativeCapacity(t *testing.T) {
	buffer := NewOutboundBuffer(-1)
	assert.Equal(t, 0, buffer.Capacity())
}

func TestOutboundBuffer_Concurrent(t *testing.T) {
	buffer := NewOutboundBuffer(0)

	wg := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				buffer.Push(PendingMessage{Topic: "cmd", Payload: "x"})
			}
		}()
	}
	wg.Wait()

	assert.Len(t, drain(buffer), 400)
}
