package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"iot-dashboard/application"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusClient struct {
	application.MQTTClient

	acked atomic.Uint64
}

func (c *statusClient) Status() application.MQTTStatus {
	n := c.acked.Load()
	pending := 0
	if n == 0 {
		pending = 1
	}
	return application.MQTTStatus{MessageCount: n, Pending: pending}
}

func TestWaitDelivered(t *testing.T) {
	client := &statusClient{}
	go func() {
		time.Sleep(2 * sendPollInterval)
		client.acked.Store(1)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NoError(t, waitDelivered(ctx, client, 1))
}

func TestWaitDelivered_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*sendPollInterval)
	defer cancel()

	err := waitDelivered(ctx, &statusClient{}, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseLightArg(t *testing.T) {
	on, err := parseLightArg("on")
	require.NoError(t, err)
	assert.True(t, on)

	on, err = parseLightArg("OFF")
	require.NoError(t, err)
	assert.False(t, on)

	_, err = parseLightArg("dim")
	assert.Error(t, err)
}

func TestParseConfigRecords(t *testing.T) {
	records, err := parseConfigRecords([]byte(`{"Topic":"LightsHome","Message":"On","Time":"07:30"}`))
	require.NoError(t, err)
	assert.Equal(t, []application.ConfigRecord{{Topic: "LightsHome", Message: "On", Time: "07:30"}}, records)

	records, err = parseConfigRecords([]byte(`
[
  {"ID":"1","Topic":"color","Message":"#ff0000"},
  {"Topic":"Led","Message":"2"}
]`))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "1", records[0].ID)
	assert.Equal(t, "Led", records[1].Topic)
}

func TestParseConfigRecords_Invalid(t *testing.T) {
	for name, input := range map[string]string{
		"Empty":   "  ",
		"NotJSON": "{Topic:",
		"NoTopic": `[{"Message":"On"}]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parseConfigRecords([]byte(input))
			assert.Error(t, err)
		})
	}
}
