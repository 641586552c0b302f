package adapters

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"iot-dashboard/application"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogNotifier_Notify(t *testing.T) {
	var buf bytes.Buffer
	notifier := NewLogNotifier(zerolog.New(&buf))

	notifier.Notify(application.Notification{
		DeviceID: "1",
		Title:    "Device Offline",
		Message:  "Device 2 is offline due to timeout.",
		At:       time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "1", line["device"])
	assert.Equal(t, "Device Offline", line["title"])
	assert.Equal(t, "Device 2 is offline due to timeout.", line["message"])
}
