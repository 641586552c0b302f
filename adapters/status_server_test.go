package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"iot-dashboard/application"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusServerFixture struct {
	paho       *MockMQTTClient
	mqttClient *MQTTClient
	watchdog   *application.LivenessWatchdog
	messageLog *application.MessageLog
	server     *StatusServer
}

func newStatusServerFixture(t *testing.T) *statusServerFixture {
	f := &statusServerFixture{paho: &MockMQTTClient{}}
	f.mqttClient = newTestMQTTClient(t, f.paho)

	var err error
	f.watchdog, err = application.NewLivenessWatchdog(application.LivenessWatchdogParams{
		Client:   f.mqttClient,
		Notifier: NewLogNotifier(zerolog.Nop()),
		Log:      zerolog.Nop(),
	})
	require.NoError(t, err)
	f.watchdog.Start()
	t.Cleanup(f.watchdog.Close)

	f.messageLog, err = application.NewMessageLog(application.MessageLogParams{
		Client: f.mqttClient,
		Topics: []string{"my/test/topic1"},
	})
	require.NoError(t, err)
	f.messageLog.Start()

	control, err := application.NewControlService(f.mqttClient)
	require.NoError(t, err)

	f.server, err = NewStatusServer(StatusServerParams{
		Addr:       "127.0.0.1:0",
		MQTTClient: f.mqttClient,
		Watchdog:   f.watchdog,
		MessageLog: f.messageLog,
		Control:    control,
		Log:        zerolog.Nop(),
	})
	require.NoError(t, err)
	return f
}

func (f *statusServerFixture) do(method, path, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	f.server.Handler().ServeHTTP(rr, req)
	return rr
}

func TestNewStatusServer_InvalidParams(t *testing.T) {
	_, err := NewStatusServer(StatusServerParams{})
	assert.Error(t, err)
}

func TestStatusServer_Health(t *testing.T) {
	f := newStatusServerFixture(t)

	rr := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK\n", rr.Body.String())
}

func TestStatusServer_Devices(t *testing.T) {
	f := newStatusServerFixture(t)

	f.mqttClient.OnMessage(f.paho, testMessage{topic: "Devices/2", payload: []byte("online")})

	rr := f.do(http.MethodGet, "/devices", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var devices []struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &devices))
	require.Len(t, devices, 4)
	assert.Equal(t, "0", devices[0].ID)
	assert.Equal(t, "offline", devices[0].State)
	assert.Equal(t, "Device 3", devices[2].Name)
	assert.Equal(t, "online", devices[2].State)
}

func TestStatusServer_CheckAndCommands(t *testing.T) {
	f := newStatusServerFixture(t)

	assert.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/devices/check", "").Code)
	assert.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/commands/light", `{"on":true}`).Code)
	assert.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/commands/led", `{"id":3}`).Code)
	assert.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/commands/color", `{"color":"#00ff00"}`).Code)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/commands/led", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/commands/color", `{"color":"green"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/commands/light", `not json`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(http.MethodGet, "/commands/light", "").Code)

	// client is disconnected, so everything waits in the outbound buffer
	rr := f.do(http.MethodGet, "/mqtt", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var status mqttStatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, "disconnected", status.State)
	assert.Equal(t, 4, status.Pending)
	assert.Equal(t, 5, status.Topics)
}

func TestStatusServer_Logs(t *testing.T) {
	f := newStatusServerFixture(t)

	f.mqttClient.OnMessage(f.paho, testMessage{topic: "my/test/topic1", payload: []byte("hello")})

	rr := f.do(http.MethodGet, "/logs", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var entries []application.LogEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "my/test/topic1", entries[0].Topic)
	assert.Equal(t, "hello", entries[0].Payload)
}

func TestStatusServer_Run(t *testing.T) {
	f := newStatusServerFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.server.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("status server did not stop")
	}
}
