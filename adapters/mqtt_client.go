package adapters

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"iot-dashboard/application"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
)

const (
	MQTTDefaultBrokerPort           = 1883
	MQTTDefaultConnectTimeout       = 30 * time.Second
	MQTTDefaultPublishTimeout       = 5 * time.Second
	MQTTDefaultKeepAlive            = 60 * time.Second
	MQTTDefaultConnectRetryInterval = 5 * time.Second
	MQTTDefaultMaxReconnectInterval = 2 * time.Minute
	MQTTDefaultDisconnectQuiesce    = 250 * time.Millisecond
	MQTTDefaultClientIDPrefix       = "iot-dashboard-"

	mqttMaxQoS = 2
)

var (
	ErrMQTTInvalidQoS    = fmt.Errorf("invalid qos, must be 0, 1 or 2")
	ErrMQTTMissingBroker = fmt.Errorf("broker host is required")
)

type MQTTClientParams struct {
	BrokerHost    string
	BrokerPort    int
	UseTLS        bool
	WebSocketPath string
	TLSConfig     *tls.Config

	ClientID string
	Username string
	Password string

	QoS      byte
	Retained bool

	DisableAutoReconnect bool
	ConnectRetryInterval time.Duration
	MaxReconnectInterval time.Duration
	KeepAlive            time.Duration
	ConnectTimeout       time.Duration
	PublishTimeout       time.Duration
	DisconnectQuiesce    time.Duration

	// BufferCapacity bounds the outbound buffer; zero keeps it unbounded.
	BufferCapacity int

	NewClientFunc func(options *mqtt.ClientOptions) mqtt.Client

	Log zerolog.Logger
}

func (m *MQTTClientParams) EnsureDefaults() {
	if m.BrokerPort == 0 {
		m.BrokerPort = MQTTDefaultBrokerPort
	}

	if m.ClientID == "" {
		m.ClientID = MQTTDefaultClientIDPrefix + uuid.NewString()
	}

	if m.ConnectTimeout == 0 {
		m.ConnectTimeout = MQTTDefaultConnectTimeout
	}

	if m.PublishTimeout == 0 {
		m.PublishTimeout = MQTTDefaultPublishTimeout
	}

	if m.KeepAlive == 0 {
		m.KeepAlive = MQTTDefaultKeepAlive
	}

	if m.ConnectRetryInterval == 0 {
		m.ConnectRetryInterval = MQTTDefaultConnectRetryInterval
	}

	if m.MaxReconnectInterval == 0 {
		m.MaxReconnectInterval = MQTTDefaultMaxReconnectInterval
	}

	if m.DisconnectQuiesce == 0 {
		m.DisconnectQuiesce = MQTTDefaultDisconnectQuiesce
	}

	if m.NewClientFunc == nil {
		m.NewClientFunc = mqtt.NewClient
	}
}

// BrokerURL builds tcp://, ssl://, ws:// or wss:// from the broker settings.
func (m *MQTTClientParams) BrokerURL() string {
	hostPort := net.JoinHostPort(m.BrokerHost, strconv.Itoa(m.BrokerPort))

	if m.WebSocketPath != "" {
		scheme := "ws"
		if m.UseTLS {
			scheme = "wss"
		}
		return fmt.Sprintf("%s://%s/%s", scheme, hostPort, strings.TrimPrefix(m.WebSocketPath, "/"))
	}

	scheme := "tcp"
	if m.UseTLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s", scheme, hostPort)
}

// MQTTClient is a paho backed application.MQTTClient. Messages published while
// not connected are buffered and flushed, in order, on the next connect.
type MQTTClient struct {
	params MQTTClientParams

	client   mqtt.Client
	registry *application.TopicRegistry
	buffer   *application.OutboundBuffer

	// mu serializes state transitions, the reconnect flush and every send, so
	// nothing published after a flush starts can overtake a flushed message.
	mu    sync.Mutex
	state uint32

	msgCount           uint64
	msgCountUpdateTime atomic.Pointer[time.Time]

	log zerolog.Logger
}

func NewMQTTClient(params MQTTClientParams) (*MQTTClient, error) {
	params.EnsureDefaults()

	if params.BrokerHost == "" {
		return nil, ErrMQTTMissingBroker
	}
	if params.QoS > mqttMaxQoS {
		return nil, ErrMQTTInvalidQoS
	}

	m := &MQTTClient{
		params:   params,
		registry: application.NewTopicRegistry(),
		buffer:   application.NewOutboundBuffer(params.BufferCapacity),
		log:      params.Log,
	}
	m.client = m.newMqttClient()

	t := time.Unix(0, 0)
	m.msgCountUpdateTime.Store(&t)

	return m, nil
}

func (m *MQTTClient) Connect() {
	m.mu.Lock()
	if m.State() != application.StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.setState(application.StateConnecting)
	m.mu.Unlock()

	m.log.Info().Str("broker", m.params.BrokerURL()).Str("client_id", m.params.ClientID).Msg("connecting")

	token := m.client.Connect()
	go m.awaitConnect(token)
}

func (m *MQTTClient) awaitConnect(token mqtt.Token) {
	<-token.Done()

	err := token.Error()
	if err == nil {
		return
	}

	m.log.Error().Err(err).Msg("connect failed")

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.State() == application.StateConnecting {
		m.setState(application.StateDisconnected)
	}
}

// Disconnect closes the connection. Buffered messages are kept for the next
// Connect.
func (m *MQTTClient) Disconnect() {
	m.mu.Lock()
	if m.State() == application.StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.setState(application.StateDisconnected)
	m.mu.Unlock()

	m.client.Disconnect(uint(m.params.DisconnectQuiesce.Milliseconds()))
	m.log.Info().Int("pending", m.buffer.Len()).Msg("disconnected")
}

func (m *MQTTClient) State() application.ConnectionState {
	return application.ConnectionState(atomic.LoadUint32(&m.state))
}

func (m *MQTTClient) setState(s application.ConnectionState) {
	atomic.StoreUint32(&m.state, uint32(s))
}

func (m *MQTTClient) IsConnected() bool {
	return m.State() == application.StateConnected
}

func (m *MQTTClient) Status() application.MQTTStatus {
	state := m.State()
	return application.MQTTStatus{
		MessageCount:      atomic.LoadUint64(&m.msgCount),
		LastTimePublished: *m.msgCountUpdateTime.Load(),
		Connected:         state == application.StateConnected,
		State:             state,
		Pending:           m.buffer.Len(),
		Topics:            m.registry.Len(),
	}
}

func (m *MQTTClient) Publish(topic string, payload string) {
	if topic == "" {
		m.log.Warn().Str("payload", payload).Msg("publish without topic dropped")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// paho may already be reconnecting before OnConnectionLost lands, and
	// drops qos 0 publishes while it does
	if m.State() != application.StateConnected || !m.client.IsConnectionOpen() {
		evicted, dropped := m.buffer.Push(application.PendingMessage{Topic: topic, Payload: payload})
		if dropped {
			m.log.Warn().
				Str("topic", evicted.Topic).
				Int("capacity", m.buffer.Capacity()).
				Msg("outbound buffer full, oldest message dropped")
		}
		m.log.Debug().Str("topic", topic).Int("pending", m.buffer.Len()).Msg("not connected, message buffered")
		return
	}

	m.send(topic, payload)
}

// send must be called with mu held.
func (m *MQTTClient) send(topic string, payload string) {
	token := m.client.Publish(topic, m.params.QoS, m.params.Retained, payload)
	go m.awaitToken("publish", topic, token)
}

func (m *MQTTClient) Subscribe(topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() != application.StateConnected {
		m.log.Debug().Str("topic", topic).Msg("not connected, subscribe deferred to next connect")
		return
	}

	m.subscribe(topic)
}

// subscribe must be called with mu held.
func (m *MQTTClient) subscribe(topic string) {
	token := m.client.Subscribe(topic, m.params.QoS, m.OnMessage)
	go m.awaitToken("subscribe", topic, token)
}

func (m *MQTTClient) AddTopic(topic string, handler application.MessageHandler) {
	if err := m.registry.Register(topic, handler); err != nil {
		m.log.Warn().Err(err).Str("topic", topic).Msg("topic not registered")
		return
	}
	m.Subscribe(topic)
}

func (m *MQTTClient) awaitToken(op string, topic string, token mqtt.Token) {
	tc := time.NewTimer(m.params.PublishTimeout)
	defer tc.Stop()

	select {
	case <-tc.C:
		m.log.Warn().Str("op", op).Str("topic", topic).Dur("timeout", m.params.PublishTimeout).Msg("no acknowledgement")
		return
	case <-token.Done():
	}

	if err := token.Error(); err != nil {
		m.log.Error().Err(err).Str("op", op).Str("topic", topic).Msgf("%s failed", op)
		return
	}

	if op == "publish" {
		t := time.Now()
		m.msgCountUpdateTime.Store(&t)
		atomic.AddUint64(&m.msgCount, 1)
	}
}

// OnMessage routes an incoming message to the handler registered for its
// topic. Messages on unknown topics are dropped.
func (m *MQTTClient) OnMessage(client mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()

	handler, ok := m.registry.Resolve(topic)
	if !ok {
		m.log.Debug().Str("topic", topic).Msg("no handler for topic, message dropped")
		return
	}

	var catcher panics.Catcher
	catcher.Try(func() {
		handler(topic, string(msg.Payload()))
	})
	if r := catcher.Recovered(); r != nil {
		m.log.Error().Str("topic", topic).Interface("panic", r.Value).Msg("handler panic recovered")
	}
}

func (m *MQTTClient) OnConnect(client mqtt.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// late callback for a connection already closed by Disconnect
	if m.State() == application.StateDisconnected {
		m.log.Debug().Int("pending", m.buffer.Len()).Msg("connect after disconnect ignored")
		return
	}

	m.setState(application.StateConnected)

	topics := m.registry.Topics()
	for _, topic := range topics {
		m.subscribe(topic)
	}

	flushed := 0
	for {
		msg, ok := m.buffer.Pop()
		if !ok {
			break
		}
		m.send(msg.Topic, msg.Payload)
		flushed++
	}

	m.log.Info().Int("subscriptions", len(topics)).Int("flushed", flushed).Msg("connected")
}

func (m *MQTTClient) OnConnectionLost(client mqtt.Client, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() == application.StateDisconnected {
		return
	}

	next := application.StateConnecting
	if m.params.DisableAutoReconnect {
		next = application.StateDisconnected
	}
	m.setState(next)

	m.log.Warn().Err(err).Stringer("state", next).Msg("connection lost")
}

func (m *MQTTClient) OnReconnecting(client mqtt.Client, options *mqtt.ClientOptions) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() == application.StateDisconnected {
		return
	}
	m.setState(application.StateConnecting)
	m.log.Info().Msg("reconnecting")
}

func (m *MQTTClient) newMqttClient() mqtt.Client {
	opts := mqtt.NewClientOptions()

	opts.AddBroker(m.params.BrokerURL())
	opts.SetClientID(m.params.ClientID)
	if m.params.Username != "" {
		opts.SetUsername(m.params.Username)
		opts.SetPassword(m.params.Password)
	}

	if m.params.UseTLS {
		tlsConfig := m.params.TLSConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(!m.params.DisableAutoReconnect)
	opts.SetConnectRetry(!m.params.DisableAutoReconnect)
	opts.SetConnectRetryInterval(m.params.ConnectRetryInterval)
	opts.SetMaxReconnectInterval(m.params.MaxReconnectInterval)
	opts.SetConnectTimeout(m.params.ConnectTimeout)
	opts.SetWriteTimeout(m.params.PublishTimeout)
	opts.SetKeepAlive(m.params.KeepAlive)

	opts.SetDefaultPublishHandler(m.OnMessage)
	opts.OnConnect = m.OnConnect
	opts.OnConnectionLost = m.OnConnectionLost
	opts.OnReconnecting = m.OnReconnecting

	return m.params.NewClientFunc(opts)
}

var _ application.MQTTClient = &MQTTClient{}
