package application

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultHeartbeatNamespace = "Devices"
	DefaultProbeTopic         = "This device"
	DefaultProbePayload       = "check"
	DefaultHeartbeatTimeout   = 5000 * time.Millisecond
)

var DefaultDeviceIDs = []string{"0", "1", "2", "3"}

var ErrUnknownDevice = fmt.Errorf("unknown device")

type DeviceState int

const (
	DeviceOffline DeviceState = iota
	DeviceOnline
)

func (s DeviceState) String() string {
	if s == DeviceOnline {
		return "online"
	}
	return "offline"
}

func (s DeviceState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type DeviceStatus struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	State    DeviceState `json:"state"`
	LastSeen time.Time   `json:"last_seen"`
}

// Timer is a pending delayed action that can be cancelled.
type Timer interface {
	Stop() bool
}

type AfterFunc func(d time.Duration, f func()) Timer

func timeAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type LivenessWatchdogParams struct {
	Client   MQTTClient
	Notifier Notifier

	DeviceIDs    []string
	Namespace    string
	ProbeTopic   string
	ProbePayload string
	Timeout      time.Duration

	// OnChange is called outside the watchdog lock after every status change.
	// Changes are delivered in the order they happened; one overtaken by a
	// newer change of the same device is skipped.
	OnChange func(status DeviceStatus)

	AfterFunc AfterFunc
	Now       func() time.Time

	Log zerolog.Logger
}

func (p *LivenessWatchdogParams) EnsureDefaults() {
	if len(p.DeviceIDs) == 0 {
		p.DeviceIDs = DefaultDeviceIDs
	}
	if p.Namespace == "" {
		p.Namespace = DefaultHeartbeatNamespace
	}
	if p.ProbeTopic == "" {
		p.ProbeTopic = DefaultProbeTopic
	}
	if p.ProbePayload == "" {
		p.ProbePayload = DefaultProbePayload
	}
	if p.Timeout == 0 {
		p.Timeout = DefaultHeartbeatTimeout
	}
	if p.AfterFunc == nil {
		p.AfterFunc = timeAfterFunc
	}
	if p.Now == nil {
		p.Now = time.Now
	}
}

type trackedDevice struct {
	status DeviceStatus
	timer  Timer
	// generation invalidates a timer that fired while it was being replaced
	generation uint64
}

// LivenessWatchdog infers online/offline status for a fixed set of devices
// from heartbeats on "<namespace>/<id>" topics. Each device has at most one
// pending timeout; a heartbeat replaces it.
type LivenessWatchdog struct {
	params LivenessWatchdogParams

	mu      sync.Mutex
	devices map[string]*trackedDevice
	closed  bool
	seq     uint64

	// changeMu orders OnChange calls; delivered holds the last seq per device
	changeMu  sync.Mutex
	delivered map[string]uint64

	log zerolog.Logger
}

func NewLivenessWatchdog(params LivenessWatchdogParams) (*LivenessWatchdog, error) {
	params.EnsureDefaults()

	if params.Client == nil {
		return nil, fmt.Errorf("MQTTClient is nil")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("Notifier is nil")
	}
	if params.Timeout < 0 {
		return nil, fmt.Errorf("heartbeat timeout must be positive: %s", params.Timeout)
	}

	devices := make(map[string]*trackedDevice, len(params.DeviceIDs))
	for _, id := range params.DeviceIDs {
		if id == "" {
			return nil, fmt.Errorf("device id cannot be empty")
		}
		if _, ok := devices[id]; ok {
			return nil, fmt.Errorf("duplicate device id %q", id)
		}
		devices[id] = &trackedDevice{status: DeviceStatus{ID: id, Name: DeviceLabel(id), State: DeviceOffline}}
	}

	return &LivenessWatchdog{
		params:    params,
		devices:   devices,
		delivered: make(map[string]uint64, len(devices)),
		log:       params.Log,
	}, nil
}

// Start registers the heartbeat topic of every tracked device.
func (w *LivenessWatchdog) Start() {
	for _, id := range w.params.DeviceIDs {
		w.params.Client.AddTopic(HeartbeatTopic(w.params.Namespace, id), w.OnHeartbeat)
	}
	w.log.Info().
		Strs("devices", w.params.DeviceIDs).
		Str("namespace", w.params.Namespace).
		Dur("timeout", w.params.Timeout).
		Msg("watchdog started")
}

// CheckStatus broadcasts a single probe; replies arrive as heartbeats.
func (w *LivenessWatchdog) CheckStatus() {
	w.log.Debug().Str("topic", w.params.ProbeTopic).Msg("probing devices")
	w.params.Client.Publish(w.params.ProbeTopic, w.params.ProbePayload)
}

func (w *LivenessWatchdog) OnHeartbeat(topic string, payload string) {
	id, ok := DeviceIDFromTopic(w.params.Namespace, topic)
	if !ok {
		w.log.Info().Str("topic", topic).Msg("heartbeat on unexpected topic")
		return
	}

	heartbeat, err := ParseHeartbeat(payload)
	if err != nil {
		w.log.Warn().Err(err).Str("device", id).Msg("heartbeat ignored")
		return
	}

	w.mu.Lock()
	device, ok := w.devices[id]
	if !ok {
		w.mu.Unlock()
		w.log.Info().Str("device", id).Msg("device not recognized")
		return
	}
	if w.closed {
		w.mu.Unlock()
		return
	}

	w.cancelTimer(device)

	previous := device.status.State
	device.status.LastSeen = w.params.Now()
	if heartbeat.Alive() {
		device.status.State = DeviceOnline
		w.armTimer(id, device)
	} else {
		device.status.State = DeviceOffline
	}
	status := device.status
	stateChanged := status.State != previous
	var seq uint64
	if stateChanged {
		seq = w.nextSeq()
	}
	w.mu.Unlock()

	if stateChanged {
		w.log.Info().
			Str("device", id).
			Stringer("heartbeat", heartbeat.Kind).
			Stringer("state", status.State).
			Msg("device state changed")
		w.changed(status, seq)
	}
}

func (w *LivenessWatchdog) cancelTimer(device *trackedDevice) {
	device.generation++
	if device.timer != nil {
		device.timer.Stop()
		device.timer = nil
	}
}

func (w *LivenessWatchdog) armTimer(id string, device *trackedDevice) {
	generation := device.generation
	device.timer = w.params.AfterFunc(w.params.Timeout, func() {
		w.expire(id, generation)
	})
}

func (w *LivenessWatchdog) expire(id string, generation uint64) {
	w.mu.Lock()
	device := w.devices[id]
	if w.closed || device.generation != generation {
		w.mu.Unlock()
		return
	}
	device.timer = nil
	if device.status.State != DeviceOnline {
		w.mu.Unlock()
		return
	}
	device.status.State = DeviceOffline
	status := device.status
	seq := w.nextSeq()
	w.mu.Unlock()

	w.log.Warn().
		Str("device", id).
		Time("last_seen", status.LastSeen).
		Dur("timeout", w.params.Timeout).
		Msg("device timed out")

	w.params.Notifier.Notify(Notification{
		DeviceID: id,
		Title:    "Device Offline",
		Message:  fmt.Sprintf("%s is offline due to timeout.", status.Name),
		At:       w.params.Now(),
	})
	w.changed(status, seq)
}

// nextSeq must be called with mu held.
func (w *LivenessWatchdog) nextSeq() uint64 {
	w.seq++
	return w.seq
}

func (w *LivenessWatchdog) changed(status DeviceStatus, seq uint64) {
	if w.params.OnChange == nil {
		return
	}

	w.changeMu.Lock()
	defer w.changeMu.Unlock()

	if seq <= w.delivered[status.ID] {
		w.log.Debug().Str("device", status.ID).Stringer("state", status.State).Msg("stale state change skipped")
		return
	}
	w.delivered[status.ID] = seq
	w.params.OnChange(status)
}

// Statuses returns a snapshot of every tracked device.
func (w *LivenessWatchdog) Statuses() map[string]DeviceStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	statuses := make(map[string]DeviceStatus, len(w.devices))
	for id, device := range w.devices {
		statuses[id] = device.status
	}
	return statuses
}

// SortedStatuses returns the snapshot ordered by device id.
func (w *LivenessWatchdog) SortedStatuses() []DeviceStatus {
	statuses := w.Statuses()

	list := make([]DeviceStatus, 0, len(statuses))
	for _, status := range statuses {
		list = append(list, status)
	}
	sort.Slice(list, func(i, j int) bool {
		return deviceIDLess(list[i].ID, list[j].ID)
	})
	return list
}

func (w *LivenessWatchdog) Status(id string) (DeviceStatus, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	device, ok := w.devices[id]
	if !ok {
		return DeviceStatus{}, fmt.Errorf("%w: %q", ErrUnknownDevice, id)
	}
	return device.status, nil
}

func (w *LivenessWatchdog) OnlineCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	count := 0
	for _, device := range w.devices {
		if device.status.State == DeviceOnline {
			count++
		}
	}
	return count
}

// Close cancels every pending timeout. Heartbeats received afterwards are
// ignored.
func (w *LivenessWatchdog) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	for _, device := range w.devices {
		w.cancelTimer(device)
	}
	w.log.Info().Msg("watchdog stopped")
}

// DeviceLabel names a device for display. Numeric ids are shown 1-based.
func DeviceLabel(id string) string {
	if n, err := strconv.Atoi(id); err == nil {
		return fmt.Sprintf("Device %d", n+1)
	}
	return "Device " + id
}

func deviceIDLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}
