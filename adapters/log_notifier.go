package adapters

import (
	"iot-dashboard/application"

	"github.com/rs/zerolog"
)

// LogNotifier surfaces watchdog notifications on the console log.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(notification application.Notification) {
	n.log.Warn().
		Str("device", notification.DeviceID).
		Str("title", notification.Title).
		Time("at", notification.At).
		Msg(notification.Message)
}

var _ application.Notifier = &LogNotifier{}
