package application

import "time"

// Notification is a user-visible alert raised by the watchdog.
type Notification struct {
	DeviceID string
	Title    string
	Message  string
	At       time.Time
}

type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a plain function to a Notifier.
type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) {
	f(n)
}
