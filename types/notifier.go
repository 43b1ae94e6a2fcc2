package types

import (
	"time"
)

const (
	EventInstalled = "installed"
	EventActivated = "activated"
)

// LifecycleEvent is broadcast to connected clients when a generation
// finishes installing or takes over on activation.
type LifecycleEvent struct {
	Type       string    `json:"type"`
	Generation string    `json:"generation"`
	Timestamp  time.Time `json:"timestamp"`
}

type Notifier interface {
	Broadcast(event LifecycleEvent)
}
