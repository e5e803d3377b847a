// Package logic contains the pure sorting-line logic: classification, button
// edge detection and the deferred actuation schedule.
// This package has NO external dependencies (no field bus, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Category is the sorting class derived from a vision code.
type Category string

const (
	CategoryBlue  Category = "BLUE"
	CategoryGreen Category = "GREEN"
	CategoryMetal Category = "METAL"
	CategoryNone  Category = "NONE"
)

// ProcessState is the state of the line. Only the controller mutates it.
type ProcessState string

const (
	StateIdle      ProcessState = "IDLE"
	StateRunning   ProcessState = "RUNNING"
	StateStopped   ProcessState = "STOPPED"
	StateResetting ProcessState = "RESETTING"
)

// EventKind is a deferred sorter command.
type EventKind string

const (
	KindSorter1On  EventKind = "SORTER1_ON"
	KindSorter1Off EventKind = "SORTER1_OFF"
	KindSorter2On  EventKind = "SORTER2_ON"
	KindSorter2Off EventKind = "SORTER2_OFF"
)

// ScheduledEvent is a sorter command waiting for its due time.
// Events are ordered by (Due, Seq).
type ScheduledEvent struct {
	Due    time.Time
	Seq    uint64
	Kind   EventKind
	ItemID string
}

// Buttons is one sample of the three operator buttons, or the rising edges
// derived from two consecutive samples.
type Buttons struct {
	Start bool
	Stop  bool
	Reset bool // stop-and-reset
}

// Any reports whether any button is set.
func (b Buttons) Any() bool {
	return b.Start || b.Stop || b.Reset
}

// EventType identifies a line event published as telemetry.
type EventType string

const (
	EventStateChange  EventType = "STATE_CHANGE"
	EventItemDetected EventType = "ITEM_DETECTED"
	EventDispatched   EventType = "DISPATCHED"
	EventPurged       EventType = "SCHEDULE_PURGED"
)

// Event is a line event to be published. Fields not relevant to Type are zero.
type Event struct {
	Timestamp time.Time
	Type      EventType
	From      ProcessState
	State     ProcessState
	Code      int
	Category  Category
	ItemID    string
	Kind      EventKind
	Purged    int
}

// EventCounts tracks line activity since startup.
type EventCounts struct {
	Blue          int
	Green         int
	Metal         int
	Sorter1Pulses int
	Sorter2Pulses int
	Purged        int
	Starts        int
	Stops         int
	Resets        int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	State     ProcessState
	Counts    EventCounts
}
