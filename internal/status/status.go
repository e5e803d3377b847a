// Package status provides a thread-safe status tracker for the sortline controller.
// The control loop writes it once per cycle; HTTP handlers and MQTT system
// events read snapshots.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/sortline/internal/logic"
)

// Config contains controller configuration for display.
type Config struct {
	PollMs      int64
	HeartbeatMs int64
	Backend     string
	Endpoint    string // field-bus host:port or GPIO chip
	Driver      string
	Broker      string
	HTTPAddr    string
}

// Line is the per-cycle view of the line published by the controller.
type Line struct {
	State             logic.ProcessState
	Counts            logic.EventCounts
	Pending           int
	LastCode          int
	ConveyorSpeed     float64
	FieldbusConnected bool
}

// Snapshot is a point-in-time view of controller state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Line
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the controller started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable controller state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Line:      Line{State: logic.StateIdle},
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update replaces the line view. Called by the control loop every cycle.
func (t *Tracker) Update(line Line) {
	t.mu.Lock()
	t.snap.Line = line
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the controller state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
