package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/sortline/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	State         string     `json:"state"`
	Running       bool       `json:"running"`
	LastCode      int        `json:"last_code"`
	LastCategory  string     `json:"last_category"`
	Pending       int        `json:"pending_commands"`
	ConveyorSpeed float64    `json:"conveyor_speed"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	Fieldbus      LinkStatus `json:"fieldbus"`
	MQTT          LinkStatus `json:"mqtt"`
	Counts        CountsJSON `json:"counts"`
	Config        ConfigJSON `json:"config"`
}

// LinkStatus reports a connection state.
type LinkStatus struct {
	Connected bool   `json:"connected"`
	Endpoint  string `json:"endpoint"`
}

// CountsJSON is the JSON representation of line counters.
type CountsJSON struct {
	Blue          int `json:"blue"`
	Green         int `json:"green"`
	Metal         int `json:"metal"`
	Sorter1Pulses int `json:"sorter1_pulses"`
	Sorter2Pulses int `json:"sorter2_pulses"`
	Purged        int `json:"purged_commands"`
	Starts        int `json:"starts"`
	Stops         int `json:"stops"`
	Resets        int `json:"resets"`
}

// ConfigJSON is the JSON representation of controller config.
type ConfigJSON struct {
	PollMs      int64  `json:"poll_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Backend     string `json:"backend"`
	Driver      string `json:"driver"`
	HTTPAddr    string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.State)
	if state == "" {
		state = "UNKNOWN"
	}

	return StatusInner{
		State:         state,
		Running:       snap.State == logic.StateRunning,
		LastCode:      snap.LastCode,
		LastCategory:  string(logic.Classify(snap.LastCode)),
		Pending:       snap.Pending,
		ConveyorSpeed: snap.ConveyorSpeed,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Fieldbus:      LinkStatus{Connected: snap.FieldbusConnected, Endpoint: snap.Config.Endpoint},
		MQTT:          LinkStatus{Connected: snap.MQTTConnected, Endpoint: snap.Config.Broker},
		Counts: CountsJSON{
			Blue:          snap.Counts.Blue,
			Green:         snap.Counts.Green,
			Metal:         snap.Counts.Metal,
			Sorter1Pulses: snap.Counts.Sorter1Pulses,
			Sorter2Pulses: snap.Counts.Sorter2Pulses,
			Purged:        snap.Counts.Purged,
			Starts:        snap.Counts.Starts,
			Stops:         snap.Counts.Stops,
			Resets:        snap.Counts.Resets,
		},
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Backend:     snap.Config.Backend,
			Driver:      snap.Config.Driver,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
