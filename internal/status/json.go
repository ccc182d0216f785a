package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	BootID        string        `json:"boot_id"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	Valid         int           `json:"valid_channels"`
	Mirrored      int           `json:"mirrored_channels"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Channels      []ChannelJSON `json:"channels"`
	Config        ConfigJSON    `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ChannelJSON is the JSON representation of one channel.
type ChannelJSON struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Input         string `json:"input,omitempty"`
	Output        string `json:"output,omitempty"`
	Valid         bool   `json:"valid"`
	OutputEnabled bool   `json:"output_enabled"`
	InputError    string `json:"input_error,omitempty"`
	OutputError   string `json:"output_error,omitempty"`
	Level         *int   `json:"level"`
	Edges         int    `json:"edges"`
	LastEdgeNs    int64  `json:"last_edge_ns,omitempty"`
	WriteFailures int    `json:"write_failures"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickUs     int64  `json:"tick_us"`
	Broker     string `json:"broker"`
	HTTPAddr   string `json:"http_addr"`
	ConfigPath string `json:"config_path,omitempty"`
}

// ChannelToJSON converts one channel status.
func ChannelToJSON(cs ChannelStatus) ChannelJSON {
	cj := ChannelJSON{
		ID:            cs.ID,
		Name:          cs.Name,
		Input:         cs.Input,
		Output:        cs.Output,
		Valid:         cs.Valid,
		OutputEnabled: cs.OutputEnabled,
		InputError:    cs.InputErr,
		OutputError:   cs.OutputErr,
		Edges:         cs.Edges,
		LastEdgeNs:    int64(cs.LastEdge),
		WriteFailures: cs.WriteFailures,
	}
	if cs.LevelKnown {
		lvl := cs.Level
		cj.Level = &lvl
	}
	return cj
}

func buildInner(snap Snapshot) StatusInner {
	chs := make([]ChannelJSON, len(snap.Channels))
	for i, cs := range snap.Channels {
		chs[i] = ChannelToJSON(cs)
	}

	return StatusInner{
		BootID:        snap.BootID,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Valid:         snap.Valid(),
		Mirrored:      snap.Mirrored(),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Channels:      chs,
		Config: ConfigJSON{
			TickUs:     snap.Config.TickUs,
			Broker:     snap.Config.Broker,
			HTTPAddr:   snap.Config.HTTPAddr,
			ConfigPath: snap.Config.ConfigPath,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
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
