// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sweeney/button-mirror/internal/diag"
)

// DefaultTopicPrefix is the topic root when none is configured.
const DefaultTopicPrefix = "gpio/button-mirror"

// Topics holds the topic names derived from a prefix.
type Topics struct {
	Edges  string
	System string
}

// TopicsFor derives the topic set for prefix.
func TopicsFor(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{
		Edges:  prefix + "/edges",
		System: prefix + "/system",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishEdge sends a button edge to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishEdge(e diag.Edge) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "OFFLINE"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// EdgePayload represents the MQTT message payload for a button edge.
type EdgePayload struct {
	Edge EdgeInner `json:"edge"`
}

// EdgeInner contains the edge details.
type EdgeInner struct {
	Timestamp   string `json:"timestamp"`
	BootID      string `json:"boot_id,omitempty"`
	Channel     int    `json:"channel"`
	Name        string `json:"name"`
	MonotonicNs int64  `json:"monotonic_ns"`
}

// FormatEdgePayload creates the JSON payload for an edge.
// now is the wall-clock publish time; the edge itself only carries a
// monotonic timestamp.
func FormatEdgePayload(e diag.Edge, bootID string, now time.Time) ([]byte, error) {
	payload := EdgePayload{
		Edge: EdgeInner{
			Timestamp:   now.UTC().Format(time.RFC3339Nano),
			BootID:      bootID,
			Channel:     e.Channel,
			Name:        e.Name,
			MonotonicNs: int64(e.At),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{
		Event:  event.Event,
		Reason: event.Reason,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}
