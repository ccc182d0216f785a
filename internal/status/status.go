// Package status provides a thread-safe status tracker for the button-mirror daemon.
// It is written by the registry, the mirror loop and the diagnostic sink, and
// read by HTTP handlers and MQTT lifecycle events. The mirror loop never
// reads it.
package status

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/button-mirror/internal/channel"
)

// Config contains daemon configuration for display.
type Config struct {
	TickUs     int64
	Broker     string
	HTTPAddr   string
	ConfigPath string
}

// ChannelStatus is the display state of one configured channel.
type ChannelStatus struct {
	ID            int
	Name          string
	Input         string
	Output        string
	Valid         bool
	OutputEnabled bool
	InputErr      string
	OutputErr     string

	LevelKnown    bool
	Level         int
	Edges         int
	LastEdge      time.Duration
	WriteFailures int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	BootID        string
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Channels      []ChannelStatus
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Mirrored returns the number of channels driving an LED.
func (s Snapshot) Mirrored() int {
	n := 0
	for _, ch := range s.Channels {
		if ch.OutputEnabled {
			n++
		}
	}
	return n
}

// Valid returns the number of channels with a working button.
func (s Snapshot) Valid() int {
	n := 0
	for _, ch := range s.Channels {
		if ch.Valid {
			n++
		}
	}
	return n
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with a fresh boot ID.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			BootID:    uuid.NewString(),
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// BootID returns the identifier of this process run.
func (t *Tracker) BootID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap.BootID
}

// SetChannels records registry results. Called once at startup.
func (t *Tracker) SetChannels(reports []channel.Report) {
	chs := make([]ChannelStatus, len(reports))
	for i, r := range reports {
		cs := ChannelStatus{
			ID:            r.ID,
			Name:          r.Name,
			Valid:         r.Valid,
			OutputEnabled: r.OutputEnabled,
		}
		if r.Input.Chip != "" {
			cs.Input = r.Input.String()
		}
		if r.Output.Chip != "" {
			cs.Output = r.Output.String()
		}
		if r.InputErr != nil {
			cs.InputErr = r.InputErr.Error()
		}
		if r.OutputErr != nil {
			cs.OutputErr = r.OutputErr.Error()
		}
		chs[i] = cs
	}

	t.mu.Lock()
	t.snap.Channels = chs
	t.mu.Unlock()
}

func (t *Tracker) channel(id int) *ChannelStatus {
	for i := range t.snap.Channels {
		if t.snap.Channels[i].ID == id {
			return &t.snap.Channels[i]
		}
	}
	return nil
}

// RecordEdge counts an edge for a channel. Called from the diagnostic sink.
func (t *Tracker) RecordEdge(id int, at time.Duration) {
	t.mu.Lock()
	if cs := t.channel(id); cs != nil {
		cs.Edges++
		cs.LastEdge = at
	}
	t.mu.Unlock()
}

// Level records the last level mirrored to a channel's LED.
func (t *Tracker) Level(id, level int) {
	t.mu.Lock()
	if cs := t.channel(id); cs != nil {
		cs.Level = level
		cs.LevelKnown = true
	}
	t.mu.Unlock()
}

// WriteFailed counts a failed LED write.
func (t *Tracker) WriteFailed(id int) {
	t.mu.Lock()
	if cs := t.channel(id); cs != nil {
		cs.WriteFailures++
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Channels = make([]ChannelStatus, len(t.snap.Channels))
	copy(s.Channels, t.snap.Channels)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
