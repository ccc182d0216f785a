package internal

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sweeney/button-mirror/internal/board"
	"github.com/sweeney/button-mirror/internal/channel"
	"github.com/sweeney/button-mirror/internal/config"
	"github.com/sweeney/button-mirror/internal/diag"
	"github.com/sweeney/button-mirror/internal/gpio"
	"github.com/sweeney/button-mirror/internal/mirror"
	"github.com/sweeney/button-mirror/internal/mqtt"
	"github.com/sweeney/button-mirror/internal/status"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// rig wires the daemon components together on a fake driver, the same way
// main does on real hardware.
type rig struct {
	driver    *gpio.FakeDriver
	board     *board.Board
	tracker   *status.Tracker
	sink      *diag.Sink
	publisher *mqtt.FakePublisher
	channels  []channel.Channel
	reports   []channel.Report
	mirror    *mirror.Mirror
}

// newRig builds a rig from the default three-channel configuration.
// prepare runs against the driver before channels are initialized so
// faults can be injected.
func newRig(t *testing.T, prepare func(d *gpio.FakeDriver, b *board.Board)) *rig {
	t.Helper()
	cfg := config.Default()

	r := &rig{
		driver:    gpio.NewFakeDriver(),
		board:     board.New(cfg.Board, nil),
		tracker:   status.NewTracker(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), status.Config{TickUs: 1000}),
		publisher: mqtt.NewFakePublisher(),
	}
	if prepare != nil {
		prepare(r.driver, r.board)
	}

	r.sink = diag.NewSink(cfg.Diag.Buffer, quiet)
	r.sink.Counter = r.tracker
	r.sink.Publisher = r.publisher

	r.channels, r.reports = channel.Initialize(r.driver, r.board, cfg.Specs(), r.sink, quiet)
	r.tracker.SetChannels(r.reports)
	r.mirror = mirror.New(r.driver, r.channels, r.tracker)
	return r
}

func (r *rig) line(alias string) gpio.Line {
	l, ok := r.board.Resolve(alias)
	if !ok {
		panic("unknown alias " + alias)
	}
	return l
}

func channelIDs(chs []channel.Channel) []int {
	ids := make([]int, len(chs))
	for i, ch := range chs {
		ids[i] = ch.ID
	}
	return ids
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TestIntegrationOutputNotReady covers the board where led2 is missing:
// all three buttons work, only two LEDs are mirrored.
func TestIntegrationOutputNotReady(t *testing.T) {
	r := newRig(t, func(d *gpio.FakeDriver, b *board.Board) {
		led2, _ := b.Resolve("led2")
		d.SetNotReady(led2)
	})

	if got := channelIDs(r.channels); !equalInts(got, []int{0, 1, 2}) {
		t.Fatalf("valid channels: got %v, want [0 1 2]", got)
	}
	if got := channelIDs(r.mirror.Channels()); !equalInts(got, []int{0, 1}) {
		t.Fatalf("mirrored channels: got %v, want [0 1]", got)
	}
	if !errors.Is(r.reports[2].OutputErr, gpio.ErrNotReady) {
		t.Errorf("channel 2 output error: got %v, want ErrNotReady", r.reports[2].OutputErr)
	}

	r.driver.Press(r.line("sw2"))
	r.mirror.Tick()
	r.sink.Flush()

	if n := len(r.driver.WritesTo(r.line("led2"))); n != 0 {
		t.Errorf("led2 must never be written, got %d writes", n)
	}
	if r.publisher.EdgeCount() != 1 || r.publisher.Edges[0].Channel != 2 {
		t.Errorf("expected one edge for channel 2, got %+v", r.publisher.Edges)
	}

	snap := r.tracker.Snapshot()
	if snap.Valid() != 3 || snap.Mirrored() != 2 {
		t.Errorf("valid/mirrored: got %d/%d, want 3/2", snap.Valid(), snap.Mirrored())
	}
	if snap.Channels[2].Edges != 1 {
		t.Errorf("channel 2 edges: got %d, want 1", snap.Channels[2].Edges)
	}
}

// TestIntegrationInputRejected drops a channel whose interrupt cannot be
// armed; its neighbours are unaffected.
func TestIntegrationInputRejected(t *testing.T) {
	r := newRig(t, func(d *gpio.FakeDriver, b *board.Board) {
		sw1, _ := b.Resolve("sw1")
		d.FailInterrupt(sw1, gpio.ErrInterruptRejected)
	})

	if got := channelIDs(r.channels); !equalInts(got, []int{0, 2}) {
		t.Fatalf("valid channels: got %v, want [0 2]", got)
	}
	if r.reports[1].Valid {
		t.Error("channel 1 should be reported invalid")
	}
	if !errors.Is(r.reports[1].InputErr, gpio.ErrInterruptRejected) {
		t.Errorf("channel 1 input error: got %v", r.reports[1].InputErr)
	}

	r.driver.Press(r.line("sw1"))
	r.driver.Press(r.line("sw0"))
	r.mirror.Tick()
	r.sink.Flush()

	if n := len(r.driver.WritesTo(r.line("led1"))); n != 0 {
		t.Errorf("led1 writes: got %d, want 0", n)
	}
	if got := r.driver.WritesTo(r.line("led0")); !equalInts(got, []int{1}) {
		t.Errorf("led0 writes: got %v, want [1]", got)
	}
	if r.publisher.EdgeCount() != 1 || r.publisher.Edges[0].Channel != 0 {
		t.Errorf("expected only channel 0 edge, got %+v", r.publisher.Edges)
	}
}

// TestIntegrationToggleWithinTick shows that a press and release between two
// ticks is logged but never reaches the LED.
func TestIntegrationToggleWithinTick(t *testing.T) {
	r := newRig(t, nil)
	sw0, led0 := r.line("sw0"), r.line("led0")

	r.mirror.Tick()
	r.driver.Press(sw0)
	r.driver.Lift(sw0)
	r.mirror.Tick()
	r.sink.Flush()

	if got := r.driver.WritesTo(led0); !equalInts(got, []int{0, 0}) {
		t.Errorf("led0 writes: got %v, want [0 0]", got)
	}
	if r.publisher.EdgeCount() != 1 {
		t.Errorf("edges: got %d, want 1", r.publisher.EdgeCount())
	}
}

// TestIntegrationHeldButton checks that the LED is rewritten every tick
// while the level is steady, and that a held button produces one edge.
func TestIntegrationHeldButton(t *testing.T) {
	r := newRig(t, nil)
	sw1, led1 := r.line("sw1"), r.line("led1")

	r.driver.Press(sw1)
	for i := 0; i < 5; i++ {
		r.mirror.Tick()
	}
	r.driver.Lift(sw1)
	r.mirror.Tick()
	r.sink.Flush()

	want := []int{1, 1, 1, 1, 1, 0}
	if got := r.driver.WritesTo(led1); !equalInts(got, want) {
		t.Errorf("led1 writes: got %v, want %v", got, want)
	}
	if r.publisher.EdgeCount() != 1 {
		t.Errorf("edges: got %d, want 1", r.publisher.EdgeCount())
	}

	snap := r.tracker.Snapshot()
	if !snap.Channels[1].LevelKnown || snap.Channels[1].Level != 0 {
		t.Errorf("channel 1 level: got known=%v level=%d", snap.Channels[1].LevelKnown, snap.Channels[1].Level)
	}
}

// TestIntegrationEdgeOrderAndPayload presses buttons in a fixed order and
// checks the published payloads through the running drain goroutine.
func TestIntegrationEdgeOrderAndPayload(t *testing.T) {
	r := newRig(t, nil)
	r.sink.Start()

	for _, alias := range []string{"sw2", "sw0", "sw1"} {
		r.driver.Press(r.line(alias))
	}
	r.sink.Close()

	if r.publisher.EdgeCount() != 3 {
		t.Fatalf("edges: got %d, want 3", r.publisher.EdgeCount())
	}
	wantOrder := []int{2, 0, 1}
	for i, e := range r.publisher.Edges {
		if e.Channel != wantOrder[i] {
			t.Errorf("edge %d: channel %d, want %d", i, e.Channel, wantOrder[i])
		}
	}
	if r.publisher.Edges[0].At >= r.publisher.Edges[2].At {
		t.Error("edge timestamps should increase")
	}

	var parsed mqtt.EdgePayload
	if err := json.Unmarshal(r.publisher.Payloads[0], &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Edge.Channel != 2 || parsed.Edge.Name != "2" {
		t.Errorf("unexpected payload: %+v", parsed.Edge)
	}
}

// TestIntegrationReadFailureKeepsLED leaves the LED at its last level when
// the button cannot be read.
func TestIntegrationReadFailureKeepsLED(t *testing.T) {
	r := newRig(t, nil)
	sw0, led0 := r.line("sw0"), r.line("led0")

	r.driver.Press(sw0)
	r.mirror.Tick()
	r.driver.FailRead(sw0, errors.New("EIO"))
	r.driver.Lift(sw0)
	r.mirror.Tick()

	if got := r.driver.WritesTo(led0); !equalInts(got, []int{1}) {
		t.Errorf("led0 writes: got %v, want [1]", got)
	}
	if r.driver.Level(led0) != 1 {
		t.Error("led0 should stay lit after a failed read")
	}

	r.driver.FailRead(sw0, nil)
	r.mirror.Tick()
	if r.driver.Level(led0) != 0 {
		t.Error("led0 should follow the button once reads recover")
	}
}

// TestIntegrationStartupStatus publishes the startup status built from the
// registry reports.
func TestIntegrationStartupStatus(t *testing.T) {
	r := newRig(t, func(d *gpio.FakeDriver, b *board.Board) {
		sw0, _ := b.Resolve("sw0")
		d.SetNotReady(sw0)
	})

	snap := r.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := r.publisher.PublishSystem(event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var parsed status.StatusJSON
	if err := json.Unmarshal(r.publisher.SystemPayloads[0], &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "STARTUP" {
		t.Errorf("event: got %q", parsed.Status.Event)
	}
	if parsed.Status.Valid != 2 || parsed.Status.Mirrored != 2 {
		t.Errorf("valid/mirrored: got %d/%d, want 2/2", parsed.Status.Valid, parsed.Status.Mirrored)
	}
	if parsed.Status.Channels[0].InputError == "" {
		t.Error("channel 0 should carry its input error")
	}
}
