package mirror

import (
	"errors"
	"testing"

	"github.com/sweeney/button-mirror/internal/channel"
	"github.com/sweeney/button-mirror/internal/gpio"
)

type recordingObserver struct {
	levels map[int][]int
	failed map[int]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{levels: make(map[int][]int), failed: make(map[int]int)}
}

func (o *recordingObserver) Level(ch, level int) { o.levels[ch] = append(o.levels[ch], level) }
func (o *recordingObserver) WriteFailed(ch int)  { o.failed[ch]++ }

func line(name string, offset int) gpio.Line {
	return gpio.Line{Name: name, Chip: "gpiochip0", Offset: offset}
}

// setup configures n channels on a fake driver. Channels listed in noLED
// have their output disabled.
func setup(t *testing.T, n int, noLED ...int) (*gpio.FakeDriver, []channel.Channel) {
	t.Helper()
	d := gpio.NewFakeDriver()
	skip := make(map[int]bool)
	for _, i := range noLED {
		skip[i] = true
	}

	var chs []channel.Channel
	for i := 0; i < n; i++ {
		ch := channel.Channel{ID: i, Input: line("sw", 10+i), Output: line("led", 20+i)}
		if err := d.Configure(ch.Input, gpio.Input); err != nil {
			t.Fatal(err)
		}
		if !skip[i] {
			if err := d.Configure(ch.Output, gpio.Output); err != nil {
				t.Fatal(err)
			}
			ch.OutputEnabled = true
		}
		chs = append(chs, ch)
	}
	return d, chs
}

func TestTickMirrorsLevel(t *testing.T) {
	d, chs := setup(t, 2)
	m := New(d, chs, nil)

	d.Press(chs[1].Input)
	m.Tick()

	if got := d.Level(chs[0].Output); got != 0 {
		t.Errorf("led0: got %d, want 0", got)
	}
	if got := d.Level(chs[1].Output); got != 1 {
		t.Errorf("led1: got %d, want 1", got)
	}

	d.Lift(chs[1].Input)
	d.Press(chs[0].Input)
	m.Tick()

	if got := d.Level(chs[0].Output); got != 1 {
		t.Errorf("led0: got %d, want 1", got)
	}
	if got := d.Level(chs[1].Output); got != 0 {
		t.Errorf("led1: got %d, want 0", got)
	}
}

func TestTickAlwaysWrites(t *testing.T) {
	d, chs := setup(t, 1)
	m := New(d, chs, nil)
	d.Press(chs[0].Input)

	for i := 0; i < 4; i++ {
		m.Tick()
	}

	got := d.WritesTo(chs[0].Output)
	if len(got) != 4 {
		t.Fatalf("expected 4 writes for 4 ticks, got %d", len(got))
	}
	for i, v := range got {
		if v != 1 {
			t.Errorf("write %d: got %d, want 1", i, v)
		}
	}
}

func TestTickSkipsDisabledOutputs(t *testing.T) {
	d, chs := setup(t, 3, 2)
	m := New(d, chs, nil)

	if n := len(m.Channels()); n != 2 {
		t.Fatalf("active channels: got %d, want 2", n)
	}

	d.Press(chs[2].Input)
	m.Tick()

	if got := d.WritesTo(chs[2].Output); len(got) != 0 {
		t.Errorf("channel 2 LED should never be written, got %v", got)
	}
}

func TestTickReadFailureKeepsPreviousLevel(t *testing.T) {
	d, chs := setup(t, 2)
	obs := newRecordingObserver()
	m := New(d, chs, obs)

	d.Press(chs[0].Input)
	d.Press(chs[1].Input)
	m.Tick()

	d.FailRead(chs[0].Input, errors.New("transient"))
	d.Lift(chs[0].Input)
	d.Lift(chs[1].Input)
	m.Tick()

	if got := d.Level(chs[0].Output); got != 1 {
		t.Errorf("led0 should keep its previous level, got %d", got)
	}
	if got := len(d.WritesTo(chs[0].Output)); got != 1 {
		t.Errorf("led0 writes: got %d, want 1", got)
	}
	if got := d.Level(chs[1].Output); got != 0 {
		t.Errorf("led1 should still be mirrored, got %d", got)
	}

	d.FailRead(chs[0].Input, nil)
	m.Tick()
	if got := d.Level(chs[0].Output); got != 0 {
		t.Errorf("led0 after recovery: got %d, want 0", got)
	}
	if len(obs.levels[0]) != 2 {
		t.Errorf("observer levels for channel 0: got %v", obs.levels[0])
	}
}

func TestTickWriteFailureReported(t *testing.T) {
	d, chs := setup(t, 2)
	obs := newRecordingObserver()
	m := New(d, chs, obs)

	d.FailWrite(chs[0].Output, errors.New("bus error"))
	d.Press(chs[1].Input)
	m.Tick()

	if obs.failed[0] != 1 {
		t.Errorf("write failures for channel 0: got %d, want 1", obs.failed[0])
	}
	if len(obs.levels[1]) != 1 || obs.levels[1][0] != 1 {
		t.Errorf("channel 1 levels: got %v, want [1]", obs.levels[1])
	}
}

func TestTickRegistrationOrder(t *testing.T) {
	d, chs := setup(t, 3)
	m := New(d, chs, nil)
	m.Tick()

	writes := d.Writes()
	if len(writes) != 3 {
		t.Fatalf("expected 3 writes, got %d", len(writes))
	}
	for i, w := range writes {
		if w.Line != chs[i].Output {
			t.Errorf("write %d: line %v, want %v", i, w.Line, chs[i].Output)
		}
	}
}
