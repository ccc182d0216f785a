package gpio

import (
	"fmt"
	"sync"
	"time"
)

// FakeDriver is a test double for Driver. Lines exist (are ready) unless
// marked otherwise, and failures can be injected per line.
// It is safe for concurrent use.
type FakeDriver struct {
	mu       sync.Mutex
	lines    map[lineKey]*fakeLine
	faults   map[lineKey]*fakeFaults
	clock    time.Duration
	writes   []FakeWrite
	released []Line
	Closed   bool
}

// FakeWrite records a single Write call.
type FakeWrite struct {
	Line  Line
	Level int
}

type fakeLine struct {
	dir       Direction
	armed     bool
	trigger   Trigger
	handler   EdgeHandler
	level     int
	requested bool
}

type fakeFaults struct {
	notReady     bool
	configureErr error
	interruptErr error
	registerErr  error
	readErr      error
	writeErr     error
}

// NewFakeDriver creates an empty FakeDriver.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		lines:  make(map[lineKey]*fakeLine),
		faults: make(map[lineKey]*fakeFaults),
	}
}

func (f *FakeDriver) faultsFor(l Line) *fakeFaults {
	k := keyOf(l)
	ff, ok := f.faults[k]
	if !ok {
		ff = &fakeFaults{}
		f.faults[k] = ff
	}
	return ff
}

func (f *FakeDriver) line(l Line) *fakeLine {
	k := keyOf(l)
	fl, ok := f.lines[k]
	if !ok {
		fl = &fakeLine{}
		f.lines[k] = fl
	}
	return fl
}

// SetNotReady makes IsReady report false for l.
func (f *FakeDriver) SetNotReady(l Line) {
	f.mu.Lock()
	f.faultsFor(l).notReady = true
	f.mu.Unlock()
}

// FailConfigure makes Configure return err for l.
func (f *FakeDriver) FailConfigure(l Line, err error) {
	f.mu.Lock()
	f.faultsFor(l).configureErr = err
	f.mu.Unlock()
}

// FailInterrupt makes ConfigureInterrupt return err for l.
func (f *FakeDriver) FailInterrupt(l Line, err error) {
	f.mu.Lock()
	f.faultsFor(l).interruptErr = err
	f.mu.Unlock()
}

// FailRegister makes RegisterCallback return err for l.
func (f *FakeDriver) FailRegister(l Line, err error) {
	f.mu.Lock()
	f.faultsFor(l).registerErr = err
	f.mu.Unlock()
}

// FailRead makes Read return err for l. A nil err clears the fault.
func (f *FakeDriver) FailRead(l Line, err error) {
	f.mu.Lock()
	f.faultsFor(l).readErr = err
	f.mu.Unlock()
}

// FailWrite makes Write return err for l. A nil err clears the fault.
func (f *FakeDriver) FailWrite(l Line, err error) {
	f.mu.Lock()
	f.faultsFor(l).writeErr = err
	f.mu.Unlock()
}

// IsReady reports false only for lines marked with SetNotReady.
func (f *FakeDriver) IsReady(l Line) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.faultsFor(l).notReady
}

// Configure records the line direction.
func (f *FakeDriver) Configure(l Line, dir Direction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ff := f.faultsFor(l)
	if ff.notReady {
		return fmt.Errorf("%w: %s", ErrNotReady, l)
	}
	if ff.configureErr != nil {
		return ff.configureErr
	}
	fl := f.line(l)
	if fl.requested {
		return fmt.Errorf("%w: %s already requested", ErrConfigRejected, l)
	}
	fl.requested = true
	fl.dir = dir
	return nil
}

// ConfigureInterrupt arms the trigger on a configured input.
func (f *FakeDriver) ConfigureInterrupt(l Line, t Trigger) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.faultsFor(l).interruptErr; err != nil {
		return err
	}
	fl := f.line(l)
	if !fl.requested || fl.dir != Input {
		return fmt.Errorf("%w: %s is not an input", ErrInterruptRejected, l)
	}
	fl.armed = true
	fl.trigger = t
	return nil
}

// RegisterCallback installs h for l.
func (f *FakeDriver) RegisterCallback(l Line, h EdgeHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.faultsFor(l).registerErr; err != nil {
		return err
	}
	fl := f.line(l)
	if !fl.requested {
		return fmt.Errorf("%w: %s", ErrNotConfigured, l)
	}
	fl.handler = h
	return nil
}

// Read returns the current level of l.
func (f *FakeDriver) Read(l Line) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.faultsFor(l).readErr; err != nil {
		return 0, err
	}
	fl := f.line(l)
	if !fl.requested {
		return 0, fmt.Errorf("%w: %s", ErrNotConfigured, l)
	}
	return fl.level, nil
}

// Write records v and sets the output level.
func (f *FakeDriver) Write(l Line, v int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.faultsFor(l).writeErr; err != nil {
		return err
	}
	fl := f.line(l)
	if !fl.requested || fl.dir != Output {
		return fmt.Errorf("write %s: not an output", l)
	}
	fl.level = v
	f.writes = append(f.writes, FakeWrite{Line: l, Level: v})
	return nil
}

// Release forgets the line's direction, trigger and handler. Its level is
// kept, as a physical input would keep it.
func (f *FakeDriver) Release(l Line) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fl, ok := f.lines[keyOf(l)]
	if !ok || !fl.requested {
		return fmt.Errorf("%w: %s", ErrNotConfigured, l)
	}
	fl.requested = false
	fl.armed = false
	fl.handler = nil
	f.released = append(f.released, l)
	return nil
}

// Released returns the lines released so far, in order.
func (f *FakeDriver) Released() []Line {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Line, len(f.released))
	copy(out, f.released)
	return out
}

// Close marks the driver as closed.
func (f *FakeDriver) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// SetLevel drives an input to v, as the outside world would.
// If the transition matches the armed trigger the registered handler is
// called synchronously on the caller's goroutine.
func (f *FakeDriver) SetLevel(l Line, v int) {
	f.mu.Lock()
	fl := f.line(l)
	changed := fl.level != v
	fl.level = v
	f.clock += time.Microsecond

	var h EdgeHandler
	active := v != 0
	if changed && fl.armed && fl.handler != nil && fl.trigger.matches(active) {
		h = fl.handler
	}
	edge := Edge{Line: l, Active: active, Timestamp: f.clock}
	f.mu.Unlock()

	if h != nil {
		h(edge)
	}
}

// Press drives l active.
func (f *FakeDriver) Press(l Line) { f.SetLevel(l, 1) }

// Lift drives l inactive.
func (f *FakeDriver) Lift(l Line) { f.SetLevel(l, 0) }

// Level returns the current level of l without fault injection.
func (f *FakeDriver) Level(l Line) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.line(l).level
}

// Configured reports whether l was successfully configured and its direction.
func (f *FakeDriver) Configured(l Line) (Direction, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fl, ok := f.lines[keyOf(l)]
	if !ok || !fl.requested {
		return 0, false
	}
	return fl.dir, true
}

// Writes returns all writes recorded so far, in order.
func (f *FakeDriver) Writes() []FakeWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeWrite, len(f.writes))
	copy(out, f.writes)
	return out
}

// WritesTo returns the levels written to l, in order.
func (f *FakeDriver) WritesTo(l Line) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int
	for _, w := range f.writes {
		if keyOf(w.Line) == keyOf(l) {
			out = append(out, w.Level)
		}
	}
	return out
}
