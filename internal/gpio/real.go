//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/warthog618/go-gpiocdev"
)

// Consumer is the label the kernel shows for lines held by this process.
const Consumer = "button-mirror"

type realLine struct {
	line    Line
	dir     Direction
	req     *gpiocdev.Line
	handler atomic.Pointer[EdgeHandler]
}

// dispatch runs on the gpiocdev watcher goroutine.
func (r *realLine) dispatch(evt gpiocdev.LineEvent) {
	h := r.handler.Load()
	if h == nil {
		return
	}
	(*h)(Edge{
		Line:      r.line,
		Active:    evt.Type == gpiocdev.LineEventRisingEdge,
		Timestamp: evt.Timestamp,
	})
}

// RealDriver drives lines through the Linux GPIO character device.
type RealDriver struct {
	mu    sync.RWMutex
	chips map[string]*gpiocdev.Chip
	lines map[lineKey]*realLine
}

// NewRealDriver creates a driver. Chips are opened lazily on first use.
func NewRealDriver() (*RealDriver, error) {
	return &RealDriver{
		chips: make(map[string]*gpiocdev.Chip),
		lines: make(map[lineKey]*realLine),
	}, nil
}

func (d *RealDriver) chip(name string) (*gpiocdev.Chip, error) {
	if c, ok := d.chips[name]; ok {
		return c, nil
	}
	c, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer(Consumer))
	if err != nil {
		return nil, err
	}
	d.chips[name] = c
	return c, nil
}

// IsReady reports whether the line's chip exists and has the offset.
func (d *RealDriver) IsReady(l Line) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, err := d.chip(l.Chip)
	if err != nil {
		return false
	}
	return l.Offset >= 0 && l.Offset < c.Lines()
}

func biasOption(b Bias) []gpiocdev.LineReqOption {
	switch b {
	case BiasPullUp:
		return []gpiocdev.LineReqOption{gpiocdev.WithPullUp}
	case BiasPullDown:
		return []gpiocdev.LineReqOption{gpiocdev.WithPullDown}
	case BiasDisabled:
		return []gpiocdev.LineReqOption{gpiocdev.WithBiasDisabled}
	}
	return nil
}

// Configure requests the line. Input lines are requested with an event
// handler so interrupts can be armed later without re-requesting.
func (d *RealDriver) Configure(l Line, dir Direction) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.lines[keyOf(l)]; ok {
		return fmt.Errorf("%w: %s already requested", ErrConfigRejected, l)
	}
	c, err := d.chip(l.Chip)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotReady, l, err)
	}

	rl := &realLine{line: l, dir: dir}
	opts := []gpiocdev.LineReqOption{gpiocdev.WithConsumer(Consumer)}
	if l.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	if dir == Output {
		opts = append(opts, gpiocdev.AsOutput(0))
	} else {
		opts = append(opts, gpiocdev.AsInput, gpiocdev.WithEventHandler(rl.dispatch))
		opts = append(opts, biasOption(l.Bias)...)
	}

	req, err := c.RequestLine(l.Offset, opts...)
	if err != nil {
		return fmt.Errorf("%w: request %s as %s: %v", ErrConfigRejected, l, dir, err)
	}
	rl.req = req
	d.lines[keyOf(l)] = rl
	return nil
}

// ConfigureInterrupt enables kernel edge detection on an input line.
// Edges are reported on the logical level, so active-low lines need no
// special handling here.
func (d *RealDriver) ConfigureInterrupt(l Line, t Trigger) error {
	rl, err := d.lookup(l)
	if err != nil {
		return err
	}
	if rl.dir != Input {
		return fmt.Errorf("%w: %s is not an input", ErrInterruptRejected, l)
	}

	var opt gpiocdev.LineConfigOption
	switch t {
	case EdgeToActive:
		opt = gpiocdev.WithRisingEdge
	case EdgeToInactive:
		opt = gpiocdev.WithFallingEdge
	case EdgeBoth:
		opt = gpiocdev.WithBothEdges
	default:
		return fmt.Errorf("%w: unsupported trigger %s", ErrInterruptRejected, t)
	}
	if err := rl.req.Reconfigure(opt); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrInterruptRejected, l, t, err)
	}
	return nil
}

// RegisterCallback installs h for edges on l. It replaces any earlier handler.
func (d *RealDriver) RegisterCallback(l Line, h EdgeHandler) error {
	rl, err := d.lookup(l)
	if err != nil {
		return err
	}
	rl.handler.Store(&h)
	return nil
}

// Read returns the logical level of a requested line.
func (d *RealDriver) Read(l Line) (int, error) {
	rl, err := d.lookup(l)
	if err != nil {
		return 0, err
	}
	v, err := rl.req.Value()
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", l, err)
	}
	return v, nil
}

// Write sets the logical level of an output line.
func (d *RealDriver) Write(l Line, v int) error {
	rl, err := d.lookup(l)
	if err != nil {
		return err
	}
	if rl.dir != Output {
		return fmt.Errorf("write %s: not an output", l)
	}
	if err := rl.req.SetValue(v); err != nil {
		return fmt.Errorf("write %s: %w", l, err)
	}
	return nil
}

func (d *RealDriver) lookup(l Line) (*realLine, error) {
	d.mu.RLock()
	rl, ok := d.lines[keyOf(l)]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, l)
	}
	return rl, nil
}

// Release returns one line to input with pull-down and gives it back to
// the kernel.
func (d *RealDriver) Release(l Line) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := keyOf(l)
	rl, ok := d.lines[k]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConfigured, l)
	}
	delete(d.lines, k)
	rl.handler.Store(nil)
	return releaseLine(rl)
}

func releaseLine(rl *realLine) error {
	var errs []error
	if err := rl.req.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure %s: %w", rl.line, err))
	}
	if err := rl.req.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close %s: %w", rl.line, err))
	}
	return errors.Join(errs...)
}

// Close releases all lines and chips.
// Lines are reconfigured to input with pull-down (matching Pi boot defaults)
// before release so LEDs are not left driven across a restart.
func (d *RealDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for k, rl := range d.lines {
		if err := releaseLine(rl); err != nil {
			errs = append(errs, err)
		}
		delete(d.lines, k)
	}
	for name, c := range d.chips {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip %s: %w", name, err))
		}
		delete(d.chips, name)
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// FindLine looks up a named line across all chips. The first chip, in
// kernel order, that has a line with that name wins.
func FindLine(name string) (string, int, error) {
	for _, cname := range gpiocdev.Chips() {
		c, err := gpiocdev.NewChip(cname, gpiocdev.WithConsumer(Consumer))
		if err != nil {
			continue
		}
		off, ok := lineByName(c, name)
		c.Close()
		if ok {
			return cname, off, nil
		}
	}
	return "", 0, fmt.Errorf("%w: %q", ErrLineNotFound, name)
}

func lineByName(c *gpiocdev.Chip, name string) (int, bool) {
	for o := 0; o < c.Lines(); o++ {
		info, err := c.LineInfo(o)
		if err != nil {
			continue
		}
		if info.Name == name {
			return o, true
		}
	}
	return 0, false
}
