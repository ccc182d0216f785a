// Package gpio provides the digital line driver used by the button mirror.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"fmt"
	"time"
)

// Errors reported by drivers. Callers match them with errors.Is.
var (
	ErrNotReady          = errors.New("gpio: device not ready")
	ErrConfigRejected    = errors.New("gpio: pin configuration rejected")
	ErrInterruptRejected = errors.New("gpio: interrupt configuration rejected")
	ErrNotConfigured     = errors.New("gpio: line not configured")
	ErrLineNotFound      = errors.New("gpio: line not found")
)

// Bias selects the internal pull applied to an input line.
type Bias string

const (
	BiasAsIs     Bias = ""
	BiasPullUp   Bias = "pull-up"
	BiasPullDown Bias = "pull-down"
	BiasDisabled Bias = "disabled"
)

// Line identifies a single digital line on a chip.
// It is a value type and is never modified once resolved.
type Line struct {
	Name      string // logical name, for diagnostics only
	Chip      string // e.g. "gpiochip0"
	Offset    int
	ActiveLow bool
	Bias      Bias
}

// String returns "chip:offset", with the logical name if one is set.
func (l Line) String() string {
	if l.Name != "" {
		return fmt.Sprintf("%s (%s:%d)", l.Name, l.Chip, l.Offset)
	}
	return fmt.Sprintf("%s:%d", l.Chip, l.Offset)
}

type lineKey struct {
	chip   string
	offset int
}

func keyOf(l Line) lineKey {
	return lineKey{chip: l.Chip, offset: l.Offset}
}

// Direction is the configured direction of a line.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Trigger selects which logical transitions raise an edge notification.
type Trigger int

const (
	EdgeToActive Trigger = iota
	EdgeToInactive
	EdgeBoth
)

func (t Trigger) String() string {
	switch t {
	case EdgeToActive:
		return "edge-to-active"
	case EdgeToInactive:
		return "edge-to-inactive"
	case EdgeBoth:
		return "edge-both"
	}
	return fmt.Sprintf("trigger(%d)", int(t))
}

// matches reports whether a transition to the given logical level fires t.
func (t Trigger) matches(active bool) bool {
	switch t {
	case EdgeToActive:
		return active
	case EdgeToInactive:
		return !active
	case EdgeBoth:
		return true
	}
	return false
}

// Edge is a single edge notification. It carries no state beyond the
// transition direction and a monotonic timestamp.
type Edge struct {
	Line      Line
	Active    bool          // true for an inactive->active transition
	Timestamp time.Duration // monotonic, relative to an arbitrary origin
}

// EdgeHandler is called from the driver's event context.
// Implementations must return promptly and must not call back into the driver.
type EdgeHandler func(Edge)

// Driver is the hardware abstraction the mirror consumes.
// Levels are logical: 1 is active, 0 is inactive.
type Driver interface {
	// IsReady reports whether the line's backing device exists.
	IsReady(l Line) bool

	// Configure requests the line in the given direction.
	Configure(l Line, dir Direction) error

	// ConfigureInterrupt arms edge detection on an input line.
	ConfigureInterrupt(l Line, t Trigger) error

	// RegisterCallback installs the handler for edges on an input line.
	RegisterCallback(l Line, h EdgeHandler) error

	// Read returns the current logical level.
	Read(l Line) (int, error)

	// Write sets the logical level of an output line.
	Write(l Line, v int) error

	// Release returns a single line to an unrequested state.
	Release(l Line) error

	// Close releases all lines.
	Close() error
}
