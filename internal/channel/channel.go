// Package channel discovers and validates button/LED channels at startup.
//
// Each channel pairs one input line with at most one output line. Input and
// output are validated independently: a channel whose LED cannot be driven
// still reports button presses.
package channel

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sweeney/button-mirror/internal/diag"
	"github.com/sweeney/button-mirror/internal/gpio"
)

// ErrNoOutput marks a channel configured without an LED.
var ErrNoOutput = errors.New("channel: no output line")

// Spec describes one channel by board alias.
type Spec struct {
	Name   string
	Input  string // required, e.g. "sw0"
	Output string // optional, e.g. "led0"
}

// Channel is a validated channel. Its input is configured for reading and
// armed for edge-to-active notifications. It is never modified after
// Initialize returns.
type Channel struct {
	ID            int
	Name          string
	Input         gpio.Line
	Output        gpio.Line
	OutputEnabled bool
}

// Report is the startup outcome for one spec, valid or not.
type Report struct {
	ID            int
	Name          string
	Input         gpio.Line
	Output        gpio.Line
	Valid         bool
	OutputEnabled bool
	InputErr      error
	OutputErr     error
}

// Resolver maps a board alias to a line.
type Resolver interface {
	Resolve(alias string) (gpio.Line, bool)
}

// EdgeRecorder receives edge diagnostics. Edge must not block.
type EdgeRecorder interface {
	Edge(e diag.Edge)
}

type discard struct{}

func (discard) Edge(diag.Edge) {}

// Initialize validates specs in order and returns the channels that can
// take part in mirroring, plus a report for every spec. A failure only ever
// affects the resource it occurred on; there are no retries. An input
// rejected after it was requested is released again. A nil rec discards
// edges.
func Initialize(d gpio.Driver, r Resolver, specs []Spec, rec EdgeRecorder, logger *slog.Logger) ([]Channel, []Report) {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = discard{}
	}

	var channels []Channel
	reports := make([]Report, 0, len(specs))

	for id, spec := range specs {
		rep := Report{ID: id, Name: spec.Name}

		in, err := setupInput(d, r, id, spec, rec)
		rep.Input = in
		if err != nil {
			rep.InputErr = err
			logger.Error("button unavailable, channel disabled", "channel", id, "name", spec.Name, "input", spec.Input, "err", err)
			reports = append(reports, rep)
			continue
		}
		rep.Valid = true
		logger.Info("set up button", "channel", id, "name", spec.Name, "line", in.String())

		out, err := setupOutput(d, r, spec)
		rep.Output = out
		if err != nil {
			rep.OutputErr = err
			if errors.Is(err, ErrNoOutput) {
				logger.Info("no LED for channel", "channel", id, "name", spec.Name)
			} else {
				logger.Warn("LED unavailable; ignoring it", "channel", id, "name", spec.Name, "output", spec.Output, "err", err)
			}
		} else {
			rep.OutputEnabled = true
			logger.Info("set up LED", "channel", id, "name", spec.Name, "line", out.String())
		}

		reports = append(reports, rep)
		channels = append(channels, Channel{
			ID:            id,
			Name:          spec.Name,
			Input:         in,
			Output:        out,
			OutputEnabled: rep.OutputEnabled,
		})
	}

	return channels, reports
}

func setupInput(d gpio.Driver, r Resolver, id int, spec Spec, rec EdgeRecorder) (gpio.Line, error) {
	in, ok := r.Resolve(spec.Input)
	if !ok {
		return gpio.Line{}, fmt.Errorf("%w: %q is not described by the board", gpio.ErrNotReady, spec.Input)
	}
	if !d.IsReady(in) {
		return in, fmt.Errorf("%w: %s", gpio.ErrNotReady, in)
	}
	if err := d.Configure(in, gpio.Input); err != nil {
		return in, fmt.Errorf("configure %s: %w", in, err)
	}
	if err := d.ConfigureInterrupt(in, gpio.EdgeToActive); err != nil {
		return in, release(d, in, fmt.Errorf("configure interrupt on %s: %w", in, err))
	}
	if err := d.RegisterCallback(in, edgeHandler(id, spec.Name, rec)); err != nil {
		return in, release(d, in, fmt.Errorf("register callback on %s: %w", in, err))
	}
	return in, nil
}

// release gives a rejected input back to the driver and returns cause,
// joined with any error from the release itself.
func release(d gpio.Driver, l gpio.Line, cause error) error {
	if err := d.Release(l); err != nil {
		return errors.Join(cause, fmt.Errorf("release %s: %w", l, err))
	}
	return cause
}

func setupOutput(d gpio.Driver, r Resolver, spec Spec) (gpio.Line, error) {
	if spec.Output == "" {
		return gpio.Line{}, ErrNoOutput
	}
	out, ok := r.Resolve(spec.Output)
	if !ok {
		return gpio.Line{}, fmt.Errorf("%w: %q is not described by the board", gpio.ErrNotReady, spec.Output)
	}
	if !d.IsReady(out) {
		return out, fmt.Errorf("%w: %s", gpio.ErrNotReady, out)
	}
	if err := d.Configure(out, gpio.Output); err != nil {
		return out, fmt.Errorf("configure %s: %w", out, err)
	}
	return out, nil
}
