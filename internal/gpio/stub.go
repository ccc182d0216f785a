//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealDriver is not available on non-Linux platforms.
type RealDriver struct{}

// NewRealDriver returns an error on non-Linux platforms.
func NewRealDriver() (*RealDriver, error) {
	return nil, errUnsupported
}

func (d *RealDriver) IsReady(l Line) bool                          { return false }
func (d *RealDriver) Configure(l Line, dir Direction) error        { return ErrNotReady }
func (d *RealDriver) ConfigureInterrupt(l Line, t Trigger) error   { return ErrNotReady }
func (d *RealDriver) RegisterCallback(l Line, h EdgeHandler) error { return ErrNotReady }
func (d *RealDriver) Read(l Line) (int, error)                     { return 0, errUnsupported }
func (d *RealDriver) Write(l Line, v int) error                    { return errUnsupported }
func (d *RealDriver) Release(l Line) error                         { return nil }
func (d *RealDriver) Close() error                                 { return nil }

// FindLine is not implemented on non-Linux platforms.
func FindLine(name string) (string, int, error) {
	return "", 0, errUnsupported
}
