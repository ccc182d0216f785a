// Package mirror copies button levels to LEDs once per tick.
package mirror

import (
	"time"

	"github.com/sweeney/button-mirror/internal/channel"
	"github.com/sweeney/button-mirror/internal/gpio"
)

// DefaultTick is the mirror period when none is configured.
const DefaultTick = time.Millisecond

// Observer receives per-channel results of each tick.
type Observer interface {
	Level(channel, level int)
	WriteFailed(channel int)
}

// Mirror holds the channels that drive an LED.
type Mirror struct {
	driver   gpio.Driver
	channels []channel.Channel
	observer Observer
}

// New creates a Mirror over the channels with OutputEnabled set.
// observer may be nil.
func New(d gpio.Driver, channels []channel.Channel, observer Observer) *Mirror {
	var active []channel.Channel
	for _, ch := range channels {
		if ch.OutputEnabled {
			active = append(active, ch)
		}
	}
	return &Mirror{driver: d, channels: active, observer: observer}
}

// Channels returns the channels mirrored each tick, in registration order.
func (m *Mirror) Channels() []channel.Channel {
	out := make([]channel.Channel, len(m.channels))
	copy(out, m.channels)
	return out
}

// Tick reads every button and writes its level to the LED.
// A failed read leaves the LED as it was; nothing is written for that
// channel this tick. The level is written even when unchanged.
func (m *Mirror) Tick() {
	for _, ch := range m.channels {
		v, err := m.driver.Read(ch.Input)
		if err != nil {
			continue
		}
		if err := m.driver.Write(ch.Output, v); err != nil {
			if m.observer != nil {
				m.observer.WriteFailed(ch.ID)
			}
			continue
		}
		if m.observer != nil {
			m.observer.Level(ch.ID, v)
		}
	}
}
