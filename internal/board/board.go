// Package board resolves logical line aliases (sw0, led0, ...) to concrete
// GPIO lines, the way a board description maps names to pins.
package board

import (
	"github.com/sweeney/button-mirror/internal/gpio"
)

// LineSpec describes one line in the board table.
// If Chip is empty the alias (or Line, when set) is looked up by line name.
type LineSpec struct {
	Chip      string `yaml:"chip"`
	Offset    int    `yaml:"offset" validate:"min=0"`
	Line      string `yaml:"line"`
	ActiveLow bool   `yaml:"active_low"`
	Bias      string `yaml:"bias" validate:"omitempty,oneof=pull-up pull-down disabled"`
}

// Finder looks up a line by its kernel name.
type Finder func(name string) (chip string, offset int, err error)

// Board maps aliases to lines.
type Board struct {
	aliases map[string]LineSpec
	find    Finder
}

// New creates a Board from an alias table. find may be nil, in which case
// only table entries with an explicit chip resolve.
func New(aliases map[string]LineSpec, find Finder) *Board {
	m := make(map[string]LineSpec, len(aliases))
	for k, v := range aliases {
		m[k] = v
	}
	return &Board{aliases: m, find: find}
}

// Resolve returns the line for alias. ok is false when the alias is not
// described by the board, which callers treat as "device not ready".
func (b *Board) Resolve(alias string) (gpio.Line, bool) {
	if alias == "" {
		return gpio.Line{}, false
	}

	spec, inTable := b.aliases[alias]
	if inTable && spec.Chip != "" {
		return lineFrom(alias, spec.Chip, spec.Offset, spec), true
	}

	name := alias
	if inTable && spec.Line != "" {
		name = spec.Line
	}
	if b.find == nil {
		return gpio.Line{}, false
	}
	chip, offset, err := b.find(name)
	if err != nil {
		return gpio.Line{}, false
	}
	return lineFrom(alias, chip, offset, spec), true
}

func lineFrom(alias, chip string, offset int, spec LineSpec) gpio.Line {
	return gpio.Line{
		Name:      alias,
		Chip:      chip,
		Offset:    offset,
		ActiveLow: spec.ActiveLow,
		Bias:      gpio.Bias(spec.Bias),
	}
}
