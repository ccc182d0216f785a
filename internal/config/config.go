// Package config loads the daemon configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/button-mirror/internal/board"
	"github.com/sweeney/button-mirror/internal/channel"
	"github.com/sweeney/button-mirror/internal/diag"
	"github.com/sweeney/button-mirror/internal/mirror"
)

// MaxChannels bounds the number of configured channels.
const MaxChannels = 32

// Config is the daemon configuration, loaded over Default.
type Config struct {
	Tick     time.Duration             `yaml:"tick" validate:"gt=0"`
	Board    map[string]board.LineSpec `yaml:"board" validate:"dive"`
	Channels []ChannelConfig           `yaml:"channels" validate:"min=1,dive"`
	MQTT     MQTTConfig                `yaml:"mqtt"`
	HTTP     string                    `yaml:"http"`
	Diag     DiagConfig                `yaml:"diag"`
	Log      LogConfig                 `yaml:"log"`
}

// ChannelConfig pairs a button alias with an optional LED alias.
type ChannelConfig struct {
	Name   string `yaml:"name" validate:"required"`
	Button string `yaml:"button" validate:"required"`
	LED    string `yaml:"led"`
}

// MQTTConfig configures telemetry. An empty Broker disables it.
type MQTTConfig struct {
	Broker      string `yaml:"broker" validate:"omitempty,url"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix" validate:"required"`
}

// DiagConfig sizes the edge diagnostic buffer.
type DiagConfig struct {
	Buffer int `yaml:"buffer" validate:"min=1"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Default pin assignments (BCM numbering on gpiochip0).
var (
	DefaultButtonPins = []int{17, 27, 22}
	DefaultLEDPins    = []int{5, 6, 13}
)

// Default returns the built-in configuration: three button/LED pairs
// sw0..sw2 -> led0..led2, active-low buttons with pull-ups, 1ms tick.
func Default() *Config {
	cfg := &Config{
		Tick:  mirror.DefaultTick,
		Board: make(map[string]board.LineSpec),
		MQTT: MQTTConfig{
			ClientID:    "button-mirror",
			TopicPrefix: "gpio/button-mirror",
		},
		HTTP: ":8080",
		Diag: DiagConfig{Buffer: diag.DefaultCapacity},
		Log:  LogConfig{Level: "info", Format: "text"},
	}
	for i := range DefaultButtonPins {
		sw := fmt.Sprintf("sw%d", i)
		led := fmt.Sprintf("led%d", i)
		cfg.Board[sw] = board.LineSpec{Chip: "gpiochip0", Offset: DefaultButtonPins[i], ActiveLow: true, Bias: "pull-up"}
		cfg.Board[led] = board.LineSpec{Chip: "gpiochip0", Offset: DefaultLEDPins[i]}
		cfg.Channels = append(cfg.Channels, ChannelConfig{Name: fmt.Sprint(i), Button: sw, LED: led})
	}
	return cfg
}

// Load reads configuration from path on top of Default. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg and validates the result.
// A document that sets board or channels replaces the defaults for that key.
func Parse(data []byte, cfg *Config) error {
	var raw struct {
		Board    map[string]board.LineSpec `yaml:"board"`
		Channels []ChannelConfig           `yaml:"channels"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if raw.Board != nil {
		cfg.Board = nil
	}
	if raw.Channels != nil {
		cfg.Channels = nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

var validate = validator.New()

// Validate checks field constraints and channel name uniqueness.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, e := range verrs {
				msgs[i] = formatValidationMessage(e)
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if len(c.Channels) > MaxChannels {
		return fmt.Errorf("Config.Channels must be at most %d, got %d", MaxChannels, len(c.Channels))
	}

	seen := make(map[string]bool, len(c.Channels))
	for _, ch := range c.Channels {
		if seen[ch.Name] {
			return fmt.Errorf("duplicate channel name %q", ch.Name)
		}
		seen[ch.Name] = true
	}
	return nil
}

func formatValidationMessage(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, e.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a URL", field)
	}
	return fmt.Sprintf("%s failed %s validation", field, e.Tag())
}

// Specs converts the channel list into registry specs.
func (c *Config) Specs() []channel.Spec {
	specs := make([]channel.Spec, len(c.Channels))
	for i, ch := range c.Channels {
		specs[i] = channel.Spec{Name: ch.Name, Input: ch.Button, Output: ch.LED}
	}
	return specs
}
