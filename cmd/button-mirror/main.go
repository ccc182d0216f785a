// Command button-mirror mirrors GPIO button levels onto LEDs and logs presses.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sweeney/button-mirror/internal/board"
	"github.com/sweeney/button-mirror/internal/channel"
	"github.com/sweeney/button-mirror/internal/config"
	"github.com/sweeney/button-mirror/internal/diag"
	"github.com/sweeney/button-mirror/internal/gpio"
	"github.com/sweeney/button-mirror/internal/mirror"
	"github.com/sweeney/button-mirror/internal/mqtt"
	"github.com/sweeney/button-mirror/internal/status"
	"github.com/sweeney/button-mirror/internal/web"
)

// statusRefresh is how often connection state is copied into the tracker.
const statusRefresh = time.Second

func main() {
	configPath := flag.String("config", "", "YAML config file (empty for built-in defaults)")
	tick := flag.Duration("tick", 0, "Mirror tick period (0 keeps the configured value)")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	httpAddr := flag.String("http", "", `HTTP status address (overrides config, "off" disables)`)
	printState := flag.Bool("print-state", false, "Print current button levels and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if err := applyFlags(cfg, *tick, *broker, *httpAddr); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	if err := run(cfg, *configPath, *printState, logger); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// applyFlags overrides file configuration with non-empty flag values.
func applyFlags(cfg *config.Config, tick time.Duration, broker, httpAddr string) error {
	if tick != 0 {
		cfg.Tick = tick
	}
	if broker != "" {
		cfg.MQTT.Broker = broker
	}
	switch httpAddr {
	case "":
	case "off":
		cfg.HTTP = ""
	default:
		cfg.HTTP = httpAddr
	}
	return cfg.Validate()
}

func newLogger(lc config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func run(cfg *config.Config, configPath string, printState bool, logger *slog.Logger) error {
	driver, err := gpio.NewRealDriver()
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}

	brd := board.New(cfg.Board, gpio.FindLine)

	// Print state mode
	if printState {
		defer driver.Close()
		printLevels(os.Stdout, driver, brd, cfg.Specs())
		return nil
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		TickUs:     cfg.Tick.Microseconds(),
		Broker:     cfg.MQTT.Broker,
		HTTPAddr:   cfg.HTTP,
		ConfigPath: configPath,
	})

	sink := diag.NewSink(cfg.Diag.Buffer, logger)
	sink.Counter = tracker

	var connect func() (telemetry, error)
	if cfg.MQTT.Broker != "" {
		connect = func() (telemetry, error) {
			clientID := fmt.Sprintf("%s-%s", cfg.MQTT.ClientID, tracker.BootID()[:8])
			p, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, clientID, cfg.MQTT.TopicPrefix, tracker.BootID(), logger)
			if err != nil {
				return nil, err
			}
			return p, nil
		}
	}

	m, publisher := startup(driver, brd, cfg.Specs(), tracker, sink, connect, logger)
	if publisher != nil {
		defer publisher.Close()
	}
	defer sink.Close()
	// Deferred last so it runs first: edge delivery stops before the sink drains.
	defer driver.Close()

	var mqttStatus mqtt.ConnectionStatus = publisher
	channels := m.Channels()
	if publisher != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
		snap := tracker.Snapshot()
		startupEvent := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startupEvent); err != nil {
			logger.Warn("failed to publish startup event", "err", err)
		} else {
			logger.Info("published startup event")
		}
	}

	if cfg.HTTP != "" {
		srv := web.New(cfg.HTTP, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server error", "err", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http status server listening", "addr", cfg.HTTP)
	}

	logger.Info("started",
		"channels", len(cfg.Channels),
		"valid", tracker.Snapshot().Valid(),
		"mirrored", len(channels),
		"tick", cfg.Tick,
		"broker", cfg.MQTT.Broker)
	logger.Info("press a button")

	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()
	refresh := time.NewTicker(statusRefresh)
	defer refresh.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(m, publisher, mqttStatus, tracker, logger, ticker.C, refresh.C, sigCh)
}

// telemetry is the MQTT side of the daemon.
type telemetry interface {
	mqtt.Publisher
	mqtt.ConnectionStatus
}

// startup arms every channel, then connects telemetry, then starts the
// diagnostic sink. Buttons are armed before the broker connect, which can
// block for its whole timeout; edges in that window wait in the sink's
// ring. connect may be nil, and a failed connect only disables telemetry.
func startup(d gpio.Driver, r channel.Resolver, specs []channel.Spec, tracker *status.Tracker, sink *diag.Sink, connect func() (telemetry, error), logger *slog.Logger) (*mirror.Mirror, telemetry) {
	channels, reports := channel.Initialize(d, r, specs, sink, logger)
	tracker.SetChannels(reports)
	m := mirror.New(d, channels, tracker)

	var tel telemetry
	if connect != nil {
		p, err := connect()
		if err != nil {
			logger.Warn("mqtt unavailable, continuing without telemetry", "err", err)
		} else {
			tel = p
			sink.Publisher = p
		}
	}

	sink.Start()
	return m, tel
}

// runLoop mirrors once per tick until a signal arrives. The tick is the
// only suspension point; edges are handled on the driver's own goroutine.
func runLoop(m *mirror.Mirror, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, logger *slog.Logger, tick, refresh <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			logger.Info("shutting down", "signal", s)
			if publisher == nil {
				return nil
			}
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: time.Now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				logger.Warn("failed to publish shutdown event", "err", err)
			} else {
				logger.Info("published shutdown event")
			}
			return nil

		case <-refresh:
			if tracker != nil && mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}

		case <-tick:
			m.Tick()
		}
	}
}

// printLevels configures each button as a plain input and prints its level.
func printLevels(w io.Writer, d gpio.Driver, r channel.Resolver, specs []channel.Spec) {
	for _, spec := range specs {
		fmt.Fprintf(w, "%s: %s\n", spec.Name, readState(d, r, spec.Input))
	}
}

func readState(d gpio.Driver, r channel.Resolver, alias string) string {
	l, ok := r.Resolve(alias)
	if !ok || !d.IsReady(l) {
		return "UNAVAILABLE"
	}
	if err := d.Configure(l, gpio.Input); err != nil {
		return "UNAVAILABLE (" + strings.TrimPrefix(err.Error(), "gpio: ") + ")"
	}
	v, err := d.Read(l)
	if err != nil {
		return "ERROR (" + err.Error() + ")"
	}
	return stateString(v != 0)
}

func stateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
