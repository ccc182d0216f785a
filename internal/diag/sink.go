// Package diag is the one-way diagnostic output for edge notifications.
//
// Edge is called from driver event context and must never block: it copies
// the entry into a fixed ring under a short lock and wakes the drain
// goroutine. Logging, MQTT publishing and status counting all happen on the
// drain goroutine.
package diag

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultCapacity is the ring size used when none is configured.
const DefaultCapacity = 256

// Edge associates a monotonic timestamp with the channel whose button
// transitioned toward active.
type Edge struct {
	Channel int
	Name    string
	At      time.Duration
}

// Publisher forwards edges to a telemetry channel.
type Publisher interface {
	PublishEdge(e Edge) error
}

// Counter tallies edges per channel for status reporting.
type Counter interface {
	RecordEdge(channel int, at time.Duration)
}

// Sink buffers edges and hands them to the logger, publisher and counter.
// Publisher and Counter are optional and must be set before Start.
type Sink struct {
	Publisher Publisher
	Counter   Counter

	logger *slog.Logger

	mu   sync.Mutex
	ring *ring

	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	started bool
	closed  bool
}

// NewSink creates a sink holding at most capacity pending edges.
func NewSink(capacity int, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		logger:  logger,
		ring:    newRing(capacity),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start launches the drain goroutine.
func (s *Sink) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.run()
}

// Edge records e without blocking. If the ring is full the oldest pending
// entry is overwritten. Once the sink is closed nothing drains the ring, so
// late edges are only logged.
func (s *Sink) Edge(e Edge) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Info("button pressed after shutdown", "channel", e.Channel, "name", e.Name, "at", e.At)
		return
	}
	s.ring.push(e)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of edges not yet drained.
func (s *Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.len()
}

// Close stops the drain goroutine after emitting anything still pending.
func (s *Sink) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		started := s.started
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		if started {
			<-s.stopped
		} else {
			s.flush()
		}
	})
	return nil
}

func (s *Sink) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.wake:
			s.flush()
		case <-s.done:
			s.flush()
			return
		}
	}
}

// Flush emits all pending edges on the caller's goroutine.
// Intended for tests and for single-threaded use without Start.
func (s *Sink) Flush() {
	s.flush()
}

func (s *Sink) flush() {
	s.mu.Lock()
	edges, dropped := s.ring.drainAll()
	s.mu.Unlock()

	if dropped > 0 {
		s.logger.Warn("diag: buffer full, dropped oldest edges", "dropped", dropped)
	}
	for _, e := range edges {
		s.emit(e)
	}
}

func (s *Sink) emit(e Edge) {
	s.logger.Info("button pressed", "channel", e.Channel, "name", e.Name, "at", e.At)
	if s.Counter != nil {
		s.Counter.RecordEdge(e.Channel, e.At)
	}
	if s.Publisher != nil {
		if err := s.Publisher.PublishEdge(e); err != nil {
			s.logger.Warn("publish edge", "channel", e.Channel, "err", err)
		}
	}
}
