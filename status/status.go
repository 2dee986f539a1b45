// Package status provides the default core.StatusSink: an append-only,
// process-local event stream for live progress display. Realtime transports
// (websocket, SSE) subscribe behind the same interface in production.
package status

import (
	"sync"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
)

// Stream is a bounded in-memory status event stream. Safe for concurrent
// access; oldest events are evicted once the cap is reached.
type Stream struct {
	mu     sync.RWMutex
	events []core.StatusEvent
	max    int
	logger logging.Logger
}

// Options configure the stream.
type Options struct {
	// MaxEvents bounds retained events; zero means unlimited.
	MaxEvents int
	Logger    logging.Logger
}

// NewStream constructs an empty status stream. Default cap: 1000 events.
func NewStream(optFns ...func(o *Options)) *Stream {
	opts := Options{MaxEvents: 1000}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Stream{max: opts.MaxEvents, logger: logging.OrNoOp(opts.Logger)}
}

// Publish implements core.StatusSink. It never fails; the error return exists
// only to satisfy the interface contract for durable sinks.
func (s *Stream) Publish(ev core.StatusEvent) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if s.max > 0 && len(s.events) > s.max {
		s.events = s.events[len(s.events)-s.max:]
	}
	s.mu.Unlock()

	s.logger.Debug("status event",
		"ref_id", ev.RefID,
		"level", ev.Level,
		"message", ev.Message,
	)
	return nil
}

// Events returns a copy of the events tagged with the given execution or
// conversation id, in publish order.
func (s *Stream) Events(refID string) []core.StatusEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.StatusEvent
	for _, ev := range s.events {
		if ev.RefID == refID {
			out = append(out, ev)
		}
	}
	return out
}

var _ core.StatusSink = (*Stream)(nil)
