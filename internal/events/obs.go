package events

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/marcohefti/kali-bridge/internal/redact"
	"github.com/marcohefti/kali-bridge/internal/schema"
)

// ObsSink consumes observability events (attempt_started, attempt_finished,
// retry_scheduled). Distinct from Sink so the protocol feed and the
// diagnostics feed can never be cross-wired.
type ObsSink interface {
	Observe(correlationID, event string, payload any)
}

// NewObservability returns the stderr observability sink, or a nop sink
// when the policy disables structured logs.
func NewObservability(w io.Writer, enabled bool) ObsSink {
	if !enabled {
		return nopObs{}
	}
	return &zerologObs{log: zerolog.New(w)}
}

// zerologObs emits the shared event envelope as one JSON line per event.
// Fields are set explicitly rather than via zerolog's global timestamp
// hooks so the envelope shape does not depend on process-wide state.
type zerologObs struct {
	log zerolog.Logger
}

func (z *zerologObs) Observe(correlationID, event string, payload any) {
	e := z.log.Log().
		Int64("ts_ms", time.Now().UnixMilli()).
		Str("correlation_id", correlationID).
		Str("event", event)
	if raw, err := json.Marshal(payload); err == nil {
		red, _ := redact.Text(string(raw))
		e = e.RawJSON("payload", []byte(red))
	}
	e.Send()
}

type nopObs struct{}

func (nopObs) Observe(string, string, any) {}

// ObsCollector records observability events for tests.
type ObsCollector struct {
	mu     sync.Mutex
	events []schema.Event
}

func NewObsCollector() *ObsCollector { return &ObsCollector{} }

func (c *ObsCollector) Observe(correlationID, event string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, schema.Event{
		TsMs:          time.Now().UnixMilli(),
		CorrelationID: correlationID,
		Event:         event,
		Payload:       payload,
	})
}

// Count returns how many events with the given tag were observed for the
// given correlation id (empty id matches all).
func (c *ObsCollector) Count(correlationID, event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Event != event {
			continue
		}
		if correlationID != "" && ev.CorrelationID != correlationID {
			continue
		}
		n++
	}
	return n
}

// Events returns a snapshot in emission order.
func (c *ObsCollector) Events() []schema.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]schema.Event, len(c.events))
	copy(out, c.events)
	return out
}
