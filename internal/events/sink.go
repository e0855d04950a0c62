// Package events carries the bridge's two event channels: protocol events
// (the stdout state feed the agent consumes) and observability events (the
// stderr diagnostics channel). Sinks are the only polymorphism in the
// bridge: a line-JSON writer for production and an in-memory collector for
// tests.
package events

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/marcohefti/kali-bridge/internal/schema"
)

// Sink consumes protocol events. Emit must be safe for concurrent use; the
// engine's reader goroutines emit chunks from two streams at once.
type Sink interface {
	Emit(ev schema.Event)
}

// LineWriter writes one JSON object per line. Writes are serialized so
// concurrent emitters never interleave bytes within a line.
type LineWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewLineWriter(w io.Writer) *LineWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &LineWriter{enc: enc}
}

func (l *LineWriter) Emit(ev schema.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	// An unwritable stdout means the consumer is gone; there is nowhere
	// left to report to, so the error is dropped.
	_ = l.enc.Encode(ev)
}

// Collector accumulates events in memory for tests and for adapters that
// aggregate a whole run before responding (MCP tools/call, workflow steps).
type Collector struct {
	mu     sync.Mutex
	events []schema.Event
}

func NewCollector() *Collector { return &Collector{} }

func (c *Collector) Emit(ev schema.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

// Reset discards everything collected so far.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// Events returns a snapshot in emission order.
func (c *Collector) Events() []schema.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]schema.Event, len(c.events))
	copy(out, c.events)
	return out
}

// Stream reassembles the bytes emitted as chunk events of the given kind
// (schema.EventStdoutChunk or schema.EventStderrChunk), in emission order.
func (c *Collector) Stream(kind string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []byte
	for _, ev := range c.events {
		if ev.Event != kind {
			continue
		}
		if p, ok := ev.Payload.(schema.ChunkPayload); ok {
			out = append(out, p.Data...)
		}
	}
	return out
}

// Truncated reports whether an output_truncated event was emitted.
func (c *Collector) Truncated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range c.events {
		if ev.Event == schema.EventOutputTruncated {
			return true
		}
	}
	return false
}
