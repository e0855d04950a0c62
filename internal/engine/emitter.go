package engine

import (
	"sync"
	"time"

	"github.com/marcohefti/kali-bridge/internal/events"
	"github.com/marcohefti/kali-bridge/internal/schema"
)

// emitter serializes all event emission for one attempt and enforces the
// stream invariants: a single shared byte counter across both streams, at
// most one output_truncated, no chunks after the terminal event, and at most
// one terminal event.
type emitter struct {
	mu   sync.Mutex
	sink events.Sink
	cid  string

	cap       int64
	written   int64
	seen      int64
	truncated bool
	closed    bool
}

func newEmitter(sink events.Sink, correlationID string, outputCap int64) *emitter {
	return &emitter{sink: sink, cid: correlationID, cap: outputCap}
}

func (em *emitter) emit(event string, payload any) {
	em.mu.Lock()
	defer em.mu.Unlock()
	if em.closed {
		return
	}
	em.send(event, payload)
}

// chunk accounts data against the shared cap before emission. A chunk that
// would cross the cap is cut to the remainder (possibly empty); the first
// such cut emits output_truncated and every later chunk is dropped while the
// readers keep draining the pipes.
func (em *emitter) chunk(kind string, data []byte) {
	em.mu.Lock()
	defer em.mu.Unlock()
	if em.closed {
		return
	}

	em.seen += int64(len(data))
	if em.truncated {
		return
	}

	remaining := em.cap - em.written
	if int64(len(data)) > remaining {
		if remaining > 0 {
			part := make([]byte, remaining)
			copy(part, data[:remaining])
			em.written += remaining
			em.send(kind, schema.ChunkPayload{Data: part})
		}
		em.truncated = true
		em.send(schema.EventOutputTruncated, schema.TruncatedPayload{BytesSeen: em.seen, Cap: em.cap})
		return
	}

	part := make([]byte, len(data))
	copy(part, data)
	em.written += int64(len(data))
	em.send(kind, schema.ChunkPayload{Data: part})
}

// terminal emits the closing event and seals the stream.
func (em *emitter) terminal(event string, payload any) {
	em.mu.Lock()
	defer em.mu.Unlock()
	if em.closed {
		return
	}
	em.closed = true
	em.send(event, payload)
}

func (em *emitter) truncatedOnce() bool {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.truncated
}

func (em *emitter) send(event string, payload any) {
	em.sink.Emit(schema.Event{
		TsMs:          time.Now().UnixMilli(),
		CorrelationID: em.cid,
		Event:         event,
		Payload:       payload,
	})
}
