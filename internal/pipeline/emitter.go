package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/agentrules/agentrules/internal/domain"
)

// DefaultEventBuffer is the channel capacity used when none is given.
const DefaultEventBuffer = 256

// ChannelEmitter pushes events onto a buffered channel. Lifecycle events block
// until the consumer has room; progress chunks are dropped when the buffer is
// full. The consumer drains Events and calls Close after Run returns.
type ChannelEmitter struct {
	mu      sync.RWMutex
	ch      chan domain.Event
	closed  bool
	dropped atomic.Int64
}

// NewChannelEmitter creates an emitter with the given buffer size.
func NewChannelEmitter(buffer int) *ChannelEmitter {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &ChannelEmitter{ch: make(chan domain.Event, buffer)}
}

// Events returns the receive side of the channel.
func (e *ChannelEmitter) Events() <-chan domain.Event {
	return e.ch
}

// Emit implements domain.EventSink. Events emitted after Close are discarded.
func (e *ChannelEmitter) Emit(ev domain.Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	if ev.Kind == domain.EventPhaseProgress {
		select {
		case e.ch <- ev:
		default:
			e.dropped.Add(1)
		}
		return
	}
	e.ch <- ev
}

// Dropped reports how many progress chunks were discarded.
func (e *ChannelEmitter) Dropped() int64 {
	return e.dropped.Load()
}

// Close closes the channel. It is safe to call more than once.
func (e *ChannelEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}

// MultiSink fans events out to several sinks in order.
type MultiSink []domain.EventSink

// Emit implements domain.EventSink.
func (m MultiSink) Emit(ev domain.Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ev)
		}
	}
}
