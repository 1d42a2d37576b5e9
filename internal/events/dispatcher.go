// Package events delivers core notifications to registered listeners.
package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/proximity-voice/internal/core"
)

// Listener handles one event. Listeners must not block for long: they run
// on the dispatcher goroutine.
type Listener func(core.Event)

type Option func(*Dispatcher)

// WithBufferSize sets the event channel buffer size.
func WithBufferSize(size int) Option {
	return func(d *Dispatcher) { d.bufferSize = size }
}

// WithSyncDelivery delivers inline on the emitting goroutine.
func WithSyncDelivery() Option {
	return func(d *Dispatcher) { d.sync = true }
}

// Dispatcher implements core.Emitter. Emit never blocks: when the buffer
// is full the event is dropped and counted.
type Dispatcher struct {
	bufferSize int
	sync       bool
	events     chan core.Event

	mu     sync.RWMutex
	byKind map[core.EventKind][]Listener
	all    []Listener

	dropped   atomic.Uint64
	delivered atomic.Uint64
}

var _ core.Emitter = (*Dispatcher)(nil)

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		bufferSize: 1024,
		byKind:     make(map[core.EventKind][]Listener),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.events = make(chan core.Event, d.bufferSize)
	return d
}

// On registers fn for kind.
func (d *Dispatcher) On(kind core.EventKind, fn Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byKind[kind] = append(d.byKind[kind], fn)
}

// OnAny registers fn for every kind.
func (d *Dispatcher) OnAny(fn Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.all = append(d.all, fn)
}

func (d *Dispatcher) Emit(ev core.Event) {
	if d.sync {
		d.deliver(ev)
		return
	}
	select {
	case d.events <- ev:
	default:
		d.dropped.Add(1)
		log.Warn().Str("module", "events").Str("kind", string(ev.Kind)).Msg("event buffer full, dropping")
	}
}

// Run delivers queued events until ctx is done, then drains what is left.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-d.events:
					d.deliver(ev)
				default:
					return
				}
			}
		case ev := <-d.events:
			d.deliver(ev)
		}
	}
}

func (d *Dispatcher) Dropped() uint64   { return d.dropped.Load() }
func (d *Dispatcher) Delivered() uint64 { return d.delivered.Load() }

func (d *Dispatcher) deliver(ev core.Event) {
	d.mu.RLock()
	listeners := make([]Listener, 0, len(d.all)+len(d.byKind[ev.Kind]))
	listeners = append(listeners, d.all...)
	listeners = append(listeners, d.byKind[ev.Kind]...)
	d.mu.RUnlock()

	for _, fn := range listeners {
		d.call(fn, ev)
	}
	d.delivered.Add(1)
}

func (d *Dispatcher) call(fn Listener, ev core.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "events").Str("kind", string(ev.Kind)).Interface("panic", r).Msg("listener panicked")
		}
	}()
	fn(ev)
}

// LogListener writes every event at debug level.
func LogListener(ev core.Event) {
	log.Debug().
		Str("module", "events").
		Str("kind", string(ev.Kind)).
		Str("source", string(ev.Source)).
		Str("target", string(ev.Target)).
		Msg("voice event")
}
