package audit

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Redacted replaces metadata values whose key names a credential.
const Redacted = "[redacted]"

// credentialKeys name metadata that must never leave the process. A key
// matches when it equals an entry or ends in "_" plus an entry.
var credentialKeys = []string{"password", "token", "secret", "hash", "code", "otp", "authorization", "cookie"}

// Config controls dispatcher buffering. Now stamps events emitted without a
// timestamp; it defaults to time.Now.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	Now        func() time.Time
}

// Stats counts what the dispatcher did with emitted events.
type Stats struct {
	Delivered  uint64
	Dropped    uint64
	Redacted   uint64
	SinkPanics uint64
}

// Dispatcher relays credential events to a sink on one background worker.
// Events are scrubbed of credential-bearing metadata before they are queued,
// and a panicking sink costs one event, not the worker.
type Dispatcher struct {
	cfg  Config
	sink Sink
	ch   chan Event
	done chan struct{}
	wg   sync.WaitGroup

	delivered  atomic.Uint64
	dropped    atomic.Uint64
	redacted   atomic.Uint64
	sinkPanics atomic.Uint64

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts the worker. It returns nil when cfg is disabled; a
// nil Dispatcher accepts and discards every call.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:  cfg,
		sink: sink,
		ch:   make(chan Event, cfg.BufferSize),
		done: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if recover() != nil {
			d.sinkPanics.Add(1)
		}
	}()
	d.sink.Emit(context.Background(), event)
	d.delivered.Add(1)
}

// Emit queues event. With DropIfFull a full queue drops it; otherwise Emit
// waits for room, ctx or Close.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	event = d.prepare(event)

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.done:
	}
}

// prepare stamps the event and copies its metadata, withholding credential
// values. The caller's map is never modified.
func (d *Dispatcher) prepare(event Event) Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = d.cfg.Now().UTC()
	}
	if len(event.Metadata) == 0 {
		return event
	}
	md := make(map[string]string, len(event.Metadata))
	for k, v := range event.Metadata {
		if isCredentialKey(k) {
			v = Redacted
			d.redacted.Add(1)
		}
		md[k] = v
	}
	event.Metadata = md
	return event
}

func isCredentialKey(key string) bool {
	key = strings.ToLower(key)
	for _, c := range credentialKeys {
		if key == c || strings.HasSuffix(key, "_"+c) {
			return true
		}
	}
	return false
}

// Close stops intake and waits for queued events to reach the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped reports events lost to a full queue or a cancelled context.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Stats returns the dispatcher counters. A nil Dispatcher reports zeros.
func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		Delivered:  d.delivered.Load(),
		Dropped:    d.dropped.Load(),
		Redacted:   d.redacted.Load(),
		SinkPanics: d.sinkPanics.Load(),
	}
}
