package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	goCred "github.com/MrEthical07/goCred"
)

var (
	// ErrQueueFull is returned by Notify when the buffer is full and
	// DropIfFull is set.
	ErrQueueFull = errors.New("notify: queue full")
	// ErrClosed is returned by Notify after Close.
	ErrClosed = errors.New("notify: dispatcher closed")
)

// Config controls dispatcher buffering and per-send timeout.
type Config struct {
	BufferSize  int
	DropIfFull  bool
	SendTimeout time.Duration
}

// Dispatcher queues notifications for a single background worker.
type Dispatcher struct {
	cfg    Config
	sender Sender
	logger *slog.Logger
	now    func() time.Time

	ch        chan goCred.Notification
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	sent      atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewDispatcher(cfg Config, sender Sender, logger *slog.Logger) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	if sender == nil {
		sender = LogSender{Logger: logger}
	}

	d := &Dispatcher{
		cfg:    cfg,
		sender: sender,
		logger: logger,
		now:    time.Now,
		ch:     make(chan goCred.Notification, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case n := <-d.ch:
			d.deliver(n)
		case <-d.done:
			for {
				select {
				case n := <-d.ch:
					d.deliver(n)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(n goCred.Notification) {
	msg, err := Render(n, d.now())
	if err != nil {
		d.failed.Add(1)
		d.logger.Error("notify: render failed", "kind", n.Kind, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	if err := d.sender.Send(ctx, msg); err != nil {
		d.failed.Add(1)
		d.logger.Error("notify: delivery failed", "kind", n.Kind, "error", err)
		return
	}
	d.sent.Add(1)
}

// Notify enqueues n. It implements goCred.Notifier.
func (d *Dispatcher) Notify(ctx context.Context, n goCred.Notification) error {
	if d == nil || d.closed.Load() {
		return ErrClosed
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- n:
			return nil
		case <-d.done:
			return ErrClosed
		default:
			d.dropped.Add(1)
			return ErrQueueFull
		}
	}

	select {
	case d.ch <- n:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrClosed
	}
}

// Close stops accepting notifications and waits for queued ones to be sent.
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

func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

func (d *Dispatcher) Failed() uint64 { return d.failed.Load() }

func (d *Dispatcher) Sent() uint64 { return d.sent.Load() }
