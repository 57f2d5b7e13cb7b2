// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package mail

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Dispatcher defaults.
const (
	DefaultWorkers     = 2
	DefaultQueueSize   = 256
	DefaultMaxRetries  = 4
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 30 * time.Second
	DefaultSendTimeout = 30 * time.Second
)

// Delivery status labels.
const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusDropped = "dropped"
)

// Errors returned by Dispatch.
var (
	ErrQueueFull        = oops.Code("MAIL_QUEUE_FULL").Errorf("mail queue is full")
	ErrDispatcherClosed = oops.Code("MAIL_DISPATCHER_CLOSED").Errorf("mail dispatcher is closed")
)

// Deliveries counts delivery outcomes by template and status.
// Use RegisterMetrics to register this with a Prometheus registry.
var Deliveries = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authgate_mail_deliveries_total",
		Help: "Total number of mail deliveries by template and status",
	},
	[]string{"template", "status"},
)

// RegisterMetrics registers mail package metrics with the given Prometheus registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Deliveries)
}

// DispatcherConfig configures a Dispatcher. Zero values use the defaults.
type DispatcherConfig struct {
	From        string
	Workers     int
	QueueSize   int
	MaxRetries  uint64
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	SendTimeout time.Duration
}

// Dispatcher queues messages and delivers them on background workers.
type Dispatcher struct {
	sender   Sender
	renderer *Renderer
	cfg      DispatcherConfig
	logger   *slog.Logger

	mu     sync.RWMutex
	queue  chan Message
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher and starts its workers.
func NewDispatcher(sender Sender, renderer *Renderer, cfg DispatcherConfig, logger *slog.Logger) (*Dispatcher, error) {
	if sender == nil {
		return nil, oops.Errorf("mail sender is required")
	}
	if renderer == nil {
		renderer = NewRenderer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sender:   sender,
		renderer: renderer,
		cfg:      cfg,
		logger:   logger.With("component", "mail_dispatcher"),
		queue:    make(chan Message, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	d.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go d.work()
	}
	return d, nil
}

// Dispatch queues msg without blocking. It fails only when the queue is full
// or the dispatcher is closed.
func (d *Dispatcher) Dispatch(_ context.Context, msg Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- msg:
		return nil
	default:
		Deliveries.WithLabelValues(msg.Template, StatusDropped).Inc()
		return ErrQueueFull
	}
}

// Close stops accepting messages and waits for queued ones to be delivered.
// If ctx expires first, in-flight retries are canceled and ctx.Err is returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return oops.Code("MAIL_DRAIN_TIMEOUT").Wrap(ctx.Err())
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	html, err := d.renderer.Render(msg.Template, msg.Data)
	if err != nil {
		Deliveries.WithLabelValues(msg.Template, StatusFailed).Inc()
		d.logger.Error("mail render failed", "template", msg.Template, "error", err)
		return
	}

	env := Envelope{From: d.cfg.From, To: msg.To, Subject: msg.Subject, HTML: html}

	backoff := retry.NewExponential(d.cfg.BaseDelay)
	backoff = retry.WithCappedDuration(d.cfg.MaxDelay, backoff)
	backoff = retry.WithJitterPercent(10, backoff)
	backoff = retry.WithMaxRetries(d.cfg.MaxRetries, backoff)

	attempts := 0
	err = retry.Do(d.ctx, backoff, func(ctx context.Context) error {
		attempts++
		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()
		if err := d.sender.Send(sendCtx, env); err != nil {
			d.logger.Warn("mail delivery attempt failed",
				"template", msg.Template,
				"attempt", attempts,
				"error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		Deliveries.WithLabelValues(msg.Template, StatusFailed).Inc()
		d.logger.Error("mail delivery failed",
			"template", msg.Template,
			"attempts", attempts,
			"error", err)
		return
	}
	Deliveries.WithLabelValues(msg.Template, StatusSent).Inc()
}
