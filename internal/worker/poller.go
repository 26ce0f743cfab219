package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/queue"
)

var (
	pollerTracer = otel.Tracer("github.com/Additional-Code/orderdesk/worker")
	pollerMeter  = otel.Meter("github.com/Additional-Code/orderdesk/worker")
)

// Handler processes one queue message. A non-nil error leaves the message on the queue.
type Handler func(ctx context.Context, msg queue.Message) error

// HandlerRegistration names a handler contributed to the poller.
type HandlerRegistration struct {
	Name    string
	Handler Handler
}

// State is the observable poller state.
type State int32

const (
	StateIdle State = iota
	StatePolling
)

func (s State) String() string {
	if s == StatePolling {
		return "polling"
	}
	return "idle"
}

// Params collects dependencies via Fx.
type Params struct {
	fx.In

	Queue         queue.Queue
	Logger        *zap.Logger
	Config        config.Config
	Registrations []HandlerRegistration `group:"worker.handlers"`
}

// Poller drains the queue on a fixed delay. Each message is deleted only after every handler
// succeeded on it.
type Poller struct {
	queue    queue.Queue
	logger   *zap.Logger
	cfg      config.Queue
	handlers []HandlerRegistration
	state    atomic.Int32

	processed metric.Int64Counter
	failed    metric.Int64Counter

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller constructs the Poller.
func NewPoller(p Params) (*Poller, error) {
	handlers := make([]HandlerRegistration, 0, len(p.Registrations))
	for _, r := range p.Registrations {
		if r.Handler == nil {
			continue
		}
		handlers = append(handlers, r)
	}

	processed, err := pollerMeter.Int64Counter("queue.messages.processed",
		metric.WithDescription("Queue messages handled and deleted"))
	if err != nil {
		return nil, err
	}
	failed, err := pollerMeter.Int64Counter("queue.messages.failed",
		metric.WithDescription("Queue messages left for redelivery after a handler or delete failure"))
	if err != nil {
		return nil, err
	}

	return &Poller{
		queue:     p.Queue,
		logger:    p.Logger,
		cfg:       p.Config.Queue,
		handlers:  handlers,
		processed: processed,
		failed:    failed,
	}, nil
}

// Module wires the poller into the Fx lifecycle.
var Module = fx.Options(
	fx.Provide(NewPoller),
	fx.Invoke(func(lc fx.Lifecycle, poller *Poller) {
		lc.Append(fx.Hook{
			OnStart: poller.start,
			OnStop:  poller.stop,
		})
	}),
)

// State reports whether a poll is in flight.
func (p *Poller) State() State {
	return State(p.state.Load())
}

// Poll performs a single receive and dispatch cycle and returns the number of messages deleted.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	if !p.state.CompareAndSwap(int32(StateIdle), int32(StatePolling)) {
		return 0, errors.New("poll already in progress")
	}
	defer p.state.Store(int32(StateIdle))

	ctx, span := pollerTracer.Start(ctx, "worker.poll", trace.WithAttributes(
		attribute.String("messaging.destination", p.queue.Name()),
	))
	defer span.End()

	messages, err := p.queue.Receive(ctx, p.cfg.BatchSize, p.cfg.WaitTime)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "receive error")
		return 0, err
	}
	span.SetAttributes(attribute.Int("messaging.batch.message_count", len(messages)))

	deleted := 0
	for _, msg := range messages {
		if err := p.dispatch(ctx, msg); err != nil {
			p.failed.Add(ctx, 1)
			p.logger.Warn("queue message left for redelivery",
				zap.String("queue", p.queue.Name()),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			continue
		}
		if err := p.queue.Delete(ctx, msg); err != nil {
			p.failed.Add(ctx, 1)
			p.logger.Error("delete queue message", zap.String("message_id", msg.ID), zap.Error(err))
			continue
		}
		p.processed.Add(ctx, 1)
		deleted++
	}
	return deleted, nil
}

func (p *Poller) dispatch(ctx context.Context, msg queue.Message) error {
	for _, h := range p.handlers {
		if err := h.Handler(ctx, msg); err != nil {
			return fmt.Errorf("%s: %w", h.Name, err)
		}
	}
	return nil
}

func (p *Poller) enabled() bool {
	return p.cfg.Enabled && p.cfg.Driver != "noop"
}

func (p *Poller) start(context.Context) error {
	if !p.enabled() {
		p.logger.Info("queue poller disabled")
		return nil
	}
	if len(p.handlers) == 0 {
		p.logger.Info("queue poller has no handlers; skipping")
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop(runCtx)
	}()

	p.logger.Info("queue poller started",
		zap.String("queue", p.queue.Name()),
		zap.Duration("interval", p.cfg.PollInterval),
		zap.Int("handlers", len(p.handlers)),
	)
	return nil
}

func (p *Poller) stop(ctx context.Context) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		p.logger.Info("queue poller stopped")
		return nil
	}
}

// loop waits the poll interval after each cycle completes, so cycles never overlap.
func (p *Poller) loop(ctx context.Context) {
	for {
		n, err := p.Poll(ctx)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			p.logger.Error("queue poll failed", zap.String("queue", p.queue.Name()), zap.Error(err))
		case n > 0:
			p.logger.Debug("queue poll completed", zap.Int("deleted", n))
		}

		select {
		case <-time.After(p.cfg.PollInterval):
		case <-ctx.Done():
			return
		}
	}
}
