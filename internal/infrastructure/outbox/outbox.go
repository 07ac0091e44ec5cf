package outbox

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Zhima-Mochi/minishop-saga/internal/domain/failure"
	domoutbox "github.com/Zhima-Mochi/minishop-saga/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability/logctx"
	workerpresentation "github.com/Zhima-Mochi/minishop-saga/internal/presentation/worker"
)

const (
	componentOutbox    = "outbox"
	defaultQueueSize   = 1024
	defaultConcurrency = 8
	defaultMaxAttempts = 3
	handlerTimeout     = 30 * time.Second
	retryBackoff       = 50 * time.Millisecond
)

var ErrClosed = errors.New("outbox: bus stopped")

// Bus is the in-process event bus used for bus.driver=memory and tests.
// Delivery is at-least-once within the process: a handler error that is not
// deterministic is redelivered up to maxAttempts times.
type Bus struct {
	mu          sync.RWMutex
	subs        map[string][]domoutbox.Handler
	queue       chan domoutbox.Event
	closed      bool
	startOnce   sync.Once
	stopOnce    sync.Once
	cancel      context.CancelFunc
	done        chan struct{}
	pending     atomic.Int64
	concurrency int
	maxAttempts int
	log         observability.Logger
	delivered   observability.Counter
}

type Option func(*Bus)

func WithMaxAttempts(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.maxAttempts = n
		}
	}
}

func WithConcurrency(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

func NewBus(tel observability.Observability, opts ...Option) *Bus {
	tel = observability.Or(tel)
	b := &Bus{
		subs:        make(map[string][]domoutbox.Handler),
		queue:       make(chan domoutbox.Event, defaultQueueSize),
		done:        make(chan struct{}),
		concurrency: defaultConcurrency,
		maxAttempts: defaultMaxAttempts,
		log:         tel.Logger().With(observability.F("component", componentOutbox)),
		delivered:   tel.Metrics().Counter(observability.MEventsDelivered),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) Subscribe(topic string, h domoutbox.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], h)
}

func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
		b.cancel = cancel
		go b.dispatchLoop(bg)
		logctx.FromOr(ctx, b.log).Info("event_bus_started")
	})
}

// Stop refuses new events and lets the dispatcher finish what is queued.
func (b *Bus) Stop(ctx context.Context) {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		close(b.queue)
		b.mu.Unlock()

		select {
		case <-b.done:
		case <-ctx.Done():
			if b.cancel != nil {
				b.cancel()
			}
		}
		logctx.FromOr(ctx, b.log).Info("event_bus_stopped")
	})
}

func (b *Bus) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	b.pending.Add(1)
	select {
	case b.queue <- e:
		logctx.FromOr(ctx, b.log).Debug("event_enqueued",
			observability.F("event", e.EventName()),
			observability.F("key", domoutbox.KeyOf(e)),
		)
		return nil
	case <-ctx.Done():
		b.pending.Add(-1)
		logctx.FromOr(ctx, b.log).Warn("event_enqueue_aborted",
			observability.F("event", e.EventName()),
			observability.F("error", ctx.Err().Error()),
		)
		return ctx.Err()
	}
}

// Drain blocks until every published event, including events published by
// handlers along the way, has been handled.
func (b *Bus) Drain(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if b.pending.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-b.queue:
			if !ok {
				return
			}
			b.fanout(ctx, e)
			b.pending.Add(-1)
		}
	}
}

func (b *Bus) fanout(ctx context.Context, e domoutbox.Event) {
	name := e.EventName()

	b.mu.RLock()
	handlers := append([]domoutbox.Handler(nil), b.subs[name]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.log.Debug("event_dropped_no_subscriber", observability.F("event", name))
		return
	}

	ctx, logger := workerpresentation.WithEventContext(ctx, b.log, map[string]string{
		"event": name,
		"key":   domoutbox.KeyOf(e),
	})
	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup

	for _, h := range handlers {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			b.deliver(ctx, logger, h, e)
		}()
	}
	wg.Wait()

	logger.Debug("event_fanned_out", observability.F("handlers", len(handlers)))
}

// deliver runs h until it acknowledges, the error is deterministic, or the
// attempts run out.
func (b *Bus) deliver(ctx context.Context, logger observability.Logger, h domoutbox.Handler, e domoutbox.Event) {
	for attempt := 1; attempt <= b.maxAttempts; attempt++ {
		err := b.invoke(ctx, h, e)
		if err == nil {
			b.delivered.Add(1,
				observability.L("topic", e.EventName()),
				observability.L("outcome", "acked"),
			)
			return
		}
		logger.Warn("event_handler_error",
			observability.F("attempt", attempt),
			observability.F("error", err.Error()),
		)
		if failure.Deterministic(err) {
			b.delivered.Add(1,
				observability.L("topic", e.EventName()),
				observability.L("outcome", "rejected"),
			)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	// Nothing in-process outlives a restart, so there is no tail to requeue to.
	logger.Error("event_exhausted", observability.F("attempts", b.maxAttempts))
	b.delivered.Add(1,
		observability.L("topic", e.EventName()),
		observability.L("outcome", "exhausted"),
	)
}

func (b *Bus) invoke(ctx context.Context, h domoutbox.Handler, e domoutbox.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event_handler_panic",
				observability.F("event", e.EventName()),
				observability.F("panic", r),
				observability.F("stack", string(debug.Stack())),
			)
			err = errors.New("outbox: handler panicked")
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()
	return h(ctx, e)
}
