// Package kafka carries saga events over Kafka with segmentio/kafka-go.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/Zhima-Mochi/minishop-saga/internal/domain/failure"
	domoutbox "github.com/Zhima-Mochi/minishop-saga/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability"
	"github.com/Zhima-Mochi/minishop-saga/internal/observability/logctx"
	workerpresentation "github.com/Zhima-Mochi/minishop-saga/internal/presentation/worker"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	componentKafka         = "kafka_bus"
	defaultWorkers         = 4
	defaultMaxAttempts     = 3
	defaultRedeliveries    = 10
	defaultRedeliveryDelay = 2 * time.Second
	maxRedeliveryDelay     = 30 * time.Second
	retryBackoff           = 200 * time.Millisecond
	handlerTimeout         = 30 * time.Second

	headerRedelivery = "redelivery"
	deadLetterSuffix = ".dlq"
)

const (
	outcomeAcked        = "acked"
	outcomeRejected     = "rejected"
	outcomeExhausted    = "exhausted"
	outcomeInterrupted  = "interrupted"
	outcomeUndecodable  = "undecodable"
	outcomeRequeued     = "requeued"
	outcomeDeadLettered = "dead_lettered"
)

type Config struct {
	Brokers     []string
	GroupID     string
	Workers     int
	MaxAttempts int
	// Redeliveries is how often a message whose handlers exhausted their
	// attempts goes back to the tail of its topic before the dead-letter topic.
	Redeliveries int
	// RedeliveryDelay grows linearly per redelivery, capped at 30s.
	RedeliveryDelay time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Bus publishes through one hash-balanced writer and consumes each subscribed
// topic with its own group reader. Every handler subscribed to a topic sees
// every message; the offset is committed once all of them are done and every
// earlier offset of the partition is committed.
type Bus struct {
	cfg       Config
	codec     *Codec
	writer    messageWriter
	newReader func(topic string) messageReader
	log       observability.Logger
	tracer    observability.Tracer
	delivered observability.Counter

	mu      sync.RWMutex
	subs    map[string][]domoutbox.Handler
	readers []messageReader
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewBus(cfg Config, codec *Codec, tel observability.Observability) *Bus {
	tel = observability.Or(tel)
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Redeliveries <= 0 {
		cfg.Redeliveries = defaultRedeliveries
	}
	if cfg.RedeliveryDelay <= 0 {
		cfg.RedeliveryDelay = defaultRedeliveryDelay
	}
	b := &Bus{
		cfg:   cfg,
		codec: codec,
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(cfg.Brokers...),
			Balancer:               &kafkago.Hash{},
			RequiredAcks:           kafkago.RequireAll,
			AllowAutoTopicCreation: true,
		},
		log:       tel.Logger().With(observability.F("component", componentKafka)),
		tracer:    tel.Tracer(),
		delivered: tel.Metrics().Counter(observability.MEventsDelivered),
		subs:      make(map[string][]domoutbox.Handler),
	}
	b.newReader = func(topic string) messageReader {
		return kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:        cfg.Brokers,
			GroupID:        cfg.GroupID,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: 0,
		})
	}
	return b
}

func (b *Bus) Subscribe(topic string, h domoutbox.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], h)
}

// Publish writes e keyed by its aggregate id so one saga stays on one partition.
func (b *Bus) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	value, env, err := b.codec.Encode(e, time.Now())
	if err != nil {
		return err
	}
	headers := []kafkago.Header{
		{Key: "event_type", Value: []byte(env.EventType)},
		{Key: "event_id", Value: []byte(env.EventID)},
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{headers: &headers})

	msg := kafkago.Message{
		Topic:   e.EventName(),
		Key:     []byte(domoutbox.KeyOf(e)),
		Value:   value,
		Headers: headers,
		Time:    env.OccurredAt,
	}
	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: publish %s: %w", e.EventName(), err)
	}
	logctx.FromOr(ctx, b.log).Debug("event_published",
		observability.F("event", e.EventName()),
		observability.F("event_id", env.EventID),
	)
	return nil
}

// Start launches one consume loop per subscribed topic.
func (b *Bus) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.mu.Lock()
	topics := make([]string, 0, len(b.subs))
	for t := range b.subs {
		topics = append(topics, t)
	}
	b.mu.Unlock()

	for _, topic := range topics {
		r := b.newReader(topic)
		b.mu.Lock()
		b.readers = append(b.readers, r)
		b.mu.Unlock()

		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.consume(ctx, topic, r)
		}()
	}
	b.log.Info("event_bus_started", observability.F("topics", topics))
}

func (b *Bus) Stop(ctx context.Context) {
	if b.cancel != nil {
		b.cancel()
	}
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for _, r := range b.readers {
		errs = append(errs, r.Close())
	}
	errs = append(errs, b.writer.Close())
	if err := errors.Join(errs...); err != nil {
		b.log.Warn("event_bus_close_failed", observability.F("error", err.Error()))
	}
	b.log.Info("event_bus_stopped")
}

// consume fetches messages and hands them to a worker picked by key, so
// messages for one aggregate are handled in partition order.
func (b *Bus) consume(ctx context.Context, topic string, r messageReader) {
	tracker := newCommitTracker()
	commit := func(m kafkago.Message) error {
		return r.CommitMessages(context.WithoutCancel(ctx), m)
	}

	jobs := make([]chan kafkago.Message, b.cfg.Workers)
	var workers sync.WaitGroup
	for i := range jobs {
		jobs[i] = make(chan kafkago.Message, 64)
		workers.Add(1)
		go func(in <-chan kafkago.Message) {
			defer workers.Done()
			for m := range in {
				if !b.handle(ctx, topic, m) || ctx.Err() != nil {
					// Left uncommitted; it and everything after it in the
					// partition is redelivered after restart.
					continue
				}
				if err := tracker.settle(m, commit); err != nil {
					b.log.Warn("event_commit_failed",
						observability.F("topic", topic),
						observability.F("partition", m.Partition),
						observability.F("offset", m.Offset),
						observability.F("error", err.Error()),
					)
				}
			}
		}(jobs[i])
	}
	defer func() {
		for _, ch := range jobs {
			close(ch)
		}
		workers.Wait()
	}()

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.log.Error("event_fetch_failed",
				observability.F("topic", topic),
				observability.F("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryBackoff):
			}
			continue
		}
		tracker.track(m)
		select {
		case jobs[slot(m.Key, len(jobs))] <- m:
		case <-ctx.Done():
			return
		}
	}
}

func slot(key []byte, n int) int {
	if n <= 1 || len(key) == 0 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write(key)
	return int(h.Sum32() % uint32(n))
}

// handle decodes m and delivers it to every handler of topic, retrying
// non-deterministic failures. It reports whether m is settled and may be
// committed. A message whose handlers exhausted their attempts is requeued at
// the tail of the topic, and past the redelivery limit moved to the
// dead-letter topic, so one failing message never stalls the partition.
func (b *Bus) handle(ctx context.Context, topic string, m kafkago.Message) bool {
	e, env, err := b.codec.Decode(m.Value)
	if err != nil {
		b.log.Error("event_decode_failed",
			observability.F("topic", topic),
			observability.F("offset", m.Offset),
			observability.F("error", err.Error()),
		)
		b.delivered.Add(1, observability.L("topic", topic), observability.L("outcome", outcomeUndecodable))
		return b.forward(ctx, b.log, topic, topic+deadLetterSuffix, m, redeliveryOf(m)) == nil
	}

	ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier{headers: &m.Headers})
	ctx, span := b.tracer.Start(ctx, "Consume."+topic,
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", topic),
		attribute.String("messaging.message_id", env.EventID),
		attribute.Int("messaging.kafka.partition", m.Partition),
	)
	defer span.End()
	ctx, logger := workerpresentation.WithEventContext(ctx, b.log, map[string]string{
		"event_id": env.EventID,
		"event":    topic,
		"key":      string(m.Key),
	})

	b.mu.RLock()
	handlers := append([]domoutbox.Handler(nil), b.subs[topic]...)
	b.mu.RUnlock()

	exhausted := false
	for _, h := range handlers {
		outcome := b.deliver(ctx, logger, span, h, e)
		b.delivered.Add(1, observability.L("topic", topic), observability.L("outcome", outcome))
		switch outcome {
		case outcomeInterrupted:
			return false
		case outcomeExhausted:
			exhausted = true
		}
	}
	if !exhausted {
		return true
	}
	return b.requeue(ctx, logger, topic, m) == nil
}

func (b *Bus) deliver(ctx context.Context, logger observability.Logger, span trace.Span, h domoutbox.Handler, e domoutbox.Event) string {
	for attempt := 1; attempt <= b.cfg.MaxAttempts; attempt++ {
		hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
		err := h(hctx, e)
		cancel()
		if err == nil {
			return outcomeAcked
		}
		span.RecordError(err)
		logger.Warn("event_handler_error",
			observability.F("attempt", attempt),
			observability.F("error", err.Error()),
		)
		if failure.Deterministic(err) {
			return outcomeRejected
		}
		if attempt == b.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return outcomeInterrupted
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	if ctx.Err() != nil {
		return outcomeInterrupted
	}
	return outcomeExhausted
}

// requeue waits out the redelivery delay, then writes m back to the tail of
// topic, or to the dead-letter topic once the redelivery limit is spent.
func (b *Bus) requeue(ctx context.Context, logger observability.Logger, topic string, m kafkago.Message) error {
	n := redeliveryOf(m) + 1
	if n > b.cfg.Redeliveries {
		return b.forward(ctx, logger, topic, topic+deadLetterSuffix, m, n-1)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(b.redeliveryDelay(n)):
	}
	return b.forward(ctx, logger, topic, topic, m, n)
}

func (b *Bus) redeliveryDelay(n int) time.Duration {
	d := time.Duration(n) * b.cfg.RedeliveryDelay
	if d > maxRedeliveryDelay {
		return maxRedeliveryDelay
	}
	return d
}

// forward copies m onto dest with its redelivery count set to n.
func (b *Bus) forward(ctx context.Context, logger observability.Logger, topic, dest string, m kafkago.Message, n int) error {
	headers := append([]kafkago.Header(nil), m.Headers...)
	headerCarrier{headers: &headers}.Set(headerRedelivery, strconv.Itoa(n))
	out := kafkago.Message{
		Topic:   dest,
		Key:     m.Key,
		Value:   m.Value,
		Headers: headers,
		Time:    m.Time,
	}
	if err := b.writer.WriteMessages(context.WithoutCancel(ctx), out); err != nil {
		logger.Error("event_forward_failed",
			observability.F("topic", topic),
			observability.F("destination", dest),
			observability.F("offset", m.Offset),
			observability.F("error", err.Error()),
		)
		return fmt.Errorf("kafka: forward %s to %s: %w", topic, dest, err)
	}

	outcome, event := outcomeRequeued, "event_requeued"
	if dest != topic {
		outcome, event = outcomeDeadLettered, "event_dead_lettered"
	}
	b.delivered.Add(1, observability.L("topic", topic), observability.L("outcome", outcome))
	logger.Warn(event,
		observability.F("topic", topic),
		observability.F("destination", dest),
		observability.F("offset", m.Offset),
		observability.F("redelivery", n),
	)
	return nil
}

func redeliveryOf(m kafkago.Message) int {
	n, err := strconv.Atoi(headerCarrier{headers: &m.Headers}.Get(headerRedelivery))
	if err != nil {
		return 0
	}
	return n
}
