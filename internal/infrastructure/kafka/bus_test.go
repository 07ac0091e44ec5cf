package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-saga/internal/domain/failure"
	domorder "github.com/Zhima-Mochi/minishop-saga/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-saga/internal/domain/outbox"
	infraobs "github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-saga/internal/infrastructure/observability/zaplogger"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap/zaptest"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafkago.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) written() []kafkago.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafkago.Message(nil), w.msgs...)
}

type fakeReader struct {
	in        chan kafkago.Message
	mu        sync.Mutex
	committed []int64
	closed    bool
}

func newFakeReader() *fakeReader {
	return &fakeReader{in: make(chan kafkago.Message, 16)}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	select {
	case m := <-r.in:
		return m, nil
	case <-ctx.Done():
		return kafkago.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func newTestBus(t *testing.T) (*Bus, *fakeWriter, *fakeReader) {
	t.Helper()
	tel := infraobs.New(nil, zaplogger.New(zaptest.NewLogger(t)), nil, nil)
	b := NewBus(Config{Brokers: []string{"unused:9092"}, GroupID: "test", Workers: 2, MaxAttempts: 2}, DefaultCodec("test"), tel)
	w := &fakeWriter{}
	r := newFakeReader()
	b.writer = w
	b.newReader = func(string) messageReader { return r }
	return b, w, r
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	c := DefaultCodec("order-service")
	in := domorder.CheckOrderEvent{
		OrderID:    "o-1",
		CustomerID: "c-1",
		Lines:      []domorder.CartLine{{ProductID: "p-1", Amount: 2}},
		OccurredAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	raw, env, err := c.Encode(in, time.Now())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if env.EventType != domoutbox.TopicCheckOrder || env.Producer != "order-service" || env.EventID == "" {
		t.Errorf("Unexpected envelope: %+v", env)
	}

	out, decoded, err := c.Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	got, ok := out.(domorder.CheckOrderEvent)
	if !ok {
		t.Fatalf("Expected CheckOrderEvent, got %T", out)
	}
	if got.OrderID != "o-1" || len(got.Lines) != 1 || got.Lines[0].Amount != 2 {
		t.Errorf("Expected payload to survive, got %+v", got)
	}
	if decoded.EventID != env.EventID {
		t.Errorf("Expected event id %s, got %s", env.EventID, decoded.EventID)
	}
}

func TestCodec_UnknownEventType(t *testing.T) {
	c := NewCodec("test")
	raw, _, err := DefaultCodec("test").Encode(domorder.CheckOrderEvent{OrderID: "o-1"}, time.Now())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, _, err := c.Decode(raw); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("Expected ErrUnknownEvent, got %v", err)
	}
}

func TestHeaderCarrier_SetOverwrites(t *testing.T) {
	var headers []kafkago.Header
	c := headerCarrier{headers: &headers}
	c.Set("traceparent", "a")
	c.Set("traceparent", "b")

	if len(headers) != 1 || c.Get("traceparent") != "b" {
		t.Errorf("Expected one traceparent header with value b, got %v", headers)
	}
	if keys := c.Keys(); len(keys) != 1 || keys[0] != "traceparent" {
		t.Errorf("Expected keys [traceparent], got %v", keys)
	}
}

func TestSlot_StableAndBounded(t *testing.T) {
	for _, key := range []string{"o-1", "o-2", "customer-42"} {
		s := slot([]byte(key), 4)
		if s < 0 || s >= 4 {
			t.Errorf("Expected slot in [0,4), got %d", s)
		}
		if again := slot([]byte(key), 4); again != s {
			t.Errorf("Expected stable slot for %s, got %d then %d", key, s, again)
		}
	}
	if slot(nil, 4) != 0 {
		t.Error("Expected keyless messages on slot 0")
	}
}

func TestBus_PublishKeysByAggregate(t *testing.T) {
	b, w, _ := newTestBus(t)

	if err := b.Publish(context.Background(), domorder.CheckOrderEvent{OrderID: "o-9"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("Expected 1 message written, got %d", len(w.msgs))
	}
	m := w.msgs[0]
	if m.Topic != domoutbox.TopicCheckOrder || string(m.Key) != "o-9" {
		t.Errorf("Expected topic %s key o-9, got %s %s", domoutbox.TopicCheckOrder, m.Topic, m.Key)
	}
	c := headerCarrier{headers: &m.Headers}
	if c.Get("event_type") != domoutbox.TopicCheckOrder || c.Get("event_id") == "" {
		t.Errorf("Expected event headers, got %v", m.Headers)
	}
}

func TestBus_ConsumeHandlesAndCommits(t *testing.T) {
	ctx := context.Background()
	b, _, r := newTestBus(t)

	got := make(chan domorder.CheckOrderEvent, 1)
	b.Subscribe(domoutbox.TopicCheckOrder, func(_ context.Context, e domoutbox.Event) error {
		got <- e.(domorder.CheckOrderEvent)
		return nil
	})
	b.Start(ctx)
	defer b.Stop(ctx)

	raw, _, _ := b.codec.Encode(domorder.CheckOrderEvent{OrderID: "o-1"}, time.Now())
	r.in <- kafkago.Message{Topic: domoutbox.TopicCheckOrder, Key: []byte("o-1"), Value: raw, Offset: 7}

	select {
	case e := <-got:
		if e.OrderID != "o-1" {
			t.Errorf("Expected o-1, got %s", e.OrderID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Handler was not called")
	}
	waitFor(t, func() bool { return len(r.commits()) == 1 })
	if r.commits()[0] != 7 {
		t.Errorf("Expected offset 7 committed, got %v", r.commits())
	}
}

func TestBus_PoisonMessagesAreCommitted(t *testing.T) {
	ctx := context.Background()
	b, w, r := newTestBus(t)

	var (
		mu    sync.Mutex
		calls int
	)
	b.Subscribe(domoutbox.TopicCheckOrder, func(context.Context, domoutbox.Event) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return failure.ErrInvalidState
	})
	b.Start(ctx)
	defer b.Stop(ctx)

	raw, _, _ := b.codec.Encode(domorder.CheckOrderEvent{OrderID: "o-1"}, time.Now())
	r.in <- kafkago.Message{Topic: domoutbox.TopicCheckOrder, Key: []byte("o-1"), Value: []byte("{not json"), Offset: 1}
	r.in <- kafkago.Message{Topic: domoutbox.TopicCheckOrder, Key: []byte("o-1"), Value: raw, Offset: 2}

	waitFor(t, func() bool { return len(r.commits()) > 0 && r.commits()[len(r.commits())-1] == 2 })
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("Expected one attempt for a deterministic failure, got %d", calls)
	}
	dlq := w.written()
	if len(dlq) != 1 || dlq[0].Topic != domoutbox.TopicCheckOrder+".dlq" {
		t.Errorf("Expected the undecodable message on the dead-letter topic, got %v", dlq)
	}
}

func TestBus_CommitsInPartitionOrder(t *testing.T) {
	ctx := context.Background()
	b, _, r := newTestBus(t)

	// Two keys that land on different worker slots.
	slow, fast := "o-0", ""
	for i := 1; fast == ""; i++ {
		if k := fmt.Sprintf("o-%d", i); slot([]byte(k), b.cfg.Workers) != slot([]byte(slow), b.cfg.Workers) {
			fast = k
		}
	}

	release := make(chan struct{})
	handled := make(chan string, 2)
	b.Subscribe(domoutbox.TopicCheckOrder, func(_ context.Context, e domoutbox.Event) error {
		id := e.(domorder.CheckOrderEvent).OrderID
		if id == slow {
			<-release
		}
		handled <- id
		return nil
	})
	b.Start(ctx)
	defer b.Stop(ctx)

	for i, id := range []string{slow, fast} {
		raw, _, _ := b.codec.Encode(domorder.CheckOrderEvent{OrderID: id}, time.Now())
		r.in <- kafkago.Message{Topic: domoutbox.TopicCheckOrder, Partition: 0, Key: []byte(id), Value: raw, Offset: int64(10 + i)}
	}

	select {
	case id := <-handled:
		if id != fast {
			t.Fatalf("Expected %s to finish first, got %s", fast, id)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Fast message was not handled")
	}
	time.Sleep(50 * time.Millisecond)
	if got := r.commits(); len(got) != 0 {
		t.Fatalf("Expected no commit while offset 10 is in flight, got %v", got)
	}

	close(release)
	waitFor(t, func() bool { return len(r.commits()) == 1 })
	if got := r.commits(); got[0] != 11 {
		t.Errorf("Expected one commit covering offset 11, got %v", got)
	}
}

func TestBus_ExhaustedMessageIsRequeuedThenDeadLettered(t *testing.T) {
	ctx := context.Background()
	b, w, r := newTestBus(t)
	b.cfg.Redeliveries = 1
	b.cfg.RedeliveryDelay = time.Millisecond

	b.Subscribe(domoutbox.TopicCheckOrder, func(context.Context, domoutbox.Event) error {
		return errors.New("database unavailable")
	})
	b.Start(ctx)
	defer b.Stop(ctx)

	raw, _, _ := b.codec.Encode(domorder.CheckOrderEvent{OrderID: "o-1"}, time.Now())
	r.in <- kafkago.Message{Topic: domoutbox.TopicCheckOrder, Key: []byte("o-1"), Value: raw, Offset: 3}

	waitFor(t, func() bool { return len(w.written()) == 1 })
	requeued := w.written()[0]
	if requeued.Topic != domoutbox.TopicCheckOrder || string(requeued.Key) != "o-1" {
		t.Fatalf("Expected the message back on its own topic, got %s %s", requeued.Topic, requeued.Key)
	}
	if n := redeliveryOf(requeued); n != 1 {
		t.Errorf("Expected redelivery 1, got %d", n)
	}
	waitFor(t, func() bool { return len(r.commits()) == 1 })

	requeued.Offset = 4
	r.in <- requeued
	waitFor(t, func() bool { return len(w.written()) == 2 })
	dead := w.written()[1]
	if dead.Topic != domoutbox.TopicCheckOrder+".dlq" {
		t.Errorf("Expected dead-letter topic, got %s", dead.Topic)
	}
	waitFor(t, func() bool { return len(r.commits()) == 2 })
	if got := r.commits(); got[1] != 4 {
		t.Errorf("Expected offset 4 committed after dead-lettering, got %v", got)
	}
}

func TestCommitTracker_HoldsBackUntilPrefixIsDone(t *testing.T) {
	tr := newCommitTracker()
	var committed []int64
	commit := func(m kafkago.Message) error {
		committed = append(committed, m.Offset)
		return nil
	}
	msgs := []kafkago.Message{
		{Partition: 0, Offset: 1},
		{Partition: 0, Offset: 2},
		{Partition: 1, Offset: 1},
		{Partition: 0, Offset: 3},
	}
	for _, m := range msgs {
		tr.track(m)
	}

	_ = tr.settle(msgs[3], commit)
	_ = tr.settle(msgs[1], commit)
	if len(committed) != 0 {
		t.Fatalf("Expected nothing committed before offset 1, got %v", committed)
	}
	_ = tr.settle(msgs[2], commit)
	if len(committed) != 1 || committed[0] != 1 {
		t.Fatalf("Expected partition 1 to commit on its own, got %v", committed)
	}
	_ = tr.settle(msgs[0], commit)
	if len(committed) != 2 || committed[1] != 3 {
		t.Errorf("Expected partition 0 to commit through offset 3, got %v", committed)
	}
}
