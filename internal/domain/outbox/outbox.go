package outbox

import "context"

// Event is a saga message; EventName is the topic it travels on.
type Event interface {
	EventName() string
}

// Keyed events pin every message for one aggregate to the same partition.
type Keyed interface {
	PartitionKey() string
}

// Handler processes a delivered event. Returning nil acknowledges it.
type Handler func(ctx context.Context, e Event) error

// Publisher hands events to the bus. Delivery is at-least-once and asynchronous.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers per topic.
type Subscriber interface {
	Subscribe(topic string, h Handler)
}

// KeyOf returns the partition key of e, or "" when e is not Keyed.
func KeyOf(e Event) string {
	if k, ok := e.(Keyed); ok {
		return k.PartitionKey()
	}
	return ""
}
