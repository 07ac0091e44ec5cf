package kafka

import (
	"sync"

	kafkago "github.com/segmentio/kafka-go"
)

// commitTracker commits each partition in offset order. Worker slots finish
// out of order, and a group commit means "everything below is done", so an
// offset is only committed once every earlier fetched offset of its
// partition is done too.
type commitTracker struct {
	mu    sync.Mutex
	parts map[int]*partitionQueue
}

type partitionQueue struct {
	fetched []kafkago.Message
	done    map[int64]bool
}

func newCommitTracker() *commitTracker {
	return &commitTracker{parts: make(map[int]*partitionQueue)}
}

// track registers m in fetch order. Call it before m reaches a worker slot.
func (t *commitTracker) track(m kafkago.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, ok := t.parts[m.Partition]
	if !ok {
		q = &partitionQueue{done: make(map[int64]bool)}
		t.parts[m.Partition] = q
	}
	q.fetched = append(q.fetched, m)
}

// settle marks m done and hands the last message of the finished prefix to
// commit. commit runs under the lock so committed offsets never move back.
func (t *commitTracker) settle(m kafkago.Message, commit func(kafkago.Message) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, ok := t.parts[m.Partition]
	if !ok {
		return nil
	}
	q.done[m.Offset] = true

	n := 0
	for n < len(q.fetched) && q.done[q.fetched[n].Offset] {
		delete(q.done, q.fetched[n].Offset)
		n++
	}
	if n == 0 {
		return nil
	}
	last := q.fetched[n-1]
	q.fetched = append(q.fetched[:0:0], q.fetched[n:]...)
	return commit(last)
}
