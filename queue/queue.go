// Package queue implements InterestQueue: a strictly FIFO queue of
// (request, on-data, on-timeout) tuples awaiting transmission (spec §4.2),
// grounded directly on original_source/src/interest-queue.cpp's
// push/pop-over-a-std::queue shape and the teacher's channels.go pattern
// of passing explicit tuples between components.
package queue

import (
	"github.com/Eric-lightning/nTorrent/face"
)

// Entry is one queued outbound request and its completion callbacks.
type Entry struct {
	Request   face.Request
	OnData    face.DataCallback
	OnTimeout face.TimeoutCallback
}

// InterestQueue is a strictly FIFO queue. No prioritization, no
// deduplication: callers guarantee they do not enqueue a Name already
// in-flight (tracked by the pipeliner's pendingInterests).
type InterestQueue struct {
	items []Entry
}

func New() *InterestQueue {
	return &InterestQueue{}
}

// Push appends an entry to the tail of the queue.
func (q *InterestQueue) Push(e Entry) {
	q.items = append(q.items, e)
}

// Pop removes and returns the entry at the head of the queue. Callers must
// check Empty first; Pop on an empty queue panics, matching the source's
// unchecked std::queue::front()/pop().
func (q *InterestQueue) Pop() Entry {
	e := q.items[0]
	q.items = q.items[1:]
	return e
}

// Empty reports whether the queue has no entries.
func (q *InterestQueue) Empty() bool {
	return len(q.items) == 0
}

// Len reports the number of queued entries.
func (q *InterestQueue) Len() int {
	return len(q.items)
}
