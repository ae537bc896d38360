package pipeline

import (
	"sync"

	"github.com/uykb/hypejk/internal/domain"
)

// pushOutcome describes what a push did to the queue.
type pushOutcome int

const (
	pushAccepted pushOutcome = iota
	// pushEvictedSnapshot: the queue was full and its oldest snapshot batch
	// was dropped to make room.
	pushEvictedSnapshot
	// pushDroppedSnapshot: the queue was full of live batches and the incoming
	// snapshot was dropped.
	pushDroppedSnapshot
	// pushOverflow: the queue was full of live batches and the incoming live
	// batch was kept anyway.
	pushOverflow
)

func (o pushOutcome) String() string {
	switch o {
	case pushEvictedSnapshot:
		return "snapshot_evicted"
	case pushDroppedSnapshot:
		return "snapshot_dropped"
	case pushOverflow:
		return "overflow"
	default:
		return "accepted"
	}
}

// accountQueue is the FIFO between one account's feed and its worker. It is
// bounded for snapshot batches only: live fills are never discarded, so under
// sustained overload it grows past capacity instead.
type accountQueue struct {
	account  string
	capacity int

	mu      sync.Mutex
	batches []domain.SubscriptionBatch

	// ready holds at most one wake-up for the worker.
	ready chan struct{}
}

func newAccountQueue(account string, capacity int) *accountQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &accountQueue{
		account:  account,
		capacity: capacity,
		batches:  make([]domain.SubscriptionBatch, 0, capacity),
		ready:    make(chan struct{}, 1),
	}
}

// push appends batch without blocking and wakes the worker.
func (q *accountQueue) push(batch domain.SubscriptionBatch) pushOutcome {
	q.mu.Lock()
	outcome := pushAccepted
	if len(q.batches) >= q.capacity {
		idx := -1
		for i, b := range q.batches {
			if b.IsSnapshot {
				idx = i
				break
			}
		}
		switch {
		case idx >= 0:
			q.batches = append(q.batches[:idx], q.batches[idx+1:]...)
			outcome = pushEvictedSnapshot
		case batch.IsSnapshot:
			q.mu.Unlock()
			return pushDroppedSnapshot
		default:
			outcome = pushOverflow
		}
	}
	q.batches = append(q.batches, batch)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return outcome
}

// pop removes the oldest batch.
func (q *accountQueue) pop() (domain.SubscriptionBatch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.batches) == 0 {
		return domain.SubscriptionBatch{}, false
	}
	b := q.batches[0]
	q.batches[0] = domain.SubscriptionBatch{}
	q.batches = q.batches[1:]
	return b, true
}

func (q *accountQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.batches)
}
