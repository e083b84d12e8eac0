// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package batchcopy

import (
	"container/list"
	"context"
	"sync/atomic"

	"github.com/owenthereal/duckdb/pkg/util/syncutil"
)

// task is the closed, tagged variant of deferred work the sink queues for
// any idle goroutine to pick up. Go has no sum types; restricting run to
// this package gives the same exhaustiveness guarantee a closed enum
// would.
type task interface {
	run(ctx context.Context, op *Operator) error
}

// taskQueue is a FIFO of pending prepare/flush work, independent of the
// store and blocked-task locks: any goroutine may pop a task while another
// holds the store lock. Modeled on the mutex-protected container/list
// queue flowinfra.FlowScheduler uses for pending flows.
type taskQueue struct {
	mu    syncutil.Mutex
	items *list.List
}

func newTaskQueue() *taskQueue {
	return &taskQueue{items: list.New()}
}

func (q *taskQueue) push(t task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items.PushBack(t)
}

// pop removes and returns the oldest queued task, or nil if the queue is
// empty.
func (q *taskQueue) pop() task {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.items.Front()
	if front == nil {
		return nil
	}
	q.items.Remove(front)
	return front.Value.(task)
}

func (q *taskQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// blockedTasks is the registry of producer goroutines parked on memory
// pressure, plus the monotonic min_batch_index every OOM check reads.
// Both live under the same lock because advancing
// the index and waking blocked producers must happen as one atomic step:
// a producer must never be left parked after the index it was waiting on
// has already moved past it.
type blockedTasks struct {
	mu            syncutil.Mutex
	wakers        []func()
	minBatchIndex atomic.Uint64
}

// minIndex returns the current minimum batch index without acquiring the
// lock, for the hot-path checks that only need a snapshot.
func (b *blockedTasks) minIndex() uint64 {
	return b.minBatchIndex.Load()
}

// block registers wake to be called exactly once, the next time the
// minimum batch index advances, the memory budget grows, or a producer
// moves a finished batch into the raw batch store. Must be called
// with mu held by the caller (the caller re-checks its blocking condition
// under the same critical section to avoid missing a wakeup).
func (b *blockedTasks) block(wake func()) {
	b.wakers = append(b.wakers, wake)
}

// wakeAllLocked invokes and clears every registered waker. Must be called
// with mu held.
func (b *blockedTasks) wakeAllLocked() bool {
	if len(b.wakers) == 0 {
		return false
	}
	for _, w := range b.wakers {
		w()
	}
	b.wakers = nil
	return true
}

// wakeAll invokes and clears every registered waker, reporting whether
// anything was woken.
func (b *blockedTasks) wakeAll() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.wakeAllLocked()
}

// updateMinBatchIndex advances the minimum batch index to candidate if it
// is larger than the current value, waking every blocked producer in the
// same critical section. A no-op if candidate does not move the index
// forward.
func (b *blockedTasks) updateMinBatchIndex(candidate uint64) {
	if b.minBatchIndex.Load() >= candidate {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if candidate > b.minBatchIndex.Load() {
		b.minBatchIndex.Store(candidate)
		b.wakeAllLocked()
	}
}
