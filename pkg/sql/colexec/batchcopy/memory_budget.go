// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package batchcopy

import (
	"context"
	"sync/atomic"
)

// memoryBudget is this sink's view of a registered TemporaryMemoryState:
// how much it has reserved so far, capped at one quarter of the engine's
// query-max memory, and a one-way latch that freezes growth once the
// manager stops granting more than was already held. Mirrors
// FixedBatchCopyGlobalState's SetMemorySize/IncreaseMemory/OutOfMemory
// trio from the original operator.
type memoryBudget struct {
	state      TemporaryMemoryState
	requestCap int64

	currentVal atomic.Int64
	frozen     atomic.Bool
}

func newMemoryBudget(state TemporaryMemoryState, queryMaxMemory int64) *memoryBudget {
	cap := queryMaxMemory / 4
	if cap <= 0 {
		cap = queryMaxMemory
	}
	return &memoryBudget{state: state, requestCap: cap}
}

func (b *memoryBudget) current() int64 {
	return b.currentVal.Load()
}

func (b *memoryBudget) isFrozen() bool {
	return b.frozen.Load()
}

// reserve asks the manager to grow this sink's reservation to target,
// capped at one quarter of query-max memory, and records whatever was
// actually granted. A grant that did not increase the reservation at
// all freezes further growth for the operator's remaining lifetime:
// the manager has signaled it has nothing more to give.
func (b *memoryBudget) reserve(ctx context.Context, target int64) {
	if target > b.requestCap {
		target = b.requestCap
	}
	prev := b.currentVal.Load()
	if target <= prev {
		return
	}
	b.state.SetRemainingSize(ctx, target)
	granted := b.state.GetReservation()
	if granted <= prev {
		b.frozen.Store(true)
	}
	if granted > prev {
		b.currentVal.Store(granted)
	}
}

// grow requests double the current reservation. A no-op once frozen or
// before an initial reserve has been made.
func (b *memoryBudget) grow(ctx context.Context) {
	if b.frozen.Load() {
		return
	}
	cur := b.currentVal.Load()
	if cur <= 0 {
		return
	}
	b.reserve(ctx, cur*2)
}
