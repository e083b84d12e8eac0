// Copyright 2016 The Cockroach Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package mon is a trimmed reconstruction of cockroach's pkg/sql/mon: a
// shared memory ceiling (BytesMonitor) that independent callers register
// against to get a BoundAccount they can grow or shrink. It is the one
// concrete implementation of batchcopy.TemporaryMemoryManager this module
// ships; production embedders of the batch-copy sink are expected to plug
// in their own query-memory accounting the same way the original DuckDB
// operator plugs into its BufferManager.
package mon

import (
	"context"

	"github.com/owenthereal/duckdb/pkg/util/syncutil"
)

// BytesMonitor tracks how much of a query-wide memory ceiling has been
// handed out across every BoundAccount registered against it. Analogous
// to cockroach's MemoryMonitor, trimmed to the single operation the
// batch-copy sink needs: "how much more can I ask for".
type BytesMonitor struct {
	mu struct {
		syncutil.Mutex
		reserved int64
	}
	queryMaxMemory int64
}

// NewBytesMonitor creates a BytesMonitor that will never grant more than
// queryMaxMemory bytes in total across all of its registered accounts.
func NewBytesMonitor(queryMaxMemory int64) *BytesMonitor {
	return &BytesMonitor{queryMaxMemory: queryMaxMemory}
}

// QueryMaxMemory returns the monitor's total ceiling, the analogue of
// BufferManager.GetQueryMaxMemory in the original implementation.
func (m *BytesMonitor) QueryMaxMemory() int64 {
	return m.queryMaxMemory
}

// Register creates a new BoundAccount tied to this monitor. Each
// registrant (in this module, each batch-copy sink instance) gets its own
// account so that growing or shrinking one account never touches another
// registrant's grant.
func (m *BytesMonitor) Register(_ context.Context) *BoundAccount {
	return &BoundAccount{mon: m}
}

// BoundAccount is a single registrant's view of a BytesMonitor: how much
// it has been granted so far, and the ability to ask the monitor for more
// (or less). It implements batchcopy.TemporaryMemoryState.
type BoundAccount struct {
	mon         *BytesMonitor
	reservation int64
}

// SetRemainingSize requests that this account's reservation be grown (or
// shrunk) to size bytes. The monitor grants as much as fits under its
// remaining, unreserved capacity; SetRemainingSize never blocks and never
// returns an error, matching TemporaryMemoryState::SetRemainingSize in the
// original copy operator, which treats a partial grant as ordinary
// backpressure rather than a failure.
func (b *BoundAccount) SetRemainingSize(_ context.Context, size int64) {
	b.mon.mu.Lock()
	defer b.mon.mu.Unlock()

	available := b.mon.queryMaxMemory - b.mon.mu.reserved + b.reservation
	grant := size
	if grant > available {
		grant = available
	}
	if grant < 0 {
		grant = 0
	}
	b.mon.mu.reserved += grant - b.reservation
	b.reservation = grant
}

// GetReservation returns the number of bytes currently granted to this
// account.
func (b *BoundAccount) GetReservation() int64 {
	return b.reservation
}

// Close releases this account's entire reservation back to the monitor.
// Unlike the spec's MemoryBudget (which never shrinks below its current
// size during the operator's lifetime), Close exists for the monitor's
// own bookkeeping once the operator that registered the account is gone.
func (b *BoundAccount) Close(ctx context.Context) {
	b.SetRemainingSize(ctx, 0)
}
