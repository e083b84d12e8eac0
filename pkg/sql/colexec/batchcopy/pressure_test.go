// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package batchcopy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/owenthereal/duckdb/pkg/sql/colexec/execerror"
)

// TestSinkBlocksFasterProducerUnderMemoryPressure covers invariant 4/5: a
// producer running ahead of the slowest live batch, with no more memory
// to give, is told to block rather than allowed to grow the sink's
// memory usage without bound; once the slowest producer makes progress
// (moving its batch into the raw store), every blocked producer is woken
// so it can re-check whether it is still blocked.
func TestSinkBlocksFasterProducerUnderMemoryPressure(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{batchSize: 1_000_000} // never triggers repartition on its own
	op, err := NewOperator(ctx, Config{
		Backend: backend,
		Factory: fakeFactory{},
		// QueryMaxMemory of 32 caps the budget's own request ceiling at
		// one quarter of that (8 bytes): the very first row (8 bytes at
		// this module's 8-bytes-per-row test accounting) already
		// exhausts it, regardless of how large a reservation the manager
		// itself would otherwise grant.
		MemoryManager:  cappedMemoryManager{limit: 32},
		QueryMaxMemory: 32,
		ColumnCount:    1,
		VectorSize:     1,
	})
	require.NoError(t, err)

	slow := op.NewLocalState()
	fast := op.NewLocalState()

	// The slow producer is the one at min_batch_index; it is never asked
	// to block.
	res, ch, err := op.Sink(ctx, slow, fakeChunk{rows: 1}, PartitionInfo{BatchIndex: 0, MinBatchIndex: 0})
	require.NoError(t, err)
	require.Equal(t, NeedsInput, res)
	require.Nil(t, ch)

	// The fast producer is ahead of min_batch_index and memory is
	// already exhausted: it must block.
	res, ch, err = op.Sink(ctx, fast, fakeChunk{rows: 1}, PartitionInfo{BatchIndex: 5, MinBatchIndex: 0})
	require.NoError(t, err)
	require.Equal(t, Blocked, res)
	require.NotNil(t, ch)

	select {
	case <-ch:
		t.Fatal("blocked producer's channel closed before min_batch_index advanced")
	case <-time.After(10 * time.Millisecond):
	}

	// The slow producer finishes its batch and combines, advancing
	// min_batch_index past the fast producer's blocking condition.
	require.NoError(t, op.NextBatch(ctx, slow, PartitionInfo{BatchIndex: 1, MinBatchIndex: 1}))
	require.NoError(t, op.Combine(ctx, slow, PartitionInfo{MinBatchIndex: 6}))

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("blocked producer was never woken after min_batch_index advanced")
	}
}

// TestAlwaysReportOutOfMemoryForcesBlockingPath exercises the
// verification-mode knob: with it set, a producer ahead of
// min_batch_index blocks even with an otherwise unlimited memory budget.
func TestAlwaysReportOutOfMemoryForcesBlockingPath(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{batchSize: 10}
	op, err := NewOperator(ctx, Config{
		Backend:                 backend,
		Factory:                 fakeFactory{},
		MemoryManager:           unlimitedMemoryManager{},
		QueryMaxMemory:          1 << 30,
		ColumnCount:             1,
		AlwaysReportOutOfMemory: true,
	})
	require.NoError(t, err)

	local := op.NewLocalState()
	res, ch, err := op.Sink(ctx, local, fakeChunk{rows: 1}, PartitionInfo{BatchIndex: 1, MinBatchIndex: 0})
	require.NoError(t, err)
	require.Equal(t, Blocked, res)
	require.NotNil(t, ch)
}

// TestDuplicateBatchIndexIsFatal covers invariant 6: two raw batches
// submitted under the same index is a programmer error in the caller,
// surfaced as a returned error rather than silent data loss or a crash.
func TestDuplicateBatchIndexIsFatal(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{batchSize: 1_000_000}
	op := newTestOperator(t, backend)

	first := op.NewLocalState()
	_, _, err := op.Sink(ctx, first, fakeChunk{rows: 1}, PartitionInfo{BatchIndex: 0, MinBatchIndex: 0})
	require.NoError(t, err)
	require.NoError(t, op.NextBatch(ctx, first, PartitionInfo{BatchIndex: 1, MinBatchIndex: 0}))

	second := op.NewLocalState()
	_, _, err = op.Sink(ctx, second, fakeChunk{rows: 1}, PartitionInfo{BatchIndex: 0, MinBatchIndex: 0})
	require.NoError(t, err)
	err = op.NextBatch(ctx, second, PartitionInfo{BatchIndex: 2, MinBatchIndex: 0})
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate batch index")
}

// TestPopIfFlushableOutOfOrderIsFatal covers invariant 1's enforcement: if
// the lowest remaining prepared index is already behind what the flusher
// is looking for, some earlier batch was lost rather than flushed, and
// popIfFlushable reports that as an error instead of silently skipping
// the gap.
func TestPopIfFlushableOutOfOrderIsFatal(t *testing.T) {
	store := newPreparedBatchStore()
	store.insert(PreparedBatch{Index: 0})

	err := catchPop(store, 2)
	require.Error(t, err)
	require.Contains(t, err.Error(), "out of order")
}

func catchPop(store *preparedBatchStore, want uint64) error {
	return execerror.CatchInternalError(func() {
		store.popIfFlushable(want)
	})
}
