// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package batchcopy

import (
	"context"

	"github.com/owenthereal/duckdb/pkg/sql/colexec/execerror"
	"github.com/owenthereal/duckdb/pkg/util/log"
)

type sinkPhase int

const (
	sinking sinkPhase = iota
	processingTasks
)

// LocalState is per-producer-goroutine state. Callers must create one
// LocalState per goroutine that will call Sink/NextBatch/Combine and must
// never share a LocalState across goroutines.
type LocalState struct {
	phase            sinkPhase
	collection       Collection
	batchIndex       uint64
	localMemoryUsage uint64
	rowsCopied       uint64
	initialized      bool
}

// NewLocalState creates a fresh per-goroutine LocalState.
func (op *Operator) NewLocalState() *LocalState {
	return &LocalState{}
}

// Sink appends chunk, tagged with info, to the calling producer's local
// collection. If the sink is out of memory and this producer is not the
// slowest live one, Sink returns Blocked along with a channel that is
// closed once the caller should retry — because the memory budget grew,
// min_batch_index advanced, or another producer moved a finished batch
// into the raw batch store. The caller
// must not call Sink again on the same LocalState until that happens.
func (op *Operator) Sink(ctx context.Context, local *LocalState, chunk Chunk, info PartitionInfo) (result SinkResult, blocked <-chan struct{}, err error) {
	catchErr := execerror.CatchInternalError(func() {
		result, blocked, err = op.sinkImpl(ctx, local, chunk, info)
	})
	if catchErr != nil {
		return 0, nil, catchErr
	}
	return result, blocked, err
}

func (op *Operator) sinkImpl(ctx context.Context, local *LocalState, chunk Chunk, info PartitionInfo) (SinkResult, <-chan struct{}, error) {
	if local.phase == processingTasks {
		if err := op.executeTasks(ctx); err != nil {
			return 0, nil, err
		}
		if err := op.flush(ctx); err != nil {
			return 0, nil, err
		}
		if info.BatchIndex > op.blocked.minIndex() && op.outOfMemory(ctx, info.BatchIndex) {
			op.blocked.mu.Lock()
			if info.BatchIndex > op.blocked.minIndex() {
				ch := make(chan struct{})
				op.blocked.block(func() { close(ch) })
				op.blocked.mu.Unlock()
				log.VEventf(ctx, 2, "producer for batch %d blocked on memory pressure", info.BatchIndex)
				return Blocked, ch, nil
			}
			op.blocked.mu.Unlock()
		}
		local.phase = sinking
	}

	if info.BatchIndex > op.blocked.minIndex() {
		op.blocked.updateMinBatchIndex(info.MinBatchIndex)
		if op.outOfMemory(ctx, info.BatchIndex) {
			local.phase = processingTasks
			return op.sinkImpl(ctx, local, chunk, info)
		}
	}

	if !local.initialized {
		local.collection = op.factory.NewCollection()
		local.batchIndex = info.BatchIndex
		local.initialized = true
	}

	local.rowsCopied += chunk.RowCount()
	if err := local.collection.Append(ctx, chunk); err != nil {
		return 0, nil, err
	}

	newUsage := local.collection.SizeBytes()
	if newUsage < local.localMemoryUsage {
		execerror.InternalErrorf("batch copy sink: local memory usage decreased from %d to %d", local.localMemoryUsage, newUsage)
	}
	op.unflushedMemory.Add(int64(newUsage - local.localMemoryUsage))
	local.localMemoryUsage = newUsage

	return NeedsInput, nil, nil
}

// outOfMemory reports whether the sink's unflushed memory has reached the
// budget it currently holds. A producer that is not the slowest live one
// (batchIndex > min_batch_index) gets one chance to grow the budget
// before being told it is out of memory.
func (op *Operator) outOfMemory(ctx context.Context, batchIndex uint64) bool {
	if op.cfg.AlwaysReportOutOfMemory {
		return true
	}
	if op.unflushedMemory.Load() < op.budget.current() {
		return false
	}
	op.blocked.mu.Lock()
	defer op.blocked.mu.Unlock()
	if batchIndex > op.blocked.minBatchIndex.Load() {
		before := op.budget.current()
		op.budget.grow(ctx)
		if op.budget.current() > before {
			op.blocked.wakeAllLocked()
		}
		if op.unflushedMemory.Load() < op.budget.current() {
			return false
		}
	}
	return true
}

// NextBatch moves the local collection into the raw batch store under the
// batch index it was accumulated for, attempts a repartition pass, and
// ensures somebody keeps making progress even if every other producer is
// currently blocked, before resetting local to start accumulating batch
// info.BatchIndex.
func (op *Operator) NextBatch(ctx context.Context, local *LocalState, info PartitionInfo) (err error) {
	catchErr := execerror.CatchInternalError(func() {
		err = op.nextBatchImpl(ctx, local, info)
	})
	if catchErr != nil {
		return catchErr
	}
	return err
}

func (op *Operator) nextBatchImpl(ctx context.Context, local *LocalState, info PartitionInfo) error {
	if local.initialized && local.collection.RowCount() > 0 {
		op.storeMu.Lock()
		op.raw.insert(local.batchIndex, RawBatch{Index: local.batchIndex, Collection: local.collection})
		op.repartitionLocked(ctx, info.MinBatchIndex, false)
		op.storeMu.Unlock()

		if !op.blocked.wakeAll() {
			if _, err := op.executeTask(ctx); err != nil {
				return err
			}
			if err := op.flush(ctx); err != nil {
				return err
			}
		}
	}

	op.blocked.updateMinBatchIndex(info.MinBatchIndex)
	local.batchIndex = info.BatchIndex
	local.collection = op.factory.NewCollection()
	local.initialized = true
	local.localMemoryUsage = 0
	local.phase = sinking
	return nil
}

// Combine folds a finishing producer's row count into the sink-wide
// total, marks the sink as having at least one finished producer,
// advances min_batch_index, and drains whatever tasks are now ready.
func (op *Operator) Combine(ctx context.Context, local *LocalState, info PartitionInfo) (err error) {
	catchErr := execerror.CatchInternalError(func() {
		err = op.combineImpl(ctx, local, info)
	})
	if catchErr != nil {
		return catchErr
	}
	return err
}

func (op *Operator) combineImpl(ctx context.Context, local *LocalState, info PartitionInfo) error {
	op.rowsCopied.Add(local.rowsCopied)
	op.anyFinished.Store(true)
	op.blocked.updateMinBatchIndex(info.MinBatchIndex)
	return op.executeTasks(ctx)
}
