// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package batchcopy

import "context"

// prepareBatchTask asks the backend to turn a repartitioned collection
// into a flushable artifact. Its memory footprint is measured from the
// raw collection before handing it to the backend, not from whatever the
// backend's own artifact occupies.
type prepareBatchTask struct {
	index      uint64
	collection Collection
}

func (t *prepareBatchTask) run(ctx context.Context, op *Operator) error {
	memoryUsage := t.collection.SizeBytes()

	if err := op.prepareSem.Acquire(ctx, 1); err != nil {
		return err
	}
	artifact, err := op.backend.PrepareBatch(ctx, op.global, t.collection)
	op.prepareSem.Release(1)
	if err != nil {
		return err
	}

	op.storeMu.Lock()
	op.prepared.insert(PreparedBatch{Index: t.index, Artifact: artifact, MemoryUsage: memoryUsage})
	needsFlushTask := t.index == op.flushedIndex.Load()
	op.storeMu.Unlock()

	if needsFlushTask {
		op.tasks.push(&flushTask{})
	}
	return nil
}

// flushTask drains whatever in-order prefix of prepared batches is ready.
type flushTask struct{}

func (t *flushTask) run(ctx context.Context, op *Operator) error {
	return op.flush(ctx)
}
