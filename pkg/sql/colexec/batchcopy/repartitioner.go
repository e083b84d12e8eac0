// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package batchcopy

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/owenthereal/duckdb/pkg/sql/colexec/execerror"
)

// withinOneVector reports whether size is within one vector's worth of
// rows of target. A raw collection that already lands in that window is
// cheap enough to hand the backend directly rather than copy it chunk by
// chunk into a freshly sized collection — the original operator's
// CorrectSizeForBatch check.
func withinOneVector(size, target, vectorSize uint64) bool {
	var diff uint64
	if size > target {
		diff = size - target
	} else {
		diff = target - size
	}
	return diff < vectorSize
}

// repartitionLocked cuts and merges raw collections below minIndex into
// batchSize-sized PrepareBatchTasks. Called with final true only from
// Finalize, where minIndex is unbounded and every remaining raw batch
// must be scheduled regardless of size. Must be called with op.storeMu
// held.
func (op *Operator) repartitionLocked(ctx context.Context, minIndex uint64, final bool) {
	if op.raw.empty() {
		return
	}
	if !final {
		if op.anyFinished.Load() {
			// A producer has already finished; repartitioning now would
			// race Combine's own drain for no benefit.
			return
		}
		if op.raw.sumRowsBelow(minIndex) < op.batchSize {
			return
		}
	}

	collections, maxIndex, ok := op.raw.drainBelow(minIndex)
	if !ok {
		return
	}

	emit := func(c Collection) {
		idx := op.scheduledIndex.Add(1) - 1
		op.tasks.push(&prepareBatchTask{index: idx, collection: c})
	}

	var current Collection
	for _, raw := range collections {
		collection := raw.Collection
		if current == nil {
			switch {
			case withinOneVector(collection.RowCount(), op.batchSize, op.vectorSize):
				emit(collection)
				continue
			case collection.RowCount() < op.batchSize:
				current = collection
				continue
			default:
				current = op.factory.NewCollection()
			}
		}
		for _, chunk := range collection.Chunks() {
			if err := current.Append(ctx, chunk); err != nil {
				execerror.InternalError(errors.Wrap(err, "repartition: appending chunk"))
			}
			if current.RowCount() >= op.batchSize {
				emit(current)
				current = op.factory.NewCollection()
			}
		}
	}
	if current != nil && current.RowCount() > 0 {
		if final || withinOneVector(current.RowCount(), op.batchSize, op.vectorSize) {
			emit(current)
		} else {
			// Not enough left to justify a batch on its own; put it back
			// under the highest index consumed so the next repartition
			// pass picks it up together with whatever arrives after it.
			op.raw.insert(maxIndex, RawBatch{Index: maxIndex, Collection: current})
		}
	}
}
