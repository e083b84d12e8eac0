// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package batchcopy

import (
	"github.com/google/btree"

	"github.com/owenthereal/duckdb/pkg/sql/colexec/execerror"
)

type preparedBatchItem struct {
	index uint64
	batch PreparedBatch
}

func (a *preparedBatchItem) Less(other btree.Item) bool {
	return a.index < other.(*preparedBatchItem).index
}

// preparedBatchStore is the ordered, uint64-keyed map of backend-prepared
// artifacts waiting to be flushed in order. Like rawBatchStore, callers
// must hold Operator.storeMu around every access.
type preparedBatchStore struct {
	tree *btree.BTree
}

func newPreparedBatchStore() *preparedBatchStore {
	return &preparedBatchStore{tree: btree.New(storeBTreeDegree)}
}

// insert adds batch under its own index, raising an internal error on a
// duplicate index.
func (s *preparedBatchStore) insert(batch PreparedBatch) {
	item := &preparedBatchItem{index: batch.Index, batch: batch}
	if existing := s.tree.ReplaceOrInsert(item); existing != nil {
		execerror.InternalErrorf("duplicate batch index %d encountered in prepared batch store", batch.Index)
	}
}

// popIfFlushable removes and returns the lowest-indexed entry only if its
// index equals want. If the lowest entry's index is less than want, the
// flusher has somehow been asked to flush the same prefix twice or an
// earlier batch was lost; that is a fatal internal error, never a silent
// skip. If the lowest index is greater than want, the next batch in order
// simply isn't ready yet and ok is false.
func (s *preparedBatchStore) popIfFlushable(want uint64) (batch PreparedBatch, ok bool) {
	min := s.tree.Min()
	if min == nil {
		return PreparedBatch{}, false
	}
	item := min.(*preparedBatchItem)
	if item.index < want {
		execerror.InternalErrorf("prepared batch index %d flushed out of order, expected at least %d", item.index, want)
	}
	if item.index != want {
		return PreparedBatch{}, false
	}
	s.tree.Delete(min)
	return item.batch, true
}

func (s *preparedBatchStore) len() int {
	return s.tree.Len()
}
