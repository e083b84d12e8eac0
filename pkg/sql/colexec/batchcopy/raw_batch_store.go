// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package batchcopy

import (
	"github.com/google/btree"

	"github.com/owenthereal/duckdb/pkg/sql/colexec/execerror"
)

// storeBTreeDegree matches the degree kv/txn_interceptor_pipeliner.go uses
// for its in-flight-write index; there is nothing batch-copy-specific
// about the choice, just a reasonable node fanout for an in-memory index
// this small.
const storeBTreeDegree = 32

type rawBatchItem struct {
	index uint64
	batch RawBatch
}

func (a *rawBatchItem) Less(other btree.Item) bool {
	return a.index < other.(*rawBatchItem).index
}

// rawBatchStore is the ordered, uint64-keyed map of not-yet-repartitioned
// raw collections. It is not safe for concurrent use on its own: every
// Operator method that touches it does so while holding Operator.storeMu,
// the same lock that guards preparedBatchStore, so a repartition pass
// observes both stores as a single consistent snapshot.
type rawBatchStore struct {
	tree *btree.BTree
}

func newRawBatchStore() *rawBatchStore {
	return &rawBatchStore{tree: btree.New(storeBTreeDegree)}
}

// insert adds batch under index, raising an internal error if index is
// already present: two producers must never be assigned the same batch
// index by a correct caller.
func (s *rawBatchStore) insert(index uint64, batch RawBatch) {
	item := &rawBatchItem{index: index, batch: batch}
	if existing := s.tree.ReplaceOrInsert(item); existing != nil {
		execerror.InternalErrorf("duplicate batch index %d encountered in raw batch store", index)
	}
}

// drainBelow removes and returns, in ascending index order, every entry
// with index < limit, plus the maximum index removed.
func (s *rawBatchStore) drainBelow(limit uint64) (batches []RawBatch, maxIndex uint64, ok bool) {
	var items []*rawBatchItem
	pivot := &rawBatchItem{index: limit}
	s.tree.AscendLessThan(pivot, func(i btree.Item) bool {
		items = append(items, i.(*rawBatchItem))
		return true
	})
	if len(items) == 0 {
		return nil, 0, false
	}
	batches = make([]RawBatch, len(items))
	for i, item := range items {
		s.tree.Delete(item)
		batches[i] = item.batch
	}
	maxIndex = items[len(items)-1].index
	return batches, maxIndex, true
}

// sumRowsBelow returns the total row count of every entry with index <
// limit, without removing anything.
func (s *rawBatchStore) sumRowsBelow(limit uint64) uint64 {
	var total uint64
	pivot := &rawBatchItem{index: limit}
	s.tree.AscendLessThan(pivot, func(i btree.Item) bool {
		total += i.(*rawBatchItem).batch.Collection.RowCount()
		return true
	})
	return total
}

func (s *rawBatchStore) empty() bool {
	return s.tree.Len() == 0
}
