// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package syncutil provides thin wrappers around sync primitives that
// document locking intent at call sites. Callers that need to enforce a
// particular lock-acquisition order (e.g. batchcopy's store lock before its
// blocked-task lock) should say so in a comment next to the field, not rely
// on the race detector to catch a violation after the fact.
package syncutil

import "sync"

// A Mutex is a mutual exclusion lock. It is a renamed sync.Mutex so that
// grep for syncutil.Mutex reliably finds every lock declared by this
// module, independent of any stdlib sync.Mutex a vendored dependency might
// declare.
type Mutex struct {
	sync.Mutex
}

// An RWMutex is a reader/writer mutual exclusion lock.
type RWMutex struct {
	sync.RWMutex
}
