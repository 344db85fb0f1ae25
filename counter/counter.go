// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package counter

import (
	"sync/atomic"
)

// Counter - type to denote a counter that can be synchronously increments or decremented
// just a 64 bit unsigned integer
type Counter uint64

// Increment - add 1 to a counter, returns new value
func (ic *Counter) Increment() uint64 {
	return atomic.AddUint64((*uint64)(ic), 1)
}

// Add - add n to a counter, returns new value
func (ic *Counter) Add(n uint64) uint64 {
	return atomic.AddUint64((*uint64)(ic), n)
}

// Decrement - subtract 1 from a counter, returns new value
func (ic *Counter) Decrement() uint64 {
	return atomic.AddUint64((*uint64)(ic), ^uint64(0))
}

// Uint64 - returns current value
func (ic *Counter) Uint64() uint64 {
	return atomic.LoadUint64((*uint64)(ic))
}

// IsZero - check if zero
func (ic *Counter) IsZero() bool {
	return ic.Uint64() == 0
}

// Statistics - medium and allocator activity of a running database
//
// values only ever increase, take two snapshots to get a rate
type Statistics struct {
	PagesRead      Counter
	PagesWritten   Counter
	PagesErased    Counter
	JournalRecords Counter
	Checkpoints    Counter
	CacheHits      Counter
	CacheMisses    Counter
	AuthFailures   Counter
}

// Snapshot - point in time copy of the statistics
type Snapshot struct {
	PagesRead      uint64 `json:"pagesRead"`
	PagesWritten   uint64 `json:"pagesWritten"`
	PagesErased    uint64 `json:"pagesErased"`
	JournalRecords uint64 `json:"journalRecords"`
	Checkpoints    uint64 `json:"checkpoints"`
	CacheHits      uint64 `json:"cacheHits"`
	CacheMisses    uint64 `json:"cacheMisses"`
	AuthFailures   uint64 `json:"authFailures"`
}

// Snapshot - read all counters
func (s *Statistics) Snapshot() Snapshot {
	return Snapshot{
		PagesRead:      s.PagesRead.Uint64(),
		PagesWritten:   s.PagesWritten.Uint64(),
		PagesErased:    s.PagesErased.Uint64(),
		JournalRecords: s.JournalRecords.Uint64(),
		Checkpoints:    s.Checkpoints.Uint64(),
		CacheHits:      s.CacheHits.Uint64(),
		CacheMisses:    s.CacheMisses.Uint64(),
		AuthFailures:   s.AuthFailures.Uint64(),
	}
}
