// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fastspace

import (
	"sort"
	"sync"

	"github.com/bitmark-inc/logger"

	"github.com/bitmark-inc/pddb/codec"
	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/counter"
	"github.com/bitmark-inc/pddb/fault"
	"github.com/bitmark-inc/pddb/pagestore"
)

// Update - one decoded space update record
type Update struct {
	Counter uint64
	Page    PhysPage
}

// Journal - the shared space update region at the start of the medium
//
// records of every basis are interleaved, each encrypted under its own
// basis key, so a basis sees only its own records and the rest reads
// as noise
type Journal struct {
	sync.Mutex

	log      *logger.L
	store    pagestore.PageStore
	pages    uint32
	next     int
	reserve  int
	rollover func() error
	stats    *counter.Statistics
}

// OpenJournal - locate the append position in an existing region
func OpenJournal(store pagestore.PageStore, pages uint32, stats *counter.Statistics, log *logger.L) (*Journal, error) {
	if 0 == pages || pages >= store.PageCount() {
		return nil, fault.ErrInvalidGeometry
	}
	if nil == stats {
		stats = &counter.Statistics{}
	}

	j := &Journal{
		log:   log,
		store: store,
		pages: pages,
		stats: stats,
	}

	// the append position follows the last slot that is not erased
	last := -1
scan:
	for page := int(pages) - 1; page >= 0; page -= 1 {
		data, err := store.ReadPage(uint32(page))
		if nil != err {
			return nil, fault.Medium("read", uint32(page), err)
		}
		for slot := constants.RecordsPerPage - 1; slot >= 0; slot -= 1 {
			if !pagestore.IsErased(data[slot*constants.BlockRecordSize : (slot+1)*constants.BlockRecordSize]) {
				last = page*constants.RecordsPerPage + slot
				break scan
			}
		}
	}
	j.next = last + 1

	log.Debugf("journal pages: %d  records: %d", pages, j.next)
	return j, nil
}

// Capacity - total record slots in the region
func (j *Journal) Capacity() int {
	return int(j.pages) * constants.RecordsPerPage
}

// Used - slots written since the last reset
func (j *Journal) Used() int {
	j.Lock()
	defer j.Unlock()
	return j.next
}

// Remaining - free record slots
func (j *Journal) Remaining() int {
	return j.Capacity() - j.Used()
}

// Fill - fraction of the region in use
func (j *Journal) Fill() float64 {
	return float64(j.Used()) / float64(j.Capacity())
}

// SetRollover - install the handler that folds every mounted basis into
// a checkpoint and resets the region
//
// reserve slots are kept back for the checkpoints themselves
func (j *Journal) SetRollover(rollover func() error, reserve int) {
	j.Lock()
	defer j.Unlock()
	j.rollover = rollover
	j.reserve = reserve
}

// Reserve - ensure n records can be appended, rolling over if needed
//
// must only be called between complete operations, never while a page
// is MaybeUsed
func (j *Journal) Reserve(n int) error {
	j.Lock()
	remaining := j.Capacity() - j.next
	rollover := j.rollover
	reserve := j.reserve
	j.Unlock()

	if remaining >= n+reserve {
		return nil
	}
	if nil != rollover {
		j.log.Infof("journal rollover at %d free records", remaining)
		if err := rollover(); nil != err {
			return err
		}
	}
	if j.Remaining() < n {
		return fault.ErrJournalFull
	}
	return nil
}

// Append - add one record to the tail
func (j *Journal) Append(keys *codec.Keys, count uint64, p PhysPage) error {
	raw, err := codec.SealSpaceUpdate(keys, count, uint32(p))
	if nil != err {
		return err
	}

	j.Lock()
	defer j.Unlock()

	if j.next >= j.Capacity() {
		return fault.ErrJournalFull
	}

	page := uint32(j.next / constants.RecordsPerPage)
	offset := (j.next % constants.RecordsPerPage) * constants.BlockRecordSize

	data, err := j.store.ReadPage(page)
	if nil != err {
		return fault.Medium("read", page, err)
	}
	j.stats.PagesRead.Increment()

	copy(data[offset:], raw)
	if err := j.store.WritePage(page, data); nil != err {
		return fault.Medium("write", page, err)
	}
	j.stats.PagesWritten.Increment()
	j.stats.JournalRecords.Increment()

	j.next += 1
	return nil
}

// Replay - every record of this basis with a counter at or above from,
// in counter order
//
// erased slots, other bases' records and torn writes fail their
// checksum and are skipped
func (j *Journal) Replay(keys *codec.Keys, from uint64) ([]Update, error) {
	j.Lock()
	defer j.Unlock()

	updates := make([]Update, 0, 64)
	skipped := 0
	pages := (j.next + constants.RecordsPerPage - 1) / constants.RecordsPerPage
	for page := 0; page < pages; page += 1 {
		data, err := j.store.ReadPage(uint32(page))
		if nil != err {
			return nil, fault.Medium("read", uint32(page), err)
		}
		j.stats.PagesRead.Increment()

		for slot := 0; slot < constants.RecordsPerPage; slot += 1 {
			raw := data[slot*constants.BlockRecordSize : (slot+1)*constants.BlockRecordSize]
			if pagestore.IsErased(raw) {
				continue
			}
			count, p, err := codec.OpenSpaceUpdate(keys, raw)
			if nil != err {
				skipped += 1
				continue
			}
			if count >= from {
				updates = append(updates, Update{Counter: count, Page: PhysPage(p)})
			}
		}
	}

	sort.Slice(updates, func(i, k int) bool {
		return updates[i].Counter < updates[k].Counter
	})

	j.log.Tracef("replay: %d records  %d not ours", len(updates), skipped)
	return updates, nil
}

// Reset - erase the whole region
func (j *Journal) Reset() error {
	j.Lock()
	defer j.Unlock()

	if err := j.store.EraseRegion(0, j.pages); nil != err {
		return fault.Medium("erase", 0, err)
	}
	j.stats.PagesErased.Add(uint64(j.pages))
	j.next = 0

	j.log.Info("journal reset")
	return nil
}
