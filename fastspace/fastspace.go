// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fastspace

import (
	"encoding/binary"
	"sort"

	"github.com/bitmark-inc/logger"

	"github.com/bitmark-inc/pddb/codec"
	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/fault"
)

// Allocation - a page handed out by Allocate and the counter consumed
// by its journal record, which becomes the page's nonce counter
type Allocation struct {
	Page    uint32
	Counter uint64
}

// Counts - number of owned pages in each state
type Counts struct {
	Free      int `json:"free"`
	MaybeUsed int `json:"maybeUsed"`
	Used      int `json:"used"`
	Dirty     int `json:"dirty"`
	Total     int `json:"total"`
}

// FastSpace - the pages owned by one basis and their states
type FastSpace struct {
	log     *logger.L
	journal *Journal
	keys    *codec.Keys

	generation uint64
	counter    uint64 // next counter value to consume
	states     map[uint32]SpaceState
	order      []uint32 // owned pages, ascending
	cursor     int
	pending    int

	current    uint32 // page holding the loaded checkpoint
	hasCurrent bool

	// from journal replay: counter of each page's allocation record and
	// the highest counter of any commit record
	allocated  map[uint32]uint64
	lastCommit uint64
}

// New - an empty structure for a freshly created basis
func New(journal *Journal, keys *codec.Keys, log *logger.L) *FastSpace {
	return &FastSpace{
		log:     log,
		journal: journal,
		keys:    keys,
		counter: 1,
		states:  make(map[uint32]SpaceState),
	}
}

// Load - decode a checkpoint read from page
func Load(journal *Journal, keys *codec.Keys, log *logger.L, page uint32, payload []byte) (*FastSpace, error) {
	if len(payload) < constants.FastSpaceHeaderSize {
		return nil, fault.ErrCorruptRecord
	}

	f := New(journal, keys, log)
	f.generation = binary.LittleEndian.Uint64(payload[0:8])
	f.counter = binary.LittleEndian.Uint64(payload[8:16])
	count := int(binary.LittleEndian.Uint32(payload[16:20]))

	if count > constants.FastSpaceCapacity || len(payload) < constants.FastSpaceHeaderSize+count*constants.PhysPageSize {
		return nil, fault.ErrCorruptRecord
	}

	for i := 0; i < count; i += 1 {
		n := constants.FastSpaceHeaderSize + i*constants.PhysPageSize
		p := PhysPage(binary.LittleEndian.Uint32(payload[n : n+constants.PhysPageSize]))
		if _, ok := f.states[p.Page()]; ok {
			return nil, fault.ErrCorruptRecord
		}
		f.states[p.Page()] = p.State()
	}
	f.reorder()

	f.current = page
	f.hasCurrent = true
	return f, nil
}

// Serialize - checkpoint payload, one vpage
//
// generation u64 || counter u64 || count u32 || reserved u32 || count × physpage u32
func (f *FastSpace) Serialize() []byte {
	payload := make([]byte, constants.VPageSize)
	binary.LittleEndian.PutUint64(payload[0:8], f.generation)
	binary.LittleEndian.PutUint64(payload[8:16], f.counter)
	binary.LittleEndian.PutUint32(payload[16:20], uint32(len(f.order)))

	n := constants.FastSpaceHeaderSize
	for _, page := range f.order {
		binary.LittleEndian.PutUint32(payload[n:n+constants.PhysPageSize], uint32(NewPhysPage(page, f.states[page])))
		n += constants.PhysPageSize
	}
	return payload
}

func (f *FastSpace) reorder() {
	f.order = f.order[:0]
	for page := range f.states {
		f.order = append(f.order, page)
	}
	sort.Slice(f.order, func(i, j int) bool { return f.order[i] < f.order[j] })
	if f.cursor >= len(f.order) {
		f.cursor = 0
	}
}

// Generation - checkpoint generation last written or loaded
func (f *FastSpace) Generation() uint64 {
	return f.generation
}

// Counter - next counter value that will be consumed
func (f *FastSpace) Counter() uint64 {
	return f.counter
}

// Observe - raise the counter above a value seen on the medium
func (f *FastSpace) Observe(count uint64) {
	if count >= f.counter {
		f.counter = count + 1
	}
}

// Pending - records journaled since the last checkpoint
func (f *FastSpace) Pending() int {
	return f.pending
}

// Current - the page holding the active checkpoint
func (f *FastSpace) Current() (uint32, bool) {
	return f.current, f.hasCurrent
}

// State - state of an owned page
func (f *FastSpace) State(page uint32) (SpaceState, bool) {
	s, ok := f.states[page]
	return s, ok
}

// Owns - true if the page belongs to this basis
func (f *FastSpace) Owns(page uint32) bool {
	_, ok := f.states[page]
	return ok
}

// Busy - true if the page is owned and not free
func (f *FastSpace) Busy(page uint32) bool {
	s, ok := f.states[page]
	return ok && Free != s
}

// Available - entries that can still be claimed
func (f *FastSpace) Available() int {
	return constants.FastSpaceCapacity - len(f.order)
}

// Counts - totals per state
func (f *FastSpace) Counts() Counts {
	c := Counts{Total: len(f.order)}
	for _, s := range f.states {
		switch s {
		case Free:
			c.Free += 1
		case MaybeUsed:
			c.MaybeUsed += 1
		case Used:
			c.Used += 1
		case Dirty:
			c.Dirty += 1
		}
	}
	return c
}

// Pages - owned pages in a state, ascending
func (f *FastSpace) Pages(state SpaceState) []uint32 {
	pages := make([]uint32, 0, 16)
	for _, page := range f.order {
		if state == f.states[page] {
			pages = append(pages, page)
		}
	}
	return pages
}

// journal one transition then apply it
func (f *FastSpace) record(page uint32, state SpaceState) (uint64, error) {
	count := f.counter
	f.counter += 1
	if err := f.journal.Append(f.keys, count, NewPhysPage(page, state)); nil != err {
		return 0, err
	}
	f.states[page] = state
	f.pending += 1
	return count, nil
}

// check every page can make the transition before touching any of them
func (f *FastSpace) checkTransition(pages []uint32, to SpaceState) error {
	for _, page := range pages {
		from, ok := f.states[page]
		if !ok || !validTransition(from, to) {
			f.log.Warnf("page: %d  invalid transition %s -> %s", page, from, to)
			return fault.ErrInvalidTransition
		}
	}
	return nil
}

func (f *FastSpace) transition(pages []uint32, to SpaceState) error {
	if err := f.checkTransition(pages, to); nil != err {
		return err
	}
	for _, page := range pages {
		if _, err := f.record(page, to); nil != err {
			return err
		}
	}
	return nil
}

// Claim - add unowned pages to the pool as Free
func (f *FastSpace) Claim(pages []uint32) error {
	if len(pages) > f.Available() {
		return fault.ErrFastSpaceFull
	}
	for _, page := range pages {
		if f.Owns(page) {
			return fault.ErrInvalidTransition
		}
	}
	for _, page := range pages {
		if _, err := f.record(page, Free); nil != err {
			f.reorder()
			return err
		}
	}
	f.reorder()
	return nil
}

// Allocate - count Free pages moved to MaybeUsed
//
// the journal record is durable before the pages are returned, so data
// may be written into them immediately; pages for which exclude returns
// true are skipped
func (f *FastSpace) Allocate(count int, exclude func(uint32) bool) ([]Allocation, error) {
	if count <= 0 {
		return nil, fault.ErrInvalidCount
	}

	candidates := make([]uint32, 0, count)
	n := len(f.order)
	for i := 0; i < n && len(candidates) < count; i += 1 {
		page := f.order[(f.cursor+i)%n]
		if Free != f.states[page] {
			continue
		}
		if nil != exclude && exclude(page) {
			continue
		}
		candidates = append(candidates, page)
	}
	if len(candidates) < count {
		return nil, fault.ErrOutOfSpace
	}

	allocations := make([]Allocation, 0, count)
	for _, page := range candidates {
		c, err := f.record(page, MaybeUsed)
		if nil != err {
			f.abandon(allocations)
			return nil, err
		}
		allocations = append(allocations, Allocation{Page: page, Counter: c})
	}
	f.cursor = (f.cursor + count) % n

	return allocations, nil
}

// pages whose allocation could not complete: recovery reaches the same
// state without a journal record since they never got a table entry
func (f *FastSpace) abandon(allocations []Allocation) {
	for _, a := range allocations {
		f.states[a.Page] = Dirty
	}
}

// Commit - MaybeUsed to Used, once the page's table entry is written
func (f *FastSpace) Commit(pages []uint32) error {
	return f.transition(pages, Used)
}

// Release - Used or MaybeUsed to Dirty, erase is deferred to a scrub
func (f *FastSpace) Release(pages []uint32) error {
	return f.transition(pages, Dirty)
}

// MarkFree - Dirty to Free, only after the page has been erased
func (f *FastSpace) MarkFree(pages []uint32) error {
	return f.transition(pages, Free)
}

// Apply - fold in journal records newer than the checkpoint
//
// returns the number of records applied
func (f *FastSpace) Apply(updates []Update) int {
	applied := 0
	grown := false
	for _, u := range updates {
		page := u.Page.Page()
		if !f.Owns(page) {
			if f.Available() <= 0 {
				f.log.Warnf("page: %d  journal record beyond capacity", page)
				continue
			}
			grown = true
		}
		switch u.Page.State() {
		case MaybeUsed:
			if nil == f.allocated {
				f.allocated = make(map[uint32]uint64)
			}
			f.allocated[page] = u.Counter
		case Used:
			if u.Counter > f.lastCommit {
				f.lastCommit = u.Counter
			}
		}
		f.states[page] = u.Page.State()
		f.Observe(u.Counter)
		applied += 1
	}
	if grown {
		f.reorder()
	}
	f.pending += applied
	return applied
}

// Uncommitted - MaybeUsed pages whose replayed allocation comes after
// the last replayed commit
//
// a batch journals its commits only once all of its table entries are
// written, so any later commit completes every allocation before it;
// these pages belong to a batch that never reached that point and their
// table entries must not be trusted
func (f *FastSpace) Uncommitted() map[uint32]bool {
	pages := make(map[uint32]bool)
	for page, count := range f.allocated {
		if MaybeUsed == f.states[page] && count > f.lastCommit {
			pages[page] = true
		}
	}
	return pages
}

// Adopt - take ownership of a page found live on the medium but absent
// from the checkpoint and journal
func (f *FastSpace) Adopt(page uint32) error {
	if f.Owns(page) {
		return nil
	}
	if f.Available() <= 0 {
		return fault.ErrFastSpaceFull
	}
	f.states[page] = Used
	f.reorder()
	f.pending += 1
	return nil
}

// Recover - reconcile states with the set of pages that carry the
// winning table entry for their vpage
//
//   MaybeUsed + live -> Used      MaybeUsed, not live -> Dirty
//   Used, not live   -> Dirty     Free + live         -> Used
//
// afterwards no live page is Free; returns the number of changes
func (f *FastSpace) Recover(live map[uint32]bool) int {
	changed := 0
	for _, page := range f.order {
		from := f.states[page]
		to := from
		switch from {
		case MaybeUsed:
			if live[page] {
				to = Used
			} else {
				to = Dirty
			}
		case Used:
			if !live[page] {
				to = Dirty
			}
		case Free:
			if live[page] {
				to = Used
			}
		}
		if to != from {
			f.log.Debugf("recover page: %d  %s -> %s", page, from, to)
			f.states[page] = to
			changed += 1
		}
	}
	f.pending += changed
	return changed
}
