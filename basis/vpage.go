// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package basis

import (
	"bytes"
	"sort"
	"strconv"

	"github.com/patrickmn/go-cache"

	"github.com/bitmark-inc/pddb/codec"
	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/fastspace"
	"github.com/bitmark-inc/pddb/fault"
)

// vpages written per allocation batch, bounds the journal records one
// batch needs
const writeBatch = 64

func cacheKey(vpage uint32) string {
	return strconv.FormatUint(uint64(vpage), 10)
}

// ReadVPage - decrypted payload of a vpage, zeros if it is not mapped
func (b *Basis) ReadVPage(vpage uint32) ([]byte, error) {
	if !b.mounted {
		return nil, fault.ErrBasisNotMounted
	}

	payload := make([]byte, constants.VPageSize)
	if cached, ok := b.cache.Get(cacheKey(vpage)); ok {
		b.options.Stats.CacheHits.Increment()
		copy(payload, cached.([]byte))
		return payload, nil
	}

	m, ok := b.table[vpage]
	if !ok {
		return payload, nil
	}
	b.options.Stats.CacheMisses.Increment()

	raw, err := b.store.ReadPage(m.page)
	if nil != err {
		return nil, fault.Medium("read", m.page, err)
	}
	b.options.Stats.PagesRead.Increment()

	_, plain, err := codec.DecryptPage(b.keys, b.name, m.page, vpage, raw)
	if nil != err {
		b.options.Stats.AuthFailures.Increment()
		b.log.Warnf("vpage: %d  page: %d  %s", vpage, m.page, err)
		return nil, err
	}

	b.cache.Set(cacheKey(vpage), plain, cache.DefaultExpiration)
	copy(payload, plain)
	return payload, nil
}

// Mapped - true if the vpage has a physical page
func (b *Basis) Mapped(vpage uint32) bool {
	_, ok := b.table[vpage]
	return ok
}

// MappedRange - mapped vpages in [start, end), ascending
func (b *Basis) MappedRange(start uint32, end uint32) []uint32 {
	vpages := make([]uint32, 0)
	for vpage := range b.table {
		if vpage >= start && vpage < end {
			vpages = append(vpages, vpage)
		}
	}
	sort.Slice(vpages, func(i, j int) bool { return vpages[i] < vpages[j] })
	return vpages
}

// WriteVPages - copy-on-write every vpage into freshly allocated pages
func (b *Basis) WriteVPages(pages map[uint32][]byte) error {
	if !b.mounted {
		return fault.ErrBasisNotMounted
	}

	vpages := make([]uint32, 0, len(pages))
	for vpage, data := range pages {
		if constants.FastSpaceVPage == vpage {
			return fault.ErrInvalidPage
		}
		if len(data) > constants.VPageSize {
			return fault.ErrInvalidPageData
		}
		vpages = append(vpages, vpage)
	}
	sort.Slice(vpages, func(i, j int) bool { return vpages[i] < vpages[j] })

	for len(vpages) > 0 {
		n := len(vpages)
		if n > writeBatch {
			n = writeBatch
		}
		if err := b.writeBatch(vpages[:n], pages); nil != err {
			return err
		}
		vpages = vpages[n:]
	}
	return nil
}

func (b *Basis) writeBatch(vpages []uint32, pages map[uint32][]byte) error {
	if err := b.journal.Reserve(3*len(vpages) + b.options.checkpointReserve()); nil != err {
		return err
	}
	if err := b.ensureFree(len(vpages)); nil != err {
		return err
	}
	allocations, err := b.space.Allocate(len(vpages), b.options.Exclude)
	if nil != err {
		return err
	}

	allocated := make([]uint32, len(allocations))
	for i, a := range allocations {
		allocated[i] = a.Page
	}

	entries := make([]tableEntry, len(vpages))
	for i, vpage := range vpages {
		a := allocations[i]
		raw, err := codec.EncryptPage(b.keys, b.name, a.Page, a.Counter, vpage, pages[vpage])
		if nil == err {
			err = b.store.WritePage(a.Page, raw)
			err = fault.Medium("write", a.Page, err)
		}
		if nil != err {
			b.abandon(allocated)
			return err
		}
		b.options.Stats.PagesWritten.Increment()
		entries[i] = tableEntry{page: a.Page, vpage: vpage, counter: a.Counter}
	}

	if err := b.writeTableEntries(entries); nil != err {
		b.abandon(allocated)
		return err
	}
	if err := b.space.Commit(allocated); nil != err {
		return err
	}

	superseded := make([]uint32, 0)
	for _, e := range entries {
		if old, ok := b.table[e.vpage]; ok {
			superseded = append(superseded, old.page)
		}
		b.table[e.vpage] = mapping{page: e.page, counter: e.counter}

		plain := make([]byte, constants.VPageSize)
		copy(plain, pages[e.vpage])
		b.cache.Set(cacheKey(e.vpage), plain, cache.DefaultExpiration)
	}

	return b.retire(superseded)
}

// pages of a failed batch go straight to Dirty, no entry references them
func (b *Basis) abandon(pages []uint32) {
	if err := b.space.Release(pages); nil != err {
		b.log.Warnf("abandon %d pages: %s", len(pages), err)
	}
}

// scrub the table entries of pages, then release them
func (b *Basis) retire(pages []uint32) error {
	if 0 == len(pages) {
		return nil
	}
	if err := b.scrubTableEntries(pages); nil != err {
		return err
	}
	return b.space.Release(pages)
}

// UnmapVPages - drop mappings and release their pages
func (b *Basis) UnmapVPages(vpages []uint32) error {
	if !b.mounted {
		return fault.ErrBasisNotMounted
	}
	if err := b.journal.Reserve(len(vpages) + b.options.checkpointReserve()); nil != err {
		return err
	}

	pages := make([]uint32, 0, len(vpages))
	for _, vpage := range vpages {
		m, ok := b.table[vpage]
		if !ok {
			continue
		}
		pages = append(pages, m.page)
		delete(b.table, vpage)
		b.cache.Delete(cacheKey(vpage))
	}
	return b.retire(pages)
}

// write sealed entries, one read-modify-write per table page
func (b *Basis) writeTableEntries(entries []tableEntry) error {
	slots := make(map[uint32][]byte, len(entries))
	for _, e := range entries {
		raw, err := codec.SealPTE(b.keys, e.vpage, e.counter)
		if nil != err {
			return err
		}
		slots[e.page] = raw
	}
	return b.updateTable(slots)
}

// replace table entries with noise
func (b *Basis) scrubTableEntries(pages []uint32) error {
	slots := make(map[uint32][]byte, len(pages))
	for _, page := range pages {
		noise, err := codec.Noise(b.options.Random, constants.BlockRecordSize)
		if nil != err {
			return err
		}
		slots[page] = noise
	}
	return b.updateTable(slots)
}

func (b *Basis) updateTable(slots map[uint32][]byte) error {
	byTablePage := make(map[uint32][]uint32)
	for page := range slots {
		if !b.geometry.IsData(page) {
			return fault.ErrInvalidPage
		}
		tablePage, _ := b.geometry.PTELocation(page)
		byTablePage[tablePage] = append(byTablePage[tablePage], page)
	}

	for tablePage, pages := range byTablePage {
		data, err := b.store.ReadPage(tablePage)
		if nil != err {
			return fault.Medium("read", tablePage, err)
		}
		b.options.Stats.PagesRead.Increment()
		for _, page := range pages {
			_, offset := b.geometry.PTELocation(page)
			copy(data[offset:offset+constants.BlockRecordSize], slots[page])
		}
		if err := b.store.WritePage(tablePage, data); nil != err {
			return fault.Medium("write", tablePage, err)
		}
		b.options.Stats.PagesWritten.Increment()
	}
	return nil
}

// free pages this basis could allocate right now
func (b *Basis) available() int {
	n := 0
	for _, page := range b.space.Pages(fastspace.Free) {
		if nil == b.options.Exclude || !b.options.Exclude(page) {
			n += 1
		}
	}
	return n
}

// grow the pool if fewer than n pages can be allocated
func (b *Basis) ensureFree(n int) error {
	short := n - b.available()
	if short <= 0 {
		return nil
	}
	if batch := b.options.claimBatch(); short < batch {
		short = batch
	}
	if short > b.space.Available() {
		short = b.space.Available()
	}
	if short <= 0 {
		return nil
	}
	return b.claim(short)
}

// add up to n unowned data pages, starting at a random point
func (b *Basis) claim(n int) error {
	start, err := b.randomStart()
	if nil != err {
		return err
	}

	pages := make([]uint32, 0, n)
	total := b.geometry.DataPages
	for i := uint32(0); i < total && len(pages) < n; i += 1 {
		page := b.geometry.DataPage((start + i) % total)
		if b.space.Owns(page) {
			continue
		}
		if nil != b.options.Exclude && b.options.Exclude(page) {
			continue
		}
		pages = append(pages, page)
	}
	if 0 == len(pages) {
		return fault.ErrOutOfSpace
	}
	b.log.Debugf("claim %d pages", len(pages))
	return b.space.Claim(pages)
}

// Scrub - erase up to max Dirty pages, fill them with noise and return
// them to Free
func (b *Basis) Scrub(max int) (int, error) {
	if !b.mounted {
		return 0, fault.ErrBasisNotMounted
	}
	dirty := b.space.Pages(fastspace.Dirty)
	if len(dirty) > max {
		dirty = dirty[:max]
	}
	if 0 == len(dirty) {
		return 0, nil
	}
	if err := b.journal.Reserve(len(dirty) + b.options.checkpointReserve()); nil != err {
		return 0, err
	}

	for _, page := range dirty {
		if err := b.store.EraseRegion(page, 1); nil != err {
			return 0, fault.Medium("erase", page, err)
		}
		b.options.Stats.PagesErased.Increment()

		noise, err := codec.Noise(b.options.Random, constants.PageSize)
		if nil != err {
			return 0, err
		}
		if err := b.store.WritePage(page, noise); nil != err {
			return 0, fault.Medium("write", page, err)
		}
		b.options.Stats.PagesWritten.Increment()
	}
	if err := b.scrubTableEntries(dirty); nil != err {
		return 0, err
	}
	if err := b.space.MarkFree(dirty); nil != err {
		return 0, err
	}
	return len(dirty), nil
}

// Checkpoint - write the allocator at a new generation
//
// does not reserve journal space so it can run inside a rollover
func (b *Basis) Checkpoint() error {
	if !b.mounted {
		return fault.ErrBasisNotMounted
	}
	if err := b.ensureFree(1); nil != err {
		return err
	}
	if err := b.space.Checkpoint(b, b.options.Exclude); nil != err {
		return err
	}
	b.options.Stats.Checkpoints.Increment()
	return nil
}

// StoreFastSpace - write and verify a checkpoint page
func (b *Basis) StoreFastSpace(a fastspace.Allocation, payload []byte) error {
	vpage := uint32(constants.FastSpaceVPage)
	raw, err := codec.EncryptPage(b.keys, b.name, a.Page, a.Counter, vpage, payload)
	if nil != err {
		return err
	}
	if err := b.store.WritePage(a.Page, raw); nil != err {
		return fault.Medium("write", a.Page, err)
	}
	b.options.Stats.PagesWritten.Increment()

	entry := tableEntry{page: a.Page, vpage: vpage, counter: a.Counter}
	if err := b.writeTableEntries([]tableEntry{entry}); nil != err {
		return err
	}

	check, err := b.store.ReadPage(a.Page)
	if nil == err {
		var plain []byte
		_, plain, err = codec.DecryptPage(b.keys, b.name, a.Page, vpage, check)
		if nil == err && !bytes.Equal(plain, payload) {
			err = fault.ErrCheckpointVerifyFailed
		}
	}
	if nil != err {
		b.log.Errorf("checkpoint page: %d  verify error: %s", a.Page, err)
		if e := b.scrubTableEntries([]uint32{a.Page}); nil != e {
			b.log.Warnf("scrub page: %d  error: %s", a.Page, e)
		}
		return fault.ErrCheckpointVerifyFailed
	}

	b.table[vpage] = mapping{page: a.Page, counter: a.Counter}
	return nil
}

// RetireFastSpace - scrub the superseded checkpoint's table entry
func (b *Basis) RetireFastSpace(page uint32) error {
	return b.scrubTableEntries([]uint32{page})
}
