// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package basis

import (
	"encoding/binary"
	"sort"

	"github.com/bitmark-inc/logger"
	"github.com/patrickmn/go-cache"

	"github.com/bitmark-inc/pddb/codec"
	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/dictcache"
	"github.com/bitmark-inc/pddb/fastspace"
	"github.com/bitmark-inc/pddb/fault"
	"github.com/bitmark-inc/pddb/pagestore"
)

// MountResult - outcome of a mount attempt
type MountResult int

// a missing basis and a wrong key both give WrongPassword
const (
	Success MountResult = iota
	WrongPassword
	Corrupt
)

func (r MountResult) String() string {
	switch r {
	case Success:
		return "Success"
	case WrongPassword:
		return "WrongPassword"
	case Corrupt:
		return "Corrupt"
	}
	return "Unknown"
}

type mapping struct {
	page    uint32
	counter uint64
}

// Basis - one mounted basis
//
// not safe for concurrent use, callers serialise all access
type Basis struct {
	log      *logger.L
	name     string
	keys     *codec.Keys
	store    pagestore.PageStore
	geometry pagestore.Geometry
	journal  *fastspace.Journal
	space    *fastspace.FastSpace
	options  Options

	table   map[uint32]mapping
	cache   *cache.Cache
	dicts   map[string]*dictcache.DictCacheEntry
	windows map[uint32]string
	root    rootRecord
	mounted bool
}

func newBasis(store pagestore.PageStore, geometry pagestore.Geometry, journal *fastspace.Journal, name string, keys *codec.Keys, options Options) *Basis {
	options.setDefaults()
	return &Basis{
		log:      logger.New("basis"),
		name:     name,
		keys:     keys,
		store:    store,
		geometry: geometry,
		journal:  journal,
		options:  options,
		table:    make(map[uint32]mapping),
		cache:    cache.New(options.CacheExpiry, options.CacheCleanup),
		dicts:    make(map[string]*dictcache.DictCacheEntry),
		windows:  make(map[uint32]string),
		root:     rootRecord{name: name},
		mounted:  true,
	}
}

// Create - initialise a new basis and leave it mounted
//
// fails if a basis of this name already exists under this key
func Create(store pagestore.PageStore, geometry pagestore.Geometry, journal *fastspace.Journal, name string, key []byte, options Options) (*Basis, error) {
	keys, err := codec.DeriveKeys(name, key)
	if nil != err {
		return nil, err
	}

	b := newBasis(store, geometry, journal, name, keys, options)

	entries, err := b.scanTable()
	if nil != err {
		keys.Zero()
		return nil, err
	}
	if _, _, ok := b.bestCheckpoint(entries); ok {
		keys.Zero()
		return nil, fault.ErrBasisExists
	}

	b.space = fastspace.New(journal, keys, b.log)
	for _, e := range entries {
		b.space.Observe(e.counter)
	}

	if err := journal.Reserve(b.options.Pool + 2*b.options.checkpointReserve()); nil != err {
		keys.Zero()
		return nil, err
	}
	if err := b.claim(b.options.Pool); nil != err {
		keys.Zero()
		return nil, err
	}
	if err := b.WriteVPages(map[uint32][]byte{constants.RootVPage: b.root.marshal()}); nil != err {
		keys.Zero()
		return nil, err
	}
	if err := b.Checkpoint(); nil != err {
		keys.Zero()
		return nil, err
	}

	b.log.Infof("created basis with %d pages", b.options.Pool)
	return b, nil
}

// a verified page table entry
type tableEntry struct {
	page    uint32
	vpage   uint32
	counter uint64
}

// every table slot that opens under this basis' key
func (b *Basis) scanTable() ([]tableEntry, error) {
	g := b.geometry
	entries := make([]tableEntry, 0, 64)
	for tablePage := g.JournalPages; tablePage < g.DataStart; tablePage += 1 {
		data, err := b.store.ReadPage(tablePage)
		if nil != err {
			return nil, fault.Medium("read", tablePage, err)
		}
		b.options.Stats.PagesRead.Increment()

		first := g.DataStart + (tablePage-g.JournalPages)*constants.PTEsPerPage
		for slot := uint32(0); slot < constants.PTEsPerPage; slot += 1 {
			page := first + slot
			if page >= g.Pages {
				break
			}
			raw := data[slot*constants.BlockRecordSize : (slot+1)*constants.BlockRecordSize]
			vpage, count, err := codec.OpenPTE(b.keys, raw)
			if nil != err {
				continue
			}
			entries = append(entries, tableEntry{page: page, vpage: vpage, counter: count})
		}
	}
	return entries, nil
}

// highest generation checkpoint that decrypts
func (b *Basis) bestCheckpoint(entries []tableEntry) (*fastspace.FastSpace, tableEntry, bool) {
	var best *fastspace.FastSpace
	var bestEntry tableEntry
	for _, e := range entries {
		if constants.FastSpaceVPage != e.vpage {
			continue
		}
		raw, err := b.store.ReadPage(e.page)
		if nil != err {
			b.log.Warnf("checkpoint page: %d  read error: %s", e.page, err)
			continue
		}
		_, payload, err := codec.DecryptPage(b.keys, b.name, e.page, e.vpage, raw)
		if nil != err {
			continue
		}
		f, err := fastspace.Load(b.journal, b.keys, b.log, e.page, payload)
		if nil != err {
			b.log.Warnf("checkpoint page: %d  error: %s", e.page, err)
			continue
		}
		if nil == best || f.Generation() > best.Generation() {
			best = f
			bestEntry = e
		}
	}
	return best, bestEntry, nil != best
}

// Mount - rebuild a basis from the medium
//
// the result is the same WrongPassword for a wrong key and for a basis
// that does not exist
func Mount(store pagestore.PageStore, geometry pagestore.Geometry, journal *fastspace.Journal, name string, key []byte, options Options) (*Basis, MountResult, error) {
	keys, err := codec.DeriveKeys(name, key)
	if nil != err {
		return nil, WrongPassword, err
	}

	b := newBasis(store, geometry, journal, name, keys, options)
	result, err := b.rebuild()
	if nil != err {
		b.log.Info("mount failed")
		keys.Zero()
		b.cache.Flush()
		return nil, result, err
	}

	b.log.Infof("mounted generation: %d  dicts: %d", b.space.Generation(), len(b.dicts))
	return b, Success, nil
}

func (b *Basis) rebuild() (MountResult, error) {
	entries, err := b.scanTable()
	if nil != err {
		return Corrupt, err
	}

	space, current, ok := b.bestCheckpoint(entries)
	if !ok {
		for _, e := range entries {
			if constants.FastSpaceVPage == e.vpage {
				// the key opened a table entry, so this is a damaged basis
				return Corrupt, fault.ErrCorruptJournal
			}
		}
		return WrongPassword, fault.ErrAuthenticationFailed
	}
	b.space = space

	updates, err := b.journal.Replay(b.keys, space.Counter())
	if nil != err {
		return Corrupt, err
	}
	applied := space.Apply(updates)
	uncommitted := space.Uncommitted()

	// highest counter entry for each vpage wins, skipping pages of an
	// unfinished batch and pages already released
	sort.Slice(entries, func(i, j int) bool { return entries[i].counter > entries[j].counter })
	live := make(map[uint32]bool)
	for _, e := range entries {
		space.Observe(e.counter)
		if constants.FastSpaceVPage == e.vpage {
			continue
		}
		if _, ok := b.table[e.vpage]; ok {
			continue
		}
		if uncommitted[e.page] {
			continue
		}
		if s, owned := space.State(e.page); owned && fastspace.Dirty == s {
			continue
		}
		if !space.Owns(e.page) && !b.adopt(e) {
			continue
		}
		b.table[e.vpage] = mapping{page: e.page, counter: e.counter}
		live[e.page] = true
	}
	b.table[constants.FastSpaceVPage] = mapping{page: current.page, counter: current.counter}
	live[current.page] = true

	changed := space.Recover(live)
	for vpage, m := range b.table {
		if s, _ := space.State(m.page); fastspace.Used != s {
			delete(b.table, vpage)
		}
	}

	root, err := b.ReadVPage(constants.RootVPage)
	if nil != err {
		return Corrupt, err
	}
	b.root, err = unmarshalRoot(root)
	if nil != err || b.root.name != b.name {
		return Corrupt, fault.ErrCorruptRecord
	}

	swept, err := b.loadDicts()
	if nil != err {
		return Corrupt, err
	}

	b.log.Debugf("replayed: %d  recovered: %d  swept: %d", applied, changed, swept)
	if applied+changed+swept > 0 {
		if err := b.journal.Reserve(b.options.checkpointReserve()); nil != err {
			return Corrupt, err
		}
		if err := b.Checkpoint(); nil != err {
			return Corrupt, err
		}
	}
	return Success, nil
}

// a live entry on a page missing from the allocator is accepted only if
// its data authenticates
func (b *Basis) adopt(e tableEntry) bool {
	raw, err := b.store.ReadPage(e.page)
	if nil != err {
		return false
	}
	if _, _, err := codec.DecryptPage(b.keys, b.name, e.page, e.vpage, raw); nil != err {
		return false
	}
	if err := b.space.Adopt(e.page); nil != err {
		b.log.Warnf("page: %d  cannot adopt: %s", e.page, err)
		return false
	}
	return true
}

// read every dictionary header, release vpages outside any dictionary
func (b *Basis) loadDicts() (int, error) {
	windows := make(map[uint32][]uint32)
	for vpage := range b.table {
		w := vpage >> constants.WindowShift
		windows[w] = append(windows[w], vpage)
	}

	orphans := make([]uint32, 0)
	for w, vpages := range windows {
		if 0 == w {
			for _, vpage := range vpages {
				if constants.RootVPage != vpage && constants.FastSpaceVPage != vpage {
					orphans = append(orphans, vpage)
				}
			}
			continue
		}

		base := dictcache.WindowBase(w)
		if _, ok := b.table[base]; !ok {
			orphans = append(orphans, vpages...)
			continue
		}
		raw, err := b.ReadVPage(base)
		if nil != err {
			return 0, err
		}
		h, err := dictcache.UnmarshalHeader(raw)
		if nil == err {
			err = dictcache.CheckDictName(h.Name)
		}
		if nil != err {
			b.log.Warnf("window: %d  header error: %s", w, err)
			b.windows[w] = ""
			continue
		}
		if _, dup := b.dicts[h.Name]; dup {
			b.log.Warnf("window: %d  duplicate dictionary", w)
			orphans = append(orphans, vpages...)
			continue
		}
		b.dicts[h.Name] = dictcache.FromHeader(w, h, b.log)
		b.windows[w] = h.Name
	}

	if 0 == len(orphans) {
		return 0, nil
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i] < orphans[j] })
	return len(orphans), b.UnmapVPages(orphans)
}

// Unmount - flush, checkpoint and forget the key
//
// afterwards nothing in memory can decrypt the basis
func (b *Basis) Unmount() error {
	if !b.mounted {
		return fault.ErrBasisNotMounted
	}

	err := b.flush()
	if nil == err {
		err = b.journal.Reserve(b.options.checkpointReserve())
	}
	if nil == err {
		err = b.Checkpoint()
	}

	b.cache.Flush()
	b.keys.Zero()
	b.table = nil
	b.dicts = nil
	b.windows = nil
	b.space = nil
	b.root = rootRecord{}
	b.mounted = false

	if nil != err {
		b.log.Errorf("unmount error: %s", err)
	} else {
		b.log.Info("unmounted")
	}
	return err
}

// Name - the basis name
func (b *Basis) Name() string {
	return b.name
}

// Mounted - false after Unmount
func (b *Basis) Mounted() bool {
	return b.mounted
}

// Owns - the page is in this basis' allocator
func (b *Basis) Owns(page uint32) bool {
	return b.mounted && b.space.Owns(page)
}

// Busy - the page is owned and not free
func (b *Basis) Busy(page uint32) bool {
	return b.mounted && b.space.Busy(page)
}

// Space - page counts by state, zero once unmounted
func (b *Basis) Space() fastspace.Counts {
	if !b.mounted {
		return fastspace.Counts{}
	}
	return b.space.Counts()
}

// Generation - current checkpoint generation, zero once unmounted
func (b *Basis) Generation() uint64 {
	if !b.mounted {
		return 0
	}
	return b.space.Generation()
}

// SetExclude - pages in use by other mounted bases
func (b *Basis) SetExclude(exclude func(uint32) bool) {
	b.options.Exclude = exclude
}

// random index into the data region
func (b *Basis) randomStart() (uint32, error) {
	r, err := codec.Noise(b.options.Random, 4)
	if nil != err {
		return 0, err
	}
	return binary.LittleEndian.Uint32(r) % b.geometry.DataPages, nil
}
