// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package dictcache

import (
	"sort"

	"github.com/bitmark-inc/logger"

	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/fault"
)

// KeyCacheEntry - RAM copy of one key descriptor
type KeyCacheEntry struct {
	Name     string
	Slot     uint32
	Start    uint32
	Len      uint64
	Reserved uint64
	Flags    uint32
	Age      uint32
}

// Attributes - the caller bits of the flags
func (k *KeyCacheEntry) Attributes() uint32 {
	return k.Flags & AttributeMask
}

func (k *KeyCacheEntry) record() DictKeyEntry {
	return DictKeyEntry{
		Start:    uint64(k.Start),
		Len:      k.Len,
		Reserved: k.Reserved,
		Flags:    k.Flags,
		Age:      k.Age,
		Name:     k.Name,
	}
}

// DictKeyVpage - one descriptor vpage and which of its slots are dirty
type DictKeyVpage struct {
	Number uint32
	Data   []byte
	dirty  uint32
}

// Dirty - true if any slot needs flushing
func (v *DictKeyVpage) Dirty() bool {
	return 0 != v.dirty
}

// IsDirty - true if the slot needs flushing
func (v *DictKeyVpage) IsDirty(slot uint32) bool {
	return 0 != v.dirty&(1<<(slot%constants.DKPerVPage))
}

func (v *DictKeyVpage) put(slot uint32, record []byte) {
	n := int(slot%constants.DKPerVPage) * constants.DKStride
	copy(v.Data[n:n+len(record)], record)
	v.dirty |= 1 << (slot % constants.DKPerVPage)
}

// DictCacheEntry - RAM mirror of one dictionary
//
// KeyCount is taken from the header until the descriptors are loaded,
// so it can exceed the number of cached keys
type DictCacheEntry struct {
	Index    uint32
	Name     string
	KeyCount uint32
	Clean    bool
	Age      uint32
	Flags    uint32

	log    *logger.L
	loaded bool
	keys   map[string]*KeyCacheEntry
	slots  []bool
	vpages map[uint32]*DictKeyVpage
}

// New - a dictionary that does not exist on the medium yet
func New(index uint32, name string, log *logger.L) *DictCacheEntry {
	d := &DictCacheEntry{
		Index:  index,
		Name:   name,
		Flags:  FlagValid,
		log:    log,
		loaded: true,
		keys:   make(map[string]*KeyCacheEntry),
		slots:  make([]bool, constants.DescriptorSlots),
		vpages: make(map[uint32]*DictKeyVpage),
	}
	for i := 0; i < constants.DictHeaderSlots; i += 1 {
		d.slots[i] = true
	}
	d.vpages[0] = &DictKeyVpage{Number: 0, Data: make([]byte, constants.VPageSize)}
	return d
}

// FromHeader - a dictionary found at mount, keys are loaded on demand
func FromHeader(index uint32, h Header, log *logger.L) *DictCacheEntry {
	return &DictCacheEntry{
		Index:    index,
		Name:     h.Name,
		KeyCount: h.NumKeys,
		Clean:    true,
		Age:      h.Age,
		Flags:    h.Flags,
		log:      log,
		vpages:   make(map[uint32]*DictKeyVpage),
	}
}

// Loaded - true once the key descriptors are in memory
func (d *DictCacheEntry) Loaded() bool {
	return d.loaded
}

// Header - current header
func (d *DictCacheEntry) Header() Header {
	return Header{
		Flags:   d.Flags,
		Age:     d.Age,
		NumKeys: d.KeyCount,
		Name:    d.Name,
	}
}

// fetch a descriptor vpage, reading it from the medium the first time
func (d *DictCacheEntry) vpage(io PageIO, n uint32) (*DictKeyVpage, error) {
	if v, ok := d.vpages[n]; ok {
		return v, nil
	}
	data, err := io.ReadVPage(WindowBase(d.Index) + n)
	if nil != err {
		return nil, err
	}
	v := &DictKeyVpage{Number: n, Data: data}
	d.vpages[n] = v
	return v, nil
}

// Load - read every key descriptor and release orphaned data pages
//
// orphans are mapped vpages past the end of a key or in an unused
// slot's extent, left behind by an interrupted update
func (d *DictCacheEntry) Load(io PageIO) error {
	if d.loaded {
		return nil
	}

	base := WindowBase(d.Index)
	keys := make(map[string]*KeyCacheEntry)
	slots := make([]bool, constants.DescriptorSlots)
	for i := 0; i < constants.DictHeaderSlots; i += 1 {
		slots[i] = true
	}

	for n := uint32(0); n < constants.DescriptorVPages; n += 1 {
		if !io.Mapped(base + n) {
			continue
		}
		v, err := d.vpage(io, n)
		if nil != err {
			return err
		}
		for i := uint32(0); i < constants.DKPerVPage; i += 1 {
			slot := n*constants.DKPerVPage + i
			if slot < constants.DictHeaderSlots {
				continue
			}
			offset := i * constants.DKStride
			e, ok, err := UnmarshalDictKeyEntry(v.Data[offset : offset+constants.DKStride])
			if nil != err {
				d.log.Warnf("dict: %d  slot: %d  discarded: %s", d.Index, slot, err)
				v.put(slot, make([]byte, constants.DKStride))
				continue
			}
			if !ok {
				continue
			}
			if _, dup := keys[e.Name]; dup || uint64(KeyStart(d.Index, slot)) != e.Start {
				d.log.Warnf("dict: %d  slot: %d  inconsistent descriptor", d.Index, slot)
				v.put(slot, make([]byte, constants.DKStride))
				continue
			}
			keys[e.Name] = &KeyCacheEntry{
				Name:     e.Name,
				Slot:     slot,
				Start:    uint32(e.Start),
				Len:      e.Len,
				Reserved: e.Reserved,
				Flags:    e.Flags,
				Age:      e.Age,
			}
			slots[slot] = true
		}
	}

	if _, err := d.vpage(io, 0); nil != err {
		return err
	}

	d.keys = keys
	d.slots = slots
	d.loaded = true

	if d.KeyCount != uint32(len(keys)) {
		d.log.Infof("dict: %d  key count: %d  found: %d", d.Index, d.KeyCount, len(keys))
		d.KeyCount = uint32(len(keys))
		d.Clean = false
	}
	for _, v := range d.vpages {
		if v.Dirty() {
			d.Clean = false
		}
	}

	return d.sweep(io)
}

func (d *DictCacheEntry) sweep(io PageIO) error {
	base := WindowBase(d.Index)
	bySlot := make(map[uint32]*KeyCacheEntry, len(d.keys))
	for _, k := range d.keys {
		bySlot[k.Slot] = k
	}

	orphans := make([]uint32, 0)
	for _, v := range io.MappedRange(base+constants.DescriptorVPages, base+constants.WindowVPages) {
		n := v - base - constants.DescriptorVPages
		slot := constants.DictHeaderSlots + n/constants.KeyVPages
		k, ok := bySlot[slot]
		if !ok || uint64(n%constants.KeyVPages) >= pagesFor(k.Len) {
			orphans = append(orphans, v)
		}
	}
	if 0 == len(orphans) {
		return nil
	}
	d.log.Infof("dict: %d  releasing %d orphan pages", d.Index, len(orphans))
	return io.UnmapVPages(orphans)
}

// write a key descriptor into its descriptor vpage
func (d *DictCacheEntry) putEntry(io PageIO, slot uint32, record []byte) error {
	v, err := d.vpage(io, slot/constants.DKPerVPage)
	if nil != err {
		return err
	}
	v.put(slot, record)
	d.Clean = false
	return nil
}

// put the descriptor of k into its vpage and write that vpage together
// with writes in one batch; on failure the cached descriptor of k is
// put back
func (d *DictCacheEntry) writeEntry(io PageIO, k *KeyCacheEntry, record []byte, writes map[uint32][]byte) error {
	v, err := d.vpage(io, k.Slot/constants.DKPerVPage)
	if nil != err {
		return err
	}
	v.put(k.Slot, record)
	d.Clean = false

	writes[WindowBase(d.Index)+v.Number] = v.Data
	if err := io.WriteVPages(writes); nil != err {
		v.put(k.Slot, k.record().Marshal())
		return err
	}
	v.dirty = 0
	return nil
}

// Flush - write the header and every dirty descriptor vpage
func (d *DictCacheEntry) Flush(io PageIO) error {
	if d.Clean {
		return nil
	}

	d.Age += 1
	if err := d.putEntry(io, 0, d.Header().Marshal()); nil != err {
		return err
	}

	base := WindowBase(d.Index)
	writes := make(map[uint32][]byte)
	for n, v := range d.vpages {
		if v.Dirty() {
			writes[base+n] = v.Data
		}
	}
	if err := io.WriteVPages(writes); nil != err {
		return err
	}
	for _, v := range d.vpages {
		v.dirty = 0
	}
	d.Clean = true

	d.log.Debugf("dict: %d  flushed %d descriptor pages", d.Index, len(writes))
	return nil
}

// KeyList - names of every key, sorted
func (d *DictCacheEntry) KeyList(io PageIO) ([]string, error) {
	if err := d.Load(io); nil != err {
		return nil, err
	}
	names := make([]string, 0, len(d.keys))
	for name := range d.keys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Key - the cache entry for a key
func (d *DictCacheEntry) Key(io PageIO, name string) (*KeyCacheEntry, error) {
	if err := d.Load(io); nil != err {
		return nil, err
	}
	k, ok := d.keys[name]
	if !ok {
		return nil, fault.ErrKeyNotFound
	}
	return k, nil
}

// Release - all vpages of the dictionary, data and descriptors
func (d *DictCacheEntry) Release(io PageIO) error {
	base := WindowBase(d.Index)
	mapped := io.MappedRange(base, base+constants.WindowVPages)
	d.keys = make(map[string]*KeyCacheEntry)
	d.vpages = make(map[uint32]*DictKeyVpage)
	d.KeyCount = 0
	d.Clean = true
	if 0 == len(mapped) {
		return nil
	}

	// header first: a window without one is swept whole at mount
	if mapped[0] == base {
		if err := io.UnmapVPages(mapped[:1]); nil != err {
			return err
		}
		mapped = mapped[1:]
	}
	if 0 == len(mapped) {
		return nil
	}
	return io.UnmapVPages(mapped)
}
