// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package dictcache

import (
	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/fault"
)

// first free descriptor slot
func (d *DictCacheEntry) newKey(io PageIO, name string, attributes uint32) (*KeyCacheEntry, error) {
	for slot := uint32(constants.DictHeaderSlots); slot < constants.DescriptorSlots; slot += 1 {
		if d.slots[slot] {
			continue
		}
		k := &KeyCacheEntry{
			Name:  name,
			Slot:  slot,
			Start: KeyStart(d.Index, slot),
			Flags: FlagValid | attributes&AttributeMask,
		}
		if err := d.putEntry(io, slot, k.record().Marshal()); nil != err {
			return nil, err
		}
		d.slots[slot] = true
		d.keys[name] = k
		d.KeyCount += 1
		return k, nil
	}
	return nil, fault.ErrTooManyKeys
}

// KeyCreate - add an empty key, fails if it already exists
//
// attribute bits are kept in the descriptor flags for the life of the key
func (d *DictCacheEntry) KeyCreate(io PageIO, name string, attributes uint32) error {
	if err := CheckKeyName(name); nil != err {
		return err
	}
	if err := d.Load(io); nil != err {
		return err
	}
	if _, ok := d.keys[name]; ok {
		return fault.ErrKeyExists
	}
	_, err := d.newKey(io, name, attributes)
	return err
}

// current payload of the p-th data vpage of a key, bytes at or beyond
// length are returned as zero
func keyPage(io PageIO, k *KeyCacheEntry, p uint64, length uint64) ([]byte, error) {
	start := p * constants.VPageSize
	if start >= length {
		return make([]byte, constants.VPageSize), nil
	}
	buffer, err := io.ReadVPage(k.Start + uint32(p))
	if nil != err {
		return nil, err
	}
	if end := length - start; end < constants.VPageSize {
		zero(buffer[end:])
	}
	return buffer, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// KeyUpdate - write data at offset, creating the key if necessary
//
// with truncate the key ends at offset+len(data) and pages beyond are
// released, otherwise existing bytes past the write are kept; a gap
// between the old end and offset reads as zero
func (d *DictCacheEntry) KeyUpdate(io PageIO, name string, data []byte, offset uint64, truncate bool) error {
	if err := CheckKeyName(name); nil != err {
		return err
	}
	end := offset + uint64(len(data))
	if end < offset || end > constants.MaxKeyLength {
		return fault.ErrKeyTooLarge
	}
	if err := d.Load(io); nil != err {
		return err
	}

	k, ok := d.keys[name]
	if !ok {
		var err error
		k, err = d.newKey(io, name, 0)
		if nil != err {
			return err
		}
	}

	oldLen := k.Len
	newLen := end
	if !truncate && oldLen > end {
		newLen = oldLen
	}

	writes := make(map[uint32][]byte)
	if 0 != len(data) {
		first := offset / constants.VPageSize
		last := (end - 1) / constants.VPageSize
		for p := first; p <= last; p += 1 {
			buffer, err := keyPage(io, k, p, oldLen)
			if nil != err {
				return err
			}
			pageStart := p * constants.VPageSize
			lo := offset
			if pageStart > lo {
				lo = pageStart
			}
			hi := end
			if pageStart+constants.VPageSize < hi {
				hi = pageStart + constants.VPageSize
			}
			copy(buffer[lo-pageStart:hi-pageStart], data[lo-offset:hi-offset])
			if truncate {
				zero(buffer[hi-pageStart:])
			}
			writes[k.Start+uint32(p)] = buffer
		}
	}

	// a truncation point inside a page that was not rewritten above
	if truncate && newLen < oldLen && 0 != newLen%constants.VPageSize {
		p := newLen / constants.VPageSize
		vpage := k.Start + uint32(p)
		if _, ok := writes[vpage]; !ok && io.Mapped(vpage) {
			buffer, err := keyPage(io, k, p, newLen)
			if nil != err {
				return err
			}
			writes[vpage] = buffer
		}
	}

	// the descriptor goes in the same batch as the data so the new bytes
	// and the new length become durable together
	next := *k
	next.Len = newLen
	next.Reserved = pagesFor(newLen) * constants.VPageSize
	next.Age += 1
	if err := d.writeEntry(io, k, next.record().Marshal(), writes); nil != err {
		return err
	}
	*k = next

	// pages past the new end are orphans from here on, a crash before
	// they are released leaves them to the sweep at the next load
	if truncate {
		keep := uint32(pagesFor(newLen))
		drop := io.MappedRange(k.Start+keep, k.Start+constants.KeyVPages)
		if 0 != len(drop) {
			if err := io.UnmapVPages(drop); nil != err {
				return err
			}
		}
	}
	return nil
}

// KeyRead - copy bytes from offset into buffer, returns the count
//
// reading at or past the end returns zero bytes
func (d *DictCacheEntry) KeyRead(io PageIO, name string, offset uint64, buffer []byte) (int, error) {
	k, err := d.Key(io, name)
	if nil != err {
		return 0, err
	}
	if offset >= k.Len || 0 == len(buffer) {
		return 0, nil
	}

	end := offset + uint64(len(buffer))
	if end > k.Len {
		end = k.Len
	}

	n := 0
	for position := offset; position < end; {
		p := position / constants.VPageSize
		page, err := keyPage(io, k, p, k.Len)
		if nil != err {
			return n, err
		}
		within := position - p*constants.VPageSize
		limit := uint64(constants.VPageSize)
		if end-p*constants.VPageSize < limit {
			limit = end - p*constants.VPageSize
		}
		copied := copy(buffer[n:], page[within:limit])
		n += copied
		position += uint64(copied)
	}
	return n, nil
}

// KeyErase - remove a key and release its pages
//
// paranoid first overwrites the whole record with zeros so the
// previous ciphertext is superseded before the key disappears
func (d *DictCacheEntry) KeyErase(io PageIO, name string, paranoid bool) error {
	k, err := d.Key(io, name)
	if nil != err {
		return err
	}

	if paranoid && 0 != k.Len {
		if err := d.KeyUpdate(io, name, make([]byte, k.Len), 0, false); nil != err {
			return err
		}
	}

	// descriptor first: once it is gone the data pages are orphans
	if err := d.writeEntry(io, k, make([]byte, constants.DKStride), make(map[uint32][]byte)); nil != err {
		return err
	}
	d.slots[k.Slot] = false
	delete(d.keys, name)
	d.KeyCount -= 1

	mapped := io.MappedRange(k.Start, k.Start+constants.KeyVPages)
	if 0 != len(mapped) {
		return io.UnmapVPages(mapped)
	}
	return nil
}
