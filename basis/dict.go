// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package basis

import (
	"sort"

	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/dictcache"
	"github.com/bitmark-inc/pddb/fault"
)

// Dict - a dictionary of this basis
func (b *Basis) Dict(name string) (*dictcache.DictCacheEntry, error) {
	if !b.mounted {
		return nil, fault.ErrBasisNotMounted
	}
	d, ok := b.dicts[name]
	if !ok {
		return nil, fault.ErrDictNotFound
	}
	return d, nil
}

// HasDict - true if the dictionary exists
func (b *Basis) HasDict(name string) bool {
	_, err := b.Dict(name)
	return nil == err
}

// HasKey - true if the dictionary exists and holds the key
func (b *Basis) HasKey(dict string, key string) (bool, error) {
	d, err := b.Dict(dict)
	if fault.ErrDictNotFound == err {
		return false, nil
	}
	if nil != err {
		return false, err
	}
	_, err = d.Key(b, key)
	if fault.ErrKeyNotFound == err {
		return false, nil
	}
	return nil == err, err
}

// CreateDict - allocate a window and write an empty header
func (b *Basis) CreateDict(name string) (*dictcache.DictCacheEntry, error) {
	if err := dictcache.CheckDictName(name); nil != err {
		return nil, err
	}
	if !b.mounted {
		return nil, fault.ErrBasisNotMounted
	}
	if _, ok := b.dicts[name]; ok {
		return nil, fault.ErrDictExists
	}

	index := uint32(0)
	for w := uint32(1); w <= constants.MaxDicts; w += 1 {
		if _, used := b.windows[w]; !used {
			index = w
			break
		}
	}
	if 0 == index {
		return nil, fault.ErrTooManyDicts
	}

	d := dictcache.New(index, name, b.log)
	if err := d.Flush(b); nil != err {
		return nil, err
	}
	b.dicts[name] = d
	b.windows[index] = name

	b.log.Debugf("dict: %d  created", index)
	return d, nil
}

// DeleteDict - release every page of a dictionary
func (b *Basis) DeleteDict(name string) error {
	d, err := b.Dict(name)
	if nil != err {
		return err
	}
	if err := d.Release(b); nil != err {
		return err
	}
	delete(b.dicts, name)
	delete(b.windows, d.Index)

	b.log.Debugf("dict: %d  deleted", d.Index)
	return nil
}

// ListDicts - dictionary names, sorted
func (b *Basis) ListDicts() []string {
	names := make([]string, 0, len(b.dicts))
	for name := range b.dicts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// flush every dirty dictionary and the root record
func (b *Basis) flush() error {
	for _, d := range b.dicts {
		if err := d.Flush(b); nil != err {
			return err
		}
	}
	if b.root.dictCount != uint32(len(b.dicts)) {
		b.root.dictCount = uint32(len(b.dicts))
		b.root.age += 1
		if err := b.WriteVPages(map[uint32][]byte{constants.RootVPage: b.root.marshal()}); nil != err {
			return err
		}
	}
	return nil
}

// Sync - flush dictionaries and checkpoint if enough records have
// accumulated
func (b *Basis) Sync() error {
	if !b.mounted {
		return fault.ErrBasisNotMounted
	}
	if err := b.flush(); nil != err {
		return err
	}
	if b.space.Pending() < b.options.CheckpointRecords {
		return nil
	}
	if err := b.journal.Reserve(b.options.checkpointReserve()); nil != err {
		return err
	}
	return b.Checkpoint()
}
