// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package basis

import (
	"github.com/bitmark-inc/logger"

	"github.com/bitmark-inc/pddb/fastspace"
	"github.com/bitmark-inc/pddb/fault"
	"github.com/bitmark-inc/pddb/pagestore"
)

// Manager - the ordered set of mounted bases
//
// resolution walks from the most recently mounted basis down
type Manager struct {
	log      *logger.L
	store    pagestore.PageStore
	geometry pagestore.Geometry
	journal  *fastspace.Journal
	options  Options
	mounted  []*Basis // mount order, topmost last
}

// NewManager - takes over rollover of the journal
func NewManager(store pagestore.PageStore, geometry pagestore.Geometry, journal *fastspace.Journal, options Options) *Manager {
	options.setDefaults()
	m := &Manager{
		log:      logger.New("manager"),
		store:    store,
		geometry: geometry,
		journal:  journal,
		options:  options,
	}
	m.updateReserve()
	return m
}

func (m *Manager) updateReserve() {
	m.journal.SetRollover(m.Rollover, (len(m.mounted)+1)*m.options.checkpointReserve())
}

// pages in the pool of another mounted basis, whatever their state
func (m *Manager) exclude(self *Basis) func(uint32) bool {
	return func(page uint32) bool {
		for _, b := range m.mounted {
			if b != self && b.Owns(page) {
				return true
			}
		}
		return false
	}
}

func (m *Manager) find(name string) (int, *Basis) {
	for i, b := range m.mounted {
		if name == b.name {
			return i, b
		}
	}
	return -1, nil
}

func (m *Manager) push(b *Basis) {
	b.SetExclude(m.exclude(b))
	m.mounted = append(m.mounted, b)
	m.updateReserve()
}

// Create - make a new basis, it is left unmounted
func (m *Manager) Create(name string, key []byte) error {
	if _, b := m.find(name); nil != b {
		return fault.ErrBasisExists
	}
	options := m.options
	b, err := Create(m.store, m.geometry, m.journal, name, key, m.withExclude(&options))
	if nil != err {
		return err
	}
	return b.Unmount()
}

// exclusion for a basis that is not in the mounted set yet
func (m *Manager) withExclude(options *Options) Options {
	options.Exclude = m.exclude(nil)
	return *options
}

// Mount - mount and place on top
func (m *Manager) Mount(name string, key []byte) (MountResult, error) {
	if _, b := m.find(name); nil != b {
		return Success, fault.ErrBasisMounted
	}
	options := m.options
	b, result, err := Mount(m.store, m.geometry, m.journal, name, key, m.withExclude(&options))
	if nil != err {
		return result, err
	}
	m.push(b)
	return Success, nil
}

// Unmount - remove from the mounted set
func (m *Manager) Unmount(name string) error {
	i, b := m.find(name)
	if nil == b {
		return fault.ErrBasisNotMounted
	}
	err := b.Unmount()
	m.mounted = append(m.mounted[:i], m.mounted[i+1:]...)
	m.updateReserve()
	return err
}

// UnmountAll - topmost first, returns the first error
func (m *Manager) UnmountAll() error {
	var first error
	for len(m.mounted) > 0 {
		b := m.mounted[len(m.mounted)-1]
		if err := m.Unmount(b.name); nil != err && nil == first {
			first = err
		}
	}
	return first
}

// List - mounted names, topmost first
func (m *Manager) List() []string {
	names := make([]string, 0, len(m.mounted))
	for i := len(m.mounted) - 1; i >= 0; i -= 1 {
		names = append(names, m.mounted[i].name)
	}
	return names
}

// Basis - a mounted basis by name
func (m *Manager) Basis(name string) (*Basis, error) {
	_, b := m.find(name)
	if nil == b {
		return nil, fault.ErrBasisNotMounted
	}
	return b, nil
}

// Topmost - the most recently mounted basis
func (m *Manager) Topmost() (*Basis, error) {
	if 0 == len(m.mounted) {
		return nil, fault.ErrNoBasisMounted
	}
	return m.mounted[len(m.mounted)-1], nil
}

// Bases - the named basis, or every mounted basis topmost first
func (m *Manager) Bases(name *string) ([]*Basis, error) {
	if nil != name {
		b, err := m.Basis(*name)
		if nil != err {
			return nil, err
		}
		return []*Basis{b}, nil
	}
	if 0 == len(m.mounted) {
		return nil, fault.ErrNoBasisMounted
	}
	bases := make([]*Basis, 0, len(m.mounted))
	for i := len(m.mounted) - 1; i >= 0; i -= 1 {
		bases = append(bases, m.mounted[i])
	}
	return bases, nil
}

// Holders - bases that have the key, in resolution order
func (m *Manager) Holders(name *string, dict string, key string) ([]*Basis, error) {
	bases, err := m.Bases(name)
	if nil != err {
		return nil, err
	}
	found := make([]*Basis, 0, len(bases))
	for _, b := range bases {
		ok, err := b.HasKey(dict, key)
		if nil != err {
			return nil, err
		}
		if ok {
			found = append(found, b)
		}
	}
	return found, nil
}

// Resolve - the basis a read of (basis?, dict, key) is served from
//
// a named basis is the only candidate; otherwise the first mounted
// basis, topmost first, that has the key
func (m *Manager) Resolve(name *string, dict string, key string) (*Basis, error) {
	if nil != name {
		b, err := m.Basis(*name)
		if nil != err {
			return nil, err
		}
		if _, err := b.Dict(dict); nil != err {
			return nil, err
		}
	}
	found, err := m.Holders(name, dict, key)
	if nil != err {
		return nil, err
	}
	if 0 == len(found) {
		return nil, fault.ErrKeyNotFound
	}
	return found[0], nil
}

// WriteTargets - the bases that receive a write under policy
//
// with WriteTopmost a record that only exists lower down is first
// copied into the topmost basis
func (m *Manager) WriteTargets(name *string, dict string, key string, policy Policy) ([]*Basis, error) {
	found, err := m.Holders(name, dict, key)
	if nil != err {
		return nil, err
	}
	if 0 == len(found) {
		return nil, fault.ErrKeyNotFound
	}
	if nil != name {
		return found, nil
	}

	switch policy {
	case WriteFirstMatch:
		return found[:1], nil
	case WriteAll:
		return found, nil
	case WriteTopmost:
		top, err := m.Topmost()
		if nil != err {
			return nil, err
		}
		if found[0] != top {
			if err := copyUp(found[0], top, dict, key); nil != err {
				return nil, err
			}
		}
		return []*Basis{top}, nil
	}
	return nil, fault.ErrInvalidPolicy
}

// copy a whole record between bases, creating the dictionary if needed
func copyUp(from *Basis, to *Basis, dict string, key string) error {
	src, err := from.Dict(dict)
	if nil != err {
		return err
	}
	k, err := src.Key(from, key)
	if nil != err {
		return err
	}
	data := make([]byte, k.Len)
	if _, err := src.KeyRead(from, key, 0, data); nil != err {
		return err
	}

	dst, err := to.Dict(dict)
	if fault.ErrDictNotFound == err {
		dst, err = to.CreateDict(dict)
	}
	if nil != err {
		return err
	}
	to.log.Debugf("copy up %d bytes", len(data))
	return dst.KeyUpdate(to, key, data, 0, true)
}

// Rollover - checkpoint every mounted basis then erase the journal
//
// the journal only ever holds records newer than some checkpoint, so
// once all mounted bases have checkpointed none of it is needed
func (m *Manager) Rollover() error {
	for _, b := range m.mounted {
		if err := b.Checkpoint(); nil != err {
			m.log.Errorf("rollover checkpoint error: %s", err)
			return err
		}
	}
	return m.journal.Reset()
}

// Sync - every mounted basis
func (m *Manager) Sync() error {
	for _, b := range m.mounted {
		if err := b.Sync(); nil != err {
			return err
		}
	}
	return nil
}

// Checkpoint - force a checkpoint of every mounted basis
func (m *Manager) Checkpoint() error {
	for _, b := range m.mounted {
		if err := m.journal.Reserve(m.options.checkpointReserve()); nil != err {
			return err
		}
		if err := b.Checkpoint(); nil != err {
			return err
		}
	}
	return nil
}

// Scrub - erase up to max Dirty pages across all mounted bases
func (m *Manager) Scrub(max int) (int, error) {
	total := 0
	for _, b := range m.mounted {
		if total >= max {
			break
		}
		n, err := b.Scrub(max - total)
		total += n
		if nil != err {
			return total, err
		}
	}
	return total, nil
}
