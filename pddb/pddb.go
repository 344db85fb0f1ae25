// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pddb

import (
	"io"
	"sort"

	"github.com/bitmark-inc/logger"

	"github.com/bitmark-inc/pddb/basis"
	"github.com/bitmark-inc/pddb/codec"
	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/counter"
	"github.com/bitmark-inc/pddb/dictcache"
	"github.com/bitmark-inc/pddb/fastspace"
	"github.com/bitmark-inc/pddb/fault"
	"github.com/bitmark-inc/pddb/pagestore"
)

// Options - database wide settings
type Options struct {
	JournalPages  uint32
	Policy        basis.Policy
	ParanoidErase bool
	Basis         basis.Options
}

// GetOptions - how Get resolves or creates a key
type GetOptions struct {
	Basis      *string       // nil resolves across all mounted bases
	Create     bool          // create the key if it is missing
	CreateDict bool          // create the dictionary if it is missing
	Policy     *basis.Policy // nil for the database default
	ReadOnly   bool          // writes through the handle are refused
	Attributes uint32        // caller flag bits for a created key, bit 0 is reserved
	OnCreate   func()        // called once the key has been created
}

// Pddb - the service context for one medium
type Pddb struct {
	log      *logger.L
	store    pagestore.PageStore
	geometry pagestore.Geometry
	journal  *fastspace.Journal
	manager  *basis.Manager
	options  Options
	stats    *counter.Statistics
}

// Format - erase the journal and fill everything else with noise
//
// destroys every basis on the medium
func Format(store pagestore.PageStore, journalPages uint32, random io.Reader) error {
	g, err := pagestore.NewGeometry(store.PageCount(), journalPages)
	if nil != err {
		return err
	}
	if err := store.EraseRegion(0, g.JournalPages); nil != err {
		return fault.Medium("erase", 0, err)
	}
	for page := g.JournalPages; page < g.Pages; page += 1 {
		noise, err := codec.Noise(random, constants.PageSize)
		if nil != err {
			return err
		}
		if err := store.WritePage(page, noise); nil != err {
			return fault.Medium("write", page, err)
		}
	}
	return nil
}

// New - open a formatted medium, nothing is mounted
func New(store pagestore.PageStore, options Options) (*Pddb, error) {
	if 0 == options.JournalPages {
		options.JournalPages = constants.DefaultJournalPages
	}
	if nil == options.Basis.Stats {
		options.Basis.Stats = &counter.Statistics{}
	}

	g, err := pagestore.NewGeometry(store.PageCount(), options.JournalPages)
	if nil != err {
		return nil, err
	}

	log := logger.New("pddb")
	journal, err := fastspace.OpenJournal(store, g.JournalPages, options.Basis.Stats, log)
	if nil != err {
		return nil, err
	}

	log.Infof("medium pages: %d  data pages: %d  journal: %d/%d", g.Pages, g.DataPages, journal.Used(), journal.Capacity())

	return &Pddb{
		log:      log,
		store:    store,
		geometry: g,
		journal:  journal,
		manager:  basis.NewManager(store, g, journal, options.Basis),
		options:  options,
		stats:    options.Basis.Stats,
	}, nil
}

// Format - reformat the medium of an open database, nothing may be mounted
func (p *Pddb) Format() error {
	if 0 != len(p.manager.List()) {
		return fault.ErrBasisMounted
	}
	if err := Format(p.store, p.geometry.JournalPages, p.options.Basis.Random); nil != err {
		return err
	}
	p.log.Warn("medium formatted")
	return p.journal.Reset()
}

// Geometry - layout of the medium
func (p *Pddb) Geometry() pagestore.Geometry {
	return p.geometry
}

// CreateBasis - add a new basis, it is not mounted
func (p *Pddb) CreateBasis(name string, key []byte) error {
	return p.manager.Create(name, key)
}

// Mount - mount a basis on top of the others
func (p *Pddb) Mount(name string, key []byte) (basis.MountResult, error) {
	return p.manager.Mount(name, key)
}

// Unmount - flush, checkpoint and forget a basis
func (p *Pddb) Unmount(name string) error {
	return p.manager.Unmount(name)
}

// Close - unmount everything, the page store stays open
func (p *Pddb) Close() error {
	return p.manager.UnmountAll()
}

// ListBasis - mounted bases, topmost first
func (p *Pddb) ListBasis() []string {
	return p.manager.List()
}

func (p *Pddb) policy(override *basis.Policy) basis.Policy {
	if nil != override {
		return *override
	}
	return p.options.Policy
}

// Get - a handle on a key, creating it when requested
func (p *Pddb) Get(dict string, key string, options GetOptions) (*KeyHandle, error) {
	if err := dictcache.CheckDictName(dict); nil != err {
		return nil, err
	}
	if err := dictcache.CheckKeyName(key); nil != err {
		return nil, err
	}

	_, err := p.manager.Resolve(options.Basis, dict, key)
	if nil != err {
		if !options.Create || !(fault.ErrKeyNotFound == err || fault.ErrDictNotFound == err) {
			return nil, err
		}
		if options.ReadOnly {
			return nil, fault.ErrPermissionDenied
		}
		if err := p.create(dict, key, options); nil != err {
			return nil, err
		}
	}

	return &KeyHandle{
		p:        p,
		dict:     dict,
		key:      key,
		basis:    options.Basis,
		policy:   p.policy(options.Policy),
		readOnly: options.ReadOnly,
	}, nil
}

// a new empty key
//
// without a basis name the key goes to the topmost basis when the
// dictionary may be created, otherwise to the first basis that already
// has the dictionary
func (p *Pddb) create(dict string, key string, options GetOptions) error {
	b, err := p.createTarget(dict, options)
	if nil != err {
		return err
	}

	d, err := b.Dict(dict)
	if fault.ErrDictNotFound == err && options.CreateDict {
		d, err = b.CreateDict(dict)
	}
	if nil != err {
		return err
	}
	if err := d.KeyCreate(b, key, options.Attributes); nil != err {
		return err
	}
	p.log.Debugf("key created in dict: %d", d.Index)
	if nil != options.OnCreate {
		options.OnCreate()
	}
	return nil
}

func (p *Pddb) createTarget(dict string, options GetOptions) (*basis.Basis, error) {
	if nil != options.Basis {
		return p.manager.Basis(*options.Basis)
	}
	if options.CreateDict {
		return p.manager.Topmost()
	}
	bases, err := p.manager.Bases(nil)
	if nil != err {
		return nil, err
	}
	for _, b := range bases {
		if b.HasDict(dict) {
			return b, nil
		}
	}
	return nil, fault.ErrDictNotFound
}

// DeleteKey - remove a key from the named basis, or from every mounted
// basis that has it
func (p *Pddb) DeleteKey(dict string, key string, basisName *string) error {
	holders, err := p.manager.Holders(basisName, dict, key)
	if nil != err {
		return err
	}
	if 0 == len(holders) {
		return fault.ErrKeyNotFound
	}
	for _, b := range holders {
		d, err := b.Dict(dict)
		if nil != err {
			return err
		}
		if err := d.KeyErase(b, key, p.options.ParanoidErase); nil != err {
			return err
		}
	}
	return nil
}

// DeleteDict - remove a dictionary and all its keys
func (p *Pddb) DeleteDict(dict string, basisName *string) error {
	bases, err := p.manager.Bases(basisName)
	if nil != err {
		return err
	}
	deleted := 0
	for _, b := range bases {
		if !b.HasDict(dict) {
			continue
		}
		if err := b.DeleteDict(dict); nil != err {
			return err
		}
		deleted += 1
	}
	if 0 == deleted {
		return fault.ErrDictNotFound
	}
	return nil
}

// ListKeys - key names of a dictionary, merged across bases, sorted
//
// the result is a snapshot and is not restartable across mutation
func (p *Pddb) ListKeys(dict string, basisName *string) ([]string, error) {
	bases, err := p.manager.Bases(basisName)
	if nil != err {
		return nil, err
	}
	found := false
	names := make(map[string]struct{})
	for _, b := range bases {
		d, err := b.Dict(dict)
		if fault.ErrDictNotFound == err {
			continue
		}
		if nil != err {
			return nil, err
		}
		found = true
		keys, err := d.KeyList(b)
		if nil != err {
			return nil, err
		}
		for _, k := range keys {
			names[k] = struct{}{}
		}
	}
	if !found {
		return nil, fault.ErrDictNotFound
	}
	return sorted(names), nil
}

// ListDicts - dictionary names merged across bases, sorted
func (p *Pddb) ListDicts(basisName *string) ([]string, error) {
	bases, err := p.manager.Bases(basisName)
	if nil != err {
		return nil, err
	}
	names := make(map[string]struct{})
	for _, b := range bases {
		for _, d := range b.ListDicts() {
			names[d] = struct{}{}
		}
	}
	return sorted(names), nil
}

func sorted(set map[string]struct{}) []string {
	list := make([]string, 0, len(set))
	for s := range set {
		list = append(list, s)
	}
	sort.Strings(list)
	return list
}

// Sync - flush dictionaries and checkpoint bases that are due
func (p *Pddb) Sync() error {
	return p.manager.Sync()
}

// Checkpoint - force a checkpoint of every mounted basis
func (p *Pddb) Checkpoint() error {
	return p.manager.Checkpoint()
}

// Scrub - erase up to max released pages
func (p *Pddb) Scrub(max int) (int, error) {
	return p.manager.Scrub(max)
}

// BasisStats - allocator state of one mounted basis
type BasisStats struct {
	Name       string           `json:"name"`
	Generation uint64           `json:"generation"`
	Space      fastspace.Counts `json:"space"`
}

// Stats - activity counters and space usage
type Stats struct {
	Counters        counter.Snapshot `json:"counters"`
	JournalUsed     int              `json:"journalUsed"`
	JournalCapacity int              `json:"journalCapacity"`
	Bases           []BasisStats     `json:"bases"`
}

// Stats - current statistics
func (p *Pddb) Stats() Stats {
	s := Stats{
		Counters:        p.stats.Snapshot(),
		JournalUsed:     p.journal.Used(),
		JournalCapacity: p.journal.Capacity(),
		Bases:           make([]BasisStats, 0),
	}
	bases, _ := p.manager.Bases(nil)
	for _, b := range bases {
		s.Bases = append(s.Bases, BasisStats{
			Name:       b.Name(),
			Generation: b.Generation(),
			Space:      b.Space(),
		})
	}
	return s
}
