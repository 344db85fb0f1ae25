// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pagestore

import (
	"encoding/binary"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	ldb_opt "github.com/syndtr/goleveldb/leveldb/opt"
	ldb_storage "github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/fault"
)

// for the stored page count
var geometryKey = []byte{0x00, 'P', 'A', 'G', 'E', 'S'}

// page keys carry this prefix so they sort after the geometry key
const pagePrefix = 'P'

// LevelDBStore - medium emulated on a LevelDB database
//
// erased pages are not stored, a missing key reads as erased
type LevelDBStore struct {
	sync.RWMutex
	db    *leveldb.DB
	count uint32
}

// OpenLevelDBStore - open or create a database directory
//
// an existing database keeps its own page count
func OpenLevelDBStore(directory string, count uint32) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(directory, &ldb_opt.Options{
		ErrorIfMissing: false,
	})
	if nil != err {
		return nil, err
	}
	return newLevelDBStore(db, count)
}

// NewMemoryLevelDBStore - LevelDB on memory storage, for tests
func NewMemoryLevelDBStore(count uint32) (*LevelDBStore, error) {
	db, err := leveldb.Open(ldb_storage.NewMemStorage(), nil)
	if nil != err {
		return nil, err
	}
	return newLevelDBStore(db, count)
}

func newLevelDBStore(db *leveldb.DB, count uint32) (*LevelDBStore, error) {

	value, err := db.Get(geometryKey, nil)
	switch err {
	case nil:
		if 4 != len(value) {
			db.Close()
			return nil, fault.ErrInvalidGeometry
		}
		count = binary.BigEndian.Uint32(value)

	case leveldb.ErrNotFound:
		if 0 == count {
			db.Close()
			return nil, fault.ErrInvalidGeometry
		}
		value = make([]byte, 4)
		binary.BigEndian.PutUint32(value, count)
		if err := db.Put(geometryKey, value, &ldb_opt.WriteOptions{Sync: true}); nil != err {
			db.Close()
			return nil, err
		}

	default:
		db.Close()
		return nil, err
	}

	return &LevelDBStore{
		db:    db,
		count: count,
	}, nil
}

func pageKey(page uint32) []byte {
	key := make([]byte, 5)
	key[0] = pagePrefix
	binary.BigEndian.PutUint32(key[1:], page)
	return key
}

// PageCount - number of pages
func (s *LevelDBStore) PageCount() uint32 {
	return s.count
}

// ReadPage - read one page
func (s *LevelDBStore) ReadPage(page uint32) ([]byte, error) {
	if err := checkPage(page, s.count); nil != err {
		return nil, err
	}

	s.RLock()
	defer s.RUnlock()

	value, err := s.db.Get(pageKey(page), nil)
	if leveldb.ErrNotFound == err {
		return ErasedPage(), nil
	}
	if nil != err {
		return nil, err
	}
	if constants.PageSize != len(value) {
		return nil, fault.ErrInvalidPageData
	}
	return value, nil
}

// WritePage - store one page synchronously
func (s *LevelDBStore) WritePage(page uint32, data []byte) error {
	if err := checkPage(page, s.count); nil != err {
		return err
	}
	if err := checkData(data); nil != err {
		return err
	}

	s.Lock()
	defer s.Unlock()

	return s.db.Put(pageKey(page), data, &ldb_opt.WriteOptions{Sync: true})
}

// EraseRegion - drop a run of pages in a single batch
func (s *LevelDBStore) EraseRegion(start uint32, count uint32) error {
	if err := checkRegion(start, count, s.count); nil != err {
		return err
	}

	s.Lock()
	defer s.Unlock()

	batch := new(leveldb.Batch)
	for i := start; i < start+count; i += 1 {
		batch.Delete(pageKey(i))
	}
	return s.db.Write(batch, &ldb_opt.WriteOptions{Sync: true})
}

// Close - close the database
func (s *LevelDBStore) Close() error {
	s.Lock()
	defer s.Unlock()

	if nil == s.db {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
