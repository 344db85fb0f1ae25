// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pagestore

import (
	"sync"

	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/fault"
)

// RAMStore - volatile medium
type RAMStore struct {
	sync.RWMutex
	pages [][]byte
}

// NewRAMStore - create a medium of count erased pages
func NewRAMStore(count uint32) (*RAMStore, error) {
	if 0 == count {
		return nil, fault.ErrInvalidGeometry
	}
	s := &RAMStore{
		pages: make([][]byte, count),
	}
	for i := range s.pages {
		s.pages[i] = ErasedPage()
	}
	return s, nil
}

// PageCount - number of pages
func (s *RAMStore) PageCount() uint32 {
	return uint32(len(s.pages))
}

// ReadPage - returns a copy of the page
func (s *RAMStore) ReadPage(page uint32) ([]byte, error) {
	s.RLock()
	defer s.RUnlock()

	if err := checkPage(page, uint32(len(s.pages))); nil != err {
		return nil, err
	}
	data := make([]byte, constants.PageSize)
	copy(data, s.pages[page])
	return data, nil
}

// WritePage - replace a whole page
func (s *RAMStore) WritePage(page uint32, data []byte) error {
	s.Lock()
	defer s.Unlock()

	if err := checkPage(page, uint32(len(s.pages))); nil != err {
		return err
	}
	if err := checkData(data); nil != err {
		return err
	}
	copy(s.pages[page], data)
	return nil
}

// EraseRegion - set a run of pages to the erased state
func (s *RAMStore) EraseRegion(start uint32, count uint32) error {
	s.Lock()
	defer s.Unlock()

	if err := checkRegion(start, count, uint32(len(s.pages))); nil != err {
		return err
	}
	for i := start; i < start+count; i += 1 {
		p := s.pages[i]
		for j := range p {
			p[j] = constants.ErasedByte
		}
	}
	return nil
}

// Close - nothing to release
func (s *RAMStore) Close() error {
	return nil
}

// Snapshot - copy of the entire medium, used to simulate power loss
func (s *RAMStore) Snapshot() *RAMStore {
	s.RLock()
	defer s.RUnlock()

	c := &RAMStore{
		pages: make([][]byte, len(s.pages)),
	}
	for i, p := range s.pages {
		c.pages[i] = append([]byte(nil), p...)
	}
	return c
}
