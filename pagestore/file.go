// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pagestore

import (
	"io"
	"os"
	"sync"

	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/fault"
)

// FileStore - medium held in a flat image file
type FileStore struct {
	sync.Mutex
	file  *os.File
	count uint32
}

// OpenFileStore - open an image file, creating an erased image of
// count pages if it does not exist
//
// an existing image keeps its own size and count is ignored
func OpenFileStore(fileName string, count uint32) (*FileStore, error) {

	f, err := os.OpenFile(fileName, os.O_RDWR, 0600)
	if nil == err {
		info, err := f.Stat()
		if nil != err {
			f.Close()
			return nil, err
		}
		if 0 != info.Size()%constants.PageSize || 0 == info.Size() {
			f.Close()
			return nil, fault.ErrInvalidGeometry
		}
		return &FileStore{
			file:  f,
			count: uint32(info.Size() / constants.PageSize),
		}, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	if 0 == count {
		return nil, fault.ErrInvalidGeometry
	}
	f, err = os.OpenFile(fileName, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if nil != err {
		return nil, err
	}

	erased := ErasedPage()
	for i := uint32(0); i < count; i += 1 {
		if _, err := f.Write(erased); nil != err {
			f.Close()
			os.Remove(fileName)
			return nil, err
		}
	}
	if err := f.Sync(); nil != err {
		f.Close()
		return nil, err
	}

	return &FileStore{
		file:  f,
		count: count,
	}, nil
}

// PageCount - number of pages in the image
func (s *FileStore) PageCount() uint32 {
	return s.count
}

// ReadPage - read one page
func (s *FileStore) ReadPage(page uint32) ([]byte, error) {
	if err := checkPage(page, s.count); nil != err {
		return nil, err
	}

	s.Lock()
	defer s.Unlock()

	data := make([]byte, constants.PageSize)
	_, err := s.file.ReadAt(data, int64(page)*constants.PageSize)
	if io.EOF == err {
		return nil, io.ErrUnexpectedEOF
	}
	if nil != err {
		return nil, err
	}
	return data, nil
}

// WritePage - write one page and flush it to the device
func (s *FileStore) WritePage(page uint32, data []byte) error {
	if err := checkPage(page, s.count); nil != err {
		return err
	}
	if err := checkData(data); nil != err {
		return err
	}

	s.Lock()
	defer s.Unlock()

	if _, err := s.file.WriteAt(data, int64(page)*constants.PageSize); nil != err {
		return err
	}
	return s.file.Sync()
}

// EraseRegion - overwrite a run of pages with the erased pattern
func (s *FileStore) EraseRegion(start uint32, count uint32) error {
	if err := checkRegion(start, count, s.count); nil != err {
		return err
	}

	s.Lock()
	defer s.Unlock()

	erased := ErasedPage()
	for i := start; i < start+count; i += 1 {
		if _, err := s.file.WriteAt(erased, int64(i)*constants.PageSize); nil != err {
			return err
		}
	}
	return s.file.Sync()
}

// Close - close the image file
func (s *FileStore) Close() error {
	s.Lock()
	defer s.Unlock()

	if nil == s.file {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
