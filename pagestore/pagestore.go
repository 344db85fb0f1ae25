// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pagestore

import (
	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/fault"
)

// PageStore - the storage medium driver
type PageStore interface {
	PageCount() uint32
	ReadPage(page uint32) ([]byte, error)
	WritePage(page uint32, data []byte) error
	EraseRegion(start uint32, count uint32) error
	Close() error
}

// ErasedPage - a fresh page in the erased state
func ErasedPage() []byte {
	p := make([]byte, constants.PageSize)
	for i := range p {
		p[i] = constants.ErasedByte
	}
	return p
}

// IsErased - true if every byte is in the erased state
func IsErased(data []byte) bool {
	for _, b := range data {
		if constants.ErasedByte != b {
			return false
		}
	}
	return true
}

// common argument checks for all backends
func checkPage(page uint32, count uint32) error {
	if page >= count {
		return fault.ErrInvalidPage
	}
	return nil
}

func checkRegion(start uint32, n uint32, count uint32) error {
	if start >= count || n > count-start {
		return fault.ErrInvalidPage
	}
	return nil
}

func checkData(data []byte) error {
	if constants.PageSize != len(data) {
		return fault.ErrInvalidPageData
	}
	return nil
}
