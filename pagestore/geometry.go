// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pagestore

import (
	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/fault"
)

// smallest data region that can hold a root, a fast space and one dictionary
const minimumDataPages = 16

// physical page numbers are packed into 30 bits of a space update
const maximumPages = 1 << 30

// Geometry - the split of a medium into journal, page table and data regions
//
//   [0, JournalPages)                       shared space update journal
//   [JournalPages, DataStart)               one page table entry per data page
//   [DataStart, Pages)                      encrypted data pages
type Geometry struct {
	Pages        uint32 `json:"pages"`
	JournalPages uint32 `json:"journalPages"`
	TablePages   uint32 `json:"tablePages"`
	DataStart    uint32 `json:"dataStart"`
	DataPages    uint32 `json:"dataPages"`
}

// NewGeometry - compute the regions for a medium of the given size
func NewGeometry(pages uint32, journalPages uint32) (Geometry, error) {
	if 0 == journalPages || pages >= maximumPages || pages <= journalPages {
		return Geometry{}, fault.ErrInvalidGeometry
	}

	// each table page describes PTEsPerPage data pages
	remainder := pages - journalPages
	tablePages := (remainder + constants.PTEsPerPage) / (constants.PTEsPerPage + 1)
	dataPages := remainder - tablePages

	if dataPages < minimumDataPages {
		return Geometry{}, fault.ErrInvalidGeometry
	}

	return Geometry{
		Pages:        pages,
		JournalPages: journalPages,
		TablePages:   tablePages,
		DataStart:    journalPages + tablePages,
		DataPages:    dataPages,
	}, nil
}

// IsData - true if the page lies in the data region
func (g Geometry) IsData(page uint32) bool {
	return page >= g.DataStart && page < g.Pages
}

// PTELocation - table page and byte offset of a data page's table entry
func (g Geometry) PTELocation(page uint32) (uint32, int) {
	n := page - g.DataStart
	return g.JournalPages + n/constants.PTEsPerPage, int(n%constants.PTEsPerPage) * constants.BlockRecordSize
}

// DataPage - the n-th page of the data region
func (g Geometry) DataPage(n uint32) uint32 {
	return g.DataStart + n
}
