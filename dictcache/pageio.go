// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package dictcache

import (
	"github.com/bitmark-inc/pddb/constants"
)

// PageIO - vpage access provided by the owning basis
type PageIO interface {
	// payload of a vpage as a new slice, all zero if not mapped
	ReadVPage(vpage uint32) ([]byte, error)

	// copy-on-write every vpage to fresh physical pages
	WriteVPages(pages map[uint32][]byte) error

	// drop the mappings and release the physical pages
	UnmapVPages(vpages []uint32) error

	Mapped(vpage uint32) bool

	// mapped vpages in [start, end), ascending
	MappedRange(start uint32, end uint32) []uint32
}

// WindowBase - first vpage of dictionary index
func WindowBase(index uint32) uint32 {
	return index << constants.WindowShift
}

// KeyStart - first data vpage of the key in slot
func KeyStart(index uint32, slot uint32) uint32 {
	return WindowBase(index) + constants.DescriptorVPages + (slot-constants.DictHeaderSlots)*constants.KeyVPages
}

// number of vpages holding length bytes
func pagesFor(length uint64) uint64 {
	return (length + constants.VPageSize - 1) / constants.VPageSize
}
