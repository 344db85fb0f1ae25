// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package constants

import (
	"time"
)

// physical page geometry
const (
	PageSize  = 4096 // bytes in one physical page of the medium
	NonceSize = 12   // AEAD nonce stored at the front of each data page
	TagSize   = 16   // AEAD tag stored at the end of each data page

	// plaintext of a data page: vpage number followed by the payload
	PageHeaderSize = 4
	PlaintextSize  = PageSize - NonceSize - TagSize
	VPageSize      = PlaintextSize - PageHeaderSize // 4064

	// erased flash reads back as all ones
	ErasedByte = 0xff
)

// fixed width 16 byte records: page table entries and space updates
const (
	BlockRecordSize = 16
	PTEsPerPage     = PageSize / BlockRecordSize
	RecordsPerPage  = PageSize / BlockRecordSize
)

// dictionary and key record layout
const (
	DKStride         = 127 // one DictKeyEntry
	DKPerVPage       = VPageSize / DKStride
	DictHeaderSlots  = 2 // dictionary header occupies the first two strides
	DictNameLength   = 127
	KeyNameLength    = 95
	BasisNameLength  = 64
	MaxDictNameBytes = DictNameLength - 1
	MaxKeyNameBytes  = KeyNameLength - 1
	MaxBasisNameLen  = BasisNameLength - 1
)

// virtual address space of a basis, in vpage numbers
const (
	WindowShift      = 20
	WindowVPages     = 1 << WindowShift
	MaxDicts         = (1 << (32 - WindowShift)) - 1 // windows 1..4095
	DescriptorVPages = 64
	DescriptorSlots  = DescriptorVPages * DKPerVPage
	MaxKeysPerDict   = DescriptorSlots - DictHeaderSlots
	KeyVPages        = 512
	MaxKeyLength     = KeyVPages * VPageSize

	RootVPage      = 0 // basis root record
	FastSpaceVPage = 1 // current FastSpace generation
)

// FastSpace serialisation
const (
	FastSpaceHeaderSize = 24
	PhysPageSize        = 4
	FastSpaceCapacity   = (VPageSize - FastSpaceHeaderSize) / PhysPageSize // 1010
)

// defaults used when a configuration does not override them
const (
	DefaultJournalPages      = 8
	DefaultBasisPool         = 256
	DefaultCheckpointRecords = 512
	DefaultScrubBatch        = 32
	DefaultCacheExpiry       = 2 * time.Minute
	DefaultCacheCleanup      = 1 * time.Minute
	DefaultScrubInterval     = 5 * time.Second
)

// on-medium format version, bound into every page's associated data
const (
	FormatVersion = 1
)

// the basis mounted first by convention
const (
	SystemBasis = ".System"
)
