// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package dictcache

import (
	"encoding/binary"

	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/fault"
)

// record flags
const (
	FlagValid = 1 << 0

	// bits free for caller attributes
	AttributeMask = ^uint32(FlagValid)
)

// HeaderSize - bytes of the header used within its two slots
const HeaderSize = 12 + constants.DictNameLength

// Header - on medium dictionary header
type Header struct {
	Flags   uint32
	Age     uint32
	NumKeys uint32
	Name    string
}

// DictKeyEntry - on medium key descriptor, one DK_STRIDE
//
// start u64 (vpage) || len u64 || reserved u64 || flags u32 || age u32 || name[95]
type DictKeyEntry struct {
	Start    uint64
	Len      uint64
	Reserved uint64
	Flags    uint32
	Age      uint32
	Name     string
}

// names are a length byte followed by the bytes, zero padded
func putName(buffer []byte, name string) {
	buffer[0] = byte(len(name))
	copy(buffer[1:], name)
}

func getName(buffer []byte) (string, bool) {
	n := int(buffer[0])
	if 0 == n || n >= len(buffer) {
		return "", false
	}
	return string(buffer[1 : 1+n]), true
}

// Marshal - header padded to two strides
func (h Header) Marshal() []byte {
	buffer := make([]byte, constants.DictHeaderSlots*constants.DKStride)
	binary.LittleEndian.PutUint32(buffer[0:4], h.Flags)
	binary.LittleEndian.PutUint32(buffer[4:8], h.Age)
	binary.LittleEndian.PutUint32(buffer[8:12], h.NumKeys)
	putName(buffer[12:12+constants.DictNameLength], h.Name)
	return buffer
}

// UnmarshalHeader - decode and validate a header
func UnmarshalHeader(buffer []byte) (Header, error) {
	if len(buffer) < HeaderSize {
		return Header{}, fault.ErrCorruptRecord
	}
	h := Header{
		Flags:   binary.LittleEndian.Uint32(buffer[0:4]),
		Age:     binary.LittleEndian.Uint32(buffer[4:8]),
		NumKeys: binary.LittleEndian.Uint32(buffer[8:12]),
	}
	if 0 == h.Flags&FlagValid || h.NumKeys > constants.MaxKeysPerDict {
		return Header{}, fault.ErrCorruptRecord
	}
	name, ok := getName(buffer[12 : 12+constants.DictNameLength])
	if !ok {
		return Header{}, fault.ErrCorruptRecord
	}
	h.Name = name
	return h, nil
}

// Marshal - one stride
func (e DictKeyEntry) Marshal() []byte {
	buffer := make([]byte, constants.DKStride)
	binary.LittleEndian.PutUint64(buffer[0:8], e.Start)
	binary.LittleEndian.PutUint64(buffer[8:16], e.Len)
	binary.LittleEndian.PutUint64(buffer[16:24], e.Reserved)
	binary.LittleEndian.PutUint32(buffer[24:28], e.Flags)
	binary.LittleEndian.PutUint32(buffer[28:32], e.Age)
	putName(buffer[32:32+constants.KeyNameLength], e.Name)
	return buffer
}

// UnmarshalDictKeyEntry - decode one stride, an unused slot returns
// false without error
func UnmarshalDictKeyEntry(buffer []byte) (DictKeyEntry, bool, error) {
	if len(buffer) < constants.DKStride {
		return DictKeyEntry{}, false, fault.ErrCorruptRecord
	}
	e := DictKeyEntry{
		Start:    binary.LittleEndian.Uint64(buffer[0:8]),
		Len:      binary.LittleEndian.Uint64(buffer[8:16]),
		Reserved: binary.LittleEndian.Uint64(buffer[16:24]),
		Flags:    binary.LittleEndian.Uint32(buffer[24:28]),
		Age:      binary.LittleEndian.Uint32(buffer[28:32]),
	}
	if 0 == e.Flags&FlagValid {
		return DictKeyEntry{}, false, nil
	}
	if e.Len > constants.MaxKeyLength {
		return DictKeyEntry{}, false, fault.ErrCorruptRecord
	}
	name, ok := getName(buffer[32 : 32+constants.KeyNameLength])
	if !ok {
		return DictKeyEntry{}, false, fault.ErrCorruptRecord
	}
	e.Name = name
	return e, true, nil
}

// CheckDictName - 1 to 126 bytes
func CheckDictName(name string) error {
	if 0 == len(name) || len(name) > constants.MaxDictNameBytes {
		return fault.ErrDictNameLength
	}
	return nil
}

// CheckKeyName - 1 to 94 bytes
func CheckKeyName(name string) error {
	if 0 == len(name) || len(name) > constants.MaxKeyNameBytes {
		return fault.ErrKeyNameLength
	}
	return nil
}
