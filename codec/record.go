// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package codec

import (
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"

	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/fault"
)

// first four bytes of the digest of the first twelve bytes
func checksum(record []byte) uint32 {
	digest := sha256.Sum256(record[:12])
	return binary.LittleEndian.Uint32(digest[0:4])
}

func seal(block cipher.Block, record []byte) []byte {
	binary.LittleEndian.PutUint32(record[12:16], checksum(record))
	out := make([]byte, constants.BlockRecordSize)
	block.Encrypt(out, record)
	return out
}

func open(block cipher.Block, raw []byte) ([]byte, error) {
	if constants.BlockRecordSize != len(raw) {
		return nil, fault.ErrCorruptRecord
	}
	record := make([]byte, constants.BlockRecordSize)
	block.Decrypt(record, raw)
	if binary.LittleEndian.Uint32(record[12:16]) != checksum(record) {
		return nil, fault.ErrCorruptRecord
	}
	return record, nil
}

// SealPTE - page table entry: vpage u32 || counter u64 || checksum u32
func SealPTE(keys *Keys, vpage uint32, counter uint64) ([]byte, error) {
	if keys.IsZero() {
		return nil, fault.ErrNotInitialised
	}
	record := make([]byte, constants.BlockRecordSize)
	binary.LittleEndian.PutUint32(record[0:4], vpage)
	binary.LittleEndian.PutUint64(record[4:12], counter)
	return seal(keys.tableBlock, record), nil
}

// OpenPTE - returns the vpage and counter of a valid entry
//
// noise and entries of other bases fail with a corrupt record error
func OpenPTE(keys *Keys, raw []byte) (uint32, uint64, error) {
	if keys.IsZero() {
		return 0, 0, fault.ErrNotInitialised
	}
	record, err := open(keys.tableBlock, raw)
	if nil != err {
		return 0, 0, err
	}
	return binary.LittleEndian.Uint32(record[0:4]), binary.LittleEndian.Uint64(record[4:12]), nil
}

// SealSpaceUpdate - journal record: counter u64 || physpage u32 || checksum u32
func SealSpaceUpdate(keys *Keys, counter uint64, physPage uint32) ([]byte, error) {
	if keys.IsZero() {
		return nil, fault.ErrNotInitialised
	}
	record := make([]byte, constants.BlockRecordSize)
	binary.LittleEndian.PutUint64(record[0:8], counter)
	binary.LittleEndian.PutUint32(record[8:12], physPage)
	return seal(keys.journalBlock, record), nil
}

// OpenSpaceUpdate - returns the counter and packed physical page
func OpenSpaceUpdate(keys *Keys, raw []byte) (uint64, uint32, error) {
	if keys.IsZero() {
		return 0, 0, fault.ErrNotInitialised
	}
	record, err := open(keys.journalBlock, raw)
	if nil != err {
		return 0, 0, err
	}
	return binary.LittleEndian.Uint64(record[0:8]), binary.LittleEndian.Uint32(record[8:12]), nil
}
