// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package codec

import (
	"encoding/binary"

	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/fault"
)

const aadPrefix = "pddb"

// the nonce is stored in clear at the front of the page
func pageNonce(page uint32, counter uint64) []byte {
	nonce := make([]byte, constants.NonceSize)
	binary.LittleEndian.PutUint32(nonce[0:4], page)
	binary.LittleEndian.PutUint64(nonce[4:12], counter)
	return nonce
}

// associated data binds the page to its basis and virtual address
func pageAAD(basisName string, vpage uint32) []byte {
	aad := make([]byte, 0, len(aadPrefix)+2+len(basisName)+4)
	aad = append(aad, aadPrefix...)
	aad = append(aad, byte(constants.FormatVersion), byte(constants.FormatVersion>>8))
	aad = append(aad, basisName...)
	var v [4]byte
	binary.LittleEndian.PutUint32(v[:], vpage)
	return append(aad, v[:]...)
}

// EncryptPage - produce one physical page from a vpage payload
//
// counter must be the value consumed by the allocation of this page,
// every allocation has a fresh counter so (page, counter) never repeats
// for a key; a short payload is zero filled
func EncryptPage(keys *Keys, basisName string, page uint32, counter uint64, vpage uint32, payload []byte) ([]byte, error) {
	if keys.IsZero() {
		return nil, fault.ErrNotInitialised
	}
	if len(payload) > constants.VPageSize {
		return nil, fault.ErrInvalidPageData
	}

	plaintext := make([]byte, constants.PlaintextSize)
	binary.LittleEndian.PutUint32(plaintext[0:constants.PageHeaderSize], vpage)
	copy(plaintext[constants.PageHeaderSize:], payload)

	nonce := pageNonce(page, counter)
	raw := make([]byte, constants.NonceSize, constants.PageSize)
	copy(raw, nonce)
	raw = keys.aead.Seal(raw, nonce, plaintext, pageAAD(basisName, vpage))

	return raw, nil
}

// DecryptPage - verify and open one physical page expected to hold vpage
//
// every failure, wrong key, wrong page or damaged medium, is reported
// as the same authentication error
func DecryptPage(keys *Keys, basisName string, page uint32, vpage uint32, raw []byte) (uint64, []byte, error) {
	if keys.IsZero() {
		return 0, nil, fault.ErrNotInitialised
	}
	if constants.PageSize != len(raw) {
		return 0, nil, fault.ErrAuthenticationFailed
	}

	nonce := raw[:constants.NonceSize]
	if binary.LittleEndian.Uint32(nonce[0:4]) != page {
		return 0, nil, fault.ErrAuthenticationFailed
	}
	counter := binary.LittleEndian.Uint64(nonce[4:12])

	plaintext, err := keys.aead.Open(nil, nonce, raw[constants.NonceSize:], pageAAD(basisName, vpage))
	if nil != err {
		return 0, nil, fault.ErrAuthenticationFailed
	}
	if binary.LittleEndian.Uint32(plaintext[0:constants.PageHeaderSize]) != vpage {
		return 0, nil, fault.ErrAuthenticationFailed
	}

	return counter, plaintext[constants.PageHeaderSize:], nil
}
