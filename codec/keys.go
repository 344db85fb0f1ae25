// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/fault"
)

// KeySize - bytes in a basis key
const KeySize = 32

const (
	keySalt     = "pddb-basis-key"
	dataInfo    = "data"
	tableInfo   = "page-table"
	journalInfo = "journal"
)

// Keys - the subkeys of one mounted basis
type Keys struct {
	data    [KeySize]byte
	table   [KeySize]byte
	journal [KeySize]byte

	aead         cipher.AEAD
	tableBlock   cipher.Block
	journalBlock cipher.Block
}

// DeriveKeys - split a basis key into independent subkeys
//
// the basis name is bound in, so the same password on two bases does
// not produce related ciphertext
func DeriveKeys(basisName string, key []byte) (*Keys, error) {
	if KeySize != len(key) {
		return nil, fault.ErrInvalidKeyLength
	}
	if 0 == len(basisName) || len(basisName) > constants.MaxBasisNameLen {
		return nil, fault.ErrBasisNameLength
	}

	k := &Keys{}
	for _, sub := range []struct {
		info string
		out  []byte
	}{
		{dataInfo, k.data[:]},
		{tableInfo, k.table[:]},
		{journalInfo, k.journal[:]},
	} {
		r := hkdf.New(sha256.New, key, []byte(keySalt), []byte(sub.info+"\x00"+basisName))
		if _, err := io.ReadFull(r, sub.out); nil != err {
			return nil, err
		}
	}

	var err error
	k.aead, err = chacha20poly1305.New(k.data[:])
	if nil != err {
		return nil, err
	}
	k.tableBlock, err = aes.NewCipher(k.table[:])
	if nil != err {
		return nil, err
	}
	k.journalBlock, err = aes.NewCipher(k.journal[:])
	if nil != err {
		return nil, err
	}
	return k, nil
}

// Zero - wipe the subkeys, the Keys must not be used afterwards
func (k *Keys) Zero() {
	if nil == k {
		return
	}
	for i := range k.data {
		k.data[i] = 0
		k.table[i] = 0
		k.journal[i] = 0
	}
	k.aead = nil
	k.tableBlock = nil
	k.journalBlock = nil
}

// IsZero - true after Zero
func (k *Keys) IsZero() bool {
	return nil == k || nil == k.aead
}
