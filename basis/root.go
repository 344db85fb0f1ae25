// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package basis

import (
	"bytes"
	"encoding/binary"

	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/fault"
)

var rootMagic = []byte("PDDB-BAS")

// root record in vpage 0
//
// magic[8] || version u16 || name[64] || age u32 || dict count u32
type rootRecord struct {
	name      string
	age       uint32
	dictCount uint32
}

const (
	rootNameOffset  = 10
	rootAgeOffset   = rootNameOffset + constants.BasisNameLength
	rootCountOffset = rootAgeOffset + 4
	rootSize        = rootCountOffset + 4
)

func (r rootRecord) marshal() []byte {
	buffer := make([]byte, rootSize)
	copy(buffer, rootMagic)
	binary.LittleEndian.PutUint16(buffer[8:10], constants.FormatVersion)
	buffer[rootNameOffset] = byte(len(r.name))
	copy(buffer[rootNameOffset+1:rootAgeOffset], r.name)
	binary.LittleEndian.PutUint32(buffer[rootAgeOffset:], r.age)
	binary.LittleEndian.PutUint32(buffer[rootCountOffset:], r.dictCount)
	return buffer
}

func unmarshalRoot(buffer []byte) (rootRecord, error) {
	if len(buffer) < rootSize || !bytes.Equal(buffer[:8], rootMagic) {
		return rootRecord{}, fault.ErrCorruptRecord
	}
	if constants.FormatVersion != binary.LittleEndian.Uint16(buffer[8:10]) {
		return rootRecord{}, fault.ErrCorruptRecord
	}
	n := int(buffer[rootNameOffset])
	if 0 == n || n > constants.MaxBasisNameLen {
		return rootRecord{}, fault.ErrCorruptRecord
	}
	return rootRecord{
		name:      string(buffer[rootNameOffset+1 : rootNameOffset+1+n]),
		age:       binary.LittleEndian.Uint32(buffer[rootAgeOffset:]),
		dictCount: binary.LittleEndian.Uint32(buffer[rootCountOffset:]),
	}, nil
}
