// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package dictcache_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/dictcache"
	"github.com/bitmark-inc/pddb/fault"
)

func TestHeader(t *testing.T) {
	h := dictcache.Header{
		Flags:   dictcache.FlagValid,
		Age:     3,
		NumKeys: 17,
		Name:    "settings",
	}
	buffer := h.Marshal()
	assert.Len(t, buffer, 2*constants.DKStride)
	assert.True(t, dictcache.HeaderSize >= 127)

	h2, err := dictcache.UnmarshalHeader(buffer)
	require.NoError(t, err)
	assert.Equal(t, h, h2)

	_, err = dictcache.UnmarshalHeader(make([]byte, 2*constants.DKStride))
	assert.Equal(t, fault.ErrCorruptRecord, err)
}

func TestDictKeyEntry(t *testing.T) {
	e := dictcache.DictKeyEntry{
		Start:    1<<20 + 64,
		Len:      5000,
		Reserved: 2 * constants.VPageSize,
		Flags:    dictcache.FlagValid,
		Age:      9,
		Name:     strings.Repeat("k", constants.MaxKeyNameBytes),
	}
	buffer := e.Marshal()
	assert.Len(t, buffer, constants.DKStride)

	e2, ok, err := dictcache.UnmarshalDictKeyEntry(buffer)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, e, e2)

	_, ok, err = dictcache.UnmarshalDictKeyEntry(make([]byte, constants.DKStride))
	assert.NoError(t, err)
	assert.False(t, ok, "zero slot is not a key")
}

func TestNameLimits(t *testing.T) {
	assert.NoError(t, dictcache.CheckKeyName(strings.Repeat("k", constants.MaxKeyNameBytes)))
	assert.Equal(t, fault.ErrKeyNameLength, dictcache.CheckKeyName(strings.Repeat("k", constants.MaxKeyNameBytes+1)))
	assert.Equal(t, fault.ErrKeyNameLength, dictcache.CheckKeyName(""))

	assert.NoError(t, dictcache.CheckDictName(strings.Repeat("d", constants.MaxDictNameBytes)))
	assert.Equal(t, fault.ErrDictNameLength, dictcache.CheckDictName(strings.Repeat("d", constants.MaxDictNameBytes+1)))
}

func TestLayout(t *testing.T) {
	assert.Equal(t, 32, constants.DKPerVPage)
	assert.Equal(t, 2046, constants.MaxKeysPerDict)
	assert.Equal(t, 2080768, constants.MaxKeyLength)

	assert.Equal(t, uint32(3<<20+64), dictcache.KeyStart(3, 2))
	last := dictcache.KeyStart(3, constants.DescriptorSlots-1) + constants.KeyVPages
	assert.True(t, last <= dictcache.WindowBase(4), "extent crosses window")
}
