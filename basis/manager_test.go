// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package basis_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitmark-inc/pddb/basis"
	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/fault"
	"github.com/bitmark-inc/pddb/fixtures"
)

func mountAll(t *testing.T, m *basis.Manager, names ...string) {
	for i, name := range names {
		require.NoError(t, m.Create(name, fixtures.Key(byte(i+1))), "create %s", name)
		result, err := m.Mount(name, fixtures.Key(byte(i+1)))
		require.NoError(t, err, "mount %s", name)
		require.Equal(t, basis.Success, result, "mount %s", name)
	}
}

func mounted(t *testing.T, m *basis.Manager, name string) *basis.Basis {
	b, err := m.Basis(name)
	require.NoError(t, err, "basis %s", name)
	return b
}

func TestManagerMountOrder(t *testing.T) {
	m := newMedium(t).manager()

	_, err := m.Topmost()
	assert.Equal(t, fault.ErrNoBasisMounted, err, "empty")

	mountAll(t, m, constants.SystemBasis, "alpha", "beta")
	assert.Equal(t, []string{"beta", "alpha", constants.SystemBasis}, m.List(), "topmost first")

	top, err := m.Topmost()
	require.NoError(t, err, "topmost")
	assert.Equal(t, "beta", top.Name(), "topmost")

	_, err = m.Mount("alpha", fixtures.Key(2))
	assert.Equal(t, fault.ErrBasisMounted, err, "mount twice")
	assert.Equal(t, fault.ErrBasisExists, m.Create("alpha", fixtures.Key(9)), "create mounted name")

	require.NoError(t, m.Unmount("alpha"), "unmount")
	assert.Equal(t, fault.ErrBasisNotMounted, m.Unmount("alpha"), "unmount twice")
	assert.Equal(t, []string{"beta", constants.SystemBasis}, m.List(), "after unmount")

	require.NoError(t, m.UnmountAll(), "unmount all")
	assert.Empty(t, m.List(), "nothing mounted")
}

func TestManagerIsolation(t *testing.T) {
	md := newMedium(t)
	m := md.manager()
	mountAll(t, m, "alpha", "beta")

	alpha := mounted(t, m, "alpha")
	beta := mounted(t, m, "beta")
	for i := 0; i < 10; i += 1 {
		key := fmt.Sprintf("k%d", i)
		put(t, alpha, "shared", key, pattern(constants.VPageSize+i, 1))
		put(t, beta, "shared", key, pattern(constants.VPageSize+i, 2))
	}

	// no page belongs to both
	for page := md.geometry.DataStart; page < md.geometry.Pages; page += 1 {
		assert.False(t, alpha.Owns(page) && beta.Owns(page), "page %d shared", page)
	}

	require.NoError(t, m.UnmountAll(), "unmount all")

	// each basis alone, most recent first
	for i, name := range []string{"alpha", "beta"} {
		result, err := m.Mount(name, fixtures.Key(byte(i+1)))
		require.NoError(t, err, "mount %s", name)
		require.Equal(t, basis.Success, result, "mount %s", name)

		b := mounted(t, m, name)
		for k := 0; k < 10; k += 1 {
			key := fmt.Sprintf("k%d", k)
			assert.Equal(t, pattern(constants.VPageSize+k, byte(i+1)), get(t, b, "shared", key), "%s %s", name, key)
		}
		require.NoError(t, m.Unmount(name), "unmount %s", name)
	}

	result, err := m.Mount("alpha", fixtures.Key(2))
	assert.Equal(t, basis.WrongPassword, result, "other basis key")
	assert.Equal(t, fault.ErrAuthenticationFailed, err, "other basis key")
}

func TestManagerResolve(t *testing.T) {
	m := newMedium(t).manager()
	mountAll(t, m, "alpha", "beta")

	alpha := mounted(t, m, "alpha")
	beta := mounted(t, m, "beta")
	put(t, alpha, "settings", "volume", []byte{1})
	put(t, alpha, "settings", "bass", []byte{2})
	put(t, beta, "settings", "volume", []byte{3})

	b, err := m.Resolve(nil, "settings", "volume")
	require.NoError(t, err, "resolve")
	assert.Equal(t, "beta", b.Name(), "topmost wins")

	b, err = m.Resolve(nil, "settings", "bass")
	require.NoError(t, err, "resolve")
	assert.Equal(t, "alpha", b.Name(), "falls through")

	name := "beta"
	_, err = m.Resolve(&name, "settings", "bass")
	assert.Equal(t, fault.ErrKeyNotFound, err, "named basis only")

	name = "gamma"
	_, err = m.Resolve(&name, "settings", "bass")
	assert.Equal(t, fault.ErrBasisNotMounted, err, "unknown basis")

	holders, err := m.Holders(nil, "settings", "volume")
	require.NoError(t, err, "holders")
	require.Len(t, holders, 2, "holders")
	assert.Equal(t, "beta", holders[0].Name(), "holder order")

	require.NoError(t, m.UnmountAll(), "unmount all")
}

func TestManagerWritePolicies(t *testing.T) {
	m := newMedium(t).manager()
	mountAll(t, m, "alpha", "beta")

	alpha := mounted(t, m, "alpha")
	beta := mounted(t, m, "beta")
	put(t, alpha, "settings", "volume", []byte{1})
	put(t, beta, "settings", "volume", []byte{2})
	put(t, alpha, "settings", "bass", []byte{4, 4})

	names := func(bases []*basis.Basis) []string {
		list := make([]string, 0, len(bases))
		for _, b := range bases {
			list = append(list, b.Name())
		}
		return list
	}

	targets, err := m.WriteTargets(nil, "settings", "volume", basis.WriteFirstMatch)
	require.NoError(t, err, "first match")
	assert.Equal(t, []string{"beta"}, names(targets), "first match")

	targets, err = m.WriteTargets(nil, "settings", "volume", basis.WriteAll)
	require.NoError(t, err, "all")
	assert.Equal(t, []string{"beta", "alpha"}, names(targets), "all")

	name := "alpha"
	targets, err = m.WriteTargets(&name, "settings", "volume", basis.WriteTopmost)
	require.NoError(t, err, "named")
	assert.Equal(t, []string{"alpha"}, names(targets), "named")

	// bass only exists in alpha, topmost copies it up first
	ok, err := beta.HasKey("settings", "bass")
	require.NoError(t, err, "has key")
	require.False(t, ok, "not in beta yet")

	targets, err = m.WriteTargets(nil, "settings", "bass", basis.WriteTopmost)
	require.NoError(t, err, "topmost")
	assert.Equal(t, []string{"beta"}, names(targets), "topmost")
	assert.Equal(t, []byte{4, 4}, get(t, beta, "settings", "bass"), "copied up")
	assert.Equal(t, []byte{4, 4}, get(t, alpha, "settings", "bass"), "original kept")

	_, err = m.WriteTargets(nil, "settings", "treble", basis.WriteTopmost)
	assert.Equal(t, fault.ErrKeyNotFound, err, "missing key")

	_, err = m.WriteTargets(nil, "settings", "volume", basis.Policy(99))
	assert.Equal(t, fault.ErrInvalidPolicy, err, "bad policy")

	require.NoError(t, m.UnmountAll(), "unmount all")
}

func TestParsePolicy(t *testing.T) {
	for _, item := range []struct {
		s string
		p basis.Policy
	}{
		{"", basis.WriteTopmost},
		{"topmost", basis.WriteTopmost},
		{"first", basis.WriteFirstMatch},
		{"firstmatch", basis.WriteFirstMatch},
		{"all", basis.WriteAll},
	} {
		p, err := basis.ParsePolicy(item.s)
		assert.NoError(t, err, "parse %q", item.s)
		assert.Equal(t, item.p, p, "parse %q", item.s)
	}
	_, err := basis.ParsePolicy("sometimes")
	assert.Equal(t, fault.ErrInvalidPolicy, err, "bad policy")
}

func TestManagerRollover(t *testing.T) {
	md := newMedium(t)
	m := md.manager()
	mountAll(t, m, "alpha", "beta")

	alpha := mounted(t, m, "alpha")
	beta := mounted(t, m, "beta")

	// enough rewrites to wrap the journal several times
	rounds := 3 * md.journal.Capacity() / (2 * 16)
	for i := 0; i < rounds; i += 1 {
		put(t, alpha, "log", "entry", pattern(8*constants.VPageSize, byte(i)))
		put(t, beta, "log", "entry", pattern(8*constants.VPageSize, byte(i+1)))
		require.NoError(t, m.Sync(), "sync %d", i)
		_, err := m.Scrub(1000)
		require.NoError(t, err, "scrub %d", i)
	}
	assert.True(t, md.stats.Checkpoints.Uint64() > 0, "checkpoints")
	assert.True(t, md.journal.Used() < md.journal.Capacity(), "journal not full")

	require.NoError(t, m.Rollover(), "rollover")
	assert.Zero(t, md.journal.Used(), "journal erased")

	last := byte(rounds - 1)
	require.NoError(t, m.UnmountAll(), "unmount all")

	_, err := m.Mount("alpha", fixtures.Key(1))
	require.NoError(t, err, "mount alpha")
	_, err = m.Mount("beta", fixtures.Key(2))
	require.NoError(t, err, "mount beta")

	assert.Equal(t, pattern(8*constants.VPageSize, last), get(t, mounted(t, m, "alpha"), "log", "entry"), "alpha")
	assert.Equal(t, pattern(8*constants.VPageSize, last+1), get(t, mounted(t, m, "beta"), "log", "entry"), "beta")

	_, err = m.Scrub(10000)
	require.NoError(t, err, "scrub")
	require.NoError(t, m.Checkpoint(), "checkpoint")
	require.NoError(t, m.UnmountAll(), "unmount all")
}
