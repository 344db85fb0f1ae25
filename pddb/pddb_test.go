// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pddb_test

import (
	"errors"
	"io"
	"io/ioutil"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitmark-inc/pddb/basis"
	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/fault"
	"github.com/bitmark-inc/pddb/fixtures"
	"github.com/bitmark-inc/pddb/pagestore/mocks"
	"github.com/bitmark-inc/pddb/pddb"
)

func TestVolumeSurvivesRemount(t *testing.T) {
	store := formatted(t)
	p := open(t, store, basis.WriteTopmost)
	k1 := fixtures.Key(1)
	k2 := fixtures.Key(2)

	require.NoError(t, p.CreateBasis("alpha", k1), "create")
	result, err := p.Mount("alpha", k1)
	require.NoError(t, err, "mount")
	require.Equal(t, basis.Success, result, "mount")

	alpha := "alpha"
	h, err := p.Get("settings", "volume", pddb.GetOptions{
		Basis:      &alpha,
		Create:     true,
		CreateDict: true,
	})
	require.NoError(t, err, "get")
	n, err := h.Write([]byte{5})
	require.NoError(t, err, "write")
	assert.Equal(t, 1, n, "written")
	require.NoError(t, p.Sync(), "sync")
	require.NoError(t, p.Unmount("alpha"), "unmount")

	// a fresh service context on the same medium
	p = open(t, store, basis.WriteTopmost)
	result, err = p.Mount("alpha", k1)
	require.NoError(t, err, "remount")
	require.Equal(t, basis.Success, result, "remount")
	assert.Equal(t, []byte{5}, read(t, p, &alpha, "settings", "volume"), "volume")
	require.NoError(t, p.Unmount("alpha"), "unmount")

	result, err = p.Mount("alpha", k2)
	assert.Equal(t, basis.WrongPassword, result, "wrong key")
	assert.Equal(t, fault.ErrAuthenticationFailed, err, "wrong key")
	assert.Empty(t, p.ListBasis(), "nothing mounted")
}

func TestGetOptions(t *testing.T) {
	p := withBases(t, basis.WriteTopmost, "alpha")

	_, err := p.Get("settings", "volume", pddb.GetOptions{})
	assert.Equal(t, fault.ErrKeyNotFound, err, "no create")

	_, err = p.Get("settings", "volume", pddb.GetOptions{Create: true})
	assert.Equal(t, fault.ErrDictNotFound, err, "no dict create")

	_, err = p.Get("settings", "volume", pddb.GetOptions{Create: true, ReadOnly: true, CreateDict: true})
	assert.Equal(t, fault.ErrPermissionDenied, err, "read only create")

	_, err = p.Get("", "volume", pddb.GetOptions{})
	assert.Equal(t, fault.ErrDictNameLength, err, "empty dict")
	_, err = p.Get("settings", "", pddb.GetOptions{})
	assert.Equal(t, fault.ErrKeyNameLength, err, "empty key")

	created := 0
	options := pddb.GetOptions{
		Create:     true,
		CreateDict: true,
		OnCreate:   func() { created += 1 },
	}
	h, err := p.Get("settings", "volume", options)
	require.NoError(t, err, "create")
	length, err := h.Len()
	require.NoError(t, err, "len")
	assert.Zero(t, length, "new key is empty")

	_, err = p.Get("settings", "volume", options)
	require.NoError(t, err, "existing")
	assert.Equal(t, 1, created, "on create called once")

	h, err = p.Get("settings", "volume", pddb.GetOptions{ReadOnly: true})
	require.NoError(t, err, "read only")
	_, err = h.Write([]byte{1})
	assert.Equal(t, fault.ErrPermissionDenied, err, "read only write")
	assert.Equal(t, fault.ErrPermissionDenied, h.Truncate(0), "read only truncate")

	// dict now exists, so a plain create is enough
	_, err = p.Get("settings", "bass", pddb.GetOptions{Create: true})
	require.NoError(t, err, "create in existing dict")

	missing := "gamma"
	_, err = p.Get("settings", "volume", pddb.GetOptions{Basis: &missing})
	assert.Equal(t, fault.ErrBasisNotMounted, err, "unknown basis")

	require.NoError(t, p.Close(), "close")

	_, err = p.Get("settings", "volume", pddb.GetOptions{})
	assert.Equal(t, fault.ErrNoBasisMounted, err, "nothing mounted")
}

func TestKeyAttributes(t *testing.T) {
	store := formatted(t)
	p := open(t, store, basis.WriteTopmost)
	require.NoError(t, p.CreateBasis("alpha", fixtures.Key(1)), "create")
	_, err := p.Mount("alpha", fixtures.Key(1))
	require.NoError(t, err, "mount")

	h, err := p.Get("media", "clip", pddb.GetOptions{
		Create:     true,
		CreateDict: true,
		Attributes: 0x0c,
	})
	require.NoError(t, err, "create with attributes")
	_, err = h.Write([]byte("frames"))
	require.NoError(t, err, "write")

	// the valid bit cannot be set or cleared by the caller
	h, err = p.Get("media", "still", pddb.GetOptions{Create: true, Attributes: 0x01})
	require.NoError(t, err, "create with reserved bit")
	attributes, err := h.Attributes()
	require.NoError(t, err, "attributes")
	assert.Zero(t, attributes, "reserved bit dropped")

	// later opens do not change them
	_, err = p.Get("media", "clip", pddb.GetOptions{Create: true, Attributes: 0x30})
	require.NoError(t, err, "existing")
	require.NoError(t, p.Close(), "close")

	p = open(t, store, basis.WriteTopmost)
	_, err = p.Mount("alpha", fixtures.Key(1))
	require.NoError(t, err, "remount")
	h, err = p.Get("media", "clip", pddb.GetOptions{ReadOnly: true})
	require.NoError(t, err, "get")
	attributes, err = h.Attributes()
	require.NoError(t, err, "attributes")
	assert.Equal(t, uint32(0x0c), attributes, "attributes after remount")
	require.NoError(t, p.Close(), "close")
}

func TestKeyHandle(t *testing.T) {
	p := withBases(t, basis.WriteTopmost, "alpha")
	h, err := p.Get("notes", "todo", pddb.GetOptions{Create: true, CreateDict: true})
	require.NoError(t, err, "get")

	_, err = h.Write([]byte("hello world"))
	require.NoError(t, err, "write")

	buffer := make([]byte, 4)
	_, err = h.Read(buffer)
	assert.Equal(t, io.EOF, err, "read at end")

	position, err := h.Seek(0, io.SeekStart)
	require.NoError(t, err, "seek start")
	assert.Equal(t, int64(0), position, "position")
	data, err := ioutil.ReadAll(h)
	require.NoError(t, err, "read all")
	assert.Equal(t, "hello world", string(data), "content")

	_, err = h.Seek(-5, io.SeekEnd)
	require.NoError(t, err, "seek end")
	_, err = h.Write([]byte("there"))
	require.NoError(t, err, "overwrite")

	_, err = h.Seek(0, io.SeekStart)
	require.NoError(t, err, "seek start")
	data, err = ioutil.ReadAll(h)
	require.NoError(t, err, "read all")
	assert.Equal(t, "hello there", string(data), "overwritten")

	require.NoError(t, h.Truncate(5), "shrink")
	require.NoError(t, h.Truncate(8), "grow")
	_, err = h.Seek(0, io.SeekStart)
	require.NoError(t, err, "seek start")
	data, err = ioutil.ReadAll(h)
	require.NoError(t, err, "read all")
	assert.Equal(t, []byte("hello\x00\x00\x00"), data, "truncated")

	// writing past the end leaves a zero gap
	_, err = h.Seek(2, io.SeekEnd)
	require.NoError(t, err, "seek past end")
	_, err = h.Write([]byte{9})
	require.NoError(t, err, "write past end")
	length, err := h.Len()
	require.NoError(t, err, "len")
	assert.Equal(t, uint64(11), length, "length")

	_, err = h.Seek(-1, io.SeekCurrent)
	require.NoError(t, err, "seek back")
	_, err = h.Seek(-100, io.SeekCurrent)
	assert.Equal(t, fault.ErrInvalidOffset, err, "negative position")
	_, err = h.Seek(0, 7)
	assert.Equal(t, fault.ErrInvalidOffset, err, "bad whence")
	assert.Equal(t, fault.ErrKeyTooLarge, h.Truncate(constants.MaxKeyLength+1), "too large")

	dict, key := h.Name()
	assert.Equal(t, "notes", dict, "dict")
	assert.Equal(t, "todo", key, "key")

	require.NoError(t, p.Close(), "close")
}

func TestLargeKey(t *testing.T) {
	p := withBases(t, basis.WriteTopmost, "alpha")

	data := make([]byte, 5*constants.VPageSize+17)
	for i := range data {
		data[i] = byte(i % 251)
	}
	write(t, p, "alpha", "media", "clip", data)
	assert.Equal(t, data, read(t, p, nil, "media", "clip"), "content")

	require.NoError(t, p.Unmount("alpha"), "unmount")
	_, err := p.Mount("alpha", fixtures.Key(1))
	require.NoError(t, err, "mount")
	assert.Equal(t, data, read(t, p, nil, "media", "clip"), "content after remount")
	require.NoError(t, p.Close(), "close")
}

func TestListAndDelete(t *testing.T) {
	p := withBases(t, basis.WriteTopmost, "alpha", "beta")

	write(t, p, "alpha", "settings", "volume", []byte{1})
	write(t, p, "alpha", "settings", "bass", []byte{2})
	write(t, p, "alpha", "wifi", "home", []byte{3})
	write(t, p, "beta", "settings", "volume", []byte{4})
	write(t, p, "beta", "secret", "diary", []byte{5})

	assert.Equal(t, []string{"beta", "alpha"}, p.ListBasis(), "bases")

	dicts, err := p.ListDicts(nil)
	require.NoError(t, err, "list dicts")
	assert.Equal(t, []string{"secret", "settings", "wifi"}, dicts, "union of dicts")

	alpha := "alpha"
	dicts, err = p.ListDicts(&alpha)
	require.NoError(t, err, "list alpha dicts")
	assert.Equal(t, []string{"settings", "wifi"}, dicts, "alpha dicts")

	keys, err := p.ListKeys("settings", nil)
	require.NoError(t, err, "list keys")
	assert.Equal(t, []string{"bass", "volume"}, keys, "union of keys")

	_, err = p.ListKeys("nosuch", nil)
	assert.Equal(t, fault.ErrDictNotFound, err, "missing dict")

	assert.Equal(t, []byte{4}, read(t, p, nil, "settings", "volume"), "topmost wins")

	// without a basis the key goes from every basis that has it
	require.NoError(t, p.DeleteKey("settings", "volume", nil), "delete")
	_, err = p.Get("settings", "volume", pddb.GetOptions{})
	assert.Equal(t, fault.ErrKeyNotFound, err, "deleted everywhere")
	assert.Equal(t, fault.ErrKeyNotFound, p.DeleteKey("settings", "volume", nil), "delete twice")

	require.NoError(t, p.DeleteKey("settings", "bass", &alpha), "delete named")
	keys, err = p.ListKeys("settings", nil)
	require.NoError(t, err, "list keys")
	assert.Empty(t, keys, "no keys left")

	require.NoError(t, p.DeleteDict("wifi", nil), "delete dict")
	assert.Equal(t, fault.ErrDictNotFound, p.DeleteDict("wifi", nil), "delete dict twice")

	stats := p.Stats()
	require.Len(t, stats.Bases, 2, "basis stats")
	assert.Equal(t, "beta", stats.Bases[0].Name, "topmost first")
	dirty := stats.Bases[0].Space.Dirty + stats.Bases[1].Space.Dirty
	assert.NotZero(t, dirty, "deleted pages are dirty")

	n, err := p.Scrub(1000)
	require.NoError(t, err, "scrub")
	assert.Equal(t, dirty, n, "scrubbed everything")
	assert.NotZero(t, p.Stats().Counters.PagesErased, "erase counted")

	require.NoError(t, p.Checkpoint(), "checkpoint")
	require.NoError(t, p.Close(), "close")
}

func TestWritePolicies(t *testing.T) {
	for _, item := range []struct {
		policy basis.Policy
		alpha  []byte
		beta   []byte
	}{
		{basis.WriteTopmost, []byte{1}, []byte{9}},
		{basis.WriteFirstMatch, []byte{1}, []byte{9}},
		{basis.WriteAll, []byte{9}, []byte{9}},
	} {
		p := withBases(t, item.policy, "alpha", "beta")
		write(t, p, "alpha", "settings", "volume", []byte{1})
		write(t, p, "beta", "settings", "volume", []byte{2})

		h, err := p.Get("settings", "volume", pddb.GetOptions{})
		require.NoError(t, err, "%s: get", item.policy)
		_, err = h.Write([]byte{9})
		require.NoError(t, err, "%s: write", item.policy)

		alpha := "alpha"
		beta := "beta"
		assert.Equal(t, item.alpha, read(t, p, &alpha, "settings", "volume"), "%s: alpha", item.policy)
		assert.Equal(t, item.beta, read(t, p, &beta, "settings", "volume"), "%s: beta", item.policy)
		require.NoError(t, p.Close(), "close")
	}
}

func TestCopyUpAndOverride(t *testing.T) {
	p := withBases(t, basis.WriteTopmost, "alpha", "beta")
	write(t, p, "alpha", "settings", "bass", []byte{1, 2, 3})

	h, err := p.Get("settings", "bass", pddb.GetOptions{})
	require.NoError(t, err, "get")
	_, err = h.Write([]byte{7})
	require.NoError(t, err, "write")

	alpha := "alpha"
	beta := "beta"
	assert.Equal(t, []byte{1, 2, 3}, read(t, p, &alpha, "settings", "bass"), "lower basis untouched")
	assert.Equal(t, []byte{7, 2, 3}, read(t, p, &beta, "settings", "bass"), "copied up then written")

	all := basis.WriteAll
	h, err = p.Get("settings", "bass", pddb.GetOptions{Policy: &all})
	require.NoError(t, err, "get")
	_, err = h.Seek(2, io.SeekStart)
	require.NoError(t, err, "seek")
	_, err = h.Write([]byte{8})
	require.NoError(t, err, "write all")
	assert.Equal(t, []byte{1, 2, 8}, read(t, p, &alpha, "settings", "bass"), "alpha")
	assert.Equal(t, []byte{7, 2, 8}, read(t, p, &beta, "settings", "bass"), "beta")

	require.NoError(t, p.Close(), "close")
}

func TestFormat(t *testing.T) {
	store := formatted(t)
	p := open(t, store, basis.WriteTopmost)
	require.NoError(t, p.CreateBasis("alpha", fixtures.Key(1)), "create")
	_, err := p.Mount("alpha", fixtures.Key(1))
	require.NoError(t, err, "mount")

	assert.Equal(t, fault.ErrBasisMounted, p.Format(), "format while mounted")
	require.NoError(t, p.Unmount("alpha"), "unmount")
	require.NoError(t, p.Format(), "format")

	result, err := p.Mount("alpha", fixtures.Key(1))
	assert.Equal(t, basis.WrongPassword, result, "basis gone")
	assert.Equal(t, fault.ErrAuthenticationFailed, err, "basis gone")

	g := p.Geometry()
	assert.Equal(t, uint32(fixtures.TestPages), g.Pages, "pages")
	assert.Equal(t, uint32(fixtures.TestJournalPages), g.JournalPages, "journal")
}

func TestMediumFailure(t *testing.T) {
	ctl := gomock.NewController(t)
	defer ctl.Finish()

	ram := formatted(t)
	injected := errors.New("bad block")

	store := mocks.NewMockPageStore(ctl)
	store.EXPECT().PageCount().Return(ram.PageCount()).AnyTimes()
	store.EXPECT().ReadPage(gomock.Any()).DoAndReturn(ram.ReadPage).AnyTimes()
	store.EXPECT().WritePage(gomock.Any(), gomock.Any()).Return(injected).AnyTimes()
	store.EXPECT().EraseRegion(gomock.Any(), gomock.Any()).DoAndReturn(ram.EraseRegion).AnyTimes()

	p := open(t, store, basis.WriteTopmost)
	err := p.CreateBasis("alpha", fixtures.Key(1))
	assert.True(t, fault.IsErrMedium(err), "medium error")
	assert.True(t, errors.Is(err, injected), "backend error kept")
	assert.Empty(t, p.ListBasis(), "nothing mounted")
}
