// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package fixtures - shared set up for package tests
package fixtures

import (
	"bytes"
	"fmt"
	"os"

	"github.com/bitmark-inc/logger"

	"github.com/bitmark-inc/pddb/codec"
	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/pagestore"
)

const (
	dir         = "testing"
	LogCategory = "testing"
)

// medium sizes used by tests
const (
	TestPages        = 2048
	TestJournalPages = 8
)

func SetupTestLogger() {
	removeFiles()
	_ = os.Mkdir(dir, 0700)

	logging := logger.Configuration{
		Directory: dir,
		File:      fmt.Sprintf("%s.log", LogCategory),
		Size:      1048576,
		Count:     10,
		Console:   false,
		Levels: map[string]string{
			logger.DefaultTag: "critical",
		},
	}

	// start logging
	_ = logger.Initialise(logging)
}

func TeardownTestLogger() {
	logger.Finalise()
	removeFiles()
}

func removeFiles() {
	err := os.RemoveAll(dir)
	if nil != err {
		fmt.Println("remove dir with error: ", err)
	}
}

// Key - a deterministic basis key
func Key(b byte) []byte {
	return bytes.Repeat([]byte{b}, codec.KeySize)
}

// Keys - derived subkeys for a test basis, panics on failure
func Keys(name string, b byte) *codec.Keys {
	keys, err := codec.DeriveKeys(name, Key(b))
	if nil != err {
		panic(err)
	}
	return keys
}

// Medium - a RAM medium laid out like a freshly formatted one: erased
// journal, noise everywhere else
func Medium(pages uint32, journalPages uint32) (*pagestore.RAMStore, pagestore.Geometry) {
	g, err := pagestore.NewGeometry(pages, journalPages)
	if nil != err {
		panic(err)
	}
	s, err := pagestore.NewRAMStore(pages)
	if nil != err {
		panic(err)
	}
	for page := g.JournalPages; page < g.Pages; page += 1 {
		noise, err := codec.Noise(nil, constants.PageSize)
		if nil != err {
			panic(err)
		}
		if err := s.WritePage(page, noise); nil != err {
			panic(err)
		}
	}
	return s, g
}
