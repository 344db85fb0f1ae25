// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strconv"

	"github.com/bitmark-inc/exitwithstatus"
	"github.com/bitmark-inc/getoptions"
	"github.com/bitmark-inc/logger"

	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/counter"
	"github.com/bitmark-inc/pddb/fastspace"
	"github.com/bitmark-inc/pddb/pagestore"
)

// set by the linker: go build -ldflags "-X main.version=M.N" ./...
var version = "zero" // do not change this value

// a page whose byte histogram is further than this from uniform is
// reported as not looking like noise
const chiSquareLimit = 400.0

// main program
func main() {
	// ensure exit handler is first
	defer exitwithstatus.Handler()

	flags := []getoptions.Option{
		{Long: "help", HasArg: getoptions.NO_ARGUMENT, Short: 'h'},
		{Long: "verbose", HasArg: getoptions.NO_ARGUMENT, Short: 'v'},
		{Long: "version", HasArg: getoptions.NO_ARGUMENT, Short: 'V'},
		{Long: "leveldb", HasArg: getoptions.NO_ARGUMENT, Short: 'l'},
		{Long: "file", HasArg: getoptions.REQUIRED_ARGUMENT, Short: 'f'},
		{Long: "journal-pages", HasArg: getoptions.REQUIRED_ARGUMENT, Short: 'j'},
	}

	program, options, _, err := getoptions.GetOS(flags)
	if nil != err {
		exitwithstatus.Message("%s: getoptions error: %s", program, err)
	}

	if len(options["version"]) > 0 {
		exitwithstatus.Message("%s: version: %s", program, version)
	}

	if len(options["help"]) > 0 || 1 != len(options["file"]) {
		exitwithstatus.Message("usage: %s [--help] [--verbose] [--leveldb] [--journal-pages=N] --file=IMAGE", program)
	}

	verbose := len(options["verbose"]) > 0

	journalPages := uint32(constants.DefaultJournalPages)
	if len(options["journal-pages"]) > 0 {
		n, err := strconv.ParseUint(options["journal-pages"][0], 10, 32)
		if nil != err {
			exitwithstatus.Message("%s: convert journal pages error: %s", program, err)
		}
		journalPages = uint32(n)
	}

	logging := logger.Configuration{
		Directory: ".",
		File:      "pddbdump.log",
		Size:      1048576,
		Count:     10,
		Console:   true,
		Levels: map[string]string{
			logger.DefaultTag: "critical",
		},
	}

	// start logging
	if err = logger.Initialise(logging); nil != err {
		exitwithstatus.Message("%s: logger setup failed with error: %s", program, err)
	}
	defer logger.Finalise()

	fileName := options["file"][0]
	var store pagestore.PageStore
	if len(options["leveldb"]) > 0 {
		store, err = pagestore.OpenLevelDBStore(fileName, 0)
	} else {
		store, err = pagestore.OpenFileStore(fileName, 0)
	}
	if nil != err {
		exitwithstatus.Message("%s: open: %q  error: %s", program, fileName, err)
	}
	defer store.Close()

	g, err := pagestore.NewGeometry(store.PageCount(), journalPages)
	if nil != err {
		exitwithstatus.Message("%s: geometry error: %s", program, err)
	}

	fmt.Printf("pages:         %8d\n", g.Pages)
	fmt.Printf("journal pages: %8d  [0, %d)\n", g.JournalPages, g.JournalPages)
	fmt.Printf("table pages:   %8d  [%d, %d)\n", g.TablePages, g.JournalPages, g.DataStart)
	fmt.Printf("data pages:    %8d  [%d, %d)\n", g.DataPages, g.DataStart, g.Pages)

	journal, err := fastspace.OpenJournal(store, g.JournalPages, &counter.Statistics{}, logger.New("dump"))
	if nil != err {
		exitwithstatus.Message("%s: journal error: %s", program, err)
	}
	fmt.Printf("journal:       %8d/%d records  %5.1f%%\n", journal.Used(), journal.Capacity(), 100*journal.Fill())

	report := func(title string, first uint32, last uint32) {
		r, err := survey(store, first, last)
		if nil != err {
			exitwithstatus.Message("%s: survey error: %s", program, err)
		}
		fmt.Printf("%s  erased: %d  noise: %d  suspect: %d\n", title, r.erased, r.noise, len(r.suspect))
		if verbose {
			for _, s := range r.suspect {
				fmt.Printf("  page: %d  chi²: %.1f\n", s.page, s.chiSquare)
			}
		}
	}
	report("table region:", g.JournalPages, g.DataStart)
	report("data region: ", g.DataStart, g.Pages)
}
