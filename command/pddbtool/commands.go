// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/urfave/cli"

	"github.com/bitmark-inc/pddb/basis"
	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/pddb"
)

func printJson(handle io.Writer, message interface{}) error {

	b, err := json.MarshalIndent(message, "", "  ")
	if nil != err {
		return err
	}

	fmt.Fprintf(handle, "%s\n", b)
	return nil
}

// mount the requested bases in order, the last is topmost
func (m *metadata) mount(c *cli.Context) error {
	return m.mountNames(c.StringSlice("mount"))
}

func (m *metadata) mountNames(names []string) error {
	if 0 == len(names) {
		names = []string{constants.SystemBasis}
	}
	for _, name := range names {
		key, err := m.basisKey(name, false)
		if nil != err {
			return err
		}
		result, err := m.db.Mount(name, key)
		if nil != err {
			if m.verbose {
				fmt.Fprintf(m.e, "mount: %q  result: %s  error: %s\n", name, result, err)
			}
			return ErrMountFailed
		}
		if m.verbose {
			fmt.Fprintf(m.e, "mounted: %q\n", name)
		}
	}
	return nil
}

func optionalBasis(c *cli.Context) *string {
	if name := c.String("basis"); "" != name {
		return &name
	}
	return nil
}

func requiredNames(c *cli.Context, key bool) (string, string, error) {
	dict := c.String("dict")
	if "" == dict {
		return "", "", ErrMissingDict
	}
	name := c.String("key")
	if key && "" == name {
		return "", "", ErrMissingKey
	}
	return dict, name, nil
}

func runFormat(c *cli.Context) error {
	m := c.App.Metadata["config"].(*metadata)
	if !c.Bool("yes") {
		return ErrNotConfirmed
	}

	if err := pddb.Format(m.store, m.config.Layout.JournalPages, nil); nil != err {
		return err
	}

	options, err := m.config.Options()
	if nil != err {
		return err
	}
	m.db, err = pddb.New(m.store, options)
	if nil != err {
		return err
	}

	key, err := m.basisKey(constants.SystemBasis, true)
	if nil != err {
		return err
	}
	if err := m.db.CreateBasis(constants.SystemBasis, key); nil != err {
		return err
	}

	return printJson(m.w, m.db.Geometry())
}

func runCreate(c *cli.Context) error {
	m := c.App.Metadata["config"].(*metadata)
	name := c.String("basis")
	if "" == name {
		return ErrMissingBasis
	}

	// pages are only claimed around mounted bases, so anything left
	// unmounted here could be overwritten by the new basis
	if err := m.mount(c); nil != err {
		return err
	}
	if err := m.createBasis(name); nil != err {
		return err
	}
	if m.verbose {
		fmt.Fprintf(m.e, "created: %q\n", name)
	}
	return nil
}

func (m *metadata) createBasis(name string) error {
	key, err := m.basisKey(name, true)
	if nil != err {
		return err
	}
	return m.db.CreateBasis(name, key)
}

func runPut(c *cli.Context) error {
	m := c.App.Metadata["config"].(*metadata)
	dict, key, err := requiredNames(c, true)
	if nil != err {
		return err
	}

	var data []byte
	if file := c.String("file"); "" != file {
		data, err = ioutil.ReadFile(file)
	} else {
		data, err = ioutil.ReadAll(os.Stdin)
	}
	if nil != err {
		return err
	}

	options := pddb.GetOptions{
		Basis:      optionalBasis(c),
		Create:     true,
		CreateDict: true,
	}
	if s := c.String("policy"); "" != s {
		policy, err := basis.ParsePolicy(s)
		if nil != err {
			return err
		}
		options.Policy = &policy
	}

	if err := m.mount(c); nil != err {
		return err
	}
	h, err := m.db.Get(dict, key, options)
	if nil != err {
		return err
	}
	if err := h.Truncate(0); nil != err {
		return err
	}
	if _, err := h.Write(data); nil != err {
		return err
	}
	if err := m.db.Sync(); nil != err {
		return err
	}
	if m.verbose {
		fmt.Fprintf(m.e, "stored: %d bytes\n", len(data))
	}
	return nil
}

func runGet(c *cli.Context) error {
	m := c.App.Metadata["config"].(*metadata)
	dict, key, err := requiredNames(c, true)
	if nil != err {
		return err
	}
	if err := m.mount(c); nil != err {
		return err
	}
	h, err := m.db.Get(dict, key, pddb.GetOptions{
		Basis:    optionalBasis(c),
		ReadOnly: true,
	})
	if nil != err {
		return err
	}
	_, err = io.Copy(m.w, h)
	return err
}

func runList(c *cli.Context) error {
	m := c.App.Metadata["config"].(*metadata)
	if err := m.mount(c); nil != err {
		return err
	}

	type listing struct {
		Bases []string `json:"bases"`
		Dict  string   `json:"dict,omitempty"`
		Names []string `json:"names"`
	}
	result := listing{
		Bases: m.db.ListBasis(),
		Dict:  c.String("dict"),
	}

	var err error
	if "" == result.Dict {
		result.Names, err = m.db.ListDicts(optionalBasis(c))
	} else {
		result.Names, err = m.db.ListKeys(result.Dict, optionalBasis(c))
	}
	if nil != err {
		return err
	}
	return printJson(m.w, result)
}

func runDelete(c *cli.Context) error {
	m := c.App.Metadata["config"].(*metadata)
	dict, key, err := requiredNames(c, false)
	if nil != err {
		return err
	}
	if err := m.mount(c); nil != err {
		return err
	}

	if "" == key {
		err = m.db.DeleteDict(dict, optionalBasis(c))
	} else {
		err = m.db.DeleteKey(dict, key, optionalBasis(c))
	}
	if nil != err {
		return err
	}
	if err := m.db.Sync(); nil != err {
		return err
	}

	if c.Bool("scrub") {
		n, err := m.db.Scrub(int(m.db.Geometry().DataPages))
		if nil != err {
			return err
		}
		if m.verbose {
			fmt.Fprintf(m.e, "scrubbed: %d pages\n", n)
		}
	}
	return nil
}

func runStats(c *cli.Context) error {
	m := c.App.Metadata["config"].(*metadata)
	if err := m.mount(c); nil != err {
		return err
	}
	return printJson(m.w, m.db.Stats())
}
