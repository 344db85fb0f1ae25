// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package configuration_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitmark-inc/pddb/basis"
	"github.com/bitmark-inc/pddb/configuration"
	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/fault"
)

const sample = `
local M = {}

M.data_directory = "."

M.medium = {
    backend = "ram",
    file = "media/pddb.img",
    pages = 4096,
}

M.layout = {
    journal_pages = 16,
    basis_pool = 128,
}

M.policy = {
    write = "all",
    checkpoint_records = 100,
    scrub_batch = 8,
    paranoid_erase = true,
}

M.scrubber = {
    interval = 250,
    rate = 2.5,
    burst = 3,
}

M.logging = {
    directory = "log",
    file = "pddb.log",
    size = 1048576,
    count = 5,
    levels = {
        DEFAULT = "info",
        basis = "debug",
    },
}

return M
`

func writeFile(t *testing.T, dir string, content string) string {
	name := filepath.Join(dir, "pddb.conf")
	require.NoError(t, ioutil.WriteFile(name, []byte(content), 0600), "write configuration")
	return name
}

func TestGetConfiguration(t *testing.T) {
	dir, err := ioutil.TempDir("", "pddb-configuration")
	require.NoError(t, err, "temp dir")
	defer os.RemoveAll(dir)

	conf, err := configuration.GetConfiguration(writeFile(t, dir, sample))
	require.NoError(t, err, "get configuration")

	dir, err = filepath.EvalSymlinks(dir)
	require.NoError(t, err, "eval symlinks")
	actual, err := filepath.EvalSymlinks(conf.DataDirectory)
	require.NoError(t, err, "eval symlinks")
	assert.Equal(t, dir, actual, "data directory is the configuration directory")

	assert.Equal(t, configuration.BackendRAM, conf.Medium.Backend, "backend")
	assert.Equal(t, uint32(4096), conf.Medium.Pages, "pages")
	assert.True(t, filepath.IsAbs(conf.Medium.File), "absolute medium file")
	assert.Equal(t, "pddb.img", filepath.Base(conf.Medium.File), "medium file")
	assert.True(t, filepath.IsAbs(conf.Logging.Directory), "absolute log directory")
	assert.Equal(t, "debug", conf.Logging.Levels["basis"], "log level")

	options, err := conf.Options()
	require.NoError(t, err, "options")
	assert.Equal(t, uint32(16), options.JournalPages, "journal pages")
	assert.Equal(t, basis.WriteAll, options.Policy, "policy")
	assert.True(t, options.ParanoidErase, "paranoid erase")
	assert.Equal(t, 128, options.Basis.Pool, "pool")
	assert.Equal(t, 100, options.Basis.CheckpointRecords, "checkpoint records")

	// not set in the file
	assert.Equal(t, constants.DefaultCacheExpiry, options.Basis.CacheExpiry, "cache expiry")
	assert.Equal(t, uint32(5), conf.KDF.Iterations, "kdf iterations")

	server := conf.ServerOptions()
	assert.Equal(t, 250*time.Millisecond, server.ScrubInterval, "interval")
	assert.Equal(t, 2.5, server.ScrubRate, "rate")
	assert.Equal(t, 3, server.ScrubBurst, "burst")
	assert.Equal(t, 8, server.ScrubBatch, "batch")

	store, created, err := conf.OpenMedium()
	require.NoError(t, err, "open medium")
	assert.True(t, created, "ram medium is always new")
	assert.Equal(t, uint32(4096), store.PageCount(), "page count")
	require.NoError(t, store.Close(), "close")
}

func TestConfigurationErrors(t *testing.T) {
	dir, err := ioutil.TempDir("", "pddb-configuration")
	require.NoError(t, err, "temp dir")
	defer os.RemoveAll(dir)

	_, err = configuration.GetConfiguration(writeFile(t, dir, `return { data_directory = "." , medium = { backend = "tape" } }`))
	assert.Equal(t, fault.ErrUnknownBackend, err, "backend")

	_, err = configuration.GetConfiguration(writeFile(t, dir, `return { data_directory = "." , policy = { write = "sometimes" } }`))
	assert.Equal(t, fault.ErrInvalidPolicy, err, "policy")

	_, err = configuration.GetConfiguration(writeFile(t, dir, `return { data_directory = "." , medium = { pages = 20 } }`))
	assert.Equal(t, fault.ErrInvalidGeometry, err, "too small")

	_, err = configuration.GetConfiguration(writeFile(t, dir, `return { data_directory = "" }`))
	assert.Error(t, err, "empty data directory")

	_, err = configuration.GetConfiguration(writeFile(t, dir, `return 42`))
	assert.Equal(t, fault.ErrInvalidConfiguration, err, "not a table")

	_, err = configuration.GetConfiguration(filepath.Join(dir, "missing.conf"))
	assert.Error(t, err, "missing file")
}

func TestParseConfigurationString(t *testing.T) {
	conf := configuration.Defaults()
	err := configuration.ParseConfigurationString(`return { kdf = { iterations = 9 }, policy = { write = "first" } }`, conf)
	require.NoError(t, err, "parse")
	assert.Equal(t, uint32(9), conf.KDF.Iterations, "iterations")
	assert.Equal(t, uint32(constants.DefaultJournalPages), conf.Layout.JournalPages, "default kept")
	require.NoError(t, conf.Validate(), "validate")

	options, err := conf.Options()
	require.NoError(t, err, "options")
	assert.Equal(t, basis.WriteFirstMatch, options.Policy, "policy")

	assert.Equal(t, fault.ErrInvalidStructPointer, configuration.ParseConfigurationString(`return {}`, *conf), "not a pointer")
	assert.Error(t, configuration.ParseConfigurationString(`return {`, conf), "syntax error")
}
