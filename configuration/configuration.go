// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package configuration

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bitmark-inc/logger"

	"github.com/bitmark-inc/pddb/basis"
	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/fault"
	"github.com/bitmark-inc/pddb/pagestore"
	"github.com/bitmark-inc/pddb/pddb"
	"github.com/bitmark-inc/pddb/util"
)

// medium backends
const (
	BackendRAM     = "ram"
	BackendFile    = "file"
	BackendLevelDB = "leveldb"
)

// basic defaults (directories and files are relative to the "DataDirectory" from Configuration file)
const (
	defaultDataDirectory = "" // this will error; use "." for the same directory as the config file

	defaultBackend     = BackendFile
	defaultMediumFile  = "pddb.img"
	defaultMediumPages = 16384 // 64 MiB

	defaultLogDirectory = "log"
	defaultLogFile      = "pddb.log"
	defaultLogCount     = 10          //  number of log files retained
	defaultLogSize      = 1024 * 1024 // rotate when <logfile> exceeds this size

	defaultKDFIterations  = 5
	defaultKDFMemory      = 1 << 16
	defaultKDFParallelism = 4
)

// to hold log levels
type LoglevelMap map[string]string

// path expanded or calculated defaults
var (
	defaultLogLevels = LoglevelMap{
		logger.DefaultTag: "critical",
	}
)

// MediumType - where the pages live
type MediumType struct {
	Backend string `gluamapper:"backend" json:"backend"`
	File    string `gluamapper:"file" json:"file"`
	Pages   uint32 `gluamapper:"pages" json:"pages"`
}

// LayoutType - region sizes fixed at format time
type LayoutType struct {
	JournalPages uint32 `gluamapper:"journal_pages" json:"journal_pages"`
	BasisPool    int    `gluamapper:"basis_pool" json:"basis_pool"`
}

// PolicyType - write fan-out and maintenance thresholds
type PolicyType struct {
	Write             string `gluamapper:"write" json:"write"`
	CheckpointRecords int    `gluamapper:"checkpoint_records" json:"checkpoint_records"`
	ScrubBatch        int    `gluamapper:"scrub_batch" json:"scrub_batch"`
	ParanoidErase     bool   `gluamapper:"paranoid_erase" json:"paranoid_erase"`
}

// CacheType - decrypted page cache, times in seconds
type CacheType struct {
	Expiry  int `gluamapper:"expiry" json:"expiry"`
	Cleanup int `gluamapper:"cleanup" json:"cleanup"`
}

// ScrubberType - idle scrubber, interval in milliseconds and zero to
// disable, rate in batches per second
type ScrubberType struct {
	Interval int     `gluamapper:"interval" json:"interval"`
	Rate     float64 `gluamapper:"rate" json:"rate"`
	Burst    int     `gluamapper:"burst" json:"burst"`
}

// KDFType - argon2 parameters for turning a password into a basis key
type KDFType struct {
	Iterations  uint32 `gluamapper:"iterations" json:"iterations"`
	Memory      uint32 `gluamapper:"memory" json:"memory"`
	Parallelism uint32 `gluamapper:"parallelism" json:"parallelism"`
}

// Configuration - everything a command needs to open a database
type Configuration struct {
	DataDirectory string               `gluamapper:"data_directory" json:"data_directory"`
	Medium        MediumType           `gluamapper:"medium" json:"medium"`
	Layout        LayoutType           `gluamapper:"layout" json:"layout"`
	Policy        PolicyType           `gluamapper:"policy" json:"policy"`
	Cache         CacheType            `gluamapper:"cache" json:"cache"`
	Scrubber      ScrubberType         `gluamapper:"scrubber" json:"scrubber"`
	KDF           KDFType              `gluamapper:"kdf" json:"kdf"`
	Logging       logger.Configuration `gluamapper:"logging" json:"logging"`
}

// Defaults - configuration before any file is read
func Defaults() *Configuration {
	return &Configuration{
		DataDirectory: defaultDataDirectory,

		Medium: MediumType{
			Backend: defaultBackend,
			File:    defaultMediumFile,
			Pages:   defaultMediumPages,
		},

		Layout: LayoutType{
			JournalPages: constants.DefaultJournalPages,
			BasisPool:    constants.DefaultBasisPool,
		},

		Policy: PolicyType{
			Write:             basis.WriteTopmost.String(),
			CheckpointRecords: constants.DefaultCheckpointRecords,
			ScrubBatch:        constants.DefaultScrubBatch,
		},

		Cache: CacheType{
			Expiry:  int(constants.DefaultCacheExpiry / time.Second),
			Cleanup: int(constants.DefaultCacheCleanup / time.Second),
		},

		Scrubber: ScrubberType{
			Interval: int(constants.DefaultScrubInterval / time.Millisecond),
			Rate:     1,
			Burst:    1,
		},

		KDF: KDFType{
			Iterations:  defaultKDFIterations,
			Memory:      defaultKDFMemory,
			Parallelism: defaultKDFParallelism,
		},

		Logging: logger.Configuration{
			Directory: defaultLogDirectory,
			File:      defaultLogFile,
			Size:      defaultLogSize,
			Count:     defaultLogCount,
			Levels:    defaultLogLevels,
		},
	}
}

// GetConfiguration - read decode and verify the configuration
func GetConfiguration(configurationFileName string) (*Configuration, error) {

	configurationFileName, err := filepath.Abs(filepath.Clean(configurationFileName))
	if nil != err {
		return nil, err
	}

	// absolute path to the main directory
	dataDirectory, _ := filepath.Split(configurationFileName)

	options := Defaults()
	if err := ParseConfigurationFile(configurationFileName, options); err != nil {
		return nil, err
	}

	if err := options.resolvePaths(dataDirectory); nil != err {
		return nil, err
	}
	if err := options.Validate(); nil != err {
		return nil, err
	}
	return options, nil
}

func (c *Configuration) resolvePaths(configurationDirectory string) error {

	// ensure absolute data directory
	if "" == c.DataDirectory || "~" == c.DataDirectory {
		return fmt.Errorf("Path: %q is not a valid directory", c.DataDirectory)
	} else if "." == c.DataDirectory {
		c.DataDirectory = configurationDirectory // same directory as the configuration file
	} else {
		c.DataDirectory = filepath.Clean(c.DataDirectory)
	}

	// this directory must exist - i.e. must be created prior to running
	if !util.EnsureDirectory(c.DataDirectory) {
		return fmt.Errorf("Path: %q is not a directory", c.DataDirectory)
	}

	// force all relevant items to be absolute paths
	// if not, assign them to the data directory
	mustBeAbsolute := []*string{
		&c.Medium.File,
		&c.Logging.Directory,
	}
	for _, f := range mustBeAbsolute {
		*f = util.EnsureAbsolute(c.DataDirectory, *f)
	}

	// the log file must be a plain name inside the log directory
	switch filepath.Dir(c.Logging.File) {
	case "", ".":
	default:
		return fmt.Errorf("Files: %q is not plain name", c.Logging.File)
	}
	return nil
}

// Validate - check values that cannot be defaulted
func (c *Configuration) Validate() error {
	c.Medium.Backend = strings.ToLower(c.Medium.Backend)
	switch c.Medium.Backend {
	case BackendRAM, BackendFile, BackendLevelDB:
	default:
		return fault.ErrUnknownBackend
	}
	if _, err := pagestore.NewGeometry(c.Medium.Pages, c.Layout.JournalPages); nil != err {
		return err
	}
	if _, err := basis.ParsePolicy(c.Policy.Write); nil != err {
		return err
	}
	if c.Scrubber.Interval < 0 || c.Scrubber.Rate < 0 || c.Scrubber.Burst < 0 {
		return fault.ErrInvalidConfiguration
	}
	return nil
}

// Options - database options from the configuration
func (c *Configuration) Options() (pddb.Options, error) {
	policy, err := basis.ParsePolicy(c.Policy.Write)
	if nil != err {
		return pddb.Options{}, err
	}
	return pddb.Options{
		JournalPages:  c.Layout.JournalPages,
		Policy:        policy,
		ParanoidErase: c.Policy.ParanoidErase,
		Basis: basis.Options{
			Pool:              c.Layout.BasisPool,
			CheckpointRecords: c.Policy.CheckpointRecords,
			CacheExpiry:       time.Duration(c.Cache.Expiry) * time.Second,
			CacheCleanup:      time.Duration(c.Cache.Cleanup) * time.Second,
		},
	}, nil
}

// ServerOptions - request server and scrubber settings
func (c *Configuration) ServerOptions() pddb.ServerOptions {
	return pddb.ServerOptions{
		ScrubInterval: time.Duration(c.Scrubber.Interval) * time.Millisecond,
		ScrubRate:     c.Scrubber.Rate,
		ScrubBurst:    c.Scrubber.Burst,
		ScrubBatch:    c.Policy.ScrubBatch,
	}
}

// OpenMedium - open or create the configured page store
//
// the second result is true if the medium was just created and needs
// formatting
func (c *Configuration) OpenMedium() (pagestore.PageStore, bool, error) {
	switch c.Medium.Backend {
	case BackendRAM:
		s, err := pagestore.NewRAMStore(c.Medium.Pages)
		return s, true, err
	case BackendFile:
		created := !util.EnsureFileExists(c.Medium.File)
		s, err := pagestore.OpenFileStore(c.Medium.File, c.Medium.Pages)
		if nil != err {
			return nil, false, err
		}
		return s, created, nil
	case BackendLevelDB:
		created := !util.EnsureFileExists(c.Medium.File)
		s, err := pagestore.OpenLevelDBStore(c.Medium.File, c.Medium.Pages)
		if nil != err {
			return nil, false, err
		}
		return s, created, nil
	}
	return nil, false, fault.ErrUnknownBackend
}
