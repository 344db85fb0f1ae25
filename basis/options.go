// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package basis

import (
	"io"
	"time"

	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/counter"
)

// Options - tuning shared by every basis of a database
type Options struct {
	Pool              int           // pages claimed when a basis is created
	CheckpointRecords int           // journal records that make a checkpoint due
	CacheExpiry       time.Duration // decrypted vpage lifetime
	CacheCleanup      time.Duration

	// noise source, nil for the system random source
	Random io.Reader

	Stats *counter.Statistics

	// pages that must not be allocated, set by the manager
	Exclude func(page uint32) bool
}

func (o *Options) setDefaults() {
	if o.Pool <= 0 {
		o.Pool = constants.DefaultBasisPool
	}
	if o.Pool > constants.FastSpaceCapacity {
		o.Pool = constants.FastSpaceCapacity
	}
	if o.CheckpointRecords <= 0 {
		o.CheckpointRecords = constants.DefaultCheckpointRecords
	}
	if 0 == o.CacheExpiry {
		o.CacheExpiry = constants.DefaultCacheExpiry
	}
	if 0 == o.CacheCleanup {
		o.CacheCleanup = constants.DefaultCacheCleanup
	}
	if nil == o.Stats {
		o.Stats = &counter.Statistics{}
	}
}

// pages claimed at a time once the pool runs short
func (o *Options) claimBatch() int {
	n := o.Pool / 8
	if n < 1 {
		n = 1
	}
	return n
}

// journal records a single checkpoint can consume
func (o *Options) checkpointReserve() int {
	return 4 + o.claimBatch()
}
