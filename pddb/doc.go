// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package pddb - plausibly deniable database
//
// a Pddb is the single owner of a medium: it mounts bases, resolves
// (basis?, dict, key) paths and hands out key handles.  A Pddb is not
// safe for concurrent use; a Server serialises requests from any
// number of goroutines through one queue.
package pddb
