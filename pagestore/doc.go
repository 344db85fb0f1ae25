// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package pagestore - raw access to the storage medium
//
// The medium is an array of fixed size pages.  A page is written
// whole; an erased page reads back as all 0xff bytes.  Nothing here
// knows about encryption, the database is the sole writer.
//
// Backends:
//
//   RAMStore     - volatile, for tests and emulation
//   FileStore    - a flat image file, page n at offset n*PageSize
//   LevelDBStore - page number (big endian uint32) -> page bytes,
//                  absent keys read as erased
package pagestore
