// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package dictcache - in memory mirror of one dictionary's key records
//
// dictionary i occupies vpage window i:
//   window + [0, 64)                descriptor vpages, 32 records each
//                                   slots 0-1 of vpage 0 hold the header
//   window + 64 + (k-2)*512 ...     data extent of the key in slot k
//
// all reads and writes of key data go through a PageIO supplied by the
// basis, which handles allocation and encryption
package dictcache
