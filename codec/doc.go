// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package codec - encryption of data pages and of the small fixed
// records (page table entries and space updates)
//
// all material for one basis is derived from its mount key, so a page
// written by any basis is indistinguishable from noise without that key
//
// data page:
//   nonce(12) || ciphertext(4068) || tag(16)
//   plaintext = vpage u32 || payload(4064)
//   nonce     = physical page u32 || counter u64
//
// page table entry and space update are single 16 byte blocks
package codec
