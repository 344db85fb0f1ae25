// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package basis - independently keyed overlays of the medium and the
// manager that resolves requests across the mounted ones
//
// a basis maps vpages to physical pages through encrypted page table
// entries; every vpage write goes to a fresh page (copy-on-write):
//
//   allocate (MaybeUsed) -> write page -> write table entry -> commit
//   (Used) -> scrub old table entry -> release old page (Dirty)
//
// so at any interruption the highest counter table entry for a vpage
// names a complete page
package basis
