// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package fastspace - per basis page allocator and the shared space
// update journal
//
// page states move Free -> MaybeUsed -> Used -> Dirty -> Free and every
// transition is journaled before it is relied upon.  The whole
// structure is written rarely, as a checkpoint, into one vpage of its
// basis using make-before-break.
//
// mount order:
//   1. load the highest verified checkpoint
//   2. Apply the journal records newer than its counter
//   3. Recover against the live page table entries
package fastspace
