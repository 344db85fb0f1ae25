// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fastspace

// SpaceState - allocation state of one physical page
type SpaceState uint8

// the four page states, values are stored in two bits on the medium
const (
	Free SpaceState = iota
	MaybeUsed
	Used
	Dirty
)

var stateNames = [...]string{"Free", "MaybeUsed", "Used", "Dirty"}

func (s SpaceState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Invalid"
}

// PhysPage - page number in the upper 30 bits, state in the lower 2
type PhysPage uint32

const (
	stateBits = 2
	stateMask = 1<<stateBits - 1
)

// NewPhysPage - pack a page and its state
func NewPhysPage(page uint32, state SpaceState) PhysPage {
	return PhysPage(page<<stateBits | uint32(state)&stateMask)
}

// Page - the physical page number
func (p PhysPage) Page() uint32 {
	return uint32(p) >> stateBits
}

// State - the space state
func (p PhysPage) State() SpaceState {
	return SpaceState(uint32(p) & stateMask)
}

// the legal edges of the state machine
func validTransition(from SpaceState, to SpaceState) bool {
	switch to {
	case MaybeUsed:
		return Free == from
	case Used:
		return MaybeUsed == from
	case Dirty:
		return Used == from || MaybeUsed == from
	case Free:
		return Dirty == from
	}
	return false
}
