// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package basis

import (
	"strings"

	"github.com/bitmark-inc/pddb/fault"
)

// Policy - where a write without a named basis goes
type Policy int

// write policies
const (
	// the topmost basis, copying the record up from a lower basis first
	WriteTopmost Policy = iota

	// the first basis in resolution order that has the key
	WriteFirstMatch

	// every mounted basis that has the key
	WriteAll
)

// ParsePolicy - from a configuration value
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "topmost":
		return WriteTopmost, nil
	case "first", "firstmatch":
		return WriteFirstMatch, nil
	case "all":
		return WriteAll, nil
	}
	return WriteTopmost, fault.ErrInvalidPolicy
}

func (p Policy) String() string {
	switch p {
	case WriteTopmost:
		return "topmost"
	case WriteFirstMatch:
		return "first"
	case WriteAll:
		return "all"
	}
	return "unknown"
}
