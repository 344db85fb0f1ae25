// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"github.com/bitmark-inc/pddb/fault"
)

// common errors - keep in alphabetic order
const (
	ErrMissingBasis     = fault.InvalidError("basis name is required")
	ErrMissingDict      = fault.InvalidError("dictionary name is required")
	ErrMissingKey       = fault.InvalidError("key name is required")
	ErrMountFailed      = fault.AuthenticationError("mount failed")
	ErrNotConfirmed     = fault.InvalidError("format needs --yes")
	ErrNotFormatted     = fault.NotFoundError("medium is not formatted, run format first")
	ErrPasswordLength   = fault.InvalidError("password must be at least 8 characters")
	ErrPasswordMismatch = fault.InvalidError("passwords do not match")
)
