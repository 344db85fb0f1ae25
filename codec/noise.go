// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package codec

import (
	"crypto/rand"
	"io"
)

// Noise - n random bytes, used to fill free pages and unused table slots
//
// a nil reader means the system random source
func Noise(r io.Reader, n int) ([]byte, error) {
	if nil == r {
		r = rand.Reader
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); nil != err {
		return nil, err
	}
	return b, nil
}
