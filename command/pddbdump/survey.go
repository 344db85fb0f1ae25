// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/pagestore"
)

type suspectPage struct {
	page      uint32
	chiSquare float64
}

type surveyResult struct {
	erased  int
	noise   int
	suspect []suspectPage
}

// classify pages in [first, last) as erased, noise-like or suspect
//
// ciphertext and noise should both pass; anything else on a formatted
// medium is a page that was written in the clear
func survey(store pagestore.PageStore, first uint32, last uint32) (surveyResult, error) {
	r := surveyResult{}
	for page := first; page < last; page += 1 {
		data, err := store.ReadPage(page)
		if nil != err {
			return r, err
		}
		if pagestore.IsErased(data) {
			r.erased += 1
			continue
		}
		x := chiSquare(data)
		if x > chiSquareLimit {
			r.suspect = append(r.suspect, suspectPage{page: page, chiSquare: x})
			continue
		}
		r.noise += 1
	}
	return r, nil
}

// Pearson's statistic of the byte histogram against uniform, 255
// degrees of freedom
func chiSquare(data []byte) float64 {
	histogram := [256]int{}
	for _, b := range data {
		histogram[b] += 1
	}
	expected := float64(constants.PageSize) / 256
	x := 0.0
	for _, n := range histogram {
		d := float64(n) - expected
		x += d * d / expected
	}
	return x
}
