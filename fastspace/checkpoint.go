// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fastspace

// Writer - stores checkpoints on behalf of the basis that owns them
type Writer interface {
	// write payload as the fast space vpage into the allocated page,
	// publish its table entry and read it back, any mismatch is an error
	StoreFastSpace(a Allocation, payload []byte) error

	// remove the table entry of a superseded checkpoint page
	RetireFastSpace(page uint32) error
}

// Checkpoint - make-before-break write of the whole structure
//
// the new generation is written into a fresh page and verified before
// the previous page is retired; on any failure the previous generation
// stays authoritative
func (f *FastSpace) Checkpoint(w Writer, exclude func(uint32) bool) error {
	allocations, err := f.Allocate(1, exclude)
	if nil != err {
		return err
	}
	a := allocations[0]

	f.generation += 1
	payload := f.Serialize()

	if err := w.StoreFastSpace(a, payload); nil != err {
		f.generation -= 1
		f.log.Errorf("checkpoint generation: %d  error: %s", f.generation+1, err)
		if e := f.Release([]uint32{a.Page}); nil != e {
			f.log.Warnf("release page: %d  error: %s", a.Page, e)
		}
		return err
	}

	if err := f.Commit([]uint32{a.Page}); nil != err {
		return err
	}

	if f.hasCurrent {
		old := f.current
		if err := w.RetireFastSpace(old); nil != err {
			return err
		}
		if err := f.Release([]uint32{old}); nil != err {
			return err
		}
	}

	f.current = a.Page
	f.hasCurrent = true
	f.pending = 0

	f.log.Debugf("checkpoint generation: %d  page: %d", f.generation, a.Page)
	return nil
}
