// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pddb

import (
	"io"

	"github.com/bitmark-inc/pddb/basis"
	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/dictcache"
	"github.com/bitmark-inc/pddb/fault"
)

// KeyHandle - a cursor over one key
//
// the key is resolved again on every call, so a handle follows the
// record as bases are mounted or unmounted
type KeyHandle struct {
	p        *Pddb
	dict     string
	key      string
	basis    *string
	policy   basis.Policy
	readOnly bool
	position uint64
}

// Name - dictionary and key this handle refers to
func (h *KeyHandle) Name() (string, string) {
	return h.dict, h.key
}

func (h *KeyHandle) resolve() (*basis.Basis, *dictcache.DictCacheEntry, error) {
	b, err := h.p.manager.Resolve(h.basis, h.dict, h.key)
	if nil != err {
		return nil, nil, err
	}
	d, err := b.Dict(h.dict)
	if nil != err {
		return nil, nil, err
	}
	return b, d, nil
}

// Attributes - flag bits given when the key was created
func (h *KeyHandle) Attributes() (uint32, error) {
	b, d, err := h.resolve()
	if nil != err {
		return 0, err
	}
	k, err := d.Key(b, h.key)
	if nil != err {
		return 0, err
	}
	return k.Attributes(), nil
}

// Len - current length of the key
func (h *KeyHandle) Len() (uint64, error) {
	b, d, err := h.resolve()
	if nil != err {
		return 0, err
	}
	k, err := d.Key(b, h.key)
	if nil != err {
		return 0, err
	}
	return k.Len, nil
}

// Read - io.Reader from the current position
func (h *KeyHandle) Read(buffer []byte) (int, error) {
	if 0 == len(buffer) {
		return 0, nil
	}
	b, d, err := h.resolve()
	if nil != err {
		return 0, err
	}
	n, err := d.KeyRead(b, h.key, h.position, buffer)
	h.position += uint64(n)
	if nil != err {
		return n, err
	}
	if 0 == n {
		return 0, io.EOF
	}
	return n, nil
}

// Write - io.Writer at the current position, bytes beyond the write
// are kept
func (h *KeyHandle) Write(data []byte) (int, error) {
	if h.readOnly {
		return 0, fault.ErrPermissionDenied
	}
	if 0 == len(data) {
		return 0, nil
	}
	if err := h.update(data, h.position, false); nil != err {
		return 0, err
	}
	h.position += uint64(len(data))
	return len(data), nil
}

// Truncate - set the length, a longer key is zero filled
func (h *KeyHandle) Truncate(size uint64) error {
	if h.readOnly {
		return fault.ErrPermissionDenied
	}
	if size > constants.MaxKeyLength {
		return fault.ErrKeyTooLarge
	}
	length, err := h.Len()
	if nil != err {
		return err
	}
	if size > length {
		return h.update(make([]byte, size-length), length, false)
	}
	return h.update(nil, size, true)
}

// route one update through the write policy
func (h *KeyHandle) update(data []byte, offset uint64, truncate bool) error {
	targets, err := h.p.manager.WriteTargets(h.basis, h.dict, h.key, h.policy)
	if nil != err {
		return err
	}
	for _, b := range targets {
		d, err := b.Dict(h.dict)
		if nil != err {
			return err
		}
		if err := d.KeyUpdate(b, h.key, data, offset, truncate); nil != err {
			return err
		}
	}
	return nil
}

// Seek - io.Seeker, positions past the end are allowed and a later
// write fills the gap with zeros
func (h *KeyHandle) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(h.position)
	case io.SeekEnd:
		length, err := h.Len()
		if nil != err {
			return 0, err
		}
		base = int64(length)
	default:
		return 0, fault.ErrInvalidOffset
	}
	position := base + offset
	if position < 0 || position > constants.MaxKeyLength {
		return 0, fault.ErrInvalidOffset
	}
	h.position = uint64(position)
	return position, nil
}
