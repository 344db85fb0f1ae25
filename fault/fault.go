// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fault

import (
	"errors"
	"fmt"
)

// GenericError - error base
type GenericError string

// to allow for different classes of errors
type AuthenticationError GenericError
type CorruptError GenericError
type ExistsError GenericError
type InvalidError GenericError
type NotFoundError GenericError
type ProcessError GenericError
type SpaceError GenericError

// common errors - keep in alphabetic order
var (
	ErrAlreadyInitialised     = ExistsError("already initialised")
	ErrAuthenticationFailed   = AuthenticationError("authentication failed")
	ErrBasisExists            = ExistsError("basis already exists")
	ErrBasisMounted           = ExistsError("basis already mounted")
	ErrBasisNameLength        = InvalidError("basis name length is invalid")
	ErrBasisNotMounted        = NotFoundError("basis not mounted")
	ErrCheckpointVerifyFailed = CorruptError("checkpoint verification failed")
	ErrCorruptJournal         = CorruptError("corrupt journal")
	ErrCorruptRecord          = CorruptError("corrupt record")
	ErrDictExists             = ExistsError("dictionary already exists")
	ErrDictNameLength         = InvalidError("dictionary name length is invalid")
	ErrDictNotFound           = NotFoundError("dictionary not found")
	ErrFastSpaceFull          = SpaceError("fast space capacity exceeded")
	ErrInvalidConfiguration   = InvalidError("invalid configuration")
	ErrInvalidCount           = InvalidError("invalid count")
	ErrInvalidGeometry        = InvalidError("invalid medium geometry")
	ErrInvalidKeyLength       = InvalidError("basis key length is invalid")
	ErrInvalidOffset          = InvalidError("invalid offset")
	ErrInvalidPage            = InvalidError("page number out of range")
	ErrInvalidPageData        = InvalidError("page data length is invalid")
	ErrInvalidPolicy          = InvalidError("invalid write policy")
	ErrInvalidStructPointer   = InvalidError("invalid struct pointer")
	ErrInvalidTransition      = InvalidError("invalid space state transition")
	ErrJournalFull            = SpaceError("journal region is full")
	ErrKeyExists              = ExistsError("key already exists")
	ErrKeyNameLength          = InvalidError("key name length is invalid")
	ErrKeyNotFound            = NotFoundError("key not found")
	ErrKeyTooLarge            = InvalidError("key exceeds maximum length")
	ErrNoBasisMounted         = NotFoundError("no basis mounted")
	ErrNotInitialised         = NotFoundError("not initialised")
	ErrOutOfSpace             = SpaceError("out of space")
	ErrPermissionDenied       = ProcessError("permission denied")
	ErrServerStopped          = ProcessError("server stopped")
	ErrTooManyDicts           = SpaceError("dictionary capacity exceeded")
	ErrTooManyKeys            = SpaceError("key capacity exceeded")
	ErrUnknownBackend         = InvalidError("unknown medium backend")
)

// the error interface base method
func (e GenericError) Error() string { return string(e) }

// the error interface methods
func (e AuthenticationError) Error() string { return string(e) }
func (e CorruptError) Error() string        { return string(e) }
func (e ExistsError) Error() string         { return string(e) }
func (e InvalidError) Error() string        { return string(e) }
func (e NotFoundError) Error() string       { return string(e) }
func (e ProcessError) Error() string        { return string(e) }
func (e SpaceError) Error() string          { return string(e) }

// determine the class of an error
func IsErrAuthentication(e error) bool { _, ok := e.(AuthenticationError); return ok }
func IsErrCorrupt(e error) bool        { _, ok := e.(CorruptError); return ok }
func IsErrExists(e error) bool         { _, ok := e.(ExistsError); return ok }
func IsErrInvalid(e error) bool        { _, ok := e.(InvalidError); return ok }
func IsErrNotFound(e error) bool       { _, ok := e.(NotFoundError); return ok }
func IsErrProcess(e error) bool        { _, ok := e.(ProcessError); return ok }
func IsErrSpace(e error) bool          { _, ok := e.(SpaceError); return ok }

// MediumError - a failure reported by the storage medium
//
// never retried automatically, the caller decides on wear policy
type MediumError struct {
	Op   string
	Page uint32
	Err  error
}

// Medium - wrap a page store error, nil stays nil
func Medium(op string, page uint32, err error) error {
	if nil == err {
		return nil
	}
	if _, ok := err.(*MediumError); ok {
		return err
	}
	if _, ok := err.(InvalidError); ok {
		return err
	}
	return &MediumError{Op: op, Page: page, Err: err}
}

func (e *MediumError) Error() string {
	return fmt.Sprintf("medium %s page: %d failed: %s", e.Op, e.Page, e.Err)
}

func (e *MediumError) Unwrap() error { return e.Err }

// IsErrMedium - true if a medium failure is anywhere in the chain
func IsErrMedium(e error) bool {
	var m *MediumError
	return errors.As(e, &m)
}
