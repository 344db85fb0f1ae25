// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/bitmark-inc/go-argon2"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/bitmark-inc/pddb/codec"
	"github.com/bitmark-inc/pddb/configuration"
)

const minimumPasswordLength = 8

var passwordConsole *terminal.Terminal

func getTerminal() (*terminal.Terminal, int, *terminal.State) {
	oldState, err := terminal.MakeRaw(0)
	if err != nil {
		panic(err)
	}

	if nil != passwordConsole {
		return passwordConsole, 0, oldState
	}

	tmpIO, err := os.OpenFile("/dev/tty", os.O_RDWR, os.ModePerm)
	if nil != err {
		panic("No console")
	}

	passwordConsole = terminal.NewTerminal(tmpIO, "pddbtool: ")

	return passwordConsole, 0, oldState
}

func readPassword(prompt string) (string, error) {
	console, fd, state := getTerminal()
	defer terminal.Restore(fd, state)
	return console.ReadPassword(prompt)
}

// a new password, entered twice
func promptNewPassword(name string) (string, error) {
	password, err := readPassword(fmt.Sprintf("new password for %q: ", name))
	if nil != err {
		return "", err
	}
	if len(password) < minimumPasswordLength {
		return "", ErrPasswordLength
	}

	verify, err := readPassword("verify password: ")
	if nil != err {
		return "", err
	}
	if password != verify {
		return "", ErrPasswordMismatch
	}
	return password, nil
}

// the basis key, using the global password if one was given
func (m *metadata) basisKey(name string, create bool) ([]byte, error) {
	password := m.password
	if "" == password {
		var err error
		if create {
			password, err = promptNewPassword(name)
		} else {
			password, err = readPassword(fmt.Sprintf("password for %q: ", name))
		}
		if nil != err {
			return nil, err
		}
	}
	return deriveKey(m.config.KDF, name, password)
}

// argon2i over the password, salted by the basis name so equal
// passwords give unrelated keys for different bases
func deriveKey(kdf configuration.KDFType, name string, password string) ([]byte, error) {
	ctx := &argon2.Context{
		Iterations:  int(kdf.Iterations),
		Memory:      int(kdf.Memory),
		Parallelism: int(kdf.Parallelism),
		HashLen:     codec.KeySize,
		Mode:        argon2.ModeArgon2i,
		Version:     argon2.Version13,
	}
	return argon2.Hash(ctx, []byte(password), []byte("pddb-basis:"+name))
}
