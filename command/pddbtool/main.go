// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/bitmark-inc/logger"
	"github.com/urfave/cli"

	"github.com/bitmark-inc/pddb/configuration"
	"github.com/bitmark-inc/pddb/constants"
	"github.com/bitmark-inc/pddb/pagestore"
	"github.com/bitmark-inc/pddb/pddb"
)

type metadata struct {
	config   *configuration.Configuration
	store    pagestore.PageStore
	db       *pddb.Pddb
	password string
	verbose  bool
	e        io.Writer
	w        io.Writer
}

// set by the linker: go build -ldflags "-X main.version=M.N" ./...
var version = "zero" // do not change this value

func main() {

	app := cli.NewApp()
	app.Name = "pddbtool"
	app.Usage = "maintain a plausibly deniable database image"
	app.Version = version
	app.HideVersion = true

	app.Writer = os.Stdout
	app.ErrWriter = os.Stderr

	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: " verbose result",
		},
		cli.StringFlag{
			Name:  "config-file, c",
			Value: "pddb.conf",
			Usage: " configuration `FILE`",
		},
		cli.StringFlag{
			Name:  "password, p",
			Value: "",
			Usage: " basis `PASSWORD`, prompted for if not given",
		},
	}

	basisFlag := cli.StringFlag{
		Name:  "basis, b",
		Value: "",
		Usage: " restrict to one basis `NAME` [all mounted]",
	}
	mountFlag := cli.StringSliceFlag{
		Name:  "mount, m",
		Usage: " mount basis `NAME`, repeat for more, last is topmost [" + constants.SystemBasis + "]",
	}

	app.Commands = []cli.Command{
		{
			Name:   "format",
			Usage:  "erase the medium and create the system basis",
			Flags:  []cli.Flag{cli.BoolFlag{Name: "yes, y", Usage: "*confirm destruction of every basis"}},
			Action: runFormat,
		},
		{
			Name:      "create",
			Usage:     "create a new basis",
			ArgsUsage: "\n   (* = required)",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "basis, b",
					Value: "",
					Usage: "*new basis `NAME`",
				},
				mountFlag,
			},
			Action: runCreate,
		},
		{
			Name:      "put",
			Usage:     "store a key from a file or standard input",
			ArgsUsage: "\n   (* = required)",
			Flags: []cli.Flag{
				mountFlag,
				basisFlag,
				cli.StringFlag{Name: "dict, d", Usage: "*dictionary `NAME`"},
				cli.StringFlag{Name: "key, k", Usage: "*key `NAME`"},
				cli.StringFlag{Name: "file, f", Usage: " read value from `FILE` [stdin]"},
				cli.StringFlag{Name: "policy", Usage: " write policy `POLICY` [topmost|first|all]"},
			},
			Action: runPut,
		},
		{
			Name:      "get",
			Usage:     "write a key to standard output",
			ArgsUsage: "\n   (* = required)",
			Flags: []cli.Flag{
				mountFlag,
				basisFlag,
				cli.StringFlag{Name: "dict, d", Usage: "*dictionary `NAME`"},
				cli.StringFlag{Name: "key, k", Usage: "*key `NAME`"},
			},
			Action: runGet,
		},
		{
			Name:  "list",
			Usage: "list dictionaries, or the keys of one dictionary",
			Flags: []cli.Flag{
				mountFlag,
				basisFlag,
				cli.StringFlag{Name: "dict, d", Usage: " dictionary `NAME`"},
			},
			Action: runList,
		},
		{
			Name:  "delete",
			Usage: "delete a key, or a whole dictionary",
			Flags: []cli.Flag{
				mountFlag,
				basisFlag,
				cli.StringFlag{Name: "dict, d", Usage: "*dictionary `NAME`"},
				cli.StringFlag{Name: "key, k", Usage: " key `NAME` [whole dictionary]"},
				cli.BoolFlag{Name: "scrub, s", Usage: " erase released pages before exiting"},
			},
			Action: runDelete,
		},
		{
			Name:   "stats",
			Usage:  "show allocator and medium statistics",
			Flags:  []cli.Flag{mountFlag},
			Action: runStats,
		},
		{
			Name:  "version",
			Usage: "display pddbtool version",
			Action: func(c *cli.Context) error {
				fmt.Fprintf(c.App.Writer, "%s\n", version)
				return nil
			},
		},
	}

	// read the configuration and open the medium
	app.Before = func(c *cli.Context) error {

		e := c.App.ErrWriter
		w := c.App.Writer
		verbose := c.GlobalBool("verbose")

		command := c.Args().Get(0)
		if "version" == command || "help" == command || "" == command {
			return nil
		}

		file := c.GlobalString("config-file")
		if verbose {
			fmt.Fprintf(e, "reading config file: %s\n", file)
		}
		conf, err := configuration.GetConfiguration(file)
		if nil != err {
			return err
		}

		if err := logger.Initialise(conf.Logging); nil != err {
			return err
		}

		store, created, err := conf.OpenMedium()
		if nil != err {
			return err
		}
		if created && "format" != command {
			store.Close()
			logger.Finalise()
			return ErrNotFormatted
		}

		m := &metadata{
			config:   conf,
			store:    store,
			password: c.GlobalString("password"),
			verbose:  verbose,
			e:        e,
			w:        w,
		}
		c.App.Metadata["config"] = m

		if "format" == command {
			return nil
		}

		options, err := conf.Options()
		if nil != err {
			return err
		}
		m.db, err = pddb.New(store, options)
		return err
	}

	// unmount everything and release the medium
	app.After = func(c *cli.Context) error {
		m, ok := c.App.Metadata["config"].(*metadata)
		if !ok {
			return nil
		}
		defer logger.Finalise()

		var err error
		if nil != m.db {
			err = m.db.Close()
		}
		if e := m.store.Close(); nil == err {
			err = e
		}
		return err
	}

	err := app.Run(os.Args)
	if nil != err {
		fmt.Fprintf(app.ErrWriter, "terminated with error: %s\n", err)
		os.Exit(1)
	}
}
