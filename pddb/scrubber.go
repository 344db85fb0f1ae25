// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pddb

import (
	"context"
	"time"

	"github.com/bitmark-inc/logger"
	"golang.org/x/time/rate"

	"github.com/bitmark-inc/pddb/constants"
)

// erases released pages while no client is active
type scrubber struct {
	log      *logger.L
	interval time.Duration
	batch    int
	limiter  *rate.Limiter
}

func newScrubber(options ServerOptions) *scrubber {
	batch := options.ScrubBatch
	if batch <= 0 {
		batch = constants.DefaultScrubBatch
	}
	limit := rate.Inf
	if options.ScrubRate > 0 {
		limit = rate.Limit(options.ScrubRate)
	}
	burst := options.ScrubBurst
	if burst <= 0 {
		burst = 1
	}
	return &scrubber{
		log:      logger.New("scrubber"),
		interval: options.ScrubInterval,
		batch:    batch,
		limiter:  rate.NewLimiter(limit, burst),
	}
}

// Run - background process loop, args is the *Server
func (sc *scrubber) Run(args interface{}, shutdown <-chan struct{}) {
	s := args.(*Server)

	sc.log.Info("starting…")
	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-shutdown:
			break loop
		case <-ticker.C:
			if !s.Idle(sc.interval) || !sc.limiter.Allow() {
				continue loop
			}
			sc.scrub(s)
		}
	}
	sc.log.Info("shutting down…")
}

func (sc *scrubber) scrub(s *Server) {
	ctx, cancel := context.WithTimeout(context.Background(), sc.interval)
	defer cancel()

	n := 0
	err := s.Do(ctx, func(p *Pddb) error {
		var err error
		n, err = p.Scrub(sc.batch)
		return err
	})
	if nil != err {
		sc.log.Warnf("scrub error: %s", err)
		return
	}
	if 0 != n {
		sc.log.Debugf("scrubbed pages: %d", n)
	}
}
