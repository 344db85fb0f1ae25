// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pddb

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bitmark-inc/logger"

	"github.com/bitmark-inc/pddb/background"
	"github.com/bitmark-inc/pddb/basis"
	"github.com/bitmark-inc/pddb/counter"
	"github.com/bitmark-inc/pddb/fault"
)

// ServerOptions - request queue and idle scrubber settings
type ServerOptions struct {
	ScrubInterval time.Duration // zero disables the scrubber
	ScrubRate     float64       // scrub batches per second
	ScrubBurst    int
	ScrubBatch    int // pages per batch
}

type request struct {
	ctx   context.Context
	fn    func(*Pddb) error
	reply chan error
}

// Server - serialises all access to a Pddb
//
// requests are served one at a time in arrival order by a single
// goroutine; a request that has started always runs to completion
type Server struct {
	log        *logger.L
	p          *Pddb
	options    ServerOptions
	queue      chan *request
	closing    chan struct{}
	shutdown   chan struct{}
	done       chan struct{}
	pending    counter.Counter
	gate       sync.Mutex
	stopping   bool
	inflight   sync.WaitGroup
	lastActive int64
	background *background.T
	stopOnce   sync.Once
	stopErr    error
}

// NewServer - start serving p, the caller must not use p directly
// afterwards
func NewServer(p *Pddb, options ServerOptions) *Server {
	s := &Server{
		log:        logger.New("server"),
		p:          p,
		options:    options,
		queue:      make(chan *request),
		closing:    make(chan struct{}),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		lastActive: time.Now().UnixNano(),
	}

	go s.serve()

	if 0 != options.ScrubInterval {
		processes := background.Processes{
			newScrubber(options),
		}
		s.background = background.Start(processes, s)
	}

	s.log.Info("started")
	return s
}

func (s *Server) serve() {
	defer close(s.done)
	for {
		select {
		case <-s.shutdown:
			return
		case r := <-s.queue:
			err := r.ctx.Err()
			if nil == err {
				err = r.fn(s.p)
			} else {
				s.log.Debugf("request expired before start: %s", err)
			}
			r.reply <- err
			atomic.StoreInt64(&s.lastActive, time.Now().UnixNano())
			s.pending.Decrement()
			s.inflight.Done()
		}
	}
}

// queue a request, blocks until the worker accepts it
//
// once Stop has begun new requests are refused, those already
// submitted are still served
func (s *Server) submit(ctx context.Context, r *request) error {
	s.gate.Lock()
	if s.stopping {
		s.gate.Unlock()
		return fault.ErrServerStopped
	}
	s.inflight.Add(1)
	s.gate.Unlock()

	s.pending.Increment()
	select {
	case s.queue <- r:
		return nil
	case <-ctx.Done():
		s.pending.Decrement()
		s.inflight.Done()
		return ctx.Err()
	}
}

// Do - run fn on the worker
//
// if ctx ends first the error is returned at once but fn, once started,
// still completes and nothing is rolled back
func (s *Server) Do(ctx context.Context, fn func(*Pddb) error) error {
	r := &request{
		ctx:   ctx,
		fn:    fn,
		reply: make(chan error, 1),
	}
	if err := s.submit(ctx, r); nil != err {
		return err
	}
	select {
	case err := <-r.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Lock - hold the queue exclusively until unlock is called
//
// requests arriving meanwhile wait in order; unlock may be called more
// than once
func (s *Server) Lock(ctx context.Context) (func(), error) {
	granted := make(chan struct{})
	release := make(chan struct{})
	once := sync.Once{}
	unlock := func() {
		once.Do(func() {
			close(release)
		})
	}

	r := &request{
		ctx: ctx,
		fn: func(*Pddb) error {
			close(granted)
			select {
			case <-release:
			case <-s.closing:
			}
			return nil
		},
		reply: make(chan error, 1),
	}
	if err := s.submit(ctx, r); nil != err {
		return nil, err
	}
	select {
	case <-granted:
		s.log.Debug("locked")
		return unlock, nil
	case err := <-r.reply:
		return nil, err
	}
}

// Pending - requests queued or running
func (s *Server) Pending() uint64 {
	return s.pending.Uint64()
}

// Idle - nothing queued or running for at least d
func (s *Server) Idle(d time.Duration) bool {
	if !s.pending.IsZero() {
		return false
	}
	last := time.Unix(0, atomic.LoadInt64(&s.lastActive))
	return time.Since(last) >= d
}

// Stop - stop the scrubber, drain the queue, stop the worker then
// unmount everything
//
// a held lock is released; requests made after Stop begins return
// ErrServerStopped
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.background.Stop()

		s.gate.Lock()
		s.stopping = true
		s.gate.Unlock()
		close(s.closing)

		s.inflight.Wait()
		close(s.shutdown)
		<-s.done
		s.stopErr = s.p.Close()
		s.log.Info("stopped")
	})
	return s.stopErr
}

// CreateBasis - queued Pddb.CreateBasis
func (s *Server) CreateBasis(ctx context.Context, name string, key []byte) error {
	return s.Do(ctx, func(p *Pddb) error {
		return p.CreateBasis(name, key)
	})
}

// Mount - queued Pddb.Mount
func (s *Server) Mount(ctx context.Context, name string, key []byte) (basis.MountResult, error) {
	result := basis.WrongPassword
	err := s.Do(ctx, func(p *Pddb) error {
		var err error
		result, err = p.Mount(name, key)
		return err
	})
	return result, err
}

// Unmount - queued Pddb.Unmount
func (s *Server) Unmount(ctx context.Context, name string) error {
	return s.Do(ctx, func(p *Pddb) error {
		return p.Unmount(name)
	})
}

// ListBasis - queued Pddb.ListBasis
func (s *Server) ListBasis(ctx context.Context) ([]string, error) {
	var names []string
	err := s.Do(ctx, func(p *Pddb) error {
		names = p.ListBasis()
		return nil
	})
	return names, err
}

// Get - queued Pddb.Get, the handle routes its calls through the queue
func (s *Server) Get(ctx context.Context, dict string, key string, options GetOptions) (*Handle, error) {
	var h *KeyHandle
	err := s.Do(ctx, func(p *Pddb) error {
		var err error
		h, err = p.Get(dict, key, options)
		return err
	})
	if nil != err {
		return nil, err
	}
	return &Handle{s: s, h: h}, nil
}

// DeleteKey - queued Pddb.DeleteKey
func (s *Server) DeleteKey(ctx context.Context, dict string, key string, basisName *string) error {
	return s.Do(ctx, func(p *Pddb) error {
		return p.DeleteKey(dict, key, basisName)
	})
}

// DeleteDict - queued Pddb.DeleteDict
func (s *Server) DeleteDict(ctx context.Context, dict string, basisName *string) error {
	return s.Do(ctx, func(p *Pddb) error {
		return p.DeleteDict(dict, basisName)
	})
}

// ListKeys - queued Pddb.ListKeys
func (s *Server) ListKeys(ctx context.Context, dict string, basisName *string) ([]string, error) {
	var names []string
	err := s.Do(ctx, func(p *Pddb) error {
		var err error
		names, err = p.ListKeys(dict, basisName)
		return err
	})
	return names, err
}

// ListDicts - queued Pddb.ListDicts
func (s *Server) ListDicts(ctx context.Context, basisName *string) ([]string, error) {
	var names []string
	err := s.Do(ctx, func(p *Pddb) error {
		var err error
		names, err = p.ListDicts(basisName)
		return err
	})
	return names, err
}

// Sync - queued Pddb.Sync
func (s *Server) Sync(ctx context.Context) error {
	return s.Do(ctx, func(p *Pddb) error {
		return p.Sync()
	})
}

// Stats - queued Pddb.Stats
func (s *Server) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.Do(ctx, func(p *Pddb) error {
		stats = p.Stats()
		return nil
	})
	return stats, err
}

// Handle - a KeyHandle whose calls go through a Server
type Handle struct {
	s *Server
	h *KeyHandle
}

// Read - queued KeyHandle.Read
func (h *Handle) Read(ctx context.Context, buffer []byte) (int, error) {
	n := 0
	err := h.s.Do(ctx, func(*Pddb) error {
		var err error
		n, err = h.h.Read(buffer)
		return err
	})
	return n, err
}

// Write - queued KeyHandle.Write
func (h *Handle) Write(ctx context.Context, data []byte) (int, error) {
	n := 0
	err := h.s.Do(ctx, func(*Pddb) error {
		var err error
		n, err = h.h.Write(data)
		return err
	})
	return n, err
}

// Seek - queued KeyHandle.Seek
func (h *Handle) Seek(ctx context.Context, offset int64, whence int) (int64, error) {
	var position int64
	err := h.s.Do(ctx, func(*Pddb) error {
		var err error
		position, err = h.h.Seek(offset, whence)
		return err
	})
	return position, err
}

// Len - queued KeyHandle.Len
func (h *Handle) Len(ctx context.Context) (uint64, error) {
	var length uint64
	err := h.s.Do(ctx, func(*Pddb) error {
		var err error
		length, err = h.h.Len()
		return err
	})
	return length, err
}

// Attributes - queued KeyHandle.Attributes
func (h *Handle) Attributes(ctx context.Context) (uint32, error) {
	var attributes uint32
	err := h.s.Do(ctx, func(*Pddb) error {
		var err error
		attributes, err = h.h.Attributes()
		return err
	})
	return attributes, err
}

// Truncate - queued KeyHandle.Truncate
func (h *Handle) Truncate(ctx context.Context, size uint64) error {
	return h.s.Do(ctx, func(*Pddb) error {
		return h.h.Truncate(size)
	})
}
