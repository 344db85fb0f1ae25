// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pddb_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitmark-inc/pddb/basis"
	"github.com/bitmark-inc/pddb/fault"
	"github.com/bitmark-inc/pddb/fixtures"
	"github.com/bitmark-inc/pddb/pddb"
)

func waitFor(t *testing.T, what string, condition func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestServerRequests(t *testing.T) {
	s := pddb.NewServer(open(t, formatted(t), basis.WriteTopmost), pddb.ServerOptions{})
	defer s.Stop()

	ctx := context.Background()
	require.NoError(t, s.CreateBasis(ctx, "alpha", fixtures.Key(1)), "create")
	result, err := s.Mount(ctx, "alpha", fixtures.Key(1))
	require.NoError(t, err, "mount")
	assert.Equal(t, basis.Success, result, "mount")

	h, err := s.Get(ctx, "settings", "volume", pddb.GetOptions{Create: true, CreateDict: true})
	require.NoError(t, err, "get")
	_, err = h.Write(ctx, []byte{5, 6})
	require.NoError(t, err, "write")
	require.NoError(t, h.Truncate(ctx, 1), "truncate")
	length, err := h.Len(ctx)
	require.NoError(t, err, "len")
	assert.Equal(t, uint64(1), length, "len")

	_, err = h.Seek(ctx, 0, io.SeekStart)
	require.NoError(t, err, "seek")
	buffer := make([]byte, 4)
	n, err := h.Read(ctx, buffer)
	require.NoError(t, err, "read")
	assert.Equal(t, []byte{5}, buffer[:n], "read")

	require.NoError(t, s.Sync(ctx), "sync")

	names, err := s.ListBasis(ctx)
	require.NoError(t, err, "list basis")
	assert.Equal(t, []string{"alpha"}, names, "bases")
	dicts, err := s.ListDicts(ctx, nil)
	require.NoError(t, err, "list dicts")
	assert.Equal(t, []string{"settings"}, dicts, "dicts")
	keys, err := s.ListKeys(ctx, "settings", nil)
	require.NoError(t, err, "list keys")
	assert.Equal(t, []string{"volume"}, keys, "keys")

	require.NoError(t, s.DeleteKey(ctx, "settings", "volume", nil), "delete key")
	require.NoError(t, s.DeleteDict(ctx, "settings", nil), "delete dict")

	stats, err := s.Stats(ctx)
	require.NoError(t, err, "stats")
	assert.NotZero(t, stats.Counters.PagesWritten, "pages written")

	require.NoError(t, s.Unmount(ctx, "alpha"), "unmount")
	result, err = s.Mount(ctx, "alpha", fixtures.Key(2))
	assert.Equal(t, basis.WrongPassword, result, "wrong key")
	assert.Equal(t, fault.ErrAuthenticationFailed, err, "wrong key")
}

func TestServerOrder(t *testing.T) {
	s := pddb.NewServer(open(t, formatted(t), basis.WriteTopmost), pddb.ServerOptions{})
	defer s.Stop()

	unlock, err := s.Lock(context.Background())
	require.NoError(t, err, "lock")

	const requests = 8
	order := make([]int, 0, requests)
	wg := sync.WaitGroup{}
	for i := 0; i < requests; i += 1 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.Do(context.Background(), func(*pddb.Pddb) error {
				order = append(order, i)
				return nil
			})
			assert.NoError(t, err, "request %d", i)
		}(i)

		// the lock plus every request so far is waiting
		waitFor(t, "request queued", func() bool {
			return s.Pending() == uint64(i+2)
		})
		time.Sleep(2 * time.Millisecond)
	}

	unlock()
	unlock()
	wg.Wait()

	expected := make([]int, requests)
	for i := range expected {
		expected[i] = i
	}
	assert.Equal(t, expected, order, "served in arrival order")
	waitFor(t, "queue drained", func() bool {
		return 0 == s.Pending()
	})
}

func TestServerTimeout(t *testing.T) {
	s := pddb.NewServer(open(t, formatted(t), basis.WriteTopmost), pddb.ServerOptions{})
	defer s.Stop()

	unlock, err := s.Lock(context.Background())
	require.NoError(t, err, "lock")

	ran := false
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = s.Do(ctx, func(*pddb.Pddb) error {
		ran = true
		return nil
	})
	assert.Equal(t, context.DeadlineExceeded, err, "timed out while locked")

	_, err = s.Lock(ctx)
	assert.Equal(t, context.DeadlineExceeded, err, "second lock")

	unlock()

	err = s.Do(context.Background(), func(*pddb.Pddb) error {
		return nil
	})
	assert.NoError(t, err, "after unlock")
	assert.False(t, ran, "expired request never ran")

	// once started a request completes even if the caller gave up
	started := make(chan struct{})
	finish := make(chan struct{})
	completed := make(chan struct{})
	ctx2, cancel2 := context.WithCancel(context.Background())
	go func() {
		err := s.Do(ctx2, func(*pddb.Pddb) error {
			close(started)
			<-finish
			close(completed)
			return nil
		})
		assert.Equal(t, context.Canceled, err, "caller gave up")
	}()
	<-started
	cancel2()
	close(finish)
	<-completed
}

func TestServerStop(t *testing.T) {
	s := pddb.NewServer(open(t, formatted(t), basis.WriteTopmost), pddb.ServerOptions{})
	ctx := context.Background()
	require.NoError(t, s.CreateBasis(ctx, "alpha", fixtures.Key(1)), "create")
	_, err := s.Mount(ctx, "alpha", fixtures.Key(1))
	require.NoError(t, err, "mount")

	// a held lock does not block shutdown
	_, err = s.Lock(ctx)
	require.NoError(t, err, "lock")

	require.NoError(t, s.Stop(), "stop")
	require.NoError(t, s.Stop(), "stop twice")

	err = s.Do(ctx, func(*pddb.Pddb) error { return nil })
	assert.Equal(t, fault.ErrServerStopped, err, "do after stop")
	_, err = s.Lock(ctx)
	assert.Equal(t, fault.ErrServerStopped, err, "lock after stop")
	_, err = s.ListBasis(ctx)
	assert.Equal(t, fault.ErrServerStopped, err, "list after stop")
}

// requests already waiting when Stop begins run before the unmount
func TestServerStopDrains(t *testing.T) {
	s := pddb.NewServer(open(t, formatted(t), basis.WriteTopmost), pddb.ServerOptions{})
	ctx := context.Background()
	require.NoError(t, s.CreateBasis(ctx, "alpha", fixtures.Key(1)), "create")
	_, err := s.Mount(ctx, "alpha", fixtures.Key(1))
	require.NoError(t, err, "mount")

	_, err = s.Lock(ctx)
	require.NoError(t, err, "lock")

	const waiting = 5
	results := make(chan error, waiting)
	mounted := make(chan int, waiting)
	for i := 0; i < waiting; i += 1 {
		go func() {
			results <- s.Do(ctx, func(p *pddb.Pddb) error {
				mounted <- len(p.ListBasis())
				return nil
			})
		}()
	}
	waitFor(t, "waiting requests", func() bool {
		return waiting+1 == s.Pending()
	})

	require.NoError(t, s.Stop(), "stop")

	for i := 0; i < waiting; i += 1 {
		assert.NoError(t, <-results, "request: %d", i)
		assert.Equal(t, 1, <-mounted, "request: %d", i)
	}
	assert.Zero(t, s.Pending(), "pending after stop")
}

func TestIdleScrubber(t *testing.T) {
	p := withBases(t, basis.WriteTopmost, "alpha")
	write(t, p, "alpha", "media", "clip", make([]byte, 20000))
	require.NoError(t, p.DeleteKey("media", "clip", nil), "delete")
	require.NotZero(t, p.Stats().Bases[0].Space.Dirty, "dirty pages")

	s := pddb.NewServer(p, pddb.ServerOptions{
		ScrubInterval: 5 * time.Millisecond,
		ScrubBatch:    4,
	})
	defer s.Stop()

	// every poll is a request, so leave the server idle in between
	ctx := context.Background()
	for i := 0; i < 250; i += 1 {
		time.Sleep(20 * time.Millisecond)
		stats, err := s.Stats(ctx)
		require.NoError(t, err, "stats")
		if 0 == stats.Bases[0].Space.Dirty {
			return
		}
	}
	t.Fatal("dirty pages were not scrubbed")
}
