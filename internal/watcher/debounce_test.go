// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncer_Basic(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(30 * time.Millisecond)

	d.Debounce("a", func() { calls.Add(1) })
	assert.Equal(t, 1, d.Pending())

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, d.Pending())
}

func TestDebouncer_BurstRunsLatestOnce(t *testing.T) {
	var calls atomic.Int32
	var last atomic.Int32
	d := NewDebouncer(50 * time.Millisecond)

	for i := int32(1); i <= 10; i++ {
		d.Debounce("a", func() {
			calls.Add(1)
			last.Store(i)
		})
		time.Sleep(5 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(10), last.Load())
}

func TestDebouncer_KeysAreIndependent(t *testing.T) {
	var a, b atomic.Int32
	d := NewDebouncer(30 * time.Millisecond)

	d.Debounce("a", func() { a.Add(1) })
	d.Debounce("b", func() { b.Add(1) })
	assert.Equal(t, 2, d.Pending())

	assert.Eventually(t, func() bool { return a.Load() == 1 && b.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDebouncer_Cancel(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(30 * time.Millisecond)

	d.Debounce("a", func() { calls.Add(1) })
	d.Cancel("a")
	d.Cancel("missing")

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, 0, d.Pending())
}

func TestDebouncer_Stop(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(30 * time.Millisecond)

	d.Debounce("a", func() { calls.Add(1) })
	d.Debounce("b", func() { calls.Add(1) })
	d.Stop()
	d.Debounce("c", func() { calls.Add(1) })

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestDebouncer_DefaultDelay(t *testing.T) {
	assert.Equal(t, defaultDebounceDuration, NewDebouncer(0).delay)
	assert.Equal(t, defaultDebounceDuration, NewDebouncer(-time.Second).delay)
}

func TestDebouncer_Concurrent(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(40 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Debounce("shared", func() { calls.Add(1) })
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}
