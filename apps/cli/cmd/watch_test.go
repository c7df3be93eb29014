package cmd

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchLoop_RerunsDoNotOverlap(t *testing.T) {
	events := make(chan fsnotify.Event)
	errs := make(chan error)

	var inFlight, runs atomic.Int32
	var overlapped atomic.Bool
	rerun := func() {
		if inFlight.Add(1) > 1 {
			overlapped.Store(true)
		}
		time.Sleep(50 * time.Millisecond)
		inFlight.Add(-1)
		runs.Add(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	done := make(chan struct{})
	go func() {
		watchLoop(ctx, events, errs, &out, 20*time.Millisecond, rerun)
		close(done)
	}()

	events <- fsnotify.Event{Name: "scenarios/posts.yaml", Op: fsnotify.Write}
	require.Eventually(t, func() bool { return inFlight.Load() == 1 }, time.Second, time.Millisecond)

	// These are only received once the running rerun returns.
	events <- fsnotify.Event{Name: "scenarios/auth.yaml", Op: fsnotify.Write}
	events <- fsnotify.Event{Name: "scenarios/auth.yaml", Op: fsnotify.Create}
	events <- fsnotify.Event{Name: "notes.txt", Op: fsnotify.Write}

	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.False(t, overlapped.Load(), "reruns ran concurrently")
	assert.Equal(t, int32(2), runs.Load())
	assert.Contains(t, out.String(), "File changed: scenarios/posts.yaml")
	assert.Contains(t, out.String(), "File changed: scenarios/auth.yaml")
	assert.NotContains(t, out.String(), "notes.txt")
}

func TestWatchLoop_StopsWhenEventsClose(t *testing.T) {
	events := make(chan fsnotify.Event)
	close(events)

	done := make(chan struct{})
	go func() {
		watchLoop(context.Background(), events, make(chan error), &bytes.Buffer{}, time.Millisecond, func() {
			t.Error("rerun must not be called")
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchLoop did not return")
	}
}
