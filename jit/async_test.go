package jit

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAsyncCoordinator_RunsSubmittedJobs(t *testing.T) {
	a := newAsyncCoordinator(2, 4)

	var ran atomic.Int64
	for i := 0; i < 4; i++ {
		require.True(t, a.submit(func() { ran.Add(1) }))
	}
	a.close()

	require.Equal(t, int64(4), ran.Load())
	require.Equal(t, 0, a.inFlight())
}

func TestAsyncCoordinator_DeclinesAtCapacity(t *testing.T) {
	a := newAsyncCoordinator(1, 2)
	release := make(chan struct{})

	var ran atomic.Int64
	job := func() {
		<-release
		ran.Add(1)
	}

	require.True(t, a.submit(job))
	require.True(t, a.submit(job))
	require.Equal(t, 2, a.inFlight())

	start := time.Now()
	require.False(t, a.submit(job), "a full pool must decline, not queue")
	require.Less(t, time.Since(start), time.Second, "declining must not block")

	close(release)
	a.close()
	require.Equal(t, int64(2), ran.Load(), "accepted jobs run to completion")

	require.False(t, a.submit(job), "a closed pool declines all work")
}

func TestAsyncCoordinator_CloseWaitsForAcceptedJobs(t *testing.T) {
	a := newAsyncCoordinator(1, 1)
	release := make(chan struct{})
	require.True(t, a.submit(func() { <-release }))

	closed := make(chan struct{})
	go func() {
		a.close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("close returned while an accepted job was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("close did not return after the job finished")
	}
	require.Equal(t, 0, a.inFlight())
}
