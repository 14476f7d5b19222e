package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsTasks(t *testing.T) {
	p := New(Config{Workers: 4, QueueSize: 16}, nil)
	require.NoError(t, p.Start(context.Background()))

	var wg sync.WaitGroup
	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit("count", func() {
			defer wg.Done()
			ran.Add(1)
		}))
	}
	wg.Wait()

	assert.Equal(t, int32(10), ran.Load())
	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, int64(10), p.Stats().Completed)
}

func TestPool_RejectsWhenQueueFull(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1}, nil)
	require.NoError(t, p.Start(context.Background()))

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit("blocker", func() {
		close(started)
		<-block
	}))
	<-started

	require.NoError(t, p.Submit("queued", func() {}))

	err := p.Submit("overflow", func() {})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, int64(1), p.Stats().Rejected)

	close(block)
	require.NoError(t, p.Stop(context.Background()))
}

func TestPool_RecoversPanics(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 4}, nil)
	require.NoError(t, p.Start(context.Background()))

	done := make(chan struct{})
	require.NoError(t, p.Submit("panics", func() { panic("boom") }))
	require.NoError(t, p.Submit("after", func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died after panic")
	}
	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, int64(1), p.Stats().Panics)
}

func TestPool_SubmitAfterStop(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1}, nil)
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Stop(context.Background()))
	require.NoError(t, p.Stop(context.Background()))

	assert.ErrorIs(t, p.Submit("late", func() {}), ErrClosed)
}

func TestPool_StopTimesOut(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1}, nil)
	require.NoError(t, p.Start(context.Background()))

	block := make(chan struct{})
	defer close(block)
	require.NoError(t, p.Submit("stuck", func() { <-block }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Stop(ctx), context.DeadlineExceeded)
}

func TestNew_Defaults(t *testing.T) {
	p := New(Config{}, nil)
	stats := p.Stats()
	assert.Equal(t, DefaultWorkers(), stats.Workers)
	assert.Equal(t, DefaultQueueSize, p.cfg.QueueSize)
}
