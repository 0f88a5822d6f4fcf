package workerpool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPool_RunsEverySubmittedTask(t *testing.T) {
	p := New(4, 16)
	defer p.Stop()

	var count atomic.Int64
	const total = 200
	done := make(chan struct{}, total)
	for i := 0; i < total; i++ {
		p.Submit(func() {
			count.Add(1)
			done <- struct{}{}
		})
	}
	for i := 0; i < total; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for submitted tasks to run")
		}
	}
	require.EqualValues(t, total, count.Load())
}

func TestPool_StopDrainsQueueBeforeReturning(t *testing.T) {
	p := New(2, 8)

	var ran atomic.Bool
	p.Submit(func() { ran.Store(true) })
	p.Stop()

	require.True(t, ran.Load())
}
