package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestAddTicker_Fires(t *testing.T) {
	s := New(discard())
	defer s.Stop()

	var count int32
	s.AddTicker("tick", 20*time.Millisecond, false, func(context.Context) {
		atomic.AddInt32(&count, 1)
	})

	time.Sleep(120 * time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&count), int32(3))
}

func TestAddTicker_RunNow(t *testing.T) {
	s := New(discard())
	defer s.Stop()

	var count int32
	s.AddTicker("sweep", time.Hour, true, func(context.Context) {
		atomic.AddInt32(&count, 1)
	})

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&count) == 1 }, time.Second, 5*time.Millisecond)
}

func TestAddTicker_Replaces(t *testing.T) {
	s := New(discard())
	defer s.Stop()

	var count1, count2 int32
	s.AddTicker("task", 20*time.Millisecond, false, func(context.Context) { atomic.AddInt32(&count1, 1) })
	time.Sleep(30 * time.Millisecond)
	s.AddTicker("task", 20*time.Millisecond, false, func(context.Context) { atomic.AddInt32(&count2, 1) })
	time.Sleep(80 * time.Millisecond)

	snap1 := atomic.LoadInt32(&count1)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, snap1, atomic.LoadInt32(&count1), "old ticker must stop after replacement")
	assert.Positive(t, atomic.LoadInt32(&count2))
	assert.Equal(t, []string{"task"}, s.ListTickers())
}

func TestPanicIsRecovered(t *testing.T) {
	s := New(discard())
	defer s.Stop()

	var count int32
	s.AddTicker("flaky", 15*time.Millisecond, false, func(context.Context) {
		if atomic.AddInt32(&count, 1) == 1 {
			panic("boom")
		}
	})

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&count) >= 2 }, time.Second, 5*time.Millisecond)
}

func TestStop_CancelsTaskContext(t *testing.T) {
	s := New(discard())

	started := make(chan struct{})
	var cancelled int32
	s.AddTicker("long", time.Hour, true, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		atomic.StoreInt32(&cancelled, 1)
	})
	<-started
	s.Stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(&cancelled))
}

func TestRemove(t *testing.T) {
	s := New(discard())
	defer s.Stop()

	var count int32
	s.AddTicker("gone", 10*time.Millisecond, false, func(context.Context) { atomic.AddInt32(&count, 1) })
	s.Remove("gone")
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&count))
	assert.Empty(t, s.ListTickers())
}
