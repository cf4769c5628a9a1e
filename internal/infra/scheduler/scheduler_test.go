//go:build !integration

package scheduler

import (
	"context"
	"errors"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("os/signal.signal_recv"))
}

type countingCycle struct {
	mu    sync.Mutex
	n     int
	Err   error
	Panic bool
	OnRun func(n int)
}

func (c *countingCycle) RunCycle(ctx context.Context) error {
	c.mu.Lock()
	c.n++
	n := c.n
	c.mu.Unlock()
	if c.OnRun != nil {
		c.OnRun(n)
	}
	if c.Panic {
		panic("boom")
	}
	return c.Err
}

func (c *countingCycle) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func runAsync(s *Scheduler, ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return done
}

func TestScheduler_RunsImmediatelyAndStopsDuringWait(t *testing.T) {
	logger := zerolog.New(nil)
	proc := NewProcess(&logger)
	var closed int
	proc.OnClose("browser", func() error { closed++; return nil })

	ran := make(chan struct{}, 1)
	c := &countingCycle{OnRun: func(int) { ran <- struct{}{} }}
	s := NewScheduler(time.Hour, c, proc, &logger)

	done := runAsync(s, context.Background())
	<-ran
	proc.Shutdown("test")

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, 1, c.Count(), "no new cycle after shutdown")
	assert.Equal(t, 1, closed)
}

func TestScheduler_ShutdownDuringCycleFinishesIt(t *testing.T) {
	logger := zerolog.New(nil)
	proc := NewProcess(&logger)
	finished := false
	c := &countingCycle{OnRun: func(int) {
		proc.Shutdown("signal")
		finished = true
	}}
	s := NewScheduler(time.Millisecond, c, proc, &logger)

	require.NoError(t, s.Run(context.Background()))
	assert.True(t, finished)
	assert.Equal(t, 1, c.Count())
}

func TestScheduler_ErrorsDoNotStopLoop(t *testing.T) {
	logger := zerolog.New(nil)
	proc := NewProcess(&logger)
	c := &countingCycle{Err: errors.New("sheet unavailable")}
	c.OnRun = func(n int) {
		if n == 3 {
			proc.Shutdown("test")
		}
	}
	s := NewScheduler(time.Millisecond, c, proc, &logger)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 3, c.Count())
}

func TestScheduler_RecoversPanics(t *testing.T) {
	logger := zerolog.New(nil)
	proc := NewProcess(&logger)
	c := &countingCycle{Panic: true}
	c.OnRun = func(n int) {
		if n == 2 {
			proc.Shutdown("test")
		}
	}
	require.NoError(t, NewScheduler(time.Millisecond, c, proc, &logger).Run(context.Background()))
	assert.Equal(t, 2, c.Count())
}

func TestScheduler_ContextCancel(t *testing.T) {
	logger := zerolog.New(nil)
	proc := NewProcess(&logger)
	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{}, 1)
	c := &countingCycle{OnRun: func(int) { ran <- struct{}{} }}

	done := runAsync(NewScheduler(time.Hour, c, proc, &logger), ctx)
	<-ran
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, c.Count())
}

func TestProcess_CloseJoinsErrorsInReverseOrder(t *testing.T) {
	logger := zerolog.New(nil)
	proc := NewProcess(&logger)
	var order []string
	errA := errors.New("a failed")
	proc.OnClose("a", func() error { order = append(order, "a"); return errA })
	proc.OnClose("b", func() error { order = append(order, "b"); return nil })

	err := proc.Close()
	assert.ErrorIs(t, err, errA)
	assert.Equal(t, []string{"b", "a"}, order)

	require.NoError(t, proc.Close(), "second close is a no-op")
	assert.Len(t, order, 2)
}

func TestSetupSignalHandler(t *testing.T) {
	logger := zerolog.New(nil)
	proc := NewProcess(&logger)
	stop := SetupSignalHandler(proc)
	defer stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))
	select {
	case <-proc.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("signal did not request shutdown")
	}
	assert.True(t, proc.ShuttingDown())
}

func TestSetupSignalHandler_SecondSignalExits(t *testing.T) {
	exited := make(chan int, 1)
	exit = func(code int) { exited <- code }
	defer func() { exit = os.Exit }()

	logger := zerolog.New(nil)
	proc := NewProcess(&logger)
	stop := SetupSignalHandler(proc)
	defer stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))
	select {
	case <-proc.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("first signal did not request shutdown")
	}
	select {
	case code := <-exited:
		t.Fatalf("exited with %d on the first signal", code)
	default:
	}

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGINT))
	select {
	case code := <-exited:
		assert.Equal(t, 1, code)
	case <-time.After(2 * time.Second):
		t.Fatal("second signal did not force an exit")
	}
}

func TestSetupSignalHandler_StopReleasesGoroutine(t *testing.T) {
	logger := zerolog.New(nil)
	proc := NewProcess(&logger)
	stop := SetupSignalHandler(proc)
	stop()
	stop()
	assert.False(t, proc.ShuttingDown())
}
