package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-service/internal/service"
)

type countingRunner struct {
	runs atomic.Int32
	err  error
}

func (r *countingRunner) Run(context.Context, service.SweepRequest) (service.SweepResult, error) {
	r.runs.Add(1)
	return service.SweepResult{}, r.err
}

func TestSweepWorker_TickTakesAndReleasesLease(t *testing.T) {
	db, mock := redismock.NewClientMock()
	runner := &countingRunner{}
	w := NewSweepWorker(SweepWorkerOptions{Runner: runner, Redis: db, LockTTL: 30 * time.Second, Token: "replica-a"})

	mock.ExpectSetNX(DefaultSweepLockKey, "replica-a", 30*time.Second).SetVal(true)
	mock.ExpectEval(releaseScript, []string{DefaultSweepLockKey}, "replica-a").SetVal(int64(1))

	ran, err := w.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, int32(1), runner.runs.Load())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepWorker_TickSkipsWhenLeaseHeld(t *testing.T) {
	db, mock := redismock.NewClientMock()
	runner := &countingRunner{}
	w := NewSweepWorker(SweepWorkerOptions{Runner: runner, Redis: db, LockKey: "lock", LockTTL: time.Minute, Token: "replica-b"})

	mock.ExpectSetNX("lock", "replica-b", time.Minute).SetVal(false)

	ran, err := w.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Zero(t, runner.runs.Load())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepWorker_TickReportsLeaseAndRunErrors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	runner := &countingRunner{err: errors.New("store down")}
	w := NewSweepWorker(SweepWorkerOptions{Runner: runner, Redis: db, LockTTL: time.Minute, Token: "r"})

	mock.ExpectSetNX(DefaultSweepLockKey, "r", time.Minute).SetErr(errors.New("redis down"))
	_, err := w.Tick(context.Background())
	assert.EqualError(t, err, "redis down")

	mock.ExpectSetNX(DefaultSweepLockKey, "r", time.Minute).SetVal(true)
	mock.ExpectEval(releaseScript, []string{DefaultSweepLockKey}, "r").SetVal(int64(1))
	ran, err := w.Tick(context.Background())
	assert.True(t, ran)
	assert.EqualError(t, err, "store down")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepWorker_StartRunsOnInterval(t *testing.T) {
	runner := &countingRunner{}
	w := NewSweepWorker(SweepWorkerOptions{Runner: runner, Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return runner.runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
