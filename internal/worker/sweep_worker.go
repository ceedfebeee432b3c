package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/service"
)

// DefaultSweepLockKey is the Redis key of the sweep lease.
const DefaultSweepLockKey = "sla:sweep:lock"

// releaseScript deletes the lease only while this worker still owns it.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) end return 0`

// SweepRunner runs one sweep.
type SweepRunner interface {
	Run(ctx context.Context, req service.SweepRequest) (service.SweepResult, error)
}

// SweepWorkerOptions configures a SweepWorker.
type SweepWorkerOptions struct {
	Runner   SweepRunner
	Redis    *redis.Client
	Interval time.Duration
	LockKey  string
	LockTTL  time.Duration
	// Token identifies this replica as lease owner. Random when empty.
	Token  string
	Logger *zap.Logger
}

// SweepWorker runs the sweeper on a fixed interval. With Redis configured,
// a SETNX lease makes sure only one replica sweeps per tick.
type SweepWorker struct {
	runner   SweepRunner
	redis    *redis.Client
	interval time.Duration
	lockKey  string
	lockTTL  time.Duration
	token    string
	logger   *zap.Logger
}

// NewSweepWorker builds a worker.
func NewSweepWorker(opts SweepWorkerOptions) *SweepWorker {
	w := &SweepWorker{
		runner:   opts.Runner,
		redis:    opts.Redis,
		interval: opts.Interval,
		lockKey:  opts.LockKey,
		lockTTL:  opts.LockTTL,
		token:    opts.Token,
		logger:   opts.Logger,
	}
	if w.interval <= 0 {
		w.interval = time.Minute
	}
	if w.lockKey == "" {
		w.lockKey = DefaultSweepLockKey
	}
	if w.lockTTL <= 0 {
		w.lockTTL = w.interval
	}
	if w.token == "" {
		w.token = uuid.NewString()
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	return w
}

// Start sweeps every interval until ctx is cancelled.
func (w *SweepWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.logger.Info("sweep worker started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sweep worker stopped")
			return
		case <-ticker.C:
			if _, err := w.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("scheduled sweep failed", zap.Error(err))
			}
		}
	}
}

// Tick runs one sweep if the lease can be taken. It reports whether a sweep ran.
func (w *SweepWorker) Tick(ctx context.Context) (bool, error) {
	acquired, err := w.acquire(ctx)
	if err != nil {
		return false, err
	}
	if !acquired {
		w.logger.Debug("sweep lease held by another replica", zap.String("key", w.lockKey))
		return false, nil
	}
	defer w.release()

	_, err = w.runner.Run(ctx, service.SweepRequest{})
	return true, err
}

func (w *SweepWorker) acquire(ctx context.Context) (bool, error) {
	if w.redis == nil {
		return true, nil
	}
	return w.redis.SetNX(ctx, w.lockKey, w.token, w.lockTTL).Result()
}

func (w *SweepWorker) release() {
	if w.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.redis.Eval(ctx, releaseScript, []string{w.lockKey}, w.token).Err(); err != nil {
		w.logger.Warn("failed to release sweep lease", zap.String("key", w.lockKey), zap.Error(err))
	}
}
