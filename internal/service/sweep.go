package service

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/observability"
	"github.com/spec-kit/sla-service/internal/repository"
)

// Sweep defaults.
const (
	DefaultSweepConcurrency = 8
	DefaultSweepBatchSize   = 500
	DefaultRecordTimeout    = 5 * time.Second
)

// RecordEvaluator evaluates one tracking record.
type RecordEvaluator interface {
	Evaluate(ctx context.Context, orgID, id string) (*EvaluationResult, error)
}

// SweepRequest scopes a sweep. A nil Domain sweeps every domain.
type SweepRequest struct {
	Domain *domain.Domain
}

// SweepResult counts what a sweep did.
type SweepResult struct {
	Evaluated int `json:"evaluated"`
	Breached  int `json:"breached"`
	Warned    int `json:"warned"`
	Escalated int `json:"escalated"`
	Skipped   int `json:"skipped"`
}

// SweeperDependencies bundles collaborators for the sweeper.
type SweeperDependencies struct {
	Store         repository.Store
	Evaluator     RecordEvaluator
	Metrics       *observability.Metrics
	Logger        *zap.Logger
	Concurrency   int
	BatchSize     int
	RecordTimeout time.Duration
}

// Sweeper evaluates every running, non-paused tracking record.
type Sweeper struct {
	store         repository.Store
	evaluator     RecordEvaluator
	metrics       *observability.Metrics
	logger        *zap.Logger
	concurrency   int
	batchSize     int
	recordTimeout time.Duration
}

// NewSweeper constructs a sweeper, applying defaults to unset limits.
func NewSweeper(deps SweeperDependencies) *Sweeper {
	s := &Sweeper{
		store:         deps.Store,
		evaluator:     deps.Evaluator,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		concurrency:   deps.Concurrency,
		batchSize:     deps.BatchSize,
		recordTimeout: deps.RecordTimeout,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultSweepConcurrency
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultSweepBatchSize
	}
	if s.recordTimeout <= 0 {
		s.recordTimeout = DefaultRecordTimeout
	}
	return s
}

// Run pages through candidates and evaluates them on a bounded worker pool.
// A record that fails or times out is counted as skipped and does not stop
// the sweep. Cancelling ctx stops paging and returns the partial result.
func (s *Sweeper) Run(ctx context.Context, req SweepRequest) (SweepResult, error) {
	started := time.Now()
	var evaluated, breached, warned, escalated, skipped atomic.Int64

	afterID := ""
	var runErr error
	for {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		refs, err := s.store.Repositories().Trackings.ListSweepCandidates(ctx, repository.SweepFilter{
			Domain:  req.Domain,
			AfterID: afterID,
			Limit:   s.batchSize,
		})
		if err != nil {
			runErr = err
			break
		}
		if len(refs) == 0 {
			break
		}

		var g errgroup.Group
		g.SetLimit(s.concurrency)
		for _, ref := range refs {
			ref := ref
			g.Go(func() error {
				rctx, cancel := context.WithTimeout(ctx, s.recordTimeout)
				defer cancel()
				res, err := s.evaluator.Evaluate(rctx, ref.OrgID, ref.ID)
				if err != nil {
					skipped.Add(1)
					s.logger.Warn("sweep skipped tracking",
						zap.String("org_id", ref.OrgID),
						zap.String("tracking_id", ref.ID),
						zap.Error(err))
					return nil
				}
				evaluated.Add(1)
				breached.Add(int64(res.Breached))
				warned.Add(int64(res.Warned))
				escalated.Add(int64(res.Escalated))
				return nil
			})
		}
		_ = g.Wait()

		afterID = refs[len(refs)-1].ID
		if len(refs) < s.batchSize {
			break
		}
	}

	result := SweepResult{
		Evaluated: int(evaluated.Load()),
		Breached:  int(breached.Load()),
		Warned:    int(warned.Load()),
		Escalated: int(escalated.Load()),
		Skipped:   int(skipped.Load()),
	}
	elapsed := time.Since(started)
	s.metrics.RecordSweep(map[string]int{
		observability.SweepOutcomeEvaluated: result.Evaluated,
		observability.SweepOutcomeBreached:  result.Breached,
		observability.SweepOutcomeWarned:    result.Warned,
		observability.SweepOutcomeEscalated: result.Escalated,
		observability.SweepOutcomeSkipped:   result.Skipped,
	}, elapsed)

	fields := []zap.Field{
		zap.Int("evaluated", result.Evaluated),
		zap.Int("breached", result.Breached),
		zap.Int("warned", result.Warned),
		zap.Int("escalated", result.Escalated),
		zap.Int("skipped", result.Skipped),
		zap.Duration("duration", elapsed),
	}
	if req.Domain != nil {
		fields = append(fields, zap.String("domain", string(*req.Domain)))
	}
	if runErr != nil {
		s.logger.Error("sweep aborted", append(fields, zap.Error(runErr))...)
		return result, runErr
	}
	s.logger.Info("sweep completed", fields...)
	return result, nil
}
