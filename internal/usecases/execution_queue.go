package usecases

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"replygate/internal/interfaces"
	"replygate/internal/metrics"
)

var (
	ErrQueueFull    = errors.New("execution queue full")
	ErrQueueStopped = errors.New("execution queue stopped")
)

// ApprovalExecutor runs the action behind an approved approval.
type ApprovalExecutor interface {
	ExecuteAction(ctx context.Context, approvalID string) error
}

type QueueOptions struct {
	Workers    int
	Size       int
	MaxRetries uint64
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// ExecutionFailure reports a job that still failed after every retry.
type ExecutionFailure struct {
	ApprovalID string
	Err        error
	Attempts   int
}

// ExecutionQueue runs approved actions on a fixed pool of workers.
// Jobs returning an error are retried with exponential backoff, except
// ErrActionUnlogged, which means the reply already went out.
type ExecutionQueue struct {
	exec      ApprovalExecutor
	approvals interfaces.ApprovalStore
	opts      QueueOptions
	log       zerolog.Logger

	jobs     chan string
	failures chan ExecutionFailure
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

func NewExecutionQueue(exec ApprovalExecutor, approvals interfaces.ApprovalStore, opts QueueOptions, log zerolog.Logger) *ExecutionQueue {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Size < 1 {
		opts.Size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ExecutionQueue{
		exec:      exec,
		approvals: approvals,
		opts:      opts,
		log:       log.With().Str("component", "execution_queue").Logger(),
		jobs:      make(chan string, opts.Size),
		failures:  make(chan ExecutionFailure, opts.Size),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (q *ExecutionQueue) Start() {
	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.log.Info().Int("workers", q.opts.Workers).Int("size", q.opts.Size).Msg("execution queue started")
}

// Enqueue never blocks.
func (q *ExecutionQueue) Enqueue(approvalID string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return ErrQueueStopped
	}
	select {
	case q.jobs <- approvalID:
		metrics.QueueDepth.Inc()
		return nil
	default:
		metrics.QueueDropped.Inc()
		return ErrQueueFull
	}
}

// Failures delivers exhausted jobs. Reports are dropped when nobody reads.
func (q *ExecutionQueue) Failures() <-chan ExecutionFailure {
	return q.failures
}

// Recover enqueues approved approvals that never got an action log, which
// happens when the process stops between disposition and execution.
func (q *ExecutionQueue) Recover(ctx context.Context) (int, error) {
	ids, err := q.approvals.ListApprovedUnexecuted(ctx, q.opts.Size)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if err := q.Enqueue(id); err != nil {
			q.log.Warn().Err(err).Str("approval_id", id).Msg("recovery enqueue failed")
			break
		}
		n++
	}
	if n > 0 {
		q.log.Info().Int("count", n).Msg("re-enqueued approved but unexecuted actions")
	}
	return n, nil
}

// RunRecovery calls Recover on every tick until ctx ends or the queue stops.
// Approvals whose enqueue was rejected at runtime are picked up here.
func (q *ExecutionQueue) RunRecovery(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.Recover(ctx); err != nil {
				q.log.Warn().Err(err).Msg("periodic recovery failed")
			}
		}
	}
}

// Stop rejects new jobs, lets workers drain the buffer and waits for them.
func (q *ExecutionQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
	q.cancel()
	close(q.failures)
}

func (q *ExecutionQueue) worker() {
	defer q.wg.Done()
	for id := range q.jobs {
		metrics.QueueDepth.Dec()
		q.run(id)
	}
}

func (q *ExecutionQueue) run(approvalID string) {
	b := backoff.NewExponentialBackOff()
	if q.opts.BaseDelay > 0 {
		b.InitialInterval = q.opts.BaseDelay
	}
	if q.opts.MaxDelay > 0 {
		b.MaxInterval = q.opts.MaxDelay
	}
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, q.opts.MaxRetries), q.ctx)

	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		err := q.exec.ExecuteAction(q.ctx, approvalID)
		if errors.Is(err, ErrActionUnlogged) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		metrics.QueueRetries.Inc()
		q.log.Warn().Err(err).Str("approval_id", approvalID).Dur("retry_in", wait).Msg("action execution failed, retrying")
	})
	if err == nil {
		return
	}

	q.log.Error().Err(err).Str("approval_id", approvalID).Int("attempts", attempts).Msg("action execution gave up")
	select {
	case q.failures <- ExecutionFailure{ApprovalID: approvalID, Err: err, Attempts: attempts}:
	default:
	}
}
