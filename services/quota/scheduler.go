package quota

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/internal/config"
	apperrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/logger"
)

// task is one unit of work waiting for quota budget. done is buffered so the
// drain goroutine never blocks handing back a result to a caller that already
// gave up.
type task struct {
	ctx      context.Context
	cost     int
	fn       func(ctx context.Context) error
	done     chan error
	attempts int
	retry    *backoff.Backoff
}

func (t *task) finish(err error) {
	select {
	case t.done <- err:
	default:
	}
}

// spend records units charged against the sliding window at a point in time
type spend struct {
	at    time.Time
	units int
}

// SchedulerStats is a point-in-time snapshot exposed on the status endpoint.
// ExecutedTotal counts every call issued to the provider, retries included;
// RetriedTotal counts rate-limited re-issues; FailedTotal counts operations
// whose final outcome was an error.
type SchedulerStats struct {
	AccountID     string `json:"accountId"`
	QueueDepth    int    `json:"queueDepth"`
	SpentUnits    int    `json:"spentUnits"`
	BudgetUnits   int    `json:"budgetUnits"`
	ExecutedTotal int    `json:"executedTotal"`
	RetriedTotal  int    `json:"retriedTotal"`
	FailedTotal   int    `json:"failedTotal"`
	Stopped       bool   `json:"stopped"`
}

// Scheduler serializes provider API calls for a single account and paces them
// against a sliding per-window unit budget. Work is executed strictly in
// submission order by one drain goroutine; rate-limited calls are retried with
// exponential backoff and go back to the head of the queue so nothing overtakes
// them.
type Scheduler struct {
	accountID string
	cfg       *config.QuotaConfig
	log       logger.Logger

	mu      sync.Mutex
	queue   []*task
	spends  []spend
	stopped bool

	executedTotal int
	retriedTotal  int
	failedTotal   int

	wake   chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
}

func NewScheduler(accountID string, cfg *config.QuotaConfig, log logger.Logger) *Scheduler {
	s := &Scheduler{
		accountID: accountID,
		cfg:       cfg,
		log:       log,
		wake:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	go s.drain()
	return s
}

func (s *Scheduler) window() time.Duration {
	return time.Duration(s.cfg.WindowMillis) * time.Millisecond
}

// Execute enqueues fn and blocks until it ran, was cancelled, or the queue
// rejected it. cost is charged against the window when the call is issued, not
// when it is enqueued.
func (s *Scheduler) Execute(ctx context.Context, cost int, fn func(ctx context.Context) error) error {
	t := &task{
		ctx:  ctx,
		cost: cost,
		fn:   fn,
		done: make(chan error, 1),
		retry: &backoff.Backoff{
			Min:    time.Duration(s.cfg.RetryBaseMillis) * time.Millisecond,
			Max:    time.Duration(s.cfg.RetryMaxMillis) * time.Millisecond,
			Factor: 2,
			Jitter: true,
		},
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return apperrors.ErrSchedulerStopped
	}
	if len(s.queue) >= s.cfg.MaxQueueSize {
		s.mu.Unlock()
		s.log.Warnf("quota scheduler queue full for account %s", s.accountID)
		return apperrors.ErrQueueFull
	}
	s.queue = append(s.queue, t)
	s.mu.Unlock()
	s.notify()

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClearQueue cancels every queued task and returns how many were dropped. The
// task currently executing is not interrupted.
func (s *Scheduler) ClearQueue() int {
	s.mu.Lock()
	dropped := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, t := range dropped {
		t.finish(apperrors.ErrQueueCancelled)
	}
	if len(dropped) > 0 {
		s.log.Infof("cleared %d queued calls for account %s", len(dropped), s.accountID)
	}
	return len(dropped)
}

// Stop rejects new work, cancels everything queued and waits for the drain
// goroutine to exit. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		<-s.doneCh
		return
	}
	s.stopped = true
	dropped := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, t := range dropped {
		t.finish(apperrors.ErrSchedulerStopped)
	}
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(time.Now())
	return SchedulerStats{
		AccountID:     s.accountID,
		QueueDepth:    len(s.queue),
		SpentUnits:    s.spentLocked(),
		BudgetUnits:   s.cfg.UnitsPerWindow,
		ExecutedTotal: s.executedTotal,
		RetriedTotal:  s.retriedTotal,
		FailedTotal:   s.failedTotal,
		Stopped:       s.stopped,
	}
}

func (s *Scheduler) countExecuted() {
	s.mu.Lock()
	s.executedTotal++
	s.mu.Unlock()
}

func (s *Scheduler) countRetried() {
	s.mu.Lock()
	s.retriedTotal++
	s.mu.Unlock()
}

// failTask records a terminal failure and hands the error back to the caller
func (s *Scheduler) failTask(t *task, err error) {
	s.mu.Lock()
	s.failedTotal++
	s.mu.Unlock()
	t.finish(err)
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) drain() {
	defer close(s.doneCh)
	for {
		t := s.next()
		if t == nil {
			return
		}
		if t.ctx.Err() != nil {
			s.failTask(t, apperrors.ErrQueueCancelled)
			continue
		}
		if err := s.waitForBudget(t); err != nil {
			s.failTask(t, err)
			continue
		}

		err := t.fn(t.ctx)
		s.countExecuted()
		if err != nil && errors.Is(err, apperrors.ErrQuotaExceeded) {
			t.attempts++
			if t.attempts > s.cfg.MaxRetries {
				s.log.Warnf("account %s rate limited after %d retries, giving up", s.accountID, s.cfg.MaxRetries)
				s.failTask(t, err)
				continue
			}
			delay := t.retry.Duration()
			s.log.Infof("account %s rate limited, retry %d/%d in %s", s.accountID, t.attempts, s.cfg.MaxRetries, delay)
			select {
			case <-time.After(delay):
			case <-t.ctx.Done():
				s.failTask(t, apperrors.ErrQueueCancelled)
				continue
			case <-s.stopCh:
				s.failTask(t, apperrors.ErrSchedulerStopped)
				continue
			}
			s.countRetried()
			s.requeueHead(t)
			continue
		}
		if err != nil {
			s.failTask(t, err)
			continue
		}
		t.finish(nil)
	}
}

// next blocks until a task is available. Returns nil once the scheduler is
// stopped and the queue is empty.
func (s *Scheduler) next() *task {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			t := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return t
		}
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return nil
		}
		select {
		case <-s.wake:
		case <-s.stopCh:
		}
	}
}

func (s *Scheduler) requeueHead(t *task) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		t.finish(apperrors.ErrSchedulerStopped)
		return
	}
	s.queue = append([]*task{t}, s.queue...)
	s.mu.Unlock()
	s.notify()
}

// waitForBudget sleeps until the sliding window has room for the task's cost,
// then charges it. A cost larger than the whole budget is allowed to run alone
// against an empty window rather than deadlocking.
func (s *Scheduler) waitForBudget(t *task) error {
	for {
		s.mu.Lock()
		now := time.Now()
		s.pruneLocked(now)
		spent := s.spentLocked()
		if spent+t.cost <= s.cfg.UnitsPerWindow || spent == 0 {
			s.spends = append(s.spends, spend{at: now, units: t.cost})
			s.mu.Unlock()
			return nil
		}
		wait := s.spends[0].at.Add(s.window()).Sub(now)
		s.mu.Unlock()

		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		select {
		case <-time.After(wait):
		case <-t.ctx.Done():
			return apperrors.ErrQueueCancelled
		case <-s.stopCh:
			return apperrors.ErrSchedulerStopped
		}
	}
}

func (s *Scheduler) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.window())
	i := 0
	for i < len(s.spends) && !s.spends[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		s.spends = s.spends[i:]
	}
}

func (s *Scheduler) spentLocked() int {
	total := 0
	for _, sp := range s.spends {
		total += sp.units
	}
	return total
}
