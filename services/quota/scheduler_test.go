package quota

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailsync/internal/config"
	apperrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/logger"
)

func testLogger() logger.Logger {
	l := logger.NewAppLogger(&logger.Config{LogLevel: "error"})
	l.InitLogger()
	return l
}

func testQuotaConfig() *config.QuotaConfig {
	return &config.QuotaConfig{
		UnitsPerWindow:  250,
		WindowMillis:    1000,
		MaxQueueSize:    1000,
		MaxRetries:      5,
		ListCost:        5,
		GetCost:         5,
		RetryBaseMillis: 1,
		RetryMaxMillis:  5,
	}
}

func TestScheduler_ExecutesInSubmissionOrder(t *testing.T) {
	cfg := testQuotaConfig()
	s := NewScheduler("acct_test", cfg, testLogger())
	defer s.Stop()

	var mu sync.Mutex
	var order []int

	gateStarted := make(chan struct{})
	gateRelease := make(chan struct{})

	// hold the drain goroutine so the rest of the tasks queue up
	go func() {
		_ = s.Execute(context.Background(), 1, func(ctx context.Context) error {
			close(gateStarted)
			<-gateRelease
			return nil
		})
	}()
	<-gateStarted

	var wg sync.WaitGroup
	for i := 1; i <= 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Execute(context.Background(), 1, func(ctx context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
			require.NoError(t, err)
		}()
		// the gate blocks the drain, so depth grows by exactly one per submit
		require.Eventually(t, func() bool {
			return s.Stats().QueueDepth == i
		}, time.Second, time.Millisecond)
	}

	close(gateRelease)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2, 3, 4, 5}, order)
}

func TestScheduler_QueueFull(t *testing.T) {
	cfg := testQuotaConfig()
	cfg.MaxQueueSize = 2
	s := NewScheduler("acct_test", cfg, testLogger())
	defer s.Stop()

	gateStarted := make(chan struct{})
	gateRelease := make(chan struct{})
	defer close(gateRelease)

	go func() {
		_ = s.Execute(context.Background(), 1, func(ctx context.Context) error {
			close(gateStarted)
			<-gateRelease
			return nil
		})
	}()
	<-gateStarted

	for i := 0; i < 2; i++ {
		go func() {
			_ = s.Execute(context.Background(), 1, func(ctx context.Context) error { return nil })
		}()
	}
	require.Eventually(t, func() bool {
		return s.Stats().QueueDepth == 2
	}, time.Second, time.Millisecond)

	err := s.Execute(context.Background(), 1, func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, apperrors.ErrQueueFull)
}

func TestScheduler_PacesAgainstWindowBudget(t *testing.T) {
	cfg := testQuotaConfig()
	cfg.UnitsPerWindow = 10
	cfg.WindowMillis = 200
	s := NewScheduler("acct_test", cfg, testLogger())
	defer s.Stop()

	start := time.Now()
	var wg sync.WaitGroup
	var ran int32
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Execute(context.Background(), 5, func(ctx context.Context) error {
				atomic.AddInt32(&ran, 1)
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	// two calls fit the window, the third waits for it to slide
	require.Equal(t, int32(3), atomic.LoadInt32(&ran))
	require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestScheduler_OversizedCostRunsAgainstEmptyWindow(t *testing.T) {
	cfg := testQuotaConfig()
	cfg.UnitsPerWindow = 10
	cfg.WindowMillis = 100
	s := NewScheduler("acct_test", cfg, testLogger())
	defer s.Stop()

	err := s.Execute(context.Background(), 50, func(ctx context.Context) error { return nil })
	require.NoError(t, err)
}

func TestScheduler_RetriesRateLimitedThenGivesUp(t *testing.T) {
	cfg := testQuotaConfig()
	cfg.MaxRetries = 3
	s := NewScheduler("acct_test", cfg, testLogger())
	defer s.Stop()

	var attempts int32
	err := s.Execute(context.Background(), 1, func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return apperrors.ErrQuotaExceeded
	})

	require.ErrorIs(t, err, apperrors.ErrQuotaExceeded)
	require.Equal(t, int32(cfg.MaxRetries+1), atomic.LoadInt32(&attempts))
}

func TestScheduler_RateLimitedRecoversOnRetry(t *testing.T) {
	cfg := testQuotaConfig()
	s := NewScheduler("acct_test", cfg, testLogger())
	defer s.Stop()

	var attempts int32
	err := s.Execute(context.Background(), 1, func(ctx context.Context) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return apperrors.ErrQuotaExceeded
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestScheduler_ClearQueueCancelsQueuedWork(t *testing.T) {
	cfg := testQuotaConfig()
	s := NewScheduler("acct_test", cfg, testLogger())
	defer s.Stop()

	gateStarted := make(chan struct{})
	gateRelease := make(chan struct{})
	defer close(gateRelease)

	go func() {
		_ = s.Execute(context.Background(), 1, func(ctx context.Context) error {
			close(gateStarted)
			<-gateRelease
			return nil
		})
	}()
	<-gateStarted

	results := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			results <- s.Execute(context.Background(), 1, func(ctx context.Context) error { return nil })
		}()
	}
	require.Eventually(t, func() bool {
		return s.Stats().QueueDepth == 3
	}, time.Second, time.Millisecond)

	require.Equal(t, 3, s.ClearQueue())
	for i := 0; i < 3; i++ {
		require.ErrorIs(t, <-results, apperrors.ErrQueueCancelled)
	}
	require.Equal(t, 0, s.Stats().QueueDepth)
}

func TestScheduler_StopRejectsNewWork(t *testing.T) {
	cfg := testQuotaConfig()
	s := NewScheduler("acct_test", cfg, testLogger())
	s.Stop()

	err := s.Execute(context.Background(), 1, func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, apperrors.ErrSchedulerStopped)
}

func TestScheduler_CancelledContextWhileQueued(t *testing.T) {
	cfg := testQuotaConfig()
	s := NewScheduler("acct_test", cfg, testLogger())
	defer s.Stop()

	gateStarted := make(chan struct{})
	gateRelease := make(chan struct{})
	defer close(gateRelease)

	go func() {
		_ = s.Execute(context.Background(), 1, func(ctx context.Context) error {
			close(gateStarted)
			<-gateRelease
			return nil
		})
	}()
	<-gateStarted

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		result <- s.Execute(ctx, 1, func(ctx context.Context) error { return nil })
	}()
	require.Eventually(t, func() bool {
		return s.Stats().QueueDepth == 1
	}, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-result, context.Canceled)
}

func TestScheduler_StatsTrackCumulativeOutcomes(t *testing.T) {
	cfg := testQuotaConfig()
	s := NewScheduler("acct_test", cfg, testLogger())
	defer s.Stop()

	// two clean calls
	for i := 0; i < 2; i++ {
		err := s.Execute(context.Background(), 1, func(ctx context.Context) error { return nil })
		require.NoError(t, err)
	}

	// one terminal failure
	err := s.Execute(context.Background(), 1, func(ctx context.Context) error {
		return errors.New("transient parse failure")
	})
	require.Error(t, err)

	// rate limited twice, then succeeds; each issue counts as executed
	var attempts int32
	err = s.Execute(context.Background(), 1, func(ctx context.Context) error {
		if atomic.AddInt32(&attempts, 1) <= 2 {
			return apperrors.ErrQuotaExceeded
		}
		return nil
	})
	require.NoError(t, err)

	stats := s.Stats()
	require.Equal(t, 6, stats.ExecutedTotal)
	require.Equal(t, 2, stats.RetriedTotal)
	require.Equal(t, 1, stats.FailedTotal)
}

func TestRegistry_ReturnsSameSchedulerPerAccount(t *testing.T) {
	r := NewRegistry(testQuotaConfig(), testLogger())
	defer r.StopAll()

	a := r.ForAccount("acct_1")
	b := r.ForAccount("acct_1")
	c := r.ForAccount("acct_2")

	require.Same(t, a, b)
	require.NotSame(t, a, c)
	require.Len(t, r.Stats(), 2)
}

func TestRegistry_RemoveStopsScheduler(t *testing.T) {
	r := NewRegistry(testQuotaConfig(), testLogger())
	defer r.StopAll()

	s := r.ForAccount("acct_1")
	r.Remove("acct_1")

	err := s.Execute(context.Background(), 1, func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, apperrors.ErrSchedulerStopped)

	// a fresh scheduler is created on next use
	s2 := r.ForAccount("acct_1")
	require.NotSame(t, s, s2)
}
