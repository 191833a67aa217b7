package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/config"
	"github.com/customeros/mailsync/internal/enum"
	apperrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
	"github.com/customeros/mailsync/services/quota"
)

type syncService struct {
	cfg      *config.SyncConfig
	quotaCfg *config.QuotaConfig
	log      logger.Logger

	accounts   interfaces.EmailAccountRepository
	messages   interfaces.EmailMessageRepository
	provider   interfaces.EmailProvider
	tokens     interfaces.TokenManager
	progress   interfaces.ProgressTracker
	publisher  interfaces.EventPublisher
	schedulers *quota.Registry
}

func NewSyncService(
	cfg *config.SyncConfig,
	quotaCfg *config.QuotaConfig,
	accounts interfaces.EmailAccountRepository,
	messages interfaces.EmailMessageRepository,
	provider interfaces.EmailProvider,
	tokens interfaces.TokenManager,
	progress interfaces.ProgressTracker,
	publisher interfaces.EventPublisher,
	schedulers *quota.Registry,
	log logger.Logger,
) interfaces.SyncService {
	return &syncService{
		cfg:        cfg,
		quotaCfg:   quotaCfg,
		log:        log,
		accounts:   accounts,
		messages:   messages,
		provider:   provider,
		tokens:     tokens,
		progress:   progress,
		publisher:  publisher,
		schedulers: schedulers,
	}
}

// SyncAccount runs one full sync pass: list ids since the last watermark,
// fetch and store them in batches, tracking progress per batch. Item failures
// are isolated; only infrastructure failures abort the run.
func (s *syncService) SyncAccount(ctx context.Context, accountID string) (*interfaces.SyncResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncService.SyncAccount")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagAccountId(span, accountID)

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if account == nil {
		return nil, apperrors.ErrAccountNotFound
	}
	if !account.Provider.IsGoogle() {
		return nil, apperrors.ErrUnsupportedProvider
	}

	acquired, err := s.accounts.TryMarkSyncing(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if !acquired {
		return nil, apperrors.ErrSyncInProgress
	}

	// the watermark is taken before listing so messages arriving mid-run are
	// picked up by the next incremental pass
	syncStart := utils.Now()

	result, err := s.runSync(ctx, account, syncStart)
	if err != nil {
		tracing.TraceErr(span, err)
		_ = s.accounts.MarkSyncFailed(ctx, accountID, err.Error())
		return result, err
	}

	if err := s.accounts.MarkSynced(ctx, accountID, syncStart); err != nil {
		tracing.TraceErr(span, err)
		return result, err
	}
	return result, nil
}

func (s *syncService) runSync(ctx context.Context, account *models.EmailAccount, syncStart time.Time) (*interfaces.SyncResult, error) {
	accessToken, err := s.tokens.GetValidToken(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	scheduler := s.schedulers.ForAccount(account.ID)
	since := account.SinceForSync()

	var ids []string
	err = scheduler.Execute(ctx, s.quotaCfg.ListCost, func(ctx context.Context) error {
		var listErr error
		ids, listErr = s.provider.ListMessageIDs(ctx, accessToken, since, int64(s.cfg.MaxListedIDs))
		return listErr
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing messages failed")
	}

	kind := enum.SyncRunIncremental
	if account.LastSync == nil {
		kind = enum.SyncRunInitial
	}

	runID, err := s.progress.CreateRun(ctx, account.ID, kind, len(ids))
	if err != nil {
		return nil, err
	}

	result := &interfaces.SyncResult{
		AccountID: account.ID,
		SyncRunID: runID,
	}

	s.log.Infof("sync run %s started for account %s: %d messages, kind %s", runID, account.ID, len(ids), kind)

	if err := s.processBatches(ctx, account, runID, ids, result); err != nil {
		_ = s.progress.Complete(ctx, runID, false)
		return result, err
	}

	if err := s.progress.Complete(ctx, runID, true); err != nil {
		return result, err
	}
	result.Success = true
	s.log.Infof("sync run %s finished for account %s: fetched %d, stored %d, failed %d",
		runID, account.ID, result.Fetched, result.Stored, result.Failed)
	return result, nil
}

func (s *syncService) processBatches(ctx context.Context, account *models.EmailAccount, runID string, ids []string, result *interfaces.SyncResult) error {
	scheduler := s.schedulers.ForAccount(account.ID)

	for batchStart, batchNum := 0, 1; batchStart < len(ids); batchStart, batchNum = batchStart+s.cfg.BatchSize, batchNum+1 {
		batchEnd := batchStart + s.cfg.BatchSize
		if batchEnd > len(ids) {
			batchEnd = len(ids)
		}
		batch := ids[batchStart:batchEnd]

		if err := s.progress.SetCurrentBatch(ctx, runID, batchNum); err != nil {
			s.log.Warnf("failed to record batch number for run %s: %v", runID, err)
		}

		// tokens are re-validated per batch; the refresh margin keeps a token
		// from dying between two fetches within one batch
		accessToken, err := s.tokens.GetValidToken(ctx, account.ID)
		if err != nil {
			return err
		}

		processed, stored, failed := 0, 0, 0
		for _, externalID := range batch {
			var message *models.EmailMessage
			err := scheduler.Execute(ctx, s.quotaCfg.GetCost, func(ctx context.Context) error {
				var getErr error
				message, getErr = s.provider.GetMessage(ctx, accessToken, externalID)
				return getErr
			})
			if err != nil {
				if isFatalSyncError(err) {
					return err
				}
				processed++
				failed++
				s.recordItemError(ctx, runID, result, externalID, err)
				continue
			}

			processed++
			result.Fetched++
			if message == nil {
				// gone between list and fetch
				continue
			}

			message.AccountID = account.ID
			inserted, err := s.messages.Upsert(ctx, message)
			if err != nil {
				failed++
				s.recordItemError(ctx, runID, result, externalID, err)
				continue
			}
			// updates of already-present messages do not count as stored
			if inserted {
				stored++
				result.Stored++
			}

			s.publishStored(ctx, account, runID, message, inserted)
		}

		if err := s.progress.UpdateProgress(ctx, runID, processed, stored, failed); err != nil {
			s.log.Warnf("failed to record progress for run %s: %v", runID, err)
		}

		if batchEnd < len(ids) {
			select {
			case <-time.After(time.Duration(s.cfg.BatchPauseMillis) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// recordItemError counts a single-item failure against both the run record
// and the in-memory result, whose error list is bounded the same way the
// persisted one is, newest kept
func (s *syncService) recordItemError(ctx context.Context, runID string, result *interfaces.SyncResult, externalID string, cause error) {
	result.Failed++
	result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", externalID, cause.Error()))
	if len(result.Errors) > models.MaxSyncRunErrors {
		result.Errors = result.Errors[len(result.Errors)-models.MaxSyncRunErrors:]
	}
	_ = s.progress.AddError(ctx, runID, externalID, cause)
}

// publishStored fires the downstream event; failures are logged and never
// affect the run
func (s *syncService) publishStored(ctx context.Context, account *models.EmailAccount, runID string, message *models.EmailMessage, inserted bool) {
	event := dto.MessageStored{
		MessageID:   message.ID,
		AccountID:   account.ID,
		UserID:      account.UserID,
		ExternalID:  message.ExternalID,
		SyncRunID:   runID,
		FromAddress: message.FromAddress,
		Subject:     message.Subject,
		Inserted:    inserted,
		ReceivedAt:  message.ReceivedAt,
		StoredAt:    utils.Now(),
	}
	if err := s.publisher.PublishMessageStored(ctx, event); err != nil {
		s.log.Warnf("failed to publish message stored event for %s: %v", message.ExternalID, err)
	}
}

// SyncUserAccounts fans out over the user's accounts with bounded
// concurrency. Per-account failures are folded into that account's result.
func (s *syncService) SyncUserAccounts(ctx context.Context, userID string) ([]*interfaces.SyncResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncService.SyncUserAccounts")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagUserId(span, userID)

	accounts, err := s.accounts.GetByUserID(ctx, userID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	var mu sync.Mutex
	results := make([]*interfaces.SyncResult, 0, len(accounts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.AccountConcurrency)

	for _, account := range accounts {
		account := account
		g.Go(func() error {
			result, err := s.SyncAccount(ctx, account.ID)
			if result == nil {
				result = &interfaces.SyncResult{AccountID: account.ID}
			}
			if err != nil {
				result.Success = false
				result.Errors = append(result.Errors, err.Error())
				s.log.Warnf("sync failed for account %s: %v", account.ID, err)
			}
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	span.SetTag("accounts.count", len(results))
	return results, nil
}

// isFatalSyncError distinguishes run-level failures from single-item
// failures. Quota exhaustion past the retry budget aborts the run: every
// following call would hit the same wall.
func isFatalSyncError(err error) bool {
	switch {
	case errors.Is(err, apperrors.ErrSchedulerStopped),
		errors.Is(err, apperrors.ErrQueueCancelled),
		errors.Is(err, apperrors.ErrQueueFull),
		errors.Is(err, apperrors.ErrQuotaExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return false
}
