package progress

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	apperrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
)

type progressTracker struct {
	runs interfaces.SyncRunRepository
	log  logger.Logger
}

func NewProgressTracker(runs interfaces.SyncRunRepository, log logger.Logger) interfaces.ProgressTracker {
	return &progressTracker{runs: runs, log: log}
}

func (t *progressTracker) CreateRun(ctx context.Context, accountID string, kind enum.SyncRunKind, totalItems int) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "progressTracker.CreateRun")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagAccountId(span, accountID)

	run := &models.SyncRun{
		AccountID:  accountID,
		Kind:       kind,
		TotalItems: totalItems,
		Status:     enum.SyncRunInProgress,
	}
	id, err := t.runs.Create(ctx, run)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	return id, nil
}

func (t *progressTracker) UpdateProgress(ctx context.Context, runID string, processed, stored, failed int) error {
	return t.runs.IncrementCounters(ctx, runID, processed, stored, failed)
}

func (t *progressTracker) SetCurrentBatch(ctx context.Context, runID string, batch int) error {
	return t.runs.SetCurrentBatch(ctx, runID, batch)
}

// AddError records one item failure without failing the run. The stored form
// is "itemRef: cause" so operators can retry individual messages.
func (t *progressTracker) AddError(ctx context.Context, runID string, itemRef string, cause error) error {
	causeText := "unknown error"
	if cause != nil {
		causeText = cause.Error()
	}
	if err := t.runs.AppendError(ctx, runID, fmt.Sprintf("%s: %s", itemRef, causeText)); err != nil {
		t.log.Warnf("failed to record item error for run %s: %v", runID, err)
		return err
	}
	return nil
}

func (t *progressTracker) Complete(ctx context.Context, runID string, success bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "progressTracker.Complete")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.SetTag("run.id", runID)
	span.SetTag("run.success", success)

	if err := t.runs.Complete(ctx, runID, success); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (t *progressTracker) GetRun(ctx context.Context, runID string) (*models.SyncRun, error) {
	run, err := t.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, apperrors.ErrSyncRunNotFound
	}
	return run, nil
}
