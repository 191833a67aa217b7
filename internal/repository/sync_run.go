package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

type syncRunRepository struct {
	db *gorm.DB
}

func NewSyncRunRepository(db *gorm.DB) interfaces.SyncRunRepository {
	return &syncRunRepository{db: db}
}

func (r *syncRunRepository) Create(ctx context.Context, run *models.SyncRun) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncRunRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if run == nil {
		return "", nil
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = utils.Now()
	}
	if run.Status == "" {
		run.Status = enum.SyncRunInProgress
	}

	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		tracing.TraceErr(span, err)
		return "", fmt.Errorf("failed to create sync run: %w", err)
	}
	return run.ID, nil
}

func (r *syncRunRepository) GetByID(ctx context.Context, id string) (*models.SyncRun, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncRunRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var run models.SyncRun
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &run, nil
}

func (r *syncRunRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.SyncRun, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncRunRepository.ListByAccount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if limit <= 0 {
		limit = 20
	}

	var runs []*models.SyncRun
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("started_at desc").
		Limit(limit).
		Find(&runs).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	return runs, nil
}

// IncrementCounters applies the deltas as SQL-side arithmetic so concurrent
// writers touching different counters never clobber each other. Terminal runs
// are excluded by the status predicate.
func (r *syncRunRepository) IncrementCounters(ctx context.Context, id string, processed, stored, failed int) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncRunRepository.IncrementCounters")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if processed == 0 && stored == 0 && failed == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).
		Model(&models.SyncRun{}).
		Where("id = ? AND status = ?", id, enum.SyncRunInProgress).
		Updates(map[string]interface{}{
			"processed_items": gorm.Expr("processed_items + ?", processed),
			"stored_items":    gorm.Expr("stored_items + ?", stored),
			"failed_items":    gorm.Expr("failed_items + ?", failed),
			"updated_at":      utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	return nil
}

func (r *syncRunRepository) SetCurrentBatch(ctx context.Context, id string, batch int) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncRunRepository.SetCurrentBatch")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Model(&models.SyncRun{}).
		Where("id = ? AND status = ?", id, enum.SyncRunInProgress).
		Updates(map[string]interface{}{
			"current_batch": batch,
			"updated_at":    utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	return nil
}

// AppendError holds a row lock for the read-modify-write on the error list
// and trims it to the newest MaxSyncRunErrors entries.
func (r *syncRunRepository) AppendError(ctx context.Context, id string, itemError string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncRunRepository.AppendError")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var run models.SyncRun
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&run).Error; err != nil {
			return err
		}
		if run.Status.Terminal() {
			return nil
		}

		itemErrors := append(run.ItemErrors, itemError)
		if len(itemErrors) > models.MaxSyncRunErrors {
			itemErrors = itemErrors[len(itemErrors)-models.MaxSyncRunErrors:]
		}

		return tx.Model(&models.SyncRun{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"item_errors": itemErrors,
				"updated_at":  utils.Now(),
			}).Error
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// Complete transitions the run to its terminal status; once terminal the
// predicate makes any further transition a no-op.
func (r *syncRunRepository) Complete(ctx context.Context, id string, success bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncRunRepository.Complete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	status := enum.SyncRunSuccess
	if !success {
		status = enum.SyncRunFailed
	}

	result := r.db.WithContext(ctx).
		Model(&models.SyncRun{}).
		Where("id = ? AND status = ?", id, enum.SyncRunInProgress).
		Updates(map[string]interface{}{
			"status":       status,
			"completed_at": utils.Now(),
			"updated_at":   utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	return nil
}
