package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	mailsyncerrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

type emailAccountRepository struct {
	db *gorm.DB
}

func NewEmailAccountRepository(db *gorm.DB) interfaces.EmailAccountRepository {
	return &emailAccountRepository{db: db}
}

func (r *emailAccountRepository) Create(ctx context.Context, account *models.EmailAccount) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailAccountRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if account == nil {
		return "", nil
	}

	result := r.db.WithContext(ctx).Create(account)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return "", result.Error
	}

	return account.ID, nil
}

func (r *emailAccountRepository) GetByID(ctx context.Context, id string) (*models.EmailAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailAccountRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var account models.EmailAccount
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &account, nil
}

func (r *emailAccountRepository) GetByUserID(ctx context.Context, userID string) ([]*models.EmailAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailAccountRepository.GetByUserID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var accounts []*models.EmailAccount
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at asc").
		Find(&accounts).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list accounts for user: %w", err)
	}
	return accounts, nil
}

// GetSyncable returns accounts eligible for a scheduled sync pass
func (r *emailAccountRepository) GetSyncable(ctx context.Context) ([]*models.EmailAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailAccountRepository.GetSyncable")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var accounts []*models.EmailAccount
	if err := r.db.WithContext(ctx).
		Where("sync_status <> ?", enum.SyncStatusSyncing).
		Where("health = ?", enum.AccountHealthy).
		Find(&accounts).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list syncable accounts: %w", err)
	}
	return accounts, nil
}

func (r *emailAccountRepository) Update(ctx context.Context, account *models.EmailAccount) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailAccountRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	account.UpdatedAt = utils.Now()
	if err := r.db.WithContext(ctx).Save(account).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *emailAccountRepository) UpdateCredentialBlob(ctx context.Context, id string, blob string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailAccountRepository.UpdateCredentialBlob")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Model(&models.EmailAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"credential_blob": blob,
			"updated_at":      utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return mailsyncerrors.ErrAccountNotFound
	}
	return nil
}

func (r *emailAccountRepository) UpdateHealth(ctx context.Context, id string, health enum.AccountHealth, errorMessage string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailAccountRepository.UpdateHealth")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Model(&models.EmailAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"health":        health,
			"error_message": errorMessage,
			"updated_at":    utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	return nil
}

func (r *emailAccountRepository) UpdateSyncStatus(ctx context.Context, id string, status enum.SyncStatus) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailAccountRepository.UpdateSyncStatus")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Model(&models.EmailAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sync_status": status,
			"updated_at":  utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	return nil
}

// TryMarkSyncing is the per-account mutual exclusion guard: the conditional
// update only wins when no other run holds the account.
func (r *emailAccountRepository) TryMarkSyncing(ctx context.Context, id string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailAccountRepository.TryMarkSyncing")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Model(&models.EmailAccount{}).
		Where("id = ? AND sync_status <> ?", id, enum.SyncStatusSyncing).
		Updates(map[string]interface{}{
			"sync_status": enum.SyncStatusSyncing,
			"updated_at":  utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *emailAccountRepository) MarkSynced(ctx context.Context, id string, lastSync time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailAccountRepository.MarkSynced")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Model(&models.EmailAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sync_status":   enum.SyncStatusIdle,
			"health":        enum.AccountHealthy,
			"last_sync":     lastSync,
			"error_message": "",
			"updated_at":    utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	return nil
}

func (r *emailAccountRepository) MarkSyncFailed(ctx context.Context, id string, errorMessage string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailAccountRepository.MarkSyncFailed")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Model(&models.EmailAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sync_status":   enum.SyncStatusError,
			"health":        enum.AccountHealthError,
			"error_message": errorMessage,
			"updated_at":    utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	return nil
}

func (r *emailAccountRepository) Delete(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailAccountRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.EmailAccount{})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to delete account: %w", result.Error)
	}
	return nil
}
