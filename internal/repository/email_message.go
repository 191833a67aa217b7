package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

type emailMessageRepository struct {
	db *gorm.DB
}

func NewEmailMessageRepository(db *gorm.DB) interfaces.EmailMessageRepository {
	return &emailMessageRepository{db: db}
}

// Upsert inserts the message keyed by (account_id, external_id). When the row
// already exists only mutable fields are updated. The composite unique index
// backs this up at the storage layer: a concurrent insert losing the race is
// treated as a benign duplicate, not an error.
func (r *emailMessageRepository) Upsert(ctx context.Context, message *models.EmailMessage) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailMessageRepository.Upsert")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if message == nil {
		return false, nil
	}

	if message.Subject != "" {
		message.CleanSubject = utils.NormalizeEmailSubject(message.Subject)
	}

	existing := &models.EmailMessage{}
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND external_id = ?", message.AccountID, message.ExternalID).
		First(existing).Error

	if err == nil {
		span.SetTag("duplicate", true)
		result := r.db.WithContext(ctx).
			Model(existing).
			Updates(map[string]interface{}{
				"is_read":    message.IsRead,
				"labels":     message.Labels,
				"updated_at": utils.Now(),
			})
		if result.Error != nil {
			tracing.TraceErr(span, result.Error)
			return false, result.Error
		}
		message.ID = existing.ID
		return false, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		tracing.TraceErr(span, err)
		return false, err
	}

	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		if isUniqueViolation(err) {
			// lost an insert race with an overlapping run
			span.SetTag("duplicate", true)
			return false, nil
		}
		tracing.TraceErr(span, err)
		return false, err
	}

	return true, nil
}

func (r *emailMessageRepository) GetByExternalID(ctx context.Context, accountID, externalID string) (*models.EmailMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailMessageRepository.GetByExternalID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var message models.EmailMessage
	if err := r.db.WithContext(ctx).
		Where("account_id = ? AND external_id = ?", accountID, externalID).
		First(&message).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &message, nil
}

func (r *emailMessageRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*models.EmailMessage, int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailMessageRepository.ListByAccount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.EmailMessage{}).
		Where("account_id = ?", accountID).
		Count(&total).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}

	var messages []*models.EmailMessage
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("received_at desc").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}

	return messages, total, nil
}

func (r *emailMessageRepository) CountByAccount(ctx context.Context, accountID string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailMessageRepository.CountByAccount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.EmailMessage{}).
		Where("account_id = ?", accountID).
		Count(&total).Error; err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	return total, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "duplicate key value")
}
