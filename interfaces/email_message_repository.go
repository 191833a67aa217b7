package interfaces

import (
	"context"

	"github.com/customeros/mailsync/internal/models"
)

type EmailMessageRepository interface {
	// Upsert inserts the message or, when (accountID, externalID) already
	// exists, updates only the mutable fields. Returns true when a new row
	// was inserted.
	Upsert(ctx context.Context, message *models.EmailMessage) (bool, error)
	GetByExternalID(ctx context.Context, accountID, externalID string) (*models.EmailMessage, error)
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*models.EmailMessage, int64, error)
	CountByAccount(ctx context.Context, accountID string) (int64, error)
}
