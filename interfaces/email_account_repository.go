package interfaces

import (
	"context"
	"time"

	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/models"
)

type EmailAccountRepository interface {
	Create(ctx context.Context, account *models.EmailAccount) (string, error)
	GetByID(ctx context.Context, id string) (*models.EmailAccount, error)
	GetByUserID(ctx context.Context, userID string) ([]*models.EmailAccount, error)
	GetSyncable(ctx context.Context) ([]*models.EmailAccount, error)
	Update(ctx context.Context, account *models.EmailAccount) error
	UpdateCredentialBlob(ctx context.Context, id string, blob string) error
	UpdateHealth(ctx context.Context, id string, health enum.AccountHealth, errorMessage string) error
	UpdateSyncStatus(ctx context.Context, id string, status enum.SyncStatus) error
	// TryMarkSyncing flips the account into syncing status only when it is not
	// already syncing; returns false when another run holds the account
	TryMarkSyncing(ctx context.Context, id string) (bool, error)
	// MarkSynced records a successful run: idle status, healthy, lastSync set,
	// error message cleared
	MarkSynced(ctx context.Context, id string, lastSync time.Time) error
	// MarkSyncFailed records a failed run: error status and health plus message
	MarkSyncFailed(ctx context.Context, id string, errorMessage string) error
	Delete(ctx context.Context, id string) error
}
