package interfaces

import (
	"context"

	"github.com/customeros/mailsync/internal/models"
)

type SyncRunRepository interface {
	Create(ctx context.Context, run *models.SyncRun) (string, error)
	GetByID(ctx context.Context, id string) (*models.SyncRun, error)
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.SyncRun, error)
	// IncrementCounters adds the deltas atomically in SQL so concurrent
	// updates to distinct counters never clobber each other
	IncrementCounters(ctx context.Context, id string, processed, stored, failed int) error
	SetCurrentBatch(ctx context.Context, id string, batch int) error
	// AppendError appends under a row lock and trims the list to
	// models.MaxSyncRunErrors entries
	AppendError(ctx context.Context, id string, itemError string) error
	// Complete marks the run terminal; a no-op when the run is already terminal
	Complete(ctx context.Context, id string, success bool) error
}
