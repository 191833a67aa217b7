package interfaces

import (
	"context"

	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/models"
)

// ProgressTracker records per-run counters and item errors while a sync
// executes; runs stay queryable after completion for external polling.
type ProgressTracker interface {
	CreateRun(ctx context.Context, accountID string, kind enum.SyncRunKind, totalItems int) (string, error)
	UpdateProgress(ctx context.Context, runID string, processed, stored, failed int) error
	SetCurrentBatch(ctx context.Context, runID string, batch int) error
	AddError(ctx context.Context, runID string, itemRef string, cause error) error
	Complete(ctx context.Context, runID string, success bool) error
	GetRun(ctx context.Context, runID string) (*models.SyncRun, error)
}
