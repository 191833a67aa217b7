package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/utils"
)

// MaxSyncRunErrors bounds the per-run error list; older entries are dropped
const MaxSyncRunErrors = 100

// SyncRun tracks the live progress of one sync pass over an account.
// Counters are mutated incrementally while the run executes and are frozen
// once the run reaches a terminal status.
type SyncRun struct {
	ID        string           `gorm:"column:id;type:varchar(50);primaryKey"`
	AccountID string           `gorm:"column:account_id;type:varchar(50);index;not null"`
	Kind      enum.SyncRunKind `gorm:"column:kind;type:varchar(20);not null"`

	TotalItems     int `gorm:"column:total_items;not null;default:0"`
	ProcessedItems int `gorm:"column:processed_items;not null;default:0"`
	StoredItems    int `gorm:"column:stored_items;not null;default:0"`
	FailedItems    int `gorm:"column:failed_items;not null;default:0"`
	CurrentBatch   int `gorm:"column:current_batch;not null;default:0"`

	ItemErrors pq.StringArray `gorm:"column:item_errors;type:text[]"`

	Status      enum.SyncRunStatus `gorm:"column:status;type:varchar(20);index;default:in_progress"`
	StartedAt   time.Time          `gorm:"column:started_at;type:timestamp"`
	CompletedAt *time.Time         `gorm:"column:completed_at;type:timestamp"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (SyncRun) TableName() string {
	return "sync_runs"
}

func (r *SyncRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = utils.GenerateNanoIDWithPrefix("run", 21)
	}
	r.CreatedAt = utils.Now()
	return nil
}
