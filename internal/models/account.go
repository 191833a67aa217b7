package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/utils"
)

// EmailAccount represents one connected remote mailbox
type EmailAccount struct {
	ID            string               `gorm:"column:id;type:varchar(50);primaryKey"`
	UserID        string               `gorm:"column:user_id;type:varchar(50);index;not null"`
	Provider      enum.AccountProvider `gorm:"column:provider;type:varchar(50);index;not null"`
	RemoteAddress string               `gorm:"column:remote_address;type:varchar(255);not null"`

	// Credential material, AES-GCM encrypted JSON blob. Never stored in clear.
	CredentialBlob string `gorm:"column:credential_blob;type:text"`

	SyncStatus enum.SyncStatus    `gorm:"column:sync_status;type:varchar(20);index;default:idle"`
	Health     enum.AccountHealth `gorm:"column:health;type:varchar(20);index;default:healthy"`

	// LastSync is the completion time of the last successful sync run.
	// SyncWindowStart bounds how far back the first sync reaches.
	LastSync        *time.Time `gorm:"column:last_sync;type:timestamp"`
	SyncWindowStart *time.Time `gorm:"column:sync_window_start;type:timestamp"`

	ErrorMessage string `gorm:"column:error_message;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (EmailAccount) TableName() string {
	return "email_accounts"
}

func (a *EmailAccount) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("acct", 21)
	}
	a.CreatedAt = utils.Now()
	return nil
}

// SinceForSync returns the lower time bound for the next sync run, or nil
// for an unscoped initial pull
func (a *EmailAccount) SinceForSync() *time.Time {
	if a.LastSync != nil {
		return a.LastSync
	}
	return a.SyncWindowStart
}
