package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/customeros/mailsync/internal/utils"
)

// EmailMessage is one ingested message. The (account_id, external_id) pair is
// the provider identity; the composite unique index is what makes the upsert
// safe even under overlapping sync runs.
type EmailMessage struct {
	ID         string `gorm:"column:id;type:varchar(50);primaryKey"`
	AccountID  string `gorm:"column:account_id;type:varchar(50);not null;uniqueIndex:idx_account_external,priority:1"`
	ExternalID string `gorm:"column:external_id;type:varchar(255);not null;uniqueIndex:idx_account_external,priority:2"`
	ThreadID   string `gorm:"column:thread_id;type:varchar(255);index"`

	Subject      string         `gorm:"column:subject;type:varchar(1000)"`
	CleanSubject string         `gorm:"column:clean_subject;type:varchar(1000)"`
	FromAddress  string         `gorm:"column:from_address;type:varchar(255);index"`
	FromName     string         `gorm:"column:from_name;type:varchar(255)"`
	ToAddresses  pq.StringArray `gorm:"column:to_addresses;type:text[]"`
	CcAddresses  pq.StringArray `gorm:"column:cc_addresses;type:text[]"`

	BodyText string `gorm:"column:body_text;type:text"`
	BodyHTML string `gorm:"column:body_html;type:text"`
	Snippet  string `gorm:"column:snippet;type:varchar(500)"`

	IsRead        bool           `gorm:"column:is_read;default:false"`
	Labels        pq.StringArray `gorm:"column:labels;type:text[]"`
	HasAttachment bool           `gorm:"column:has_attachment;default:false"`
	Attachments   JSONMap        `gorm:"column:attachments;type:jsonb"`

	ReceivedAt  *time.Time `gorm:"column:received_at;type:timestamp;index"`
	RawMetadata JSONMap    `gorm:"column:raw_metadata;type:jsonb"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (EmailMessage) TableName() string {
	return "email_messages"
}

func (e *EmailMessage) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = utils.GenerateNanoIDWithPrefix("msg", 24)
	}
	e.CreatedAt = utils.Now()
	return nil
}

// AttachmentMeta is stored under Attachments["items"]; content itself is not
// persisted by this service.
type AttachmentMeta struct {
	ExternalID string `json:"externalId"`
	Filename   string `json:"filename"`
	MimeType   string `json:"mimeType"`
	Size       int64  `json:"size"`
}
