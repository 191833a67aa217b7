package dto

import "time"

// MessageStored is published after a message is upserted into local storage.
// Downstream consumers (scoring, notifications) subscribe to this event.
type MessageStored struct {
	MessageID   string     `json:"messageId"`
	AccountID   string     `json:"accountId"`
	UserID      string     `json:"userId"`
	ExternalID  string     `json:"externalId"`
	SyncRunID   string     `json:"syncRunId"`
	FromAddress string     `json:"fromAddress"`
	Subject     string     `json:"subject"`
	Inserted    bool       `json:"inserted"`
	ReceivedAt  *time.Time `json:"receivedAt,omitempty"`
	StoredAt    time.Time  `json:"storedAt"`
}
