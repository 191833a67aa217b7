package interfaces

import (
	"context"
	"time"

	"github.com/customeros/mailsync/internal/models"
)

// EmailProvider is the remote messaging API consumed through the quota
// scheduler. Implementations translate provider payloads into canonical
// EmailMessage records.
type EmailProvider interface {
	// ListMessageIDs returns up to max external message ids, newest first,
	// optionally scoped to messages received after since. Single page only;
	// a later incremental run catches up on anything beyond the cap.
	ListMessageIDs(ctx context.Context, accessToken string, since *time.Time, max int64) ([]string, error)
	// GetMessage fetches and parses one message by its external id
	GetMessage(ctx context.Context, accessToken string, externalID string) (*models.EmailMessage, error)
}
