package interfaces

import (
	"context"

	"github.com/customeros/mailsync/dto"
)

// EventPublisher is the downstream hook fired after a message is stored.
// Publish failures are logged by callers and never fail the sync.
type EventPublisher interface {
	PublishMessageStored(ctx context.Context, event dto.MessageStored) error
	Close() error
}
