package events

import (
	"context"

	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/logger"
)

// noopPublisher is used when no broker is configured; events are logged and
// dropped so a broker outage never blocks ingestion in local setups.
type noopPublisher struct {
	log logger.Logger
}

func NewNoopPublisher(log logger.Logger) interfaces.EventPublisher {
	return &noopPublisher{log: log}
}

func (p *noopPublisher) PublishMessageStored(ctx context.Context, event dto.MessageStored) error {
	p.log.Debugf("event publishing disabled, dropping message stored event for %s", event.ExternalID)
	return nil
}

func (p *noopPublisher) Close() error {
	return nil
}
