package services

import (
	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/services/events"
	"github.com/customeros/mailsync/services/google"
	"github.com/customeros/mailsync/services/progress"
	"github.com/customeros/mailsync/services/quota"
	"github.com/customeros/mailsync/services/sync"
	"github.com/customeros/mailsync/services/tokens"
)

type Services struct {
	QuotaRegistry   *quota.Registry
	TokenManager    interfaces.TokenManager
	EmailProvider   interfaces.EmailProvider
	ProgressTracker interfaces.ProgressTracker
	EventPublisher  interfaces.EventPublisher
	SyncService     interfaces.SyncService
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	var publisher interfaces.EventPublisher
	if cfg.AppConfig.RabbitMQURL != "" {
		publisherConfig := &events.PublisherConfig{
			MessageTTL:          events.DefaultMessageTTL,
			MaxRetries:          events.DefaultMaxRetries,
			PublishTimeout:      events.DefaultPublishTimeout,
			ReconnectBackoff:    events.DefaultReconnectBackoff,
			MaxReconnectBackoff: events.DefaultMaxReconnectBackoff,
		}
		rabbitPublisher, err := events.NewRabbitMQPublisher(cfg.AppConfig.RabbitMQURL, log, publisherConfig)
		if err != nil {
			return nil, err
		}
		publisher = rabbitPublisher
	} else {
		publisher = events.NewNoopPublisher(log)
	}

	quotaRegistry := quota.NewRegistry(cfg.Quota, log)
	tokenManager := tokens.NewTokenService(cfg.GoogleOAuth, repos.EmailAccountRepository, cfg.AppConfig.EncryptionKey, log)
	emailProvider := google.NewGmailProvider(log)
	progressTracker := progress.NewProgressTracker(repos.SyncRunRepository, log)

	syncService := sync.NewSyncService(
		cfg.Sync,
		cfg.Quota,
		repos.EmailAccountRepository,
		repos.EmailMessageRepository,
		emailProvider,
		tokenManager,
		progressTracker,
		publisher,
		quotaRegistry,
		log,
	)

	services := Services{
		QuotaRegistry:   quotaRegistry,
		TokenManager:    tokenManager,
		EmailProvider:   emailProvider,
		ProgressTracker: progressTracker,
		EventPublisher:  publisher,
		SyncService:     syncService,
	}

	return &services, nil
}
