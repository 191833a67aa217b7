package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/config"
	"github.com/customeros/mailsync/internal/models"
)

type Repositories struct {
	EmailAccountRepository interfaces.EmailAccountRepository
	EmailMessageRepository interfaces.EmailMessageRepository
	SyncRunRepository      interfaces.SyncRunRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		EmailAccountRepository: NewEmailAccountRepository(db),
		EmailMessageRepository: NewEmailMessageRepository(db),
		SyncRunRepository:      NewSyncRunRepository(db),
	}
}

func MigrateDB(dbConfig *config.DatabaseConfig, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	// migrations run with a small pool, the server pool is restored after
	sqlDB.SetMaxOpenConns(5)

	err = db.AutoMigrate(
		&models.EmailAccount{},
		&models.EmailMessage{},
		&models.SyncRun{},
	)

	sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConn)
	sqlDB.SetMaxOpenConns(dbConfig.MaxConn)
	sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Minute)

	return err
}
