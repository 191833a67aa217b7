package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	internalconfig "github.com/customeros/mailsync/internal/config"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
)

type Config struct {
	AppConfig      *AppConfig
	Logger         *logger.Config
	Tracing        *tracing.JaegerConfig
	DatabaseConfig *internalconfig.DatabaseConfig
	GoogleOAuth    *internalconfig.GoogleOAuthConfig
	Quota          *internalconfig.QuotaConfig
	Sync           *internalconfig.SyncConfig
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:      &AppConfig{},
		Logger:         &logger.Config{},
		Tracing:        &tracing.JaegerConfig{},
		DatabaseConfig: &internalconfig.DatabaseConfig{},
		GoogleOAuth:    &internalconfig.GoogleOAuthConfig{},
		Quota:          &internalconfig.QuotaConfig{},
		Sync:           &internalconfig.SyncConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		log.Fatalf("Error loading mailsync config: %v", err)
	}

	return config, nil
}
