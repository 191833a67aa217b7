package config

type AppConfig struct {
	APIPort       string `env:"PORT" envDefault:"12333"`
	APIKey        string `env:"API_KEY,required"`
	EncryptionKey string `env:"CREDENTIAL_ENCRYPTION_KEY,required"`
	RabbitMQURL   string `env:"RABBITMQ_URL"`
}
