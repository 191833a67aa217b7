package config

type DatabaseConfig struct {
	Host            string `env:"MAILSYNC_POSTGRES_HOST,required"`
	Port            string `env:"MAILSYNC_POSTGRES_PORT,required"`
	User            string `env:"MAILSYNC_POSTGRES_USER,required"`
	DBName          string `env:"MAILSYNC_POSTGRES_DB_NAME,required"`
	Password        string `env:"MAILSYNC_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"MAILSYNC_POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"MAILSYNC_POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"MAILSYNC_POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"MAILSYNC_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"MAILSYNC_POSTGRES_SSL_MODE" envDefault:"require"`
}

type GoogleOAuthConfig struct {
	ClientID     string `env:"GOOGLE_OAUTH_CLIENT_ID"`
	ClientSecret string `env:"GOOGLE_OAUTH_CLIENT_SECRET"`
	RevokeURL    string `env:"GOOGLE_OAUTH_REVOKE_URL" envDefault:"https://oauth2.googleapis.com/revoke"`
}

// QuotaConfig tunes the per-account request scheduler. Unit costs mirror the
// provider's published quota charges and are deliberately configurable.
type QuotaConfig struct {
	UnitsPerWindow int `env:"QUOTA_UNITS_PER_WINDOW" envDefault:"250"`
	WindowMillis   int `env:"QUOTA_WINDOW_MILLIS" envDefault:"1000"`
	MaxQueueSize   int `env:"QUOTA_MAX_QUEUE_SIZE" envDefault:"1000"`
	MaxRetries     int `env:"QUOTA_MAX_RETRIES" envDefault:"5"`
	ListCost       int `env:"QUOTA_LIST_COST" envDefault:"5"`
	GetCost        int `env:"QUOTA_GET_COST" envDefault:"5"`

	RetryBaseMillis int `env:"QUOTA_RETRY_BASE_MILLIS" envDefault:"1000"`
	RetryMaxMillis  int `env:"QUOTA_RETRY_MAX_MILLIS" envDefault:"60000"`
}

type SyncConfig struct {
	BatchSize          int `env:"SYNC_BATCH_SIZE" envDefault:"50"`
	MaxListedIDs       int `env:"SYNC_MAX_LISTED_IDS" envDefault:"500"`
	BatchPauseMillis   int `env:"SYNC_BATCH_PAUSE_MILLIS" envDefault:"100"`
	AccountConcurrency int `env:"SYNC_ACCOUNT_CONCURRENCY" envDefault:"3"`
}
