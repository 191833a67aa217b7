package config

// Config holds the cron schedules, all in the six-field format with seconds.
// An empty schedule disables the job.
type Config struct {
	// CronScheduleHeartbeat logs a liveness line
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`

	// CronScheduleSyncAccounts runs an incremental sync over every syncable account
	CronScheduleSyncAccounts string `env:"CRON_SCHEDULE_SYNC_ACCOUNTS" envDefault:"0 */10 * * * *"`
}
