package cron

import (
	"context"
	"os"
	"sync"

	"github.com/caarlos0/env/v6"
	cronv3 "github.com/robfig/cron/v3"

	"github.com/customeros/mailsync/interfaces"
	cron_config "github.com/customeros/mailsync/internal/cron/config"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
)

// GroupSync serializes the account sync jobs so two ticks never overlap
const GroupSync = "mailsync"

var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupSync: new(sync.Mutex),
	},
}

type CronManager struct {
	log      logger.Logger
	cron     *cronv3.Cron
	stopCh   chan struct{}
	jobIDs   map[string]cronv3.EntryID
	accounts interfaces.EmailAccountRepository
	syncer   interfaces.SyncService
}

func NewCronManager(log logger.Logger, accounts interfaces.EmailAccountRepository, syncService interfaces.SyncService) *CronManager {
	return &CronManager{
		log:      log,
		stopCh:   make(chan struct{}),
		jobIDs:   make(map[string]cronv3.EntryID),
		accounts: accounts,
		syncer:   syncService,
	}
}

// Start boots the scheduler. Single-instance deployments need no leader
// election; overlap within the process is prevented by the job lock.
func (cm *CronManager) Start() {
	cm.log.Info("Starting cron manager")
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	}
	c := cronv3.New(cronOptions...)
	cm.registerJobs(c)
	c.Start()
	cm.cron = c
}

// Stop gracefully stops the cron manager
func (cm *CronManager) Stop() {
	if cm.cron != nil {
		cm.log.Info("Stopping cron manager")
		ctx := cm.cron.Stop()
		<-ctx.Done()
	}
	close(cm.stopCh)
}

func (cm *CronManager) registerJobs(c *cronv3.Cron) {
	var cronConfig cron_config.Config
	if err := env.Parse(&cronConfig); err != nil {
		cm.log.Fatalf("Failed to parse cron config from environment: %v", err)
	}

	if cronConfig.CronScheduleHeartbeat != "" {
		podName := os.Getenv("POD_NAME")
		if podName == "" {
			podName = "local"
		}
		id, err := c.AddFunc(cronConfig.CronScheduleHeartbeat, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.log.Infof("Cron heartbeat from pod: %s", podName)
		})
		if err != nil {
			cm.log.Fatalf("Could not add heartbeat cron job: %v", err)
		}
		cm.jobIDs["heartbeat"] = id
		cm.log.Infof("Registered heartbeat job with schedule: %s", cronConfig.CronScheduleHeartbeat)
	}

	if cronConfig.CronScheduleSyncAccounts != "" {
		id, err := c.AddFunc(cronConfig.CronScheduleSyncAccounts, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			jobLocks.locks[GroupSync].Lock()
			defer jobLocks.locks[GroupSync].Unlock()
			cm.syncAccounts()
		})
		if err != nil {
			cm.log.Fatalf("Could not add account sync cron job: %v", err)
		}
		cm.jobIDs["sync_accounts"] = id
		cm.log.Infof("Registered account sync job with schedule: %s", cronConfig.CronScheduleSyncAccounts)
	}
}

// syncAccounts kicks an incremental sync for every healthy idle account. An
// account already syncing is skipped by the per-account guard, not an error
// worth logging loudly.
func (cm *CronManager) syncAccounts() {
	ctx := context.Background()

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.syncAccounts")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	accounts, err := cm.accounts.GetSyncable(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to list syncable accounts: %v", err)
		return
	}
	span.SetTag("accounts.count", len(accounts))

	for _, account := range accounts {
		result, err := cm.syncer.SyncAccount(ctx, account.ID)
		if err != nil {
			cm.log.Warnf("Scheduled sync for account %s failed: %v", account.ID, err)
			continue
		}
		cm.log.Infof("Scheduled sync for account %s: stored %d, failed %d", account.ID, result.Stored, result.Failed)
	}
}
