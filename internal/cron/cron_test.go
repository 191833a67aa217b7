package cron

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

type stubAccountRepo struct {
	interfaces.EmailAccountRepository
	accounts []*models.EmailAccount
}

func (r *stubAccountRepo) GetSyncable(ctx context.Context) ([]*models.EmailAccount, error) {
	return r.accounts, nil
}

type stubSyncService struct {
	mu     sync.Mutex
	synced []string
}

func (s *stubSyncService) SyncAccount(ctx context.Context, accountID string) (*interfaces.SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synced = append(s.synced, accountID)
	return &interfaces.SyncResult{AccountID: accountID, Success: true}, nil
}

func (s *stubSyncService) SyncUserAccounts(ctx context.Context, userID string) ([]*interfaces.SyncResult, error) {
	return nil, nil
}

func (s *stubSyncService) syncedAccounts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.synced...)
}

func TestNewCronManager(t *testing.T) {
	// Arrange & Act
	cm := NewCronManager(getLogger(), &stubAccountRepo{}, &stubSyncService{})

	// Assert
	assert.NotNil(t, cm)
	assert.NotNil(t, cm.stopCh)
	assert.NotNil(t, cm.jobIDs)
	assert.Nil(t, cm.cron)
}

func TestCronManager_StartRegistersJobs(t *testing.T) {
	// Arrange
	t.Setenv("CRON_SCHEDULE_HEARTBEAT", "0 0 1 1 1 *")
	t.Setenv("CRON_SCHEDULE_SYNC_ACCOUNTS", "0 0 1 1 1 *")
	cm := NewCronManager(getLogger(), &stubAccountRepo{}, &stubSyncService{})

	// Act
	cm.Start()
	defer cm.Stop()

	// Assert
	require.NotNil(t, cm.cron)
	assert.Len(t, cm.jobIDs, 2)
	assert.Contains(t, cm.jobIDs, "heartbeat")
	assert.Contains(t, cm.jobIDs, "sync_accounts")
	assert.Len(t, cm.cron.Entries(), 2)
}

func TestCronManager_EmptySchedulesDisableJobs(t *testing.T) {
	// Arrange
	t.Setenv("CRON_SCHEDULE_HEARTBEAT", "")
	t.Setenv("CRON_SCHEDULE_SYNC_ACCOUNTS", "")
	cm := NewCronManager(getLogger(), &stubAccountRepo{}, &stubSyncService{})

	// Act
	cm.Start()
	defer cm.Stop()

	// Assert
	assert.Empty(t, cm.jobIDs)
}

func TestCronManager_SyncAccountsJob(t *testing.T) {
	// Arrange
	repo := &stubAccountRepo{accounts: []*models.EmailAccount{
		{ID: "acct_1", Provider: enum.ProviderGmail},
		{ID: "acct_2", Provider: enum.ProviderGmail},
	}}
	syncService := &stubSyncService{}
	cm := NewCronManager(getLogger(), repo, syncService)

	// Act
	cm.syncAccounts()

	// Assert
	assert.Equal(t, []string{"acct_1", "acct_2"}, syncService.syncedAccounts())
}

func TestCronManager_StopWaitsForRunningJobs(t *testing.T) {
	// Arrange
	t.Setenv("CRON_SCHEDULE_HEARTBEAT", "0 0 1 1 1 *")
	t.Setenv("CRON_SCHEDULE_SYNC_ACCOUNTS", "")
	cm := NewCronManager(getLogger(), &stubAccountRepo{}, &stubSyncService{})
	cm.Start()

	// Act
	done := make(chan struct{})
	go func() {
		cm.Stop()
		close(done)
	}()

	// Assert
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
