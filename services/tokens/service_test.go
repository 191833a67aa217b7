package tokens

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/customeros/mailsync/internal/config"
	"github.com/customeros/mailsync/internal/enum"
	apperrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/utils"
)

const testEncryptionKey = "test-encryption-key"

func testLogger() logger.Logger {
	l := logger.NewAppLogger(&logger.Config{LogLevel: "error"})
	l.InitLogger()
	return l
}

// inMemoryAccountRepository is a minimal stand-in for the postgres repository
type inMemoryAccountRepository struct {
	mu       sync.Mutex
	accounts map[string]*models.EmailAccount
}

func newInMemoryAccountRepository() *inMemoryAccountRepository {
	return &inMemoryAccountRepository{accounts: make(map[string]*models.EmailAccount)}
}

func (r *inMemoryAccountRepository) Create(ctx context.Context, account *models.EmailAccount) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account.ID == "" {
		account.ID = utils.GenerateNanoIDWithPrefix("acct", 21)
	}
	r.accounts[account.ID] = account
	return account.ID, nil
}

func (r *inMemoryAccountRepository) GetByID(ctx context.Context, id string) (*models.EmailAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	copied := *account
	return &copied, nil
}

func (r *inMemoryAccountRepository) GetByUserID(ctx context.Context, userID string) ([]*models.EmailAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.EmailAccount
	for _, account := range r.accounts {
		if account.UserID == userID {
			copied := *account
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *inMemoryAccountRepository) GetSyncable(ctx context.Context) ([]*models.EmailAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.EmailAccount
	for _, account := range r.accounts {
		if account.Health == enum.AccountHealthy {
			copied := *account
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *inMemoryAccountRepository) Update(ctx context.Context, account *models.EmailAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[account.ID] = account
	return nil
}

func (r *inMemoryAccountRepository) UpdateCredentialBlob(ctx context.Context, id string, blob string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account, ok := r.accounts[id]; ok {
		account.CredentialBlob = blob
	}
	return nil
}

func (r *inMemoryAccountRepository) UpdateHealth(ctx context.Context, id string, health enum.AccountHealth, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account, ok := r.accounts[id]; ok {
		account.Health = health
		account.ErrorMessage = errorMessage
	}
	return nil
}

func (r *inMemoryAccountRepository) UpdateSyncStatus(ctx context.Context, id string, status enum.SyncStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account, ok := r.accounts[id]; ok {
		account.SyncStatus = status
	}
	return nil
}

func (r *inMemoryAccountRepository) TryMarkSyncing(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok || account.SyncStatus == enum.SyncStatusSyncing {
		return false, nil
	}
	account.SyncStatus = enum.SyncStatusSyncing
	return true, nil
}

func (r *inMemoryAccountRepository) MarkSynced(ctx context.Context, id string, lastSync time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account, ok := r.accounts[id]; ok {
		account.SyncStatus = enum.SyncStatusIdle
		account.Health = enum.AccountHealthy
		account.LastSync = &lastSync
		account.ErrorMessage = ""
	}
	return nil
}

func (r *inMemoryAccountRepository) MarkSyncFailed(ctx context.Context, id string, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account, ok := r.accounts[id]; ok {
		account.SyncStatus = enum.SyncStatusError
		account.Health = enum.AccountHealthError
		account.ErrorMessage = errorMessage
	}
	return nil
}

func (r *inMemoryAccountRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts, id)
	return nil
}

func seedAccount(t *testing.T, repo *inMemoryAccountRepository, credential *models.Credential) *models.EmailAccount {
	t.Helper()
	account := &models.EmailAccount{
		ID:            "acct_test1",
		UserID:        "user_1",
		Provider:      enum.ProviderGmail,
		RemoteAddress: "someone@gmail.com",
		Health:        enum.AccountHealthy,
		SyncStatus:    enum.SyncStatusIdle,
	}
	if credential != nil {
		blob, err := EncodeCredential(credential, testEncryptionKey)
		require.NoError(t, err)
		account.CredentialBlob = blob
	}
	_, err := repo.Create(context.Background(), account)
	require.NoError(t, err)
	return account
}

func newTestService(repo *inMemoryAccountRepository, tokenURL, revokeURL string) *tokenService {
	cfg := &config.GoogleOAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RevokeURL:    revokeURL,
	}
	s := NewTokenService(cfg, repo, testEncryptionKey, testLogger()).(*tokenService)
	if tokenURL != "" {
		s.endpoint = oauth2.Endpoint{TokenURL: tokenURL}
	}
	return s
}

func TestGetValidToken_ReturnsStoredTokenBeforeMargin(t *testing.T) {
	repo := newInMemoryAccountRepository()
	expiry := utils.Now().Add(time.Hour)
	account := seedAccount(t, repo, &models.Credential{
		AccessToken:  "stored-token",
		RefreshToken: "refresh-token",
		Expiry:       &expiry,
	})

	var tokenCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
	}))
	defer srv.Close()

	s := newTestService(repo, srv.URL, "")
	token, err := s.GetValidToken(context.Background(), account.ID)

	require.NoError(t, err)
	require.Equal(t, "stored-token", token)
	require.Equal(t, int32(0), atomic.LoadInt32(&tokenCalls))
}

func TestGetValidToken_RefreshesInsideMargin(t *testing.T) {
	repo := newInMemoryAccountRepository()
	expiry := utils.Now().Add(time.Minute) // inside the 5 minute margin
	account := seedAccount(t, repo, &models.Credential{
		AccessToken:  "stale-token",
		RefreshToken: "refresh-token",
		Expiry:       &expiry,
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh-token","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	s := newTestService(repo, srv.URL, "")
	token, err := s.GetValidToken(context.Background(), account.ID)

	require.NoError(t, err)
	require.Equal(t, "fresh-token", token)

	// rotated credential is persisted, refresh token carried over
	stored, err := repo.GetByID(context.Background(), account.ID)
	require.NoError(t, err)
	credential, err := DecodeCredential(stored.CredentialBlob, testEncryptionKey)
	require.NoError(t, err)
	require.Equal(t, "fresh-token", credential.AccessToken)
	require.Equal(t, "refresh-token", credential.RefreshToken)
	require.NotNil(t, credential.Expiry)
}

func TestGetValidToken_ConcurrentCallersRefreshOnce(t *testing.T) {
	repo := newInMemoryAccountRepository()
	expiry := utils.Now().Add(-time.Minute)
	account := seedAccount(t, repo, &models.Credential{
		AccessToken:  "expired-token",
		RefreshToken: "refresh-token",
		Expiry:       &expiry,
	})

	var tokenCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		time.Sleep(20 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh-token","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	s := newTestService(repo, srv.URL, "")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := s.GetValidToken(context.Background(), account.ID)
			require.NoError(t, err)
			require.Equal(t, "fresh-token", token)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls))
}

func TestRefresh_InvalidGrantIsTerminal(t *testing.T) {
	repo := newInMemoryAccountRepository()
	expiry := utils.Now().Add(-time.Minute)
	account := seedAccount(t, repo, &models.Credential{
		AccessToken:  "expired-token",
		RefreshToken: "revoked-refresh-token",
		Expiry:       &expiry,
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been revoked."}`))
	}))
	defer srv.Close()

	s := newTestService(repo, srv.URL, "")
	_, err := s.Refresh(context.Background(), account.ID)

	require.ErrorIs(t, err, apperrors.ErrTokenRevoked)

	stored, getErr := repo.GetByID(context.Background(), account.ID)
	require.NoError(t, getErr)
	require.Equal(t, enum.AccountHealthError, stored.Health)
}

func TestRefresh_TransientFailureFlagsHealthButStaysRetryable(t *testing.T) {
	repo := newInMemoryAccountRepository()
	expiry := utils.Now().Add(-time.Minute)
	account := seedAccount(t, repo, &models.Credential{
		AccessToken:  "expired-token",
		RefreshToken: "refresh-token",
		Expiry:       &expiry,
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := newTestService(repo, srv.URL, "")
	_, err := s.Refresh(context.Background(), account.ID)

	require.Error(t, err)
	require.NotErrorIs(t, err, apperrors.ErrTokenRevoked)
	require.NotErrorIs(t, err, apperrors.ErrNoRefreshToken)

	// the failure reason lands on the account so health checks surface it
	stored, getErr := repo.GetByID(context.Background(), account.ID)
	require.NoError(t, getErr)
	require.Equal(t, enum.AccountHealthError, stored.Health)
	require.Contains(t, stored.ErrorMessage, "token refresh failed")

	// a later successful refresh clears the flag
	srvOK := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh-token","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srvOK.Close()
	s.endpoint = oauth2.Endpoint{TokenURL: srvOK.URL}

	token, err := s.GetValidToken(context.Background(), account.ID)
	require.NoError(t, err)
	require.Equal(t, "fresh-token", token)

	stored, getErr = repo.GetByID(context.Background(), account.ID)
	require.NoError(t, getErr)
	require.Equal(t, enum.AccountHealthy, stored.Health)
	require.Empty(t, stored.ErrorMessage)
}

func TestRefresh_NoRefreshToken(t *testing.T) {
	repo := newInMemoryAccountRepository()
	account := seedAccount(t, repo, &models.Credential{AccessToken: "only-access"})

	s := newTestService(repo, "", "")
	_, err := s.Refresh(context.Background(), account.ID)

	require.ErrorIs(t, err, apperrors.ErrNoRefreshToken)
}

func TestGetValidToken_AccountNotFound(t *testing.T) {
	s := newTestService(newInMemoryAccountRepository(), "", "")
	_, err := s.GetValidToken(context.Background(), "acct_missing")
	require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
}

func TestStoreTokens_RoundTrip(t *testing.T) {
	repo := newInMemoryAccountRepository()
	account := seedAccount(t, repo, nil)

	s := newTestService(repo, "", "")
	expiry := utils.Now().Add(time.Hour)
	err := s.StoreTokens(context.Background(), account.ID, models.Credential{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       &expiry,
	})
	require.NoError(t, err)

	stored, err := repo.GetByID(context.Background(), account.ID)
	require.NoError(t, err)
	require.NotEmpty(t, stored.CredentialBlob)
	require.NotContains(t, stored.CredentialBlob, "access")
	require.Equal(t, enum.AccountHealthy, stored.Health)

	credential, err := DecodeCredential(stored.CredentialBlob, testEncryptionKey)
	require.NoError(t, err)
	require.Equal(t, "access", credential.AccessToken)
	require.Equal(t, "refresh", credential.RefreshToken)
}

func TestRevoke_DeletesAccountEvenWhenRemoteRevocationFails(t *testing.T) {
	repo := newInMemoryAccountRepository()
	account := seedAccount(t, repo, &models.Credential{
		AccessToken:  "access",
		RefreshToken: "refresh",
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := newTestService(repo, "", srv.URL)
	err := s.Revoke(context.Background(), account.ID)
	require.NoError(t, err)

	stored, err := repo.GetByID(context.Background(), account.ID)
	require.NoError(t, err)
	require.Nil(t, stored)
}

func TestRevoke_CallsRevocationEndpoint(t *testing.T) {
	repo := newInMemoryAccountRepository()
	account := seedAccount(t, repo, &models.Credential{
		AccessToken:  "access",
		RefreshToken: "refresh",
	})

	var revokedToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		revokedToken = r.Form.Get("token")
	}))
	defer srv.Close()

	s := newTestService(repo, "", srv.URL)
	require.NoError(t, s.Revoke(context.Background(), account.ID))
	require.Equal(t, "refresh", revokedToken)
}

func TestCheckAccountsHealth(t *testing.T) {
	repo := newInMemoryAccountRepository()

	goodExpiry := utils.Now().Add(time.Hour)
	good := &models.EmailAccount{
		ID: "acct_good", UserID: "user_1",
		Provider: enum.ProviderGmail, RemoteAddress: "good@gmail.com",
		Health: enum.AccountHealthy,
	}
	blob, err := EncodeCredential(&models.Credential{
		AccessToken: "ok", RefreshToken: "r", Expiry: &goodExpiry,
	}, testEncryptionKey)
	require.NoError(t, err)
	good.CredentialBlob = blob
	_, err = repo.Create(context.Background(), good)
	require.NoError(t, err)

	bad := &models.EmailAccount{
		ID: "acct_bad", UserID: "user_1",
		Provider: enum.ProviderGmail, RemoteAddress: "bad@gmail.com",
		Health: enum.AccountHealthy,
	}
	_, err = repo.Create(context.Background(), bad)
	require.NoError(t, err)

	s := newTestService(repo, "", "")
	unhealthy, err := s.CheckAccountsHealth(context.Background(), "user_1")

	require.NoError(t, err)
	require.Len(t, unhealthy, 1)
	require.Equal(t, "acct_bad", unhealthy[0].AccountID)
	require.Equal(t, "bad@gmail.com", unhealthy[0].RemoteAddress)
	require.NotEmpty(t, unhealthy[0].LastError)
}
