package tokens

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/config"
	"github.com/customeros/mailsync/internal/crypto"
	"github.com/customeros/mailsync/internal/enum"
	apperrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

// refreshMargin is how long before the stored expiry a token is already
// treated as expired, so a sync never starts with a token about to die
// mid-run.
const refreshMargin = 5 * time.Minute

type tokenService struct {
	cfg           *config.GoogleOAuthConfig
	log           logger.Logger
	accounts      interfaces.EmailAccountRepository
	encryptionKey string

	endpoint   oauth2.Endpoint
	httpClient *http.Client

	// one lock per account so concurrent callers trigger a single refresh
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewTokenService(cfg *config.GoogleOAuthConfig, accounts interfaces.EmailAccountRepository, encryptionKey string, log logger.Logger) interfaces.TokenManager {
	return &tokenService{
		cfg:           cfg,
		log:           log,
		accounts:      accounts,
		encryptionKey: encryptionKey,
		endpoint:      google.Endpoint,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		locks:         make(map[string]*sync.Mutex),
	}
}

func (s *tokenService) accountLock(accountID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[accountID] = l
	}
	return l
}

func (s *tokenService) GetValidToken(ctx context.Context, accountID string) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "tokenService.GetValidToken")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagAccountId(span, accountID)

	account, credential, err := s.loadCredential(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	if !credential.NeedsRefresh(utils.Now(), refreshMargin) {
		return credential.AccessToken, nil
	}

	lock := s.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	// re-read under the lock; a concurrent caller may have refreshed already
	_, credential, err = s.loadCredential(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	if !credential.NeedsRefresh(utils.Now(), refreshMargin) {
		return credential.AccessToken, nil
	}

	refreshed, err := s.refreshLocked(ctx, account.ID, credential)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	return refreshed.AccessToken, nil
}

func (s *tokenService) Refresh(ctx context.Context, accountID string) (*models.Credential, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "tokenService.Refresh")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagAccountId(span, accountID)

	_, credential, err := s.loadCredential(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	lock := s.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	refreshed, err := s.refreshLocked(ctx, accountID, credential)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return refreshed, nil
}

// refreshLocked exchanges the refresh token and persists the rotated
// credential. Caller must hold the account lock.
func (s *tokenService) refreshLocked(ctx context.Context, accountID string, credential *models.Credential) (*models.Credential, error) {
	if credential.RefreshToken == "" {
		_ = s.accounts.UpdateHealth(ctx, accountID, enum.AccountHealthError, apperrors.ErrNoRefreshToken.Error())
		return nil, apperrors.ErrNoRefreshToken
	}

	conf := &oauth2.Config{
		ClientID:     s.cfg.ClientID,
		ClientSecret: s.cfg.ClientSecret,
		Endpoint:     s.endpoint,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)

	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: credential.RefreshToken}).Token()
	if err != nil {
		if isInvalidGrant(err) {
			_ = s.accounts.UpdateHealth(ctx, accountID, enum.AccountHealthError, apperrors.ErrTokenRevoked.Error())
			return nil, apperrors.ErrTokenRevoked
		}
		// transient failure stays retryable for the caller, but the account is
		// flagged unhealthy with the reason until a refresh goes through
		err = errors.Wrap(err, "token refresh failed")
		_ = s.accounts.UpdateHealth(ctx, accountID, enum.AccountHealthError, err.Error())
		return nil, err
	}

	refreshed := &models.Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: credential.RefreshToken,
	}
	// the provider only rotates the refresh token occasionally
	if token.RefreshToken != "" {
		refreshed.RefreshToken = token.RefreshToken
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		refreshed.Expiry = &expiry
	}

	if err := s.persistCredential(ctx, accountID, refreshed); err != nil {
		return nil, err
	}
	s.log.Infof("refreshed access token for account %s", accountID)
	return refreshed, nil
}

func (s *tokenService) StoreTokens(ctx context.Context, accountID string, credential models.Credential) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "tokenService.StoreTokens")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagAccountId(span, accountID)

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if account == nil {
		return apperrors.ErrAccountNotFound
	}

	if err := s.persistCredential(ctx, accountID, &credential); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// Revoke tells the provider to invalidate the credential, then deletes the
// account record. Remote revocation is best effort; the local delete always
// happens.
func (s *tokenService) Revoke(ctx context.Context, accountID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "tokenService.Revoke")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagAccountId(span, accountID)

	account, credential, err := s.loadCredential(ctx, accountID)
	if err != nil &&
		!errors.Is(err, crypto.ErrInvalidCiphertext) &&
		!errors.Is(err, apperrors.ErrNoRefreshToken) {
		tracing.TraceErr(span, err)
		return err
	}

	if credential != nil {
		token := credential.RefreshToken
		if token == "" {
			token = credential.AccessToken
		}
		if token != "" {
			if err := s.revokeRemote(ctx, token); err != nil {
				s.log.Warnf("remote token revocation failed for account %s: %v", accountID, err)
			}
		}
	}

	if err := s.accounts.Delete(ctx, account.ID); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (s *tokenService) revokeRemote(ctx context.Context, token string) error {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errors.Errorf("revocation endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (s *tokenService) CheckAccountsHealth(ctx context.Context, userID string) ([]interfaces.UnhealthyAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "tokenService.CheckAccountsHealth")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagUserId(span, userID)

	accounts, err := s.accounts.GetByUserID(ctx, userID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	unhealthy := make([]interfaces.UnhealthyAccount, 0)
	for _, account := range accounts {
		if _, err := s.GetValidToken(ctx, account.ID); err != nil {
			unhealthy = append(unhealthy, interfaces.UnhealthyAccount{
				AccountID:     account.ID,
				RemoteAddress: account.RemoteAddress,
				Provider:      account.Provider,
				LastError:     err.Error(),
			})
		}
	}
	span.SetTag("unhealthy.count", len(unhealthy))
	return unhealthy, nil
}

func (s *tokenService) loadCredential(ctx context.Context, accountID string) (*models.EmailAccount, *models.Credential, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	if account == nil {
		return nil, nil, apperrors.ErrAccountNotFound
	}
	if account.CredentialBlob == "" {
		return account, nil, apperrors.ErrNoRefreshToken
	}

	credential, err := DecodeCredential(account.CredentialBlob, s.encryptionKey)
	if err != nil {
		return account, nil, err
	}
	return account, credential, nil
}

func (s *tokenService) persistCredential(ctx context.Context, accountID string, credential *models.Credential) error {
	blob, err := EncodeCredential(credential, s.encryptionKey)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdateCredentialBlob(ctx, accountID, blob); err != nil {
		return err
	}
	return s.accounts.UpdateHealth(ctx, accountID, enum.AccountHealthy, "")
}

// EncodeCredential serializes and encrypts a credential for storage
func EncodeCredential(credential *models.Credential, key string) (string, error) {
	raw, err := json.Marshal(credential)
	if err != nil {
		return "", err
	}
	return crypto.EncryptString(string(raw), key)
}

// DecodeCredential reverses EncodeCredential
func DecodeCredential(blob, key string) (*models.Credential, error) {
	raw, err := crypto.DecryptString(blob, key)
	if err != nil {
		return nil, err
	}
	var credential models.Credential
	if err := json.Unmarshal([]byte(raw), &credential); err != nil {
		return nil, err
	}
	return &credential, nil
}

// isInvalidGrant detects the provider's terminal refresh failure: the user
// revoked access or the refresh token aged out
func isInvalidGrant(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode == "invalid_grant" {
			return true
		}
		return strings.Contains(string(retrieveErr.Body), "invalid_grant")
	}
	return false
}
