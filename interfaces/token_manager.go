package interfaces

import (
	"context"

	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/models"
)

// UnhealthyAccount annotates one account that failed the token health check
type UnhealthyAccount struct {
	AccountID     string               `json:"accountId"`
	RemoteAddress string               `json:"remoteAddress"`
	Provider      enum.AccountProvider `json:"provider"`
	LastError     string               `json:"lastError"`
}

type TokenManager interface {
	// GetValidToken returns an access token ready for use, refreshing first
	// when the stored expiry falls inside the safety margin
	GetValidToken(ctx context.Context, accountID string) (string, error)
	// Refresh exchanges the stored refresh token for a new access token and
	// persists the rotated credential
	Refresh(ctx context.Context, accountID string) (*models.Credential, error)
	// StoreTokens persists a freshly authorized credential and marks the
	// account healthy
	StoreTokens(ctx context.Context, accountID string, credential models.Credential) error
	// Revoke best-effort revokes the credential remotely, then deletes the
	// local account record regardless of the revocation outcome
	Revoke(ctx context.Context, accountID string) error
	CheckAccountsHealth(ctx context.Context, userID string) ([]UnhealthyAccount, error)
}
