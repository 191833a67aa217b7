package models

import "time"

// Credential holds decrypted OAuth material for one account. It only ever
// lives in memory; the persisted form is EmailAccount.CredentialBlob.
type Credential struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	Expiry       *time.Time `json:"expiry,omitempty"`
}

// NeedsRefresh reports whether the access token expires within the safety
// margin. An unknown expiry is treated as still valid; the provider rejects
// it at call time and the next refresh cycle recovers.
func (c *Credential) NeedsRefresh(now time.Time, margin time.Duration) bool {
	if c.Expiry == nil {
		return false
	}
	return c.Expiry.Before(now.Add(margin))
}
