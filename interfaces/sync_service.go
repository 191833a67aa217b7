package interfaces

import "context"

// SyncResult summarizes one sync run for the caller
type SyncResult struct {
	AccountID string   `json:"accountId"`
	SyncRunID string   `json:"syncRunId"`
	Success   bool     `json:"success"`
	Fetched   int      `json:"fetched"`
	Stored    int      `json:"stored"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

type SyncService interface {
	SyncAccount(ctx context.Context, accountID string) (*SyncResult, error)
	// SyncUserAccounts fans out over the user's accounts with a bounded
	// concurrency cap; one account's failure never affects the others
	SyncUserAccounts(ctx context.Context, userID string) ([]*SyncResult, error)
}
