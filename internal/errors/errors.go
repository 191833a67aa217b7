package errors

import "github.com/pkg/errors"

var (
	// scheduler errors
	ErrQuotaExceeded    = errors.New("provider quota exceeded")
	ErrQueueFull        = errors.New("scheduler queue full")
	ErrQueueCancelled   = errors.New("scheduler queue cancelled")
	ErrSchedulerStopped = errors.New("scheduler stopped")

	// token errors
	ErrTokenExpired   = errors.New("access token expired")
	ErrTokenRevoked   = errors.New("token revoked, account requires re-authorization")
	ErrNoRefreshToken = errors.New("no refresh token stored, account requires re-authorization")

	// account errors
	ErrAccountNotFound     = errors.New("email account not found")
	ErrSyncInProgress      = errors.New("sync already in progress for account")
	ErrUnsupportedProvider = errors.New("unsupported account provider")

	// run errors
	ErrSyncRunNotFound = errors.New("sync run not found")
	ErrSyncRunTerminal = errors.New("sync run already terminal")
)
