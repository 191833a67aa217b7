package enum

type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "idle"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusError   SyncStatus = "error"
)

func (t SyncStatus) String() string {
	return string(t)
}

type AccountHealth string

const (
	AccountHealthy     AccountHealth = "healthy"
	AccountHealthError AccountHealth = "error"
)

func (t AccountHealth) String() string {
	return string(t)
}

type SyncRunStatus string

const (
	SyncRunInProgress SyncRunStatus = "in_progress"
	SyncRunSuccess    SyncRunStatus = "success"
	SyncRunFailed     SyncRunStatus = "failed"
)

func (t SyncRunStatus) String() string {
	return string(t)
}

// Terminal reports whether the run can no longer transition
func (t SyncRunStatus) Terminal() bool {
	return t == SyncRunSuccess || t == SyncRunFailed
}

type SyncRunKind string

const (
	SyncRunInitial     SyncRunKind = "initial"
	SyncRunIncremental SyncRunKind = "incremental"
)

func (t SyncRunKind) String() string {
	return string(t)
}
