package quota

import (
	"sync"

	"github.com/customeros/mailsync/internal/config"
	"github.com/customeros/mailsync/internal/logger"
)

// Registry hands out one scheduler per account, created on first use. All
// calls for an account funnel through the same scheduler so its budget is
// enforced globally within the process.
type Registry struct {
	cfg *config.QuotaConfig
	log logger.Logger

	mu         sync.Mutex
	schedulers map[string]*Scheduler
}

func NewRegistry(cfg *config.QuotaConfig, log logger.Logger) *Registry {
	return &Registry{
		cfg:        cfg,
		log:        log,
		schedulers: make(map[string]*Scheduler),
	}
}

func (r *Registry) ForAccount(accountID string) *Scheduler {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.schedulers[accountID]; ok {
		return s
	}
	s := NewScheduler(accountID, r.cfg, r.log)
	r.schedulers[accountID] = s
	return s
}

// Remove stops the account's scheduler and forgets it. Called when an account
// is disconnected.
func (r *Registry) Remove(accountID string) {
	r.mu.Lock()
	s, ok := r.schedulers[accountID]
	delete(r.schedulers, accountID)
	r.mu.Unlock()
	if ok {
		s.Stop()
	}
}

func (r *Registry) Stats() []SchedulerStats {
	r.mu.Lock()
	schedulers := make([]*Scheduler, 0, len(r.schedulers))
	for _, s := range r.schedulers {
		schedulers = append(schedulers, s)
	}
	r.mu.Unlock()

	stats := make([]SchedulerStats, 0, len(schedulers))
	for _, s := range schedulers {
		stats = append(stats, s.Stats())
	}
	return stats
}

func (r *Registry) StopAll() {
	r.mu.Lock()
	schedulers := make([]*Scheduler, 0, len(r.schedulers))
	for _, s := range r.schedulers {
		schedulers = append(schedulers, s)
	}
	r.schedulers = make(map[string]*Scheduler)
	r.mu.Unlock()

	for _, s := range schedulers {
		s.Stop()
	}
}
