package healthcheck

import (
	"context"
	"sync"
	"time"

	"github.com/mileusna/crontab"
	"github.com/maplane/tile-gateway/app/infrastructure/cache"
	"github.com/maplane/tile-gateway/app/utils/logger"
	"github.com/maplane/tile-gateway/config/environment_variables"
)

// Status is the last observed health of the service's backing store.
type Status struct {
	Redis     bool      `json:"redis"`
	CheckedAt time.Time `json:"checked_at"`
}

type HealthcheckCrontabService struct {
	kv cache.CacheService

	mu     sync.RWMutex
	status Status
}

func NewService(kv cache.CacheService) *HealthcheckCrontabService {
	return &HealthcheckCrontabService{kv: kv}
}

func (hs *HealthcheckCrontabService) Start(ctx context.Context, ctab *crontab.Crontab) {
	hs.CheckStore(ctx)
	// Check every 2 minutes instead of every minute
	ctab.AddJob("*/2 * * * *", func() {
		hs.CheckStore(ctx)
		environment_variables.EnvironmentVariables.LoadFromEnv()
	})
}

func (hs *HealthcheckCrontabService) CheckStore(ctx context.Context) {
	err := hs.kv.HealthCheck(ctx)
	if err != nil {
		logger.GetLogger().Warnf("healthcheck: store ping failed: %v", err)
	}
	hs.mu.Lock()
	hs.status = Status{Redis: err == nil, CheckedAt: time.Now().UTC()}
	hs.mu.Unlock()
}

func (hs *HealthcheckCrontabService) Status() Status {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	return hs.status
}
