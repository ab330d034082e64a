package healthcheck

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/maplane/tile-gateway/app/infrastructure/cache"
)

func TestCheckStore(t *testing.T) {
	service := NewService(cache.NewMemoryCacheService())
	assert.False(t, service.Status().Redis)

	service.CheckStore(context.Background())
	status := service.Status()
	assert.True(t, status.Redis)
	assert.False(t, status.CheckedAt.IsZero())
}
