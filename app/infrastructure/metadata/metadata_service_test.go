package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maplane/tile-gateway/app/infrastructure/cache"
)

func TestUserFieldsDefaultToEmpty(t *testing.T) {
	service := NewService(cache.NewMemoryCacheService())
	ctx := context.Background()

	key, err := service.GetUserMapKey(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, key)

	id, err := service.GetUserID(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestGetTablePrivacy(t *testing.T) {
	kv := cache.NewMemoryCacheService()
	service := NewService(kv)
	ctx := context.Background()

	flag, err := service.GetTablePrivacy(ctx, "strk_db", "unknown")
	require.NoError(t, err)
	assert.Zero(t, flag)

	_, err = kv.HSet(ctx, "map_tbl|strk_db|secret", "privacy", "1")
	require.NoError(t, err)
	flag, err = service.GetTablePrivacy(ctx, "strk_db", "secret")
	require.NoError(t, err)
	assert.Equal(t, 1, flag)

	_, err = kv.HSet(ctx, "map_tbl|strk_db|broken", "privacy", "wat")
	require.NoError(t, err)
	_, err = service.GetTablePrivacy(ctx, "strk_db", "broken")
	assert.Error(t, err)
}

func TestIncMapviewCount(t *testing.T) {
	kv := cache.NewMemoryCacheService()
	service := NewService(kv)
	ctx := context.Background()

	require.NoError(t, service.IncMapviewCount(ctx, "strk", "wadus"))
	require.NoError(t, service.IncMapviewCount(ctx, "strk", ""))

	global, err := kv.Incr(ctx, "map_stat|strk|global")
	require.NoError(t, err)
	assert.Equal(t, int64(3), global)

	tagged, err := kv.Incr(ctx, "map_stat|strk|tag|wadus")
	require.NoError(t, err)
	assert.Equal(t, int64(2), tagged)
}

func TestGetUserDBConnectionParams(t *testing.T) {
	kv := cache.NewMemoryCacheService()
	service := NewService(kv)
	ctx := context.Background()

	for field, value := range map[string]string{
		"database_name": "strk_db",
		"database_host": "10.0.0.5",
	} {
		_, err := kv.HSet(ctx, "map_usr|strk", field, value)
		require.NoError(t, err)
	}

	params, err := service.GetUserDBConnectionParams(ctx, "strk")
	require.NoError(t, err)
	assert.Equal(t, "strk_db", params.DBName)
	assert.Equal(t, "10.0.0.5", params.DBHost)
	assert.Empty(t, params.DBUser)
	assert.Empty(t, params.DBPort)
}
