package mapstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maplane/tile-gateway/app/infrastructure/cache"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New(cache.NewMemoryCacheService(), time.Hour)

	obj := map[string]any{
		"version": "1.0.1",
		"layers": []any{
			map[string]any{"options": map[string]any{"sql": "select 1"}},
		},
	}
	token, err := store.Save(ctx, obj)
	require.NoError(t, err)
	assert.Len(t, token, 32)

	// identical content yields the same token
	again, err := store.Save(ctx, obj)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	config, err := store.Load(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", config.Obj()["version"])
}

func TestLoadMissingToken(t *testing.T) {
	store := New(cache.NewMemoryCacheService(), time.Hour)
	_, err := store.Load(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTemplateAuth(t *testing.T) {
	config := NewConfig(map[string]any{
		"template": map[string]any{
			"name": "gated",
			"auth": map[string]any{"method": "token", "valid_tokens": []any{"s3cret"}},
		},
	})
	auth, ok := config.TemplateAuth()
	require.True(t, ok)
	assert.True(t, auth.Authorizes("s3cret"))
	assert.False(t, auth.Authorizes("wrong"))

	plain := NewConfig(map[string]any{"layers": []any{}})
	_, ok = plain.TemplateAuth()
	assert.False(t, ok)
}

func TestLayerSQL(t *testing.T) {
	config := NewConfig(map[string]any{
		"layers": []any{
			map[string]any{"options": map[string]any{"sql": "select 1"}},
			map[string]any{"options": map[string]any{"cartocss": "#t {}"}},
			map[string]any{"options": map[string]any{"sql": "select 2"}},
		},
	})
	assert.Equal(t, []string{"select 1", "select 2"}, config.LayerSQL())
}
