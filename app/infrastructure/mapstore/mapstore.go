package mapstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/maplane/tile-gateway/app/domain/template"
	"github.com/maplane/tile-gateway/app/infrastructure/cache"
)

// ErrNotFound is returned when no configuration exists for a token.
var ErrNotFound = errors.New("mapstore: token not found")

// DefaultConfigTTL is how long resolved configurations are retained when no
// TTL is configured.
const DefaultConfigTTL = 7200 * time.Second

// MapConfig is a resolved rendering configuration as stored under a token.
type MapConfig struct {
	obj map[string]any
}

// NewConfig wraps a freshly instantiated configuration document.
func NewConfig(obj map[string]any) *MapConfig {
	return &MapConfig{obj: obj}
}

// Obj exposes the raw configuration document.
func (c *MapConfig) Obj() map[string]any {
	return c.obj
}

// TemplateAuth returns the access policy of the template this configuration
// was instantiated from, when such metadata is present.
func (c *MapConfig) TemplateAuth() (*template.Auth, bool) {
	meta, ok := c.obj["template"].(map[string]any)
	if !ok {
		return nil, false
	}
	raw, err := json.Marshal(meta["auth"])
	if err != nil {
		return nil, false
	}
	var auth template.Auth
	if err := json.Unmarshal(raw, &auth); err != nil {
		return nil, false
	}
	return &auth, true
}

// LayerSQL collects the sql option of every layer, in order. Layers without
// a sql string contribute nothing.
func (c *MapConfig) LayerSQL() []string {
	layers, _ := c.obj["layers"].([]any)
	var sqls []string
	for _, l := range layers {
		layer, ok := l.(map[string]any)
		if !ok {
			continue
		}
		options, ok := layer["options"].(map[string]any)
		if !ok {
			continue
		}
		if sql, ok := options["sql"].(string); ok && sql != "" {
			sqls = append(sqls, sql)
		}
	}
	return sqls
}

// MapStore resolves instance tokens to their rendering configuration and
// saves newly created instances. Configurations live under "map_cfg|{token}".
type MapStore struct {
	kv  cache.CacheService
	ttl time.Duration
}

func New(kv cache.CacheService, ttl time.Duration) *MapStore {
	if ttl <= 0 {
		ttl = DefaultConfigTTL
	}
	return &MapStore{kv: kv, ttl: ttl}
}

func configKey(token string) string {
	return "map_cfg|" + token
}

// Load returns the configuration stored under a token.
func (m *MapStore) Load(ctx context.Context, token string) (*MapConfig, error) {
	raw, err := m.kv.Get(ctx, configKey(token))
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, token)
		}
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("failed to deserialize map config '%s': %w", token, err)
	}
	return &MapConfig{obj: obj}, nil
}

// Save stores a configuration and returns its token, a content hash of the
// serialized document. Saving the same configuration twice yields the same
// token and refreshes the entry.
func (m *MapStore) Save(ctx context.Context, obj map[string]any) (string, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("failed to serialize map config: %w", err)
	}
	sum := md5.Sum(raw)
	token := hex.EncodeToString(sum[:])
	if err := m.kv.Set(ctx, configKey(token), string(raw), m.ttl); err != nil {
		return "", err
	}
	return token, nil
}
