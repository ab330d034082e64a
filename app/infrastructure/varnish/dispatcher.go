package varnish

import (
	"context"
	"time"

	"github.com/maplane/tile-gateway/app/domain/template"
	"github.com/maplane/tile-gateway/app/utils/logger"
)

// InvalidationDispatcher reacts to template store lifecycle events by
// purging the named-map cache entry in the front cache. Invalidation is
// best-effort and asynchronous relative to the mutating request: failures
// are logged, never retried and never propagated.
type InvalidationDispatcher struct {
	cache   *SurrogateKeysCache
	timeout time.Duration
}

func NewInvalidationDispatcher(cache *SurrogateKeysCache) *InvalidationDispatcher {
	return &InvalidationDispatcher{cache: cache, timeout: 10 * time.Second}
}

// Register subscribes the dispatcher to a template store. Only update and
// delete events trigger a purge; newly added templates have nothing cached
// yet.
func (d *InvalidationDispatcher) Register(store *template.Store) {
	store.Subscribe(func(ev template.Event) {
		if ev.Type != template.EventUpdate && ev.Type != template.EventDelete {
			return
		}
		go d.invalidate(ev.Owner, ev.Name)
	})
}

func (d *InvalidationDispatcher) invalidate(owner, templateName string) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	entry := NewNamedMapCacheEntry(owner, templateName)
	if err := d.cache.Invalidate(ctx, entry); err != nil {
		logger.GetLogger().Warnf("Cache: surrogate key invalidation failed for %s: %v", entry.Key(), err)
	}
}
