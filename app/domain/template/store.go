package template

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"

	"github.com/maplane/tile-gateway/app/infrastructure/cache"
	"github.com/maplane/tile-gateway/app/utils/logger"
)

// EventType identifies a template lifecycle event.
type EventType string

const (
	EventAdd    EventType = "add"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event describes a committed template mutation.
type Event struct {
	Type     EventType
	Owner    string
	Name     string
	Template *Template
}

// ListenerFunc receives template lifecycle events. Listeners run
// synchronously after the mutation succeeded; anything slow or fallible
// should hand off to its own goroutine.
type ListenerFunc func(Event)

// MutexFactory hands out distributed mutexes for per-template locking.
type MutexFactory interface {
	NewMutex(name string, options ...redsync.Option) *redsync.Mutex
}

// DefaultLockTTL matches the reference configuration default.
const DefaultLockTTL = 5 * time.Second

// StoreOptions configures a template store.
type StoreOptions struct {
	// MaxUserTemplates caps the number of templates one owner may keep.
	// Zero disables the quota. The check is best-effort, not transactional:
	// concurrent creations can transiently exceed the limit.
	MaxUserTemplates int

	// Locks enables per-template mutation locking when non-nil. The backing
	// store's per-command atomicity already guarantees the documented
	// semantics; locking is an optional strengthening.
	Locks   MutexFactory
	LockTTL time.Duration
}

// Store provides durable CRUD over per-owner template collections, backed
// by one hash per owner at key "map_tpl|{owner}". Mutations emit lifecycle
// events to subscribed listeners.
type Store struct {
	kv   cache.CacheService
	opts StoreOptions

	mu        sync.RWMutex
	listeners []ListenerFunc
}

func NewStore(kv cache.CacheService, opts StoreOptions) *Store {
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	return &Store{kv: kv, opts: opts}
}

func userTemplatesKey(owner string) string {
	return "map_tpl|" + owner
}

func templateLockKey(owner, name string) string {
	return "map_tpl|" + owner + "|locks|" + name
}

// Subscribe registers a listener for lifecycle events.
func (s *Store) Subscribe(fn ListenerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) notify(ev Event) {
	s.mu.RLock()
	listeners := make([]ListenerFunc, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

func (s *Store) lock(ctx context.Context, owner, name string) (func(), error) {
	if s.opts.Locks == nil {
		return func() {}, nil
	}
	mutex := s.opts.Locks.NewMutex(templateLockKey(owner, name), redsync.WithExpiry(s.opts.LockTTL))
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to lock template '%s' of user '%s': %w", name, owner, err)
	}
	return func() {
		if _, err := mutex.UnlockContext(ctx); err != nil {
			logger.GetLogger().Warnf("failed to unlock template '%s' of user '%s': %v", name, owner, err)
		}
	}, nil
}

// Add validates the template, applies defaults and installs it under the
// owner's namespace. It fails with a QuotaError when the owner is at the
// configured limit and with a ConflictError when the name already exists.
// On success an "add" event is emitted and the template name returned.
func (s *Store) Add(ctx context.Context, owner string, tpl *Template) (string, error) {
	tpl = tpl.WithDefaults()
	if err := tpl.Validate(); err != nil {
		return "", err
	}

	unlock, err := s.lock(ctx, owner, tpl.Name)
	if err != nil {
		return "", err
	}
	defer unlock()

	key := userTemplatesKey(owner)
	if limit := s.opts.MaxUserTemplates; limit > 0 {
		count, err := s.kv.HLen(ctx, key)
		if err != nil {
			return "", err
		}
		if count >= int64(limit) {
			return "", &QuotaError{fmt.Sprintf("User '%s' reached limit on number of templates (%d/%d)", owner, count, limit)}
		}
	}

	raw, err := json.Marshal(tpl)
	if err != nil {
		return "", fmt.Errorf("failed to serialize template: %w", err)
	}
	installed, err := s.kv.HSetNX(ctx, key, tpl.Name, string(raw))
	if err != nil {
		return "", err
	}
	if !installed {
		return "", &ConflictError{fmt.Sprintf("Template '%s' of user '%s' already exists", tpl.Name, owner)}
	}

	s.notify(Event{Type: EventAdd, Owner: owner, Name: tpl.Name, Template: tpl})
	return tpl.Name, nil
}

// Update validates and overwrites an existing template. The name is
// immutable across updates: a template whose name differs from id is
// rejected. The write is unconditional beyond the existence check
// (last-writer-wins). On success an "update" event is emitted.
func (s *Store) Update(ctx context.Context, owner, id string, tpl *Template) (*Template, error) {
	tpl = tpl.WithDefaults()
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	if id != tpl.Name {
		return nil, &ConflictError{fmt.Sprintf("Cannot update name of a map template ('%s' != '%s')", id, tpl.Name)}
	}

	unlock, err := s.lock(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	key := userTemplatesKey(owner)
	if _, err := s.kv.HGet(ctx, key, id); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, &ConflictError{fmt.Sprintf("Template '%s' of user '%s' does not exist", id, owner)}
		}
		return nil, err
	}

	raw, err := json.Marshal(tpl)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize template: %w", err)
	}
	created, err := s.kv.HSet(ctx, key, tpl.Name, string(raw))
	if err != nil {
		return nil, err
	}
	if created {
		// existence check raced a concurrent delete
		logger.GetLogger().Warn("New template created on update operation")
	}

	s.notify(Event{Type: EventUpdate, Owner: owner, Name: tpl.Name, Template: tpl})
	return tpl, nil
}

// Delete removes a template, failing with a ConflictError when it does not
// exist. On success a "delete" event is emitted.
func (s *Store) Delete(ctx context.Context, owner, id string) error {
	unlock, err := s.lock(ctx, owner, id)
	if err != nil {
		return err
	}
	defer unlock()

	removed, err := s.kv.HDel(ctx, userTemplatesKey(owner), id)
	if err != nil {
		return err
	}
	if removed == 0 {
		return &ConflictError{fmt.Sprintf("Template '%s' of user '%s' does not exist", id, owner)}
	}

	s.notify(Event{Type: EventDelete, Owner: owner, Name: id})
	return nil
}

// List returns the template names stored for an owner.
func (s *Store) List(ctx context.Context, owner string) ([]string, error) {
	return s.kv.HKeys(ctx, userTemplatesKey(owner))
}

// Get returns a stored template, or nil when no template with that id
// exists for the owner.
func (s *Store) Get(ctx context.Context, owner, id string) (*Template, error) {
	raw, err := s.kv.HGet(ctx, userTemplatesKey(owner), id)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	var tpl Template
	if err := json.Unmarshal([]byte(raw), &tpl); err != nil {
		return nil, fmt.Errorf("failed to deserialize template '%s' of user '%s': %w", id, owner, err)
	}
	return &tpl, nil
}

// IsAuthorized reports whether a caller presenting the given tokens may
// instantiate the template.
func (s *Store) IsAuthorized(tpl *Template, tokens ...string) bool {
	if tpl == nil {
		return false
	}
	return tpl.Auth.Authorizes(tokens...)
}
