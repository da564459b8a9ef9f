// Package dataaccess wraps an entity backend with the query cache: reads are
// served from the cache when possible, and every successful mutation drops
// the queries it made stale.
package dataaccess

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"appshell/internal/querycache"
	"appshell/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultTTL = 5 * time.Minute

// Cache event names reported to the Observer.
const (
	EventHit             = "hit"
	EventMiss            = "miss"
	EventInvalidate      = "invalidate"
	EventInvalidateError = "invalidate_error"
)

// Backend is the remote side of one entity. Each method is a single remote
// call scoped to the owning user.
type Backend[T, C, U any] interface {
	List(ctx context.Context, owner uuid.UUID, params store.ListParams) ([]T, error)
	Get(ctx context.Context, owner, id uuid.UUID) (T, error)
	Create(ctx context.Context, owner uuid.UUID, in C) (T, error)
	Update(ctx context.Context, owner, id uuid.UUID, in U) (T, error)
	Delete(ctx context.Context, owner, id uuid.UUID) error
}

// Observer receives cache events, e.g. for metrics.
type Observer interface {
	CacheEvent(resource, event string)
}

type nopObserver struct{}

func (nopObserver) CacheEvent(string, string) {}

type options struct {
	ttl      time.Duration
	logger   *zap.Logger
	observer Observer
}

type Option func(*options)

func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// Resource exposes the list/get queries and the create/update/delete
// mutations of one entity.
type Resource[T, C, U any] struct {
	name     string
	backend  Backend[T, C, U]
	cache    querycache.Cache
	ttl      time.Duration
	logger   *zap.Logger
	observer Observer

	owners sync.Map // uuid.UUID -> *ownerState
}

// ownerState counts invalidations of one owner. A read only stores its
// result when no invalidation of the owner happened while it ran; mu keeps
// that check and the cache write on one side of each invalidation.
type ownerState struct {
	mu  sync.RWMutex
	gen atomic.Uint64
}

func New[T, C, U any](name string, backend Backend[T, C, U], cache querycache.Cache, opts ...Option) *Resource[T, C, U] {
	o := options{ttl: DefaultTTL, logger: zap.NewNop(), observer: nopObserver{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Resource[T, C, U]{
		name:     name,
		backend:  backend,
		cache:    cache,
		ttl:      o.ttl,
		logger:   o.logger.With(zap.String("resource", name)),
		observer: o.observer,
	}
}

func (r *Resource[T, C, U]) Name() string { return r.name }

// ListKey is the prefix shared by every list query of owner.
func (r *Resource[T, C, U]) ListKey(owner uuid.UUID) querycache.Key {
	return querycache.Key{r.name, owner.String(), "list"}
}

func (r *Resource[T, C, U]) DetailKey(owner, id uuid.UUID) querycache.Key {
	return querycache.Key{r.name, owner.String(), "detail", id.String()}
}

func (r *Resource[T, C, U]) List(ctx context.Context, owner uuid.UUID, params store.ListParams) ([]T, error) {
	params = params.Normalized()
	key := r.ListKey(owner).Append(params.CacheKey())

	var cached []T
	if r.lookup(ctx, key, &cached) {
		return cached, nil
	}

	gen := r.owner(owner).gen.Load()
	items, err := r.backend.List(ctx, owner, params)
	if err != nil {
		return nil, err
	}
	r.store(ctx, owner, gen, key, items)
	return items, nil
}

func (r *Resource[T, C, U]) Get(ctx context.Context, owner, id uuid.UUID) (T, error) {
	key := r.DetailKey(owner, id)

	var cached T
	if r.lookup(ctx, key, &cached) {
		return cached, nil
	}

	gen := r.owner(owner).gen.Load()
	item, err := r.backend.Get(ctx, owner, id)
	if err != nil {
		var zero T
		return zero, err
	}
	r.store(ctx, owner, gen, key, item)
	return item, nil
}

func (r *Resource[T, C, U]) Create(ctx context.Context, owner uuid.UUID, in C) (T, error) {
	item, err := r.backend.Create(ctx, owner, in)
	if err != nil {
		return item, err
	}
	r.InvalidateLists(ctx, owner)
	return item, nil
}

func (r *Resource[T, C, U]) Update(ctx context.Context, owner, id uuid.UUID, in U) (T, error) {
	item, err := r.backend.Update(ctx, owner, id, in)
	if err != nil {
		return item, err
	}
	r.InvalidateLists(ctx, owner)
	r.invalidate(ctx, owner, r.DetailKey(owner, id))
	return item, nil
}

func (r *Resource[T, C, U]) Delete(ctx context.Context, owner, id uuid.UUID) error {
	if err := r.backend.Delete(ctx, owner, id); err != nil {
		return err
	}
	r.InvalidateLists(ctx, owner)
	r.invalidate(ctx, owner, r.DetailKey(owner, id))
	return nil
}

// InvalidateLists drops every cached list query of owner.
func (r *Resource[T, C, U]) InvalidateLists(ctx context.Context, owner uuid.UUID) {
	r.invalidatePrefix(ctx, owner, r.ListKey(owner))
}

// InvalidateOwner drops every cached query of owner, lists and details.
// Writers that bypass the Resource and may touch any row, such as bulk
// imports, call it after committing.
func (r *Resource[T, C, U]) InvalidateOwner(ctx context.Context, owner uuid.UUID) {
	r.invalidatePrefix(ctx, owner, querycache.Key{r.name, owner.String()})
}

func (r *Resource[T, C, U]) invalidatePrefix(ctx context.Context, owner uuid.UUID, prefix querycache.Key) {
	st := r.owner(owner)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.gen.Add(1)
	if err := r.cache.InvalidatePrefix(ctx, prefix); err != nil {
		r.observer.CacheEvent(r.name, EventInvalidateError)
		r.logger.Warn("invalidate queries", zap.String("prefix", prefix.String()), zap.Error(err))
		return
	}
	r.observer.CacheEvent(r.name, EventInvalidate)
}

func (r *Resource[T, C, U]) invalidate(ctx context.Context, owner uuid.UUID, key querycache.Key) {
	st := r.owner(owner)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.gen.Add(1)
	if err := r.cache.Invalidate(ctx, key); err != nil {
		r.observer.CacheEvent(r.name, EventInvalidateError)
		r.logger.Warn("invalidate query", zap.String("key", key.String()), zap.Error(err))
		return
	}
	r.observer.CacheEvent(r.name, EventInvalidate)
}

func (r *Resource[T, C, U]) owner(id uuid.UUID) *ownerState {
	if v, ok := r.owners.Load(id); ok {
		return v.(*ownerState)
	}
	v, _ := r.owners.LoadOrStore(id, &ownerState{})
	return v.(*ownerState)
}

// lookup reports a hit only when the cache answered cleanly; read errors
// count as misses.
func (r *Resource[T, C, U]) lookup(ctx context.Context, key querycache.Key, dst any) bool {
	ok, err := r.cache.Get(ctx, key, dst)
	if err != nil {
		r.logger.Warn("cache read failed", zap.String("key", key.String()), zap.Error(err))
		ok = false
	}
	if ok {
		r.observer.CacheEvent(r.name, EventHit)
		return true
	}
	r.observer.CacheEvent(r.name, EventMiss)
	return false
}

// store caches a read result fetched while the owner was at generation gen.
// A result that raced an invalidation in this process is dropped. Processes
// sharing a Redis cache do not see each other's generations, so a stale
// result stored by another process lives until the TTL expires.
func (r *Resource[T, C, U]) store(ctx context.Context, owner uuid.UUID, gen uint64, key querycache.Key, value any) {
	st := r.owner(owner)
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.gen.Load() != gen {
		r.logger.Debug("skip caching read that raced an invalidation", zap.String("key", key.String()))
		return
	}
	if err := r.cache.Set(ctx, key, value, r.ttl); err != nil {
		r.logger.Warn("cache write failed", zap.String("key", key.String()), zap.Error(err))
	}
}
