package products

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// KeyAllProducts is the only key the catalog is cached under.
	KeyAllProducts = "products_all"

	DefaultTTL = 5 * time.Minute
)

// ProductAPI is the remote product collection. *CatalogClient implements it.
type ProductAPI interface {
	ListProducts(ctx context.Context) ([]Product, error)
	CreateProduct(ctx context.Context, in NewProduct) (Product, error)
	UpdateProduct(ctx context.Context, id int64, patch ProductPatch) (Product, error)
	DeleteProduct(ctx context.Context, id int64) error
}

type ServiceConfig struct {
	TTL time.Duration

	// StaleWhileRevalidate serves an expired entry immediately and refreshes it
	// in the background. When false an expired entry is refreshed before returning.
	StaleWhileRevalidate bool

	Log     *zap.Logger
	Metrics *Metrics
	Now     func() time.Time
}

type entry struct {
	products    []Product
	refreshedAt time.Time
}

// Service caches the product list in memory and keeps it patched on mutations.
type Service struct {
	api     ProductAPI
	ttl     time.Duration
	swr     bool
	log     *zap.Logger
	metrics *Metrics
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
	// gen changes on every mutation and invalidation; a fetch that started
	// under an older gen must not overwrite the entry.
	gen uint64

	flights singleflight.Group
	bg      sync.WaitGroup
}

func NewService(api ProductAPI, cfg ServiceConfig) *Service {
	s := &Service{
		api:     api,
		ttl:     cfg.TTL,
		swr:     cfg.StaleWhileRevalidate,
		log:     cfg.Log,
		metrics: cfg.Metrics,
		now:     cfg.Now,
		entries: make(map[string]entry),
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// GetProducts returns the cached product list, fetching it when forceRefresh is
// set, when nothing is cached, or when the entry is older than the TTL.
// Concurrent fetches for the same key share one request.
func (s *Service) GetProducts(ctx context.Context, forceRefresh bool) ([]Product, error) {
	key := KeyAllProducts
	if forceRefresh {
		return s.fetch(ctx, key)
	}

	e, ok := s.lookup(key)
	switch {
	case !ok:
		s.metrics.event(eventMiss)
		return s.fetch(ctx, key)
	case s.fresh(e):
		s.metrics.event(eventHit)
		s.log.Debug("product cache hit", zap.String("key", key), zap.Int("count", len(e.products)))
		return cloneAll(e.products), nil
	case s.swr:
		s.metrics.event(eventStale)
		s.revalidate(key)
		return cloneAll(e.products), nil
	default:
		s.metrics.event(eventStale)
		return s.fetch(ctx, key)
	}
}

func (s *Service) CreateProduct(ctx context.Context, in NewProduct) (Product, error) {
	p, err := s.api.CreateProduct(ctx, in)
	s.metrics.upstream("create", err)
	if err != nil {
		s.mutationFailed("create", err)
		return Product{}, err
	}

	created := p.Clone()
	s.patch(KeyAllProducts, func(list []Product) []Product {
		out := make([]Product, 0, len(list)+1)
		out = append(out, list...)
		return append(out, created)
	})
	return p, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, patch ProductPatch) (Product, error) {
	p, err := s.api.UpdateProduct(ctx, id, patch)
	s.metrics.upstream("update", err)
	if err != nil {
		s.mutationFailed("update", err, zap.Int64("id", id))
		return Product{}, err
	}

	updated := p.Clone()
	s.patch(KeyAllProducts, func(list []Product) []Product {
		out := make([]Product, len(list))
		for i, old := range list {
			if old.ID == updated.ID {
				out[i] = updated
				continue
			}
			out[i] = old
		}
		return out
	})
	return p, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	err := s.api.DeleteProduct(ctx, id)
	s.metrics.upstream("delete", err)
	if err != nil {
		s.mutationFailed("delete", err, zap.Int64("id", id))
		return err
	}

	s.patch(KeyAllProducts, func(list []Product) []Product {
		out := make([]Product, 0, len(list))
		for _, p := range list {
			if p.ID != id {
				out = append(out, p)
			}
		}
		return out
	})
	return nil
}

// InvalidateCache drops every cached key.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bumpLocked()
	clear(s.entries)
	s.metrics.event(eventInvalidate)
}

func (s *Service) InvalidateKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bumpLocked()
	delete(s.entries, key)
	s.metrics.event(eventInvalidate)
}

// Cached returns a copy of the entry stored under key and when it was refreshed.
func (s *Service) Cached(key string) ([]Product, time.Time, bool) {
	e, ok := s.lookup(key)
	if !ok {
		return nil, time.Time{}, false
	}
	return cloneAll(e.products), e.refreshedAt, true
}

// Wait blocks until background refreshes have finished.
func (s *Service) Wait() {
	s.bg.Wait()
}

func (s *Service) lookup(key string) (entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

func (s *Service) fresh(e entry) bool {
	return s.now().Sub(e.refreshedAt) <= s.ttl
}

func (s *Service) fetch(ctx context.Context, key string) ([]Product, error) {
	// The shared request outlives any single caller; callers only stop waiting.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(key, func() (any, error) {
		return s.load(flightCtx, key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			s.metrics.event(eventShared)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneAll(res.Val.([]Product)), nil
	}
}

func (s *Service) load(ctx context.Context, key string) ([]Product, error) {
	gen := s.generation()

	list, err := s.api.ListProducts(ctx)
	s.metrics.upstream("list", err)
	if err != nil {
		s.log.Warn("fetch products failed", zap.String("key", key), zap.Error(err))
		return nil, err
	}

	list = cloneAll(list)
	if !s.put(key, list, gen) {
		s.log.Debug("discarding fetch overtaken by a cache change", zap.String("key", key))
	}
	return list, nil
}

func (s *Service) revalidate(key string) {
	s.bg.Go(func() {
		// load logs the failure; nobody is waiting on this result.
		_, _ = s.fetch(context.Background(), key)
	})
}

func (s *Service) generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

func (s *Service) put(key string, list []Product, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return false
	}
	s.entries[key] = entry{products: list, refreshedAt: s.now()}
	return true
}

func (s *Service) patch(key string, fn func([]Product) []Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bumpLocked()
	e, ok := s.entries[key]
	if !ok {
		// Nothing to patch: drop everything so the next read refetches.
		clear(s.entries)
		return
	}
	s.entries[key] = entry{products: fn(e.products), refreshedAt: s.now()}
}

func (s *Service) mutationFailed(op string, err error, fields ...zap.Field) {
	s.log.Warn("product "+op+" failed, invalidating cache", append(fields, zap.Error(err))...)
	s.InvalidateCache()
}

// bumpLocked advances the generation and releases in-flight fetches so that
// later callers start a new request instead of joining an outdated one.
func (s *Service) bumpLocked() {
	s.gen++
	s.flights.Forget(KeyAllProducts)
	for k := range s.entries {
		s.flights.Forget(k)
	}
}
