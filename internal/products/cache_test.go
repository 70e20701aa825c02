package products

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func seedProducts() []Product {
	return []Product{
		{ID: 1, Name: "A", Price: 10},
		{ID: 2, Name: "B", Price: 20},
	}
}

func newTestService(api ProductAPI, clk *clock, swr bool) *Service {
	return NewService(api, ServiceConfig{
		TTL:                  DefaultTTL,
		StaleWhileRevalidate: swr,
		Now:                  clk.Now,
	})
}

func TestService_FreshEntryServedWithoutNetwork(t *testing.T) {
	api := newFakeAPI(seedProducts()...)
	svc := newTestService(api, newClock(), false)
	ctx := context.Background()

	if _, err := svc.GetProducts(ctx, false); err != nil {
		t.Fatalf("first get: %v", err)
	}
	for i := 0; i < 3; i++ {
		got, err := svc.GetProducts(ctx, false)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("len=%d want=2", len(got))
		}
	}

	if n := api.listCalls.Load(); n != 1 {
		t.Fatalf("list calls=%d want=1", n)
	}
}

func TestService_ForceRefreshFetches(t *testing.T) {
	api := newFakeAPI(seedProducts()...)
	svc := newTestService(api, newClock(), false)
	ctx := context.Background()

	_, _ = svc.GetProducts(ctx, false)
	if _, err := svc.GetProducts(ctx, true); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if n := api.listCalls.Load(); n != 2 {
		t.Fatalf("list calls=%d want=2", n)
	}
}

func TestService_ExpiredEntryRefreshesBeforeReturning(t *testing.T) {
	api := newFakeAPI(seedProducts()...)
	clk := newClock()
	svc := newTestService(api, clk, false)
	ctx := context.Background()

	_, _ = svc.GetProducts(ctx, false)
	_, _ = api.CreateProduct(ctx, NewProduct{Name: "C", Price: 30})

	clk.Advance(DefaultTTL)
	got, _ := svc.GetProducts(ctx, false)
	if len(got) != 2 {
		t.Fatalf("at ttl boundary len=%d want=2 (still fresh)", len(got))
	}

	clk.Advance(time.Second)
	got, err := svc.GetProducts(ctx, false)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len=%d want=3", len(got))
	}
	if n := api.listCalls.Load(); n != 2 {
		t.Fatalf("list calls=%d want=2", n)
	}
}

func TestService_StaleWhileRevalidate(t *testing.T) {
	api := newFakeAPI(seedProducts()...)
	clk := newClock()
	svc := newTestService(api, clk, true)
	ctx := context.Background()

	_, _ = svc.GetProducts(ctx, false)
	_, _ = api.CreateProduct(ctx, NewProduct{Name: "C", Price: 30})
	clk.Advance(DefaultTTL + time.Second)

	got, err := svc.GetProducts(ctx, false)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("stale len=%d want=2", len(got))
	}

	svc.Wait()

	cached, at, ok := svc.Cached(KeyAllProducts)
	if !ok {
		t.Fatalf("cache entry missing after background refresh")
	}
	if len(cached) != 3 {
		t.Fatalf("refreshed len=%d want=3", len(cached))
	}
	if !at.Equal(clk.Now()) {
		t.Fatalf("refreshedAt=%v want=%v", at, clk.Now())
	}
	if n := api.listCalls.Load(); n != 2 {
		t.Fatalf("list calls=%d want=2", n)
	}
}

func TestService_CoalescesConcurrentFetches(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		api := newFakeAPI(seedProducts()...)
		gate := make(chan struct{})
		api.setGate(gate)
		svc := newTestService(api, newClock(), false)

		var wg sync.WaitGroup
		results := make([][]Product, 2)
		errs := make([]error, 2)
		for i := range 2 {
			wg.Go(func() {
				results[i], errs[i] = svc.GetProducts(context.Background(), true)
			})
		}

		synctest.Wait()
		if n := api.listCalls.Load(); n != 1 {
			t.Fatalf("list calls while in flight=%d want=1", n)
		}

		close(gate)
		wg.Wait()

		for i := range 2 {
			if errs[i] != nil {
				t.Fatalf("caller %d: %v", i, errs[i])
			}
			if !sameIDs(results[i], seedProducts()) {
				t.Fatalf("caller %d got %+v", i, results[i])
			}
		}
		if n := api.listCalls.Load(); n != 1 {
			t.Fatalf("list calls=%d want=1", n)
		}
	})
}

func TestService_CallerCancelDoesNotFailSharedFetch(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		api := newFakeAPI(seedProducts()...)
		gate := make(chan struct{})
		api.setGate(gate)
		svc := newTestService(api, newClock(), false)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			_, err := svc.GetProducts(ctx, false)
			done <- err
		}()

		synctest.Wait()
		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Fatalf("err=%v want=%v", err, context.Canceled)
		}

		close(gate)
		synctest.Wait()

		if _, _, ok := svc.Cached(KeyAllProducts); !ok {
			t.Fatalf("shared fetch did not populate the cache")
		}
	})
}

func TestService_FetchFailureAllowsRetry(t *testing.T) {
	api := newFakeAPI(seedProducts()...)
	svc := newTestService(api, newClock(), false)
	ctx := context.Background()

	api.setFailList(true)
	if _, err := svc.GetProducts(ctx, false); !errors.Is(err, errNetwork) {
		t.Fatalf("err=%v want=%v", err, errNetwork)
	}
	if _, _, ok := svc.Cached(KeyAllProducts); ok {
		t.Fatalf("failed fetch left a cache entry")
	}

	api.setFailList(false)
	got, err := svc.GetProducts(ctx, false)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d want=2", len(got))
	}
	if n := api.listCalls.Load(); n != 2 {
		t.Fatalf("list calls=%d want=2", n)
	}
}

func TestService_MutationsPatchCache(t *testing.T) {
	api := newFakeAPI(seedProducts()...)
	clk := newClock()
	svc := newTestService(api, clk, false)
	ctx := context.Background()

	_, _ = svc.GetProducts(ctx, false)

	clk.Advance(time.Minute)
	created, err := svc.CreateProduct(ctx, NewProduct{Name: "C", Price: 30})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	cached, at, _ := svc.Cached(KeyAllProducts)
	if len(cached) != 3 || cached[2].ID != created.ID {
		t.Fatalf("after create cached=%+v", cached)
	}
	if !at.Equal(clk.Now()) {
		t.Fatalf("refreshedAt=%v want=%v", at, clk.Now())
	}

	name := "A2"
	if _, err := svc.UpdateProduct(ctx, 1, ProductPatch{Name: &name}); err != nil {
		t.Fatalf("update: %v", err)
	}
	cached, _, _ = svc.Cached(KeyAllProducts)
	if cached[0].ID != 1 || cached[0].Name != "A2" {
		t.Fatalf("after update cached[0]=%+v", cached[0])
	}

	if err := svc.DeleteProduct(ctx, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	cached, _, _ = svc.Cached(KeyAllProducts)
	if _, found := ids(cached)[1]; found {
		t.Fatalf("deleted product still cached: %+v", cached)
	}

	remote, _ := api.ListProducts(ctx)
	if !sameIDs(cached, remote) {
		t.Fatalf("cached=%+v remote=%+v", cached, remote)
	}
	if n := api.listCalls.Load(); n != 2 {
		t.Fatalf("list calls=%d want=2 (one from the service, one from the check)", n)
	}
}

func TestService_MutationFailureInvalidatesCache(t *testing.T) {
	api := newFakeAPI(seedProducts()...)
	svc := newTestService(api, newClock(), false)
	ctx := context.Background()

	_, _ = svc.GetProducts(ctx, false)
	api.setFailMutations(true)

	name := "X"
	if _, err := svc.UpdateProduct(ctx, 1, ProductPatch{Name: &name}); !errors.Is(err, errNetwork) {
		t.Fatalf("err=%v want=%v", err, errNetwork)
	}
	if _, _, ok := svc.Cached(KeyAllProducts); ok {
		t.Fatalf("cache survived a failed mutation")
	}

	_, _ = svc.GetProducts(ctx, false)
	if n := api.listCalls.Load(); n != 2 {
		t.Fatalf("list calls=%d want=2", n)
	}
}

func TestService_MutationWithoutEntryLeavesCacheEmpty(t *testing.T) {
	api := newFakeAPI(seedProducts()...)
	svc := newTestService(api, newClock(), false)

	if _, err := svc.CreateProduct(context.Background(), NewProduct{Name: "C"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, ok := svc.Cached(KeyAllProducts); ok {
		t.Fatalf("create without a cached list created an entry")
	}
}

func TestService_FetchOvertakenByMutationIsDiscarded(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		api := newFakeAPI(seedProducts()...)
		svc := newTestService(api, newClock(), false)
		ctx := context.Background()

		_, _ = svc.GetProducts(ctx, false)

		gate := make(chan struct{})
		api.setGate(gate)
		done := make(chan []Product, 1)
		go func() {
			got, _ := svc.GetProducts(ctx, true)
			done <- got
		}()
		synctest.Wait()

		created, err := svc.CreateProduct(ctx, NewProduct{Name: "C"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		close(gate)
		if got := <-done; len(got) != 2 {
			t.Fatalf("refresh caller len=%d want=2", len(got))
		}

		cached, _, _ := svc.Cached(KeyAllProducts)
		if _, ok := ids(cached)[created.ID]; !ok {
			t.Fatalf("outdated fetch overwrote the created product: %+v", cached)
		}
	})
}

func TestService_Invalidate(t *testing.T) {
	api := newFakeAPI(seedProducts()...)
	svc := newTestService(api, newClock(), false)
	ctx := context.Background()

	_, _ = svc.GetProducts(ctx, false)
	svc.InvalidateKey("other")
	if _, _, ok := svc.Cached(KeyAllProducts); !ok {
		t.Fatalf("invalidating another key dropped %q", KeyAllProducts)
	}

	svc.InvalidateKey(KeyAllProducts)
	if _, _, ok := svc.Cached(KeyAllProducts); ok {
		t.Fatalf("entry survived InvalidateKey")
	}

	_, _ = svc.GetProducts(ctx, false)
	svc.InvalidateCache()
	if _, _, ok := svc.Cached(KeyAllProducts); ok {
		t.Fatalf("entry survived InvalidateCache")
	}
	if n := api.listCalls.Load(); n != 2 {
		t.Fatalf("list calls=%d want=2", n)
	}
}

func TestService_ReturnsCopies(t *testing.T) {
	api := newFakeAPI(Product{ID: 1, Name: "A", Tags: []string{"x"}})
	svc := newTestService(api, newClock(), false)
	ctx := context.Background()

	got, _ := svc.GetProducts(ctx, false)
	got[0].Name = "mutated"
	got[0].Tags[0] = "mutated"

	again, _ := svc.GetProducts(ctx, false)
	if again[0].Name != "A" || again[0].Tags[0] != "x" {
		t.Fatalf("caller mutation leaked into cache: %+v", again[0])
	}
}

func TestService_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	api := newFakeAPI(seedProducts()...)
	svc := NewService(api, ServiceConfig{Metrics: m, Now: newClock().Now})
	ctx := context.Background()

	_, _ = svc.GetProducts(ctx, false)
	_, _ = svc.GetProducts(ctx, false)
	svc.InvalidateCache()

	if v := testutil.ToFloat64(m.CacheEvents.WithLabelValues(eventMiss)); v != 1 {
		t.Fatalf("miss=%v want=1", v)
	}
	if v := testutil.ToFloat64(m.CacheEvents.WithLabelValues(eventHit)); v != 1 {
		t.Fatalf("hit=%v want=1", v)
	}
	if v := testutil.ToFloat64(m.CacheEvents.WithLabelValues(eventInvalidate)); v != 1 {
		t.Fatalf("invalidate=%v want=1", v)
	}
	if v := testutil.ToFloat64(m.Upstream.WithLabelValues("list", resultOK)); v != 1 {
		t.Fatalf("list ok=%v want=1", v)
	}
}
