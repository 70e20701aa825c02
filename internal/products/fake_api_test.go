package products

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var errNetwork = errors.New("network down")

// fakeAPI is an in-memory ProductAPI. When gate is non-nil ListProducts blocks
// until it is closed.
type fakeAPI struct {
	mu       sync.Mutex
	products []Product
	nextID   int64
	failList bool
	failMut  bool
	gate     chan struct{}

	listCalls atomic.Int32
}

func newFakeAPI(seed ...Product) *fakeAPI {
	return &fakeAPI{products: append([]Product(nil), seed...), nextID: 100}
}

func (f *fakeAPI) ListProducts(ctx context.Context) ([]Product, error) {
	f.listCalls.Add(1)

	// The response reflects the collection as it was when the request arrived.
	f.mu.Lock()
	gate := f.gate
	fail := f.failList
	snapshot := cloneAll(f.products)
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fail {
		return nil, errNetwork
	}
	return snapshot, nil
}

func (f *fakeAPI) CreateProduct(ctx context.Context, in NewProduct) (Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMut {
		return Product{}, errNetwork
	}
	f.nextID++
	p := Product{ID: f.nextID, Name: in.Name, Description: in.Description, Price: in.Price, Category: in.Category}
	f.products = append(f.products, p)
	return p, nil
}

func (f *fakeAPI) UpdateProduct(ctx context.Context, id int64, patch ProductPatch) (Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMut {
		return Product{}, errNetwork
	}
	for i, p := range f.products {
		if p.ID != id {
			continue
		}
		if patch.Name != nil {
			p.Name = *patch.Name
		}
		if patch.Price != nil {
			p.Price = *patch.Price
		}
		f.products[i] = p
		return p, nil
	}
	return Product{}, ErrAPINotFound
}

func (f *fakeAPI) DeleteProduct(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMut {
		return errNetwork
	}
	out := f.products[:0]
	for _, p := range f.products {
		if p.ID != id {
			out = append(out, p)
		}
	}
	f.products = out
	return nil
}

func (f *fakeAPI) setFailList(v bool) {
	f.mu.Lock()
	f.failList = v
	f.mu.Unlock()
}

func (f *fakeAPI) setFailMutations(v bool) {
	f.mu.Lock()
	f.failMut = v
	f.mu.Unlock()
}

func (f *fakeAPI) setGate(ch chan struct{}) {
	f.mu.Lock()
	f.gate = ch
	f.mu.Unlock()
}

// clock is a manually advanced time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func ids(list []Product) map[int64]int {
	out := make(map[int64]int, len(list))
	for _, p := range list {
		out[p.ID]++
	}
	return out
}

func sameIDs(a, b []Product) bool {
	ma, mb := ids(a), ids(b)
	if len(ma) != len(mb) || len(a) != len(b) {
		return false
	}
	for id, n := range ma {
		if mb[id] != n {
			return false
		}
	}
	return true
}
