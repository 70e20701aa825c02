package catalog

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

type MemStore struct {
	mu     sync.RWMutex
	m      map[int64]Product
	nextID int64
}

func NewMemStore() *MemStore {
	featured := true
	discount := 0.1

	s := &MemStore{m: map[int64]Product{}}
	_, _ = s.Create(context.Background(), ProductInput{
		Name:        "Keyboard",
		Description: "Mechanical keyboard",
		Price:       49.90,
		Category:    "peripherals",
		Tags:        []string{"usb"},
		Featured:    &featured,
	})
	_, _ = s.Create(context.Background(), ProductInput{
		Name:        "Mouse",
		Description: "Wireless optical mouse",
		Price:       19.90,
		Category:    "peripherals",
		Discount:    &discount,
	})
	return s
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) List(ctx context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Product, 0, len(s.m))
	for _, p := range s.m {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Product) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemStore) Get(ctx context.Context, id int64) (Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.m[id]
	return p, ok, nil
}

func (s *MemStore) Create(ctx context.Context, in ProductInput) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	p := in.product(s.nextID)
	s.m[p.ID] = p
	return p, nil
}

func (s *MemStore) Update(ctx context.Context, id int64, fn func(*Product) error) (Product, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.m[id]
	if !ok {
		return Product{}, false, nil
	}
	if err := fn(&p); err != nil {
		return Product{}, true, err
	}
	p.ID = id
	s.m[id] = p
	return p, true, nil
}

func (s *MemStore) Delete(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.m[id]; !ok {
		return false, nil
	}
	delete(s.m, id)
	return true, nil
}
