package products

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	MsgLoadFailed   = "Failed to load products"
	MsgCreateFailed = "Failed to create product"
	MsgUpdateFailed = "Failed to update product"
	MsgDeleteFailed = "Failed to delete product"
)

// ProductService is what the store needs from the cache layer. *Service implements it.
type ProductService interface {
	GetProducts(ctx context.Context, forceRefresh bool) ([]Product, error)
	CreateProduct(ctx context.Context, in NewProduct) (Product, error)
	UpdateProduct(ctx context.Context, id int64, patch ProductPatch) (Product, error)
	DeleteProduct(ctx context.Context, id int64) error
}

// State is one snapshot of the store. Error is empty when there is none and
// LastUpdated is zero until the first successful operation.
type State struct {
	Products    []Product `json:"products"`
	Loading     bool      `json:"loading"`
	Error       string    `json:"error,omitempty"`
	LastUpdated time.Time `json:"last_updated,omitzero"`
}

func (s State) clone() State {
	s.Products = cloneAll(s.Products)
	return s
}

type StoreOptions struct {
	Log *zap.Logger
	Now func() time.Time
}

// Store holds the UI-facing product state. Every transition replaces the whole
// snapshot and is pushed to subscribers.
type Store struct {
	svc ProductService
	log *zap.Logger
	now func() time.Time

	mu      sync.RWMutex
	state   State
	rev     uint64 // bumped by every settled mutation
	subs    map[uint64]chan State
	nextSub uint64
}

func NewStore(svc ProductService, opts StoreOptions) *Store {
	st := &Store{
		svc:   svc,
		log:   opts.Log,
		now:   opts.Now,
		state: State{Products: []Product{}},
		subs:  make(map[uint64]chan State),
	}
	if st.log == nil {
		st.log = zap.NewNop()
	}
	if st.now == nil {
		st.now = time.Now
	}
	return st
}

func (st *Store) State() State {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state.clone()
}

func (st *Store) Products() []Product {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return cloneAll(st.state.Products)
}

func (st *Store) Loading() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state.Loading
}

func (st *Store) Error() string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state.Error
}

func (st *Store) LastUpdated() (time.Time, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state.LastUpdated, !st.state.LastUpdated.IsZero()
}

// Search returns the products whose name or description contains query,
// ignoring case. An empty query matches everything.
func (st *Store) Search(query string) []Product {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return matching(st.state.Products, query)
}

// SearchState is State with Products narrowed by Search, taken from one
// snapshot.
func (st *Store) SearchState(query string) State {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s := st.state
	s.Products = matching(s.Products, query)
	return s
}

func matching(list []Product, query string) []Product {
	q := strings.ToLower(query)

	out := make([]Product, 0, len(list))
	for _, p := range list {
		if strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.Description), q) {
			out = append(out, p.Clone())
		}
	}
	return out
}

func (st *Store) Featured() []Product {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]Product, 0)
	for _, p := range st.state.Products {
		if p.IsFeatured() {
			out = append(out, p.Clone())
		}
	}
	return out
}

// Subscribe returns a channel that always holds the latest snapshot; older
// undelivered snapshots are replaced. The current state is delivered at once.
// cancel unsubscribes and closes the channel.
func (st *Store) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	st.mu.Lock()
	id := st.nextSub
	st.nextSub++
	st.subs[id] = ch
	ch <- st.state.clone()
	st.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			st.mu.Lock()
			delete(st.subs, id)
			st.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// maxReloads bounds how often a load is retried after a mutation settles
// while its fetch is in flight.
const maxReloads = 2

// LoadProducts refreshes the product list. Failures are recorded in the state
// and an empty list is returned. A fetch that a mutation overtook is not
// stored; the list is read again from the cache instead.
func (st *Store) LoadProducts(ctx context.Context, refresh bool) []Product {
	rev := st.begin()

	for attempt := 0; ; attempt++ {
		list, err := st.svc.GetProducts(ctx, refresh)
		if err != nil {
			st.log.Warn("load products failed", zap.Bool("refresh", refresh), zap.Error(err))
			st.fail(MsgLoadFailed)
			return []Product{}
		}

		var ok bool
		if rev, ok = st.settleLoad(rev, list); ok {
			return list
		}
		if attempt == maxReloads {
			st.log.Warn("load products superseded by mutations", zap.Int("attempts", attempt+1))
			st.set(func(s *State) { s.Loading = false })
			return st.Products()
		}
		refresh = false
	}
}

func (st *Store) CreateProduct(ctx context.Context, in NewProduct) (Product, error) {
	st.begin()

	p, err := st.svc.CreateProduct(ctx, in)
	if err != nil {
		st.fail(MsgCreateFailed)
		return Product{}, err
	}

	st.commit(func(s *State) {
		s.Products = upsert(s.Products, p)
	})
	return p, nil
}

func (st *Store) UpdateProduct(ctx context.Context, id int64, patch ProductPatch) (Product, error) {
	st.begin()

	p, err := st.svc.UpdateProduct(ctx, id, patch)
	if err != nil {
		st.fail(MsgUpdateFailed)
		return Product{}, err
	}

	st.commit(func(s *State) {
		out := make([]Product, len(s.Products))
		for i, old := range s.Products {
			if old.ID == p.ID {
				out[i] = p.Clone()
				continue
			}
			out[i] = old
		}
		s.Products = out
	})
	return p, nil
}

func (st *Store) DeleteProduct(ctx context.Context, id int64) error {
	st.begin()

	if err := st.svc.DeleteProduct(ctx, id); err != nil {
		st.fail(MsgDeleteFailed)
		return err
	}

	st.commit(func(s *State) {
		out := make([]Product, 0, len(s.Products))
		for _, p := range s.Products {
			if p.ID != id {
				out = append(out, p)
			}
		}
		s.Products = out
	})
	return nil
}

// begin marks an operation as started and returns the mutation revision it
// started from.
func (st *Store) begin() uint64 {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.apply(func(s *State) {
		s.Loading = true
		s.Error = ""
	})
	return st.rev
}

func (st *Store) fail(msg string) {
	st.set(func(s *State) {
		s.Loading = false
		s.Error = msg
	})
}

// settleLoad stores list if no mutation settled since rev. Otherwise it
// returns the current revision and false.
func (st *Store) settleLoad(rev uint64, list []Product) (uint64, bool) {
	now := st.now()

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.rev != rev {
		return st.rev, false
	}
	st.apply(func(s *State) {
		s.Products = cloneAll(list)
		s.LastUpdated = now
		s.Loading = false
	})
	return rev, true
}

// commit settles a successful mutation.
func (st *Store) commit(fn func(s *State)) {
	now := st.now()

	st.mu.Lock()
	defer st.mu.Unlock()

	st.rev++
	st.apply(func(s *State) {
		fn(s)
		s.LastUpdated = now
		s.Loading = false
	})
}

func (st *Store) set(fn func(s *State)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.apply(fn)
}

// apply replaces the snapshot and publishes it. st.mu must be held.
func (st *Store) apply(fn func(s *State)) {
	next := st.state
	fn(&next)
	st.state = next

	for _, ch := range st.subs {
		select {
		case <-ch:
		default:
		}
		ch <- next.clone()
	}
}

// upsert returns a copy of list with p replacing the product of the same id,
// or appended when there is none.
func upsert(list []Product, p Product) []Product {
	out := cloneAll(list)
	for i := range out {
		if out[i].ID == p.ID {
			out[i] = p.Clone()
			return out
		}
	}
	return append(out, p.Clone())
}
