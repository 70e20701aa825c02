package storefront

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"MiTienda/internal/products"
	"MiTienda/pkg/kit"
)

// Pinger reports whether the catalog API is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	Store   *products.Store
	Catalog Pinger
	Log     *zap.Logger
}

func (s *Server) routes(r chi.Router, mutationLimit func(http.Handler) http.Handler) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/home", http.StatusFound)
	})
	r.Get("/home", s.home)
	r.Get("/nav", s.nav)

	r.Route("/products", func(pr chi.Router) {
		pr.Get("/", s.list)
		pr.Get("/state", s.state)

		pr.Group(func(mr chi.Router) {
			mr.Use(mutationLimit)
			mr.Post("/", s.create)
			mr.Put("/{id}", s.update)
			mr.Delete("/{id}", s.delete)
		})
	})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
	defer cancel()

	if s.Catalog != nil {
		if err := s.Catalog.Ping(ctx); err != nil {
			s.log().Warn("readyz failed: catalog", zap.Error(err))
			kit.WriteError(w, r, http.StatusServiceUnavailable, "catalog not ready", nil)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	s.Store.LoadProducts(r.Context(), false)

	kit.WriteJSON(w, http.StatusOK, HomePage{
		Title:    homeTitle,
		Nav:      navLinks,
		Featured: cards(s.Store.Featured()),
	})
}

func (s *Server) nav(w http.ResponseWriter, _ *http.Request) {
	kit.WriteJSON(w, http.StatusOK, navLinks)
}

// list loads the catalog the way the listing page does on open, then applies
// the search query. Load failures are reported in the body, not the status.
func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	query := r.URL.Query().Get("q")

	s.Store.LoadProducts(r.Context(), refresh)

	st := s.Store.SearchState(query)
	kit.WriteJSON(w, http.StatusOK, ProductList{
		Query:       query,
		Products:    cards(st.Products),
		Loading:     st.Loading,
		Error:       st.Error,
		LastUpdated: st.LastUpdated,
	})
}

func (s *Server) state(w http.ResponseWriter, _ *http.Request) {
	kit.WriteJSON(w, http.StatusOK, s.Store.State())
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var in products.NewProduct
	if err := kit.DecodeJSON(w, r, &in); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}

	p, err := s.Store.CreateProduct(r.Context(), in)
	if err != nil {
		s.writeMutationError(w, r, products.MsgCreateFailed, err)
		return
	}
	kit.WriteJSON(w, http.StatusCreated, Card{Product: p, DiscountPrice: p.DiscountPrice()})
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	var patch products.ProductPatch
	if err := kit.DecodeJSON(w, r, &patch); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}

	p, err := s.Store.UpdateProduct(r.Context(), id, patch)
	if err != nil {
		s.writeMutationError(w, r, products.MsgUpdateFailed, err, zap.Int64("id", id))
		return
	}
	kit.WriteJSON(w, http.StatusOK, Card{Product: p, DiscountPrice: p.DiscountPrice()})
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	if err := s.Store.DeleteProduct(r.Context(), id); err != nil {
		s.writeMutationError(w, r, products.MsgDeleteFailed, err, zap.Int64("id", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeMutationError reports msg, the message the store recorded for the
// failure. Client errors from the catalog API keep their status; anything
// else is a bad gateway.
func (s *Server) writeMutationError(w http.ResponseWriter, r *http.Request, msg string, err error, fields ...zap.Field) {
	s.log().Warn("product mutation failed", append(fields, zap.Error(err))...)

	status := http.StatusBadGateway
	var se *products.StatusError
	switch {
	case errors.Is(err, products.ErrAPINotFound):
		status = http.StatusNotFound
	case errors.As(err, &se) && se.Code >= 400 && se.Code < 500:
		status = se.Code
	}
	kit.WriteError(w, r, status, msg, nil)
}

func productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		kit.WriteError(w, r, http.StatusBadRequest, "bad product id", map[string]any{"id": raw})
		return 0, false
	}
	return id, true
}

func (s *Server) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
