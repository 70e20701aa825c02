package storefront

import (
	"time"

	"MiTienda/internal/products"
)

const homeTitle = "Inicio - MiTienda"

type NavLink struct {
	Label string `json:"label"`
	Path  string `json:"path"`
}

var navLinks = []NavLink{
	{Label: "Home", Path: "/home"},
	{Label: "Products", Path: "/products"},
}

// Card is a product as the listing renders it.
type Card struct {
	products.Product
	DiscountPrice float64 `json:"discount_price"`
}

type HomePage struct {
	Title    string    `json:"title"`
	Nav      []NavLink `json:"nav"`
	Featured []Card    `json:"featured"`
}

type ProductList struct {
	Query       string    `json:"query,omitempty"`
	Products    []Card    `json:"products"`
	Loading     bool      `json:"loading"`
	Error       string    `json:"error,omitempty"`
	LastUpdated time.Time `json:"last_updated,omitzero"`
}

func cards(list []products.Product) []Card {
	out := make([]Card, len(list))
	for i, p := range list {
		out[i] = Card{Product: p, DiscountPrice: p.DiscountPrice()}
	}
	return out
}
