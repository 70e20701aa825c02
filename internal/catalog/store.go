package catalog

import (
	"context"
	"errors"
	"maps"
)

var (
	ErrNameRequired = errors.New("name required")
	ErrBadPrice     = errors.New("price must not be negative")
	ErrBadDiscount  = errors.New("discount must be between 0 and 1")
)

type Product struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Price       float64           `json:"price"`
	Category    string            `json:"category"`
	Tags        []string          `json:"tags,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Discount    *float64          `json:"discount,omitempty"`
	ImageURL    string            `json:"imageUrl,omitempty"`
	Featured    *bool             `json:"featured,omitempty"`
}

type ProductInput struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Price       float64           `json:"price"`
	Category    string            `json:"category"`
	Tags        []string          `json:"tags,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Discount    *float64          `json:"discount,omitempty"`
	ImageURL    string            `json:"imageUrl,omitempty"`
	Featured    *bool             `json:"featured,omitempty"`
}

type ProductPatch struct {
	Name        *string            `json:"name,omitempty"`
	Description *string            `json:"description,omitempty"`
	Price       *float64           `json:"price,omitempty"`
	Category    *string            `json:"category,omitempty"`
	Tags        *[]string          `json:"tags,omitempty"`
	Metadata    *map[string]string `json:"metadata,omitempty"`
	Discount    *float64           `json:"discount,omitempty"`
	ImageURL    *string            `json:"imageUrl,omitempty"`
	Featured    *bool              `json:"featured,omitempty"`
}

// Store persists the product collection. Update runs fn on the current
// product and saves the result unless fn returns an error.
type Store interface {
	Ping(ctx context.Context) error
	List(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id int64) (Product, bool, error)
	Create(ctx context.Context, in ProductInput) (Product, error)
	Update(ctx context.Context, id int64, fn func(*Product) error) (Product, bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

func (in ProductInput) product(id int64) Product {
	return Product{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Category:    in.Category,
		Tags:        append([]string(nil), in.Tags...),
		Metadata:    maps.Clone(in.Metadata),
		Discount:    in.Discount,
		ImageURL:    in.ImageURL,
		Featured:    in.Featured,
	}
}

func (p *Product) apply(patch ProductPatch) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.Tags != nil {
		p.Tags = append([]string(nil), (*patch.Tags)...)
	}
	if patch.Metadata != nil {
		p.Metadata = maps.Clone(*patch.Metadata)
	}
	if patch.Discount != nil {
		d := *patch.Discount
		p.Discount = &d
	}
	if patch.ImageURL != nil {
		p.ImageURL = *patch.ImageURL
	}
	if patch.Featured != nil {
		f := *patch.Featured
		p.Featured = &f
	}
}

func (p Product) validate() error {
	switch {
	case p.Name == "":
		return ErrNameRequired
	case p.Price < 0:
		return ErrBadPrice
	case p.Discount != nil && (*p.Discount < 0 || *p.Discount > 1):
		return ErrBadDiscount
	}
	return nil
}
