package products

import "maps"

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

// NewProduct is a product that has not been assigned an id by the API yet.
type NewProduct struct {
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

// ProductPatch carries a partial update. Nil fields are left untouched.
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

func (p Product) DiscountPrice() float64 {
	if p.Discount == nil {
		return p.Price
	}
	return p.Price * (1 - *p.Discount)
}

func (p Product) IsFeatured() bool {
	return p.Featured != nil && *p.Featured
}

// Clone returns a copy that shares no slices, maps or pointers with p.
func (p Product) Clone() Product {
	out := p
	if p.Tags != nil {
		out.Tags = append([]string(nil), p.Tags...)
	}
	if p.Metadata != nil {
		out.Metadata = maps.Clone(p.Metadata)
	}
	if p.Discount != nil {
		d := *p.Discount
		out.Discount = &d
	}
	if p.Featured != nil {
		f := *p.Featured
		out.Featured = &f
	}
	return out
}

func cloneAll(in []Product) []Product {
	out := make([]Product, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}
