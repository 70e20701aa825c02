package products

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAPINotFound    = errors.New("catalog api: product not found")
	ErrAPIBadStatus   = errors.New("catalog api: bad status")
	ErrAPIUnavailable = errors.New("catalog api: unavailable")
)

// StatusError is a non-2xx answer other than 404. It matches ErrAPIBadStatus.
type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: %s %s status=%d", ErrAPIBadStatus, e.Method, e.Path, e.Code)
}

func (e *StatusError) Unwrap() error { return ErrAPIBadStatus }

const (
	requestIDHeader = "X-Request-Id"
	clientTimeout   = 3 * time.Second
)

// CatalogClient talks to the REST product API.
type CatalogClient struct {
	BaseURL string
	Client  *http.Client
}

func NewCatalogClient(baseURL string) *CatalogClient {
	if u, err := url.Parse(baseURL); err == nil && u.Scheme != "" && u.Host != "" {
		baseURL = strings.TrimRight(baseURL, "/")
	}
	return &CatalogClient{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: clientTimeout},
	}
}

func (c *CatalogClient) ListProducts(ctx context.Context) ([]Product, error) {
	var out []Product
	if err := c.do(ctx, http.MethodGet, "/products", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Product{}
	}
	return out, nil
}

func (c *CatalogClient) CreateProduct(ctx context.Context, in NewProduct) (Product, error) {
	var p Product
	if err := c.do(ctx, http.MethodPost, "/products", in, &p); err != nil {
		return Product{}, err
	}
	return p, nil
}

func (c *CatalogClient) UpdateProduct(ctx context.Context, id int64, patch ProductPatch) (Product, error) {
	var p Product
	if err := c.do(ctx, http.MethodPut, productPath(id), patch, &p); err != nil {
		return Product{}, err
	}
	return p, nil
}

func (c *CatalogClient) DeleteProduct(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, productPath(id), nil, nil)
}

func (c *CatalogClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/readyz", nil, nil)
}

func productPath(id int64) string {
	return "/products/" + strconv.FormatInt(id, 10)
}

func (c *CatalogClient) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, uuid.NewString())

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrAPIUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return ErrAPINotFound
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
