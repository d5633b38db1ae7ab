// Package catalog provides the REST client for the catalog service, the sole
// writer of record for products.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shoplens-ai/catalog-assistant/internal/model"
)

// API is the catalog contract consumed by operation handlers.
type API interface {
	ListProducts(ctx context.Context, shopID string) ([]model.Product, error)
	CreateProduct(ctx context.Context, shopID string, attrs ProductAttrs) (*model.Product, error)
	UpdateProduct(ctx context.Context, productID string, attrs ProductUpdate) (*model.Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	BulkDeleteAll(ctx context.Context, shopID string) (int, error)
	BulkDeleteByIDs(ctx context.Context, ids []string) (int, error)
	ApplyBulkDiscount(ctx context.Context, shopID string, req BulkDiscountRequest) (int, error)
}

// ProductAttrs are the attributes for product creation.
type ProductAttrs struct {
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	Price         float64 `json:"price"`
	StockQuantity int     `json:"stock_quantity"`
}

// ProductUpdate is a partial update; nil fields are left untouched.
type ProductUpdate struct {
	Name               *string    `json:"name,omitempty"`
	Description        *string    `json:"description,omitempty"`
	Price              *float64   `json:"price,omitempty"`
	StockQuantity      *int       `json:"stock_quantity,omitempty"`
	DiscountPercentage *float64   `json:"discount_percentage,omitempty"`
	DiscountExpiresAt  *time.Time `json:"discount_expires_at,omitempty"`
	OriginalPrice      *float64   `json:"original_price,omitempty"`
}

// BulkDiscountRequest adjusts prices across a shop's catalog.
type BulkDiscountRequest struct {
	Percentage   float64  `json:"percentage"`
	Direction    string   `json:"direction"`
	DiscountType string   `json:"discount_type"`
	DurationMs   int64    `json:"duration_ms,omitempty"`
	ExcludedIDs  []string `json:"excluded_ids,omitempty"`
}

// APIError is a structured failure from the catalog service.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Field      string `json:"field,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("catalog API %d: %s", e.StatusCode, e.Message)
}

// IsValidation reports whether the failure is a 400-class validation error.
func (e *APIError) IsValidation() bool { return e.StatusCode == http.StatusBadRequest }

// IsNotFound reports whether the resource was missing.
func (e *APIError) IsNotFound() bool { return e.StatusCode == http.StatusNotFound }

// IsAuth reports whether the failure is an authorization error.
func (e *APIError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsServer reports whether the failure is a 5xx server error.
func (e *APIError) IsServer() bool { return e.StatusCode >= 500 }

// Client is the HTTP catalog client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a catalog client.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ListProducts fetches a fresh catalog snapshot for a shop.
func (c *Client) ListProducts(ctx context.Context, shopID string) ([]model.Product, error) {
	var out struct {
		Products []model.Product `json:"products"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/shops/"+shopID+"/products", nil, &out); err != nil {
		return nil, err
	}
	return out.Products, nil
}

// CreateProduct creates a product in a shop.
func (c *Client) CreateProduct(ctx context.Context, shopID string, attrs ProductAttrs) (*model.Product, error) {
	var out model.Product
	if err := c.do(ctx, http.MethodPost, "/api/v1/shops/"+shopID+"/products", attrs, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProduct applies a partial update to a product.
func (c *Client) UpdateProduct(ctx context.Context, productID string, attrs ProductUpdate) (*model.Product, error) {
	var out model.Product
	if err := c.do(ctx, http.MethodPatch, "/api/v1/products/"+productID, attrs, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteProduct deletes a single product.
func (c *Client) DeleteProduct(ctx context.Context, productID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/products/"+productID, nil, nil)
}

// BulkDeleteAll removes every product in a shop and returns the deleted count.
func (c *Client) BulkDeleteAll(ctx context.Context, shopID string) (int, error) {
	var out struct {
		DeletedCount int `json:"deleted_count"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/v1/shops/"+shopID+"/products", nil, &out); err != nil {
		return 0, err
	}
	return out.DeletedCount, nil
}

// BulkDeleteByIDs removes the listed products and returns the deleted count.
func (c *Client) BulkDeleteByIDs(ctx context.Context, ids []string) (int, error) {
	body := struct {
		IDs []string `json:"ids"`
	}{IDs: ids}
	var out struct {
		DeletedCount int `json:"deleted_count"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/products/bulk-delete", body, &out); err != nil {
		return 0, err
	}
	return out.DeletedCount, nil
}

// ApplyBulkDiscount adjusts prices across a shop and returns the updated count.
func (c *Client) ApplyBulkDiscount(ctx context.Context, shopID string, req BulkDiscountRequest) (int, error) {
	var out struct {
		UpdatedCount int `json:"updated_count"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/shops/"+shopID+"/bulk-discount", req, &out); err != nil {
		return 0, err
	}
	return out.UpdatedCount, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func parseAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
