package model

import (
	"time"
)

// Error codes returned by operation handlers.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeProductNotFound   = "PRODUCT_NOT_FOUND"
	ErrCodeProductsNotFound  = "PRODUCTS_NOT_FOUND"
	ErrCodeInsufficientStock = "INSUFFICIENT_STOCK"
	ErrCodeAPI               = "API_ERROR"
)

// OpError is a structured, user-mappable operation failure.
type OpError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *OpError) Error() string {
	return e.Code + ": " + e.Message
}

// Candidate is one entry of a clarification list.
type Candidate struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Clarification asks the user to pick one of several matched products before
// the operation proceeds.
type Clarification struct {
	Operation       string      `json:"operation"`
	Candidates      []Candidate `json:"candidates"`
	OriginalCommand string      `json:"original_command"`
	CreatedAt       time.Time   `json:"created_at"`
}

// Confirmation asks the user to explicitly accept a destructive or bulk
// operation before it executes.
type Confirmation struct {
	Operation     string        `json:"operation"`
	Percentage    float64       `json:"percentage,omitempty"`
	Direction     string        `json:"direction,omitempty"`
	Multiplier    float64       `json:"multiplier,omitempty"`
	AffectedCount int           `json:"affected_count"`
	DiscountType  string        `json:"discount_type,omitempty"`
	Duration      time.Duration `json:"duration,omitempty"`
	ExcludedIDs   []string      `json:"excluded_ids,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// ResultData is the structured payload of a successful operation.
type ResultData struct {
	Action       string    `json:"action"`
	Product      *Product  `json:"product,omitempty"`
	Products     []Product `json:"products,omitempty"`
	DeletedCount int       `json:"deleted_count,omitempty"`
	UpdatedCount int       `json:"updated_count,omitempty"`
	Unmatched    []string  `json:"unmatched,omitempty"`
	Query        string    `json:"query,omitempty"`
}

// ToolCallResult is the canonical contract every catalog operation handler
// returns: exactly one of Data, Err, Clarification or Confirmation is set.
type ToolCallResult struct {
	Success       bool           `json:"success"`
	Data          *ResultData    `json:"data,omitempty"`
	Err           *OpError       `json:"error,omitempty"`
	Clarification *Clarification `json:"needs_clarification,omitempty"`
	Confirmation  *Confirmation  `json:"needs_confirmation,omitempty"`
}

// OKResult wraps a successful payload.
func OKResult(data *ResultData) *ToolCallResult {
	return &ToolCallResult{Success: true, Data: data}
}

// ErrResult wraps an operation failure.
func ErrResult(code, message, field string) *ToolCallResult {
	return &ToolCallResult{Err: &OpError{Code: code, Message: message, Field: field}}
}

// ClarifyResult wraps a pending clarification.
func ClarifyResult(c *Clarification) *ToolCallResult {
	return &ToolCallResult{Clarification: c}
}

// ConfirmResult wraps a pending confirmation.
func ConfirmResult(c *Confirmation) *ToolCallResult {
	return &ToolCallResult{Confirmation: c}
}
