package executor

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/shoplens-ai/catalog-assistant/internal/catalog"
	"github.com/shoplens-ai/catalog-assistant/internal/model"
)

// Discount types for bulk price updates.
const (
	DiscountTypePermanent = "permanent"
	DiscountTypeTimer     = "timer"
)

// BulkPriceArgs are the arguments for bulk_price_update.
type BulkPriceArgs struct {
	Percentage       float64  `json:"percentage"`
	Direction        string   `json:"direction"`
	Duration         string   `json:"duration"`
	ExcludedProducts []string `json:"excluded_products"`
	Confirm          bool     `json:"confirm"`
}

// BulkDeleteAllArgs are the arguments for bulk_delete_all.
type BulkDeleteAllArgs struct {
	Confirm bool `json:"confirm"`
}

func (e *Executor) bulkPriceUpdate(ctx context.Context, req *Request, raw json.RawMessage) *model.ToolCallResult {
	var args BulkPriceArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return model.ErrResult(model.ErrCodeValidation, "не удалось разобрать аргументы операции", "")
	}

	increase, ok := parseDirection(args.Direction)
	if !ok {
		return model.ErrResult(model.ErrCodeValidation, "направление изменения должно быть increase или decrease", "direction")
	}
	if args.Percentage <= 0 {
		return model.ErrResult(model.ErrCodeValidation, "процент изменения должен быть больше нуля", "percentage")
	}
	if !increase && args.Percentage >= 100 {
		return model.ErrResult(model.ErrCodeValidation, "снижение на 100% и более обнулило бы цены", "percentage")
	}

	// Increases are always permanent; decreases run on a timer only when an
	// explicit duration was supplied.
	discountType := DiscountTypePermanent
	var durationMs int64
	if !increase && args.Duration != "" {
		d, err := ParseDuration(args.Duration)
		if err != nil {
			return model.ErrResult(model.ErrCodeValidation, err.Error(), "duration")
		}
		discountType = DiscountTypeTimer
		durationMs = d.Milliseconds()
	}

	// Exclusions are best effort: unmatched terms are reported, never block.
	excludedIDs, unmatched := e.res.ResolveExclusions(args.ExcludedProducts, req.Snapshot.Products)

	affected := len(req.Snapshot.Products) - len(excludedIDs)
	if affected <= 0 {
		return model.ErrResult(model.ErrCodeProductsNotFound, "в каталоге нет товаров для изменения", "")
	}

	confirmation := &model.Confirmation{
		Operation:     string(OpBulkPriceUpdate),
		Percentage:    args.Percentage,
		Direction:     directionName(increase),
		Multiplier:    BulkMultiplier(args.Percentage, increase),
		AffectedCount: affected,
		DiscountType:  discountType,
		ExcludedIDs:   excludedIDs,
	}
	if durationMs > 0 {
		confirmation.Duration = time.Duration(durationMs) * time.Millisecond
	}

	if !args.Confirm {
		return model.ConfirmResult(confirmation)
	}

	result := e.RunBulkPrice(ctx, req.Snapshot.ShopID, confirmation)
	if result.Success && len(unmatched) > 0 {
		result.Data.Unmatched = unmatched
	}
	return result
}

// RunBulkPrice executes a confirmed bulk price update.
func (e *Executor) RunBulkPrice(ctx context.Context, shopID string, conf *model.Confirmation) *model.ToolCallResult {
	count, err := e.api.ApplyBulkDiscount(ctx, shopID, catalog.BulkDiscountRequest{
		Percentage:   conf.Percentage,
		Direction:    conf.Direction,
		DiscountType: conf.DiscountType,
		DurationMs:   conf.Duration.Milliseconds(),
		ExcludedIDs:  conf.ExcludedIDs,
	})
	if err != nil {
		return apiErrResult(err)
	}
	return model.OKResult(&model.ResultData{
		Action:       string(OpBulkPriceUpdate),
		UpdatedCount: count,
	})
}

func (e *Executor) bulkDeleteAll(ctx context.Context, req *Request, raw json.RawMessage) *model.ToolCallResult {
	var args BulkDeleteAllArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return model.ErrResult(model.ErrCodeValidation, "не удалось разобрать аргументы операции", "")
	}

	// Destructive bulk delete never executes on a guess.
	if !args.Confirm {
		return model.ConfirmResult(&model.Confirmation{
			Operation:     string(OpBulkDeleteAll),
			AffectedCount: len(req.Snapshot.Products),
		})
	}

	return e.RunBulkDeleteAll(ctx, req.Snapshot.ShopID)
}

// RunBulkDeleteAll executes a confirmed delete of every product in a shop.
func (e *Executor) RunBulkDeleteAll(ctx context.Context, shopID string) *model.ToolCallResult {
	count, err := e.api.BulkDeleteAll(ctx, shopID)
	if err != nil {
		return apiErrResult(err)
	}
	return model.OKResult(&model.ResultData{
		Action:       string(OpBulkDeleteAll),
		DeletedCount: count,
	})
}

func parseDirection(s string) (increase, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "increase", "up", "повышение", "повысить":
		return true, true
	case "decrease", "down", "снижение", "снизить":
		return false, true
	default:
		return false, false
	}
}

func directionName(increase bool) string {
	if increase {
		return "increase"
	}
	return "decrease"
}
