package executor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shoplens-ai/catalog-assistant/internal/catalog"
	"github.com/shoplens-ai/catalog-assistant/internal/model"
	"github.com/shoplens-ai/catalog-assistant/internal/resolver"
)

// PlaceholderPrice substitutes an omitted or non-positive creation price so
// the catalog's positive-price constraint cannot reject the product.
const PlaceholderPrice = 1.00

// AddProductArgs are the arguments for add_product.
type AddProductArgs struct {
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	Price         float64 `json:"price"`
	StockQuantity int     `json:"stock_quantity"`
}

// UpdateProductArgs are the arguments for update_product.
type UpdateProductArgs struct {
	ProductID          string   `json:"product_id"`
	ProductName        string   `json:"product_name"`
	Price              *float64 `json:"price"`
	StockQuantity      *int     `json:"stock_quantity"`
	DiscountPercentage *float64 `json:"discount_percentage"`
	DiscountDuration   string   `json:"discount_duration"`
}

// SetDiscountArgs are the arguments for set_discount.
type SetDiscountArgs struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Percentage  float64 `json:"percentage"`
	Duration    string  `json:"duration"`
}

// DeleteProductArgs are the arguments for delete_product.
type DeleteProductArgs struct {
	ProductID   string   `json:"product_id"`
	ProductIDs  []string `json:"product_ids"`
	ProductName string   `json:"product_name"`
}

// SearchProductsArgs are the arguments for search_products.
type SearchProductsArgs struct {
	Query string `json:"query"`
}

func (e *Executor) addProduct(ctx context.Context, req *Request, raw json.RawMessage) *model.ToolCallResult {
	var args AddProductArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return model.ErrResult(model.ErrCodeValidation, "не удалось разобрать аргументы операции", "")
	}

	args.Name = strings.TrimSpace(args.Name)
	if len([]rune(args.Name)) < 3 {
		return model.ErrResult(model.ErrCodeValidation, "название товара должно содержать минимум 3 символа", "name")
	}
	if args.Price <= 0 {
		e.log.Warn("creating product with placeholder price",
			zap.String("name", args.Name),
			zap.Float64("requested_price", args.Price),
		)
		args.Price = PlaceholderPrice
	}
	if args.StockQuantity < 0 {
		args.StockQuantity = 0
	}

	product, err := e.api.CreateProduct(ctx, req.Snapshot.ShopID, catalog.ProductAttrs{
		Name:          args.Name,
		Description:   args.Description,
		Price:         Round2(args.Price),
		StockQuantity: args.StockQuantity,
	})
	if err != nil {
		return apiErrResult(err)
	}
	return model.OKResult(&model.ResultData{Action: string(OpAddProduct), Product: product})
}

func (e *Executor) updateProduct(ctx context.Context, req *Request, raw json.RawMessage) *model.ToolCallResult {
	var args UpdateProductArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return model.ErrResult(model.ErrCodeValidation, "не удалось разобрать аргументы операции", "")
	}
	if args.Price == nil && args.StockQuantity == nil && args.DiscountPercentage == nil {
		return model.ErrResult(model.ErrCodeValidation, "не указано, что нужно изменить", "")
	}

	target, res := e.resolveTarget(string(OpUpdateProduct), args.ProductID, args.ProductName, req)
	if res != nil {
		return res
	}

	update, errResult := e.buildUpdate(target, &args)
	if errResult != nil {
		return errResult
	}

	product, err := e.api.UpdateProduct(ctx, target.ID, *update)
	if err != nil {
		return stockAwareErrResult(err, args.StockQuantity != nil)
	}
	return model.OKResult(&model.ResultData{Action: string(OpUpdateProduct), Product: product})
}

// buildUpdate computes the mutation payload. Price and discount are mutually
// redefining: a combined update applies the discount to the new base price
// and persists the pre-discount price separately; discount 0 restores from
// the stored original; a bare price change clears an active discount.
func (e *Executor) buildUpdate(target *model.Product, args *UpdateProductArgs) (*catalog.ProductUpdate, *model.ToolCallResult) {
	update := &catalog.ProductUpdate{}

	if args.StockQuantity != nil {
		if *args.StockQuantity < 0 {
			return nil, model.ErrResult(model.ErrCodeValidation, "остаток не может быть отрицательным", "stock_quantity")
		}
		update.StockQuantity = args.StockQuantity
	}

	switch {
	case args.DiscountPercentage != nil && *args.DiscountPercentage > 0:
		pct := *args.DiscountPercentage
		if pct > 100 {
			return nil, model.ErrResult(model.ErrCodeValidation, "процент скидки не может превышать 100", "discount_percentage")
		}
		base := target.BasePrice()
		if args.Price != nil {
			if *args.Price <= 0 {
				return nil, model.ErrResult(model.ErrCodeValidation, "цена должна быть положительной", "price")
			}
			base = *args.Price
		}
		discounted := ApplyDiscount(base, pct)
		update.Price = &discounted
		update.DiscountPercentage = &pct
		update.OriginalPrice = &base

		if args.DiscountDuration != "" {
			d, err := ParseDuration(args.DiscountDuration)
			if err != nil {
				return nil, model.ErrResult(model.ErrCodeValidation, err.Error(), "discount_duration")
			}
			expires := time.Now().Add(d)
			update.DiscountExpiresAt = &expires
		}

	case args.DiscountPercentage != nil:
		// Zero percentage removes the discount: price restores from the
		// stored original (or an explicitly supplied new price) and both
		// the percentage and its expiry are cleared.
		restored := target.BasePrice()
		if args.Price != nil && *args.Price > 0 {
			restored = *args.Price
		}
		restored = Round2(restored)
		zero := 0.0
		update.Price = &restored
		update.DiscountPercentage = &zero
		update.OriginalPrice = &zero

	case args.Price != nil:
		if *args.Price <= 0 {
			return nil, model.ErrResult(model.ErrCodeValidation, "цена должна быть положительной", "price")
		}
		price := Round2(*args.Price)
		update.Price = &price
		if target.HasDiscount() {
			zero := 0.0
			update.DiscountPercentage = &zero
			update.OriginalPrice = &zero
		}
	}

	return update, nil
}

func (e *Executor) setDiscount(ctx context.Context, req *Request, raw json.RawMessage) *model.ToolCallResult {
	var args SetDiscountArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return model.ErrResult(model.ErrCodeValidation, "не удалось разобрать аргументы операции", "")
	}
	if args.Percentage < 0 {
		return model.ErrResult(model.ErrCodeValidation, "процент скидки должен быть больше нуля", "percentage")
	}

	pct := args.Percentage
	result := e.updateProductArgs(ctx, req, &UpdateProductArgs{
		ProductID:          args.ProductID,
		ProductName:        args.ProductName,
		DiscountPercentage: &pct,
		DiscountDuration:   args.Duration,
	})
	if result.Success {
		result.Data.Action = string(OpSetDiscount)
	}
	return result
}

func (e *Executor) updateProductArgs(ctx context.Context, req *Request, args *UpdateProductArgs) *model.ToolCallResult {
	raw, _ := json.Marshal(args)
	return e.updateProduct(ctx, req, raw)
}

func (e *Executor) deleteProduct(ctx context.Context, req *Request, raw json.RawMessage) *model.ToolCallResult {
	var args DeleteProductArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return model.ErrResult(model.ErrCodeValidation, "не удалось разобрать аргументы операции", "")
	}

	if len(args.ProductIDs) > 1 {
		count, err := e.api.BulkDeleteByIDs(ctx, args.ProductIDs)
		if err != nil {
			return apiErrResult(err)
		}
		return model.OKResult(&model.ResultData{Action: string(OpDeleteProduct), DeletedCount: count})
	}
	if len(args.ProductIDs) == 1 && args.ProductID == "" {
		args.ProductID = args.ProductIDs[0]
	}

	target, res := e.resolveTarget(string(OpDeleteProduct), args.ProductID, args.ProductName, req)
	if res != nil {
		return res
	}

	if err := e.api.DeleteProduct(ctx, target.ID); err != nil {
		return apiErrResult(err)
	}
	return model.OKResult(&model.ResultData{
		Action:       string(OpDeleteProduct),
		Product:      target,
		DeletedCount: 1,
	})
}

func (e *Executor) searchProducts(ctx context.Context, req *Request, raw json.RawMessage) *model.ToolCallResult {
	var args SearchProductsArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return model.ErrResult(model.ErrCodeValidation, "не удалось разобрать аргументы операции", "")
	}
	if strings.TrimSpace(args.Query) == "" {
		return model.ErrResult(model.ErrCodeValidation, "пустой поисковый запрос", "query")
	}

	matches := e.res.Rank(args.Query, req.Snapshot.Products, resolver.ThresholdLoose)
	if len(matches) == 0 {
		return model.ErrResult(model.ErrCodeProductsNotFound, "по запросу «"+args.Query+"» ничего не найдено", "query")
	}
	products := make([]model.Product, len(matches))
	for i, m := range matches {
		products[i] = m.Product
	}
	return model.OKResult(&model.ResultData{
		Action:   string(OpSearchProducts),
		Products: products,
		Query:    args.Query,
	})
}

// resolveTarget picks the operation target: an already-clarified id skips
// fuzzy resolution entirely.
func (e *Executor) resolveTarget(operation, productID, productName string, req *Request) (*model.Product, *model.ToolCallResult) {
	id := req.ClarifiedProductID
	if id == "" {
		id = productID
	}
	if id != "" {
		if p := req.Snapshot.FindByID(id); p != nil {
			return p, nil
		}
		return nil, model.ErrResult(model.ErrCodeProductNotFound, "товар не найден в каталоге", "product_id")
	}

	if strings.TrimSpace(productName) == "" {
		return nil, model.ErrResult(model.ErrCodeValidation, "не указан товар", "product_name")
	}

	res := e.res.Resolve(operation, productName, req.Snapshot.Products)
	if res.Success {
		return res.Data.Product, nil
	}
	if res.Clarification != nil {
		res.Clarification.OriginalCommand = req.Command
	}
	return nil, res
}

func apiErrResult(err error) *model.ToolCallResult {
	var apiErr *catalog.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsValidation():
			return model.ErrResult(model.ErrCodeValidation, apiErr.Message, apiErr.Field)
		case apiErr.IsNotFound():
			return model.ErrResult(model.ErrCodeProductNotFound, "товар не найден", "")
		default:
			return model.ErrResult(model.ErrCodeAPI, apiErr.Message, "")
		}
	}
	return model.ErrResult(model.ErrCodeAPI, "каталог временно недоступен", "")
}

// stockAwareErrResult maps a conflict on a stock update to insufficient stock.
func stockAwareErrResult(err error, stockUpdate bool) *model.ToolCallResult {
	var apiErr *catalog.APIError
	if stockUpdate && errors.As(err, &apiErr) && apiErr.StatusCode == 409 {
		return model.ErrResult(model.ErrCodeInsufficientStock, "недостаточно товара на складе", "stock_quantity")
	}
	return apiErrResult(err)
}
