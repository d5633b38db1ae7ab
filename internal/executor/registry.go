package executor

import (
	"context"
	"encoding/json"

	"github.com/shoplens-ai/catalog-assistant/internal/catalog"
	"github.com/shoplens-ai/catalog-assistant/internal/llm"
	"github.com/shoplens-ai/catalog-assistant/internal/model"
	"github.com/shoplens-ai/catalog-assistant/internal/resolver"
	"github.com/shoplens-ai/catalog-assistant/pkg/logger"
)

// Op is a catalog operation kind.
type Op string

const (
	OpAddProduct      Op = "add_product"
	OpUpdateProduct   Op = "update_product"
	OpSetDiscount     Op = "set_discount"
	OpDeleteProduct   Op = "delete_product"
	OpSearchProducts  Op = "search_products"
	OpBulkPriceUpdate Op = "bulk_price_update"
	OpBulkDeleteAll   Op = "bulk_delete_all"
)

// Request carries everything a handler needs for one invocation. Snapshot is
// the fresh per-command catalog state and is never mutated in place.
type Request struct {
	Snapshot           *model.Snapshot
	Command            string
	ClarifiedProductID string
}

// Handler validates arguments and performs one catalog mutation.
type Handler func(ctx context.Context, req *Request, args json.RawMessage) *model.ToolCallResult

// Executor is the typed registry mapping operation kinds to handlers.
type Executor struct {
	api      catalog.API
	res      *resolver.Resolver
	log      *logger.Logger
	handlers map[Op]Handler
}

// New creates an executor with all operation handlers registered.
func New(api catalog.API, res *resolver.Resolver, log *logger.Logger) *Executor {
	e := &Executor{
		api: api,
		res: res,
		log: log,
	}
	e.handlers = map[Op]Handler{
		OpAddProduct:      e.addProduct,
		OpUpdateProduct:   e.updateProduct,
		OpSetDiscount:     e.setDiscount,
		OpDeleteProduct:   e.deleteProduct,
		OpSearchProducts:  e.searchProducts,
		OpBulkPriceUpdate: e.bulkPriceUpdate,
		OpBulkDeleteAll:   e.bulkDeleteAll,
	}
	return e
}

// Execute dispatches a tool invocation to its handler. Unknown operations and
// malformed argument payloads are terminal for the turn.
func (e *Executor) Execute(ctx context.Context, op Op, args json.RawMessage, req *Request) *model.ToolCallResult {
	handler, ok := e.handlers[op]
	if !ok {
		return model.ErrResult(model.ErrCodeValidation, "неизвестная операция: "+string(op), "")
	}
	return handler(ctx, req, args)
}

// Tools returns the tool definitions offered to the model.
func (e *Executor) Tools() []llm.Tool {
	return []llm.Tool{
		{
			Name:        string(OpAddProduct),
			Description: "Добавить новый товар в каталог",
			Parameters: objSchema(map[string]any{
				"name":           strProp("Название товара"),
				"description":    strProp("Описание товара"),
				"price":          numProp("Цена товара"),
				"stock_quantity": intProp("Количество на складе"),
			}, "name"),
		},
		{
			Name:        string(OpUpdateProduct),
			Description: "Изменить цену, остаток или скидку товара",
			Parameters: objSchema(map[string]any{
				"product_id":          strProp("Идентификатор товара, если известен"),
				"product_name":        strProp("Название товара из команды"),
				"price":               numProp("Новая базовая цена"),
				"stock_quantity":      intProp("Новый остаток на складе"),
				"discount_percentage": numProp("Процент скидки; 0 снимает скидку"),
				"discount_duration":   strProp("Длительность скидки, например «3 дня»"),
			}),
		},
		{
			Name:        string(OpSetDiscount),
			Description: "Установить скидку на один товар",
			Parameters: objSchema(map[string]any{
				"product_id":   strProp("Идентификатор товара, если известен"),
				"product_name": strProp("Название товара из команды"),
				"percentage":   numProp("Процент скидки от 0 до 100"),
				"duration":     strProp("Длительность скидки, например «1 неделя»"),
			}, "percentage"),
		},
		{
			Name:        string(OpDeleteProduct),
			Description: "Удалить товар или несколько товаров",
			Parameters: objSchema(map[string]any{
				"product_id":   strProp("Идентификатор товара, если известен"),
				"product_ids":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Идентификаторы нескольких товаров"},
				"product_name": strProp("Название товара из команды"),
			}),
		},
		{
			Name:        string(OpSearchProducts),
			Description: "Найти товары в каталоге по запросу",
			Parameters: objSchema(map[string]any{
				"query": strProp("Поисковый запрос"),
			}, "query"),
		},
		{
			Name:        string(OpBulkPriceUpdate),
			Description: "Массово изменить цены всех товаров",
			Parameters: objSchema(map[string]any{
				"percentage":        numProp("Процент изменения цены"),
				"direction":         map[string]any{"type": "string", "enum": []string{"increase", "decrease"}, "description": "Направление изменения"},
				"duration":          strProp("Длительность скидки для снижения цен"),
				"excluded_products": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Товары, которые нужно исключить"},
			}, "percentage", "direction"),
		},
		{
			Name:        string(OpBulkDeleteAll),
			Description: "Удалить все товары магазина; требует подтверждения",
			Parameters: objSchema(map[string]any{
				"confirm": map[string]any{"type": "boolean", "description": "Явное подтверждение удаления"},
			}),
		},
	}
}

func objSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func strProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func numProp(desc string) map[string]any {
	return map[string]any{"type": "number", "description": desc}
}

func intProp(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}
