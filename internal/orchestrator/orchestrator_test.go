package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoplens-ai/catalog-assistant/internal/catalog"
	"github.com/shoplens-ai/catalog-assistant/internal/executor"
	"github.com/shoplens-ai/catalog-assistant/internal/intent"
	"github.com/shoplens-ai/catalog-assistant/internal/llm"
	"github.com/shoplens-ai/catalog-assistant/internal/model"
	"github.com/shoplens-ai/catalog-assistant/internal/resolver"
	"github.com/shoplens-ai/catalog-assistant/internal/session"
	"github.com/shoplens-ai/catalog-assistant/internal/synthesizer"
	"github.com/shoplens-ai/catalog-assistant/pkg/logger"
)

// fakeCatalog implements catalog.API over an in-memory product list.
type fakeCatalog struct {
	products   []model.Product
	lastUpdate *catalog.ProductUpdate
	deletedIDs []string
	bulkAll    int
	listErr    error
}

func (f *fakeCatalog) ListProducts(ctx context.Context, shopID string) ([]model.Product, error) {
	return f.products, f.listErr
}

func (f *fakeCatalog) CreateProduct(ctx context.Context, shopID string, attrs catalog.ProductAttrs) (*model.Product, error) {
	return &model.Product{ID: "new", Name: attrs.Name, Price: attrs.Price, StockQuantity: attrs.StockQuantity}, nil
}

func (f *fakeCatalog) UpdateProduct(ctx context.Context, productID string, attrs catalog.ProductUpdate) (*model.Product, error) {
	f.lastUpdate = &attrs
	for i := range f.products {
		if f.products[i].ID != productID {
			continue
		}
		p := f.products[i]
		if attrs.Price != nil {
			p.Price = *attrs.Price
		}
		if attrs.StockQuantity != nil {
			p.StockQuantity = *attrs.StockQuantity
		}
		if attrs.DiscountPercentage != nil {
			p.DiscountPercentage = *attrs.DiscountPercentage
		}
		if attrs.OriginalPrice != nil {
			p.OriginalPrice = *attrs.OriginalPrice
		}
		return &p, nil
	}
	return nil, &catalog.APIError{StatusCode: 404, Message: "not found"}
}

func (f *fakeCatalog) DeleteProduct(ctx context.Context, productID string) error {
	f.deletedIDs = append(f.deletedIDs, productID)
	return nil
}

func (f *fakeCatalog) BulkDeleteAll(ctx context.Context, shopID string) (int, error) {
	f.bulkAll++
	return len(f.products), nil
}

func (f *fakeCatalog) BulkDeleteByIDs(ctx context.Context, ids []string) (int, error) {
	f.deletedIDs = append(f.deletedIDs, ids...)
	return len(ids), nil
}

func (f *fakeCatalog) ApplyBulkDiscount(ctx context.Context, shopID string, req catalog.BulkDiscountRequest) (int, error) {
	return len(f.products) - len(req.ExcludedIDs), nil
}

// fakeLLM replays scripted responses in order.
type fakeLLM struct {
	responses []*llm.ChatResponse
	err       error
	calls     int
}

func (f *fakeLLM) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return &llm.ChatResponse{Content: "Готово.", FinishReason: llm.FinishReasonStop}, nil
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func (f *fakeLLM) ChatStream(ctx context.Context, req *llm.ChatRequest, cb llm.StreamCallback) (*llm.ChatResponse, error) {
	resp, err := f.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Content != "" {
		if err := cb(resp.Content); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (f *fakeLLM) Name() string     { return "fake" }
func (f *fakeLLM) Models() []string { return nil }

func toolCallResponse(name string, args any) *llm.ChatResponse {
	raw, _ := json.Marshal(args)
	return &llm.ChatResponse{
		FinishReason: llm.FinishReasonToolCalls,
		ToolCalls:    []llm.ToolCall{{ID: "call-1", Name: name, Arguments: string(raw)}},
	}
}

func textResponse(text string) *llm.ChatResponse {
	return &llm.ChatResponse{Content: text, FinishReason: llm.FinishReasonStop}
}

type fixture struct {
	orch  *Orchestrator
	api   *fakeCatalog
	llm   *fakeLLM
	store *session.Store
}

func newFixture(products []model.Product, client *fakeLLM) *fixture {
	api := &fakeCatalog{products: products}
	res := resolver.New()
	log := logger.NewNop()
	exec := executor.New(api, res, log)
	store := session.NewStore()
	detector := intent.NewDetector(res)
	synth := synthesizer.New(nil, log)

	var c llm.Client
	if client != nil {
		c = client
	}
	return &fixture{
		orch:  New(api, exec, store, detector, c, synth, nil, "gpt-4o", log),
		api:   api,
		llm:   client,
		store: store,
	}
}

func request(text string) *model.CommandRequest {
	return &model.CommandRequest{
		ShopID:    "shop-1",
		ShopName:  "Тестовый",
		SessionID: "sess-1",
		Text:      text,
	}
}

func TestDiscountFastPathAppliesWithoutModel(t *testing.T) {
	f := newFixture([]model.Product{
		{ID: "p1", Name: "iPhone", Price: 999},
		{ID: "p2", Name: "Чехол", Price: 500},
	}, &fakeLLM{})

	result := f.orch.ProcessCommand(context.Background(), request("скидка 20% на iPhone"))
	require.True(t, result.Success)
	assert.Equal(t, 0, f.llm.calls)

	require.NotNil(t, f.api.lastUpdate)
	require.NotNil(t, f.api.lastUpdate.Price)
	assert.Equal(t, 799.20, *f.api.lastUpdate.Price)
	assert.Equal(t, 999.0, *f.api.lastUpdate.OriginalPrice)
	assert.Equal(t, 20.0, *f.api.lastUpdate.DiscountPercentage)
}

func TestStockFastPathAppliesWithoutModel(t *testing.T) {
	f := newFixture([]model.Product{
		{ID: "p1", Name: "Чехол", Price: 500, StockQuantity: 3},
	}, &fakeLLM{})

	result := f.orch.ProcessCommand(context.Background(), request("остаток Чехол 50 шт"))
	require.True(t, result.Success)
	assert.Equal(t, 0, f.llm.calls)

	require.NotNil(t, f.api.lastUpdate)
	require.NotNil(t, f.api.lastUpdate.StockQuantity)
	assert.Equal(t, 50, *f.api.lastUpdate.StockQuantity)
}

func TestAmbiguousDeleteClarifiesAndResolves(t *testing.T) {
	client := &fakeLLM{responses: []*llm.ChatResponse{
		toolCallResponse("delete_product", map[string]string{"product_name": "iPhone"}),
		toolCallResponse("delete_product", map[string]string{"product_name": "iPhone"}),
	}}
	f := newFixture([]model.Product{
		{ID: "p1", Name: "iPhone 12", Price: 50000},
		{ID: "p2", Name: "iPhone 13", Price: 60000},
	}, client)

	result := f.orch.ProcessCommand(context.Background(), request("удали iPhone"))
	require.NotNil(t, result.NeedsClarification)
	require.Len(t, result.NeedsClarification.Candidates, 2)
	assert.Equal(t, "удали iPhone", result.NeedsClarification.OriginalCommand)
	assert.Empty(t, f.api.deletedIDs)

	// Picking option 1 replays the original command against that product.
	result = f.orch.ProcessCommand(context.Background(), request("1"))
	require.True(t, result.Success)
	assert.Equal(t, []string{"p1"}, f.api.deletedIDs)
}

func TestClarificationByProductID(t *testing.T) {
	client := &fakeLLM{responses: []*llm.ChatResponse{
		toolCallResponse("delete_product", map[string]string{"product_name": "iPhone"}),
		toolCallResponse("delete_product", map[string]string{"product_name": "iPhone"}),
	}}
	f := newFixture([]model.Product{
		{ID: "p1", Name: "iPhone 12", Price: 50000},
		{ID: "p2", Name: "iPhone 13", Price: 60000},
	}, client)

	result := f.orch.ProcessCommand(context.Background(), request("удали iPhone"))
	require.NotNil(t, result.NeedsClarification)

	req := request("удали iPhone")
	req.ClarifiedProductID = "p2"
	result = f.orch.ProcessCommand(context.Background(), req)
	require.True(t, result.Success)
	assert.Equal(t, []string{"p2"}, f.api.deletedIDs)
}

func TestBulkDeleteConfirmFlow(t *testing.T) {
	client := &fakeLLM{responses: []*llm.ChatResponse{
		toolCallResponse("bulk_delete_all", map[string]any{}),
	}}
	f := newFixture([]model.Product{
		{ID: "p1", Name: "iPhone 12", Price: 50000},
		{ID: "p2", Name: "Чехол", Price: 990},
	}, client)

	result := f.orch.ProcessCommand(context.Background(), request("удали все товары"))
	require.NotNil(t, result.NeedsConfirmation)
	assert.Equal(t, 2, result.NeedsConfirmation.AffectedCount)
	assert.Equal(t, 0, f.api.bulkAll)

	result = f.orch.ProcessCommand(context.Background(), request("да"))
	require.True(t, result.Success)
	assert.Equal(t, 1, f.api.bulkAll)
	assert.Equal(t, 1, f.llm.calls)
}

func TestBulkDeleteDeclined(t *testing.T) {
	client := &fakeLLM{responses: []*llm.ChatResponse{
		toolCallResponse("bulk_delete_all", map[string]any{}),
	}}
	f := newFixture([]model.Product{{ID: "p1", Name: "Чехол", Price: 990}}, client)

	result := f.orch.ProcessCommand(context.Background(), request("удали все товары"))
	require.NotNil(t, result.NeedsConfirmation)

	result = f.orch.ProcessCommand(context.Background(), request("нет"))
	require.True(t, result.Success)
	assert.Contains(t, result.Message, "отменена")
	assert.Equal(t, 0, f.api.bulkAll)
}

func TestConfirmEndpointAcceptsPending(t *testing.T) {
	client := &fakeLLM{responses: []*llm.ChatResponse{
		toolCallResponse("bulk_delete_all", map[string]any{}),
	}}
	f := newFixture([]model.Product{{ID: "p1", Name: "Чехол", Price: 990}}, client)

	result := f.orch.ProcessCommand(context.Background(), request("удали все товары"))
	require.NotNil(t, result.NeedsConfirmation)

	result = f.orch.ConfirmPending(context.Background(), request(""), true)
	require.True(t, result.Success)
	assert.Equal(t, 1, f.api.bulkAll)
}

func TestConfirmEndpointWithoutPending(t *testing.T) {
	f := newFixture(nil, &fakeLLM{})

	result := f.orch.ConfirmPending(context.Background(), request(""), true)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "Нет операции")
}

func TestFreeTextQuestion(t *testing.T) {
	client := &fakeLLM{responses: []*llm.ChatResponse{
		textResponse("В каталоге два товара: iPhone 12 и Чехол."),
	}}
	f := newFixture([]model.Product{
		{ID: "p1", Name: "iPhone 12", Price: 50000},
		{ID: "p2", Name: "Чехол", Price: 990},
	}, client)

	result := f.orch.ProcessCommand(context.Background(), request("что у меня в каталоге?"))
	require.True(t, result.Success)
	assert.Equal(t, "В каталоге два товара: iPhone 12 и Чехол.", result.Message)
}

func TestRateLimitRejectsEleventhCommand(t *testing.T) {
	f := newFixture([]model.Product{{ID: "p1", Name: "Чехол", Price: 990}}, &fakeLLM{})

	for i := 0; i < session.RateLimit; i++ {
		result := f.orch.ProcessCommand(context.Background(), request("остаток Чехол 50 шт"))
		require.True(t, result.Success, "command %d", i)
	}

	result := f.orch.ProcessCommand(context.Background(), request("остаток Чехол 50 шт"))
	assert.False(t, result.Success)
	assert.True(t, result.Retry)
}

func TestBusySessionRejected(t *testing.T) {
	f := newFixture([]model.Product{{ID: "p1", Name: "Чехол", Price: 990}}, &fakeLLM{})

	require.True(t, f.store.BeginProcessing("sess-1"))
	defer f.store.EndProcessing("sess-1")

	result := f.orch.ProcessCommand(context.Background(), request("остаток Чехол 50 шт"))
	assert.False(t, result.Success)
	assert.True(t, result.Retry)
}

func TestModelUnauthorizedFallsBackToMenu(t *testing.T) {
	client := &fakeLLM{err: &openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"}}
	f := newFixture([]model.Product{{ID: "p1", Name: "Чехол", Price: 990}}, client)

	result := f.orch.ProcessCommand(context.Background(), request("переименуй магазин"))
	assert.False(t, result.Success)
	assert.True(t, result.FallbackToMenu)
}

func TestNoModelFallsBackToMenu(t *testing.T) {
	f := newFixture([]model.Product{{ID: "p1", Name: "Чехол", Price: 990}}, nil)

	result := f.orch.ProcessCommand(context.Background(), request("переименуй магазин"))
	assert.False(t, result.Success)
	assert.True(t, result.FallbackToMenu)
}

func TestEmptyCommandRejected(t *testing.T) {
	f := newFixture(nil, &fakeLLM{})

	result := f.orch.ProcessCommand(context.Background(), request("   \t "))
	assert.False(t, result.Success)
	assert.Equal(t, 0, f.llm.calls)
}

func TestCatalogUnavailable(t *testing.T) {
	f := newFixture(nil, &fakeLLM{})
	f.api.listErr = &catalog.APIError{StatusCode: 503, Message: "down"}

	result := f.orch.ProcessCommand(context.Background(), request("остаток Чехол 50 шт"))
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "недоступен")
}

func TestDiscountContextFollowUp(t *testing.T) {
	f := newFixture([]model.Product{
		{ID: "p1", Name: "Чехол", Price: 500},
		{ID: "p2", Name: "iPhone", Price: 999},
	}, &fakeLLM{})

	result := f.orch.ProcessCommand(context.Background(), request("остаток Чехол 20 шт"))
	require.True(t, result.Success)

	// The follow-up refers to the last touched product by pronoun.
	result = f.orch.ProcessCommand(context.Background(), request("сделай на него скидку 10%"))
	require.True(t, result.Success)
	assert.Equal(t, 0, f.llm.calls)
	require.NotNil(t, f.api.lastUpdate.DiscountPercentage)
	assert.Equal(t, 10.0, *f.api.lastUpdate.DiscountPercentage)
	assert.Equal(t, 450.0, *f.api.lastUpdate.Price)
}

func TestHistoryRecordedForTerminalOutcomes(t *testing.T) {
	f := newFixture([]model.Product{{ID: "p1", Name: "Чехол", Price: 990}}, &fakeLLM{})

	f.orch.ProcessCommand(context.Background(), request("остаток Чехол 50 шт"))

	history := f.store.History("sess-1")
	require.Len(t, history, 2)
	assert.Equal(t, model.RoleUser, history[0].Role)
	assert.Equal(t, "остаток Чехол 50 шт", history[0].Content)
	assert.Equal(t, model.RoleAssistant, history[1].Role)
}

func TestPendingClarificationStaysOutOfHistory(t *testing.T) {
	client := &fakeLLM{responses: []*llm.ChatResponse{
		toolCallResponse("delete_product", map[string]string{"product_name": "iPhone"}),
	}}
	f := newFixture([]model.Product{
		{ID: "p1", Name: "iPhone 12", Price: 50000},
		{ID: "p2", Name: "iPhone 13", Price: 60000},
	}, client)

	result := f.orch.ProcessCommand(context.Background(), request("удали iPhone"))
	require.NotNil(t, result.NeedsClarification)
	assert.Empty(t, f.store.History("sess-1"))
}
