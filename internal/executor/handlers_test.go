package executor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoplens-ai/catalog-assistant/internal/catalog"
	"github.com/shoplens-ai/catalog-assistant/internal/model"
	"github.com/shoplens-ai/catalog-assistant/internal/resolver"
	"github.com/shoplens-ai/catalog-assistant/pkg/logger"
)

// fakeAPI records catalog mutations and echoes updates back onto the product.
type fakeAPI struct {
	products   []model.Product
	lastUpdate *catalog.ProductUpdate
	created    *catalog.ProductAttrs
	deletedIDs []string
	bulkReq    *catalog.BulkDiscountRequest
	err        error
}

func (f *fakeAPI) ListProducts(ctx context.Context, shopID string) ([]model.Product, error) {
	return f.products, f.err
}

func (f *fakeAPI) CreateProduct(ctx context.Context, shopID string, attrs catalog.ProductAttrs) (*model.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = &attrs
	return &model.Product{ID: "new", Name: attrs.Name, Price: attrs.Price, StockQuantity: attrs.StockQuantity}, nil
}

func (f *fakeAPI) UpdateProduct(ctx context.Context, productID string, attrs catalog.ProductUpdate) (*model.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
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
		if attrs.DiscountExpiresAt != nil {
			p.DiscountExpiresAt = attrs.DiscountExpiresAt
		}
		return &p, nil
	}
	return nil, &catalog.APIError{StatusCode: 404, Message: "not found"}
}

func (f *fakeAPI) DeleteProduct(ctx context.Context, productID string) error {
	if f.err != nil {
		return f.err
	}
	f.deletedIDs = append(f.deletedIDs, productID)
	return nil
}

func (f *fakeAPI) BulkDeleteAll(ctx context.Context, shopID string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return len(f.products), nil
}

func (f *fakeAPI) BulkDeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.deletedIDs = append(f.deletedIDs, ids...)
	return len(ids), nil
}

func (f *fakeAPI) ApplyBulkDiscount(ctx context.Context, shopID string, req catalog.BulkDiscountRequest) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.bulkReq = &req
	return len(f.products) - len(req.ExcludedIDs), nil
}

func newTestExecutor(api *fakeAPI) *Executor {
	return New(api, resolver.New(), logger.NewNop())
}

func testRequest(products []model.Product) *Request {
	return &Request{
		Snapshot: &model.Snapshot{ShopID: "shop-1", ShopName: "Тестовый", Products: products},
		Command:  "команда",
	}
}

func run(t *testing.T, e *Executor, op Op, args any, req *Request) *model.ToolCallResult {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	return e.Execute(context.Background(), op, raw, req)
}

func TestAddProductValidatesName(t *testing.T) {
	api := &fakeAPI{}
	e := newTestExecutor(api)

	res := run(t, e, OpAddProduct, AddProductArgs{Name: "аб", Price: 100}, testRequest(nil))
	require.NotNil(t, res.Err)
	assert.Equal(t, model.ErrCodeValidation, res.Err.Code)
	assert.Nil(t, api.created)
}

func TestAddProductPlaceholderPrice(t *testing.T) {
	api := &fakeAPI{}
	e := newTestExecutor(api)

	res := run(t, e, OpAddProduct, AddProductArgs{Name: "Чехол для iPhone"}, testRequest(nil))
	require.True(t, res.Success)
	require.NotNil(t, api.created)
	assert.Equal(t, PlaceholderPrice, api.created.Price)
}

func TestUpdateProductRequiresChanges(t *testing.T) {
	e := newTestExecutor(&fakeAPI{})

	res := run(t, e, OpUpdateProduct, UpdateProductArgs{ProductName: "Чехол"}, testRequest(nil))
	require.NotNil(t, res.Err)
	assert.Equal(t, model.ErrCodeValidation, res.Err.Code)
}

func TestSetDiscountComputesPriceAndKeepsOriginal(t *testing.T) {
	products := []model.Product{{ID: "p1", Name: "iPhone 12", Price: 999}}
	api := &fakeAPI{products: products}
	e := newTestExecutor(api)

	res := run(t, e, OpSetDiscount, SetDiscountArgs{ProductName: "iPhone 12", Percentage: 20}, testRequest(products))
	require.True(t, res.Success)
	assert.Equal(t, string(OpSetDiscount), res.Data.Action)

	require.NotNil(t, api.lastUpdate)
	require.NotNil(t, api.lastUpdate.Price)
	assert.Equal(t, 799.20, *api.lastUpdate.Price)
	require.NotNil(t, api.lastUpdate.OriginalPrice)
	assert.Equal(t, 999.0, *api.lastUpdate.OriginalPrice)
	require.NotNil(t, api.lastUpdate.DiscountPercentage)
	assert.Equal(t, 20.0, *api.lastUpdate.DiscountPercentage)
}

func TestSetDiscountWithDuration(t *testing.T) {
	products := []model.Product{{ID: "p1", Name: "Чехол", Price: 1000}}
	api := &fakeAPI{products: products}
	e := newTestExecutor(api)

	res := run(t, e, OpSetDiscount, SetDiscountArgs{ProductName: "Чехол", Percentage: 10, Duration: "3 дня"}, testRequest(products))
	require.True(t, res.Success)
	require.NotNil(t, api.lastUpdate.DiscountExpiresAt)
	expectedExpiry := time.Now().Add(72 * time.Hour)
	assert.WithinDuration(t, expectedExpiry, *api.lastUpdate.DiscountExpiresAt, time.Minute)
}

func TestSetDiscountBadDuration(t *testing.T) {
	products := []model.Product{{ID: "p1", Name: "Чехол", Price: 1000}}
	e := newTestExecutor(&fakeAPI{products: products})

	res := run(t, e, OpSetDiscount, SetDiscountArgs{ProductName: "Чехол", Percentage: 10, Duration: "навсегда"}, testRequest(products))
	require.NotNil(t, res.Err)
	assert.Equal(t, model.ErrCodeValidation, res.Err.Code)
}

func TestCombinedPriceAndDiscountUsesNewBase(t *testing.T) {
	products := []model.Product{{ID: "p1", Name: "Чехол", Price: 500}}
	api := &fakeAPI{products: products}
	e := newTestExecutor(api)

	price := 1000.0
	pct := 25.0
	res := run(t, e, OpUpdateProduct, UpdateProductArgs{ProductName: "Чехол", Price: &price, DiscountPercentage: &pct}, testRequest(products))
	require.True(t, res.Success)

	assert.Equal(t, 750.0, *api.lastUpdate.Price)
	assert.Equal(t, 1000.0, *api.lastUpdate.OriginalPrice)
	assert.Equal(t, 25.0, *api.lastUpdate.DiscountPercentage)
}

func TestZeroDiscountRestoresOriginalPrice(t *testing.T) {
	products := []model.Product{{ID: "p1", Name: "Чехол", Price: 799.20, DiscountPercentage: 20, OriginalPrice: 999}}
	api := &fakeAPI{products: products}
	e := newTestExecutor(api)

	zero := 0.0
	res := run(t, e, OpUpdateProduct, UpdateProductArgs{ProductName: "Чехол", DiscountPercentage: &zero}, testRequest(products))
	require.True(t, res.Success)

	assert.Equal(t, 999.0, *api.lastUpdate.Price)
	assert.Equal(t, 0.0, *api.lastUpdate.DiscountPercentage)
	assert.Equal(t, 0.0, *api.lastUpdate.OriginalPrice)
}

func TestBarePriceChangeClearsDiscount(t *testing.T) {
	products := []model.Product{{ID: "p1", Name: "Чехол", Price: 799.20, DiscountPercentage: 20, OriginalPrice: 999}}
	api := &fakeAPI{products: products}
	e := newTestExecutor(api)

	price := 1200.0
	res := run(t, e, OpUpdateProduct, UpdateProductArgs{ProductName: "Чехол", Price: &price}, testRequest(products))
	require.True(t, res.Success)

	assert.Equal(t, 1200.0, *api.lastUpdate.Price)
	require.NotNil(t, api.lastUpdate.DiscountPercentage)
	assert.Equal(t, 0.0, *api.lastUpdate.DiscountPercentage)
}

func TestNegativeStockRejected(t *testing.T) {
	products := []model.Product{{ID: "p1", Name: "Чехол", Price: 100}}
	e := newTestExecutor(&fakeAPI{products: products})

	qty := -5
	res := run(t, e, OpUpdateProduct, UpdateProductArgs{ProductName: "Чехол", StockQuantity: &qty}, testRequest(products))
	require.NotNil(t, res.Err)
	assert.Equal(t, model.ErrCodeValidation, res.Err.Code)
}

func TestStockConflictMapsToInsufficientStock(t *testing.T) {
	products := []model.Product{{ID: "p1", Name: "Чехол", Price: 100}}
	api := &fakeAPI{products: products, err: &catalog.APIError{StatusCode: 409, Message: "conflict"}}
	e := newTestExecutor(api)

	qty := 3
	res := run(t, e, OpUpdateProduct, UpdateProductArgs{ProductName: "Чехол", StockQuantity: &qty}, testRequest(products))
	require.NotNil(t, res.Err)
	assert.Equal(t, model.ErrCodeInsufficientStock, res.Err.Code)
}

func TestDeleteAmbiguousAsksClarification(t *testing.T) {
	products := []model.Product{
		{ID: "p1", Name: "iPhone 12", Price: 50000},
		{ID: "p2", Name: "iPhone 13", Price: 60000},
	}
	e := newTestExecutor(&fakeAPI{products: products})

	res := run(t, e, OpDeleteProduct, DeleteProductArgs{ProductName: "iPhone"}, testRequest(products))
	require.NotNil(t, res.Clarification)
	assert.Len(t, res.Clarification.Candidates, 2)
	assert.Equal(t, "команда", res.Clarification.OriginalCommand)
}

func TestDeleteWithClarifiedID(t *testing.T) {
	products := []model.Product{
		{ID: "p1", Name: "iPhone 12", Price: 50000},
		{ID: "p2", Name: "iPhone 13", Price: 60000},
	}
	api := &fakeAPI{products: products}
	e := newTestExecutor(api)

	req := testRequest(products)
	req.ClarifiedProductID = "p2"
	res := run(t, e, OpDeleteProduct, DeleteProductArgs{ProductName: "iPhone"}, req)
	require.True(t, res.Success)
	assert.Equal(t, []string{"p2"}, api.deletedIDs)
}

func TestDeleteManyByIDs(t *testing.T) {
	api := &fakeAPI{}
	e := newTestExecutor(api)

	res := run(t, e, OpDeleteProduct, DeleteProductArgs{ProductIDs: []string{"p1", "p2", "p3"}}, testRequest(nil))
	require.True(t, res.Success)
	assert.Equal(t, 3, res.Data.DeletedCount)
}

func TestSearchProducts(t *testing.T) {
	products := []model.Product{
		{ID: "p1", Name: "iPhone 12", Price: 50000},
		{ID: "p2", Name: "Чехол", Price: 990},
	}
	e := newTestExecutor(&fakeAPI{products: products})

	res := run(t, e, OpSearchProducts, SearchProductsArgs{Query: "чехол"}, testRequest(products))
	require.True(t, res.Success)
	require.Len(t, res.Data.Products, 1)
	assert.Equal(t, "p2", res.Data.Products[0].ID)
}

func TestBulkPriceUpdateNeedsConfirmation(t *testing.T) {
	products := []model.Product{
		{ID: "p1", Name: "iPhone 12", Price: 50000},
		{ID: "p2", Name: "Чехол", Price: 990},
	}
	api := &fakeAPI{products: products}
	e := newTestExecutor(api)

	res := run(t, e, OpBulkPriceUpdate, BulkPriceArgs{Percentage: 10, Direction: "decrease"}, testRequest(products))
	require.NotNil(t, res.Confirmation)
	assert.Equal(t, 2, res.Confirmation.AffectedCount)
	assert.Equal(t, DiscountTypePermanent, res.Confirmation.DiscountType)
	assert.Nil(t, api.bulkReq)
}

func TestBulkPriceDecreaseWithDurationIsTimer(t *testing.T) {
	products := []model.Product{{ID: "p1", Name: "Чехол", Price: 990}}
	e := newTestExecutor(&fakeAPI{products: products})

	res := run(t, e, OpBulkPriceUpdate, BulkPriceArgs{Percentage: 15, Direction: "decrease", Duration: "1 неделя"}, testRequest(products))
	require.NotNil(t, res.Confirmation)
	assert.Equal(t, DiscountTypeTimer, res.Confirmation.DiscountType)
	assert.Equal(t, 7*24*time.Hour, res.Confirmation.Duration)
}

func TestBulkPriceIncreaseIgnoresDuration(t *testing.T) {
	products := []model.Product{{ID: "p1", Name: "Чехол", Price: 990}}
	e := newTestExecutor(&fakeAPI{products: products})

	res := run(t, e, OpBulkPriceUpdate, BulkPriceArgs{Percentage: 15, Direction: "increase", Duration: "1 неделя"}, testRequest(products))
	require.NotNil(t, res.Confirmation)
	assert.Equal(t, DiscountTypePermanent, res.Confirmation.DiscountType)
	assert.Zero(t, res.Confirmation.Duration)
}

func TestBulkPriceFullDecreaseRejected(t *testing.T) {
	products := []model.Product{{ID: "p1", Name: "Чехол", Price: 990}}
	e := newTestExecutor(&fakeAPI{products: products})

	res := run(t, e, OpBulkPriceUpdate, BulkPriceArgs{Percentage: 100, Direction: "decrease"}, testRequest(products))
	require.NotNil(t, res.Err)
	assert.Equal(t, model.ErrCodeValidation, res.Err.Code)
}

func TestBulkPriceConfirmedExecutes(t *testing.T) {
	products := []model.Product{
		{ID: "p1", Name: "iPhone 12", Price: 50000},
		{ID: "p2", Name: "Чехол", Price: 990},
	}
	api := &fakeAPI{products: products}
	e := newTestExecutor(api)

	res := run(t, e, OpBulkPriceUpdate, BulkPriceArgs{Percentage: 10, Direction: "decrease", Confirm: true}, testRequest(products))
	require.True(t, res.Success)
	assert.Equal(t, 2, res.Data.UpdatedCount)
	require.NotNil(t, api.bulkReq)
	assert.Equal(t, "decrease", api.bulkReq.Direction)
}

func TestBulkDeleteAllNeedsConfirmation(t *testing.T) {
	products := []model.Product{
		{ID: "p1", Name: "iPhone 12", Price: 50000},
		{ID: "p2", Name: "Чехол", Price: 990},
	}
	e := newTestExecutor(&fakeAPI{products: products})

	res := run(t, e, OpBulkDeleteAll, BulkDeleteAllArgs{}, testRequest(products))
	require.NotNil(t, res.Confirmation)
	assert.Equal(t, string(OpBulkDeleteAll), res.Confirmation.Operation)
	assert.Equal(t, 2, res.Confirmation.AffectedCount)
}

func TestBulkDeleteAllConfirmed(t *testing.T) {
	products := []model.Product{
		{ID: "p1", Name: "iPhone 12", Price: 50000},
		{ID: "p2", Name: "Чехол", Price: 990},
	}
	e := newTestExecutor(&fakeAPI{products: products})

	res := run(t, e, OpBulkDeleteAll, BulkDeleteAllArgs{Confirm: true}, testRequest(products))
	require.True(t, res.Success)
	assert.Equal(t, 2, res.Data.DeletedCount)
}

func TestUnknownOperation(t *testing.T) {
	e := newTestExecutor(&fakeAPI{})

	res := e.Execute(context.Background(), Op("rename_shop"), json.RawMessage(`{}`), testRequest(nil))
	require.NotNil(t, res.Err)
	assert.Equal(t, model.ErrCodeValidation, res.Err.Code)
}
