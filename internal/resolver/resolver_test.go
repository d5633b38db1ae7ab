package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoplens-ai/catalog-assistant/internal/model"
)

func catalog() []model.Product {
	return []model.Product{
		{ID: "p1", Name: "iPhone 12", Price: 50000},
		{ID: "p2", Name: "iPhone 13", Price: 60000},
		{ID: "p3", Name: "Чехол для iPhone", Price: 990},
		{ID: "p4", Name: "Наушники AirPods", Price: 12000},
	}
}

func TestScoreContainment(t *testing.T) {
	r := New()

	assert.Equal(t, 1.0, r.Score("iphone 12", "iPhone 12"))
	assert.Equal(t, 1.0, r.Score("чехол", "Чехол для iPhone"))
	assert.Less(t, r.Score("телевизор", "Наушники AirPods"), ThresholdStrict)
}

func TestResolveSingleMatch(t *testing.T) {
	r := New()

	res := r.Resolve("delete_product", "наушники", catalog())
	require.True(t, res.Success)
	assert.Equal(t, "p4", res.Data.Product.ID)
}

func TestResolveAmbiguousAsksClarification(t *testing.T) {
	r := New()

	res := r.Resolve("delete_product", "iPhone", catalog())
	require.False(t, res.Success)
	require.NotNil(t, res.Clarification)
	require.Len(t, res.Clarification.Candidates, 3)
	assert.Equal(t, "delete_product", res.Clarification.Operation)
}

func TestResolveNotFound(t *testing.T) {
	r := New()

	res := r.Resolve("delete_product", "телевизор", catalog())
	require.NotNil(t, res.Err)
	assert.Equal(t, model.ErrCodeProductNotFound, res.Err.Code)
}

func TestResolveCandidateCap(t *testing.T) {
	r := New()

	var products []model.Product
	for i := 0; i < 8; i++ {
		products = append(products, model.Product{ID: string(rune('a' + i)), Name: "iPhone"})
	}
	res := r.Resolve("set_discount", "iPhone", products)
	require.NotNil(t, res.Clarification)
	assert.Len(t, res.Clarification.Candidates, MaxCandidates)
}

func TestRankOrdersByScore(t *testing.T) {
	r := New()

	matches := r.Rank("iphone 13", catalog(), ThresholdLoose)
	require.NotEmpty(t, matches)
	assert.Equal(t, "p2", matches[0].Product.ID)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
}

func TestResolveExclusions(t *testing.T) {
	r := New()

	ids, unmatched := r.ResolveExclusions([]string{"чехол", "трюм"}, catalog())
	assert.Equal(t, []string{"p3"}, ids)
	assert.Equal(t, []string{"трюм"}, unmatched)
}

func TestResolveExclusionsDeduplicates(t *testing.T) {
	r := New()

	ids, unmatched := r.ResolveExclusions([]string{"наушники", "AirPods"}, catalog())
	assert.Equal(t, []string{"p4"}, ids)
	assert.Empty(t, unmatched)
}
