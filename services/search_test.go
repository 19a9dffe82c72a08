package services

import (
	"context"
	"testing"
	"time"

	"github.com/Kousuke-irie/campus-market-backend/apperrors"
	"github.com/Kousuke-irie/campus-market-backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_FiltersAndSort(t *testing.T) {
	db := newTestDB(t)
	posts := NewPostService(db, nil)
	svc := NewSearchService(db, posts)
	ctx := context.Background()
	a := createUser(t, db, "an")
	createPost(t, db, a, "Sách cũ Giải tích", models.TransactionSell, price(50000))
	createPost(t, db, a, "Sách Vật lý đại cương", models.TransactionSell, price(30000))
	createPost(t, db, a, "Tai nghe Sony", models.TransactionSell, price(400000))
	createPost(t, db, a, "Sách tặng", models.TransactionFree, nil)

	res, err := svc.Search(ctx, "", SearchParams{Keyword: "SÁCH", SortBy: "price_asc"})
	require.NoError(t, err)
	assert.True(t, res.HasResults)
	assert.Equal(t, int64(3), res.Total)

	res, err = svc.Search(ctx, "", SearchParams{Keyword: "sách", TransactionType: models.TransactionSell, SortBy: "price_asc"})
	require.NoError(t, err)
	require.Equal(t, int64(2), res.Total)
	assert.Equal(t, "Sách Vật lý đại cương", res.Items[0].Title)
	assert.Equal(t, "Sách cũ Giải tích", res.Items[1].Title)

	res, err = svc.Search(ctx, "", SearchParams{MinPrice: price(40000), MaxPrice: price(500000), SortBy: "price_desc"})
	require.NoError(t, err)
	require.Equal(t, int64(2), res.Total)
	assert.Equal(t, "Tai nghe Sony", res.Items[0].Title)

	res, err = svc.Search(ctx, "", SearchParams{Keyword: "xe đạp", TimeRange: "7days"})
	require.NoError(t, err)
	assert.False(t, res.HasResults)
	assert.NotNil(t, res.Items)

	_, err = svc.Search(ctx, "", SearchParams{SortBy: "popular"})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
	_, err = svc.Search(ctx, "", SearchParams{TimeRange: "1year"})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
	_, err = svc.Search(ctx, "", SearchParams{MinPrice: price(10), MaxPrice: price(5)})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
}

func TestSearch_HistoryAndSuggestions(t *testing.T) {
	db := newTestDB(t)
	svc := NewSearchService(db, NewPostService(db, nil))
	ctx := context.Background()
	a := createUser(t, db, "an")
	createPost(t, db, a, "laptop dell", models.TransactionSell, price(7000000))
	createPost(t, db, a, "laptop asus", models.TransactionSell, price(6000000))

	_, err := svc.Search(ctx, a.ID, SearchParams{Keyword: "laptop"})
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		h, err := svc.History(ctx, a.ID)
		return err == nil && len(h) == 1
	}, time.Second, 10*time.Millisecond)

	_, err = svc.Search(ctx, a.ID, SearchParams{Keyword: "  "})
	require.NoError(t, err)

	suggestions, err := svc.Suggestions(ctx, "LAP")
	require.NoError(t, err)
	assert.Equal(t, []string{"laptop asus", "laptop dell"}, suggestions)

	empty, err := svc.Suggestions(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, svc.ClearHistory(ctx, a.ID))
	h, err := svc.History(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, h)
}
