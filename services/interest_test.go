package services

import (
	"context"
	"testing"

	"github.com/Kousuke-irie/campus-market-backend/apperrors"
	"github.com/Kousuke-irie/campus-market-backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterestSync_Diff(t *testing.T) {
	db := newTestDB(t)
	svc := NewInterestService(db)
	ctx := context.Background()
	u := createUser(t, db, "an")
	var cats []models.Category
	require.NoError(t, db.Order("category_name ASC").Limit(3).Find(&cats).Error)

	got, err := svc.Sync(ctx, u.ID, []InterestInput{
		{CategoryID: cats[0].ID, Keywords: []string{" Laptop ", "laptop", "SẠC"}},
		{CategoryID: cats[1].ID},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	byCat := map[string]models.UserInterest{}
	for _, in := range got {
		byCat[in.CategoryID] = in
	}
	assert.Equal(t, []string{"laptop", "sạc"}, []string(byCat[cats[0].ID].Keywords))
	assert.Empty(t, byCat[cats[1].ID].Keywords)
	keptID := byCat[cats[0].ID].ID

	got, err = svc.Sync(ctx, u.ID, []InterestInput{
		{CategoryID: cats[0].ID, Keywords: []string{"tai nghe"}},
		{CategoryID: cats[2].ID, Keywords: []string{"quạt"}},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	byCat = map[string]models.UserInterest{}
	for _, in := range got {
		byCat[in.CategoryID] = in
	}
	assert.Equal(t, keptID, byCat[cats[0].ID].ID)
	assert.Equal(t, []string{"tai nghe"}, []string(byCat[cats[0].ID].Keywords))
	_, removed := byCat[cats[1].ID]
	assert.False(t, removed)
}

func TestInterestSync_UnknownCategoryRollsBack(t *testing.T) {
	db := newTestDB(t)
	svc := NewInterestService(db)
	ctx := context.Background()
	u := createUser(t, db, "an")
	cat := firstCategory(t, db)

	_, err := svc.Sync(ctx, u.ID, []InterestInput{
		{CategoryID: cat.ID},
		{CategoryID: "99999999-9999-9999-9999-999999999999"},
	})
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	list, err := svc.List(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.Sync(ctx, u.ID, []InterestInput{{CategoryID: ""}})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
}
