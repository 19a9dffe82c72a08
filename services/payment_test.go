package services

import (
	"context"
	"errors"
	"testing"

	"github.com/Kousuke-irie/campus-market-backend/apperrors"
	"github.com/Kousuke-irie/campus-market-backend/models"
	"github.com/Kousuke-irie/campus-market-backend/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	amount   int64
	metadata map[string]string
	err      error
}

func (f *fakeProvider) CreateIntent(ctx context.Context, amount int64, metadata map[string]string) (*payment.Intent, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.amount = amount
	f.metadata = metadata
	return &payment.Intent{ID: "pi_1", ClientSecret: "pi_1_secret", Amount: amount, Currency: "vnd"}, nil
}

func TestCreatePostIntent(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{}
	svc := NewPaymentService(db, provider)
	ctx := context.Background()
	seller := createUser(t, db, "seller")
	buyer := createUser(t, db, "buyer")
	sell := createPost(t, db, seller, "Sách cũ", models.TransactionSell, price(50000))
	free := createPost(t, db, seller, "Sách tặng", models.TransactionFree, nil)

	intent, err := svc.CreatePostIntent(ctx, buyer.ID, sell.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret", intent.ClientSecret)
	assert.Equal(t, int64(50000), provider.amount)
	assert.Equal(t, sell.ID, provider.metadata["post_id"])

	_, err = svc.CreatePostIntent(ctx, seller.ID, sell.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeConflict))
	_, err = svc.CreatePostIntent(ctx, buyer.ID, free.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeConflict))
	_, err = svc.CreatePostIntent(ctx, buyer.ID, "cccccccc-cccc-cccc-cccc-cccccccccccc")
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	_, err = NewPostService(db, nil).Remove(ctx, seller.ID, sell.ID, RemoveActionDelete)
	require.NoError(t, err)
	_, err = svc.CreatePostIntent(ctx, buyer.ID, sell.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeConflict))

	provider.err = errors.New("stripe down")
	other := createPost(t, db, seller, "Quạt", models.TransactionSell, price(90000))
	_, err = svc.CreatePostIntent(ctx, buyer.ID, other.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeInternal))
}
