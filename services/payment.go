package services

import (
	"context"

	"github.com/Kousuke-irie/campus-market-backend/apperrors"
	"github.com/Kousuke-irie/campus-market-backend/models"
	"github.com/Kousuke-irie/campus-market-backend/payment"
	"gorm.io/gorm"
)

// PaymentProvider payment.StripeProvider が満たす
type PaymentProvider interface {
	CreateIntent(ctx context.Context, amount int64, metadata map[string]string) (*payment.Intent, error)
}

type PaymentService struct {
	db       *gorm.DB
	provider PaymentProvider
}

func NewPaymentService(db *gorm.DB, provider PaymentProvider) *PaymentService {
	return &PaymentService{db: db, provider: provider}
}

// CreatePostIntent 出品中の sell 投稿に対する支払いインテント
func (s *PaymentService) CreatePostIntent(ctx context.Context, buyerID, postID string) (*payment.Intent, error) {
	var post models.Post
	if err := s.db.WithContext(ctx).First(&post, "id = ?", postID).Error; err != nil {
		if isNotFound(err) {
			return nil, apperrors.NotFound("Post not found")
		}
		return nil, internal("failed to load post", err)
	}
	if post.UserID == buyerID {
		return nil, apperrors.Conflict("You cannot buy your own post")
	}
	if post.TransactionType != models.TransactionSell || post.Price == nil {
		return nil, apperrors.Conflict("This post is not for sale")
	}
	if post.Status != models.PostStatusPosted || !post.IsAvailable {
		return nil, apperrors.Conflict("This post is no longer available")
	}

	intent, err := s.provider.CreateIntent(ctx, *post.Price, map[string]string{
		"post_id":  post.ID,
		"buyer_id": buyerID,
		"title":    post.Title,
	})
	if err != nil {
		return nil, internal("failed to create payment intent", err)
	}
	return intent, nil
}
