package services

import (
	"context"
	"fmt"
	"math"

	"github.com/Kousuke-irie/campus-market-backend/apperrors"
	"github.com/Kousuke-irie/campus-market-backend/database"
	"github.com/Kousuke-irie/campus-market-backend/metrics"
	"github.com/Kousuke-irie/campus-market-backend/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type RatingService struct {
	db         *gorm.DB
	reputation ReputationRecomputer
	notifier   Notifier
	metrics    *metrics.Collector
}

func NewRatingService(db *gorm.DB, reputation ReputationRecomputer, notifier Notifier, m *metrics.Collector) *RatingService {
	return &RatingService{db: db, reputation: reputation, notifier: notifier, metrics: m}
}

type RatingInput struct {
	RatedUserID    string
	PostID         *string
	RatingScore    int
	Comment        string
	ProofImageURLs []string
}

func validateScore(score int) error {
	if score < 1 || score > 5 {
		return apperrors.Validation("rating_score must be between 1 and 5")
	}
	return nil
}

func validateProofImages(urls []string) error {
	if len(urls) > models.MaxImages {
		return apperrors.Validation("a rating can have at most 10 proof images")
	}
	return nil
}

func (s *RatingService) CreateRating(ctx context.Context, raterID string, in RatingInput) (*models.Rating, error) {
	if raterID == in.RatedUserID {
		return nil, apperrors.Forbidden("You cannot rate yourself")
	}
	if err := validateScore(in.RatingScore); err != nil {
		return nil, err
	}
	if err := validateProofImages(in.ProofImageURLs); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	postID := emptyToNil(in.PostID)

	if err := db.Select("id").First(&models.User{}, "id = ?", in.RatedUserID).Error; err != nil {
		if isNotFound(err) {
			return nil, apperrors.NotFound("Rated user not found")
		}
		return nil, internal("failed to load rated user", err)
	}
	if postID != nil {
		if err := db.Select("id").First(&models.Post{}, "id = ?", *postID).Error; err != nil {
			if isNotFound(err) {
				return nil, apperrors.NotFound("Post not found")
			}
			return nil, internal("failed to load post", err)
		}
	}

	key := contextKey(postID)
	var count int64
	err := db.Model(&models.Rating{}).
		Where("rater_id = ? AND rated_user_id = ? AND context_key = ?", raterID, in.RatedUserID, key).
		Count(&count).Error
	if err != nil {
		return nil, internal("failed to check existing rating", err)
	}
	if count > 0 {
		return nil, apperrors.Conflict("You have already rated this user for this transaction")
	}

	images := in.ProofImageURLs
	if images == nil {
		images = []string{}
	}
	rating := &models.Rating{
		RaterID:        raterID,
		RatedUserID:    in.RatedUserID,
		ContextKey:     key,
		PostID:         postID,
		RatingScore:    in.RatingScore,
		Comment:        sanitizeText(in.Comment),
		ProofImageURLs: datatypes.JSONSlice[string](images),
	}
	if err := db.Create(rating).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperrors.Conflict("You have already rated this user for this transaction")
		}
		return nil, internal("failed to create rating", err)
	}
	s.metrics.RatingChanged("create")

	if err := s.reputation.Recompute(ctx, in.RatedUserID); err != nil {
		return nil, err
	}
	if s.notifier != nil {
		logBestEffort("notify new rating", s.notifier.Notify(ctx, NotificationInput{
			UserID:  in.RatedUserID,
			Type:    models.NotificationNewRating,
			Title:   "Bạn nhận được đánh giá mới",
			Content: fmt.Sprintf("Bạn được đánh giá %d sao", in.RatingScore),
			PostID:  postID,
		}))
	}
	return s.get(ctx, rating.ID)
}

func (s *RatingService) get(ctx context.Context, id string) (*models.Rating, error) {
	var rating models.Rating
	err := s.db.WithContext(ctx).Preload("Rater").Preload("RatedUser").First(&rating, "id = ?", id).Error
	if err != nil {
		if isNotFound(err) {
			return nil, apperrors.NotFound("Rating not found")
		}
		return nil, internal("failed to load rating", err)
	}
	return &rating, nil
}

func (s *RatingService) loadOwned(ctx context.Context, raterID, ratingID string) (*models.Rating, error) {
	var rating models.Rating
	if err := s.db.WithContext(ctx).First(&rating, "id = ?", ratingID).Error; err != nil {
		if isNotFound(err) {
			return nil, apperrors.NotFound("Rating not found")
		}
		return nil, internal("failed to load rating", err)
	}
	if rating.RaterID != raterID {
		return nil, apperrors.Forbidden("You can only modify your own ratings")
	}
	return &rating, nil
}

type RatingUpdate struct {
	RatingScore *int
	Comment     *string
}

func (s *RatingService) UpdateRating(ctx context.Context, raterID, ratingID string, in RatingUpdate) (*models.Rating, error) {
	rating, err := s.loadOwned(ctx, raterID, ratingID)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if in.RatingScore != nil {
		if err := validateScore(*in.RatingScore); err != nil {
			return nil, err
		}
		updates["rating_score"] = *in.RatingScore
	}
	if in.Comment != nil {
		updates["comment"] = sanitizeText(*in.Comment)
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(rating).Updates(updates).Error; err != nil {
			return nil, internal("failed to update rating", err)
		}
		s.metrics.RatingChanged("update")
		if err := s.reputation.Recompute(ctx, rating.RatedUserID); err != nil {
			return nil, err
		}
	}
	return s.get(ctx, rating.ID)
}

func (s *RatingService) UpdateRatingImages(ctx context.Context, raterID, ratingID string, urls []string) (*models.Rating, error) {
	if err := validateProofImages(urls); err != nil {
		return nil, err
	}
	rating, err := s.loadOwned(ctx, raterID, ratingID)
	if err != nil {
		return nil, err
	}
	if urls == nil {
		urls = []string{}
	}
	if err := s.db.WithContext(ctx).Model(rating).Update("proof_image_urls", datatypes.JSONSlice[string](urls)).Error; err != nil {
		return nil, internal("failed to update rating images", err)
	}
	return s.get(ctx, rating.ID)
}

func (s *RatingService) DeleteRating(ctx context.Context, raterID, ratingID string) error {
	rating, err := s.loadOwned(ctx, raterID, ratingID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(rating).Error; err != nil {
		return internal("failed to delete rating", err)
	}
	s.metrics.RatingChanged("delete")
	return s.reputation.Recompute(ctx, rating.RatedUserID)
}

func (s *RatingService) listWhere(ctx context.Context, page, limit int, query string, args ...interface{}) (*Page[models.Rating], error) {
	page, limit = normalizePage(page, limit)
	db := s.db.WithContext(ctx)
	var total int64
	if err := db.Model(&models.Rating{}).Where(query, args...).Count(&total).Error; err != nil {
		return nil, internal("failed to count ratings", err)
	}
	var ratings []models.Rating
	err := db.Preload("Rater").Preload("RatedUser").Preload("Post").
		Where(query, args...).
		Order("created_at DESC").
		Limit(limit).Offset(offset(page, limit)).
		Find(&ratings).Error
	if err != nil {
		return nil, internal("failed to list ratings", err)
	}
	result := newPage(ratings, total, page, limit)
	return &result, nil
}

func (s *RatingService) ForUser(ctx context.Context, userID string, page, limit int) (*Page[models.Rating], error) {
	return s.listWhere(ctx, page, limit, "rated_user_id = ?", userID)
}

func (s *RatingService) ForPost(ctx context.Context, postID string, page, limit int) (*Page[models.Rating], error) {
	return s.listWhere(ctx, page, limit, "post_id = ?", postID)
}

func (s *RatingService) Given(ctx context.Context, raterID string, page, limit int) (*Page[models.Rating], error) {
	return s.listWhere(ctx, page, limit, "rater_id = ?", raterID)
}

func (s *RatingService) Received(ctx context.Context, userID string, page, limit int) (*Page[models.Rating], error) {
	return s.ForUser(ctx, userID, page, limit)
}

type RatingStats struct {
	AverageRating      float64        `json:"average_rating"`
	TotalRatings       int            `json:"total_ratings"`
	RatingDistribution map[string]int `json:"rating_distribution"`
	PositivePercentage int            `json:"positive_percentage"`
}

// Stats 平均は小数1桁、positive は 4 以上の割合 (%)
func (s *RatingService) Stats(ctx context.Context, userID string) (*RatingStats, error) {
	if err := s.db.WithContext(ctx).Select("id").First(&models.User{}, "id = ?", userID).Error; err != nil {
		if isNotFound(err) {
			return nil, apperrors.NotFound("User not found")
		}
		return nil, internal("failed to load user", err)
	}
	var scores []int
	if err := s.db.WithContext(ctx).Model(&models.Rating{}).Where("rated_user_id = ?", userID).Pluck("rating_score", &scores).Error; err != nil {
		return nil, internal("failed to load ratings", err)
	}
	return computeStats(scores), nil
}

func computeStats(scores []int) *RatingStats {
	stats := &RatingStats{
		TotalRatings:       len(scores),
		RatingDistribution: map[string]int{"1": 0, "2": 0, "3": 0, "4": 0, "5": 0},
	}
	if len(scores) == 0 {
		return stats
	}
	sum, positive := 0, 0
	for _, sc := range scores {
		sum += sc
		stats.RatingDistribution[fmt.Sprint(sc)]++
		if sc >= 4 {
			positive++
		}
	}
	stats.AverageRating = math.Round(float64(sum)/float64(len(scores))*10) / 10
	stats.PositivePercentage = int(math.Round(float64(positive) / float64(len(scores)) * 100))
	return stats
}
