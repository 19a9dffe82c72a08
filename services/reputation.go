package services

import (
	"context"
	"math"

	"github.com/Kousuke-irie/campus-market-backend/models"
	"gorm.io/gorm"
)

// ReputationRecomputer 評価の変更後に呼ばれる
type ReputationRecomputer interface {
	Recompute(ctx context.Context, userID string) error
}

type ReputationService struct {
	db *gorm.DB
}

func NewReputationService(db *gorm.DB) *ReputationService {
	return &ReputationService{db: db}
}

// Reputation 集計結果
type Reputation struct {
	Score     int
	VotesUp   int
	VotesDown int
}

// ComputeReputation score = round(平均 × 20)、4以上が up、2以下が down
func ComputeReputation(scores []int) Reputation {
	if len(scores) == 0 {
		return Reputation{}
	}
	var sum, up, down int
	for _, s := range scores {
		sum += s
		if s >= 4 {
			up++
		}
		if s <= 2 {
			down++
		}
	}
	mean := float64(sum) / float64(len(scores))
	return Reputation{Score: int(math.Round(mean * 20)), VotesUp: up, VotesDown: down}
}

// Recompute 全評価から再計算して一度の UPDATE で書き込む
func (s *ReputationService) Recompute(ctx context.Context, userID string) error {
	var scores []int
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.Rating{}).Where("rated_user_id = ?", userID).Pluck("rating_score", &scores).Error; err != nil {
		return internal("failed to load ratings", err)
	}
	rep := ComputeReputation(scores)
	err := db.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"reputation_score": rep.Score,
		"total_votes_up":   rep.VotesUp,
		"total_votes_down": rep.VotesDown,
	}).Error
	if err != nil {
		return internal("failed to update reputation", err)
	}
	return nil
}
