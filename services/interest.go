package services

import (
	"context"
	"sort"
	"strings"

	"github.com/Kousuke-irie/campus-market-backend/apperrors"
	"github.com/Kousuke-irie/campus-market-backend/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type InterestService struct {
	db *gorm.DB
}

func NewInterestService(db *gorm.DB) *InterestService {
	return &InterestService{db: db}
}

type InterestInput struct {
	CategoryID string
	Keywords   []string
}

func (s *InterestService) List(ctx context.Context, userID string) ([]models.UserInterest, error) {
	var interests []models.UserInterest
	err := s.db.WithContext(ctx).Preload("Category").
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&interests).Error
	if err != nil {
		return nil, internal("failed to list interests", err)
	}
	return interests, nil
}

// normalizeKeywords trim・小文字化・重複除去
func normalizeKeywords(keywords []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Sync 渡された一覧に合わせて作成・更新・削除をまとめて行う
func (s *InterestService) Sync(ctx context.Context, userID string, inputs []InterestInput) ([]models.UserInterest, error) {
	wanted := map[string][]string{}
	for _, in := range inputs {
		if in.CategoryID == "" {
			return nil, apperrors.Validation("category_id is required")
		}
		wanted[in.CategoryID] = normalizeKeywords(append(wanted[in.CategoryID], in.Keywords...))
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for categoryID := range wanted {
			if _, err := findCategory(tx, categoryID); err != nil {
				return err
			}
		}

		var existing []models.UserInterest
		if err := tx.Where("user_id = ?", userID).Find(&existing).Error; err != nil {
			return err
		}
		current := map[string]*models.UserInterest{}
		for i := range existing {
			current[existing[i].CategoryID] = &existing[i]
		}

		for categoryID, keywords := range wanted {
			if in, ok := current[categoryID]; ok {
				err := tx.Model(in).Updates(map[string]interface{}{
					"keywords":  datatypes.JSONSlice[string](keywords),
					"is_active": true,
				}).Error
				if err != nil {
					return err
				}
				continue
			}
			row := &models.UserInterest{
				UserID:     userID,
				CategoryID: categoryID,
				Keywords:   datatypes.JSONSlice[string](keywords),
				IsActive:   true,
			}
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		}

		for categoryID, in := range current {
			if _, ok := wanted[categoryID]; ok {
				continue
			}
			if err := tx.Delete(in).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if apperrors.CodeOf(err) != apperrors.CodeInternal {
			return nil, err
		}
		return nil, internal("failed to sync interests", err)
	}
	return s.List(ctx, userID)
}
