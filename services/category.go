package services

import (
	"context"

	"github.com/Kousuke-irie/campus-market-backend/apperrors"
	"github.com/Kousuke-irie/campus-market-backend/models"
	"gorm.io/gorm"
)

type CategoryService struct {
	db *gorm.DB
}

func NewCategoryService(db *gorm.DB) *CategoryService {
	return &CategoryService{db: db}
}

func (s *CategoryService) List(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := s.db.WithContext(ctx).
		Preload("Keywords", func(db *gorm.DB) *gorm.DB { return db.Order("keyword ASC") }).
		Order("category_name ASC").
		Find(&categories).Error
	if err != nil {
		return nil, internal("failed to list categories", err)
	}
	return categories, nil
}

func (s *CategoryService) Get(ctx context.Context, id string) (*models.Category, error) {
	return findCategory(s.db.WithContext(ctx), id)
}

func findCategory(db *gorm.DB, id string) (*models.Category, error) {
	var category models.Category
	if err := db.First(&category, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, apperrors.NotFound("Category not found")
		}
		return nil, internal("failed to load category", err)
	}
	return &category, nil
}
