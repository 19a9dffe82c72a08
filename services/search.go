package services

import (
	"context"
	"strings"
	"time"

	"github.com/Kousuke-irie/campus-market-backend/apperrors"
	"github.com/Kousuke-irie/campus-market-backend/models"
	"gorm.io/gorm"
)

const (
	suggestionLimit = 10
	historyLimit    = 10
)

type SearchService struct {
	db    *gorm.DB
	posts *PostService
}

func NewSearchService(db *gorm.DB, posts *PostService) *SearchService {
	return &SearchService{db: db, posts: posts}
}

type SearchParams struct {
	Keyword         string
	TransactionType string
	CategoryID      string
	TimeRange       string // 7days / 30days / all
	MinPrice        *int64
	MaxPrice        *int64
	SortBy          string // newest / oldest / price_asc / price_desc
	Page            int
	Limit           int
}

type SearchResult struct {
	Page[PostView]
	HasResults bool `json:"has_results"`
}

var sortOrders = map[string]string{
	"":           "created_at DESC",
	"newest":     "created_at DESC",
	"oldest":     "created_at ASC",
	"price_asc":  "price ASC",
	"price_desc": "price DESC",
}

func likePattern(s string) string {
	return "%" + strings.ToLower(s) + "%"
}

// Search 公開中かつ出品中の投稿のみ。userID があればキーワードを履歴に残す
func (s *SearchService) Search(ctx context.Context, userID string, p SearchParams) (*SearchResult, error) {
	order, ok := sortOrders[p.SortBy]
	if !ok {
		return nil, apperrors.Validation("sort_by must be one of newest, oldest, price_asc, price_desc")
	}
	if p.TransactionType != "" && !models.ValidTransactionType(p.TransactionType) {
		return nil, apperrors.Validation("transaction_type must be one of sell, exchange, free")
	}
	if p.MinPrice != nil && p.MaxPrice != nil && *p.MinPrice > *p.MaxPrice {
		return nil, apperrors.Validation("min_price must not exceed max_price")
	}

	q := s.db.WithContext(ctx).Model(&models.Post{}).
		Where("status = ? AND is_available = ?", models.PostStatusPosted, true)

	keyword := strings.TrimSpace(p.Keyword)
	if keyword != "" {
		pattern := likePattern(keyword)
		q = q.Where("(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)", pattern, pattern)
	}
	if p.TransactionType != "" {
		q = q.Where("transaction_type = ?", p.TransactionType)
	}
	if p.CategoryID != "" {
		q = q.Where("category_id = ?", p.CategoryID)
	}
	switch p.TimeRange {
	case "", "all":
	case "7days":
		q = q.Where("created_at >= ?", now().Add(-7*24*time.Hour))
	case "30days":
		q = q.Where("created_at >= ?", now().Add(-30*24*time.Hour))
	default:
		return nil, apperrors.Validation("time_range must be one of 7days, 30days, all")
	}
	if p.MinPrice != nil {
		q = q.Where("price >= ?", *p.MinPrice)
	}
	if p.MaxPrice != nil {
		q = q.Where("price <= ?", *p.MaxPrice)
	}

	page, err := s.posts.paginate(ctx, userID, q, order, p.Page, p.Limit)
	if err != nil {
		return nil, err
	}

	if userID != "" && keyword != "" {
		runDetached("save search history", func(ctx context.Context) error {
			return s.db.WithContext(ctx).Create(&models.SearchHistory{UserID: userID, Keyword: keyword}).Error
		})
	}
	return &SearchResult{Page: *page, HasResults: page.Total > 0}, nil
}

// Suggestions タイトルに部分一致する候補
func (s *SearchService) Suggestions(ctx context.Context, keyword string) ([]string, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return []string{}, nil
	}
	var titles []string
	err := s.db.WithContext(ctx).Model(&models.Post{}).
		Distinct("title").
		Where("status = ? AND is_available = ?", models.PostStatusPosted, true).
		Where(`LOWER(title) LIKE ?`, likePattern(keyword)).
		Order("title ASC").
		Limit(suggestionLimit).
		Pluck("title", &titles).Error
	if err != nil {
		return nil, internal("failed to load suggestions", err)
	}
	if titles == nil {
		titles = []string{}
	}
	return titles, nil
}

// History 重複を除いたキーワードを最近使った順に
func (s *SearchService) History(ctx context.Context, userID string) ([]string, error) {
	var rows []struct {
		Keyword string
	}
	err := s.db.WithContext(ctx).Model(&models.SearchHistory{}).
		Select("keyword, MAX(created_at) AS last_used").
		Where("user_id = ?", userID).
		Group("keyword").
		Order("last_used DESC").
		Limit(historyLimit).
		Scan(&rows).Error
	if err != nil {
		return nil, internal("failed to load search history", err)
	}
	keywords := make([]string, len(rows))
	for i, r := range rows {
		keywords[i] = r.Keyword
	}
	return keywords, nil
}

func (s *SearchService) ClearHistory(ctx context.Context, userID string) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.SearchHistory{}).Error; err != nil {
		return internal("failed to clear search history", err)
	}
	return nil
}
