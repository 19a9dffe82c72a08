package services

import (
	"context"
	"errors"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/Kousuke-irie/campus-market-backend/apperrors"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	detachedTimeout = 10 * time.Second
)

// Page ページング済みの一覧
type Page[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

func newPage[T any](items []T, total int64, page, limit int) Page[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Page[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// normalizePage page は 1 始まり、limit は既定 20・上限 100
func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}

func offset(page, limit int) int {
	return (page - 1) * limit
}

var textPolicy = bluemonday.StrictPolicy()

// sanitizeText HTML タグを除去したプレーンテキスト
func sanitizeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// runDetached リクエストのライフサイクルから切り離して実行する。失敗はログのみ
func runDetached(name string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), detachedTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			slog.Warn("background task failed", slog.String("task", name), slog.Any("error", err))
		}
	}()
}

// logBestEffort 同期実行だが失敗しても呼び出し元を中断しない処理のエラーを記録する
func logBestEffort(name string, err error) {
	if err != nil {
		slog.Warn("best-effort operation failed", slog.String("operation", name), slog.Any("error", err))
	}
}

func internal(msg string, err error) error {
	return apperrors.Internal(msg, err)
}

// now mysql の datetime(3) は丸めるため、保存値とメモリ上の値がずれないようミリ秒で切り捨てる
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
