package handlers

import (
	"net/http"

	"github.com/Kousuke-irie/campus-market-backend/services"
	"github.com/gin-gonic/gin"
)

// SearchQuery ?keyword=&transaction_type=&category_id=&time_range=&min_price=&max_price=&sort_by=
type SearchQuery struct {
	Keyword         string `form:"keyword"`
	Q               string `form:"q"`
	TransactionType string `form:"transaction_type" binding:"omitempty,transaction_type"`
	CategoryID      string `form:"category_id"`
	TimeRange       string `form:"time_range"`
	MinPrice        *int64 `form:"min_price"`
	MaxPrice        *int64 `form:"max_price"`
	SortBy          string `form:"sort_by"`
	Page            int    `form:"page"`
	Limit           int    `form:"limit"`
}

func (h *Handler) SearchPostsHandler(c *gin.Context) {
	var q SearchQuery
	if !bindQuery(c, &q) {
		return
	}
	keyword := q.Keyword
	if keyword == "" {
		keyword = q.Q
	}
	result, err := h.Search.Search(c.Request.Context(), currentUserID(c), services.SearchParams{
		Keyword:         keyword,
		TransactionType: q.TransactionType,
		CategoryID:      q.CategoryID,
		TimeRange:       q.TimeRange,
		MinPrice:        q.MinPrice,
		MaxPrice:        q.MaxPrice,
		SortBy:          q.SortBy,
		Page:            q.Page,
		Limit:           q.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	message := "Search completed"
	if !result.HasResults {
		message = "No posts found"
	}
	respond(c, http.StatusOK, message, result)
}

func (h *Handler) SearchSuggestionsHandler(c *gin.Context) {
	keyword := c.Query("keyword")
	if keyword == "" {
		keyword = c.Query("q")
	}
	titles, err := h.Search.Suggestions(c.Request.Context(), keyword)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Suggestions retrieved", titles)
}

func (h *Handler) GetSearchHistoryHandler(c *gin.Context) {
	keywords, err := h.Search.History(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Search history retrieved", keywords)
}

func (h *Handler) ClearSearchHistoryHandler(c *gin.Context) {
	if err := h.Search.ClearHistory(c.Request.Context(), currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Search history cleared", nil)
}
