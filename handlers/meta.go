package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetCategoriesHandler カテゴリ一覧 (キーワード付き)
func (h *Handler) GetCategoriesHandler(c *gin.Context) {
	categories, err := h.Categories.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Categories retrieved", categories)
}

func (h *Handler) GetCategoryHandler(c *gin.Context) {
	category, err := h.Categories.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Category retrieved", category)
}
