package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CreatePaymentIntentHandler 出品 (sell) の支払い情報を作成する
func (h *Handler) CreatePaymentIntentHandler(c *gin.Context) {
	intent, err := h.Payments.CreatePostIntent(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Payment intent created", intent)
}
