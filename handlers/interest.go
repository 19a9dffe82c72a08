package handlers

import (
	"net/http"

	"github.com/Kousuke-irie/campus-market-backend/services"
	"github.com/gin-gonic/gin"
)

type InterestItem struct {
	CategoryID string   `json:"category_id" binding:"required"`
	Keywords   []string `json:"keywords"`
}

// SyncInterestsRequest 送られた一覧に同期する (含まれないものは削除)
type SyncInterestsRequest struct {
	Interests []InterestItem `json:"interests" binding:"dive"`
}

func (h *Handler) GetInterestsHandler(c *gin.Context) {
	interests, err := h.Interests.List(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Interests retrieved", interests)
}

func (h *Handler) SyncInterestsHandler(c *gin.Context) {
	var req SyncInterestsRequest
	if !bindJSON(c, &req) {
		return
	}
	inputs := make([]services.InterestInput, 0, len(req.Interests))
	for _, it := range req.Interests {
		inputs = append(inputs, services.InterestInput{CategoryID: it.CategoryID, Keywords: it.Keywords})
	}
	interests, err := h.Interests.Sync(c.Request.Context(), currentUserID(c), inputs)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Interests updated", interests)
}
