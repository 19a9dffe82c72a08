package handlers

import (
	"net/http"
	"strings"

	"github.com/Kousuke-irie/campus-market-backend/services"
	"github.com/gin-gonic/gin"
)

type CreateRatingRequest struct {
	RatedUserID    string   `json:"rated_user_id" binding:"required"`
	PostID         *string  `json:"post_id"`
	RatingScore    int      `json:"rating_score"`
	Comment        string   `json:"comment" binding:"max=2000"`
	ProofImageURLs []string `json:"proof_image_urls" binding:"max=10"`
}

func (h *Handler) CreateRatingHandler(c *gin.Context) {
	var req CreateRatingRequest
	if !bindJSON(c, &req) {
		return
	}
	rating, err := h.Ratings.CreateRating(c.Request.Context(), currentUserID(c), services.RatingInput{
		RatedUserID:    req.RatedUserID,
		PostID:         req.PostID,
		RatingScore:    req.RatingScore,
		Comment:        req.Comment,
		ProofImageURLs: req.ProofImageURLs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "Rating created", rating)
}

type UpdateRatingRequest struct {
	RatingScore *int    `json:"rating_score"`
	Comment     *string `json:"comment" binding:"omitempty,max=2000"`
}

func (h *Handler) UpdateRatingHandler(c *gin.Context) {
	var req UpdateRatingRequest
	if !bindJSON(c, &req) {
		return
	}
	rating, err := h.Ratings.UpdateRating(c.Request.Context(), currentUserID(c), c.Param("id"), services.RatingUpdate{
		RatingScore: req.RatingScore,
		Comment:     req.Comment,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Rating updated", rating)
}

type RatingImagesRequest struct {
	ProofImageURLs []string `json:"proof_image_urls" binding:"max=10"`
}

// UpdateRatingImagesHandler JSON ならURLリストで置き換え、multipart なら images をアップロードして置き換える
func (h *Handler) UpdateRatingImagesHandler(c *gin.Context) {
	ctx := c.Request.Context()
	userID := currentUserID(c)

	var urls []string
	uploaded := false
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		files, ok := formFiles(c, "images")
		if !ok {
			return
		}
		var err error
		if urls, err = h.uploadFiles(ctx, "ratings", userID, files); err != nil {
			respondError(c, err)
			return
		}
		uploaded = true
	} else {
		var req RatingImagesRequest
		if !bindJSON(c, &req) {
			return
		}
		urls = req.ProofImageURLs
	}

	rating, err := h.Ratings.UpdateRatingImages(ctx, userID, c.Param("id"), urls)
	if err != nil {
		if uploaded {
			h.deleteObjects(ctx, urls)
		}
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Rating images updated", rating)
}

func (h *Handler) DeleteRatingHandler(c *gin.Context) {
	if err := h.Ratings.DeleteRating(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Rating deleted", nil)
}

func (h *Handler) GetUserRatingsHandler(c *gin.Context) {
	page, limit := pageParams(c)
	result, err := h.Ratings.ForUser(c.Request.Context(), c.Param("id"), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Ratings retrieved", result)
}

func (h *Handler) GetUserRatingStatsHandler(c *gin.Context) {
	stats, err := h.Ratings.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Rating stats retrieved", stats)
}

func (h *Handler) GetPostRatingsHandler(c *gin.Context) {
	page, limit := pageParams(c)
	result, err := h.Ratings.ForPost(c.Request.Context(), c.Param("postId"), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Ratings retrieved", result)
}

func (h *Handler) GetGivenRatingsHandler(c *gin.Context) {
	page, limit := pageParams(c)
	result, err := h.Ratings.Given(c.Request.Context(), currentUserID(c), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Ratings retrieved", result)
}

func (h *Handler) GetReceivedRatingsHandler(c *gin.Context) {
	page, limit := pageParams(c)
	result, err := h.Ratings.Received(c.Request.Context(), currentUserID(c), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Ratings retrieved", result)
}
