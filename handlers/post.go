package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Kousuke-irie/campus-market-backend/apperrors"
	"github.com/Kousuke-irie/campus-market-backend/gemini"
	"github.com/Kousuke-irie/campus-market-backend/services"
	"github.com/gin-gonic/gin"
)

// CreatePostRequest 公開投稿。sell は price 必須 (サービス側で検証)
type CreatePostRequest struct {
	CategoryID      *string  `json:"category_id"`
	Title           string   `json:"title" binding:"required,max=255"`
	Description     string   `json:"description"`
	Price           *int64   `json:"price"`
	Location        string   `json:"location" binding:"max=255"`
	TransactionType string   `json:"transaction_type" binding:"required,transaction_type"`
	ImageURLs       []string `json:"image_urls" binding:"max=10"`
}

// DraftPostRequest 下書きはほぼ全項目任意
type DraftPostRequest struct {
	CategoryID      *string  `json:"category_id"`
	Title           string   `json:"title" binding:"max=255"`
	Description     string   `json:"description"`
	Price           *int64   `json:"price"`
	Location        string   `json:"location" binding:"max=255"`
	TransactionType string   `json:"transaction_type" binding:"omitempty,transaction_type"`
	ImageURLs       []string `json:"image_urls" binding:"max=10"`
}

func (h *Handler) CreatePostHandler(c *gin.Context) {
	var req CreatePostRequest
	if !bindJSON(c, &req) {
		return
	}
	post, err := h.Posts.Create(c.Request.Context(), currentUserID(c), services.PostInput{
		CategoryID:      req.CategoryID,
		Title:           req.Title,
		Description:     req.Description,
		Price:           req.Price,
		Location:        req.Location,
		TransactionType: req.TransactionType,
		ImageURLs:       req.ImageURLs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "Post created", post)
}

func (h *Handler) SaveDraftHandler(c *gin.Context) {
	var req DraftPostRequest
	if !bindJSON(c, &req) {
		return
	}
	post, err := h.Posts.SaveDraft(c.Request.Context(), currentUserID(c), services.PostInput{
		CategoryID:      req.CategoryID,
		Title:           req.Title,
		Description:     req.Description,
		Price:           req.Price,
		Location:        req.Location,
		TransactionType: req.TransactionType,
		ImageURLs:       req.ImageURLs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "Draft saved", post)
}

// GetPostListHandler ?category_id=&user_id=&is_available=&page=&limit=
func (h *Handler) GetPostListHandler(c *gin.Context) {
	page, limit := pageParams(c)
	params := services.ListPostsParams{
		CategoryID: c.Query("category_id"),
		UserID:     c.Query("user_id"),
		Page:       page,
		Limit:      limit,
	}
	if raw := c.Query("is_available"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, apperrors.Validation("is_available must be true or false"))
			return
		}
		params.IsAvailable = &v
	}

	result, err := h.Posts.List(c.Request.Context(), currentUserID(c), params)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Posts retrieved", result)
}

func (h *Handler) GetMyPostsHandler(c *gin.Context) {
	page, limit := pageParams(c)
	result, err := h.Posts.MyPosts(c.Request.Context(), currentUserID(c), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Posts retrieved", result)
}

func (h *Handler) GetMyDraftsHandler(c *gin.Context) {
	drafts, err := h.Posts.Drafts(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Drafts retrieved", drafts)
}

func (h *Handler) GetSavedPostsHandler(c *gin.Context) {
	page, limit := pageParams(c)
	result, err := h.Posts.Saved(c.Request.Context(), currentUserID(c), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Saved posts retrieved", result)
}

func (h *Handler) GetPostDetailHandler(c *gin.Context) {
	post, err := h.Posts.Get(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Post retrieved", post)
}

// UpdatePostRequest 部分更新。clear_price で価格を外す
type UpdatePostRequest struct {
	CategoryID      *string `json:"category_id"`
	Title           *string `json:"title" binding:"omitempty,max=255"`
	Description     *string `json:"description"`
	Price           *int64  `json:"price"`
	ClearPrice      bool    `json:"clear_price"`
	Location        *string `json:"location" binding:"omitempty,max=255"`
	TransactionType *string `json:"transaction_type" binding:"omitempty,transaction_type"`
	Status          *string `json:"status"`
	IsAvailable     *bool   `json:"is_available"`
}

func (h *Handler) UpdatePostHandler(c *gin.Context) {
	var req UpdatePostRequest
	if !bindJSON(c, &req) {
		return
	}
	post, err := h.Posts.Update(c.Request.Context(), currentUserID(c), c.Param("id"), services.PostUpdate{
		CategoryID:      req.CategoryID,
		Title:           req.Title,
		Description:     req.Description,
		Price:           req.Price,
		ClearPrice:      req.ClearPrice,
		Location:        req.Location,
		TransactionType: req.TransactionType,
		Status:          req.Status,
		IsAvailable:     req.IsAvailable,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Post updated", post)
}

type ImageURLsRequest struct {
	ImageURLs []string `json:"image_urls" binding:"max=10"`
}

// UpdatePostImagesHandler 画像URLリストの置き換え
func (h *Handler) UpdatePostImagesHandler(c *gin.Context) {
	var req ImageURLsRequest
	if !bindJSON(c, &req) {
		return
	}
	post, err := h.Posts.UpdateImages(c.Request.Context(), currentUserID(c), c.Param("id"), req.ImageURLs)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Images updated", post)
}

// UploadPostImagesHandler multipart の images を保存して末尾に追加する
func (h *Handler) UploadPostImagesHandler(c *gin.Context) {
	files, ok := formFiles(c, "images")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	userID, postID := currentUserID(c), c.Param("id")

	if err := h.Posts.CheckImageCapacity(ctx, userID, postID, len(files)); err != nil {
		respondError(c, err)
		return
	}
	urls, err := h.uploadFiles(ctx, "posts", userID, files)
	if err != nil {
		respondError(c, err)
		return
	}
	post, err := h.Posts.AppendImages(ctx, userID, postID, urls)
	if err != nil {
		h.deleteObjects(ctx, urls)
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Images uploaded", post)
}

// DeletePostHandler ?action=hide|delete (省略時 delete)
func (h *Handler) DeletePostHandler(c *gin.Context) {
	post, err := h.Posts.Remove(c.Request.Context(), currentUserID(c), c.Param("id"), c.Query("action"))
	if err != nil {
		respondError(c, err)
		return
	}
	message := "Post deleted"
	if c.Query("action") == services.RemoveActionHide {
		message = "Post visibility updated"
	}
	respond(c, http.StatusOK, message, post)
}

func (h *Handler) LikePostHandler(c *gin.Context) {
	if err := h.Posts.Like(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Post liked", nil)
}

func (h *Handler) UnlikePostHandler(c *gin.Context) {
	if err := h.Posts.Unlike(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Post unliked", nil)
}

func (h *Handler) SavePostHandler(c *gin.Context) {
	if err := h.Posts.Save(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Post saved", nil)
}

func (h *Handler) UnsavePostHandler(c *gin.Context) {
	if err := h.Posts.Unsave(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Post unsaved", nil)
}

type RepostRequest struct {
	Title       *string `json:"title" binding:"omitempty,max=255"`
	Description *string `json:"description"`
}

func (h *Handler) RepostHandler(c *gin.Context) {
	var req RepostRequest
	// ボディなしのリポストも許可する
	if !bindOptionalJSON(c, &req) {
		return
	}
	post, err := h.Posts.Repost(c.Request.Context(), currentUserID(c), c.Param("id"), services.RepostInput{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "Post reposted", post)
}

// AnalyzePostHandler 画像を受け取ってAI解析結果 (出品フォームの下書き) を返す
func (h *Handler) AnalyzePostHandler(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		respondError(c, apperrors.Validation("Image is required"))
		return
	}
	if file.Size > maxUploadBytes {
		respondError(c, apperrors.Validation("each image must be 10MB or smaller"))
		return
	}
	if h.Analyzer == nil {
		respondError(c, apperrors.Internal("AI analysis is not configured", nil))
		return
	}

	f, err := file.Open()
	if err != nil {
		respondError(c, apperrors.Validation("failed to read uploaded file"))
		return
	}
	defer f.Close()
	image, err := io.ReadAll(f)
	if err != nil {
		respondError(c, apperrors.Validation("failed to read uploaded file"))
		return
	}

	ctx := c.Request.Context()
	categories, err := h.Categories.List(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	options := make([]gemini.CategoryOption, 0, len(categories))
	for _, cat := range categories {
		options = append(options, gemini.CategoryOption{ID: cat.ID, Name: cat.CategoryName})
	}

	suggestion, err := h.Analyzer.AnalyzePostImage(ctx, image, imageFormat(file.Header.Get("Content-Type"), file.Filename), options)
	if err != nil {
		respondError(c, apperrors.Internal("AI analysis failed", err))
		return
	}
	respond(c, http.StatusOK, "Image analyzed", suggestion)
}

// imageFormat genai.ImageData 用 ("jpeg", "png" など)
func imageFormat(contentType, fileName string) string {
	if strings.HasPrefix(contentType, "image/") {
		return strings.TrimPrefix(contentType, "image/")
	}
	name := strings.ToLower(fileName)
	switch {
	case strings.HasSuffix(name, ".png"):
		return "png"
	case strings.HasSuffix(name, ".webp"):
		return "webp"
	case strings.HasSuffix(name, ".heic"):
		return "heic"
	default:
		return "jpeg"
	}
}
