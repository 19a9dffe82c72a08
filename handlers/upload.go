package handlers

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/Kousuke-irie/campus-market-backend/apperrors"
	"github.com/Kousuke-irie/campus-market-backend/storage"
	"github.com/gin-gonic/gin"
)

const maxUploadBytes = 10 << 20

// uploadFiles multipart の field にある画像を prefix 配下へ保存して公開URLを返す。
// 途中で失敗したら保存済みのものは消す
func (h *Handler) uploadFiles(ctx context.Context, prefix, ownerID string, files []*multipart.FileHeader) ([]string, error) {
	if h.Storage == nil {
		return nil, apperrors.Internal("storage is not configured", nil)
	}
	urls := make([]string, 0, len(files))
	for _, fh := range files {
		url, err := h.uploadOne(ctx, prefix, ownerID, fh)
		if err != nil {
			h.deleteObjects(ctx, urls)
			return nil, err
		}
		urls = append(urls, url)
	}
	return urls, nil
}

func (h *Handler) uploadOne(ctx context.Context, prefix, ownerID string, fh *multipart.FileHeader) (string, error) {
	if fh.Size > maxUploadBytes {
		return "", apperrors.Validation("each image must be 10MB or smaller")
	}
	f, err := fh.Open()
	if err != nil {
		return "", apperrors.Validation("failed to read uploaded file")
	}
	defer f.Close()

	url, err := h.Storage.Upload(ctx, storage.Object{
		Prefix:   prefix,
		OwnerID:  ownerID,
		FileName: fh.Filename,
		Body:     f,
		Size:     fh.Size,
	})
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedType) {
			return "", apperrors.Validation("only jpg, png, gif, webp and heic images are allowed")
		}
		return "", apperrors.Internal("failed to upload image", err)
	}
	return url, nil
}

// deleteObjects ベストエフォート。外部URL (デフォルトアバター等) は無視する
func (h *Handler) deleteObjects(ctx context.Context, urls []string) {
	if h.Storage == nil {
		return
	}
	for _, u := range urls {
		if err := h.Storage.Delete(ctx, u); err != nil && !errors.Is(err, storage.ErrForeignURL) {
			slog.Warn("failed to delete stored object", slog.String("url", u), slog.Any("error", err))
		}
	}
}

// formFiles field のファイル一覧。1件もなければ 400
func formFiles(c *gin.Context, field string) ([]*multipart.FileHeader, bool) {
	form, err := c.MultipartForm()
	if err != nil || len(form.File[field]) == 0 {
		respondError(c, apperrors.Validation(field+" is required"))
		return nil, false
	}
	return form.File[field], true
}

type UploadURLRequest struct {
	FileName string `json:"file_name" binding:"required"`
	Prefix   string `json:"prefix"`
}

var uploadPrefixes = map[string]bool{"posts": true, "avatars": true, "ratings": true}

// GetUploadURLHandler クライアントから直接 PUT するための署名付きURLを発行する
func (h *Handler) GetUploadURLHandler(c *gin.Context) {
	var req UploadURLRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Prefix == "" {
		req.Prefix = "posts"
	}
	if !uploadPrefixes[req.Prefix] {
		respondError(c, apperrors.Validation("prefix must be one of posts, avatars, ratings"))
		return
	}
	if h.Storage == nil {
		respondError(c, apperrors.Internal("storage is not configured", nil))
		return
	}

	signedURL, publicURL, err := h.Storage.SignedUploadURL(c.Request.Context(), req.Prefix, currentUserID(c), req.FileName)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedType) {
			respondError(c, apperrors.Validation("only jpg, png, gif, webp and heic images are allowed"))
			return
		}
		respondError(c, apperrors.Internal("failed to generate upload URL", err))
		return
	}
	respond(c, http.StatusOK, "Upload URL generated", gin.H{"upload_url": signedURL, "image_url": publicURL})
}
