package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/Kousuke-irie/campus-market-backend/config"
	"github.com/google/uuid"
)

// Storage 画像オブジェクトの保存先
type Storage interface {
	// Upload オブジェクトを保存して公開URLを返す
	Upload(ctx context.Context, obj Object) (string, error)
	// SignedUploadURL クライアントが直接 PUT するための署名付きURLと、アップロード後の公開URL
	SignedUploadURL(ctx context.Context, prefix, ownerID, fileName string) (signedURL, publicURL string, err error)
	// Delete Upload / SignedUploadURL が返した公開URLのオブジェクトを削除する
	Delete(ctx context.Context, publicURL string) error
}

type Object struct {
	Prefix   string // "posts", "avatars", "ratings"
	OwnerID  string
	FileName string
	Body     io.Reader
	Size     int64
}

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	// ErrForeignURL このバケット以外 (gravatar など) のURL
	ErrForeignURL = errors.New("url does not belong to this bucket")
)

var allowedExt = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".heic": true,
}

// ObjectName <prefix>/<owner>/<yyyy>/<mm>/<uuid><ext>
func ObjectName(prefix, ownerID, fileName string, now time.Time) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		ext = ".jpg"
	}
	if !allowedExt[ext] {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}

	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	name := fmt.Sprintf("%s/%s/%d/%02d/%s%s", prefix, ownerID, now.Year(), now.Month(), uuid.NewString(), ext)
	return name, contentType, nil
}

// objectNameFromURL base/<object> から object 部分を取り出す
func objectNameFromURL(base, publicURL string) (string, error) {
	prefix := strings.TrimSuffix(base, "/") + "/"
	if !strings.HasPrefix(publicURL, prefix) || len(publicURL) == len(prefix) {
		return "", fmt.Errorf("%w: %s", ErrForeignURL, publicURL)
	}
	return strings.TrimPrefix(publicURL, prefix), nil
}

// New 設定に応じたバックエンドを作る
func New(ctx context.Context, cfg config.Storage) (Storage, error) {
	switch cfg.Driver {
	case "gcs", "":
		g, err := NewGCS(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return g, nil
	case "minio":
		m, err := NewMinIO(cfg)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.Driver)
	}
}
