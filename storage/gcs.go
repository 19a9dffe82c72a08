package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/Kousuke-irie/campus-market-backend/config"
	"google.golang.org/api/option"
)

type GCS struct {
	client *gcs.Client
	bucket string
	expiry time.Duration
}

func NewGCS(ctx context.Context, cfg config.Storage) (*GCS, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	} else {
		// デプロイ環境ではデフォルトの認証メカニズムにフォールバック
		slog.Warn("GOOGLE_APPLICATION_CREDENTIALS is not set, using default GCS credentials")
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	slog.Info("GCS client initialized", slog.String("bucket", cfg.Bucket))
	return &GCS{client: client, bucket: cfg.Bucket, expiry: cfg.URLExpiry}, nil
}

func (g *GCS) baseURL() string {
	return "https://storage.googleapis.com/" + g.bucket
}

func (g *GCS) publicURL(objectName string) string {
	return fmt.Sprintf("%s/%s", g.baseURL(), objectName)
}

func (g *GCS) Upload(ctx context.Context, obj Object) (string, error) {
	objectName, contentType, err := ObjectName(obj.Prefix, obj.OwnerID, obj.FileName, time.Now())
	if err != nil {
		return "", err
	}

	wc := g.client.Bucket(g.bucket).Object(objectName).NewWriter(ctx)
	wc.ContentType = contentType
	wc.Metadata = map[string]string{"original-filename": obj.FileName, "owner-id": obj.OwnerID}
	// 公開閲覧可能にする
	wc.ACL = []gcs.ACLRule{{Entity: gcs.AllUsers, Role: gcs.RoleReader}}

	if _, err := io.Copy(wc, obj.Body); err != nil {
		wc.Close()
		return "", fmt.Errorf("failed to copy file to GCS: %w", err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return g.publicURL(objectName), nil
}

func (g *GCS) SignedUploadURL(ctx context.Context, prefix, ownerID, fileName string) (string, string, error) {
	objectName, contentType, err := ObjectName(prefix, ownerID, fileName, time.Now())
	if err != nil {
		return "", "", err
	}

	signedURL, err := g.client.Bucket(g.bucket).SignedURL(objectName, &gcs.SignedURLOptions{
		Scheme:      gcs.SigningSchemeV4,
		Method:      "PUT",
		ContentType: contentType,
		Expires:     time.Now().Add(g.expiry),
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate signed URL: %w", err)
	}
	return signedURL, g.publicURL(objectName), nil
}

func (g *GCS) Delete(ctx context.Context, publicURL string) error {
	objectName, err := objectNameFromURL(g.baseURL(), publicURL)
	if err != nil {
		return err
	}
	if err := g.client.Bucket(g.bucket).Object(objectName).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete GCS object: %w", err)
	}
	return nil
}
