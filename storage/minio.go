package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Kousuke-irie/campus-market-backend/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinIO struct {
	client    *minio.Client
	bucket    string
	publicURL string
	expiry    time.Duration
}

func NewMinIO(cfg config.Storage) (*MinIO, error) {
	client, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
		Secure: cfg.MinIO.UseSSL,
		Region: cfg.MinIO.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	publicURL := cfg.MinIO.PublicURL
	if publicURL == "" {
		scheme := "http"
		if cfg.MinIO.UseSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s", scheme, cfg.MinIO.Endpoint)
	}

	slog.Info("MinIO client initialized", slog.String("endpoint", cfg.MinIO.Endpoint), slog.String("bucket", cfg.Bucket))
	return &MinIO{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		expiry:    cfg.URLExpiry,
	}, nil
}

func (m *MinIO) objectURL(objectName string) string {
	return fmt.Sprintf("%s/%s/%s", m.publicURL, m.bucket, objectName)
}

func (m *MinIO) Upload(ctx context.Context, obj Object) (string, error) {
	objectName, contentType, err := ObjectName(obj.Prefix, obj.OwnerID, obj.FileName, time.Now())
	if err != nil {
		return "", err
	}

	_, err = m.client.PutObject(ctx, m.bucket, objectName, obj.Body, obj.Size, minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"original-filename": obj.FileName,
			"owner-id":          obj.OwnerID,
			"uploaded-at":       time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to MinIO: %w", err)
	}
	return m.objectURL(objectName), nil
}

func (m *MinIO) SignedUploadURL(ctx context.Context, prefix, ownerID, fileName string) (string, string, error) {
	objectName, _, err := ObjectName(prefix, ownerID, fileName, time.Now())
	if err != nil {
		return "", "", err
	}
	u, err := m.client.PresignedPutObject(ctx, m.bucket, objectName, m.expiry)
	if err != nil {
		return "", "", fmt.Errorf("failed to presign MinIO upload: %w", err)
	}
	return u.String(), m.objectURL(objectName), nil
}

func (m *MinIO) Delete(ctx context.Context, publicURL string) error {
	objectName, err := objectNameFromURL(m.publicURL+"/"+m.bucket, publicURL)
	if err != nil {
		return err
	}
	if err := m.client.RemoveObject(ctx, m.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete from MinIO: %w", err)
	}
	return nil
}
