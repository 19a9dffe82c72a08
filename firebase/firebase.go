package firebase

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/messaging"
	"github.com/Kousuke-irie/campus-market-backend/config"
	"google.golang.org/api/option"
)

// Clients Firebase Auth と FCM のクライアント
type Clients struct {
	Auth      *auth.Client
	Messaging *messaging.Client
}

// InitFirebase Firebaseの初期化を実行
func InitFirebase(ctx context.Context, cfg config.Firebase) (*Clients, error) {
	var opts []option.ClientOption
	if _, err := os.Stat(cfg.CredentialsFile); err == nil {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	} else {
		slog.Warn("firebase credentials file not found, using application default credentials",
			slog.String("path", cfg.CredentialsFile))
	}

	var fbConfig *firebase.Config
	if cfg.ProjectID != "" {
		fbConfig = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, fbConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firebase app: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create firebase auth client: %w", err)
	}

	messagingClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create firebase messaging client: %w", err)
	}

	slog.Info("firebase auth and messaging clients initialized")
	return &Clients{Auth: authClient, Messaging: messagingClient}, nil
}
